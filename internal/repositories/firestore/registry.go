package firestore

import (
	"context"
	"errors"
	"time"

	pfirestore "github.com/donabox/api/internal/platform/firestore"
	"github.com/donabox/api/internal/repositories"
)

// RegistryOptions tune the Firestore registry.
type RegistryOptions struct {
	MailCollection string
	// ExtraChecks are appended to the readiness checks, e.g. Pub/Sub or Secret Manager probes.
	ExtraChecks []repositories.DependencyCheck
}

// Registry exposes the Firestore-backed repositories.
type Registry struct {
	provider *pfirestore.Provider
	orders   *OrderRepository
	config   *ConfigRepository
	admins   *AdminDirectory
	mail     *MailOutbox
	health   repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry wires every Firestore repository onto the shared provider.
func NewRegistry(provider *pfirestore.Provider, opts RegistryOptions) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	config, err := NewConfigRepository(provider)
	if err != nil {
		return nil, err
	}
	admins, err := NewAdminDirectory(provider)
	if err != nil {
		return nil, err
	}
	mail, err := NewMailOutbox(provider, opts.MailCollection)
	if err != nil {
		return nil, err
	}

	checks := []repositories.DependencyCheck{{
		Name:    "firestore",
		Timeout: 2 * time.Second,
		Check: func(ctx context.Context) error {
			return provider.Ping(ctx, configCollection)
		},
	}}
	checks = append(checks, opts.ExtraChecks...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider: provider,
		orders:   orders,
		config:   config,
		admins:   admins,
		mail:     mail,
		health:   health,
	}, nil
}

func (r *Registry) Orders() repositories.OrderRepository  { return r.orders }
func (r *Registry) Config() repositories.ConfigRepository { return r.config }
func (r *Registry) Admins() repositories.AdminDirectory   { return r.admins }
func (r *Registry) Mail() repositories.MailOutbox         { return r.mail }
func (r *Registry) Health() repositories.HealthRepository { return r.health }

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}
