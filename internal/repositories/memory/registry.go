// Package memory provides mutex-guarded repositories for local development and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/donabox/api/internal/domain"
	"github.com/donabox/api/internal/repositories"
)

// Registry bundles the in-memory repositories.
type Registry struct {
	orders *OrderRepository
	config *ConfigRepository
	admins *AdminDirectory
	mail   *MailOutbox
	health repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds an empty in-memory registry. Seed admin emails with admins.
func NewRegistry(admins ...string) *Registry {
	health, _ := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{{
		Name:  "memory",
		Check: func(context.Context) error { return nil },
	}})
	return &Registry{
		orders: NewOrderRepository(),
		config: NewConfigRepository(),
		admins: NewAdminDirectory(admins...),
		mail:   NewMailOutbox(),
		health: health,
	}
}

func (r *Registry) Orders() repositories.OrderRepository  { return r.orders }
func (r *Registry) Config() repositories.ConfigRepository { return r.config }
func (r *Registry) Admins() repositories.AdminDirectory   { return r.admins }
func (r *Registry) Mail() repositories.MailOutbox         { return r.mail }
func (r *Registry) Health() repositories.HealthRepository { return r.health }
func (r *Registry) Close(context.Context) error           { return nil }

// OrderStore exposes the concrete order repository for test inspection.
func (r *Registry) OrderStore() *OrderRepository { return r.orders }

// Outbox exposes the concrete mail outbox for test inspection.
func (r *Registry) Outbox() *MailOutbox { return r.mail }

// OrderRepository keeps orders in a map guarded by a mutex.
type OrderRepository struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]domain.Order)}
}

func (r *OrderRepository) Insert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; exists {
		return conflict("orders.insert", order.ID)
	}
	r.orders[order.ID] = order
	return nil
}

func (r *OrderRepository) Get(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.get", orderID)
	}
	return order, nil
}

func (r *OrderRepository) Query(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	r.mu.Lock()
	out := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if matches(order, filter) {
			out = append(out, order)
		}
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b domain.Order) int {
		if c := b.DeliveryDate.Compare(a.DeliveryDate); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Mutate holds the lock across read, fn and write so concurrent mutations serialise.
func (r *OrderRepository) Mutate(_ context.Context, orderID string, fn repositories.OrderMutation) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.mutate", orderID)
	}
	working := order
	if err := fn(&working); err != nil {
		return domain.Order{}, err
	}
	working.ID = order.ID
	r.orders[orderID] = working
	return working, nil
}

func (r *OrderRepository) Delete(_ context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[orderID]; !ok {
		return notFound("orders.delete", orderID)
	}
	delete(r.orders, orderID)
	return nil
}

// Len reports how many orders are stored.
func (r *OrderRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

func matches(order domain.Order, filter domain.OrderFilter) bool {
	switch {
	case filter.DeliveryDate != nil:
		if order.DeliveryDate != *filter.DeliveryDate {
			return false
		}
	case filter.Month != nil:
		if order.DeliveryDate.Before(filter.Month.First()) || !order.DeliveryDate.Before(filter.Month.Next()) {
			return false
		}
	}
	if filter.Outlet != "" && order.Outlet != filter.Outlet {
		return false
	}
	return true
}

// ConfigRepository stores the configuration document with field presence.
type ConfigRepository struct {
	mu     sync.Mutex
	stored repositories.StoredConfig
}

var _ repositories.ConfigRepository = (*ConfigRepository)(nil)

func NewConfigRepository() *ConfigRepository {
	return &ConfigRepository{}
}

func (r *ConfigRepository) Get(context.Context) (repositories.StoredConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneStored(r.stored), nil
}

func (r *ConfigRepository) Merge(_ context.Context, patch domain.ConfigPatch, updatedAt time.Time) (repositories.StoredConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if patch.SeasonalLabel != nil {
		label := *patch.SeasonalLabel
		r.stored.SeasonalLabel = &label
	}
	if patch.Blackout != nil {
		blackout := cloneBlackout(*patch.Blackout)
		r.stored.Blackout = &blackout
	}
	r.stored.UpdatedAt = updatedAt
	return cloneStored(r.stored), nil
}

func cloneStored(in repositories.StoredConfig) repositories.StoredConfig {
	out := repositories.StoredConfig{UpdatedAt: in.UpdatedAt}
	if in.SeasonalLabel != nil {
		label := *in.SeasonalLabel
		out.SeasonalLabel = &label
	}
	if in.Blackout != nil {
		blackout := cloneBlackout(*in.Blackout)
		out.Blackout = &blackout
	}
	return out
}

func cloneBlackout(in domain.BlackoutConfig) domain.BlackoutConfig {
	in.Ranges = slices.Clone(in.Ranges)
	return in
}

// AdminDirectory is a fixed list of staff emails.
type AdminDirectory struct {
	mu     sync.Mutex
	emails []string
}

func NewAdminDirectory(emails ...string) *AdminDirectory {
	return &AdminDirectory{emails: slices.Clone(emails)}
}

func (d *AdminDirectory) Emails(context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.emails), nil
}

// Set replaces the directory contents.
func (d *AdminDirectory) Set(emails ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emails = slices.Clone(emails)
}

// MailOutbox records enqueued messages in order.
type MailOutbox struct {
	mu       sync.Mutex
	messages []repositories.MailMessage
}

func NewMailOutbox() *MailOutbox {
	return &MailOutbox{}
}

func (o *MailOutbox) Enqueue(_ context.Context, msg repositories.MailMessage) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, msg)
	return fmt.Sprintf("mail-%03d", len(o.messages)), nil
}

// Messages returns a copy of every enqueued message.
func (o *MailOutbox) Messages() []repositories.MailMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.messages)
}
