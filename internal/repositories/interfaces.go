package repositories

import (
	"context"
	"time"

	"github.com/donabox/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Config() ConfigRepository
	Admins() AdminDirectory
	Mail() MailOutbox
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderMutation edits an order in place inside a read-modify-write. Returning an
// error aborts the write.
type OrderMutation func(order *domain.Order) error

// OrderRepository persists submitted orders.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Get(ctx context.Context, orderID string) (domain.Order, error)
	// Query returns orders matching filter ordered by delivery date descending, then id.
	Query(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	// Mutate reads the order, applies fn and writes the result atomically. A
	// concurrent writer never observes or overwrites a half-applied change.
	Mutate(ctx context.Context, orderID string, fn OrderMutation) (domain.Order, error)
	// Delete removes the order after confirming it exists in the same transaction.
	Delete(ctx context.Context, orderID string) error
}

// ConfigRepository stores the singleton operational configuration document.
type ConfigRepository interface {
	// Get returns the stored configuration and whether a document exists. Missing
	// fields are left at their zero values; defaults are applied by the service.
	Get(ctx context.Context) (StoredConfig, error)
	// Merge writes only the fields present in patch and returns the merged document.
	Merge(ctx context.Context, patch domain.ConfigPatch, updatedAt time.Time) (StoredConfig, error)
}

// StoredConfig is the raw configuration document with field presence preserved.
type StoredConfig struct {
	SeasonalLabel *string
	Blackout      *domain.BlackoutConfig
	UpdatedAt     time.Time
}

// AdminDirectory lists staff emails maintained alongside the configuration.
type AdminDirectory interface {
	Emails(ctx context.Context) ([]string, error)
}

// MailMessage is a queued outbound email; delivery happens elsewhere.
type MailMessage struct {
	To       string
	Template string
	Data     map[string]any
}

// MailOutbox enqueues outbound email documents.
type MailOutbox interface {
	Enqueue(ctx context.Context, msg MailMessage) (string, error)
}

// HealthRepository aggregates dependency health for the system endpoints.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
