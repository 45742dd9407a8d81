package services

import (
	"context"
	"time"

	"cloud.google.com/go/civil"

	domain "github.com/donabox/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order              = domain.Order
	AppConfig          = domain.AppConfig
	SystemHealthReport = domain.SystemHealthReport
)

// Caller is the identity attached to a request, if any. Privilege is never carried here;
// it is resolved per call through the AuthorizationGate.
type Caller struct {
	UID           string
	Email         string
	EmailVerified bool
}

// Authenticated reports whether a signed-in identity is present.
func (c Caller) Authenticated() bool {
	return c.UID != ""
}

// AuthorizationGate decides whether a caller is on the staff allowlist.
type AuthorizationGate interface {
	IsPrivileged(ctx context.Context, caller Caller) (bool, error)
}

// OrderService is the guarded order surface: create, list and staff mutations.
type OrderService interface {
	// Quote runs the acceptance rules without persisting anything.
	Quote(ctx context.Context, cmd SubmitOrderCommand) (QuoteResult, error)
	Create(ctx context.Context, cmd SubmitOrderCommand) (Order, error)
	List(ctx context.Context, caller Caller, query ListOrdersQuery) ([]Order, error)
	TogglePaid(ctx context.Context, caller Caller, orderID string) (PaymentToggle, error)
	ToggleDelivered(ctx context.Context, caller Caller, orderID string) (FulfillmentToggle, error)
	UpdateQuantities(ctx context.Context, caller Caller, orderID string, patch map[string]int) (Order, error)
	Delete(ctx context.Context, caller Caller, orderID string) error
}

// ConfigService owns the seasonal label and blackout configuration.
type ConfigService interface {
	// Get always returns a fully defaulted configuration.
	Get(ctx context.Context) (AppConfig, error)
	Update(ctx context.Context, caller Caller, cmd ConfigUpdateCommand) (AppConfig, error)
	UpdateSeasonalLabel(ctx context.Context, caller Caller, label string) (AppConfig, error)
	UpdateBlackout(ctx context.Context, caller Caller, cmd BlackoutCommand) (AppConfig, error)
	Catalog(ctx context.Context) (CatalogView, error)
}

// AdminService answers who-am-I questions for the staff dashboard.
type AdminService interface {
	Me(ctx context.Context, caller Caller) (AdminProfile, error)
}

// ExportService renders order listings as CSV.
type ExportService interface {
	ExportOrders(ctx context.Context, caller Caller, query ListOrdersQuery) (OrderExport, error)
}

// SystemService exposes health information.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// ExportUploader stores rendered exports, e.g. in Cloud Storage.
type ExportUploader interface {
	Upload(ctx context.Context, bucket, object, contentType string, data []byte) (string, error)
}

// Overrides are staff-only relaxations of the delivery-date rules. They are ignored
// unless the caller is privileged.
type Overrides struct {
	AllowSunday    bool
	AllowPastDates bool
}

// SubmitOrderCommand is the raw, untrusted order submission.
type SubmitOrderCommand struct {
	Caller         Caller
	Channel        string
	Name           string
	Email          string
	Phone          string
	PickupLocation string
	Outlet         string
	DeliveryDate   string
	Quantities     map[string]int
	Overrides      Overrides
	UserAgent      string
}

// QuoteResult is the authoritative price for a candidate order.
type QuoteResult struct {
	Units        int
	Price        int64
	DeliveryDate civil.Date
}

// ListOrdersQuery selects orders for the staff dashboard.
type ListOrdersQuery struct {
	Mode   string
	Month  string
	Outlet string
}

// PaymentToggle reports both sides of a paid flip.
type PaymentToggle struct {
	OrderID  string
	Previous domain.PaymentStatus
	Current  domain.PaymentStatus
}

// FulfillmentToggle reports both sides of a delivered flip.
type FulfillmentToggle struct {
	OrderID  string
	Previous domain.FulfillmentStatus
	Current  domain.FulfillmentStatus
}

// DateRangeInput is an unvalidated blackout range.
type DateRangeInput struct {
	Start string
	End   string
}

// BlackoutCommand replaces the blackout configuration.
type BlackoutCommand struct {
	Enabled bool
	Message string
	Ranges  []DateRangeInput
}

// ConfigUpdateCommand is a partial configuration update; nil fields are untouched.
type ConfigUpdateCommand struct {
	SeasonalLabel *string
	Blackout      *BlackoutCommand
}

// CatalogView is the public product reference with the seasonal label applied.
type CatalogView struct {
	Slots           []CatalogSlot
	PickupLocations []domain.PickupLocation
	Outlets         []string
}

// CatalogSlot is a slot with its display label.
type CatalogSlot struct {
	Key   domain.Slot
	Label string
}

// AdminProfile answers adminMe.
type AdminProfile struct {
	Email      string
	Privileged bool
}

// OrderExport is a rendered CSV export.
type OrderExport struct {
	FileName    string
	ContentType string
	Data        []byte
	Rows        int
	// Location is the gs:// URI when the export was also uploaded.
	Location    string
	GeneratedAt time.Time
}

// Order event types.
const (
	OrderEventCreated           = "order.created"
	OrderEventPaidToggled       = "order.paid_toggled"
	OrderEventDeliveredToggled  = "order.delivered_toggled"
	OrderEventQuantitiesUpdated = "order.quantities_updated"
	OrderEventDeleted           = "order.deleted"
)

// OrderEvent is the payload published for order lifecycle changes.
type OrderEvent struct {
	Type              string    `json:"type"`
	OrderID           string    `json:"order_id"`
	Channel           string    `json:"channel,omitempty"`
	Outlet            string    `json:"outlet,omitempty"`
	DeliveryDate      string    `json:"delivery_date,omitempty"`
	Units             int       `json:"units,omitempty"`
	Price             int64     `json:"price,omitempty"`
	PaymentStatus     string    `json:"payment_status,omitempty"`
	FulfillmentStatus string    `json:"fulfillment_status,omitempty"`
	ActorUID          string    `json:"actor_uid,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}
