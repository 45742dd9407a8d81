package domain

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Channel determines the pricing tier and the required contact fields of an order.
type Channel string

const (
	// ChannelIndividual is a personal order collected at a pickup location.
	ChannelIndividual Channel = "individual"
	// ChannelRetail is an order sold through a named sales outlet.
	ChannelRetail Channel = "retail"
)

// Valid reports whether the channel is one of the known values.
func (c Channel) Valid() bool {
	return c == ChannelIndividual || c == ChannelRetail
}

// ParseChannel accepts the API values as well as the stored legacy labels.
func ParseChannel(raw string) (Channel, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "individual", "personal":
		return ChannelIndividual, true
	case "retail", "retail-outlet", "punto de venta":
		return ChannelRetail, true
	default:
		return "", false
	}
}

// PaymentStatus is the two-state payment flag of an order.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// Toggle returns the opposite payment status.
func (s PaymentStatus) Toggle() PaymentStatus {
	if s == PaymentPaid {
		return PaymentUnpaid
	}
	return PaymentPaid
}

// FulfillmentStatus is the two-state fulfillment flag of an order.
type FulfillmentStatus string

const (
	FulfillmentReceived  FulfillmentStatus = "received"
	FulfillmentDelivered FulfillmentStatus = "delivered"
)

// Toggle returns the opposite fulfillment status.
func (s FulfillmentStatus) Toggle() FulfillmentStatus {
	if s == FulfillmentDelivered {
		return FulfillmentReceived
	}
	return FulfillmentDelivered
}

// Contact holds the customer contact fields captured at submission.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// Order is a persisted box order.
type Order struct {
	ID                string
	Channel           Channel
	Contact           Contact
	PickupLocation    string
	Outlet            string
	DeliveryDate      civil.Date
	Quantities        Quantities
	Units             int
	Price             int64
	PaymentStatus     PaymentStatus
	FulfillmentStatus FulfillmentStatus
	UserAgent         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DateRange is an inclusive calendar range.
type DateRange struct {
	Start civil.Date
	End   civil.Date
}

// Contains reports whether d falls within the range, both ends included.
func (r DateRange) Contains(d civil.Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Valid reports whether both ends are real dates and start is not after end.
func (r DateRange) Valid() bool {
	return r.Start.IsValid() && r.End.IsValid() && !r.End.Before(r.Start)
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.Start, r.End)
}

// BlackoutConfig describes operator-defined date ranges during which no orders are accepted.
type BlackoutConfig struct {
	Enabled bool
	Message string
	Ranges  []DateRange
}

// Covers reports whether the blackout is enabled and d falls in any range.
func (b BlackoutConfig) Covers(d civil.Date) bool {
	if !b.Enabled {
		return false
	}
	for _, r := range b.Ranges {
		if r.Contains(d) {
			return true
		}
	}
	return false
}

// AppConfig is the singleton operational configuration.
type AppConfig struct {
	SeasonalLabel string
	Blackout      BlackoutConfig
	UpdatedAt     time.Time
}

// ConfigPatch carries a partial configuration update; nil fields are left untouched.
type ConfigPatch struct {
	SeasonalLabel *string
	Blackout      *BlackoutConfig
}

// Empty reports whether the patch carries no fields.
func (p ConfigPatch) Empty() bool {
	return p.SeasonalLabel == nil && p.Blackout == nil
}

// ListMode selects which delivery dates an admin listing covers.
type ListMode string

const (
	ListToday    ListMode = "today"
	ListTomorrow ListMode = "tomorrow"
	ListAll      ListMode = "all"
)

// ParseListMode accepts the API values and the legacy dashboard labels.
func ParseListMode(raw string) (ListMode, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "today", "hoy":
		return ListToday, true
	case "tomorrow", "mañana", "manana":
		return ListTomorrow, true
	case "all", "todos":
		return ListAll, true
	default:
		return "", false
	}
}

// OrderFilter narrows an order query. DeliveryDate takes precedence over Month.
type OrderFilter struct {
	DeliveryDate *civil.Date
	Month        *Month
	Outlet       string
}

// Month identifies a calendar month.
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses YYYY-MM.
func ParseMonth(raw string) (Month, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(raw))
	if err != nil {
		return Month{}, fmt.Errorf("month must be YYYY-MM: %w", err)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// First returns the first day of the month.
func (m Month) First() civil.Date {
	return civil.Date{Year: m.Year, Month: m.Month, Day: 1}
}

// Next returns the first day of the following month.
func (m Month) Next() civil.Date {
	return civil.DateOf(time.Date(m.Year, m.Month+1, 1, 0, 0, 0, 0, time.UTC))
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}
