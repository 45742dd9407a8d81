package handlers

import (
	"time"

	"github.com/donabox/api/internal/domain"
	"github.com/donabox/api/internal/services"
)

type orderPayload struct {
	ID                string         `json:"id"`
	Channel           string         `json:"channel"`
	Name              string         `json:"name"`
	Email             string         `json:"email"`
	Phone             string         `json:"phone,omitempty"`
	PickupLocation    string         `json:"pickup_location,omitempty"`
	Outlet            string         `json:"outlet,omitempty"`
	DeliveryDate      string         `json:"delivery_date"`
	Quantities        map[string]int `json:"quantities"`
	Units             int            `json:"units"`
	Price             int64          `json:"price"`
	PaymentStatus     string         `json:"payment_status"`
	FulfillmentStatus string         `json:"fulfillment_status"`
	CreatedAt         string         `json:"created_at,omitempty"`
	UpdatedAt         string         `json:"updated_at,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	return orderPayload{
		ID:                order.ID,
		Channel:           string(order.Channel),
		Name:              order.Contact.Name,
		Email:             order.Contact.Email,
		Phone:             order.Contact.Phone,
		PickupLocation:    order.PickupLocation,
		Outlet:            order.Outlet,
		DeliveryDate:      order.DeliveryDate.String(),
		Quantities:        order.Quantities.Map(),
		Units:             order.Units,
		Price:             order.Price,
		PaymentStatus:     string(order.PaymentStatus),
		FulfillmentStatus: string(order.FulfillmentStatus),
		CreatedAt:         formatTime(order.CreatedAt),
		UpdatedAt:         formatTime(order.UpdatedAt),
	}
}

type dateRangePayload struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type blackoutPayload struct {
	Enabled bool               `json:"enabled"`
	Message string             `json:"message"`
	Ranges  []dateRangePayload `json:"ranges"`
}

type configPayload struct {
	SeasonalLabel string          `json:"seasonal_label"`
	Blackout      blackoutPayload `json:"blackout"`
	UpdatedAt     string          `json:"updated_at,omitempty"`
}

func buildConfigPayload(cfg services.AppConfig) configPayload {
	ranges := make([]dateRangePayload, 0, len(cfg.Blackout.Ranges))
	for _, r := range cfg.Blackout.Ranges {
		ranges = append(ranges, dateRangePayload{Start: r.Start.String(), End: r.End.String()})
	}
	return configPayload{
		SeasonalLabel: cfg.SeasonalLabel,
		Blackout: blackoutPayload{
			Enabled: cfg.Blackout.Enabled,
			Message: cfg.Blackout.Message,
			Ranges:  ranges,
		},
		UpdatedAt: formatTime(cfg.UpdatedAt),
	}
}

type catalogSlotPayload struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type pickupLocationPayload struct {
	Name  string   `json:"name"`
	Hours []string `json:"hours"`
}

type catalogPayload struct {
	Slots           []catalogSlotPayload    `json:"slots"`
	PickupLocations []pickupLocationPayload `json:"pickup_locations"`
	Outlets         []string                `json:"outlets"`
}

func buildCatalogPayload(view services.CatalogView) catalogPayload {
	payload := catalogPayload{
		Slots:           make([]catalogSlotPayload, 0, len(view.Slots)),
		PickupLocations: make([]pickupLocationPayload, 0, len(view.PickupLocations)),
		Outlets:         append([]string{}, view.Outlets...),
	}
	for _, slot := range view.Slots {
		payload.Slots = append(payload.Slots, catalogSlotPayload{Key: string(slot.Key), Label: slot.Label})
	}
	for _, loc := range view.PickupLocations {
		payload.PickupLocations = append(payload.PickupLocations, pickupLocationPayload{
			Name:  loc.Name,
			Hours: append([]string{}, loc.Hours...),
		})
	}
	return payload
}

func paymentTogglePayload(toggle services.PaymentToggle) map[string]any {
	return map[string]any{
		"id":       toggle.OrderID,
		"previous": string(toggle.Previous),
		"current":  string(toggle.Current),
		"paid":     toggle.Current == domain.PaymentPaid,
	}
}

func fulfillmentTogglePayload(toggle services.FulfillmentToggle) map[string]any {
	return map[string]any{
		"id":        toggle.OrderID,
		"previous":  string(toggle.Previous),
		"current":   string(toggle.Current),
		"delivered": toggle.Current == domain.FulfillmentDelivered,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
