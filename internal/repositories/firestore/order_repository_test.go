package firestore

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donabox/api/internal/domain"
)

func TestOrderDocumentRoundTripKeepsLegacyLabels(t *testing.T) {
	order := domain.Order{
		ID:                "o1",
		Channel:           domain.ChannelRetail,
		Contact:           domain.Contact{Name: "Karen", Email: "k@example.com"},
		Outlet:            "Karen Donas",
		DeliveryDate:      civil.Date{Year: 2025, Month: time.June, Day: 12},
		Quantities:        domain.Quantities{Chocolate: 4, Oreo: 4},
		Units:             8,
		Price:             120,
		PaymentStatus:     domain.PaymentPaid,
		FulfillmentStatus: domain.FulfillmentDelivered,
	}

	doc := encodeOrder(order)
	assert.Equal(t, "Punto de venta", doc.TipoPedido)
	assert.Equal(t, "Pagado", doc.StatusPagado)
	assert.Equal(t, "Entregado", doc.StatusOrder)
	assert.Equal(t, "2025-06-12", doc.FechaEntrega)
	assert.Nil(t, doc.PuntoRecoleccion)
	assert.Nil(t, doc.Telefono)

	decoded, err := decodeOrder("o1", doc)
	require.NoError(t, err)
	assert.Equal(t, order, decoded)
}

func TestDecodeOrderAcceptsTimestampDates(t *testing.T) {
	decoded, err := decodeOrder("legacy", orderDocument{
		TipoPedido:   "Personal",
		FechaEntrega: "2024-12-20T06:00:00.000Z",
		StatusPagado: "No pagado",
		StatusOrder:  "Recibido",
	})
	require.NoError(t, err)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.December, Day: 20}, decoded.DeliveryDate)
	assert.Equal(t, domain.ChannelIndividual, decoded.Channel)
	assert.Equal(t, domain.PaymentUnpaid, decoded.PaymentStatus)
}

func TestDecodeOrderRejectsUnknownChannel(t *testing.T) {
	_, err := decodeOrder("bad", orderDocument{TipoPedido: "Mayoreo", FechaEntrega: "2025-01-01"})
	require.Error(t, err)
}

func TestDecodeConfigSkipsMalformedRanges(t *testing.T) {
	label := "Calabaza"
	stored := decodeConfig(configDocument{
		SeasonalLabel: &label,
		Blocked: &blockedDocument{
			Enabled: true,
			Ranges: []rangeDocument{
				{Start: "2025-12-24", End: "2025-12-26"},
				{Start: "24/12/2025", End: "2025-12-26"},
			},
		},
	})
	require.NotNil(t, stored.Blackout)
	assert.Len(t, stored.Blackout.Ranges, 1)
	assert.Equal(t, "Calabaza", *stored.SeasonalLabel)
}
