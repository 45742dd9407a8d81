package firestore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/firestore"

	"github.com/donabox/api/internal/domain"
	pfirestore "github.com/donabox/api/internal/platform/firestore"
	"github.com/donabox/api/internal/repositories"
)

const ordersCollection = "orders"

// Stored enum values predate the API and are kept for the existing dashboard.
const (
	storedChannelIndividual = "Personal"
	storedChannelRetail     = "Punto de venta"
	storedUnpaid            = "No pagado"
	storedPaid              = "Pagado"
	storedReceived          = "Recibido"
	storedDelivered         = "Entregado"
)

type quantitiesDocument struct {
	Azucar     int `firestore:"azucar"`
	Cafe       int `firestore:"cafe"`
	Seasonal   int `firestore:"seasonal"`
	Cheesecake int `firestore:"cheesecake"`
	Chocolate  int `firestore:"chocolate"`
	Oreo       int `firestore:"oreo"`
	Zanahoria  int `firestore:"zanahoria"`
}

type orderDocument struct {
	TipoPedido       string             `firestore:"tipoPedido"`
	Nombre           string             `firestore:"nombre"`
	Email            string             `firestore:"email"`
	Telefono         *string            `firestore:"telefono"`
	PuntoRecoleccion *string            `firestore:"puntoRecoleccion"`
	PuntoVenta       *string            `firestore:"puntoVenta"`
	FechaEntrega     string             `firestore:"fechaEntrega"`
	Quantities       quantitiesDocument `firestore:"quantities"`
	TotalDonas       int                `firestore:"totalDonas"`
	PrecioTotal      int64              `firestore:"precioTotal"`
	StatusPagado     string             `firestore:"statusPagado"`
	StatusOrder      string             `firestore:"statusOrder"`
	CreatedAt        time.Time          `firestore:"createdAt"`
	UpdatedAt        time.Time          `firestore:"updatedAt"`
	UserAgent        *string            `firestore:"userAgent"`
}

// OrderRepository implements repositories.OrderRepository on the `orders` collection.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, ordersCollection),
	}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	return r.orders.Create(ctx, order.ID, encodeOrder(order))
}

func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data)
}

func (r *OrderRepository) Query(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if outlet := strings.TrimSpace(filter.Outlet); outlet != "" {
			q = q.Where("puntoVenta", "==", outlet)
		}
		switch {
		case filter.DeliveryDate != nil:
			q = q.Where("fechaEntrega", "==", filter.DeliveryDate.String())
		case filter.Month != nil:
			q = q.Where("fechaEntrega", ">=", filter.Month.First().String()).
				Where("fechaEntrega", "<", filter.Month.Next().String()).
				OrderBy("fechaEntrega", firestore.Desc)
		default:
			q = q.OrderBy("fechaEntrega", firestore.Desc)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := decodeOrder(doc.ID, doc.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	slices.SortStableFunc(out, func(a, b domain.Order) int {
		if c := b.DeliveryDate.Compare(a.DeliveryDate); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Mutate runs fn inside a transaction. Errors returned by fn are passed back unchanged.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn repositories.OrderMutation) (domain.Order, error) {
	var (
		result domain.Order
		fnErr  error
	)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		fnErr = nil
		doc, ref, err := r.orders.GetTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		order, err := decodeOrder(doc.ID, doc.Data)
		if err != nil {
			return err
		}
		if err := fn(&order); err != nil {
			fnErr = err
			return err
		}
		order.ID = orderID
		result = order
		return tx.Set(ref, encodeOrder(order))
	})
	if fnErr != nil {
		return domain.Order{}, fnErr
	}
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.mutate", err)
	}
	return result, nil
}

func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, ref, err := r.orders.GetTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		return tx.Delete(ref)
	})
	if err != nil {
		return pfirestore.WrapError("orders.delete", err)
	}
	return nil
}

func encodeOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		TipoPedido:   storedChannelIndividual,
		Nombre:       order.Contact.Name,
		Email:        order.Contact.Email,
		Telefono:     optionalString(order.Contact.Phone),
		FechaEntrega: order.DeliveryDate.String(),
		Quantities: quantitiesDocument{
			Azucar:     order.Quantities.Azucar,
			Cafe:       order.Quantities.Cafe,
			Seasonal:   order.Quantities.Seasonal,
			Cheesecake: order.Quantities.Cheesecake,
			Chocolate:  order.Quantities.Chocolate,
			Oreo:       order.Quantities.Oreo,
			Zanahoria:  order.Quantities.Zanahoria,
		},
		TotalDonas:   order.Units,
		PrecioTotal:  order.Price,
		StatusPagado: storedUnpaid,
		StatusOrder:  storedReceived,
		CreatedAt:    order.CreatedAt.UTC(),
		UpdatedAt:    order.UpdatedAt.UTC(),
		UserAgent:    optionalString(order.UserAgent),
	}
	if order.Channel == domain.ChannelRetail {
		doc.TipoPedido = storedChannelRetail
		doc.PuntoVenta = optionalString(order.Outlet)
	} else {
		doc.PuntoRecoleccion = optionalString(order.PickupLocation)
	}
	if order.PaymentStatus == domain.PaymentPaid {
		doc.StatusPagado = storedPaid
	}
	if order.FulfillmentStatus == domain.FulfillmentDelivered {
		doc.StatusOrder = storedDelivered
	}
	return doc
}

func decodeOrder(id string, doc orderDocument) (domain.Order, error) {
	channel, ok := domain.ParseChannel(doc.TipoPedido)
	if !ok {
		return domain.Order{}, fmt.Errorf("order %s: unknown tipoPedido %q", id, doc.TipoPedido)
	}
	// Older documents stored a full ISO timestamp.
	rawDate := doc.FechaEntrega
	if len(rawDate) > 10 {
		rawDate = rawDate[:10]
	}
	date, err := civil.ParseDate(rawDate)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %s: fechaEntrega %q: %w", id, doc.FechaEntrega, err)
	}

	order := domain.Order{
		ID:      id,
		Channel: channel,
		Contact: domain.Contact{
			Name:  doc.Nombre,
			Email: doc.Email,
			Phone: deref(doc.Telefono),
		},
		PickupLocation: deref(doc.PuntoRecoleccion),
		Outlet:         deref(doc.PuntoVenta),
		DeliveryDate:   date,
		Quantities: domain.Quantities{
			Azucar:     doc.Quantities.Azucar,
			Cafe:       doc.Quantities.Cafe,
			Seasonal:   doc.Quantities.Seasonal,
			Cheesecake: doc.Quantities.Cheesecake,
			Chocolate:  doc.Quantities.Chocolate,
			Oreo:       doc.Quantities.Oreo,
			Zanahoria:  doc.Quantities.Zanahoria,
		},
		Units:             doc.TotalDonas,
		Price:             doc.PrecioTotal,
		PaymentStatus:     domain.PaymentUnpaid,
		FulfillmentStatus: domain.FulfillmentReceived,
		UserAgent:         deref(doc.UserAgent),
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}
	if doc.StatusPagado == storedPaid {
		order.PaymentStatus = domain.PaymentPaid
	}
	if doc.StatusOrder == storedDelivered {
		order.FulfillmentStatus = domain.FulfillmentDelivered
	}
	return order, nil
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
