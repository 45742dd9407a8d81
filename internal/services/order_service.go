package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/oklog/ulid/v2"

	"github.com/donabox/api/internal/domain"
	"github.com/donabox/api/internal/platform/textutil"
	"github.com/donabox/api/internal/repositories"
	"github.com/donabox/api/internal/rules"
)

const (
	// ConfirmationTemplate is the mail template rendered by the delivery extension.
	ConfirmationTemplate = "orderConfirmation"

	maxNameLength   = 120
	maxOutletLength = 120
	maxAgentLength  = 256
	minPhoneDigits  = 8
	allOutlets      = "ALL"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9 ()\-.]+$`)

// OrderServiceDeps bundles the collaborators of the order service.
type OrderServiceDeps struct {
	Orders    repositories.OrderRepository
	Config    ConfigService
	Gate      AuthorizationGate
	Mail      repositories.MailOutbox
	Events    OrderEventPublisher
	Catalog   domain.Catalog
	Location  *time.Location
	Clock     func() time.Time
	IDGen     func() string
	Logger    func(ctx context.Context, event string, fields map[string]any)
	MailTempl string
}

type orderService struct {
	orders   repositories.OrderRepository
	config   ConfigService
	gate     AuthorizationGate
	mail     repositories.MailOutbox
	events   OrderEventPublisher
	catalog  domain.Catalog
	location *time.Location
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
	template string
}

var _ OrderService = (*orderService)(nil)

// NewOrderService constructs the guarded order service.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Config == nil {
		return nil, errors.New("order service: config service is required")
	}
	if deps.Gate == nil {
		return nil, errors.New("order service: authorization gate is required")
	}

	catalog := deps.Catalog
	if len(catalog.Slots) == 0 {
		var err error
		if catalog, err = domain.DefaultCatalog(); err != nil {
			return nil, err
		}
	}
	location := deps.Location
	if location == nil {
		location = time.UTC
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	template := strings.TrimSpace(deps.MailTempl)
	if template == "" {
		template = ConfirmationTemplate
	}

	return &orderService{
		orders:   deps.Orders,
		config:   deps.Config,
		gate:     deps.Gate,
		mail:     deps.Mail,
		events:   deps.Events,
		catalog:  catalog,
		location: location,
		now:      func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
		template: template,
	}, nil
}

// candidate is a submission that passed structural validation.
type candidate struct {
	order      domain.Order
	privileged bool
	quote      rules.Quote
}

func (s *orderService) Quote(ctx context.Context, cmd SubmitOrderCommand) (QuoteResult, error) {
	c, err := s.accept(ctx, cmd)
	if err != nil {
		return QuoteResult{}, err
	}
	return QuoteResult{Units: c.quote.Units, Price: c.quote.Price, DeliveryDate: c.order.DeliveryDate}, nil
}

func (s *orderService) Create(ctx context.Context, cmd SubmitOrderCommand) (Order, error) {
	c, err := s.accept(ctx, cmd)
	if err != nil {
		return Order{}, err
	}

	now := s.now()
	order := c.order
	order.ID = s.newID()
	order.Units = c.quote.Units
	order.Price = c.quote.Price
	order.PaymentStatus = domain.PaymentUnpaid
	order.FulfillmentStatus = domain.FulfillmentReceived
	order.CreatedAt = now
	order.UpdatedAt = now

	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}

	s.logger(ctx, "order.created", map[string]any{
		"orderId":      order.ID,
		"channel":      string(order.Channel),
		"deliveryDate": order.DeliveryDate.String(),
		"units":        order.Units,
		"price":        order.Price,
		"privileged":   c.privileged,
	})
	s.enqueueConfirmation(ctx, order)
	s.publish(ctx, OrderEventCreated, order, cmd.Caller)
	return order, nil
}

// accept validates a submission in rule order: malformed input, quantity rules,
// then availability. It reads the blackout configuration on every call.
func (s *orderService) accept(ctx context.Context, cmd SubmitOrderCommand) (candidate, error) {
	order, err := s.parseSubmission(cmd)
	if err != nil {
		return candidate{}, err
	}

	if violations := rules.QuantityViolations(order.Quantities); len(violations) > 0 {
		return candidate{}, newRuleViolationError(violations...)
	}

	privileged := false
	if cmd.Overrides.AllowSunday || cmd.Overrides.AllowPastDates {
		if privileged, err = s.isPrivileged(ctx, cmd.Caller); err != nil {
			return candidate{}, err
		}
	}

	cfg, err := s.config.Get(ctx)
	if err != nil {
		return candidate{}, err
	}
	err = rules.CheckAvailability(rules.AvailabilityInput{
		Date:             order.DeliveryDate,
		Today:            rules.OperationalDay(s.now(), s.location),
		Blackout:         cfg.Blackout,
		BypassClosureDay: cmd.Overrides.AllowSunday && privileged,
		BypassLeadTime:   cmd.Overrides.AllowPastDates && privileged,
	})
	if err != nil {
		if v, ok := rules.AsViolation(err); ok {
			return candidate{}, newRuleViolationError(v)
		}
		return candidate{}, invalidOrder("fechaEntrega debe ser YYYY-MM-DD")
	}

	return candidate{
		order:      order,
		privileged: privileged,
		quote:      rules.Price(order.Channel, order.Outlet, order.Quantities),
	}, nil
}

func (s *orderService) parseSubmission(cmd SubmitOrderCommand) (domain.Order, error) {
	channel, ok := domain.ParseChannel(cmd.Channel)
	if !ok {
		return domain.Order{}, invalidOrder("Campo inválido: %s", "tipoPedido")
	}

	name := textutil.CleanText(cmd.Name, maxNameLength)
	if name == "" {
		return domain.Order{}, invalidOrder("Campo inválido: %s", "nombre")
	}
	email := textutil.NormalizeEmail(cmd.Email)
	if email == "" {
		return domain.Order{}, invalidOrder("Campo inválido: %s", "email")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return domain.Order{}, invalidOrder("Correo inválido: %s", email)
	}
	if strings.TrimSpace(cmd.DeliveryDate) == "" {
		return domain.Order{}, invalidOrder("Campo inválido: %s", "fechaEntrega")
	}

	order := domain.Order{
		Channel:   channel,
		Contact:   domain.Contact{Name: name, Email: email},
		UserAgent: textutil.CleanText(cmd.UserAgent, maxAgentLength),
	}

	phone := strings.TrimSpace(cmd.Phone)
	if phone != "" {
		if !validPhone(phone) {
			return domain.Order{}, invalidOrder("Teléfono inválido.")
		}
		order.Contact.Phone = phone
	}

	switch channel {
	case domain.ChannelIndividual:
		if phone == "" {
			return domain.Order{}, invalidOrder("Campo inválido: %s", "telefono")
		}
		pickup := strings.TrimSpace(cmd.PickupLocation)
		if pickup == "" {
			return domain.Order{}, invalidOrder("Campo inválido: %s", "puntoRecoleccion")
		}
		if !s.catalog.IsPickupLocation(pickup) {
			return domain.Order{}, invalidOrder("puntoRecoleccion inválido")
		}
		order.PickupLocation = pickup
	case domain.ChannelRetail:
		outlet := textutil.CleanText(cmd.Outlet, maxOutletLength)
		if outlet == "" {
			return domain.Order{}, invalidOrder("Campo inválido: %s", "puntoVenta")
		}
		order.Outlet = outlet
	}

	quantities, err := domain.QuantitiesFromMap(cmd.Quantities)
	if err != nil {
		return domain.Order{}, invalidOrder("Cantidad inválida: %v", err)
	}
	order.Quantities = quantities

	date, err := rules.ParseDate(cmd.DeliveryDate)
	if err != nil {
		return domain.Order{}, invalidOrder("fechaEntrega debe ser YYYY-MM-DD")
	}
	order.DeliveryDate = date
	return order, nil
}

func validPhone(phone string) bool {
	if !phonePattern.MatchString(phone) {
		return false
	}
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= minPhoneDigits
}

func (s *orderService) isPrivileged(ctx context.Context, caller Caller) (bool, error) {
	if !caller.Authenticated() {
		return false, nil
	}
	ok, err := s.gate.IsPrivileged(ctx, caller)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}
	return ok, nil
}

func (s *orderService) List(ctx context.Context, caller Caller, query ListOrdersQuery) ([]Order, error) {
	if err := requirePrivileged(ctx, s.gate, caller); err != nil {
		return nil, err
	}
	filter, err := s.buildFilter(query)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.Query(ctx, filter)
	if err != nil {
		return nil, mapOrderRepositoryError(err)
	}
	return orders, nil
}

func (s *orderService) buildFilter(query ListOrdersQuery) (domain.OrderFilter, error) {
	mode, ok := domain.ParseListMode(query.Mode)
	if !ok {
		return domain.OrderFilter{}, invalidOrder("Modo inválido: %s", query.Mode)
	}

	var filter domain.OrderFilter
	if outlet := textutil.CleanText(query.Outlet, maxOutletLength); outlet != "" && !strings.EqualFold(outlet, allOutlets) {
		filter.Outlet = outlet
	}

	today := rules.OperationalDay(s.now(), s.location)
	switch mode {
	case domain.ListToday:
		filter.DeliveryDate = &today
	case domain.ListTomorrow:
		tomorrow := today.AddDays(1)
		filter.DeliveryDate = &tomorrow
	case domain.ListAll:
		if raw := strings.TrimSpace(query.Month); raw != "" {
			month, err := domain.ParseMonth(raw)
			if err != nil {
				return domain.OrderFilter{}, invalidOrder("Mes inválido. Usa formato YYYY-MM.")
			}
			filter.Month = &month
		}
	}
	return filter, nil
}

func (s *orderService) TogglePaid(ctx context.Context, caller Caller, orderID string) (PaymentToggle, error) {
	if err := requirePrivileged(ctx, s.gate, caller); err != nil {
		return PaymentToggle{}, err
	}
	id, err := requireOrderID(orderID)
	if err != nil {
		return PaymentToggle{}, err
	}

	var previous domain.PaymentStatus
	updated, err := s.orders.Mutate(ctx, id, func(order *domain.Order) error {
		previous = order.PaymentStatus
		order.PaymentStatus = order.PaymentStatus.Toggle()
		order.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return PaymentToggle{}, mapOrderRepositoryError(err)
	}

	s.logger(ctx, "order.paid.toggled", map[string]any{
		"orderId":  id,
		"previous": string(previous),
		"current":  string(updated.PaymentStatus),
		"actor":    caller.UID,
	})
	s.publish(ctx, OrderEventPaidToggled, updated, caller)
	return PaymentToggle{OrderID: id, Previous: previous, Current: updated.PaymentStatus}, nil
}

func (s *orderService) ToggleDelivered(ctx context.Context, caller Caller, orderID string) (FulfillmentToggle, error) {
	if err := requirePrivileged(ctx, s.gate, caller); err != nil {
		return FulfillmentToggle{}, err
	}
	id, err := requireOrderID(orderID)
	if err != nil {
		return FulfillmentToggle{}, err
	}

	var previous domain.FulfillmentStatus
	updated, err := s.orders.Mutate(ctx, id, func(order *domain.Order) error {
		previous = order.FulfillmentStatus
		order.FulfillmentStatus = order.FulfillmentStatus.Toggle()
		order.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return FulfillmentToggle{}, mapOrderRepositoryError(err)
	}

	s.logger(ctx, "order.delivered.toggled", map[string]any{
		"orderId":  id,
		"previous": string(previous),
		"current":  string(updated.FulfillmentStatus),
		"actor":    caller.UID,
	})
	s.publish(ctx, OrderEventDeliveredToggled, updated, caller)
	return FulfillmentToggle{OrderID: id, Previous: previous, Current: updated.FulfillmentStatus}, nil
}

func (s *orderService) UpdateQuantities(ctx context.Context, caller Caller, orderID string, patch map[string]int) (Order, error) {
	if err := requirePrivileged(ctx, s.gate, caller); err != nil {
		return Order{}, err
	}
	id, err := requireOrderID(orderID)
	if err != nil {
		return Order{}, err
	}
	if len(patch) == 0 {
		return Order{}, invalidOrder("No hay cantidades para actualizar.")
	}

	parsed, err := domain.ParseQuantityPatch(patch)
	if err != nil {
		return Order{}, invalidOrder("Cantidad inválida: %v", err)
	}

	updated, err := s.orders.Mutate(ctx, id, func(order *domain.Order) error {
		merged := parsed.Apply(order.Quantities)
		if violations := rules.QuantityViolations(merged); len(violations) > 0 {
			return newRuleViolationError(violations...)
		}
		order.Quantities = merged
		quote := rules.PriceOrder(*order)
		order.Units = quote.Units
		order.Price = quote.Price
		order.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}

	s.logger(ctx, "order.quantities.updated", map[string]any{
		"orderId": id,
		"units":   updated.Units,
		"price":   updated.Price,
		"actor":   caller.UID,
	})
	s.publish(ctx, OrderEventQuantitiesUpdated, updated, caller)
	return updated, nil
}

func (s *orderService) Delete(ctx context.Context, caller Caller, orderID string) error {
	if err := requirePrivileged(ctx, s.gate, caller); err != nil {
		return err
	}
	id, err := requireOrderID(orderID)
	if err != nil {
		return err
	}
	if err := s.orders.Delete(ctx, id); err != nil {
		return mapOrderRepositoryError(err)
	}
	s.logger(ctx, "order.deleted", map[string]any{"orderId": id, "actor": caller.UID})
	s.publish(ctx, OrderEventDeleted, domain.Order{ID: id}, caller)
	return nil
}

func requireOrderID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", invalidOrder("Falta id")
	}
	return id, nil
}

func (s *orderService) enqueueConfirmation(ctx context.Context, order domain.Order) {
	if s.mail == nil {
		return
	}

	seasonal := ""
	if cfg, err := s.config.Get(ctx); err == nil {
		seasonal = displaySeasonalLabel(cfg.SeasonalLabel)
	}

	items := make([]map[string]any, 0, len(domain.Slots))
	for _, slot := range domain.Slots {
		qty := order.Quantities.Get(slot)
		if qty <= 0 {
			continue
		}
		items = append(items, map[string]any{
			"label": s.catalog.SlotLabel(slot, seasonal),
			"qty":   qty,
		})
	}

	id, err := s.mail.Enqueue(ctx, repositories.MailMessage{
		To:       order.Contact.Email,
		Template: s.template,
		Data: map[string]any{
			"year": s.now().In(s.location).Year(),
			"order": map[string]any{
				"id":               order.ID,
				"nombre":           order.Contact.Name,
				"fechaEntrega":     order.DeliveryDate.String(),
				"tipoPedido":       string(order.Channel),
				"puntoRecoleccion": order.PickupLocation,
				"puntoVenta":       order.Outlet,
				"precioTotal":      order.Price,
			},
			"items": items,
		},
	})
	if err != nil {
		s.logger(ctx, "order.mail.enqueue.failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return
	}
	s.logger(ctx, "order.mail.enqueued", map[string]any{"orderId": order.ID, "mailId": id})
}

func (s *orderService) publish(ctx context.Context, eventType string, order domain.Order, actor Caller) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		Type:              eventType,
		OrderID:           order.ID,
		Channel:           string(order.Channel),
		Outlet:            order.Outlet,
		Units:             order.Units,
		Price:             order.Price,
		PaymentStatus:     string(order.PaymentStatus),
		FulfillmentStatus: string(order.FulfillmentStatus),
		ActorUID:          actor.UID,
		OccurredAt:        s.now(),
	}
	if order.DeliveryDate != (civil.Date{}) {
		event.DeliveryDate = order.DeliveryDate.String()
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"orderId":   order.ID,
			"eventType": eventType,
			"error":     err.Error(),
		})
	}
}
