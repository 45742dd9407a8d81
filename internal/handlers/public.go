package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/donabox/api/internal/platform/auth"
	"github.com/donabox/api/internal/platform/httpx"
	"github.com/donabox/api/internal/platform/observability"
	"github.com/donabox/api/internal/services"
)

type overridesRequest struct {
	AllowSunday    bool `json:"allow_sunday"`
	AllowPastDates bool `json:"allow_past_dates"`
}

type submitOrderRequest struct {
	Channel        string            `json:"channel"`
	Name           string            `json:"name"`
	Email          string            `json:"email"`
	Phone          string            `json:"phone"`
	PickupLocation string            `json:"pickup_location"`
	Outlet         string            `json:"outlet"`
	DeliveryDate   string            `json:"delivery_date"`
	Quantities     map[string]int    `json:"quantities"`
	Overrides      *overridesRequest `json:"overrides"`
}

func (req submitOrderRequest) toCommand(r *http.Request) services.SubmitOrderCommand {
	cmd := services.SubmitOrderCommand{
		Caller:         callerFromRequest(r),
		Channel:        req.Channel,
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		PickupLocation: req.PickupLocation,
		Outlet:         req.Outlet,
		DeliveryDate:   req.DeliveryDate,
		Quantities:     req.Quantities,
		UserAgent:      r.UserAgent(),
	}
	if req.Overrides != nil {
		cmd.Overrides = services.Overrides{
			AllowSunday:    req.Overrides.AllowSunday,
			AllowPastDates: req.Overrides.AllowPastDates,
		}
	}
	return cmd
}

// PublicHandlers serves the storefront endpoints. Callers may be anonymous.
type PublicHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	config      services.ConfigService
	idempotency func(http.Handler) http.Handler
	limiter     rateLimiter
}

// PublicOption customises PublicHandlers.
type PublicOption func(*PublicHandlers)

// WithSubmitIdempotency wraps order submission with the given idempotency middleware.
func WithSubmitIdempotency(mw func(http.Handler) http.Handler) PublicOption {
	return func(h *PublicHandlers) {
		h.idempotency = mw
	}
}

// WithSubmitRateLimit caps order submissions and quotes per client within window.
func WithSubmitRateLimit(limit int, window time.Duration) PublicOption {
	return func(h *PublicHandlers) {
		h.limiter = newWindowLimiter(limit, window, nil)
	}
}

// NewPublicHandlers constructs the public handlers.
func NewPublicHandlers(authn *auth.Authenticator, orders services.OrderService, config services.ConfigService, opts ...PublicOption) *PublicHandlers {
	h := &PublicHandlers{authn: authn, orders: orders, config: config}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /public endpoints.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalFirebaseAuth())
	}
	r.Get("/config", h.getConfig)
	r.Get("/catalog", h.getCatalog)
	r.Group(func(g chi.Router) {
		g.Use(rateLimitByClient(h.limiter))
		g.Post("/orders:quote", h.quoteOrder)
		if h.idempotency != nil {
			g.With(h.idempotency).Post("/orders", h.submitOrder)
		} else {
			g.Post("/orders", h.submitOrder)
		}
	})
}

func (h *PublicHandlers) submitOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req submitOrderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.Create(ctx, req.toCommand(r))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	observability.AnnotateOrder(ctx, order.ID)
	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"ok":    true,
		"order": buildOrderPayload(order),
	})
}

func (h *PublicHandlers) quoteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req submitOrderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	quote, err := h.orders.Quote(ctx, req.toCommand(r))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"units":         quote.Units,
		"price":         quote.Price,
		"delivery_date": quote.DeliveryDate.String(),
	})
}

func (h *PublicHandlers) getConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.config == nil {
		httpx.WriteError(ctx, w, httpx.NewError("config_service_unavailable", "config service unavailable", http.StatusServiceUnavailable))
		return
	}
	cfg, err := h.config.Get(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildConfigPayload(cfg))
}

func (h *PublicHandlers) getCatalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.config == nil {
		httpx.WriteError(ctx, w, httpx.NewError("config_service_unavailable", "config service unavailable", http.StatusServiceUnavailable))
		return
	}
	view, err := h.config.Catalog(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCatalogPayload(view))
}
