package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/donabox/api/internal/platform/auth"
	"github.com/donabox/api/internal/platform/httpx"
	"github.com/donabox/api/internal/platform/observability"
	"github.com/donabox/api/internal/services"
)

// AdminHandlers serves the staff dashboard endpoints. Every route requires a
// verified token; privilege is decided per call by the services.
type AdminHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
	config services.ConfigService
	admins services.AdminService
	export services.ExportService
}

// NewAdminHandlers constructs the admin handlers. A nil export service disables the export route.
func NewAdminHandlers(authn *auth.Authenticator, orders services.OrderService, config services.ConfigService, admins services.AdminService, export services.ExportService) *AdminHandlers {
	return &AdminHandlers{
		authn:  authn,
		orders: orders,
		config: config,
		admins: admins,
		export: export,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/me", h.me)

	r.Get("/orders", h.listOrders)
	r.Post("/orders:export", h.exportOrders)
	r.Post("/orders/{orderID}:toggle-paid", h.togglePaid)
	r.Post("/orders/{orderID}:toggle-delivered", h.toggleDelivered)
	r.Patch("/orders/{orderID}/quantities", h.updateQuantities)
	r.Delete("/orders/{orderID}", h.deleteOrder)

	r.Patch("/config", h.updateConfig)
	r.Put("/config/seasonal-label", h.updateSeasonalLabel)
	r.Put("/config/blackout", h.updateBlackout)
}

func (h *AdminHandlers) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile, err := h.admins.Me(ctx, callerFromRequest(r))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"is_admin": profile.Privileged,
		"email":    profile.Email,
	})
}

func listQueryFromRequest(r *http.Request) services.ListOrdersQuery {
	query := r.URL.Query()
	return services.ListOrdersQuery{
		Mode:   query.Get("mode"),
		Month:  query.Get("month"),
		Outlet: query.Get("outlet"),
	}
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orders, err := h.orders.List(ctx, callerFromRequest(r), listQueryFromRequest(r))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"orders": items})
}

type exportOrdersRequest struct {
	Mode   string `json:"mode"`
	Month  string `json:"month"`
	Outlet string `json:"outlet"`
}

func (h *AdminHandlers) exportOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.export == nil {
		httpx.WriteError(ctx, w, httpx.NewError("export_unavailable", "export service unavailable", http.StatusServiceUnavailable))
		return
	}

	// The body is optional; query parameters are the fallback.
	query := listQueryFromRequest(r)
	if r.ContentLength != 0 {
		var req exportOrdersRequest
		if err := decodeJSONBody(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
			writeBodyError(ctx, w, err)
			return
		}
		if req.Mode != "" {
			query.Mode = req.Mode
		}
		if req.Month != "" {
			query.Month = req.Month
		}
		if req.Outlet != "" {
			query.Outlet = req.Outlet
		}
	}

	export, err := h.export.ExportOrders(ctx, callerFromRequest(r), query)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName))
	w.Header().Set("X-Export-Rows", fmt.Sprint(export.Rows))
	if export.Location != "" {
		w.Header().Set("X-Export-Location", export.Location)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}

// orderIDParam reads the order id from the path and tags the request span with it.
func orderIDParam(r *http.Request) string {
	id := chi.URLParam(r, "orderID")
	observability.AnnotateOrder(r.Context(), id)
	return id
}

func (h *AdminHandlers) togglePaid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	toggle, err := h.orders.TogglePaid(ctx, callerFromRequest(r), orderIDParam(r))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, paymentTogglePayload(toggle))
}

func (h *AdminHandlers) toggleDelivered(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	toggle, err := h.orders.ToggleDelivered(ctx, callerFromRequest(r), orderIDParam(r))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, fulfillmentTogglePayload(toggle))
}

type updateQuantitiesRequest struct {
	Quantities map[string]int `json:"quantities"`
}

func (h *AdminHandlers) updateQuantities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req updateQuantitiesRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	order, err := h.orders.UpdateQuantities(ctx, callerFromRequest(r), orderIDParam(r), req.Quantities)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *AdminHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.orders.Delete(ctx, callerFromRequest(r), orderIDParam(r)); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type blackoutRequest struct {
	Enabled bool               `json:"enabled"`
	Message string             `json:"message"`
	Ranges  []dateRangePayload `json:"ranges"`
}

func (req blackoutRequest) toCommand() services.BlackoutCommand {
	cmd := services.BlackoutCommand{Enabled: req.Enabled, Message: req.Message}
	for _, rng := range req.Ranges {
		cmd.Ranges = append(cmd.Ranges, services.DateRangeInput{
			Start: strings.TrimSpace(rng.Start),
			End:   strings.TrimSpace(rng.End),
		})
	}
	return cmd
}

type updateConfigRequest struct {
	SeasonalLabel *string          `json:"seasonal_label"`
	Blackout      *blackoutRequest `json:"blackout"`
}

func (h *AdminHandlers) updateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req updateConfigRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	cmd := services.ConfigUpdateCommand{SeasonalLabel: req.SeasonalLabel}
	if req.Blackout != nil {
		blackout := req.Blackout.toCommand()
		cmd.Blackout = &blackout
	}
	cfg, err := h.config.Update(ctx, callerFromRequest(r), cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildConfigPayload(cfg))
}

type seasonalLabelRequest struct {
	SeasonalLabel string `json:"seasonal_label"`
}

func (h *AdminHandlers) updateSeasonalLabel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req seasonalLabelRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	cfg, err := h.config.UpdateSeasonalLabel(ctx, callerFromRequest(r), req.SeasonalLabel)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildConfigPayload(cfg))
}

func (h *AdminHandlers) updateBlackout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req blackoutRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	cfg, err := h.config.UpdateBlackout(ctx, callerFromRequest(r), req.toCommand())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildConfigPayload(cfg))
}
