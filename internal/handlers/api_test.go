package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donabox/api/internal/platform/auth"
	"github.com/donabox/api/internal/platform/idempotency"
	"github.com/donabox/api/internal/repositories/memory"
	"github.com/donabox/api/internal/services"
)

var (
	testZone = time.FixedZone("CST", -6*60*60)
	testNow  = time.Date(2026, time.March, 10, 12, 0, 0, 0, testZone)
)

const (
	staffToken    = "staff-token"
	customerToken = "customer-token"
)

type mapVerifier map[string]*firebaseauth.Token

func (m mapVerifier) VerifyIDToken(_ context.Context, token string) (*firebaseauth.Token, error) {
	if t, ok := m[token]; ok {
		return t, nil
	}
	return nil, auth.ErrTokenInvalid
}

type testAPI struct {
	router http.Handler
	reg    *memory.Registry
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	reg := memory.NewRegistry()
	clock := func() time.Time { return testNow }

	gate := services.NewAllowlistGate(services.AllowlistGateDeps{
		Static:               []string{"owner@donabox.mx"},
		Directory:            reg.Admins(),
		RequireVerifiedEmail: true,
	})
	cfg, err := services.NewConfigService(services.ConfigServiceDeps{Config: reg.Config(), Gate: gate, Clock: clock})
	require.NoError(t, err)
	seq := 0
	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   reg.Orders(),
		Config:   cfg,
		Gate:     gate,
		Mail:     reg.Mail(),
		Location: testZone,
		Clock:    clock,
		IDGen: func() string {
			seq++
			return fmt.Sprintf("ord-%03d", seq)
		},
	})
	require.NoError(t, err)
	admins, err := services.NewAdminService(gate)
	require.NoError(t, err)
	export, err := services.NewExportService(services.ExportServiceDeps{Orders: orders, Location: testZone, Clock: clock})
	require.NoError(t, err)

	authn := auth.NewAuthenticator(mapVerifier{
		staffToken: {UID: "staff-1", Claims: map[string]interface{}{"email": "Owner@DonaBox.mx", "email_verified": true}},
		customerToken: {UID: "cust-1", Claims: map[string]interface{}{"email": "ana@example.com", "email_verified": true}},
	})

	public := NewPublicHandlers(authn, orders, cfg,
		WithSubmitIdempotency(idempotency.Middleware(idempotency.NewMemoryStore())),
		WithSubmitRateLimit(100, time.Minute),
	)
	admin := NewAdminHandlers(authn, orders, cfg, admins, export)

	router := NewRouter(
		WithPublicRoutes(public.Routes),
		WithAdminRoutes(admin.Routes),
	)
	return &testAPI{router: router, reg: reg}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}

func individualSubmission(date string, quantities map[string]int) map[string]any {
	return map[string]any{
		"channel":         "individual",
		"name":            "Ana López",
		"email":           "ana@example.com",
		"phone":           "55 1234 5678",
		"pickup_location": "Tipi'Oka Lomas",
		"delivery_date":   date,
		"quantities":      quantities,
	}
}

func TestSubmitOrderEndToEnd(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodPost, "/api/v1/public/orders", "", individualSubmission("2026-03-11", map[string]int{"azucar": 2, "cafe": 4}))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	body := decodeBody(t, rr)
	order := body["order"].(map[string]any)
	assert.Equal(t, "ord-001", order["id"])
	assert.EqualValues(t, 6, order["units"])
	assert.EqualValues(t, 160, order["price"])
	assert.Equal(t, "unpaid", order["payment_status"])
	assert.Equal(t, "received", order["fulfillment_status"])
	assert.Equal(t, "2026-03-11", order["delivery_date"])
	assert.Len(t, api.reg.Outbox().Messages(), 1)
}

func TestSubmitPartnerOutlet(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodPost, "/api/v1/public/orders", "", map[string]any{
		"channel":       "retail",
		"name":          "Karen",
		"email":         "karen@example.com",
		"outlet":        "Karen Donas",
		"delivery_date": "2026-03-11",
		"quantities":    map[string]int{"oreo": 4, "zanahoria": 6},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	order := decodeBody(t, rr)["order"].(map[string]any)
	assert.EqualValues(t, 150, order["price"])
}

func TestSubmitRuleViolation(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodPost, "/api/v1/public/orders", "", individualSubmission("2026-03-11", map[string]int{"azucar": 1}))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, "rule_violation", body["error"])
	assert.Equal(t, "min_order_size", body["rule"])
	assert.Equal(t, "El pedido mínimo es de 6 donas.", body["message"])
	violations := body["violations"].([]any)
	require.Len(t, violations, 2)
	assert.Equal(t, "azucar", violations[1].(map[string]any)["slot"])
	assert.Equal(t, 0, api.reg.OrderStore().Len())
}

func TestSubmitSundayOverride(t *testing.T) {
	api := newTestAPI(t)
	payload := individualSubmission("2026-03-15", map[string]int{"cafe": 6})
	payload["overrides"] = map[string]bool{"allow_sunday": true}

	rr := api.do(t, http.MethodPost, "/api/v1/public/orders", customerToken, payload)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "closure_day", decodeBody(t, rr)["rule"])

	rr = api.do(t, http.MethodPost, "/api/v1/public/orders", staffToken, payload)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = api.do(t, http.MethodPost, "/api/v1/public/orders", "forged", payload)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSubmitMalformed(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodPost, "/api/v1/public/orders", "", individualSubmission("11-03-2026", map[string]int{"cafe": 6}))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "invalid_request", body["error"])
	assert.Equal(t, "fechaEntrega debe ser YYYY-MM-DD", body["message"])

	rr = api.do(t, http.MethodPost, "/api/v1/public/orders", "", map[string]any{"unexpected": true})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSubmitIdempotencyReplay(t *testing.T) {
	api := newTestAPI(t)
	data, err := json.Marshal(individualSubmission("2026-03-11", map[string]int{"cafe": 6}))
	require.NoError(t, err)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/public/orders", bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "box-42")
		rr := httptest.NewRecorder()
		api.router.ServeHTTP(rr, req)
		return rr
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := send()
	require.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, api.reg.OrderStore().Len())
}

func TestQuoteEndpoint(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodPost, "/api/v1/public/orders:quote", "", individualSubmission("2026-03-11", map[string]int{"chocolate": 4, "oreo": 4}))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.EqualValues(t, 8, body["units"])
	assert.EqualValues(t, 220, body["price"])
	assert.Equal(t, 0, api.reg.OrderStore().Len())
}

func TestPublicConfigAndCatalog(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/api/v1/public/config", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "Seasonal", body["seasonal_label"])
	blackout := body["blackout"].(map[string]any)
	assert.Equal(t, false, blackout["enabled"])
	assert.Equal(t, []any{}, blackout["ranges"])

	rr = api.do(t, http.MethodGet, "/api/v1/public/catalog", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	catalog := decodeBody(t, rr)
	assert.Len(t, catalog["slots"], 7)
	assert.NotEmpty(t, catalog["pickup_locations"])
}

func TestAdminRequiresAuthAndPrivilege(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodGet, "/api/v1/admin/orders?mode=all", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "unauthenticated", decodeBody(t, rr)["error"])

	rr = api.do(t, http.MethodGet, "/api/v1/admin/orders?mode=all", customerToken, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "permission_denied", decodeBody(t, rr)["error"])

	rr = api.do(t, http.MethodPost, "/api/v1/admin/orders/missing:toggle-paid", customerToken, nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = api.do(t, http.MethodGet, "/api/v1/admin/me", customerToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	me := decodeBody(t, rr)
	assert.Equal(t, false, me["is_admin"])
	assert.Equal(t, "ana@example.com", me["email"])
}

func TestAdminOrderLifecycle(t *testing.T) {
	api := newTestAPI(t)
	rr := api.do(t, http.MethodPost, "/api/v1/public/orders", "", individualSubmission("2026-03-11", map[string]int{"azucar": 2, "cafe": 4}))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = api.do(t, http.MethodGet, "/api/v1/admin/orders?mode=Ma%C3%B1ana", staffToken, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Len(t, decodeBody(t, rr)["orders"], 1)

	rr = api.do(t, http.MethodPost, "/api/v1/admin/orders/ord-001:toggle-paid", staffToken, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	toggle := decodeBody(t, rr)
	assert.Equal(t, "unpaid", toggle["previous"])
	assert.Equal(t, "paid", toggle["current"])

	rr = api.do(t, http.MethodPost, "/api/v1/admin/orders/ord-001:toggle-delivered", staffToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeBody(t, rr)["delivered"])

	rr = api.do(t, http.MethodPatch, "/api/v1/admin/orders/ord-001/quantities", staffToken, map[string]any{
		"quantities": map[string]int{"oreo": 4},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	order := decodeBody(t, rr)["order"].(map[string]any)
	assert.EqualValues(t, 10, order["units"])
	assert.EqualValues(t, 280, order["price"])
	assert.Equal(t, "paid", order["payment_status"])
	assert.Equal(t, "Tipi'Oka Lomas", order["pickup_location"])

	rr = api.do(t, http.MethodPatch, "/api/v1/admin/orders/ord-001/quantities", staffToken, map[string]any{
		"quantities": map[string]int{"cafe": 1},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "single_unit", body["rule"])
	assert.Equal(t, "cafe", body["slot"])

	rr = api.do(t, http.MethodPost, "/api/v1/admin/orders:export", staffToken, map[string]string{"mode": "all"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/csv")
	records, err := csv.NewReader(bytes.NewReader(rr.Body.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Pagado", records[1][4])

	rr = api.do(t, http.MethodDelete, "/api/v1/admin/orders/ord-001", staffToken, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	rr = api.do(t, http.MethodDelete, "/api/v1/admin/orders/ord-001", staffToken, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAdminConfigUpdates(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(t, http.MethodPatch, "/api/v1/admin/config", staffToken, map[string]any{})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "No hay cambios para guardar.", decodeBody(t, rr)["message"])

	rr = api.do(t, http.MethodPut, "/api/v1/admin/config/blackout", staffToken, map[string]any{
		"enabled": true,
		"ranges":  []map[string]string{{"start": "2026-03-14", "end": "2026-03-12"}},
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "El inicio no puede ser después del fin.", decodeBody(t, rr)["message"])

	rr = api.do(t, http.MethodPut, "/api/v1/admin/config/blackout", staffToken, map[string]any{
		"enabled": true,
		"message": "Vacaciones",
		"ranges":  []map[string]string{{"start": "2026-03-12", "end": "2026-03-14"}},
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = api.do(t, http.MethodPost, "/api/v1/public/orders", staffToken, individualSubmission("2026-03-13", map[string]int{"cafe": 6}))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "blackout", body["rule"])
	assert.Equal(t, "Vacaciones", body["message"])

	rr = api.do(t, http.MethodPut, "/api/v1/admin/config/seasonal-label", staffToken, map[string]string{"seasonal_label": "Mango"})
	require.Equal(t, http.StatusOK, rr.Code)
	cfg := decodeBody(t, rr)
	assert.Equal(t, "Mango", cfg["seasonal_label"])
	assert.Equal(t, true, cfg["blackout"].(map[string]any)["enabled"])
}

func TestWriteServiceErrorUnavailable(t *testing.T) {
	rr := httptest.NewRecorder()
	writeServiceError(context.Background(), rr, fmt.Errorf("%w: %v", services.ErrOrderUnavailable, errors.New("deadline")))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
