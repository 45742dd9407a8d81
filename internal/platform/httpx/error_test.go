package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donabox/api/internal/platform/requestctx"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "abc123"})
	rec := httptest.NewRecorder()

	err := NewError("rule_violation", "El pedido mínimo es de 6 donas.\n", http.StatusUnprocessableEntity).
		WithDetails(map[string]any{"rule": "min_order_size", "status": "spoofed"})
	WriteError(ctx, rec, err)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	body := decode(t, rec)
	assert.Equal(t, "rule_violation", body["error"])
	assert.Equal(t, "El pedido mínimo es de 6 donas.", body["message"])
	assert.Equal(t, "min_order_size", body["rule"])
	assert.EqualValues(t, 422, body["status"])
	assert.Equal(t, "abc123", body["trace_id"])
	assert.NotContains(t, body, "request_id")
}

func TestWithDetailsMergesAndCopies(t *testing.T) {
	details := map[string]any{"slot": "azucar"}
	base := NewError("rule_violation", "x", http.StatusUnprocessableEntity).WithDetails(details)
	merged := base.WithDetails(map[string]any{"date": "2025-06-11"})
	details["slot"] = "changed"

	assert.Equal(t, "azucar", base.Details["slot"])
	assert.NotContains(t, base.Details, "date")
	assert.Equal(t, map[string]any{"slot": "azucar", "date": "2025-06-11"}, merged.Details)
}

func TestNewErrorNormalises(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, NewError("x", "y", 0).Status)
	assert.Equal(t, http.StatusInternalServerError, NewError("x", "y", http.StatusOK).Status)
	assert.Equal(t, "line one line two", NewError("x", "line one\r\nline two", 400).Message)
	assert.Equal(t, "400 x: y", NewError("x", "y", 400).Error())
}
