package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/donabox/api/internal/platform/httpx"
	"github.com/donabox/api/internal/rules"
	"github.com/donabox/api/internal/services"
)

type violationPayload struct {
	Rule    string `json:"rule"`
	Slot    string `json:"slot,omitempty"`
	Date    string `json:"date,omitempty"`
	Message string `json:"message"`
}

// writeServiceError maps service sentinels onto the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "Debes iniciar sesión.", http.StatusUnauthorized))
	case errors.Is(err, services.ErrUnauthorized):
		httpx.WriteError(ctx, w, httpx.NewError("permission_denied", "No autorizado.", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderRuleViolation):
		writeRuleViolation(ctx, w, err)
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", reason(err, services.ErrOrderInvalidInput), http.StatusBadRequest))
	case errors.Is(err, services.ErrConfigInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", reason(err, services.ErrConfigInvalidInput), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "Pedido no encontrado", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently, retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable), errors.Is(err, services.ErrConfigUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "storage temporarily unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("deadline_exceeded", "request timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal", "failed to process request", http.StatusInternalServerError))
	}
}

func writeRuleViolation(ctx context.Context, w http.ResponseWriter, err error) {
	var violations []*rules.Violation
	var ruleErr *services.RuleViolationError
	if errors.As(err, &ruleErr) {
		violations = ruleErr.Violations
	} else if v, ok := rules.AsViolation(err); ok {
		violations = []*rules.Violation{v}
	}
	if len(violations) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("rule_violation", err.Error(), http.StatusUnprocessableEntity))
		return
	}

	first := toViolationPayload(violations[0])
	all := make([]violationPayload, 0, len(violations))
	for _, v := range violations {
		all = append(all, toViolationPayload(v))
	}
	details := map[string]any{
		"rule":       first.Rule,
		"violations": all,
	}
	if first.Slot != "" {
		details["slot"] = first.Slot
	}
	if first.Date != "" {
		details["date"] = first.Date
	}
	httpx.WriteError(ctx, w, httpx.NewError("rule_violation", first.Message, http.StatusUnprocessableEntity).WithDetails(details))
}

func toViolationPayload(v *rules.Violation) violationPayload {
	payload := violationPayload{
		Rule:    string(v.Rule),
		Slot:    string(v.Slot),
		Message: v.Message,
	}
	if v.Date.IsValid() {
		payload.Date = v.Date.String()
	}
	return payload
}

// reason strips the sentinel prefix so clients see only the human message.
func reason(err, sentinel error) string {
	msg := err.Error()
	if trimmed := strings.TrimPrefix(msg, sentinel.Error()+": "); trimmed != msg {
		return trimmed
	}
	return msg
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}
