package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-shop-orders/internal/auth"
	"github.com/ariefcatur/go-shop-orders/internal/inventory"
	"github.com/ariefcatur/go-shop-orders/internal/observability"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/payment"
)

// apiError is the body of every failed response.
type apiError struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

func classify(err error) apiError {
	var short *inventory.ShortageError
	switch {
	case errors.As(err, &short):
		return apiError{Code: "insufficient_stock", Message: "not enough stock", Status: http.StatusConflict,
			Details: map[string]any{"shortages": short.Shortages}}
	case errors.Is(err, inventory.ErrInsufficientStock):
		return apiError{Code: "insufficient_stock", Message: "not enough stock", Status: http.StatusConflict}
	case errors.Is(err, auth.ErrWrongTokenType), errors.Is(err, auth.ErrForbidden), errors.Is(err, orders.ErrForbidden):
		return apiError{Code: "forbidden", Message: "forbidden", Status: http.StatusForbidden}
	case errors.Is(err, auth.ErrUnauthenticated):
		return apiError{Code: "unauthenticated", Message: "unauthorized access", Status: http.StatusUnauthorized}
	case errors.Is(err, auth.ErrTokenExpired), errors.Is(err, auth.ErrTokenInvalid):
		return apiError{Code: "unauthenticated", Message: "invalid or expired token", Status: http.StatusUnauthorized}
	case errors.Is(err, orders.ErrNotFound):
		return apiError{Code: "not_found", Message: "order not found", Status: http.StatusNotFound}
	case errors.Is(err, orders.ErrProductNotFound), errors.Is(err, orders.ErrCategoryNotFound):
		return apiError{Code: "not_found", Message: clean(err), Status: http.StatusNotFound}
	case errors.Is(err, orders.ErrInvalidInput):
		return apiError{Code: "invalid_argument", Message: clean(err), Status: http.StatusBadRequest}
	case errors.Is(err, orders.ErrInvalidTransition), errors.Is(err, orders.ErrNotDeletable):
		return apiError{Code: "conflict", Message: clean(err), Status: http.StatusConflict}
	case errors.Is(err, payment.ErrNoCheckoutURL):
		return apiError{Code: "upstream_failure", Message: "payment gateway unavailable", Status: http.StatusBadGateway}
	default:
		return apiError{Code: "internal", Message: "internal server error", Status: http.StatusInternalServerError}
	}
}

// clean drops the package prefix of a sentinel ("orders: not found: x" -> "not found: x").
func clean(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i > 0 && !strings.Contains(msg[:i], " ") {
		msg = msg[i+2:]
	}
	return msg
}

// WriteError renders err in the JSON error envelope. Server errors are logged.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	if e.Status >= http.StatusInternalServerError {
		observability.FromContext(r.Context()).Error("request failed", zap.Error(err))
	}
	body := map[string]any{
		"success": false,
		"message": e.Message,
		"status":  e.Status,
		"error":   e.Code,
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		body["request_id"] = id
	}
	for k, v := range e.Details {
		body[k] = v
	}
	writeJSON(w, e.Status, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writePanic(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, errors.New("panic"))
}
