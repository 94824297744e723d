package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-shop-orders/internal/observability"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/payment"
)

type PaymentCallbacks interface {
	Handle(ctx context.Context, tranID, kind string) (orders.Order, error)
}

// PaymentHandler receives the gateway's browser redirects and IPN posts. The
// buyer is always sent back to the storefront whatever the outcome.
type PaymentHandler struct {
	Callbacks PaymentCallbacks
	ClientURL string
}

func (h *PaymentHandler) Register(r chi.Router) {
	r.Route("/payment", func(r chi.Router) {
		for _, kind := range []string{payment.KindSuccess, payment.KindFail, payment.KindCancel} {
			hf := h.redirect(kind)
			r.Post("/"+kind, hf)
			r.Get("/"+kind, hf)
		}
		r.Post("/notification", h.notification)
	})
}

func (h *PaymentHandler) redirect(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tranID := tranIDOf(r)
		if _, err := h.Callbacks.Handle(r.Context(), tranID, kind); err != nil && !errors.Is(err, payment.ErrDuplicateCallback) {
			observability.FromContext(r.Context()).Warn("payment callback",
				zap.String("kind", kind),
				zap.String("transaction_id", tranID),
				zap.Error(err),
			)
		}
		http.Redirect(w, r, h.ClientURL+"/", http.StatusSeeOther)
	}
}

// notification handles the SSLCommerz IPN. Unknown statuses are acknowledged and
// ignored so the gateway stops retrying.
func (h *PaymentHandler) notification(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		WriteError(w, r, orders.ErrInvalidInput)
		return
	}
	kind, ok := payment.IPNKind(r.PostForm.Get("status"))
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "applied": false})
		return
	}
	o, err := h.Callbacks.Handle(r.Context(), tranIDOf(r), kind)
	switch {
	case errors.Is(err, payment.ErrDuplicateCallback), errors.Is(err, orders.ErrInvalidTransition):
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "applied": false})
	case err != nil:
		WriteError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "applied": true, "status": o.Status})
	}
}

func tranIDOf(r *http.Request) string {
	if id := r.URL.Query().Get("tran_id"); id != "" {
		return id
	}
	_ = r.ParseForm()
	return r.PostForm.Get("tran_id")
}
