package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-shop-orders/internal/auth"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

// OrderService is what the order routes need from the lifecycle service.
type OrderService interface {
	CreateOrder(ctx context.Context, in orders.CreateOrderInput) (orders.CreateOrderResult, error)
	AcceptOrder(ctx context.Context, id string) (orders.Order, error)
	RejectOrder(ctx context.Context, id, note string) (orders.Order, error)
	DeleteOrder(ctx context.Context, actor orders.Actor, id string) error
	GetOrder(ctx context.Context, actor orders.Actor, id string) (orders.Order, error)
	ListBuyerOrders(ctx context.Context, buyerID string) ([]orders.Order, error)
	ListAllOrders(ctx context.Context) ([]orders.Order, error)
	GetOrderStatus(ctx context.Context, actor orders.Actor, id string) (orders.StatusEntry, error)
}

type OrdersHandler struct {
	Orders OrderService
	Auth   *auth.Authenticator
	// Timeout bounds one request's work, gateway call included.
	Timeout time.Duration
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Use(h.Auth.Require)

		r.Post("/", h.createOrder)
		r.Get("/orders", h.listMine)
		r.Get("/{orderId}", h.getOrder)
		r.Get("/{orderId}/status", h.getStatus)
		r.Delete("/{orderId}", h.deleteOrder)

		r.Group(func(r chi.Router) {
			r.Use(h.Auth.RequireAdmin)
			r.Get("/all-orders", h.listAll)
			r.Patch("/reject/{orderId}", h.rejectOrder)
			r.Patch("/accept/{orderId}", h.acceptOrder)
		})
	})
}

type createOrderReq struct {
	Products       []orders.ItemInput `json:"products"`
	OrderMethod    orders.Method      `json:"orderMethod"`
	DeliveryCharge *decimal.Decimal   `json:"deliveryCharge"`
	Note           string             `json:"note"`
	orders.Address
}

type rejectReq struct {
	Note string `json:"note"`
}

func (h *OrdersHandler) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	d := h.Timeout
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(r.Context(), d)
}

func caller(r *http.Request) (*auth.Identity, orders.Actor) {
	id, _ := auth.IdentityFromContext(r.Context())
	if id == nil {
		return &auth.Identity{}, orders.Actor{}
	}
	return id, orders.Actor{ID: id.ID, Admin: id.IsAdmin()}
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	id, _ := caller(r)

	ctx, cancel := h.ctx(r)
	defer cancel()

	res, err := h.Orders.CreateOrder(ctx, orders.CreateOrderInput{
		Buyer:          orders.Buyer{ID: id.ID, FullName: id.Name, Email: id.Email},
		Items:          req.Products,
		Method:         orders.Method(strings.ToLower(strings.TrimSpace(string(req.OrderMethod)))),
		Address:        req.Address,
		DeliveryCharge: req.DeliveryCharge,
		Note:           req.Note,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if res.Order.Method == orders.MethodOnline {
		writeJSON(w, http.StatusCreated, map[string]any{"url": res.CheckoutURL, "orderMethod": orders.MethodOnline})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"message":     "Order created",
		"order":       res.Order,
		"orderMethod": orders.MethodCash,
	})
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	_, actor := caller(r)
	ctx, cancel := h.ctx(r)
	defer cancel()

	if err := h.Orders.DeleteOrder(ctx, actor, chi.URLParam(r, "orderId")); err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Order deleted successfully"})
}

func (h *OrdersHandler) rejectOrder(w http.ResponseWriter, r *http.Request) {
	var req rejectReq
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			WriteError(w, r, err)
			return
		}
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	o, err := h.Orders.RejectOrder(ctx, chi.URLParam(r, "orderId"), req.Note)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Order rejected successfully", "order": o})
}

func (h *OrdersHandler) acceptOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	o, err := h.Orders.AcceptOrder(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Order accepted successfully", "order": o})
}

func (h *OrdersHandler) listMine(w http.ResponseWriter, r *http.Request) {
	id, _ := caller(r)
	ctx, cancel := h.ctx(r)
	defer cancel()

	list, err := h.Orders.ListBuyerOrders(ctx, id.ID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "orders": nonNil(list)})
}

func (h *OrdersHandler) listAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	list, err := h.Orders.ListAllOrders(ctx)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "orders": nonNil(list)})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	_, actor := caller(r)
	ctx, cancel := h.ctx(r)
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, actor, chi.URLParam(r, "orderId"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": o})
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	_, actor := caller(r)
	ctx, cancel := h.ctx(r)
	defer cancel()

	e, err := h.Orders.GetOrderStatus(ctx, actor, chi.URLParam(r, "orderId"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "orderId": e.OrderID, "status": e.Status, "updatedAt": e.UpdatedAt})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json body: %v", orders.ErrInvalidInput, err)
	}
	return nil
}

func nonNil(list []orders.Order) []orders.Order {
	if list == nil {
		return []orders.Order{}
	}
	return list
}
