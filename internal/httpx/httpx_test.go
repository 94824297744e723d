package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-shop-orders/internal/auth"
	"github.com/ariefcatur/go-shop-orders/internal/inventory"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/payment"
)

const secret = "test-secret"

type fakeOrders struct {
	created  orders.CreateOrderInput
	result   orders.CreateOrderResult
	err      error
	actor    orders.Actor
	rejected string
	note     string
	list     []orders.Order
}

func (f *fakeOrders) CreateOrder(_ context.Context, in orders.CreateOrderInput) (orders.CreateOrderResult, error) {
	f.created = in
	return f.result, f.err
}

func (f *fakeOrders) AcceptOrder(_ context.Context, id string) (orders.Order, error) {
	return orders.Order{ID: id, Status: orders.StatusAccepted}, f.err
}

func (f *fakeOrders) RejectOrder(_ context.Context, id, note string) (orders.Order, error) {
	f.rejected, f.note = id, note
	return orders.Order{ID: id, Status: orders.StatusDeclined, Note: note}, f.err
}

func (f *fakeOrders) DeleteOrder(_ context.Context, actor orders.Actor, _ string) error {
	f.actor = actor
	return f.err
}

func (f *fakeOrders) GetOrder(_ context.Context, actor orders.Actor, id string) (orders.Order, error) {
	f.actor = actor
	return orders.Order{ID: id}, f.err
}

func (f *fakeOrders) ListBuyerOrders(context.Context, string) ([]orders.Order, error) {
	return f.list, f.err
}

func (f *fakeOrders) ListAllOrders(context.Context) ([]orders.Order, error) { return f.list, f.err }

func (f *fakeOrders) GetOrderStatus(_ context.Context, _ orders.Actor, id string) (orders.StatusEntry, error) {
	return orders.StatusEntry{OrderID: id, Status: orders.StatusPending}, f.err
}

func newTestRouter(t *testing.T, svc OrderService, cb PaymentCallbacks) http.Handler {
	t.Helper()
	v, err := auth.NewVerifier(secret)
	require.NoError(t, err)
	r := NewRouter(nil, nil)
	(&OrdersHandler{Orders: svc, Auth: auth.NewAuthenticator(v, WriteError)}).Register(r)
	(&PaymentHandler{Callbacks: cb, ClientURL: "https://shop.example"}).Register(r)
	return r
}

func bearer(t *testing.T, userType string) string {
	t.Helper()
	tok, err := auth.Sign(secret, auth.Claims{
		UserID: "u-" + userType, FullName: "Test " + userType, Email: userType + "@example.com",
		UserType: userType, Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	require.NoError(t, err)
	return "Bearer " + tok
}

func do(h http.Handler, method, target, authz, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

const createBody = `{
	"products": [{"product": "p1", "count": 2}],
	"orderMethod": "cash",
	"deliveryCharge": "60",
	"orderName": "Rahim", "division": "Dhaka", "district": "Dhaka",
	"subDistrict": "Mirpur", "postCode": "1216", "phoneNumber": "017"
}`

func TestCreateCashOrder(t *testing.T) {
	svc := &fakeOrders{result: orders.CreateOrderResult{Order: orders.Order{ID: "o1", Method: orders.MethodCash, Status: orders.StatusConfirmed}}}
	h := newTestRouter(t, svc, nil)

	rec := do(h, http.MethodPost, "/orders", bearer(t, "customer"), createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Order created", body["message"])
	assert.Equal(t, "cash", body["orderMethod"])

	in := svc.created
	assert.Equal(t, "u-customer", in.Buyer.ID)
	assert.Equal(t, "customer@example.com", in.Buyer.Email)
	assert.Equal(t, []orders.ItemInput{{ProductID: "p1", Qty: 2}}, in.Items)
	assert.Equal(t, orders.MethodCash, in.Method)
	require.NotNil(t, in.DeliveryCharge)
	assert.True(t, in.DeliveryCharge.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, "Mirpur", in.Address.SubDistrict)
}

func TestCreateOnlineOrder(t *testing.T) {
	u := "https://gw.example/pay/1"
	svc := &fakeOrders{result: orders.CreateOrderResult{Order: orders.Order{ID: "o1", Method: orders.MethodOnline}, CheckoutURL: &u}}
	h := newTestRouter(t, svc, nil)

	rec := do(h, http.MethodPost, "/orders", bearer(t, "customer"), strings.Replace(createBody, `"cash"`, `"online"`, 1))
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, u, body["url"])
	assert.Equal(t, "online", body["orderMethod"])

	svc.result.CheckoutURL = nil
	rec = do(h, http.MethodPost, "/orders", bearer(t, "customer"), strings.Replace(createBody, `"cash"`, `"online"`, 1))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Nil(t, decode(t, rec)["url"])
}

func TestCreateOrderErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"invalid", fmt.Errorf("%w: no products in order", orders.ErrInvalidInput), http.StatusBadRequest, "invalid_argument"},
		{"unknown product", fmt.Errorf("%w: p9", orders.ErrProductNotFound), http.StatusNotFound, "not_found"},
		{"shortage", fmt.Errorf("ledger: %w", &inventory.ShortageError{Shortages: []inventory.Shortage{{ProductID: "p1", Required: 2, Available: 1}}}), http.StatusConflict, "insufficient_stock"},
		{"internal", fmt.Errorf("db down"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestRouter(t, &fakeOrders{err: tc.err}, nil)
			rec := do(h, http.MethodPost, "/orders", bearer(t, "customer"), createBody)
			assert.Equal(t, tc.code, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tc.kind, body["error"])
			assert.EqualValues(t, tc.code, body["status"])
			assert.NotEmpty(t, body["request_id"])
			if tc.kind == "insufficient_stock" {
				assert.Len(t, body["shortages"], 1)
			}
		})
	}
}

func TestCreateOrderBadJSON(t *testing.T) {
	h := newTestRouter(t, &fakeOrders{}, nil)
	rec := do(h, http.MethodPost, "/orders", bearer(t, "customer"), `{"products":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthGuards(t *testing.T) {
	h := newTestRouter(t, &fakeOrders{}, nil)

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/orders/orders", "", "").Code)
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodGet, "/orders/all-orders", bearer(t, "customer"), "").Code)
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodPatch, "/orders/accept/o1", bearer(t, "vendor"), "").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/orders/all-orders", bearer(t, "admin"), "").Code)
}

func TestAdminActions(t *testing.T) {
	svc := &fakeOrders{}
	h := newTestRouter(t, svc, nil)

	rec := do(h, http.MethodPatch, "/orders/reject/o7", bearer(t, "admin"), `{"note":"stock issue"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Order rejected successfully", decode(t, rec)["message"])
	assert.Equal(t, "o7", svc.rejected)
	assert.Equal(t, "stock issue", svc.note)

	rec = do(h, http.MethodPatch, "/orders/reject/o8", bearer(t, "admin"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", svc.note)

	rec = do(h, http.MethodPatch, "/orders/accept/o7", bearer(t, "admin"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Order accepted successfully", decode(t, rec)["message"])

	svc.err = fmt.Errorf("%w: order o7 is accepted", orders.ErrInvalidTransition)
	rec = do(h, http.MethodPatch, "/orders/accept/o7", bearer(t, "admin"), "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteAndReads(t *testing.T) {
	svc := &fakeOrders{}
	h := newTestRouter(t, svc, nil)

	rec := do(h, http.MethodDelete, "/orders/o1", bearer(t, "customer"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Order deleted successfully", decode(t, rec)["message"])
	assert.Equal(t, orders.Actor{ID: "u-customer"}, svc.actor)

	rec = do(h, http.MethodGet, "/orders/orders", bearer(t, "customer"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decode(t, rec)["orders"])

	rec = do(h, http.MethodGet, "/orders/o1", bearer(t, "admin"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orders.Actor{ID: "u-admin", Admin: true}, svc.actor)

	rec = do(h, http.MethodGet, "/orders/o1/status", bearer(t, "customer"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", decode(t, rec)["status"])

	svc.err = fmt.Errorf("%w: order o1", orders.ErrNotDeletable)
	assert.Equal(t, http.StatusConflict, do(h, http.MethodDelete, "/orders/o1", bearer(t, "customer"), "").Code)
	svc.err = orders.ErrForbidden
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodDelete, "/orders/o1", bearer(t, "customer"), "").Code)
	svc.err = orders.ErrNotFound
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/orders/o1", bearer(t, "customer"), "").Code)
}

type fakeCallbacks struct {
	calls []string
	err   error
}

func (f *fakeCallbacks) Handle(_ context.Context, tranID, kind string) (orders.Order, error) {
	f.calls = append(f.calls, kind+":"+tranID)
	return orders.Order{Status: orders.StatusAccepted, UpdatedAt: time.Now()}, f.err
}

func TestPaymentRedirects(t *testing.T) {
	cb := &fakeCallbacks{}
	h := newTestRouter(t, &fakeOrders{}, cb)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		for _, kind := range []string{"success", "fail", "cancel"} {
			rec := do(h, method, "/payment/"+kind+"?tran_id=tx-1", "", "")
			assert.Equal(t, http.StatusSeeOther, rec.Code)
			assert.Equal(t, "https://shop.example/", rec.Header().Get("Location"))
		}
	}
	assert.Len(t, cb.calls, 6)
	assert.Equal(t, "success:tx-1", cb.calls[0])

	cb.err = orders.ErrNotFound
	rec := do(h, http.MethodPost, "/payment/success?tran_id=nope", "", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code, "unknown transactions still redirect")
}

func TestPaymentNotification(t *testing.T) {
	cb := &fakeCallbacks{}
	h := newTestRouter(t, &fakeOrders{}, cb)

	post := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/payment/notification", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := post(url.Values{"tran_id": {"tx-2"}, "status": {"VALID"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["applied"])
	assert.Equal(t, []string{"success:tx-2"}, cb.calls)

	rec = post(url.Values{"tran_id": {"tx-2"}, "status": {"UNATTEMPTED"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["applied"])

	cb.err = payment.ErrDuplicateCallback
	rec = post(url.Values{"tran_id": {"tx-2"}, "status": {"VALID"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["applied"])

	cb.err = orders.ErrNotFound
	rec = post(url.Values{"tran_id": {"tx-3"}, "status": {"FAILED"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	r := NewRouter(nil, map[string]HealthCheck{"redis": func(*http.Request) error { return nil }})
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/healthz", "", "").Code)

	r = NewRouter(nil, map[string]HealthCheck{"redis": func(*http.Request) error { return fmt.Errorf("down") }})
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/healthz", "", "").Code)
}

func TestRecoveredPanicUsesEnvelope(t *testing.T) {
	r := NewRouter(nil, nil)
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
	rec := do(r, http.MethodGet, "/boom", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal", decode(t, rec)["error"])
}
