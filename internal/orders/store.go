package orders

import (
	"context"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/inventory"
)

// Store is the persistence boundary of the lifecycle service. Every state change
// goes through InTx so the order row and the product counters move together.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context, buyerID string) ([]Order, error) // "" lists every order
	SetPaymentURL(ctx context.Context, id string, url *string) error
}

// Tx is the set of row-locking operations available inside a transaction.
type Tx interface {
	inventory.Adjuster

	// LockProducts returns the requested products with their category. Unknown
	// ids are simply absent from the map.
	LockProducts(ctx context.Context, ids []string) (map[string]Product, error)
	InsertOrder(ctx context.Context, o Order) error
	LockOrder(ctx context.Context, id string) (Order, error)
	LockOrderByTransaction(ctx context.Context, transactionID string) (Order, error)
	UpdateStatus(ctx context.Context, id string, s Status, note string, at time.Time) error
	DeleteOrder(ctx context.Context, id string) error
}

// StatusEntry is the cached view of an order's status. A Deleted entry is a
// tombstone: the order is gone and older entries must not replace it.
type StatusEntry struct {
	OrderID   string    `json:"order_id"`
	BuyerID   string    `json:"buyer_id"`
	Status    Status    `json:"status"`
	Deleted   bool      `json:"deleted,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusCache fronts status reads. Misses return ok=false and a nil error.
// Set must keep whichever entry has the later UpdatedAt.
type StatusCache interface {
	Get(ctx context.Context, orderID string) (StatusEntry, bool, error)
	Set(ctx context.Context, e StatusEntry) error
}

// CheckoutOpener opens a payment session for an online order and returns the
// gateway checkout URL.
type CheckoutOpener interface {
	OpenSession(ctx context.Context, o Order, products []Product, b Buyer) (string, error)
}

// Actor is the caller on whose behalf an operation runs.
type Actor struct {
	ID    string
	Admin bool
}

func (a Actor) canSee(o Order) bool { return a.Admin || (a.ID != "" && a.ID == o.BuyerID) }
