package orders

import (
	"context"
	"encoding/json"
	"time"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderDeleted       = "OrderDeleted"
	EventPaymentSession     = "PaymentSessionOpened"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// Event is what the service hands to an EventPublisher; transports wrap it in an
// Envelope.
type Event struct {
	Type    string
	OrderID string
	Payload any
}

// EventPublisher delivers lifecycle events. Publishing is best effort: the
// service logs a failure and carries on.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID       string    `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	BuyerID       string    `json:"buyer_id"`
	Method        Method    `json:"order_method"`
	Status        Status    `json:"status"`
	Items         []ItemQty `json:"items"`
	TotalPrice    string    `json:"total_price"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type OrderStatusChangedPayload struct {
	OrderID       string    `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	BuyerID       string    `json:"buyer_id"`
	From          Status    `json:"from"`
	To            Status    `json:"to"`
	Trigger       Trigger   `json:"trigger"`
	Restocked     bool      `json:"restocked"`
	Note          string    `json:"note,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type OrderDeletedPayload struct {
	OrderID   string    `json:"order_id"`
	BuyerID   string    `json:"buyer_id"`
	Status    Status    `json:"status"`
	Restocked bool      `json:"restocked"`
	DeletedAt time.Time `json:"deleted_at"`
}

type PaymentSessionPayload struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	Opened        bool   `json:"opened"`
}

func toItemQty(items []LineItem) []ItemQty {
	out := make([]ItemQty, 0, len(items))
	for _, it := range items {
		out = append(out, ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	return out
}
