package orders

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	DefaultDeliveryCharge = decimal.NewFromInt(50)

	hundred = decimal.NewFromInt(100)
)

// ItemInput is a line item as submitted by the client. Any price the client sends
// is never read.
type ItemInput struct {
	ProductID string `json:"product"`
	Qty       int    `json:"count"`
}

// Quote is the server-side price of an order.
type Quote struct {
	Items          []LineItem
	ProductPrice   decimal.Decimal
	DeliveryCharge decimal.Decimal
	TotalPrice     decimal.Decimal
}

// EffectiveUnitPrice is price * (1 - discount/100), discount clamped to [0,100].
// The result is unrounded.
func EffectiveUnitPrice(p Product) decimal.Decimal {
	discount := p.Discount
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(hundred) {
		discount = hundred
	}
	factor := hundred.Sub(discount).Div(hundred)
	return p.Price.Mul(factor)
}

// Price recomputes productPrice and totalPrice from the stored products.
// A nil deliveryCharge means DefaultDeliveryCharge.
func Price(items []ItemInput, products map[string]Product, deliveryCharge *decimal.Decimal) (Quote, error) {
	if len(items) == 0 {
		return Quote{}, fmt.Errorf("%w: no products in order", ErrInvalidInput)
	}
	charge := DefaultDeliveryCharge
	if deliveryCharge != nil {
		if deliveryCharge.IsNegative() {
			return Quote{}, fmt.Errorf("%w: negative delivery charge", ErrInvalidInput)
		}
		charge = *deliveryCharge
	}

	q := Quote{Items: make([]LineItem, 0, len(items)), DeliveryCharge: charge}
	for _, it := range items {
		if it.Qty <= 0 {
			return Quote{}, fmt.Errorf("%w: invalid count for product %s", ErrInvalidInput, it.ProductID)
		}
		p, ok := products[it.ProductID]
		if !ok {
			return Quote{}, fmt.Errorf("%w: %s", ErrProductNotFound, it.ProductID)
		}
		unit := EffectiveUnitPrice(p)
		q.ProductPrice = q.ProductPrice.Add(unit.Mul(decimal.NewFromInt(int64(it.Qty))))
		// UnitPrice is a display snapshot; totals use the unrounded unit.
		q.Items = append(q.Items, LineItem{ProductID: it.ProductID, Quantity: it.Qty, UnitPrice: unit.Round(2)})
	}
	q.ProductPrice = q.ProductPrice.Round(2)
	q.TotalPrice = q.ProductPrice.Add(charge)
	return q, nil
}
