package orders

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-shop-orders/internal/inventory"
)

// OwnerKind tags which account collection Product.AddedBy points into.
type OwnerKind string

const (
	OwnerVendor OwnerKind = "vendor"
	OwnerAdmin  OwnerKind = "admin"
)

type Category struct {
	ID   string
	Name string
}

type Product struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	Discount    decimal.Decimal // percent, 0-100
	Stock       int
	Sold        int
	CategoryID  string
	Category    *Category
	AddedBy     string
	AddedByKind OwnerKind
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Method string

const (
	MethodCash   Method = "cash"
	MethodOnline Method = "online"
)

func (m Method) Valid() bool { return m == MethodCash || m == MethodOnline }

// InitialStatus is the explicit status an order of method m starts in.
func (m Method) InitialStatus() Status {
	if m == MethodOnline {
		return StatusPending
	}
	return StatusConfirmed
}

// LineItem is the quantity snapshot taken at order time.
type LineItem struct {
	ProductID string          `json:"product"`
	Quantity  int             `json:"count"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type Address struct {
	OrderName   string `json:"orderName"`
	Division    string `json:"division"`
	District    string `json:"district"`
	SubDistrict string `json:"subDistrict"`
	PostCode    string `json:"postCode"`
	PhoneNumber string `json:"phoneNumber"`
	HouseNo     string `json:"houseNo,omitempty"`
}

// Missing lists required address fields that are blank.
func (a Address) Missing() []string {
	var out []string
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			out = append(out, name)
		}
	}
	check("orderName", a.OrderName)
	check("division", a.Division)
	check("district", a.District)
	check("subDistrict", a.SubDistrict)
	check("postCode", a.PostCode)
	check("phoneNumber", a.PhoneNumber)
	return out
}

// Line formats the address the way the payment gateway expects it on one line.
func (a Address) Line() string {
	return a.Division + ", " + a.District + ", " + a.SubDistrict + ", House No: " + a.HouseNo
}

type Order struct {
	ID             string          `json:"id"`
	LineItems      []LineItem      `json:"products"`
	BuyerID        string          `json:"orderedBy"`
	Method         Method          `json:"orderMethod"`
	DeliveryCharge decimal.Decimal `json:"deliveryCharge"`
	ProductPrice   decimal.Decimal `json:"productPrice"`
	TotalPrice     decimal.Decimal `json:"totalPrice"`
	TransactionID  string          `json:"tranxId"`
	Status         Status          `json:"status"`
	PaymentURL     *string         `json:"paymentUrl"`
	Note           string          `json:"note,omitempty"`
	Address
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Lines converts the order's items into ledger input.
func (o Order) Lines() []inventory.Line {
	out := make([]inventory.Line, 0, len(o.LineItems))
	for _, it := range o.LineItems {
		out = append(out, inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

// Buyer is the resolved caller placing an order.
type Buyer struct {
	ID       string
	FullName string
	Email    string
}
