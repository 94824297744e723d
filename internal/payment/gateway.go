package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoCheckoutURL means the gateway answered but gave no page to send the
	// buyer to, or could not be reached at all.
	ErrNoCheckoutURL = errors.New("payment: gateway returned no checkout url")
	ErrConfig        = errors.New("payment: invalid gateway configuration")
)

const (
	GatewaySSLCommerz = "sslcommerz"
	GatewayStripe     = "stripe"
)

type Customer struct {
	Name     string
	Email    string
	Address  string
	Phone    string
	PostCode string
	Country  string
}

// SessionRequest is the gateway-neutral description of one checkout.
type SessionRequest struct {
	TransactionID   string
	Amount          decimal.Decimal
	Currency        string
	SuccessURL      string
	FailURL         string
	CancelURL       string
	IPNURL          string
	ProductName     string
	ProductCategory string
	ItemCount       int
	Customer        Customer
}

// Gateway opens a hosted checkout page and returns its URL.
type Gateway interface {
	Name() string
	CreateSession(ctx context.Context, req SessionRequest) (string, error)
}
