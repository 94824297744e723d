package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// Currencies whose Stripe minor unit is not 1/100. Three-decimal amounts must
// end in 0.
var (
	zeroDecimal = map[string]bool{
		"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
		"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
		"vuv": true, "xaf": true, "xof": true, "xpf": true,
	}
	threeDecimal = map[string]bool{"bhd": true, "jod": true, "kwd": true, "omr": true, "tnd": true}
)

// minorUnits converts amount to the integer Stripe expects for currency.
func minorUnits(amount decimal.Decimal, currency string) int64 {
	switch c := strings.ToLower(currency); {
	case zeroDecimal[c]:
		return amount.Round(0).IntPart()
	case threeDecimal[c]:
		return amount.Round(2).Shift(3).IntPart()
	default:
		return amount.Shift(2).Round(0).IntPart()
	}
}

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type StripeConfig struct {
	APIKey   string
	Backends *stripe.Backends
	sessions stripeSessionAPI
}

// Stripe opens hosted Checkout Sessions. Stripe has no separate failure
// redirect; an abandoned or failed checkout comes back on the cancel URL.
type Stripe struct {
	sessions stripeSessionAPI
}

func NewStripe(cfg StripeConfig) (*Stripe, error) {
	if cfg.sessions != nil {
		return &Stripe{sessions: cfg.sessions}, nil
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("%w: stripe api key is required", ErrConfig)
	}
	sc := client.New(key, cfg.Backends)
	return &Stripe{sessions: sc.CheckoutSessions}, nil
}

func (s *Stripe) Name() string { return GatewayStripe }

func (s *Stripe) CreateSession(ctx context.Context, req SessionRequest) (string, error) {
	if s == nil || s.sessions == nil {
		return "", errors.New("stripe: gateway is nil")
	}
	amount := minorUnits(req.Amount, req.Currency)
	name := req.ProductName
	if name == "" {
		name = "Order " + req.TransactionID
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.TransactionID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
		}},
		Metadata: map[string]string{"tran_id": req.TransactionID},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"tran_id": req.TransactionID},
		},
	}
	if req.Customer.Email != "" {
		params.CustomerEmail = stripe.String(req.Customer.Email)
	}
	if req.ProductCategory != "" {
		params.LineItems[0].PriceData.ProductData.Description = stripe.String(req.ProductCategory)
	}
	params.Context = ctx
	params.SetIdempotencyKey("checkout-" + req.TransactionID)

	session, err := s.sessions.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: stripe: create checkout session: %w", ErrNoCheckoutURL, err)
	}
	if session == nil || session.URL == "" {
		return "", fmt.Errorf("%w: stripe: session has no url", ErrNoCheckoutURL)
	}
	return session.URL, nil
}
