package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

const (
	KindSuccess = "success"
	KindFail    = "fail"
	KindCancel  = "cancel"

	defaultCurrency = "BDT"
	defaultCountry  = "Bangladesh"
	defaultTimeout  = 15 * time.Second
)

type BridgeConfig struct {
	Gateway   Gateway
	ServerURL string
	Currency  string
	Country   string
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Bridge turns an order into a gateway checkout request.
type Bridge struct {
	gateway   Gateway
	serverURL string
	currency  string
	country   string
	timeout   time.Duration
	logger    *zap.Logger
}

func NewBridge(cfg BridgeConfig) (*Bridge, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("%w: gateway is required", ErrConfig)
	}
	server := strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")
	if _, err := url.ParseRequestURI(server); err != nil || server == "" {
		return nil, fmt.Errorf("%w: server url %q", ErrConfig, cfg.ServerURL)
	}
	b := &Bridge{
		gateway:   cfg.Gateway,
		serverURL: server,
		currency:  strings.ToUpper(strings.TrimSpace(cfg.Currency)),
		country:   cfg.Country,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
	}
	if b.currency == "" {
		b.currency = defaultCurrency
	}
	if b.country == "" {
		b.country = defaultCountry
	}
	if b.timeout <= 0 {
		b.timeout = defaultTimeout
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	return b, nil
}

// CallbackURL is where the gateway sends the buyer back for one outcome.
func CallbackURL(serverURL, kind, transactionID string) string {
	return strings.TrimRight(serverURL, "/") + "/payment/" + kind + "?tran_id=" + url.QueryEscape(transactionID)
}

// Request builds the gateway request for an order. products are the order's
// resolved products in line order.
func (b *Bridge) Request(o orders.Order, products []orders.Product, buyer orders.Buyer) SessionRequest {
	names := make([]string, 0, len(products))
	categories := make([]string, 0, len(products))
	seenCat := map[string]bool{}
	for _, p := range products {
		names = append(names, p.Name)
		if p.Category != nil && !seenCat[p.Category.Name] {
			seenCat[p.Category.Name] = true
			categories = append(categories, p.Category.Name)
		}
	}
	name := o.OrderName
	if strings.TrimSpace(name) == "" {
		name = buyer.FullName
	}
	count := 0
	for _, it := range o.LineItems {
		count += it.Quantity
	}
	return SessionRequest{
		TransactionID:   o.TransactionID,
		Amount:          o.TotalPrice,
		Currency:        b.currency,
		SuccessURL:      CallbackURL(b.serverURL, KindSuccess, o.TransactionID),
		FailURL:         CallbackURL(b.serverURL, KindFail, o.TransactionID),
		CancelURL:       CallbackURL(b.serverURL, KindCancel, o.TransactionID),
		IPNURL:          b.serverURL + "/payment/notification",
		ProductName:     strings.Join(names, ", "),
		ProductCategory: strings.Join(categories, ", "),
		ItemCount:       count,
		Customer: Customer{
			Name:     name,
			Email:    buyer.Email,
			Address:  o.Address.Line(),
			Phone:    o.PhoneNumber,
			PostCode: o.PostCode,
			Country:  b.country,
		},
	}
}

// OpenSession satisfies orders.CheckoutOpener.
func (b *Bridge) OpenSession(ctx context.Context, o orders.Order, products []orders.Product, buyer orders.Buyer) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req := b.Request(o, products, buyer)
	start := time.Now()
	u, err := b.gateway.CreateSession(ctx, req)
	if err != nil {
		if !errors.Is(err, ErrNoCheckoutURL) {
			err = fmt.Errorf("%w: %w", ErrNoCheckoutURL, err)
		}
		return "", err
	}
	if u == "" {
		return "", ErrNoCheckoutURL
	}
	b.logger.Info("payment session opened",
		zap.String("gateway", b.gateway.Name()),
		zap.String("transaction_id", o.TransactionID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.Duration("latency", time.Since(start)),
	)
	return u, nil
}
