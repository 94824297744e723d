package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	sslcommerzSandbox = "https://sandbox.sslcommerz.com"
	sslcommerzLive    = "https://securepay.sslcommerz.com"
	sslcommerzInit    = "/gwprocess/v4/api.php"
)

type SSLCommerzConfig struct {
	StoreID       string
	StorePassword string
	Live          bool
	// BaseURL overrides the sandbox/live host.
	BaseURL string
	HTTP    *http.Client
}

// SSLCommerz talks to the v4 session API.
type SSLCommerz struct {
	storeID  string
	password string
	endpoint string
	http     *http.Client
}

func NewSSLCommerz(cfg SSLCommerzConfig) (*SSLCommerz, error) {
	if strings.TrimSpace(cfg.StoreID) == "" || strings.TrimSpace(cfg.StorePassword) == "" {
		return nil, fmt.Errorf("%w: sslcommerz store id and password are required", ErrConfig)
	}
	base := cfg.BaseURL
	if base == "" {
		base = sslcommerzSandbox
		if cfg.Live {
			base = sslcommerzLive
		}
	}
	hc := cfg.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &SSLCommerz{
		storeID:  cfg.StoreID,
		password: cfg.StorePassword,
		endpoint: strings.TrimRight(base, "/") + sslcommerzInit,
		http:     hc,
	}, nil
}

func (s *SSLCommerz) Name() string { return GatewaySSLCommerz }

type sslcommerzReply struct {
	Status         string `json:"status"`
	FailedReason   string `json:"failedreason"`
	SessionKey     string `json:"sessionkey"`
	GatewayPageURL string `json:"GatewayPageURL"`
}

func (s *SSLCommerz) CreateSession(ctx context.Context, req SessionRequest) (string, error) {
	form := s.form(req)
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("sslcommerz: build request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(hreq)
	if err != nil {
		return "", fmt.Errorf("%w: sslcommerz: %w", ErrNoCheckoutURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: sslcommerz: read reply: %w", ErrNoCheckoutURL, err)
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("%w: sslcommerz: http %d", ErrNoCheckoutURL, resp.StatusCode)
	}
	var reply sslcommerzReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", fmt.Errorf("%w: sslcommerz: decode reply: %w", ErrNoCheckoutURL, err)
	}
	if reply.GatewayPageURL == "" {
		return "", fmt.Errorf("%w: sslcommerz: status %q: %s", ErrNoCheckoutURL, reply.Status, reply.FailedReason)
	}
	return reply.GatewayPageURL, nil
}

func (s *SSLCommerz) form(req SessionRequest) url.Values {
	c := req.Customer
	count := req.ItemCount
	if count < 1 {
		count = 1
	}
	v := url.Values{}
	v.Set("store_id", s.storeID)
	v.Set("store_passwd", s.password)
	v.Set("total_amount", req.Amount.StringFixed(2))
	v.Set("currency", req.Currency)
	v.Set("tran_id", req.TransactionID)
	v.Set("success_url", req.SuccessURL)
	v.Set("fail_url", req.FailURL)
	v.Set("cancel_url", req.CancelURL)
	if req.IPNURL != "" {
		v.Set("ipn_url", req.IPNURL)
	}
	v.Set("shipping_method", "NO")
	v.Set("num_of_item", strconv.Itoa(count))
	v.Set("product_name", req.ProductName)
	v.Set("product_category", req.ProductCategory)
	v.Set("product_profile", "general")
	v.Set("cus_name", c.Name)
	v.Set("cus_email", c.Email)
	v.Set("cus_add1", c.Address)
	v.Set("cus_add2", c.Address)
	v.Set("cus_city", c.Address)
	v.Set("cus_state", c.Address)
	v.Set("cus_postcode", c.PostCode)
	v.Set("cus_country", c.Country)
	v.Set("cus_phone", c.Phone)
	v.Set("cus_fax", c.Phone)
	return v
}
