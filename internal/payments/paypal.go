package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PayPalClient implements Gateway against the PayPal Orders v2 REST API.
type PayPalClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// PayPalConfig holds client credentials and the request timeout.
type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// NewPayPalClient creates a PayPal gateway client with a bounded HTTP timeout.
func NewPayPalClient(cfg PayPalConfig, logger *zap.Logger) *PayPalClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PayPalClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

// CreateOrder creates a gateway order and returns its id and approval link.
func (p *PayPalClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"custom_id":   req.ReferenceID,
			"description": req.Description,
			"amount": map[string]string{
				"currency_code": req.Currency,
				"value":         centsToDecimal(req.AmountCents),
			},
		}},
		"application_context": map[string]string{
			"return_url": req.ReturnURL,
			"cancel_url": req.CancelURL,
		},
	}

	var out struct {
		ID    string `json:"id"`
		Links []struct {
			Href string `json:"href"`
			Rel  string `json:"rel"`
		} `json:"links"`
	}
	if err := p.do(ctx, http.MethodPost, "/v2/checkout/orders", body, &out); err != nil {
		return nil, err
	}

	order := &Order{ID: out.ID}
	for _, l := range out.Links {
		if l.Rel == "approve" {
			order.ApprovalLink = l.Href
		}
	}
	return order, nil
}

// CaptureOrder finalizes the charge for an approved order token.
func (p *PayPalClient) CaptureOrder(ctx context.Context, token string) (*CaptureResult, error) {
	var out struct {
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
					Amount struct {
						Value string `json:"value"`
					} `json:"amount"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	path := "/v2/checkout/orders/" + url.PathEscape(token) + "/capture"
	if err := p.do(ctx, http.MethodPost, path, struct{}{}, &out); err != nil {
		return nil, err
	}

	result := &CaptureResult{Status: out.Status}
	for _, pu := range out.PurchaseUnits {
		for _, capture := range pu.Payments.Captures {
			result.TransactionID = capture.ID
			result.CapturedAmountCents = decimalToCents(capture.Amount.Value)
		}
	}
	return result, nil
}

func (p *PayPalClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := p.token(ctx)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.logger.Warn("gateway error response",
			zap.Int("status", resp.StatusCode), zap.String("path", path), zap.ByteString("body", payload))
		return fmt.Errorf("gateway status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode gateway response: %w", err)
		}
	}
	return nil
}

// token returns a cached OAuth access token, refreshing when near expiry.
func (p *PayPalClient) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accessToken != "" && time.Now().Before(p.tokenExpiry) {
		return p.accessToken, nil
	}

	form := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/oauth2/token", form)
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(p.clientID, p.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	p.accessToken = out.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn)*time.Second - time.Minute)
	return p.accessToken, nil
}

func centsToDecimal(cents int) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func decimalToCents(value string) int {
	whole, frac, _ := strings.Cut(value, ".")
	w, _ := strconv.Atoi(whole)
	for len(frac) < 2 {
		frac += "0"
	}
	f, _ := strconv.Atoi(frac[:2])
	return w*100 + f
}
