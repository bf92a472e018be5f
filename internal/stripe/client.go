package stripe

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
	"time"

	"github.com/commercekit/checkout-backend/internal/models"
)

const defaultTimeout = 10 * time.Second

// Client wraps Stripe API calls using the REST API directly (no SDK dependency).
type Client struct {
	secretKey  string
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new Stripe API client. A non-positive timeout falls back
// to the default.
func NewClient(secretKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    "https://api.stripe.com/v1",
	}
}

// CheckoutSessionParams captures everything forwarded to Stripe when opening a
// hosted checkout page. Exactly one of PriceID and LineItems is expected; the
// caller validates this before reaching the client.
type CheckoutSessionParams struct {
	Mode          string
	PriceID       string
	LineItems     []models.LineItem
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	Metadata      map[string]string
}

// CheckoutSession is the subset of Stripe's session object this service uses.
type CheckoutSession struct {
	ID              string
	URL             string
	Status          string
	PaymentStatus   string
	PaymentIntentID string
	CustomerID      string
}

func sessionFromResponse(resp map[string]interface{}) *CheckoutSession {
	session := &CheckoutSession{}
	session.ID, _ = resp["id"].(string)
	session.URL, _ = resp["url"].(string)
	session.Status, _ = resp["status"].(string)
	session.PaymentStatus, _ = resp["payment_status"].(string)
	session.PaymentIntentID, _ = resp["payment_intent"].(string)
	session.CustomerID, _ = resp["customer"].(string)
	return session
}

// CreateCheckoutSession opens a Stripe Checkout session and returns its ID,
// hosted page URL, and payment intent handle (present in payment mode).
func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	data := url.Values{}
	data.Set("mode", params.Mode)
	data.Set("success_url", params.SuccessURL)
	data.Set("cancel_url", params.CancelURL)

	if params.PriceID != "" {
		data.Set("line_items[0][price]", params.PriceID)
		data.Set("line_items[0][quantity]", "1")
	}
	for i, item := range params.LineItems {
		prefix := fmt.Sprintf("line_items[%d]", i)
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		data.Set(prefix+"[quantity]", strconv.FormatInt(qty, 10))
		if item.PriceID != "" {
			data.Set(prefix+"[price]", item.PriceID)
			continue
		}
		data.Set(prefix+"[price_data][currency]", item.Currency)
		data.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(item.Amount, 10))
		data.Set(prefix+"[price_data][product_data][name]", item.Name)
	}

	if params.CustomerEmail != "" {
		data.Set("customer_email", params.CustomerEmail)
	}
	for k, v := range params.Metadata {
		data.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	resp, err := c.post(ctx, "/checkout/sessions", data)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	session := sessionFromResponse(resp)
	if session.ID == "" {
		return nil, fmt.Errorf("create checkout session: missing session ID in response")
	}

	return session, nil
}

// GetCheckoutSession fetches a checkout session by ID. The success page polls
// this to learn whether the hosted checkout settled.
func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	resp, err := c.get(ctx, "/checkout/sessions/"+sessionID)
	if err != nil {
		return nil, fmt.Errorf("get checkout session: %w", err)
	}

	return sessionFromResponse(resp), nil
}

// APIError is returned when Stripe answers with an error status. StatusCode
// distinguishes caller mistakes (4xx, e.g. an unknown price) from provider or
// configuration failures.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe API error (%d): %s", e.StatusCode, e.Message)
}

// ClientFault reports whether the error is attributable to the request rather
// than to Stripe itself.
func (e *APIError) ClientFault() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// HTTP helpers

func (c *Client) post(ctx context.Context, path string, data url.Values) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.secretKey, "")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.doRequest(req)
}

func (c *Client) get(ctx context.Context, path string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.secretKey, "")

	return c.doRequest(req)
}

func (c *Client) doRequest(req *http.Request) (map[string]interface{}, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stripe request failed: %w", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("read stripe response: %w", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("parse stripe response: %w", err)
	}

	if resp.StatusCode >= 400 {
		errObj, _ := result["error"].(map[string]interface{})
		msg := "unknown error"
		if errObj != nil {
			if m, ok := errObj["message"].(string); ok {
				msg = m
			}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	return result, nil
}
