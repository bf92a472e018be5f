package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/commercekit/checkout-backend/internal/models"
	stripeClient "github.com/commercekit/checkout-backend/internal/stripe"
)

type mockOrderStore struct {
	created      *models.Order
	linkedOrder  int64
	linkedSess   string
	linkedIntent string
	canceled     []int64
	createErr    error
}

func (m *mockOrderStore) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	created := *order
	created.ID = 7
	m.created = &created
	return &created, nil
}

func (m *mockOrderStore) LinkCheckoutSession(ctx context.Context, orderID int64, sessionID, paymentIntentID string) error {
	m.linkedOrder = orderID
	m.linkedSess = sessionID
	m.linkedIntent = paymentIntentID
	return nil
}

func (m *mockOrderStore) MarkOrderCanceled(ctx context.Context, orderID int64) error {
	m.canceled = append(m.canceled, orderID)
	return nil
}

type mockSessionCreator struct {
	calls   int
	params  stripeClient.CheckoutSessionParams
	session *stripeClient.CheckoutSession
	err     error
}

func (m *mockSessionCreator) CreateCheckoutSession(ctx context.Context, params stripeClient.CheckoutSessionParams) (*stripeClient.CheckoutSession, error) {
	m.calls++
	m.params = params
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

func doCheckout(t *testing.T, h *CheckoutHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.CreateCheckout().ServeHTTP(rr, req)
	return rr
}

func TestCreateCheckoutSuccess(t *testing.T) {
	orders := &mockOrderStore{}
	stripe := &mockSessionCreator{
		session: &stripeClient.CheckoutSession{
			ID:              "cs_1",
			URL:             "https://checkout.stripe.com/c/pay/cs_1",
			PaymentIntentID: "pi_1",
		},
	}
	h := NewCheckoutHandler(orders, stripe, "https://app/success", "https://app/cancel")

	rr := doCheckout(t, h, `{
		"price_id": "price_123",
		"success_url": "https://shop/success",
		"cancel_url": "https://shop/cancel",
		"customer_email": "buyer@example.com"
	}`)

	if rr.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d (%s)", rr.Code, rr.Body.String())
	}

	var resp models.CheckoutResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID != "cs_1" || resp.URL == "" || resp.OrderID != 7 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	if orders.created == nil || orders.created.Status != models.OrderStatusPending {
		t.Fatalf("expected a pending order, got %+v", orders.created)
	}
	if orders.linkedOrder != 7 || orders.linkedSess != "cs_1" || orders.linkedIntent != "pi_1" {
		t.Fatalf("session not linked to order: %+v", orders)
	}
	if stripe.params.Mode != "payment" {
		t.Fatalf("mode should default to payment, got %q", stripe.params.Mode)
	}
	if stripe.params.SuccessURL != "https://shop/success" {
		t.Fatalf("request success_url should win over default, got %q", stripe.params.SuccessURL)
	}
}

func TestCreateCheckoutLineItemsAmount(t *testing.T) {
	orders := &mockOrderStore{}
	stripe := &mockSessionCreator{
		session: &stripeClient.CheckoutSession{ID: "cs_2", URL: "https://x"},
	}
	h := NewCheckoutHandler(orders, stripe, "https://app/success", "https://app/cancel")

	rr := doCheckout(t, h, `{
		"line_items": [
			{"name": "Widget", "amount": 1500, "currency": "usd", "quantity": 2},
			{"name": "Gadget", "amount": 500, "currency": "usd", "quantity": 1}
		]
	}`)

	if rr.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d (%s)", rr.Code, rr.Body.String())
	}
	if orders.created.Amount != 3500 {
		t.Fatalf("expected order amount 3500, got %d", orders.created.Amount)
	}
}

func TestCreateCheckoutValidation(t *testing.T) {
	cases := map[string]string{
		"neither price nor items": `{"success_url": "https://s", "cancel_url": "https://c"}`,
		"both price and items":    `{"price_id": "price_1", "line_items": [{"name": "x", "amount": 1, "quantity": 1}], "success_url": "https://s", "cancel_url": "https://c"}`,
		"unknown mode":            `{"price_id": "price_1", "mode": "installments", "success_url": "https://s", "cancel_url": "https://c"}`,
		"bad json":                `{`,
	}

	for name, body := range cases {
		orders := &mockOrderStore{}
		stripe := &mockSessionCreator{}
		h := NewCheckoutHandler(orders, stripe, "https://app/success", "https://app/cancel")

		rr := doCheckout(t, h, body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, rr.Code)
		}
		if stripe.calls != 0 {
			t.Errorf("%s: Stripe should not be called on invalid input", name)
		}
		if orders.created != nil {
			t.Errorf("%s: no order should be created on invalid input", name)
		}
	}
}

func TestCreateCheckoutProviderClientFault(t *testing.T) {
	orders := &mockOrderStore{}
	stripe := &mockSessionCreator{
		err: &stripeClient.APIError{StatusCode: 400, Message: "No such price: 'price_bad'"},
	}
	h := NewCheckoutHandler(orders, stripe, "https://app/success", "https://app/cancel")

	rr := doCheckout(t, h, `{"price_id": "price_bad"}`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for provider client fault, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "No such price") {
		t.Fatalf("provider message should surface to caller, got %q", rr.Body.String())
	}
	if len(orders.canceled) != 1 || orders.canceled[0] != 7 {
		t.Fatalf("pending order should be canceled after provider failure: %v", orders.canceled)
	}
}

func TestCreateCheckoutProviderOutage(t *testing.T) {
	orders := &mockOrderStore{}
	stripe := &mockSessionCreator{
		err: errors.New("stripe request failed: context deadline exceeded"),
	}
	h := NewCheckoutHandler(orders, stripe, "https://app/success", "https://app/cancel")

	rr := doCheckout(t, h, `{"price_id": "price_1"}`)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for provider outage, got %d", rr.Code)
	}
	if len(orders.canceled) != 1 {
		t.Fatalf("pending order should be canceled after provider failure: %v", orders.canceled)
	}
}

func TestCreateCheckoutFallsBackToDefaultURLs(t *testing.T) {
	orders := &mockOrderStore{}
	stripe := &mockSessionCreator{
		session: &stripeClient.CheckoutSession{ID: "cs_3", URL: "https://x"},
	}
	h := NewCheckoutHandler(orders, stripe, "https://app/success", "https://app/cancel")

	rr := doCheckout(t, h, `{"price_id": "price_1"}`)

	if rr.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if stripe.params.SuccessURL != "https://app/success" || stripe.params.CancelURL != "https://app/cancel" {
		t.Fatalf("defaults not applied: %+v", stripe.params)
	}
}

type mockSessionGetter struct {
	session *stripeClient.CheckoutSession
	err     error
	gotID   string
}

func (m *mockSessionGetter) GetCheckoutSession(ctx context.Context, sessionID string) (*stripeClient.CheckoutSession, error) {
	m.gotID = sessionID
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

func getSession(stripe *mockSessionGetter, id string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Get("/api/checkout/sessions/{id}", GetCheckoutSession(stripe))

	req := httptest.NewRequest(http.MethodGet, "/api/checkout/sessions/"+id, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestGetCheckoutSessionSuccess(t *testing.T) {
	stripe := &mockSessionGetter{
		session: &stripeClient.CheckoutSession{
			ID:              "cs_9",
			Status:          "complete",
			PaymentStatus:   "paid",
			PaymentIntentID: "pi_9",
		},
	}

	rr := getSession(stripe, "cs_9")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	if stripe.gotID != "cs_9" {
		t.Fatalf("wrong session requested: %q", stripe.gotID)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp["status"] != "complete" || resp["payment_status"] != "paid" || resp["payment_intent"] != "pi_9" {
		t.Fatalf("unexpected response: %v", resp)
	}
}

func TestGetCheckoutSessionNotFound(t *testing.T) {
	stripe := &mockSessionGetter{
		err: &stripeClient.APIError{StatusCode: http.StatusNotFound, Message: "No such checkout.session"},
	}

	rr := getSession(stripe, "cs_missing")

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rr.Code)
	}
}

func TestGetCheckoutSessionProviderOutage(t *testing.T) {
	stripe := &mockSessionGetter{
		err: errors.New("stripe request failed: connection refused"),
	}

	rr := getSession(stripe, "cs_9")

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for provider outage, got %d", rr.Code)
	}
}
