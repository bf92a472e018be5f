package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/commercekit/checkout-backend/internal/config"
	"github.com/commercekit/checkout-backend/internal/models"
	stripeClient "github.com/commercekit/checkout-backend/internal/stripe"
)

type stubStore struct{}

func (s *stubStore) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	created := *order
	created.ID = 1
	return &created, nil
}

func (s *stubStore) LinkCheckoutSession(ctx context.Context, orderID int64, sessionID, paymentIntentID string) error {
	return nil
}

func (s *stubStore) MarkOrderCanceled(ctx context.Context, orderID int64) error { return nil }

func (s *stubStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return &models.Order{ID: id, Status: models.OrderStatusPending}, nil
}

func (s *stubStore) ListOrders(ctx context.Context, limit int) ([]models.Order, error) {
	return nil, nil
}

func (s *stubStore) ReconcileByPaymentIntent(ctx context.Context, paymentIntentID string, status models.OrderStatus, errorMessage *string) (*models.Order, error) {
	return &models.Order{ID: 1, Status: status}, nil
}

func (s *stubStore) AttachPaymentIntent(ctx context.Context, checkoutSessionID, paymentIntentID string) (*models.Order, error) {
	return &models.Order{ID: 1}, nil
}

func (s *stubStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return &models.User{ID: 1, Email: email}, nil
}

func (s *stubStore) UpdateUserSubscription(ctx context.Context, userID int64, status, tier, stripeCustomerID string) error {
	return nil
}

func (s *stubStore) RecordWebhookEvent(ctx context.Context, stripeEventID, eventType string, payload []byte) (bool, error) {
	return false, nil
}

func (s *stubStore) MarkWebhookProcessed(ctx context.Context, stripeEventID string) error {
	return nil
}

type stubStripeClient struct{}

func (s *stubStripeClient) CreateCheckoutSession(ctx context.Context, params stripeClient.CheckoutSessionParams) (*stripeClient.CheckoutSession, error) {
	return &stripeClient.CheckoutSession{ID: "cs_1", URL: "https://checkout"}, nil
}

func (s *stubStripeClient) GetCheckoutSession(ctx context.Context, sessionID string) (*stripeClient.CheckoutSession, error) {
	return &stripeClient.CheckoutSession{ID: sessionID, Status: "complete", PaymentStatus: "paid"}, nil
}

func newTestServer() *Server {
	cfg := config.Config{ServerAddress: ":0", AppURL: "http://localhost:3000"}
	st := &stubStore{}
	return New(cfg, Stores{
		Orders:      st,
		OrderReader: st,
		Reconcile:   st,
		Users:       st,
		Events:      st,
	}, &stubStripeClient{}, stripeClient.NewWebhookVerifier("whsec_test", 0))
}

func TestHealthRoute(t *testing.T) {
	server := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	server := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
}

func TestWebhookRouteRejectsUnsigned(t *testing.T) {
	server := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestGetCheckoutSessionRoute(t *testing.T) {
	server := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/checkout/sessions/cs_1", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if body := rr.Body.String(); !strings.Contains(body, `"status":"complete"`) {
		t.Fatalf("expected session status in body, got %s", body)
	}
}

func TestGetOrderRoute(t *testing.T) {
	server := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/orders/1", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
}
