package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/commercekit/checkout-backend/internal/models"
	stripeClient "github.com/commercekit/checkout-backend/internal/stripe"
)

// OrderStore defines the behaviour required from the storage client backing
// the checkout handler.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	LinkCheckoutSession(ctx context.Context, orderID int64, checkoutSessionID, paymentIntentID string) error
	MarkOrderCanceled(ctx context.Context, orderID int64) error
}

// SessionCreator is the slice of the Stripe client the checkout handler uses.
type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, params stripeClient.CheckoutSessionParams) (*stripeClient.CheckoutSession, error)
}

// SessionGetter fetches an existing checkout session from Stripe.
type SessionGetter interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*stripeClient.CheckoutSession, error)
}

// StripeClient is the full Stripe surface the HTTP routes need.
type StripeClient interface {
	SessionCreator
	SessionGetter
}

// CheckoutHandler holds dependencies for the checkout endpoint.
type CheckoutHandler struct {
	Orders            OrderStore
	Stripe            SessionCreator
	DefaultSuccessURL string
	DefaultCancelURL  string
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(orders OrderStore, stripe SessionCreator, successURL, cancelURL string) *CheckoutHandler {
	return &CheckoutHandler{
		Orders:            orders,
		Stripe:            stripe,
		DefaultSuccessURL: successURL,
		DefaultCancelURL:  cancelURL,
	}
}

var checkoutModes = map[string]bool{
	"payment":      true,
	"subscription": true,
	"setup":        true,
}

// CreateCheckout opens a Stripe Checkout session. A pending order row is
// written first so the webhook path has something to reconcile against.
func (h *CheckoutHandler) CreateCheckout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.CheckoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON payload", http.StatusBadRequest)
			return
		}

		if req.Mode == "" {
			req.Mode = "payment"
		}
		if !checkoutModes[req.Mode] {
			http.Error(w, "mode must be one of: payment, subscription, setup", http.StatusBadRequest)
			return
		}

		hasPrice := req.PriceID != ""
		hasItems := len(req.LineItems) > 0
		if hasPrice == hasItems {
			http.Error(w, "exactly one of price_id or line_items must be provided", http.StatusBadRequest)
			return
		}

		successURL := firstNonEmptyString(req.SuccessURL, h.DefaultSuccessURL)
		cancelURL := firstNonEmptyString(req.CancelURL, h.DefaultCancelURL)
		if successURL == "" || cancelURL == "" {
			http.Error(w, "success_url and cancel_url are required", http.StatusBadRequest)
			return
		}

		order := &models.Order{
			Amount:   orderAmount(req),
			Currency: strings.ToLower(firstNonEmptyString(req.Currency, "usd")),
			Metadata: req.Metadata,
			Status:   models.OrderStatusPending,
		}
		if req.Description != "" {
			order.Description = &req.Description
		}

		order, err := h.Orders.CreateOrder(r.Context(), order)
		if err != nil {
			log.Printf("CreateCheckout: failed to create order: %v", err)
			http.Error(w, "failed to create order", http.StatusInternalServerError)
			return
		}

		session, err := h.Stripe.CreateCheckoutSession(r.Context(), stripeClient.CheckoutSessionParams{
			Mode:          req.Mode,
			PriceID:       req.PriceID,
			LineItems:     req.LineItems,
			SuccessURL:    successURL,
			CancelURL:     cancelURL,
			CustomerEmail: req.CustomerEmail,
			Metadata:      req.Metadata,
		})
		if err != nil {
			log.Printf("CreateCheckout: Stripe error for order %d: %v", order.ID, err)
			if cancelErr := h.Orders.MarkOrderCanceled(r.Context(), order.ID); cancelErr != nil {
				log.Printf("CreateCheckout: failed to cancel order %d: %v", order.ID, cancelErr)
			}
			writeProviderError(w, err)
			return
		}

		// In payment mode the session already carries its intent; in
		// subscription/setup mode the intent arrives later via
		// checkout.session.completed.
		if err := h.Orders.LinkCheckoutSession(r.Context(), order.ID, session.ID, session.PaymentIntentID); err != nil {
			log.Printf("CreateCheckout: failed to link session %s to order %d: %v", session.ID, order.ID, err)
			http.Error(w, "failed to record checkout session", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.CheckoutResponse{
			SessionID: session.ID,
			URL:       session.URL,
			OrderID:   order.ID,
		})
	}
}

// GetCheckoutSession reports the current state of a checkout session so the
// success page can confirm whether payment settled.
func GetCheckoutSession(sessions SessionGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")
		if sessionID == "" {
			http.Error(w, "session ID is required", http.StatusBadRequest)
			return
		}

		session, err := sessions.GetCheckoutSession(r.Context(), sessionID)
		if err != nil {
			log.Printf("GetCheckoutSession: Stripe error for session %s: %v", sessionID, err)
			var apiErr *stripeClient.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
				http.Error(w, "checkout session not found", http.StatusNotFound)
				return
			}
			writeProviderError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"session_id":     session.ID,
			"status":         session.Status,
			"payment_status": session.PaymentStatus,
			"payment_intent": session.PaymentIntentID,
		})
	}
}

func orderAmount(req models.CheckoutRequest) int64 {
	if req.Amount > 0 {
		return req.Amount
	}
	var total int64
	for _, item := range req.LineItems {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		total += item.Amount * qty
	}
	return total
}

// writeProviderError maps a Stripe failure onto the HTTP response: request-
// attributable provider errors surface as 400 with the provider's message,
// everything else (outage, auth, timeout) as 502.
func writeProviderError(w http.ResponseWriter, err error) {
	var apiErr *stripeClient.APIError
	if errors.As(err, &apiErr) && apiErr.ClientFault() {
		http.Error(w, apiErr.Message, http.StatusBadRequest)
		return
	}
	http.Error(w, "payment provider unavailable", http.StatusBadGateway)
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
