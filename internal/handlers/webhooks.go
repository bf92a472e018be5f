package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/commercekit/checkout-backend/internal/models"
	"github.com/commercekit/checkout-backend/internal/store"
	stripeClient "github.com/commercekit/checkout-backend/internal/stripe"
)

const maxWebhookBodyBytes = 65536

// ReconcileStore defines the storage operations the webhook handler drives.
type ReconcileStore interface {
	ReconcileByPaymentIntent(ctx context.Context, paymentIntentID string, status models.OrderStatus, errorMessage *string) (*models.Order, error)
	AttachPaymentIntent(ctx context.Context, checkoutSessionID, paymentIntentID string) (*models.Order, error)
}

// WebhookUserStore updates user billing linkage from webhook events.
type WebhookUserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserSubscription(ctx context.Context, userID int64, status, tier, stripeCustomerID string) error
}

// WebhookEventStore records verified deliveries for replay detection. seen
// must report true only for events that were marked processed.
type WebhookEventStore interface {
	RecordWebhookEvent(ctx context.Context, stripeEventID, eventType string, payload []byte) (seen bool, err error)
	MarkWebhookProcessed(ctx context.Context, stripeEventID string) error
}

// SignatureVerifier checks a raw body against its signature header.
type SignatureVerifier interface {
	Verify(body []byte, header string) error
}

// WebhookHandler holds dependencies for the Stripe webhook endpoint.
type WebhookHandler struct {
	Orders   ReconcileStore
	Users    WebhookUserStore
	Events   WebhookEventStore
	Verifier SignatureVerifier
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(orders ReconcileStore, users WebhookUserStore, events WebhookEventStore, verifier SignatureVerifier) *WebhookHandler {
	return &WebhookHandler{Orders: orders, Users: users, Events: events, Verifier: verifier}
}

// HandleWebhook verifies, decodes, and dispatches Stripe webhook events.
// Signature and payload failures reject with 400 so Stripe retries; once an
// event is verified the handler acknowledges with 200 even when no order
// matches, because a retry of the same delivery cannot do better.
func (h *WebhookHandler) HandleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		if err := h.Verifier.Verify(body, r.Header.Get("Stripe-Signature")); err != nil {
			log.Printf("[webhook] signature rejected: %v", err)
			if errors.Is(err, stripeClient.ErrMissingSignature) {
				http.Error(w, "missing Stripe signature header", http.StatusBadRequest)
			} else {
				http.Error(w, "invalid Stripe signature", http.StatusBadRequest)
			}
			return
		}

		event, err := stripeClient.DecodeEvent(body)
		if err != nil {
			log.Printf("[webhook] failed to decode event: %v", err)
			http.Error(w, "invalid webhook payload", http.StatusBadRequest)
			return
		}

		log.Printf("[webhook] received event %s (type: %s)", event.EventID(), event.EventType())

		// seen is true only when an earlier delivery of this event ID was
		// fully processed. A delivery that ended in a 500 leaves the row
		// unstamped, so the provider retry falls through and reconciles.
		if event.EventID() != "" {
			seen, err := h.Events.RecordWebhookEvent(r.Context(), event.EventID(), event.EventType(), body)
			if err != nil {
				log.Printf("[webhook] failed to record event %s: %v", event.EventID(), err)
			} else if seen {
				log.Printf("[webhook] event %s already processed, acknowledging replay", event.EventID())
				writeWebhookAck(w, event.EventType())
				return
			}
		}

		var handleErr error
		switch ev := event.(type) {
		case stripeClient.PaymentIntentSucceeded:
			handleErr = h.handlePaymentIntentSucceeded(r.Context(), ev)

		case stripeClient.PaymentIntentFailed:
			handleErr = h.handlePaymentIntentFailed(r.Context(), ev)

		case stripeClient.CheckoutSessionCompleted:
			handleErr = h.handleCheckoutCompleted(r.Context(), ev)

		default:
			log.Printf("[webhook] unhandled event type: %s", event.EventType())
		}

		if handleErr != nil {
			// Only an internal inconsistency escapes the ack contract.
			log.Printf("[webhook] event %s: %v", event.EventID(), handleErr)
			http.Error(w, "internal inconsistency while processing event", http.StatusInternalServerError)
			return
		}

		if event.EventID() != "" {
			if err := h.Events.MarkWebhookProcessed(r.Context(), event.EventID()); err != nil {
				log.Printf("[webhook] failed to mark event %s processed: %v", event.EventID(), err)
			}
		}

		writeWebhookAck(w, event.EventType())
	}
}

func (h *WebhookHandler) handlePaymentIntentSucceeded(ctx context.Context, ev stripeClient.PaymentIntentSucceeded) error {
	order, err := h.Orders.ReconcileByPaymentIntent(ctx, ev.Intent.ID, models.OrderStatusPaid, nil)
	if errors.Is(err, store.ErrOrderNotFound) {
		log.Printf("[webhook] no order found for payment intent %s", ev.Intent.ID)
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("[webhook] order %d marked as paid (intent %s)", order.ID, ev.Intent.ID)
	return nil
}

func (h *WebhookHandler) handlePaymentIntentFailed(ctx context.Context, ev stripeClient.PaymentIntentFailed) error {
	var errMsg *string
	if msg := ev.Intent.ErrorMessage(); msg != "" {
		errMsg = &msg
	}

	order, err := h.Orders.ReconcileByPaymentIntent(ctx, ev.Intent.ID, models.OrderStatusFailed, errMsg)
	if errors.Is(err, store.ErrOrderNotFound) {
		log.Printf("[webhook] no order found for payment intent %s", ev.Intent.ID)
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("[webhook] order %d marked as failed (intent %s)", order.ID, ev.Intent.ID)
	return nil
}

// handleCheckoutCompleted backfills the payment intent onto the order created
// at checkout time and, for subscription checkouts, records the customer
// linkage on the user.
func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, ev stripeClient.CheckoutSessionCompleted) error {
	if ev.Session.PaymentIntentID != "" {
		_, err := h.Orders.AttachPaymentIntent(ctx, ev.Session.ID, ev.Session.PaymentIntentID)
		if errors.Is(err, store.ErrOrderNotFound) {
			log.Printf("[webhook] no order found for checkout session %s", ev.Session.ID)
		} else if err != nil {
			return err
		}
	}

	if ev.Session.Mode != "subscription" || ev.Session.CustomerEmail == "" {
		return nil
	}

	user, err := h.Users.GetUserByEmail(ctx, ev.Session.CustomerEmail)
	if errors.Is(err, store.ErrUserNotFound) {
		log.Printf("[webhook] checkout %s: no user for %s", ev.Session.ID, ev.Session.CustomerEmail)
		return nil
	}
	if err != nil {
		log.Printf("[webhook] checkout %s: user lookup failed: %v", ev.Session.ID, err)
		return nil
	}

	tier := ev.Session.Metadata["tier"]
	if err := h.Users.UpdateUserSubscription(ctx, user.ID, "active", tier, ev.Session.CustomerID); err != nil {
		log.Printf("[webhook] checkout %s: failed to update user %d subscription: %v", ev.Session.ID, user.ID, err)
	}
	return nil
}

func writeWebhookAck(w http.ResponseWriter, eventType string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "success",
		"event":  eventType,
	})
}
