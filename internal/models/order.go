package models

import "time"

// OrderStatus is the closed set of payment lifecycle states an order can be in.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusRefunded   OrderStatus = "refunded"
	OrderStatusCanceled   OrderStatus = "canceled"
)

// Valid reports whether s is one of the recognized order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusPaid,
		OrderStatusFailed, OrderStatusRefunded, OrderStatusCanceled:
		return true
	}
	return false
}

// Order tracks a single purchase and its payment state. The Stripe payment
// intent ID is the join key between a checkout session and the asynchronous
// webhook events that settle it.
type Order struct {
	ID                      int64             `json:"id"`
	UserID                  *int64            `json:"user_id,omitempty"`
	Amount                  int64             `json:"amount"`
	Currency                string            `json:"currency"`
	Description             *string           `json:"description,omitempty"`
	StripePaymentIntentID   *string           `json:"stripe_payment_intent_id,omitempty"`
	StripeCheckoutSessionID *string           `json:"stripe_checkout_session_id,omitempty"`
	Status                  OrderStatus       `json:"status"`
	ErrorMessage            *string           `json:"error_message,omitempty"`
	Metadata                map[string]string `json:"metadata,omitempty"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
}

// WebhookEventRecord is the audit row kept for every verified webhook
// delivery. The unique Stripe event ID gives replayed deliveries a place to
// short-circuit.
type WebhookEventRecord struct {
	ID            int64      `json:"id"`
	StripeEventID string     `json:"stripe_event_id"`
	EventType     string     `json:"event_type"`
	Payload       []byte     `json:"-"`
	ReceivedAt    time.Time  `json:"received_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
}
