package models

import "time"

// User carries the account fields the billing flow touches. Subscription
// linkage is optional and only populated once a checkout for a recurring plan
// completes.
type User struct {
	ID                 int64     `json:"id"`
	Email              string    `json:"email"`
	Username           string    `json:"username"`
	FullName           *string   `json:"full_name,omitempty"`
	IsActive           bool      `json:"is_active"`
	SubscriptionStatus *string   `json:"subscription_status,omitempty"`
	SubscriptionTier   *string   `json:"subscription_tier,omitempty"`
	StripeCustomerID   *string   `json:"stripe_customer_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
