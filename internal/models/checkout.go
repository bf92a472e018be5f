package models

// LineItem describes one purchasable entry in a checkout session. Either
// PriceID references a catalog price, or Name/Amount/Currency describe an
// ad-hoc price inline.
type LineItem struct {
	PriceID  string `json:"price_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Amount   int64  `json:"amount,omitempty"`
	Currency string `json:"currency,omitempty"`
	Quantity int64  `json:"quantity"`
}

// CheckoutRequest is the payload accepted by POST /api/checkout. Exactly one
// of PriceID and LineItems must be supplied.
type CheckoutRequest struct {
	PriceID       string            `json:"price_id,omitempty"`
	LineItems     []LineItem        `json:"line_items,omitempty"`
	Mode          string            `json:"mode,omitempty"`
	SuccessURL    string            `json:"success_url"`
	CancelURL     string            `json:"cancel_url"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`

	// Fields for the local order row; Stripe resolves catalog prices
	// server-side so Amount may be zero when only PriceID is given.
	Amount      int64  `json:"amount,omitempty"`
	Currency    string `json:"currency,omitempty"`
	Description string `json:"description,omitempty"`
}

// CheckoutResponse is returned once a checkout session has been opened.
type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	OrderID   int64  `json:"order_id"`
}
