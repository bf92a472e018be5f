package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance bounds how far a webhook timestamp may drift from the
// current clock before the signature is rejected.
const DefaultTolerance = 5 * time.Minute

var (
	// ErrMissingSignature indicates the Stripe-Signature header was absent.
	ErrMissingSignature = errors.New("missing webhook signature header")

	// ErrInvalidSignature indicates the header did not match the payload,
	// could not be parsed, or carried a timestamp outside the tolerance
	// window.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMalformedPayload indicates the body was not a parseable event
	// envelope.
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// WebhookVerifier recomputes Stripe webhook signatures against a shared
// signing secret. The scheme is HMAC-SHA256 over "<timestamp>.<body>", carried
// in the Stripe-Signature header as "t=<unix>,v1=<hex>[,v1=<hex>...]".
type WebhookVerifier struct {
	secret    string
	tolerance time.Duration

	// now is overridable for tests.
	now func() time.Time
}

// NewWebhookVerifier creates a verifier. A non-positive tolerance falls back
// to DefaultTolerance.
func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &WebhookVerifier{secret: secret, tolerance: tolerance, now: time.Now}
}

// Verify checks the signature header against the raw request body. It returns
// ErrMissingSignature for an empty header and ErrInvalidSignature for any
// parse failure, digest mismatch, or stale timestamp.
func (v *WebhookVerifier) Verify(body []byte, header string) error {
	if strings.TrimSpace(header) == "" {
		return ErrMissingSignature
	}

	var timestamp int64
	var candidates []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			timestamp = ts
		case "v1":
			candidates = append(candidates, kv[1])
		}
	}

	if timestamp == 0 || len(candidates) == 0 {
		return fmt.Errorf("%w: header missing t or v1 component", ErrInvalidSignature)
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age > v.tolerance || age < -v.tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := ComputeSignature(v.secret, timestamp, body)
	for _, candidate := range candidates {
		decoded, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}

	return fmt.Errorf("%w: no matching v1 signature", ErrInvalidSignature)
}

// ComputeSignature returns the HMAC-SHA256 digest of "<timestamp>.<body>"
// keyed by secret. Exposed so tests can produce valid headers.
func ComputeSignature(secret string, timestamp int64, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return mac.Sum(nil)
}

// Event is the decoded form of a webhook delivery. The envelope is decoded
// once at the boundary into one of the handled variants; everything else
// becomes IgnoredEvent.
type Event interface {
	EventID() string
	EventType() string
}

type envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func (e envelope) EventID() string   { return e.ID }
func (e envelope) EventType() string { return e.Type }

// PaymentIntent is the portion of Stripe's payment intent object the
// reconciliation flow reads.
type PaymentIntent struct {
	ID               string `json:"id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// ErrorMessage returns the human-readable failure reason, if any.
func (p PaymentIntent) ErrorMessage() string {
	if p.LastPaymentError == nil {
		return ""
	}
	return p.LastPaymentError.Message
}

// SessionObject is the checkout session payload embedded in
// checkout.session.completed events.
type SessionObject struct {
	ID              string            `json:"id"`
	PaymentIntentID string            `json:"payment_intent"`
	CustomerID      string            `json:"customer"`
	CustomerEmail   string            `json:"customer_email"`
	Mode            string            `json:"mode"`
	Metadata        map[string]string `json:"metadata"`
}

// PaymentIntentSucceeded signals a settled payment.
type PaymentIntentSucceeded struct {
	envelope
	Intent PaymentIntent
}

// PaymentIntentFailed signals a payment that will not complete.
type PaymentIntentFailed struct {
	envelope
	Intent PaymentIntent
}

// CheckoutSessionCompleted signals the customer finished the hosted checkout
// page; the session now carries its payment intent and customer handles.
type CheckoutSessionCompleted struct {
	envelope
	Session SessionObject
}

// IgnoredEvent is any recognized envelope whose type carries no business
// logic here. It is acknowledged without side effects.
type IgnoredEvent struct {
	envelope
}

// Event type strings handled by this service.
const (
	EventTypePaymentIntentSucceeded  = "payment_intent.succeeded"
	EventTypePaymentIntentFailed     = "payment_intent.payment_failed"
	EventTypeCheckoutSessionComplete = "checkout.session.completed"
)

// DecodeEvent parses a verified webhook body into its typed variant. Bodies
// that are not a valid envelope return ErrMalformedPayload.
func DecodeEvent(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformedPayload)
	}

	switch env.Type {
	case EventTypePaymentIntentSucceeded:
		ev := PaymentIntentSucceeded{envelope: env}
		if err := json.Unmarshal(env.Data.Object, &ev.Intent); err != nil {
			return nil, fmt.Errorf("%w: payment intent object: %v", ErrMalformedPayload, err)
		}
		return ev, nil

	case EventTypePaymentIntentFailed:
		ev := PaymentIntentFailed{envelope: env}
		if err := json.Unmarshal(env.Data.Object, &ev.Intent); err != nil {
			return nil, fmt.Errorf("%w: payment intent object: %v", ErrMalformedPayload, err)
		}
		return ev, nil

	case EventTypeCheckoutSessionComplete:
		ev := CheckoutSessionCompleted{envelope: env}
		if err := json.Unmarshal(env.Data.Object, &ev.Session); err != nil {
			return nil, fmt.Errorf("%w: session object: %v", ErrMalformedPayload, err)
		}
		return ev, nil
	}

	return IgnoredEvent{envelope: env}, nil
}
