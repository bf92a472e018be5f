package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/commercekit/checkout-backend/internal/models"
)

const defaultPageSize = 100

var (
	// ErrOrderNotFound is returned when no order matches the lookup key.
	ErrOrderNotFound = errors.New("store: order not found")

	// ErrDuplicatePaymentIntent is returned when more than one order claims
	// the same payment intent. The unique index makes this unreachable; if
	// seen, the data is inconsistent and nothing is updated.
	ErrDuplicatePaymentIntent = errors.New("store: multiple orders share a payment intent")
)

// Store provides database-backed accessors for application data.
type Store struct {
	db *sql.DB
}

// New creates a Store using the provided sql.DB connection.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &Store{db: db}, nil
}

const orderColumns = `id, user_id, amount, currency, description,
stripe_payment_intent_id, stripe_checkout_session_id, status, error_message,
metadata, created_at, updated_at`

// CreateOrder inserts a new pending order and returns it with its generated
// ID and timestamps.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order == nil {
		return nil, errors.New("store: order cannot be nil")
	}
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}
	if !order.Status.Valid() {
		return nil, fmt.Errorf("store: invalid order status %q", order.Status)
	}

	metadata, err := marshalMetadata(order.Metadata)
	if err != nil {
		return nil, fmt.Errorf("store: encode order metadata: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
INSERT INTO orders (user_id, amount, currency, description,
  stripe_payment_intent_id, stripe_checkout_session_id, status, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+orderColumns, order.UserID, order.Amount, order.Currency,
		order.Description, order.StripePaymentIntentID,
		order.StripeCheckoutSessionID, order.Status, metadata)

	created, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("store: insert order: %w", err)
	}
	return created, nil
}

// GetOrderByID fetches a single order by primary key.
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get order %d: %w", id, err)
	}
	return order, nil
}

// GetOrderByPaymentIntent fetches the order linked to a Stripe payment intent.
func (s *Store) GetOrderByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE stripe_payment_intent_id = $1`,
		paymentIntentID)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get order by payment intent: %w", err)
	}
	return order, nil
}

// ListOrders returns up to `limit` orders, newest first.
func (s *Store) ListOrders(ctx context.Context, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > defaultPageSize {
		limit = defaultPageSize
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate orders: %w", err)
	}

	return orders, nil
}

// AttachPaymentIntent records the payment intent handle on the order that was
// created under the given checkout session ID. Used when the intent only
// becomes known at checkout.session.completed time.
func (s *Store) AttachPaymentIntent(ctx context.Context, checkoutSessionID, paymentIntentID string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx, `
UPDATE orders
SET stripe_payment_intent_id = $2, updated_at = NOW()
WHERE stripe_checkout_session_id = $1
RETURNING `+orderColumns, checkoutSessionID, paymentIntentID)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: attach payment intent: %w", err)
	}
	return order, nil
}

// LinkCheckoutSession stores the provider's session and payment intent
// handles on a freshly created order. An empty payment intent is stored as
// NULL so the unique index ignores it.
func (s *Store) LinkCheckoutSession(ctx context.Context, orderID int64, checkoutSessionID, paymentIntentID string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE orders
SET stripe_checkout_session_id = $2,
    stripe_payment_intent_id = NULLIF($3, ''),
    updated_at = NOW()
WHERE id = $1`, orderID, checkoutSessionID, paymentIntentID)
	if err != nil {
		return fmt.Errorf("store: link checkout session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// MarkOrderCanceled flips an order to canceled; used when checkout session
// creation fails after the pending row was written. Best effort.
func (s *Store) MarkOrderCanceled(ctx context.Context, orderID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`,
		orderID, models.OrderStatusCanceled)
	if err != nil {
		return fmt.Errorf("store: cancel order %d: %w", orderID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ReconcileByPaymentIntent transitions the order linked to a payment intent
// to the given status, recording an optional error message and refreshing
// updated_at. The read-match-update runs in one transaction with a row lock,
// so concurrent deliveries for the same intent serialize at the store.
// Re-applying an already-applied transition is not an error.
func (s *Store) ReconcileByPaymentIntent(ctx context.Context, paymentIntentID string, status models.OrderStatus, errorMessage *string) (*models.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("store: invalid order status %q", status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin reconcile tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM orders WHERE stripe_payment_intent_id = $1 FOR UPDATE`,
		paymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("store: lock order for reconcile: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("store: iterate order ids: %w", err)
	}
	rows.Close()

	switch {
	case len(ids) == 0:
		return nil, ErrOrderNotFound
	case len(ids) > 1:
		log.Printf("[store] payment intent %s matched %d orders", paymentIntentID, len(ids))
		return nil, ErrDuplicatePaymentIntent
	}

	row := tx.QueryRowContext(ctx, `
UPDATE orders
SET status = $2, error_message = $3, updated_at = NOW()
WHERE id = $1
RETURNING `+orderColumns, ids[0], status, errorMessage)

	order, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("store: update order status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit reconcile tx: %w", err)
	}

	return order, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(sc scanner) (*models.Order, error) {
	var (
		order        models.Order
		userID       sql.NullInt64
		description  sql.NullString
		intentID     sql.NullString
		sessionID    sql.NullString
		errorMessage sql.NullString
		metadata     []byte
	)

	if err := sc.Scan(&order.ID, &userID, &order.Amount, &order.Currency,
		&description, &intentID, &sessionID, &order.Status, &errorMessage,
		&metadata, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return nil, err
	}

	if userID.Valid {
		order.UserID = &userID.Int64
	}
	order.Description = nullStringPtr(description)
	order.StripePaymentIntentID = nullStringPtr(intentID)
	order.StripeCheckoutSessionID = nullStringPtr(sessionID)
	order.ErrorMessage = nullStringPtr(errorMessage)

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &order.Metadata); err != nil {
			return nil, fmt.Errorf("decode order metadata: %w", err)
		}
	}

	return &order, nil
}

func marshalMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
