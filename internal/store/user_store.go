package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/commercekit/checkout-backend/internal/models"
)

// ErrUserNotFound is returned when no user matches the lookup key.
var ErrUserNotFound = errors.New("store: user not found")

const userColumns = `id, email, username, full_name, is_active,
subscription_status, subscription_tier, stripe_customer_id, created_at, updated_at`

// GetUserByEmail looks up a user by email, case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user by email: %w", err)
	}
	return user, nil
}

// UpdateUserSubscription records the Stripe customer linkage and subscription
// state on a user after a completed subscription checkout.
func (s *Store) UpdateUserSubscription(ctx context.Context, userID int64, status, tier, stripeCustomerID string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE users
SET subscription_status = NULLIF($2, ''),
    subscription_tier = NULLIF($3, ''),
    stripe_customer_id = NULLIF($4, ''),
    updated_at = NOW()
WHERE id = $1`, userID, status, tier, stripeCustomerID)
	if err != nil {
		return fmt.Errorf("store: update user subscription: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(sc scanner) (*models.User, error) {
	var (
		user     models.User
		fullName sql.NullString
		subStat  sql.NullString
		subTier  sql.NullString
		custID   sql.NullString
	)

	if err := sc.Scan(&user.ID, &user.Email, &user.Username, &fullName,
		&user.IsActive, &subStat, &subTier, &custID,
		&user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}

	user.FullName = nullStringPtr(fullName)
	user.SubscriptionStatus = nullStringPtr(subStat)
	user.SubscriptionTier = nullStringPtr(subTier)
	user.StripeCustomerID = nullStringPtr(custID)

	return &user, nil
}
