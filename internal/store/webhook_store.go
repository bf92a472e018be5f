package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/commercekit/checkout-backend/internal/models"
)

// RecordWebhookEvent inserts an audit row for a verified webhook delivery and
// reports whether this event ID was already fully processed. A replay of an
// event whose earlier delivery never reached MarkWebhookProcessed returns
// seen=false so the caller applies its side effects again; only a row with a
// processed_at stamp short-circuits the retry.
func (s *Store) RecordWebhookEvent(ctx context.Context, stripeEventID, eventType string, payload []byte) (seen bool, err error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO webhook_events (stripe_event_id, event_type, payload)
VALUES ($1, $2, $3)
ON CONFLICT (stripe_event_id) DO NOTHING`, stripeEventID, eventType, payload)
	if err != nil {
		return false, fmt.Errorf("store: record webhook event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: record webhook event: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	rec, err := s.getWebhookEvent(ctx, stripeEventID)
	if err != nil {
		return false, err
	}
	return rec.ProcessedAt != nil, nil
}

// MarkWebhookProcessed stamps the audit row once its side effects have been
// applied.
func (s *Store) MarkWebhookProcessed(ctx context.Context, stripeEventID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE webhook_events SET processed_at = NOW() WHERE stripe_event_id = $1`,
		stripeEventID)
	if err != nil {
		return fmt.Errorf("store: mark webhook processed: %w", err)
	}
	return nil
}

func (s *Store) getWebhookEvent(ctx context.Context, stripeEventID string) (*models.WebhookEventRecord, error) {
	rec := &models.WebhookEventRecord{}
	var processedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
SELECT id, stripe_event_id, event_type, payload, received_at, processed_at
FROM webhook_events WHERE stripe_event_id = $1`, stripeEventID).
		Scan(&rec.ID, &rec.StripeEventID, &rec.EventType, &rec.Payload, &rec.ReceivedAt, &processedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: webhook event %s vanished after conflict", stripeEventID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get webhook event: %w", err)
	}
	if processedAt.Valid {
		t := processedAt.Time
		rec.ProcessedAt = &t
	}
	return rec, nil
}
