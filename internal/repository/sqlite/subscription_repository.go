package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"vidstream/internal/repository"
)

// Note: no UNIQUE constraint on (subscriber_id, channel_id). The toggle
// operation keeps the pair logically unique; the store itself accepts
// duplicate edges.
const createSubscriptionsTable = `
CREATE TABLE IF NOT EXISTS subscriptions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	subscriber_id TEXT NOT NULL REFERENCES users(id),
	channel_id TEXT NOT NULL REFERENCES users(id),
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_channel ON subscriptions(channel_id);
CREATE INDEX IF NOT EXISTS idx_subscriptions_subscriber ON subscriptions(subscriber_id);
`

type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) repository.SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createSubscriptionsTable); err != nil {
		return fmt.Errorf("create subscriptions table: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) Create(ctx context.Context, subscriberID, channelID string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO subscriptions (subscriber_id, channel_id, created_at)
VALUES (?, ?, ?)`,
		subscriberID, channelID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) Delete(ctx context.Context, subscriberID, channelID string) error {
	_, err := r.db.ExecContext(ctx, `
DELETE FROM subscriptions WHERE subscriber_id = ? AND channel_id = ?`,
		subscriberID, channelID,
	)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) Exists(ctx context.Context, subscriberID, channelID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM subscriptions WHERE subscriber_id = ? AND channel_id = ?)`,
		subscriberID, channelID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("subscription exists: %w", err)
	}
	return exists, nil
}
