package repository

import "context"

// SubscriptionRepository manages directed subscriber→channel edges. The store
// does not enforce pair uniqueness; Create inserts unconditionally.
type SubscriptionRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, subscriberID, channelID string) error
	Delete(ctx context.Context, subscriberID, channelID string) error
	Exists(ctx context.Context, subscriberID, channelID string) (bool, error)
}
