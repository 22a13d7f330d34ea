package domain

import "time"

// Subscription is a directed edge: subscriber follows channel. Both ends
// reference users. The pair carries no uniqueness constraint in the store;
// logical uniqueness is maintained by the toggle operation.
type Subscription struct {
	ID           int64
	SubscriberID string
	ChannelID    string
	CreatedAt    time.Time
}
