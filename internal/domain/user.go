package domain

import "time"

// User is the identity record backing registration, login and the social graph.
// PasswordHash and RefreshToken are internal fields and must be cleared before
// a User leaves the service layer.
type User struct {
	ID            string
	UserName      string
	Email         string
	FullName      string
	PasswordHash  string
	AvatarURL     string
	CoverImageURL string
	RefreshToken  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ChannelProfile is the aggregated public view of a user as a channel.
type ChannelProfile struct {
	FullName          string
	UserName          string
	Email             string
	AvatarURL         string
	CoverImageURL     string
	SubscriberCount   int64
	SubscribedToCount int64
	IsSubscribed      bool
}
