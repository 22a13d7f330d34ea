package repository

import (
	"context"

	"vidstream/internal/domain"
)

// UserRepository defines persistence operations for User entities. Lookups
// that miss return a domain not-found error; unique index violations on
// writes return a domain conflict error (the index is the enforcement
// boundary for handle/email uniqueness, application pre-checks are only an
// optimization).
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByHandle(ctx context.Context, handle string) (*domain.User, error)
	GetByHandleOrEmail(ctx context.Context, handle, email string) (*domain.User, error)
	UpdateRefreshToken(ctx context.Context, id, refreshToken string) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	UpdateAccount(ctx context.Context, id, fullName, email string) error
	UpdateAvatarURL(ctx context.Context, id, url string) error
	UpdateCoverImageURL(ctx context.Context, id, url string) error

	// ChannelProfile runs the match/join/project aggregation for a channel:
	// subscriber count, subscription count and the viewer's membership in the
	// subscriber set, in a single query.
	ChannelProfile(ctx context.Context, handle, viewerID string) (*domain.ChannelProfile, error)
}
