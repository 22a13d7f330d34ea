package repository

import (
	"context"
	"time"

	"vidstream/internal/domain"
)

// VideoRepository manages video records and the per-user watch history that
// references them.
type VideoRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, video *domain.Video) error
	GetByID(ctx context.Context, id string) (*domain.Video, error)
	AddWatchEvent(ctx context.Context, userID, videoID string, watchedAt time.Time) error

	// WatchHistory resolves a user's history references against the video
	// collection and each video's owner in one join, most recent first.
	// References to deleted videos are skipped.
	WatchHistory(ctx context.Context, userID string) ([]domain.HistoryItem, error)
}
