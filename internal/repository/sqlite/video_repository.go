package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vidstream/internal/domain"
	"vidstream/internal/repository"
)

const createVideoTables = `
CREATE TABLE IF NOT EXISTS videos (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL REFERENCES users(id),
	title TEXT NOT NULL,
	thumbnail_url TEXT NOT NULL DEFAULT '',
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	views INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS watch_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL REFERENCES users(id),
	video_id TEXT NOT NULL,
	watched_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_watch_history_user ON watch_history(user_id, watched_at DESC);
`

type VideoRepository struct {
	db *sql.DB
}

func NewVideoRepository(db *sql.DB) repository.VideoRepository {
	return &VideoRepository{db: db}
}

func (r *VideoRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createVideoTables); err != nil {
		return fmt.Errorf("create video tables: %w", err)
	}
	return nil
}

func (r *VideoRepository) Create(ctx context.Context, video *domain.Video) error {
	video.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO videos (id, owner_id, title, thumbnail_url, duration_seconds, views, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		video.ID,
		video.OwnerID,
		video.Title,
		video.ThumbnailURL,
		video.DurationSeconds,
		video.Views,
		video.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

func (r *VideoRepository) GetByID(ctx context.Context, id string) (*domain.Video, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, owner_id, title, thumbnail_url, duration_seconds, views, created_at
FROM videos
WHERE id = ?`,
		id,
	)

	var video domain.Video
	if err := row.Scan(
		&video.ID,
		&video.OwnerID,
		&video.Title,
		&video.ThumbnailURL,
		&video.DurationSeconds,
		&video.Views,
		&video.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewError(domain.KindNotFound, "video does not exist")
		}
		return nil, fmt.Errorf("scan video: %w", err)
	}
	return &video, nil
}

func (r *VideoRepository) AddWatchEvent(ctx context.Context, userID, videoID string, watchedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO watch_history (user_id, video_id, watched_at)
VALUES (?, ?, ?)`,
		userID, videoID, watchedAt,
	)
	if err != nil {
		return fmt.Errorf("insert watch event: %w", err)
	}
	return nil
}

// WatchHistory joins history references to videos and their owners, most
// recent first. The inner joins drop references to deleted videos or owners.
func (r *VideoRepository) WatchHistory(ctx context.Context, userID string) ([]domain.HistoryItem, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT
	v.id, v.owner_id, v.title, v.thumbnail_url, v.duration_seconds, v.views, v.created_at,
	o.full_name, o.user_name, o.avatar_url,
	h.watched_at
FROM watch_history h
JOIN videos v ON v.id = h.video_id
JOIN users o ON o.id = v.owner_id
WHERE h.user_id = ?
ORDER BY h.watched_at DESC, h.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query watch history: %w", err)
	}
	defer rows.Close()

	var items []domain.HistoryItem
	for rows.Next() {
		var item domain.HistoryItem
		if err := rows.Scan(
			&item.Video.ID,
			&item.Video.OwnerID,
			&item.Video.Title,
			&item.Video.ThumbnailURL,
			&item.Video.DurationSeconds,
			&item.Video.Views,
			&item.Video.CreatedAt,
			&item.Owner.FullName,
			&item.Owner.UserName,
			&item.Owner.AvatarURL,
			&item.WatchedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watch history: %w", err)
	}
	return items, nil
}
