package domain

import "time"

// Video is a published video record owned by a user.
type Video struct {
	ID              string
	OwnerID         string
	Title           string
	ThumbnailURL    string
	DurationSeconds int64
	Views           int64
	CreatedAt       time.Time
}

// VideoOwner is the trimmed owner projection embedded in history items.
// Sensitive fields never appear here.
type VideoOwner struct {
	FullName  string
	UserName  string
	AvatarURL string
}

// HistoryItem is one denormalized watch-history entry: the resolved video
// plus its owner projection.
type HistoryItem struct {
	Video     Video
	Owner     VideoOwner
	WatchedAt time.Time
}
