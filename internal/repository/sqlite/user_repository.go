package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"vidstream/internal/domain"
	"vidstream/internal/repository"
)

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	user_name TEXT NOT NULL COLLATE NOCASE,
	email TEXT NOT NULL,
	full_name TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	avatar_url TEXT NOT NULL,
	cover_image_url TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE (user_name),
	UNIQUE (email)
);
`

const userColumns = `id, user_name, email, full_name, password_hash, avatar_url, cover_image_url, refresh_token, created_at, updated_at`

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createUsersTable); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
INSERT INTO users (`+userColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.UserName,
		user.Email,
		user.FullName,
		user.PasswordHash,
		user.AvatarURL,
		user.CoverImageURL,
		user.RefreshToken,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if conflict := uniqueConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE id = ?`,
		id,
	)
	return scanUser(row)
}

func (r *UserRepository) GetByHandle(ctx context.Context, handle string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE user_name = ?`,
		handle,
	)
	return scanUser(row)
}

// GetByHandleOrEmail matches either identifier; empty arguments never match.
func (r *UserRepository) GetByHandleOrEmail(ctx context.Context, handle, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE (user_name = ?1 AND ?1 <> '') OR (email = ?2 AND ?2 <> '')`,
		handle,
		email,
	)
	return scanUser(row)
}

func (r *UserRepository) UpdateRefreshToken(ctx context.Context, id, refreshToken string) error {
	return r.updateField(ctx, id, "refresh_token", refreshToken)
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	return r.updateField(ctx, id, "password_hash", passwordHash)
}

func (r *UserRepository) UpdateAvatarURL(ctx context.Context, id, url string) error {
	return r.updateField(ctx, id, "avatar_url", url)
}

func (r *UserRepository) UpdateCoverImageURL(ctx context.Context, id, url string) error {
	return r.updateField(ctx, id, "cover_image_url", url)
}

func (r *UserRepository) UpdateAccount(ctx context.Context, id, fullName, email string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE users SET full_name = ?, email = ?, updated_at = ? WHERE id = ?`,
		fullName, email, time.Now().UTC(), id,
	)
	if err != nil {
		if conflict := uniqueConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("update account: %w", err)
	}
	return requireRowAffected(res)
}

func (r *UserRepository) updateField(ctx context.Context, id, column, value string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		value, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	return requireRowAffected(res)
}

// ChannelProfile computes the channel aggregation in one statement: match the
// user by handle, count edges in both directions and probe the viewer's
// membership among the channel's subscribers.
func (r *UserRepository) ChannelProfile(ctx context.Context, handle, viewerID string) (*domain.ChannelProfile, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT
	u.full_name,
	u.user_name,
	u.email,
	u.avatar_url,
	u.cover_image_url,
	(SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = u.id) AS subscriber_count,
	(SELECT COUNT(*) FROM subscriptions s WHERE s.subscriber_id = u.id) AS subscribed_to_count,
	EXISTS (
		SELECT 1 FROM subscriptions s
		WHERE s.channel_id = u.id AND s.subscriber_id = ?2 AND ?2 <> ''
	) AS is_subscribed
FROM users u
WHERE u.user_name = ?1`,
		handle,
		viewerID,
	)

	var profile domain.ChannelProfile
	if err := row.Scan(
		&profile.FullName,
		&profile.UserName,
		&profile.Email,
		&profile.AvatarURL,
		&profile.CoverImageURL,
		&profile.SubscriberCount,
		&profile.SubscribedToCount,
		&profile.IsSubscribed,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewError(domain.KindNotFound, "channel does not exist")
		}
		return nil, fmt.Errorf("scan channel profile: %w", err)
	}
	return &profile, nil
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.UserName,
		&user.Email,
		&user.FullName,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.CoverImageURL,
		&user.RefreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewError(domain.KindNotFound, "user not found")
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &user, nil
}

// uniqueConflict maps a sqlite unique index violation to a conflict error
// naming the offending field, or nil when the error is something else.
func uniqueConflict(err error) error {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "unique") {
		return nil
	}
	switch {
	case strings.Contains(msg, "users.user_name"):
		return domain.WrapError(domain.KindConflict, "user with this user name already exists", err)
	case strings.Contains(msg, "users.email"):
		return domain.WrapError(domain.KindConflict, "user with this email already exists", err)
	default:
		return domain.WrapError(domain.KindConflict, "user already exists", err)
	}
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.NewError(domain.KindNotFound, "user not found")
	}
	return nil
}
