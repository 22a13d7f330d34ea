package service

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"vidstream/internal/domain"
	"vidstream/internal/repository"
	"vidstream/internal/storage"
	"vidstream/internal/token"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RegisterInput carries the registration fields plus local paths of the
// uploaded image files. Avatar is mandatory, cover image optional.
type RegisterInput struct {
	FullName       string
	Email          string
	UserName       string
	Password       string
	AvatarPath     string
	CoverImagePath string
}

// IdentityService handles registration, credential verification and the
// access/refresh token lifecycle.
type IdentityService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	VerifyCredentials(ctx context.Context, userName, email, password string) (*domain.User, error)
	Login(ctx context.Context, userName, email, password string) (*domain.User, *TokenPair, error)
	IssueTokenPair(ctx context.Context, userID string) (*TokenPair, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, userID string) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	GetByID(ctx context.Context, userID string) (*domain.User, error)
	UpdateAccount(ctx context.Context, userID, fullName, email string) (*domain.User, error)
	UpdateAvatar(ctx context.Context, userID, localPath string) (*domain.User, error)
	UpdateCoverImage(ctx context.Context, userID, localPath string) (*domain.User, error)
}

type identityService struct {
	users  repository.UserRepository
	media  storage.Service
	tokens *token.Manager
	upload storage.UploadOptions
}

func NewIdentityService(users repository.UserRepository, media storage.Service, tokens *token.Manager, upload storage.UploadOptions) IdentityService {
	return &identityService{
		users:  users,
		media:  media,
		tokens: tokens,
		upload: upload,
	}
}

// Register validates input, uploads media first (so a failed upload never
// leaves an orphaned record), then persists the user with a lowercased handle
// and re-reads the created row.
func (s *identityService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	fullName := strings.TrimSpace(in.FullName)
	email := strings.TrimSpace(in.Email)
	userName := strings.ToLower(strings.TrimSpace(in.UserName))
	password := strings.TrimSpace(in.Password)

	if fullName == "" || email == "" || userName == "" || password == "" {
		return nil, domain.NewError(domain.KindValidation, "all fields are required")
	}

	// Optimization only. The unique indexes on user_name/email are the real
	// enforcement boundary; a concurrent registration that slips past this
	// check still fails on insert with a conflict.
	if _, err := s.users.GetByHandleOrEmail(ctx, userName, email); err == nil {
		return nil, domain.NewError(domain.KindConflict, "user with email or user name already exists")
	} else if domain.KindOf(err) != domain.KindNotFound {
		return nil, domain.WrapError(domain.KindInternal, "failed to check existing users", err)
	}

	if strings.TrimSpace(in.AvatarPath) == "" {
		return nil, domain.NewError(domain.KindValidation, "avatar file is required")
	}

	avatarURL, err := s.media.UploadFile(ctx, in.AvatarPath, s.upload)
	if err != nil || avatarURL == "" {
		// Treated as client-correctable: the caller supplied the file.
		return nil, domain.WrapError(domain.KindValidation, "avatar file could not be uploaded", err)
	}

	var coverURL string
	if strings.TrimSpace(in.CoverImagePath) != "" {
		// A failed cover upload is tolerated; the field is optional.
		coverURL, _ = s.media.UploadFile(ctx, in.CoverImagePath, s.upload)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to hash password", err)
	}

	user := &domain.User{
		ID:            uuid.NewString(),
		UserName:      userName,
		Email:         email,
		FullName:      fullName,
		PasswordHash:  string(hash),
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if domain.KindOf(err) == domain.KindConflict {
			return nil, err
		}
		return nil, domain.WrapError(domain.KindInternal, "failed to create user", err)
	}

	created, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "something went wrong while registering the user", err)
	}
	return sanitizeUser(created), nil
}

// VerifyCredentials looks up a user by handle or email and checks the
// password. Passwords are stored trimmed, so the presented one is trimmed the
// same way before the compare. The full record is returned; callers strip
// sensitive fields.
func (s *identityService) VerifyCredentials(ctx context.Context, userName, email, password string) (*domain.User, error) {
	userName = strings.ToLower(strings.TrimSpace(userName))
	email = strings.TrimSpace(email)
	password = strings.TrimSpace(password)

	if userName == "" && email == "" {
		return nil, domain.NewError(domain.KindValidation, "user name or email is required")
	}

	user, err := s.users.GetByHandleOrEmail(ctx, userName, email)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return nil, domain.NewError(domain.KindNotFound, "user does not exist")
		}
		return nil, domain.WrapError(domain.KindInternal, "failed to look up user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.NewError(domain.KindAuthentication, "invalid user credentials")
	}
	return user, nil
}

func (s *identityService) Login(ctx context.Context, userName, email, password string) (*domain.User, *TokenPair, error) {
	user, err := s.VerifyCredentials(ctx, userName, email, password)
	if err != nil {
		return nil, nil, err
	}
	pair, err := s.IssueTokenPair(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return sanitizeUser(user), pair, nil
}

// IssueTokenPair mints a fresh pair and persists the refresh token on the
// user row, unconditionally overwriting any previous value. This is the
// rotation point: the prior refresh token is invalid the moment the new one
// is stored.
func (s *identityService) IssueTokenPair(ctx context.Context, userID string) (*TokenPair, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to generate tokens", err)
	}

	access, err := s.tokens.NewAccessToken(user)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to generate tokens", err)
	}
	refresh, err := s.tokens.NewRefreshToken(user.ID)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to generate tokens", err)
	}

	if err := s.users.UpdateRefreshToken(ctx, user.ID, refresh); err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to store refresh token", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// RefreshAccessToken rotates a valid refresh token into a new pair. A token
// that verifies cryptographically but no longer matches the stored value is
// a rotated-out (or reused) token and is rejected. No state changes on any
// failure path.
func (s *identityService) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, domain.NewError(domain.KindAuthentication, "unauthorized request")
	}

	userID, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, domain.WrapError(domain.KindAuthentication, "invalid or expired refresh token", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, domain.WrapError(domain.KindAuthentication, "invalid refresh token", err)
	}

	if user.RefreshToken == "" ||
		subtle.ConstantTimeCompare([]byte(refreshToken), []byte(user.RefreshToken)) != 1 {
		return nil, domain.NewError(domain.KindAuthentication, "refresh token is expired or used")
	}

	return s.IssueTokenPair(ctx, user.ID)
}

// Logout clears the stored refresh token. Calling it again once cleared is a
// no-op.
func (s *identityService) Logout(ctx context.Context, userID string) error {
	if err := s.users.UpdateRefreshToken(ctx, userID, ""); err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return err
		}
		return domain.WrapError(domain.KindInternal, "failed to clear refresh token", err)
	}
	return nil
}

// ChangePassword re-hashes and stores the new password after checking the
// old one. Outstanding refresh tokens are left untouched.
func (s *identityService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	oldPassword = strings.TrimSpace(oldPassword)
	newPassword = strings.TrimSpace(newPassword)
	if newPassword == "" {
		return domain.NewError(domain.KindValidation, "new password is required")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return domain.WrapError(domain.KindInternal, "failed to load user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return domain.NewError(domain.KindValidation, "invalid old password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return domain.WrapError(domain.KindInternal, "failed to hash password", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, string(hash)); err != nil {
		return domain.WrapError(domain.KindInternal, "failed to update password", err)
	}
	return nil
}

func (s *identityService) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *identityService) UpdateAccount(ctx context.Context, userID, fullName, email string) (*domain.User, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.TrimSpace(email)
	if fullName == "" || email == "" {
		return nil, domain.NewError(domain.KindValidation, "all fields are required")
	}

	if err := s.users.UpdateAccount(ctx, userID, fullName, email); err != nil {
		switch domain.KindOf(err) {
		case domain.KindConflict, domain.KindNotFound:
			return nil, err
		default:
			return nil, domain.WrapError(domain.KindInternal, "failed to update account", err)
		}
	}
	return s.GetByID(ctx, userID)
}

func (s *identityService) UpdateAvatar(ctx context.Context, userID, localPath string) (*domain.User, error) {
	url, err := s.uploadImage(ctx, localPath, "avatar")
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateAvatarURL(ctx, userID, url); err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to update avatar", err)
	}
	return s.GetByID(ctx, userID)
}

func (s *identityService) UpdateCoverImage(ctx context.Context, userID, localPath string) (*domain.User, error) {
	url, err := s.uploadImage(ctx, localPath, "cover image")
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateCoverImageURL(ctx, userID, url); err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to update cover image", err)
	}
	return s.GetByID(ctx, userID)
}

func (s *identityService) uploadImage(ctx context.Context, localPath, field string) (string, error) {
	if strings.TrimSpace(localPath) == "" {
		return "", domain.NewError(domain.KindValidation, field+" file is missing")
	}
	url, err := s.media.UploadFile(ctx, localPath, s.upload)
	if err != nil || url == "" {
		return "", domain.WrapError(domain.KindValidation, "error while uploading "+field, err)
	}
	return url, nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	clone := *user
	clone.PasswordHash = ""
	clone.RefreshToken = ""
	return &clone
}
