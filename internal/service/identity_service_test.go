package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"vidstream/internal/domain"
	"vidstream/internal/storage"
	"vidstream/internal/token"
)

// --- fakes ---

type fakeUserRepo struct {
	users map[string]*domain.User // by id

	createCalls       int
	refreshTokenCalls int

	lastProfileHandle string
	profile           *domain.ChannelProfile
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*domain.User)}
}

func (f *fakeUserRepo) Init(ctx context.Context) error { return nil }

func (f *fakeUserRepo) Create(ctx context.Context, user *domain.User) error {
	f.createCalls++
	for _, u := range f.users {
		if strings.EqualFold(u.UserName, user.UserName) || u.Email == user.Email {
			return domain.NewError(domain.KindConflict, "user already exists")
		}
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	clone := *user
	f.users[user.ID] = &clone
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "user not found")
	}
	clone := *u
	return &clone, nil
}

func (f *fakeUserRepo) GetByHandle(ctx context.Context, handle string) (*domain.User, error) {
	return f.GetByHandleOrEmail(ctx, handle, "")
}

func (f *fakeUserRepo) GetByHandleOrEmail(ctx context.Context, handle, email string) (*domain.User, error) {
	for _, u := range f.users {
		if (handle != "" && strings.EqualFold(u.UserName, handle)) || (email != "" && u.Email == email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, domain.NewError(domain.KindNotFound, "user not found")
}

func (f *fakeUserRepo) UpdateRefreshToken(ctx context.Context, id, refreshToken string) error {
	f.refreshTokenCalls++
	u, ok := f.users[id]
	if !ok {
		return domain.NewError(domain.KindNotFound, "user not found")
	}
	u.RefreshToken = refreshToken
	return nil
}

func (f *fakeUserRepo) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	u, ok := f.users[id]
	if !ok {
		return domain.NewError(domain.KindNotFound, "user not found")
	}
	u.PasswordHash = passwordHash
	return nil
}

func (f *fakeUserRepo) UpdateAccount(ctx context.Context, id, fullName, email string) error {
	u, ok := f.users[id]
	if !ok {
		return domain.NewError(domain.KindNotFound, "user not found")
	}
	for otherID, other := range f.users {
		if otherID != id && other.Email == email {
			return domain.NewError(domain.KindConflict, "user with this email already exists")
		}
	}
	u.FullName = fullName
	u.Email = email
	return nil
}

func (f *fakeUserRepo) UpdateAvatarURL(ctx context.Context, id, url string) error {
	u, ok := f.users[id]
	if !ok {
		return domain.NewError(domain.KindNotFound, "user not found")
	}
	u.AvatarURL = url
	return nil
}

func (f *fakeUserRepo) UpdateCoverImageURL(ctx context.Context, id, url string) error {
	u, ok := f.users[id]
	if !ok {
		return domain.NewError(domain.KindNotFound, "user not found")
	}
	u.CoverImageURL = url
	return nil
}

func (f *fakeUserRepo) ChannelProfile(ctx context.Context, handle, viewerID string) (*domain.ChannelProfile, error) {
	f.lastProfileHandle = handle
	if f.profile == nil {
		return nil, domain.NewError(domain.KindNotFound, "channel does not exist")
	}
	clone := *f.profile
	return &clone, nil
}

type fakeMedia struct {
	uploads []string
	fail    bool
}

func (f *fakeMedia) UploadFile(ctx context.Context, localPath string, opts storage.UploadOptions) (string, error) {
	if f.fail {
		return "", errors.New("upload failed")
	}
	f.uploads = append(f.uploads, localPath)
	return "https://cdn.test/" + localPath, nil
}

// --- helpers ---

func newTestManager(t *testing.T) *token.Manager {
	t.Helper()
	return token.NewManager("access-secret", "refresh-secret", time.Hour, 24*time.Hour)
}

func newIdentity(t *testing.T) (IdentityService, *fakeUserRepo, *fakeMedia) {
	t.Helper()
	repo := newFakeUserRepo()
	media := &fakeMedia{}
	svc := NewIdentityService(repo, media, newTestManager(t), storage.UploadOptions{Bucket: "media"})
	return svc, repo, media
}

func seedAccount(t *testing.T, repo *fakeUserRepo, handle, email, password string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		UserName:     handle,
		Email:        email,
		FullName:     "Test " + handle,
		PasswordHash: string(hash),
		AvatarURL:    "https://cdn.test/" + handle + ".png",
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	repo.createCalls = 0
	return user
}

func wantKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := domain.KindOf(err); got != kind {
		t.Fatalf("error kind mismatch: got %s want %s (%v)", got, kind, err)
	}
}

// --- registration ---

func TestRegister_EmptyFields(t *testing.T) {
	svc, repo, _ := newIdentity(t)
	ctx := context.Background()

	valid := RegisterInput{
		FullName:   "Chai Aur Code",
		Email:      "chai@example.com",
		UserName:   "chai",
		Password:   "secret123",
		AvatarPath: "/tmp/avatar.png",
	}

	blank := func(mutate func(*RegisterInput)) RegisterInput {
		in := valid
		mutate(&in)
		return in
	}

	cases := map[string]RegisterInput{
		"fullName": blank(func(in *RegisterInput) { in.FullName = "  " }),
		"email":    blank(func(in *RegisterInput) { in.Email = "" }),
		"userName": blank(func(in *RegisterInput) { in.UserName = "\t" }),
		"password": blank(func(in *RegisterInput) { in.Password = " " }),
	}

	for name, in := range cases {
		_, err := svc.Register(ctx, in)
		wantKind(t, err, domain.KindValidation)

		if repo.createCalls != 0 {
			t.Fatalf("%s: store write performed on invalid input", name)
		}
	}
}

func TestRegister_MissingAvatar(t *testing.T) {
	svc, repo, media := newIdentity(t)

	_, err := svc.Register(context.Background(), RegisterInput{
		FullName: "Chai Aur Code",
		Email:    "chai@example.com",
		UserName: "chai",
		Password: "secret123",
	})
	wantKind(t, err, domain.KindValidation)
	if repo.createCalls != 0 {
		t.Fatal("store write performed without avatar")
	}
	if len(media.uploads) != 0 {
		t.Fatal("upload attempted without avatar")
	}
}

func TestRegister_AvatarUploadFailure(t *testing.T) {
	svc, repo, media := newIdentity(t)
	media.fail = true

	_, err := svc.Register(context.Background(), RegisterInput{
		FullName:   "Chai Aur Code",
		Email:      "chai@example.com",
		UserName:   "chai",
		Password:   "secret123",
		AvatarPath: "/tmp/avatar.png",
	})
	wantKind(t, err, domain.KindValidation)
	if repo.createCalls != 0 {
		t.Fatal("user created despite failed avatar upload")
	}
}

func TestRegister_Success(t *testing.T) {
	svc, repo, _ := newIdentity(t)

	user, err := svc.Register(context.Background(), RegisterInput{
		FullName:   "Chai Aur Code",
		Email:      "chai@example.com",
		UserName:   "ChaiAurCode",
		Password:   "secret123",
		AvatarPath: "/tmp/avatar.png",
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if user.UserName != "chaiaurcode" {
		t.Fatalf("handle not lowercased: %q", user.UserName)
	}
	if user.PasswordHash != "" || user.RefreshToken != "" {
		t.Fatal("sensitive fields leaked in registration response")
	}
	if user.AvatarURL == "" {
		t.Fatal("avatar URL missing")
	}

	stored := repo.users[user.ID]
	if stored == nil {
		t.Fatal("user not persisted")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret123")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
}

func TestRegister_DuplicateHandle(t *testing.T) {
	svc, repo, _ := newIdentity(t)
	seedAccount(t, repo, "chai", "chai@example.com", "secret123")

	_, err := svc.Register(context.Background(), RegisterInput{
		FullName:   "Impostor",
		Email:      "other@example.com",
		UserName:   "CHAI",
		Password:   "secret123",
		AvatarPath: "/tmp/avatar.png",
	})
	wantKind(t, err, domain.KindConflict)
}

// --- credentials ---

func TestVerifyCredentials(t *testing.T) {
	svc, repo, _ := newIdentity(t)
	seeded := seedAccount(t, repo, "chai", "chai@example.com", "secret123")

	user, err := svc.VerifyCredentials(context.Background(), "chai", "", "secret123")
	if err != nil {
		t.Fatalf("VerifyCredentials error: %v", err)
	}
	if user.ID != seeded.ID {
		t.Fatal("wrong user returned")
	}
	if user.PasswordHash == "" {
		t.Fatal("VerifyCredentials must return the full record")
	}

	if _, err := svc.VerifyCredentials(context.Background(), "", "chai@example.com", "secret123"); err != nil {
		t.Fatalf("lookup by email failed: %v", err)
	}

	_, err = svc.VerifyCredentials(context.Background(), "chai", "", "wrong")
	wantKind(t, err, domain.KindAuthentication)

	_, err = svc.VerifyCredentials(context.Background(), "", "", "secret123")
	wantKind(t, err, domain.KindValidation)

	_, err = svc.VerifyCredentials(context.Background(), "ghost", "", "secret123")
	wantKind(t, err, domain.KindNotFound)
}

// Passwords are stored trimmed, so a caller who pads the same password with
// whitespace must still round-trip through every credential path.
func TestPaddedPassword_RoundTrip(t *testing.T) {
	svc, _, _ := newIdentity(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{
		FullName:   "Chai Aur Code",
		Email:      "chai@example.com",
		UserName:   "chai",
		Password:   "  secret123  ",
		AvatarPath: "/tmp/avatar.png",
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if _, err := svc.VerifyCredentials(ctx, "chai", "", "  secret123  "); err != nil {
		t.Fatalf("padded password rejected: %v", err)
	}
	user, err := svc.VerifyCredentials(ctx, "chai", "", "secret123")
	if err != nil {
		t.Fatalf("trimmed password rejected: %v", err)
	}

	if err := svc.ChangePassword(ctx, user.ID, " secret123 ", "  newsecret1  "); err != nil {
		t.Fatalf("ChangePassword error: %v", err)
	}
	if _, err := svc.VerifyCredentials(ctx, "chai", "", "newsecret1"); err != nil {
		t.Fatalf("new password rejected after padded change: %v", err)
	}
	if _, err := svc.VerifyCredentials(ctx, "chai", "", "  newsecret1  "); err != nil {
		t.Fatalf("padded new password rejected: %v", err)
	}
}

// --- token lifecycle ---

func TestIssueTokenPair_RotationInvalidatesPreviousToken(t *testing.T) {
	svc, repo, _ := newIdentity(t)
	user := seedAccount(t, repo, "chai", "chai@example.com", "secret123")
	ctx := context.Background()

	first, err := svc.IssueTokenPair(ctx, user.ID)
	if err != nil {
		t.Fatalf("IssueTokenPair error: %v", err)
	}
	second, err := svc.IssueTokenPair(ctx, user.ID)
	if err != nil {
		t.Fatalf("IssueTokenPair error: %v", err)
	}
	if first.RefreshToken == second.RefreshToken {
		t.Fatal("rotation produced an identical refresh token")
	}

	// the first token is still cryptographically valid but rotated out
	_, err = svc.RefreshAccessToken(ctx, first.RefreshToken)
	wantKind(t, err, domain.KindAuthentication)

	// the current token rotates cleanly
	third, err := svc.RefreshAccessToken(ctx, second.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshAccessToken error: %v", err)
	}
	if repo.users[user.ID].RefreshToken != third.RefreshToken {
		t.Fatal("stored refresh token not rotated")
	}
}

func TestRefreshAccessToken_EmptyToken(t *testing.T) {
	svc, _, _ := newIdentity(t)

	_, err := svc.RefreshAccessToken(context.Background(), "  ")
	wantKind(t, err, domain.KindAuthentication)
}

func TestRefreshAccessToken_MalformedToken_NoMutation(t *testing.T) {
	svc, repo, _ := newIdentity(t)
	seedAccount(t, repo, "chai", "chai@example.com", "secret123")

	_, err := svc.RefreshAccessToken(context.Background(), "not-a-jwt")
	wantKind(t, err, domain.KindAuthentication)
	if repo.refreshTokenCalls != 0 {
		t.Fatal("store mutated on invalid refresh token")
	}
}

func TestRefreshAccessToken_ExpiredToken(t *testing.T) {
	repo := newFakeUserRepo()
	expired := token.NewManager("access-secret", "refresh-secret", time.Hour, -time.Second)
	svc := NewIdentityService(repo, &fakeMedia{}, expired, storage.UploadOptions{Bucket: "media"})
	user := seedAccount(t, repo, "chai", "chai@example.com", "secret123")

	stale, err := expired.NewRefreshToken(user.ID)
	if err != nil {
		t.Fatalf("NewRefreshToken error: %v", err)
	}

	_, err = svc.RefreshAccessToken(context.Background(), stale)
	wantKind(t, err, domain.KindAuthentication)
	if repo.refreshTokenCalls != 0 {
		t.Fatal("store mutated on expired refresh token")
	}
}

func TestRefreshAccessToken_UnknownUser(t *testing.T) {
	svc, _, _ := newIdentity(t)
	m := newTestManager(t)

	orphan, err := m.NewRefreshToken("no-such-user")
	if err != nil {
		t.Fatalf("NewRefreshToken error: %v", err)
	}

	_, err = svc.RefreshAccessToken(context.Background(), orphan)
	wantKind(t, err, domain.KindAuthentication)
}

func TestLogout_Idempotent(t *testing.T) {
	svc, repo, _ := newIdentity(t)
	user := seedAccount(t, repo, "chai", "chai@example.com", "secret123")
	ctx := context.Background()

	pair, err := svc.IssueTokenPair(ctx, user.ID)
	if err != nil {
		t.Fatalf("IssueTokenPair error: %v", err)
	}

	if err := svc.Logout(ctx, user.ID); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if repo.users[user.ID].RefreshToken != "" {
		t.Fatal("refresh token not cleared")
	}

	// repeat is a no-op
	if err := svc.Logout(ctx, user.ID); err != nil {
		t.Fatalf("second Logout error: %v", err)
	}

	// the last issued token can no longer refresh
	_, err = svc.RefreshAccessToken(ctx, pair.RefreshToken)
	wantKind(t, err, domain.KindAuthentication)
}

// --- password change ---

func TestChangePassword(t *testing.T) {
	svc, repo, _ := newIdentity(t)
	user := seedAccount(t, repo, "chai", "chai@example.com", "secret123")
	ctx := context.Background()

	err := svc.ChangePassword(ctx, user.ID, "wrong", "newsecret1")
	wantKind(t, err, domain.KindValidation)

	err = svc.ChangePassword(ctx, user.ID, "secret123", " ")
	wantKind(t, err, domain.KindValidation)

	if err := svc.ChangePassword(ctx, user.ID, "secret123", "newsecret1"); err != nil {
		t.Fatalf("ChangePassword error: %v", err)
	}
	if _, err := svc.VerifyCredentials(ctx, "chai", "", "newsecret1"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	_, err = svc.VerifyCredentials(ctx, "chai", "", "secret123")
	wantKind(t, err, domain.KindAuthentication)
}

// Refresh tokens survive a password change. Known gap in the contract; this
// pins the current behavior so changing it is deliberate.
func TestChangePassword_KeepsRefreshToken(t *testing.T) {
	svc, repo, _ := newIdentity(t)
	user := seedAccount(t, repo, "chai", "chai@example.com", "secret123")
	ctx := context.Background()

	pair, err := svc.IssueTokenPair(ctx, user.ID)
	if err != nil {
		t.Fatalf("IssueTokenPair error: %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "secret123", "newsecret1"); err != nil {
		t.Fatalf("ChangePassword error: %v", err)
	}

	if _, err := svc.RefreshAccessToken(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("refresh token unexpectedly revoked: %v", err)
	}
}

// --- profile updates ---

func TestUpdateAccount(t *testing.T) {
	svc, repo, _ := newIdentity(t)
	user := seedAccount(t, repo, "chai", "chai@example.com", "secret123")
	seedAccount(t, repo, "mocha", "mocha@example.com", "secret123")
	ctx := context.Background()

	_, err := svc.UpdateAccount(ctx, user.ID, "", "")
	wantKind(t, err, domain.KindValidation)

	_, err = svc.UpdateAccount(ctx, user.ID, "Chai", "mocha@example.com")
	wantKind(t, err, domain.KindConflict)

	updated, err := svc.UpdateAccount(ctx, user.ID, "Chai Aur Code", "new@example.com")
	if err != nil {
		t.Fatalf("UpdateAccount error: %v", err)
	}
	if updated.FullName != "Chai Aur Code" || updated.Email != "new@example.com" {
		t.Fatalf("account not updated: %+v", updated)
	}
	if updated.PasswordHash != "" {
		t.Fatal("sensitive field leaked")
	}
}

func TestUpdateAvatar(t *testing.T) {
	svc, repo, media := newIdentity(t)
	user := seedAccount(t, repo, "chai", "chai@example.com", "secret123")
	ctx := context.Background()

	_, err := svc.UpdateAvatar(ctx, user.ID, "")
	wantKind(t, err, domain.KindValidation)

	media.fail = true
	_, err = svc.UpdateAvatar(ctx, user.ID, "/tmp/new.png")
	wantKind(t, err, domain.KindValidation)
	media.fail = false

	updated, err := svc.UpdateAvatar(ctx, user.ID, "/tmp/new.png")
	if err != nil {
		t.Fatalf("UpdateAvatar error: %v", err)
	}
	if updated.AvatarURL != "https://cdn.test//tmp/new.png" {
		t.Fatalf("avatar URL mismatch: %q", updated.AvatarURL)
	}
}
