// Package token issues and verifies the JWT pair used for bearer sessions:
// a short-lived access token carrying identity claims and a long-lived
// refresh token carrying only the user id. The two sides are signed with
// separate secrets so one can never stand in for the other.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"vidstream/internal/domain"
)

// ErrInvalidToken indicates a token that parsed but failed validation.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims are the claims embedded in access tokens.
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Email    string `json:"email"`
}

// RefreshClaims carry only the user id; everything else is resolved from the
// store at refresh time.
type RefreshClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
}

// Manager signs and parses the access/refresh token pair.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func (m *Manager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

// NewAccessToken mints a short-lived access token for the given user.
func (m *Manager) NewAccessToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
		UserID:   user.ID,
		UserName: user.UserName,
		Email:    user.Email,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.accessSecret)
}

// NewRefreshToken mints a long-lived refresh token naming only the user.
func (m *Manager) NewRefreshToken(userID string) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTTL)),
		},
		UserID: userID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.refreshSecret)
}

// ParseAccessToken verifies signature and expiry and returns the claims.
func (m *Manager) ParseAccessToken(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.accessSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseRefreshToken verifies signature and expiry and returns the user id
// named in the token.
func (m *Manager) ParseRefreshToken(tokenString string) (string, error) {
	claims := &RefreshClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.refreshSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("parse refresh token: %w", err)
	}
	if !tok.Valid {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}
