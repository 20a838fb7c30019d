package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/platinummonkey/taskdesk/pkg/apperr"
	"github.com/platinummonkey/taskdesk/pkg/config"
	"github.com/platinummonkey/taskdesk/pkg/users"
)

// RefreshTokenLength is the number of random bytes in a refresh token
const RefreshTokenLength = 32

// Identity is the authenticated caller carried by an access token
type Identity struct {
	UserID   int64      `json:"id"`
	Username string     `json:"username"`
	Role     users.Role `json:"role"`
}

// IdentityOf returns the identity of u
func IdentityOf(u *users.User) Identity {
	return Identity{UserID: u.ID, Username: u.Username, Role: u.Role}
}

// Claims are the access token claims
type Claims struct {
	UserID   int64      `json:"uid"`
	Username string     `json:"username"`
	Role     users.Role `json:"role"`
	jwt.RegisteredClaims
}

// Identity returns the caller described by the claims
func (c *Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Username: c.Username, Role: c.Role}
}

// TokenIssuer mints and verifies access tokens and mints refresh tokens
type TokenIssuer struct {
	key      []byte
	ttl      time.Duration
	issuer   string
	audience string
	now      func() time.Time
}

// NewTokenIssuer creates an issuer from the auth configuration
func NewTokenIssuer(cfg config.AuthConfig) *TokenIssuer {
	return &TokenIssuer{
		key:      []byte(cfg.SigningKey),
		ttl:      cfg.AccessTokenTTL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      time.Now,
	}
}

// IssueAccessToken signs a short-lived token for id
func (ti *TokenIssuer) IssueAccessToken(id Identity) (string, time.Time, error) {
	now := ti.now().UTC()
	expiresAt := now.Add(ti.ttl)

	claims := &Claims{
		UserID:   id.UserID,
		Username: id.Username,
		Role:     id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.UserID, 10),
			Issuer:    ti.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	if ti.audience != "" {
		claims.Audience = jwt.ClaimStrings{ti.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.key)
	if err != nil {
		return "", time.Time{}, apperr.Internal(err, "failed to sign access token")
	}
	return signed, expiresAt, nil
}

// ParseAccessToken verifies token and returns its claims. Every failure is
// Unauthorized.
func (ti *TokenIssuer) ParseAccessToken(token string) (*Claims, error) {
	if token == "" {
		return nil, apperr.Unauthorized("missing access token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(ti.now),
	}
	if ti.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ti.issuer))
	}
	if ti.audience != "" {
		opts = append(opts, jwt.WithAudience(ti.audience))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return ti.key, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Wrap(apperr.KindUnauthorized, err, "token expired")
		}
		return nil, apperr.Wrap(apperr.KindUnauthorized, err, "invalid token")
	}
	if !claims.Role.IsValid() {
		return nil, apperr.Unauthorized("invalid token")
	}
	return claims, nil
}

// IssueRefreshToken returns an opaque random token
func (ti *TokenIssuer) IssueRefreshToken() (string, error) {
	b := make([]byte, RefreshTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", apperr.Internal(fmt.Errorf("failed to generate random bytes: %w", err), "failed to issue refresh token")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
