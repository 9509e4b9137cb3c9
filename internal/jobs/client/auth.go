package client

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies the bearer token attached to backend calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed API key.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	return strings.TrimSpace(string(s)), nil
}

type userIDKey struct{}

// WithUserID records the acting user so minted tokens can carry it.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func userIDFrom(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(userIDKey{}).(int64)
	return v, ok && v != 0
}

// SignedToken mints short lived HS256 service tokens for backends that verify a shared
// secret instead of accepting a static key.
type SignedToken struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration

	now func() time.Time
}

type serviceClaims struct {
	UserID int64 `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

func (s *SignedToken) Token(ctx context.Context) (string, error) {
	if s == nil || len(s.Secret) == 0 {
		return "", errors.New("signing secret required")
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	issued := now()
	claims := serviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    strings.TrimSpace(s.Issuer),
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		},
	}
	if aud := strings.TrimSpace(s.Audience); aud != "" {
		claims.Audience = jwt.ClaimStrings{aud}
	}
	if uid, ok := userIDFrom(ctx); ok {
		claims.UserID = uid
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
}
