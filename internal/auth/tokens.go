// Package auth issues and verifies the HS256 bearer tokens of the panel
// API.
package auth

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hostlify/hostlify/internal/clock"
	"github.com/hostlify/hostlify/internal/config"
	"go.uber.org/fx"
)

const tokenTTL = 24 * time.Hour

var (
	ErrMissingSecret = errors.New("auth jwt secret is not configured")
	ErrInvalidToken  = errors.New("invalid token")
)

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

type Tokens struct {
	secret []byte
	clock  clock.Clock
}

type Params struct {
	fx.In

	Config config.Config
	Clock  clock.Clock
}

func NewTokens(p Params) *Tokens {
	return &Tokens{
		secret: []byte(p.Config.AuthJWTSecret),
		clock:  p.Clock,
	}
}

func (t *Tokens) Issue(userID snowflake.ID) (string, time.Time, error) {
	if len(t.secret) == 0 {
		return "", time.Time{}, ErrMissingSecret
	}
	now := t.clock.Now()
	expiresAt := now.Add(tokenTTL)
	claims := &Claims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (t *Tokens) Verify(raw string) (snowflake.ID, error) {
	if len(t.secret) == 0 {
		return 0, ErrMissingSecret
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.clock.Now))
	if err != nil {
		return 0, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return 0, ErrInvalidToken
	}
	id, err := snowflake.ParseString(claims.UserID)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}
