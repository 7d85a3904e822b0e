// Package auth implements account registration, credential verification, and
// stateless token auth for the Wayfarer API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"wayfarer/internal/types"
)

const tokenIssuer = "wayfarer"

// Claims are the JWT claims carried by an access token.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HMAC-signed access tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	clock  types.Clock
}

// NewTokenService creates a TokenService. The secret must be at least 32
// bytes; config validation enforces that before this is called.
func NewTokenService(secret types.SecretString, ttl time.Duration, clock types.Clock) *TokenService {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &TokenService{
		secret: []byte(secret.Unmask()),
		ttl:    ttl,
		clock:  clock,
	}
}

// Issue signs a new access token for the account.
func (s *TokenService) Issue(account *types.Account) (string, error) {
	now := s.clock.Now()
	claims := Claims{
		Email: account.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to sign access token",
			err,
		)
	}
	return signed, nil
}

// Verify parses and validates a token string and returns the authenticated
// actor. Expired tokens and tokens signed with the wrong key or algorithm
// are rejected.
func (s *TokenService) Verify(tokenString string) (*types.Actor, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, types.NewAppError(
				types.ErrCodeAuthTokenExpired,
				"access token has expired",
				err,
			)
		}
		return nil, types.NewAppError(
			types.ErrCodeAuthTokenInvalid,
			"invalid access token",
			err,
		)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, types.NewAppError(
			types.ErrCodeAuthTokenInvalid,
			"access token carries no subject",
			nil,
		)
	}

	return &types.Actor{
		AccountID: claims.Subject,
		Email:     claims.Email,
	}, nil
}
