package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/isdelr/todo-api/internal/apperr"
	"github.com/isdelr/todo-api/internal/models"
)

// Claims defines the JWT claims structure.
type Claims struct {
	UserID int64 `json:"userId"`
	jwt.RegisteredClaims
}

// TokenCreator persists issued tokens.
type TokenCreator interface {
	CreateToken(ctx context.Context, token string, userID int64, expiresAt time.Time) (models.Token, error)
}

// IssuedToken is the bearer credential handed to a client after login.
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Issuer mints signed, time-limited tokens and records them in the store.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	store  TokenCreator
	now    func() time.Time
}

// NewIssuer creates an Issuer signing with secret. Tokens live for ttl.
func NewIssuer(secret []byte, ttl time.Duration, store TokenCreator) *Issuer {
	return &Issuer{secret: secret, ttl: ttl, store: store, now: time.Now}
}

// Issue signs a token for userID and persists it before returning it. If the store
// write fails no token is returned: an unrecorded token would never pass the
// verifier's lookup step.
func (i *Issuer) Issue(ctx context.Context, userID int64) (IssuedToken, error) {
	if userID <= 0 {
		return IssuedToken{}, apperr.Internal("Error logging in", fmt.Errorf("invalid user id %d", userID))
	}

	issuedAt := i.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.ttl)

	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return IssuedToken{}, apperr.Internal("Error logging in", fmt.Errorf("signing token: %w", err))
	}

	if _, err := i.store.CreateToken(ctx, signed, userID, expiresAt); err != nil {
		return IssuedToken{}, apperr.Internal("Error logging in", fmt.Errorf("persisting token: %w", err))
	}

	return IssuedToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// parseToken validates the signature and registered claims of tokenStr.
func parseToken(tokenStr string, secret []byte, now func() time.Time) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID <= 0 {
		return nil, errors.New("token has no user id")
	}
	return claims, nil
}
