package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/isdelr/todo-api/internal/apperr"
	"github.com/isdelr/todo-api/internal/models"
	"github.com/rs/zerolog/log"
)

// DenyMessage is the only message a client ever sees for a rejected credential.
const DenyMessage = "Please authenticate."

// SessionStore is the read side of the credential store the verifier needs.
type SessionStore interface {
	FindToken(ctx context.Context, token string) (models.Token, error)
	GetUserByID(ctx context.Context, id int64, withTokens bool) (models.User, error)
}

// Verifier is the authentication gate: it accepts a bearer token only if the
// signature is valid and the token is still recorded in the store.
type Verifier struct {
	secret []byte
	store  SessionStore
	now    func() time.Time
}

// NewVerifier creates a Verifier checking signatures against secret.
func NewVerifier(secret []byte, store SessionStore) *Verifier {
	return &Verifier{secret: secret, store: store, now: time.Now}
}

// Authenticate resolves an Authorization header value to an identity. Checks run in
// order and stop at the first failure; every rejection is the same
// apperr.Unauthenticated so callers cannot tell which check failed. Store outages
// surface as apperr.Internal.
func (v *Verifier) Authenticate(ctx context.Context, authorization string) (Identity, error) {
	tokenStr, ok := bearerToken(authorization)
	if !ok {
		return Identity{}, deny("missing bearer token", nil)
	}

	claims, err := parseToken(tokenStr, v.secret, v.now)
	if err != nil {
		return Identity{}, deny("token rejected", err)
	}

	stored, err := v.store.FindToken(ctx, tokenStr)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Identity{}, deny("token not in store", err)
		}
		return Identity{}, apperr.Internal("Authentication unavailable", err)
	}
	if stored.UserID != claims.UserID {
		return Identity{}, deny("token owner mismatch", nil)
	}
	if stored.Expired(v.now()) {
		return Identity{}, deny("stored token expired", nil)
	}

	user, err := v.store.GetUserByID(ctx, claims.UserID, false)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Identity{}, deny("token user missing", err)
		}
		return Identity{}, apperr.Internal("Authentication unavailable", err)
	}

	return Identity{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Token:     tokenStr,
		ExpiresAt: stored.ExpiresAt,
	}, nil
}

// Middleware creates a middleware for protecting routes.
func (v *Verifier) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := v.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				status, msg := http.StatusUnauthorized, DenyMessage
				if !apperr.Is(err, apperr.KindUnauthenticated) {
					log.Error().Err(err).Str("path", r.URL.Path).Msg("Session verification failed")
					status, msg = http.StatusInternalServerError, "Internal server error"
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				json.NewEncoder(w).Encode(map[string]string{"error": msg})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// bearerToken extracts the token from a "Bearer <token>" header value.
func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func deny(reason string, cause error) error {
	ev := log.Debug().Str("reason", reason)
	if cause != nil {
		ev = ev.Err(cause)
	}
	ev.Msg("Authentication denied")
	if cause == nil {
		cause = errors.New(reason)
	}
	return apperr.Unauthenticated(DenyMessage, cause)
}
