package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/isdelr/todo-api/internal/apperr"
	"github.com/isdelr/todo-api/internal/auth"
	"github.com/isdelr/todo-api/internal/services"
	"github.com/rs/zerolog/log"
)

// SessionCloser ends live connections that were opened with a revoked token.
type SessionCloser interface {
	DisconnectToken(token string)
	DisconnectUser(userID int64)
}

// UserHandler handles registration and session endpoints.
type UserHandler struct {
	service  services.UserServiceProvider
	hasher   *auth.Hasher
	issuer   *auth.Issuer
	sessions SessionCloser
}

// NewUserHandler creates a new UserHandler. sessions may be nil.
func NewUserHandler(service services.UserServiceProvider, hasher *auth.Hasher, issuer *auth.Issuer, sessions SessionCloser) *UserHandler {
	return &UserHandler{service: service, hasher: hasher, issuer: issuer, sessions: sessions}
}

// RegisterPayload defines the structure for registration requests.
type RegisterPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginPayload defines the structure for login requests.
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is returned on successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type messageResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"userId,omitempty"`
	Revoked *int64 `json:"revoked,omitempty"`
}

const invalidCredentials = "Invalid credentials"

// Register handles new user registration.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload RegisterPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	switch {
	case strings.TrimSpace(payload.Username) == "":
		respondError(w, r, apperr.Validation("username", "Username is required"), "")
		return
	case strings.TrimSpace(payload.Email) == "":
		respondError(w, r, apperr.Validation("email", "Email is required"), "")
		return
	case payload.Password == "":
		respondError(w, r, apperr.Validation("password", "Password is required"), "")
		return
	}

	digest, err := h.hasher.Hash(payload.Password)
	if err != nil {
		respondError(w, r, err, "Error registering user")
		return
	}

	user, err := h.service.CreateUser(r.Context(), strings.TrimSpace(payload.Username), payload.Email, digest)
	if err != nil {
		respondError(w, r, err, "Error registering user")
		return
	}

	log.Info().Int64("user_id", user.ID).Msg("User registered")
	respondJSON(w, http.StatusCreated, messageResponse{Message: "User created successfully", UserID: user.ID})
}

// Login checks credentials and issues a bearer token. Unknown email and wrong
// password produce the same response.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload LoginPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	if strings.TrimSpace(payload.Email) == "" || payload.Password == "" {
		respondError(w, r, apperr.Unauthenticated(invalidCredentials, nil), "")
		return
	}

	user, err := h.service.GetUserByEmail(r.Context(), payload.Email)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			respondError(w, r, err, "Error logging in")
			return
		}
		h.hasher.VerifyNothing(payload.Password)
		log.Warn().Msg("Failed authentication attempt")
		respondError(w, r, apperr.Unauthenticated(invalidCredentials, err), "")
		return
	}

	if !h.hasher.Verify(payload.Password, user.PasswordHash) {
		log.Warn().Int64("user_id", user.ID).Msg("Failed authentication attempt")
		respondError(w, r, apperr.Unauthenticated(invalidCredentials, nil), "")
		return
	}

	issued, err := h.issuer.Issue(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, err, "Error logging in")
		return
	}

	respondJSON(w, http.StatusOK, LoginResult{Token: issued.Token, ExpiresAt: issued.ExpiresAt})
}

// Logout revokes the token the request was authenticated with. A token that is
// already gone counts as logged out.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, r, apperr.Unauthenticated(auth.DenyMessage, nil), "")
		return
	}

	err := h.service.DeleteToken(r.Context(), identity.Token)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		respondError(w, r, err, "Error logging out")
		return
	}
	if h.sessions != nil {
		h.sessions.DisconnectToken(identity.Token)
	}

	respondJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

// LogoutAll revokes every token of the caller, ending sessions on all devices.
func (h *UserHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, r, apperr.Unauthenticated(auth.DenyMessage, nil), "")
		return
	}

	revoked, err := h.service.DeleteUserTokens(r.Context(), identity.UserID)
	if err != nil {
		respondError(w, r, err, "Error logging out")
		return
	}
	if h.sessions != nil {
		h.sessions.DisconnectUser(identity.UserID)
	}

	respondJSON(w, http.StatusOK, messageResponse{Message: "Logged out of all sessions", Revoked: &revoked})
}

// GetMe retrieves the currently authenticated user.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		respondError(w, r, apperr.Unauthenticated(auth.DenyMessage, nil), "")
		return
	}

	user, err := h.service.GetUserByID(r.Context(), identity.UserID, false)
	if err != nil {
		respondError(w, r, err, "Error fetching user")
		return
	}

	respondJSON(w, http.StatusOK, user)
}
