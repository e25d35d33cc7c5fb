package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/isdelr/todo-api/internal/apperr"
	"github.com/isdelr/todo-api/internal/models"
	"github.com/jmoiron/sqlx"
)

// UserServiceProvider defines the interface for user and token persistence.
type UserServiceProvider interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByID(ctx context.Context, id int64, withTokens bool) (models.User, error)

	CreateToken(ctx context.Context, token string, userID int64, expiresAt time.Time) (models.Token, error)
	FindToken(ctx context.Context, token string) (models.Token, error)
	DeleteToken(ctx context.Context, token string) error
	DeleteUserTokens(ctx context.Context, userID int64) (int64, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// UserService is the credential store: user records and their issued tokens.
type UserService struct {
	db *sqlx.DB
}

// NewUserService creates a new UserService.
func NewUserService(db *sqlx.DB) *UserService {
	return &UserService{db: db}
}

// CreateUser inserts a user. passwordHash must already be a digest.
func (s *UserService) CreateUser(ctx context.Context, username, email, passwordHash string) (models.User, error) {
	email = normalizeEmail(email)
	createdAt := time.Now().UTC().Truncate(time.Second)

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)",
		username, email, passwordHash, createdAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, apperr.Conflict("Error registering user", "email already registered", err)
		}
		return models.User{}, fmt.Errorf("creating user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.User{}, fmt.Errorf("reading user id: %w", err)
	}

	return models.User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    createdAt,
	}, nil
}

// GetUserByEmail retrieves a single user by their email, including the password hash.
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		"SELECT id, username, email, password_hash, created_at FROM users WHERE email = ?",
		normalizeEmail(email))
	if err != nil {
		return models.User{}, notFoundOr(err, "User not found")
	}
	return user, nil
}

// GetUserByID retrieves a single user by ID, optionally with their tokens.
func (s *UserService) GetUserByID(ctx context.Context, id int64, withTokens bool) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		"SELECT id, username, email, password_hash, created_at FROM users WHERE id = ?", id)
	if err != nil {
		return models.User{}, notFoundOr(err, "User not found")
	}

	if withTokens {
		err = s.db.SelectContext(ctx, &user.Tokens,
			"SELECT id, token, user_id, expires_at, created_at FROM tokens WHERE user_id = ? ORDER BY id", id)
		if err != nil {
			return models.User{}, fmt.Errorf("loading tokens for user %d: %w", id, err)
		}
	}
	return user, nil
}

// CreateToken records an issued token.
func (s *UserService) CreateToken(ctx context.Context, token string, userID int64, expiresAt time.Time) (models.Token, error) {
	t := models.Token{
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO tokens (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)",
		t.Token, t.UserID, t.ExpiresAt, t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Token{}, apperr.Conflict("Token already recorded", "duplicate token", err)
		}
		return models.Token{}, fmt.Errorf("creating token for user %d: %w", userID, err)
	}

	if t.ID, err = res.LastInsertId(); err != nil {
		return models.Token{}, fmt.Errorf("reading token id: %w", err)
	}
	return t, nil
}

// FindToken looks up a token record by its exact string.
func (s *UserService) FindToken(ctx context.Context, token string) (models.Token, error) {
	var t models.Token
	err := s.db.GetContext(ctx, &t,
		"SELECT id, token, user_id, expires_at, created_at FROM tokens WHERE token = ?", token)
	if err != nil {
		return models.Token{}, notFoundOr(err, "Token not found")
	}
	return t, nil
}

// DeleteToken revokes a token. Deleting a token that does not exist returns apperr.NotFound.
func (s *UserService) DeleteToken(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tokens WHERE token = ?", token)
	if err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("Token not found")
	}
	return nil
}

// DeleteUserTokens revokes every token of a user and returns how many were removed.
func (s *UserService) DeleteUserTokens(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tokens WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("deleting tokens for user %d: %w", userID, err)
	}
	return res.RowsAffected()
}

// DeleteExpiredTokens removes token rows whose expiry is at or before now.
func (s *UserService) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tokens WHERE expires_at <= ?", now.UTC().Truncate(time.Second))
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}
	return res.RowsAffected()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
