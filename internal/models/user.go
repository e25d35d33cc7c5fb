package models

import "time"

// User represents a user account in the system.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"` // Never expose this to the client
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`

	// Tokens is only populated when explicitly requested.
	Tokens []Token `json:"-" db:"-"`
}

// Token is an issued bearer credential. A row existing is half of what makes the
// token valid; deleting it revokes the token.
type Token struct {
	ID        int64     `json:"id" db:"id"`
	Token     string    `json:"-" db:"token"`
	UserID    int64     `json:"userId" db:"user_id"`
	ExpiresAt time.Time `json:"expiresAt" db:"expires_at"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Expired reports whether the token's stored expiry is at or before now.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
