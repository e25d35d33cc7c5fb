package models

import "time"

// Event represents an entry in a user's activity feed.
type Event struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"userId" db:"user_id"`
	Type      string    `json:"type" db:"type"` // e.g., "todo.create", "todo.delete"
	Message   string    `json:"message" db:"message"`
	TodoID    *int64    `json:"todoId,omitempty" db:"todo_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

const (
	EventTodoCreate = "todo.create"
	EventTodoUpdate = "todo.update"
	EventTodoDelete = "todo.delete"
)
