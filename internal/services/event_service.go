package services

import (
	"context"
	"fmt"
	"time"

	"github.com/isdelr/todo-api/internal/models"
	"github.com/jmoiron/sqlx"
)

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	CreateEvent(ctx context.Context, userID int64, eventType, message string, todoID *int64) (models.Event, error)
	GetRecentEvents(ctx context.Context, userID int64, limit int) ([]models.Event, error)
}

// EventPublisher pushes freshly recorded events to live subscribers.
type EventPublisher interface {
	PublishEvent(event models.Event)
}

// EventService records per-user activity and fans it out to live connections.
type EventService struct {
	db        *sqlx.DB
	publisher EventPublisher
}

// NewEventService creates a new EventService. publisher may be nil.
func NewEventService(db *sqlx.DB, publisher EventPublisher) *EventService {
	return &EventService{db: db, publisher: publisher}
}

// CreateEvent logs a new event to the database and publishes it.
func (s *EventService) CreateEvent(ctx context.Context, userID int64, eventType, message string, todoID *int64) (models.Event, error) {
	event := models.Event{
		UserID:    userID,
		Type:      eventType,
		Message:   message,
		TodoID:    todoID,
		CreatedAt: time.Now().UTC(),
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO events (user_id, type, message, todo_id, created_at) VALUES (?, ?, ?, ?, ?)",
		event.UserID, event.Type, event.Message, event.TodoID, event.CreatedAt,
	)
	if err != nil {
		return models.Event{}, fmt.Errorf("creating event: %w", err)
	}
	if event.ID, err = res.LastInsertId(); err != nil {
		return models.Event{}, fmt.Errorf("reading event id: %w", err)
	}

	if s.publisher != nil {
		s.publisher.PublishEvent(event)
	}
	return event, nil
}

// GetRecentEvents retrieves the user's most recent events, newest first.
func (s *EventService) GetRecentEvents(ctx context.Context, userID int64, limit int) ([]models.Event, error) {
	events := []models.Event{}
	err := s.db.SelectContext(ctx, &events, `
		SELECT id, user_id, type, message, todo_id, created_at
		FROM events WHERE user_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events for user %d: %w", userID, err)
	}
	return events, nil
}
