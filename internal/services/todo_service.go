package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/isdelr/todo-api/internal/apperr"
	"github.com/isdelr/todo-api/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// TodoServiceProvider defines the interface for todo services. Every method is
// scoped by the owning user's id; another user's todo behaves as if it did not exist.
type TodoServiceProvider interface {
	GetAllTodos(ctx context.Context, userID int64, filter TodoFilter) ([]models.Todo, error)
	GetTodoByID(ctx context.Context, userID, id int64) (models.Todo, error)
	CreateTodo(ctx context.Context, userID int64, input CreateTodoInput) (models.Todo, error)
	UpdateTodo(ctx context.Context, userID, id int64, input UpdateTodoInput) (models.Todo, error)
	DeleteTodo(ctx context.Context, userID, id int64) error
}

// TodoFilter narrows GetAllTodos.
type TodoFilter struct {
	Completed *bool
}

// CreateTodoInput carries the fields of a new todo.
type CreateTodoInput struct {
	Title       string
	Description *string
	DueDate     *time.Time
	TagIDs      []int64
}

// UpdateTodoInput carries a partial update. Nil fields are left unchanged; a non-nil
// TagIDs replaces the todo's tag set (an empty slice clears it). The Clear flags set
// the column to NULL and win over the matching value.
type UpdateTodoInput struct {
	Title       *string
	Description *string
	IsCompleted *bool
	DueDate     *time.Time
	TagIDs      *[]int64

	ClearDescription bool
	ClearDueDate     bool
}

// TodoService provides business logic for todo management.
type TodoService struct {
	db     *sqlx.DB
	events EventServiceProvider
}

// NewTodoService creates a new TodoService.
func NewTodoService(db *sqlx.DB, events EventServiceProvider) *TodoService {
	return &TodoService{db: db, events: events}
}

const todoColumns = "id, title, description, is_completed, due_date, user_id, created_at, updated_at"

// GetAllTodos retrieves the user's todos with their tags, newest first.
func (s *TodoService) GetAllTodos(ctx context.Context, userID int64, filter TodoFilter) ([]models.Todo, error) {
	query := "SELECT " + todoColumns + " FROM todos WHERE user_id = ?"
	args := []interface{}{userID}
	if filter.Completed != nil {
		query += " AND is_completed = ?"
		args = append(args, *filter.Completed)
	}
	query += " ORDER BY created_at DESC, id DESC"

	todos := []models.Todo{}
	if err := s.db.SelectContext(ctx, &todos, query, args...); err != nil {
		return nil, fmt.Errorf("querying todos for user %d: %w", userID, err)
	}
	if err := attachTags(ctx, s.db, todos); err != nil {
		return nil, err
	}
	return todos, nil
}

// GetTodoByID retrieves one of the user's todos.
func (s *TodoService) GetTodoByID(ctx context.Context, userID, id int64) (models.Todo, error) {
	return getTodo(ctx, s.db, userID, id)
}

// CreateTodo inserts a todo and links its tags in one transaction. If any tag is
// missing nothing is written.
func (s *TodoService) CreateTodo(ctx context.Context, userID int64, input CreateTodoInput) (models.Todo, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return models.Todo{}, apperr.Validation("title", "Title is required")
	}
	tagIDs := uniqueIDs(input.TagIDs)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Todo{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureTagsExist(ctx, tx, tagIDs); err != nil {
		return models.Todo{}, err
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO todos (title, description, is_completed, due_date, user_id, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?, ?, ?)`,
		title, input.Description, utcPtr(input.DueDate), userID, now, now,
	)
	if err != nil {
		return models.Todo{}, fmt.Errorf("creating todo: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Todo{}, fmt.Errorf("reading todo id: %w", err)
	}

	if err := linkTags(ctx, tx, id, tagIDs); err != nil {
		return models.Todo{}, err
	}

	todo, err := getTodo(ctx, tx, userID, id)
	if err != nil {
		return models.Todo{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Todo{}, fmt.Errorf("committing todo: %w", err)
	}

	s.record(ctx, userID, models.EventTodoCreate, fmt.Sprintf("Todo '%s' created.", todo.Title), todo.ID)
	return todo, nil
}

// UpdateTodo applies a partial update to one of the user's todos.
func (s *TodoService) UpdateTodo(ctx context.Context, userID, id int64, input UpdateTodoInput) (models.Todo, error) {
	var sets []string
	var args []interface{}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return models.Todo{}, apperr.Validation("title", "Title is required")
		}
		sets = append(sets, "title = ?")
		args = append(args, title)
	}
	switch {
	case input.ClearDescription:
		sets = append(sets, "description = NULL")
	case input.Description != nil:
		sets = append(sets, "description = ?")
		args = append(args, *input.Description)
	}
	if input.IsCompleted != nil {
		sets = append(sets, "is_completed = ?")
		args = append(args, *input.IsCompleted)
	}
	switch {
	case input.ClearDueDate:
		sets = append(sets, "due_date = NULL")
	case input.DueDate != nil:
		sets = append(sets, "due_date = ?")
		args = append(args, input.DueDate.UTC())
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Todo{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Ownership first, so a foreign todo is a 404 even when the payload is also bad.
	var owned int
	if err := tx.GetContext(ctx, &owned,
		"SELECT COUNT(*) FROM todos WHERE id = ? AND user_id = ?", id, userID); err != nil {
		return models.Todo{}, fmt.Errorf("checking todo %d: %w", id, err)
	}
	if owned == 0 {
		return models.Todo{}, apperr.NotFound("Todo not found")
	}

	var tagIDs []int64
	if input.TagIDs != nil {
		tagIDs = uniqueIDs(*input.TagIDs)
		if err := ensureTagsExist(ctx, tx, tagIDs); err != nil {
			return models.Todo{}, err
		}
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id, userID)
	query := "UPDATE todos SET " + strings.Join(sets, ", ") + " WHERE id = ? AND user_id = ?"
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return models.Todo{}, fmt.Errorf("updating todo %d: %w", id, err)
	}

	if input.TagIDs != nil {
		if _, err := tx.ExecContext(ctx, "DELETE FROM todo_tags WHERE todo_id = ?", id); err != nil {
			return models.Todo{}, fmt.Errorf("clearing tags of todo %d: %w", id, err)
		}
		if err := linkTags(ctx, tx, id, tagIDs); err != nil {
			return models.Todo{}, err
		}
	}

	todo, err := getTodo(ctx, tx, userID, id)
	if err != nil {
		return models.Todo{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Todo{}, fmt.Errorf("committing todo %d: %w", id, err)
	}

	s.record(ctx, userID, models.EventTodoUpdate, fmt.Sprintf("Todo '%s' updated.", todo.Title), todo.ID)
	return todo, nil
}

// DeleteTodo removes one of the user's todos. Its tag links cascade.
func (s *TodoService) DeleteTodo(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM todos WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("deleting todo %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("Todo not found")
	}

	s.record(ctx, userID, models.EventTodoDelete, fmt.Sprintf("Todo %d deleted.", id), id)
	return nil
}

func (s *TodoService) record(ctx context.Context, userID int64, eventType, message string, todoID int64) {
	if s.events == nil {
		return
	}
	if _, err := s.events.CreateEvent(ctx, userID, eventType, message, &todoID); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Str("type", eventType).Msg("Failed to record event")
	}
}

func getTodo(ctx context.Context, q sqlx.QueryerContext, userID, id int64) (models.Todo, error) {
	var todo models.Todo
	err := sqlx.GetContext(ctx, q, &todo,
		"SELECT "+todoColumns+" FROM todos WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return models.Todo{}, notFoundOr(err, "Todo not found")
	}

	todos := []models.Todo{todo}
	if err := attachTags(ctx, q, todos); err != nil {
		return models.Todo{}, err
	}
	return todos[0], nil
}

func linkTags(ctx context.Context, tx *sqlx.Tx, todoID int64, tagIDs []int64) error {
	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO todo_tags (todo_id, tag_id) VALUES (?, ?)", todoID, tagID); err != nil {
			return fmt.Errorf("linking tag %d to todo %d: %w", tagID, todoID, err)
		}
	}
	return nil
}

// attachTags fills the Tags field of every todo with a single query.
func attachTags(ctx context.Context, q sqlx.QueryerContext, todos []models.Todo) error {
	if len(todos) == 0 {
		return nil
	}

	ids := make([]int64, len(todos))
	for i := range todos {
		ids[i] = todos[i].ID
		todos[i].Tags = []models.Tag{}
	}

	query, args, err := sqlx.In(`
		SELECT tt.todo_id, t.id, t.name, t.created_at
		FROM tags t
		INNER JOIN todo_tags tt ON t.id = tt.tag_id
		WHERE tt.todo_id IN (?)
		ORDER BY t.name`, ids)
	if err != nil {
		return fmt.Errorf("building tag query: %w", err)
	}

	var rows []struct {
		TodoID int64 `db:"todo_id"`
		models.Tag
	}
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return fmt.Errorf("querying todo tags: %w", err)
	}

	index := make(map[int64]int, len(todos))
	for i := range todos {
		index[todos[i].ID] = i
	}
	for _, r := range rows {
		if i, ok := index[r.TodoID]; ok {
			todos[i].Tags = append(todos[i].Tags, r.Tag)
		}
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
