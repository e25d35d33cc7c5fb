package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/isdelr/todo-api/internal/apperr"
	"github.com/isdelr/todo-api/internal/auth"
	"github.com/isdelr/todo-api/internal/models"
	"github.com/isdelr/todo-api/internal/services"
	"github.com/rs/zerolog/log"
)

// TodoHandler handles HTTP requests for the caller's todos.
type TodoHandler struct {
	service services.TodoServiceProvider
}

// NewTodoHandler creates a new TodoHandler.
func NewTodoHandler(service services.TodoServiceProvider) *TodoHandler {
	return &TodoHandler{service: service}
}

// CreateTodoPayload defines the structure for todo creation requests.
type CreateTodoPayload struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	DueDate     *string `json:"dueDate"`
	Tags        []int64 `json:"tags"`
}

// UpdateTodoPayload defines the structure for todo update requests. Omitted
// fields are left as they are; description and dueDate are cleared by null.
type UpdateTodoPayload struct {
	Title       *string        `json:"title"`
	Description optionalString `json:"description"`
	IsCompleted *bool          `json:"isCompleted"`
	DueDate     optionalString `json:"dueDate"`
	Tags        *[]int64       `json:"tags"`
}

// optionalString records whether a field was present at all, so an explicit null
// can be told apart from an omitted field.
type optionalString struct {
	Set   bool
	Value *string
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// GetAll handles the request to list the caller's todos.
func (h *TodoHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var filter services.TodoFilter
	if raw := r.URL.Query().Get("completed"); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, r, apperr.Validation("completed", "completed must be true or false"), "")
			return
		}
		filter.Completed = &completed
	}

	todos, err := h.service.GetAllTodos(r.Context(), identity.UserID, filter)
	if err != nil {
		respondError(w, r, err, "Error fetching todos")
		return
	}

	log.Debug().Int64("user_id", identity.UserID).Int("count", len(todos)).Msg("Fetched todos")
	respondJSON(w, http.StatusOK, todos)
}

// Create handles the request to create a todo.
func (h *TodoHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var payload CreateTodoPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	dueDate, err := parseDueDate(payload.DueDate)
	if err != nil {
		respondError(w, r, err, "")
		return
	}

	todo, err := h.service.CreateTodo(r.Context(), identity.UserID, services.CreateTodoInput{
		Title:       payload.Title,
		Description: payload.Description,
		DueDate:     dueDate,
		TagIDs:      payload.Tags,
	})
	if err != nil {
		respondError(w, r, err, "Error creating todo")
		return
	}

	log.Info().Int64("user_id", identity.UserID).Int64("todo_id", todo.ID).Msg("Todo created")
	respondJSON(w, http.StatusCreated, todo)
}

// Get handles the request to fetch one todo.
func (h *TodoHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	id, ok := idParam(r)
	if !ok {
		respondError(w, r, apperr.NotFound("Todo not found"), "")
		return
	}

	todo, err := h.service.GetTodoByID(r.Context(), identity.UserID, id)
	if err != nil {
		respondError(w, r, err, "Error fetching todo")
		return
	}

	respondJSON(w, http.StatusOK, todo)
}

// Update handles the request to modify a todo.
func (h *TodoHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	id, ok := idParam(r)
	if !ok {
		respondError(w, r, apperr.NotFound("Todo not found"), "")
		return
	}

	var payload UpdateTodoPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	input := services.UpdateTodoInput{
		Title:       payload.Title,
		IsCompleted: payload.IsCompleted,
		TagIDs:      payload.Tags,
	}
	if payload.Description.Set {
		input.Description = payload.Description.Value
		input.ClearDescription = payload.Description.Value == nil
	}
	if payload.DueDate.Set {
		dueDate, err := parseDueDate(payload.DueDate.Value)
		if err != nil {
			respondError(w, r, err, "")
			return
		}
		input.DueDate = dueDate
		input.ClearDueDate = dueDate == nil
	}

	todo, err := h.service.UpdateTodo(r.Context(), identity.UserID, id, input)
	if err != nil {
		respondError(w, r, err, "Error updating todo")
		return
	}

	respondJSON(w, http.StatusOK, todo)
}

// Delete handles the request to delete a todo.
func (h *TodoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	id, ok := idParam(r)
	if !ok {
		respondError(w, r, apperr.NotFound("Todo not found"), "")
		return
	}

	if err := h.service.DeleteTodo(r.Context(), identity.UserID, id); err != nil {
		respondError(w, r, err, "Error deleting todo")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseDueDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := models.ParseDueDate(*raw)
	if err != nil {
		return nil, apperr.Validation("dueDate", "dueDate must be an RFC 3339 timestamp or YYYY-MM-DD")
	}
	return &t, nil
}
