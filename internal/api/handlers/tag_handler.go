package handlers

import (
	"net/http"

	"github.com/isdelr/todo-api/internal/services"
	"github.com/rs/zerolog/log"
)

// TagHandler handles HTTP requests for the shared tag list.
type TagHandler struct {
	service services.TagServiceProvider
}

// NewTagHandler creates a new TagHandler.
func NewTagHandler(service services.TagServiceProvider) *TagHandler {
	return &TagHandler{service: service}
}

// CreateTagPayload defines the structure for tag creation requests.
type CreateTagPayload struct {
	Name string `json:"name"`
}

// GetAll handles the request to get all tags.
func (h *TagHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	tags, err := h.service.GetAllTags(r.Context())
	if err != nil {
		respondError(w, r, err, "Error fetching tags")
		return
	}
	respondJSON(w, http.StatusOK, tags)
}

// Create handles the request to create a new tag.
func (h *TagHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload CreateTagPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	tag, err := h.service.CreateTag(r.Context(), payload.Name)
	if err != nil {
		respondError(w, r, err, "Error creating tag")
		return
	}

	log.Info().Int64("tag_id", tag.ID).Str("name", tag.Name).Msg("Tag created")
	respondJSON(w, http.StatusCreated, tag)
}
