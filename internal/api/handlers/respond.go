package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/todo-api/internal/apperr"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError maps a classified error to its status code. Internal errors are
// logged with their cause and answered with fallback only.
func respondError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Internal(fallback, err)
	}

	switch appErr.Kind {
	case apperr.KindValidation:
		respondJSON(w, http.StatusBadRequest, errorBody{Error: appErr.Message, Field: appErr.Field})
	case apperr.KindUnauthenticated:
		respondJSON(w, http.StatusUnauthorized, errorBody{Error: appErr.Message})
	case apperr.KindNotFound:
		respondJSON(w, http.StatusNotFound, errorBody{Error: appErr.Message})
	case apperr.KindConflict:
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Conflict")
		respondJSON(w, http.StatusConflict, errorBody{Error: appErr.Message, Details: appErr.Details})
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg(fallback)
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: fallback})
	}
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
		return false
	}
	return true
}

// idParam parses the {id} URL parameter. Anything that is not a positive integer
// cannot name a row, so the caller answers 404.
func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}
