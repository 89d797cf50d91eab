package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"streak-backend/internal/models"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog/log"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// respondJSON sends v with the given status code
func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// respondServiceError maps a service error onto a status code
func respondServiceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case models.IsValidation(err):
		respondError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrNotFound):
		respondError(w, "not found", http.StatusNotFound)
	case models.IsAnomaly(err):
		log.Warn().Err(err).Msg(msg)
		respondError(w, "streak state is inconsistent", http.StatusConflict)
	case models.IsStorage(err):
		log.Error().Err(err).Msg(msg)
		respondError(w, "storage unavailable", http.StatusServiceUnavailable)
	default:
		log.Error().Err(err).Msg(msg)
		respondError(w, msg, http.StatusInternalServerError)
	}
}

// decodeBody decodes the JSON request body into v
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// parseDate parses an optional YYYY-MM-DD value, falling back to today
func parseDate(w http.ResponseWriter, value string, today func() civil.Date) (civil.Date, bool) {
	if value == "" {
		return today(), true
	}
	d, err := civil.ParseDate(value)
	if err != nil {
		respondError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return civil.Date{}, false
	}
	return d, true
}
