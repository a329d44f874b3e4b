package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"studydash/internal/analytics"
	"studydash/internal/service"
	"studydash/internal/validation"
)

// ErrorBody is the JSON shape of every error response
type ErrorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func respondWithError(w http.ResponseWriter, log *zap.Logger, status int, userMsg string, err error) {
	if err != nil && status >= http.StatusInternalServerError {
		log.Error(userMsg, zap.Error(err))
	}
	respondJSON(w, status, ErrorBody{Error: userMsg})
}

// writeServiceError translates service errors into HTTP responses
func writeServiceError(w http.ResponseWriter, log *zap.Logger, err error) {
	if fields, ok := validation.Fields(err); ok {
		respondJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrValidation, Fields: fields})
		return
	}

	switch {
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrUnauthenticated):
		respondWithError(w, log, http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, service.ErrForbidden):
		respondWithError(w, log, http.StatusForbidden, ErrForbidden, nil)
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrStudyNotFound),
		errors.Is(err, service.ErrMembershipNotFound):
		respondWithError(w, log, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, service.ErrUsernameTaken),
		errors.Is(err, service.ErrLastAdmin),
		errors.Is(err, service.ErrSelfDelete):
		respondWithError(w, log, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, analytics.ErrSleepRolesUnset):
		respondWithError(w, log, http.StatusBadRequest, err.Error(), nil)
	default:
		respondWithError(w, log, http.StatusInternalServerError, ErrInternalServerError, err)
	}
}

// decodeJSON reads a JSON request body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrInvalidJSON})
		return false
	}
	return true
}
