package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"studydash/internal/service"
	"studydash/internal/validation"
)

// AuthHandler handles login and account management requests
type AuthHandler struct {
	authService *service.AuthService
	log         *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{authService: authService, log: log}
}

// Login exchanges credentials for a bearer token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if !decodeJSON(w, r, &in) {
		return
	}

	res, err := h.authService.Login(r.Context(), in)
	if err != nil {
		h.log.Info("login failed", zap.String("username", in.Username), zap.Error(err))
		writeServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Me returns the authenticated user
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, GetUserFromContext(r.Context()))
}

// ListUsers returns every account
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.authService.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

// CreateUser adds an account
func (h *AuthHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in service.CreateUserInput
	if !decodeJSON(w, r, &in) {
		return
	}

	res, err := h.authService.CreateUser(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

// UpdateUser applies a partial update to an account
func (h *AuthHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in service.UpdateUserInput
	if !decodeJSON(w, r, &in) {
		return
	}

	user, err := h.authService.UpdateUser(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// DeleteUser removes an account
func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.authService.DeleteUser(r.Context(), GetUserFromContext(r.Context()), id); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword updates the caller's own password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var in service.ChangePasswordInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := h.authService.ChangePassword(r.Context(), GetUserFromContext(r.Context()), in); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckUsername reports whether a username can be used for a new account
func (h *AuthHandler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	available, err := h.authService.UsernameAvailable(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		if _, ok := validation.Fields(err); !ok {
			writeServiceError(w, h.log, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]bool{"available": available})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		respondJSON(w, http.StatusBadRequest, ErrorBody{Error: "Invalid " + name})
		return 0, false
	}
	return id, true
}
