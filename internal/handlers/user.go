package handlers

import (
	"net/http"

	"streak-backend/internal/middleware"
	"streak-backend/internal/models"
	"streak-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// CreateUserRequest represents the request body for registering a user
type CreateUserRequest struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
}

// CreateUserResponse carries the user and their API token
type CreateUserResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// PushTokenRequest represents the request body for setting a push token
type PushTokenRequest struct {
	PushToken string `json:"push_token"`
}

// CreateUser handles POST /api/v1/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateUserRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, token, err := h.userService.Register(ctx, req.ID, req.Handle)
	if err != nil {
		respondServiceError(w, err, "Failed to create user")
		return
	}

	log.Info().
		Str("user_id", user.ID).
		Str("handle", user.Handle).
		Msg("User registered")

	respondJSON(w, http.StatusOK, CreateUserResponse{User: user, Token: token})
}

// GetMe handles GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	user, err := h.userService.GetUser(ctx, userID)
	if err != nil {
		respondServiceError(w, err, "Failed to get user")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// SetPushToken handles PUT /api/v1/users/me/push-token
func (h *UserHandler) SetPushToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req PushTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.userService.SetPushToken(ctx, userID, req.PushToken); err != nil {
		respondServiceError(w, err, "Failed to set push token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
