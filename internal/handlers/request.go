package handlers

import (
	"net/http"

	"streak-backend/internal/middleware"
	"streak-backend/internal/models"
	"streak-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// RequestHandler handles link request HTTP requests
type RequestHandler struct {
	requestService *services.RequestService
}

// NewRequestHandler creates a new request handler
func NewRequestHandler(requestService *services.RequestService) *RequestHandler {
	return &RequestHandler{
		requestService: requestService,
	}
}

// IncomingResponse lists requests waiting for the user
type IncomingResponse struct {
	Requests []*models.StreakRequest `json:"requests"`
}

// CreateRequest handles POST /api/v1/requests
func (h *RequestHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req services.CreateRequestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PartnerHandle == "" {
		respondError(w, "partner_handle is required", http.StatusBadRequest)
		return
	}

	out, err := h.requestService.Request(ctx, userID, req.PartnerHandle)
	if err != nil {
		respondServiceError(w, err, "Failed to create request")
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("partner_handle", req.PartnerHandle).
		Bool("linked", out.Linked).
		Msg("Streak request created")

	status := http.StatusCreated
	if out.Linked {
		status = http.StatusOK
	}
	respondJSON(w, status, out)
}

// ListIncoming handles GET /api/v1/requests
func (h *RequestHandler) ListIncoming(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	reqs, err := h.requestService.Incoming(ctx, userID)
	if err != nil {
		respondServiceError(w, err, "Failed to list requests")
		return
	}
	respondJSON(w, http.StatusOK, IncomingResponse{Requests: reqs})
}

// AcceptRequest handles POST /api/v1/requests/{request_id}/accept
func (h *RequestHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	requestID := chi.URLParam(r, "request_id")

	pair, err := h.requestService.Accept(ctx, requestID, userID)
	if err != nil {
		respondServiceError(w, err, "Failed to accept request")
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("request_id", requestID).
		Str("pair", pair.Key.String()).
		Msg("Streak request accepted")

	respondJSON(w, http.StatusOK, StreakResponse{
		PartnerID: pair.Key.Other(userID),
		Count:     pair.Count,
	})
}

// DeclineRequest handles POST /api/v1/requests/{request_id}/decline
func (h *RequestHandler) DeclineRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	requestID := chi.URLParam(r, "request_id")

	if err := h.requestService.Decline(ctx, requestID, userID); err != nil {
		respondServiceError(w, err, "Failed to decline request")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
