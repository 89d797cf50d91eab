package handlers

import (
	"net/http"

	"streak-backend/internal/middleware"
	"streak-backend/internal/models"
	"streak-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// InteractionHandler reports interactions on behalf of the authenticated user
type InteractionHandler struct {
	streakService *services.StreakService
}

// NewInteractionHandler creates a new interaction handler
func NewInteractionHandler(streakService *services.StreakService) *InteractionHandler {
	return &InteractionHandler{
		streakService: streakService,
	}
}

// InteractionRequest is one directed interaction with a partner
type InteractionRequest struct {
	PartnerID string `json:"partner_id"`
	Context   string `json:"context"`
	Date      string `json:"date,omitempty"`
}

// MessageRequest is a message seen in a context
type MessageRequest struct {
	Context string `json:"context"`
	Date    string `json:"date,omitempty"`
}

// MessageResponse lists the pairs a message touched
type MessageResponse struct {
	Outcomes []models.PairOutcome `json:"outcomes"`
}

// ReportInteraction handles POST /api/v1/interactions
func (h *InteractionHandler) ReportInteraction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req InteractionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	date, ok := parseDate(w, req.Date, h.streakService.Today)
	if !ok {
		return
	}

	tr, err := h.streakService.ReportInteraction(ctx, userID, req.PartnerID, date, req.Context)
	if err != nil {
		respondServiceError(w, err, "Failed to report interaction")
		return
	}

	log.Debug().
		Str("user_id", userID).
		Str("partner_id", req.PartnerID).
		Str("kind", string(tr.Kind)).
		Int("count", tr.Count).
		Msg("Interaction reported")

	respondJSON(w, http.StatusOK, tr)
}

// ObserveMessage handles POST /api/v1/messages
func (h *InteractionHandler) ObserveMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req MessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	date, ok := parseDate(w, req.Date, h.streakService.Today)
	if !ok {
		return
	}

	outcomes, err := h.streakService.ObserveMessage(ctx, userID, req.Context, date)
	if err != nil {
		respondServiceError(w, err, "Failed to observe message")
		return
	}
	if outcomes == nil {
		outcomes = []models.PairOutcome{}
	}
	respondJSON(w, http.StatusOK, MessageResponse{Outcomes: outcomes})
}
