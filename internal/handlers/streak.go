package handlers

import (
	"net/http"

	"streak-backend/internal/middleware"
	"streak-backend/internal/models"
	"streak-backend/internal/services"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// StreakHandler handles streak and freeze HTTP requests
type StreakHandler struct {
	streakService  *services.StreakService
	economyService *services.EconomyService
}

// NewStreakHandler creates a new streak handler
func NewStreakHandler(streakService *services.StreakService, economyService *services.EconomyService) *StreakHandler {
	return &StreakHandler{
		streakService:  streakService,
		economyService: economyService,
	}
}

// StreakResponse is the streak with one partner
type StreakResponse struct {
	PartnerID     string      `json:"partner_id"`
	Count         int         `json:"count"`
	FrozenThrough *civil.Date `json:"frozen_through,omitempty"`
}

// ListStreaksResponse is the user's streak listing
type ListStreaksResponse struct {
	Streaks []models.PartnerStreak `json:"streaks"`
}

// FreezeRequest represents the request body for buying a freeze
type FreezeRequest struct {
	Days int `json:"days"`
}

// ListStreaks handles GET /api/v1/streaks?context=
func (h *StreakHandler) ListStreaks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	streaks, err := h.streakService.ListStreaks(ctx, userID, r.URL.Query().Get("context"))
	if err != nil {
		respondServiceError(w, err, "Failed to list streaks")
		return
	}
	respondJSON(w, http.StatusOK, ListStreaksResponse{Streaks: streaks})
}

// GetStreak handles GET /api/v1/streaks/{partner_id}
func (h *StreakHandler) GetStreak(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	partnerID := chi.URLParam(r, "partner_id")

	count, err := h.streakService.CurrentStreak(ctx, userID, partnerID)
	if err != nil {
		respondServiceError(w, err, "Failed to get streak")
		return
	}
	frozen, err := h.economyService.ActiveFreeze(ctx, userID, partnerID, h.streakService.Today())
	if err != nil {
		respondServiceError(w, err, "Failed to get freeze")
		return
	}

	respondJSON(w, http.StatusOK, StreakResponse{
		PartnerID:     partnerID,
		Count:         count,
		FrozenThrough: frozen,
	})
}

// ResetStreak handles DELETE /api/v1/streaks/{partner_id}
func (h *StreakHandler) ResetStreak(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	partnerID := chi.URLParam(r, "partner_id")

	found, err := h.streakService.ResetStreak(ctx, userID, partnerID)
	if err != nil {
		respondServiceError(w, err, "Failed to reset streak")
		return
	}
	if !found {
		respondError(w, "streak not found", http.StatusNotFound)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("partner_id", partnerID).
		Msg("Streak reset by user")

	w.WriteHeader(http.StatusNoContent)
}

// RequestFreeze handles POST /api/v1/streaks/{partner_id}/freeze
func (h *StreakHandler) RequestFreeze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	partnerID := chi.URLParam(r, "partner_id")

	var req FreezeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.economyService.RequestFreeze(ctx, userID, partnerID, req.Days, h.streakService.Today())
	if err != nil {
		respondServiceError(w, err, "Failed to request freeze")
		return
	}

	status := http.StatusOK
	if !res.Success {
		status = http.StatusPaymentRequired
	}
	respondJSON(w, status, res)
}
