package handlers

import (
	"net/http"

	"streak-backend/internal/middleware"
	"streak-backend/internal/services"
)

// BalanceHandler serves the points balance
type BalanceHandler struct {
	economyService *services.EconomyService
}

// NewBalanceHandler creates a new balance handler
func NewBalanceHandler(economyService *services.EconomyService) *BalanceHandler {
	return &BalanceHandler{economyService: economyService}
}

// BalanceResponse is the user's points balance
type BalanceResponse struct {
	Points int64 `json:"points"`
}

// GetBalance handles GET /api/v1/balance
func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	points, err := h.economyService.Balance(ctx, userID)
	if err != nil {
		respondServiceError(w, err, "Failed to get balance")
		return
	}
	respondJSON(w, http.StatusOK, BalanceResponse{Points: points})
}
