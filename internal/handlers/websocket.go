package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"streak-backend/internal/middleware"
	"streak-backend/internal/models"
	"streak-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocket message types
const (
	wsTypePing    = "ping"
	wsTypePong    = "pong"
	wsTypeStreaks = "streaks"
	wsTypeError   = "error"
)

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub           *services.WSHub
	userService   *services.UserService
	streakService *services.StreakService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *services.WSHub,
	userService *services.UserService,
	streakService *services.StreakService,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		userService:   userService,
		streakService: streakService,
	}
}

// HandleWebSocket handles GET /ws?token=
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.ValidateWebSocketToken(r.URL.Query().Get("token"), h.userService)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.hub.Register(userID, conn)
	defer h.hub.Unregister(userID, conn)

	ctx := r.Context()
	h.sendStreaks(ctx, userID)

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			break
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to parse WebSocket message")
			h.sendErrorToUser(userID, "Invalid message format")
			continue
		}

		h.handleMessage(ctx, userID, msg)
	}
}

// handleMessage processes incoming WebSocket messages
func (h *WebSocketHandler) handleMessage(ctx context.Context, userID string, msg services.WSMessage) {
	switch msg.Type {
	case wsTypePing:
		h.send(userID, services.WSMessage{Type: wsTypePong, Timestamp: time.Now().UnixMilli()})
	case wsTypeStreaks:
		h.sendStreaks(ctx, userID)
	default:
		h.sendErrorToUser(userID, "Unknown message type")
	}
}

// sendStreaks pushes the user's current streak listing
func (h *WebSocketHandler) sendStreaks(ctx context.Context, userID string) {
	streaks, err := h.streakService.ListStreaks(ctx, userID, models.PersonalContext)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list streaks")
		h.sendErrorToUser(userID, "Failed to list streaks")
		return
	}
	h.send(userID, services.WSMessage{
		Type:      wsTypeStreaks,
		Timestamp: time.Now().UnixMilli(),
		Data:      ListStreaksResponse{Streaks: streaks},
	})
}

// sendErrorToUser sends an error message to a user
func (h *WebSocketHandler) sendErrorToUser(userID, message string) {
	h.send(userID, services.WSMessage{Type: wsTypeError, Message: message})
}

func (h *WebSocketHandler) send(userID string, msg services.WSMessage) {
	if err := h.hub.SendToUser(userID, msg); err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("type", msg.Type).Msg("Failed to send WebSocket message")
	}
}
