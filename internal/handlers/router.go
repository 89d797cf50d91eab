package handlers

import (
	"net/http"

	"streak-backend/internal/middleware"
	"streak-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// Services are the collaborators the HTTP layer calls into
type Services struct {
	Users    *services.UserService
	Streaks  *services.StreakService
	Economy  *services.EconomyService
	Requests *services.RequestService
	Hub      *services.WSHub
}

// NewRouter wires every route onto a chi router
func NewRouter(s Services) http.Handler {
	userHandler := NewUserHandler(s.Users)
	interactionHandler := NewInteractionHandler(s.Streaks)
	streakHandler := NewStreakHandler(s.Streaks, s.Economy)
	balanceHandler := NewBalanceHandler(s.Economy)
	requestHandler := NewRequestHandler(s.Requests)
	wsHandler := NewWebSocketHandler(s.Hub, s.Users, s.Streaks)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/users", userHandler.CreateUser)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(s.Users))

			r.Get("/users/me", userHandler.GetMe)
			r.Put("/users/me/push-token", userHandler.SetPushToken)

			r.Post("/interactions", interactionHandler.ReportInteraction)
			r.Post("/messages", interactionHandler.ObserveMessage)

			r.Get("/streaks", streakHandler.ListStreaks)
			r.Get("/streaks/{partner_id}", streakHandler.GetStreak)
			r.Delete("/streaks/{partner_id}", streakHandler.ResetStreak)
			r.Post("/streaks/{partner_id}/freeze", streakHandler.RequestFreeze)

			r.Get("/balance", balanceHandler.GetBalance)

			r.Get("/requests", requestHandler.ListIncoming)
			r.Post("/requests", requestHandler.CreateRequest)
			r.Post("/requests/{request_id}/accept", requestHandler.AcceptRequest)
			r.Post("/requests/{request_id}/decline", requestHandler.DeclineRequest)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	return r
}
