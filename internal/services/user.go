package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"streak-backend/internal/models"
	"streak-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	jwtExpDays      = 365
	maxHandleLength = 64
)

// UserService handles user-related business logic
type UserService struct {
	store     Persistence
	jwtSecret string
}

// NewUserService creates a new user service
func NewUserService(store Persistence, jwtSecret string) *UserService {
	return &UserService{
		store:     store,
		jwtSecret: jwtSecret,
	}
}

// GenerateJWT generates a JWT token for a user
func (s *UserService) GenerateJWT(userID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().AddDate(0, 0, jwtExpDays).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT validates a JWT token and returns the user ID
func (s *UserService) ValidateJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return "", fmt.Errorf("user_id not found in token")
	}

	return userID, nil
}

// normalizeHandle strips a leading @ and surrounding space
func normalizeHandle(handle string) (string, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return "", models.Invalid("handle", "required")
	}
	if len(handle) > maxHandleLength {
		return "", models.Invalid("handle", fmt.Sprintf("longer than %d characters", maxHandleLength))
	}
	return handle, nil
}

// Register creates the user or updates their handle, last write wins, and
// returns the user with a fresh token. An empty id creates a new user.
func (s *UserService) Register(ctx context.Context, userID, handle string) (*models.User, string, error) {
	handle, err := normalizeHandle(handle)
	if err != nil {
		return nil, "", err
	}
	if userID == "" {
		userID = uuid.New().String()
	}

	var user *models.User
	err = s.store.InTx(ctx, func(r *repository.Repos) error {
		if err := r.Users.Upsert(ctx, userID, handle); err != nil {
			return err
		}
		var err error
		user, err = r.Users.GetByID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to register user: %w", err)
	}

	token, err := s.GenerateJWT(userID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}
	return user, token, nil
}

// GetUser returns the user by id
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user *models.User
	err := s.store.InTx(ctx, func(r *repository.Repos) error {
		var err error
		user, err = r.Users.GetByID(ctx, userID)
		return err
	})
	return user, err
}

// LookupHandle resolves a handle to its user
func (s *UserService) LookupHandle(ctx context.Context, handle string) (*models.User, error) {
	handle, err := normalizeHandle(handle)
	if err != nil {
		return nil, err
	}
	var user *models.User
	err = s.store.InTx(ctx, func(r *repository.Repos) error {
		var err error
		user, err = r.Users.GetByHandle(ctx, handle)
		return err
	})
	return user, err
}

// SetPushToken stores the user's APNs device token; empty clears it
func (s *UserService) SetPushToken(ctx context.Context, userID, pushToken string) error {
	var tok *string
	if pushToken != "" {
		tok = &pushToken
	}
	return s.store.InTx(ctx, func(r *repository.Repos) error {
		return r.Users.UpdatePushToken(ctx, userID, tok)
	})
}
