package repository

import (
	"context"
	"fmt"
	"time"

	"streak-backend/internal/models"
)

// RequestRepository handles database operations for link requests
type RequestRepository struct {
	q querier
}

// Create creates a new request. A duplicate request in the same direction
// returns false without error.
func (r *RequestRepository) Create(ctx context.Context, req *models.StreakRequest) (bool, error) {
	query := `
		INSERT INTO streak_requests (id, from_user_id, to_user_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (from_user_id, to_user_id) DO NOTHING
	`
	n, err := r.q.Exec(ctx, query, req.ID, req.FromUserID, req.ToUserID, req.CreatedAt.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	return n > 0, nil
}

// GetByID retrieves a request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.StreakRequest, error) {
	query := `
		SELECT id, from_user_id, to_user_id, created_at
		FROM streak_requests
		WHERE id = $1
	`
	var (
		req     models.StreakRequest
		created int64
	)
	err := r.q.QueryRow(ctx, query, id).Scan(&req.ID, &req.FromUserID, &req.ToUserID, &created)
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	req.CreatedAt = time.UnixMilli(created)
	return &req, nil
}

// Incoming lists requests addressed to the user, oldest first
func (r *RequestRepository) Incoming(ctx context.Context, userID string) ([]*models.StreakRequest, error) {
	query := `
		SELECT id, from_user_id, to_user_id, created_at
		FROM streak_requests
		WHERE to_user_id = $1
		ORDER BY created_at, id
	`
	rs, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get requests: %w", err)
	}
	defer rs.Close()

	var reqs []*models.StreakRequest
	for rs.Next() {
		var (
			req     models.StreakRequest
			created int64
		)
		if err := rs.Scan(&req.ID, &req.FromUserID, &req.ToUserID, &created); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		req.CreatedAt = time.UnixMilli(created)
		reqs = append(reqs, &req)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("error iterating requests: %w", err)
	}
	return reqs, nil
}

// Delete deletes a request by ID
func (r *RequestRepository) Delete(ctx context.Context, id string) error {
	n, err := r.q.Exec(ctx, `DELETE FROM streak_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete request: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("failed to delete request: %w", models.ErrNotFound)
	}
	return nil
}

// DeleteBetween removes requests in both directions between two users
func (r *RequestRepository) DeleteBetween(ctx context.Context, key models.PairKey) error {
	query := `
		DELETE FROM streak_requests
		WHERE (from_user_id = $1 AND to_user_id = $2) OR (from_user_id = $2 AND to_user_id = $1)
	`
	if _, err := r.q.Exec(ctx, query, key.UserA, key.UserB); err != nil {
		return fmt.Errorf("failed to delete requests: %w", err)
	}
	return nil
}
