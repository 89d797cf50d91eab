package repository

import (
	"context"
	"fmt"
	"time"

	"streak-backend/internal/models"
)

// UserRepository handles database operations for users
type UserRepository struct {
	q   querier
	now func() time.Time
}

// Ensure creates the user if missing. Existing rows are left untouched.
func (r *UserRepository) Ensure(ctx context.Context, id string) error {
	now := r.now().UnixMilli()
	query := `
		INSERT INTO users (id, handle, points, created_at, updated_at)
		VALUES ($1, '', 0, $2, $2)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.q.Exec(ctx, query, id, now); err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

// Upsert creates the user or replaces its handle (last write wins)
func (r *UserRepository) Upsert(ctx context.Context, id, handle string) error {
	now := r.now().UnixMilli()
	query := `
		INSERT INTO users (id, handle, points, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $3)
		ON CONFLICT (id) DO UPDATE SET handle = excluded.handle, updated_at = excluded.updated_at
	`
	if _, err := r.q.Exec(ctx, query, id, handle, now); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, handle, points, push_token, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return r.scanOne(ctx, query, id)
}

// GetByHandle retrieves the most recently updated user with the given handle
func (r *UserRepository) GetByHandle(ctx context.Context, handle string) (*models.User, error) {
	query := `
		SELECT id, handle, points, push_token, created_at, updated_at
		FROM users
		WHERE handle = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`
	return r.scanOne(ctx, query, handle)
}

func (r *UserRepository) scanOne(ctx context.Context, query string, arg string) (*models.User, error) {
	var (
		user             models.User
		created, updated int64
	)
	err := r.q.QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.Handle, &user.Points, &user.PushToken, &created, &updated,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.CreatedAt = time.UnixMilli(created)
	user.UpdatedAt = time.UnixMilli(updated)
	return &user, nil
}

// Balance returns the user's point balance
func (r *UserRepository) Balance(ctx context.Context, id string) (int64, error) {
	var points int64
	err := r.q.QueryRow(ctx, `SELECT points FROM users WHERE id = $1`, id).Scan(&points)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return points, nil
}

// AdjustBalance adds delta to the balance. Unless allowNegative is set the
// update only applies when the result stays non-negative; the returned bool
// reports whether the row changed. A missing user returns ErrNotFound.
func (r *UserRepository) AdjustBalance(ctx context.Context, id string, delta int64, allowNegative bool) (bool, error) {
	query := `
		UPDATE users SET points = points + $2, updated_at = $3
		WHERE id = $1 AND points + $2 >= 0
	`
	if allowNegative {
		query = `UPDATE users SET points = points + $2, updated_at = $3 WHERE id = $1`
	}
	n, err := r.q.Exec(ctx, query, id, delta, r.now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to adjust balance: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	if _, err := r.Balance(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// UpdatePushToken updates the push token for a user
func (r *UserRepository) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	query := `UPDATE users SET push_token = $1, updated_at = $2 WHERE id = $3`
	n, err := r.q.Exec(ctx, query, pushToken, r.now().UnixMilli(), userID)
	if err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("failed to update push token: %w", models.ErrNotFound)
	}
	return nil
}

// Handles returns handles for the given ids; unknown ids are omitted
func (r *UserRepository) Handles(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		var handle string
		err := r.q.QueryRow(ctx, `SELECT handle FROM users WHERE id = $1`, id).Scan(&handle)
		if err == nil {
			out[id] = handle
			continue
		}
		if isNotFound(err) {
			continue
		}
		return nil, fmt.Errorf("failed to get handles: %w", err)
	}
	return out, nil
}
