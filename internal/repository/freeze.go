package repository

import (
	"context"
	"fmt"
	"time"

	"streak-backend/internal/models"

	"cloud.google.com/go/civil"
)

// FreezeRepository stores freeze windows as two mirrored rows per pair
type FreezeRepository struct {
	q   querier
	now func() time.Time
}

// Active returns the live end date for the pair, or nil. Windows that ended
// before asOf are deleted as a side effect.
func (r *FreezeRepository) Active(ctx context.Context, key models.PairKey, asOf civil.Date) (*civil.Date, error) {
	prune := `
		DELETE FROM freeze_windows
		WHERE ((user_id = $1 AND partner_id = $2) OR (user_id = $2 AND partner_id = $1))
		  AND end_date < $3
	`
	if _, err := r.q.Exec(ctx, prune, key.UserA, key.UserB, formatDate(asOf)); err != nil {
		return nil, fmt.Errorf("failed to prune freeze windows: %w", err)
	}

	query := `
		SELECT MAX(end_date) FROM freeze_windows
		WHERE (user_id = $1 AND partner_id = $2) OR (user_id = $2 AND partner_id = $1)
	`
	var end *string
	if err := r.q.QueryRow(ctx, query, key.UserA, key.UserB).Scan(&end); err != nil {
		return nil, fmt.Errorf("failed to get freeze window: %w", err)
	}
	return parseNullDate(end)
}

// Put installs or replaces the pair's window on both rows
func (r *FreezeRepository) Put(ctx context.Context, w models.FreezeWindow) error {
	query := `
		INSERT INTO freeze_windows (user_id, partner_id, end_date, updated_at)
		VALUES ($1, $2, $3, $4), ($2, $1, $3, $4)
		ON CONFLICT (user_id, partner_id) DO UPDATE
		SET end_date = excluded.end_date, updated_at = excluded.updated_at
	`
	n, err := r.q.Exec(ctx, query, w.Key.UserA, w.Key.UserB, formatDate(w.EndDate), r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to install freeze window: %w", err)
	}
	if n != 2 {
		return fmt.Errorf("failed to install freeze window: wrote %d rows, want 2", n)
	}
	return nil
}
