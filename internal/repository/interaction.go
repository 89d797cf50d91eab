package repository

import (
	"context"
	"fmt"
	"time"

	"streak-backend/internal/models"

	"cloud.google.com/go/civil"
)

// InteractionRepository is the append-only interaction ledger
type InteractionRepository struct {
	q   querier
	now func() time.Time
}

// Record inserts the record; re-recording the same tuple is a no-op.
// The returned bool reports whether a new row was written.
func (r *InteractionRepository) Record(ctx context.Context, rec models.InteractionRecord) (bool, error) {
	query := `
		INSERT INTO interactions (actor_id, partner_id, day, context, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (actor_id, partner_id, day, context) DO NOTHING
	`
	n, err := r.q.Exec(ctx, query,
		rec.ActorID, rec.PartnerID, formatDate(rec.Date), rec.Context, r.now().UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to record interaction: %w", err)
	}
	return n > 0, nil
}

// BothPresent reports whether both directional records exist for the exact
// date and context
func (r *InteractionRepository) BothPresent(ctx context.Context, userA, userB string, date civil.Date, contextID string) (bool, error) {
	query := `
		SELECT COUNT(*) FROM interactions
		WHERE day = $3 AND context = $4
		  AND ((actor_id = $1 AND partner_id = $2) OR (actor_id = $2 AND partner_id = $1))
	`
	var count int
	if err := r.q.QueryRow(ctx, query, userA, userB, formatDate(date), contextID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check mutual interaction: %w", err)
	}
	return count == 2, nil
}

// ActiveUsers lists users with a presence record (actor = partner) in the
// context on the date, ordered by id
func (r *InteractionRepository) ActiveUsers(ctx context.Context, contextID string, date civil.Date) ([]string, error) {
	query := `
		SELECT actor_id FROM interactions
		WHERE context = $1 AND day = $2 AND actor_id = partner_id
		ORDER BY actor_id
	`
	rs, err := r.q.Query(ctx, query, contextID, formatDate(date))
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	defer rs.Close()

	var users []string
	for rs.Next() {
		var id string
		if err := rs.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan active user: %w", err)
		}
		users = append(users, id)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active users: %w", err)
	}
	return users, nil
}

// PartnersInContext returns the partners userID has at least one record with
// in the context, in either direction
func (r *InteractionRepository) PartnersInContext(ctx context.Context, userID, contextID string) (map[string]bool, error) {
	query := `
		SELECT partner_id FROM interactions WHERE actor_id = $1 AND context = $2 AND partner_id <> $1
		UNION
		SELECT actor_id FROM interactions WHERE partner_id = $1 AND context = $2 AND actor_id <> $1
	`
	rs, err := r.q.Query(ctx, query, userID, contextID)
	if err != nil {
		return nil, fmt.Errorf("failed to list partners in context: %w", err)
	}
	defer rs.Close()

	partners := make(map[string]bool)
	for rs.Next() {
		var id string
		if err := rs.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan partner: %w", err)
		}
		partners[id] = true
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("error iterating partners: %w", err)
	}
	return partners, nil
}

// Purge deletes every record between the two users, in all contexts.
// Presence records are kept since they belong to a single user.
func (r *InteractionRepository) Purge(ctx context.Context, key models.PairKey) (int64, error) {
	query := `
		DELETE FROM interactions
		WHERE (actor_id = $1 AND partner_id = $2) OR (actor_id = $2 AND partner_id = $1)
	`
	n, err := r.q.Exec(ctx, query, key.UserA, key.UserB)
	if err != nil {
		return 0, fmt.Errorf("failed to purge interactions: %w", err)
	}
	return n, nil
}
