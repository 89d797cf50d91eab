package repository

import (
	"context"
	"fmt"
	"time"

	"streak-backend/internal/models"
)

// StreakRepository stores StreakPair aggregates as two mirrored rows. Callers
// never write a single row: Save and Reset always write both inside the
// surrounding transaction.
type StreakRepository struct {
	q   querier
	now func() time.Time
}

// pairRow is one directional row as stored
type pairRow struct {
	count    int
	lastDate *string
	updated  int64
}

// Snapshot is the raw persisted state of a pair, possibly inconsistent
type Snapshot struct {
	Key     models.PairKey
	Forward *pairRow // UserA -> UserB
	Reverse *pairRow // UserB -> UserA
}

func (r *StreakRepository) loadRow(ctx context.Context, userID, partnerID string) (*pairRow, error) {
	query := `
		SELECT streak_count, last_date, updated_at
		FROM streak_pairs
		WHERE user_id = $1 AND partner_id = $2
	`
	var pr pairRow
	err := r.q.QueryRow(ctx, query, userID, partnerID).Scan(&pr.count, &pr.lastDate, &pr.updated)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get streak row: %w", err)
	}
	return &pr, nil
}

// Snapshot loads both rows of the pair without validating them
func (r *StreakRepository) Snapshot(ctx context.Context, key models.PairKey) (*Snapshot, error) {
	fwd, err := r.loadRow(ctx, key.UserA, key.UserB)
	if err != nil {
		return nil, err
	}
	rev, err := r.loadRow(ctx, key.UserB, key.UserA)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Key: key, Forward: fwd, Reverse: rev}, nil
}

// Exists reports whether any row of the pair exists
func (s *Snapshot) Exists() bool {
	return s.Forward != nil || s.Reverse != nil
}

// Pair validates the snapshot and returns the aggregate. A missing mirror row,
// diverging rows or a count/date mismatch yields a ConsistencyAnomaly.
func (s *Snapshot) Pair() (*models.StreakPair, error) {
	if !s.Exists() {
		return nil, models.ErrNotFound
	}
	if s.Forward == nil || s.Reverse == nil {
		return nil, &models.ConsistencyAnomaly{Key: s.Key, Reason: "mirror row missing"}
	}
	f, b := s.Forward, s.Reverse
	if f.count != b.count || !sameDate(f.lastDate, b.lastDate) {
		return nil, &models.ConsistencyAnomaly{Key: s.Key, Reason: "mirrored rows diverge"}
	}
	if (f.count == 0) != (f.lastDate == nil) {
		return nil, &models.ConsistencyAnomaly{
			Key:    s.Key,
			Reason: fmt.Sprintf("streak_count %d with last_date %v", f.count, derefOr(f.lastDate, "null")),
		}
	}

	last, err := parseNullDate(f.lastDate)
	if err != nil {
		return nil, &models.ConsistencyAnomaly{Key: s.Key, Reason: err.Error()}
	}
	return &models.StreakPair{
		Key:       s.Key,
		Count:     f.count,
		LastDate:  last,
		UpdatedAt: time.UnixMilli(max(f.updated, b.updated)),
	}, nil
}

// Get returns the validated pair, ErrNotFound or a ConsistencyAnomaly
func (r *StreakRepository) Get(ctx context.Context, key models.PairKey) (*models.StreakPair, error) {
	snap, err := r.Snapshot(ctx, key)
	if err != nil {
		return nil, err
	}
	return snap.Pair()
}

// Create inserts a Cold pair if none exists. The returned bool reports whether
// rows were created.
func (r *StreakRepository) Create(ctx context.Context, key models.PairKey) (bool, error) {
	query := `
		INSERT INTO streak_pairs (user_id, partner_id, streak_count, last_date, updated_at)
		VALUES ($1, $2, 0, NULL, $3), ($2, $1, 0, NULL, $3)
		ON CONFLICT (user_id, partner_id) DO NOTHING
	`
	n, err := r.q.Exec(ctx, query, key.UserA, key.UserB, r.now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to create streak pair: %w", err)
	}
	return n > 0, nil
}

// Save writes count and date to both mirrored rows. Both rows must already
// exist; anything else is reported as an anomaly so the transaction aborts.
func (r *StreakRepository) Save(ctx context.Context, pair *models.StreakPair) error {
	if (pair.Count == 0) != (pair.LastDate == nil) {
		return &models.ConsistencyAnomaly{Key: pair.Key, Reason: "refusing to write count/date mismatch"}
	}
	query := `
		UPDATE streak_pairs SET streak_count = $3, last_date = $4, updated_at = $5
		WHERE (user_id = $1 AND partner_id = $2) OR (user_id = $2 AND partner_id = $1)
	`
	n, err := r.q.Exec(ctx, query,
		pair.Key.UserA, pair.Key.UserB, pair.Count, nullDate(pair.LastDate), r.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save streak pair: %w", err)
	}
	if n != 2 {
		return &models.ConsistencyAnomaly{Key: pair.Key, Reason: fmt.Sprintf("save touched %d rows, want 2", n)}
	}
	return nil
}

// Reset forces both rows to Cold, creating a missing mirror row. Used by the
// sweep and explicit resets, which must repair rather than abort.
func (r *StreakRepository) Reset(ctx context.Context, key models.PairKey) error {
	now := r.now().UnixMilli()
	query := `
		INSERT INTO streak_pairs (user_id, partner_id, streak_count, last_date, updated_at)
		VALUES ($1, $2, 0, NULL, $3), ($2, $1, 0, NULL, $3)
		ON CONFLICT (user_id, partner_id) DO UPDATE
		SET streak_count = 0, last_date = NULL, updated_at = excluded.updated_at
	`
	if _, err := r.q.Exec(ctx, query, key.UserA, key.UserB, now); err != nil {
		return fmt.Errorf("failed to reset streak pair: %w", err)
	}
	return nil
}

// ListForUser returns the user's pairs, highest streak first
func (r *StreakRepository) ListForUser(ctx context.Context, userID string) ([]models.PartnerStreak, error) {
	query := `
		SELECT s.partner_id, COALESCE(u.handle, ''), s.streak_count, s.last_date
		FROM streak_pairs s
		LEFT JOIN users u ON u.id = s.partner_id
		WHERE s.user_id = $1
		ORDER BY s.streak_count DESC, s.partner_id
	`
	rs, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list streaks: %w", err)
	}
	defer rs.Close()

	var out []models.PartnerStreak
	for rs.Next() {
		var (
			ps   models.PartnerStreak
			last *string
		)
		if err := rs.Scan(&ps.PartnerID, &ps.Handle, &ps.Count, &last); err != nil {
			return nil, fmt.Errorf("failed to scan streak: %w", err)
		}
		if ps.LastDate, err = parseNullDate(last); err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("error iterating streaks: %w", err)
	}
	return out, nil
}

// Partners returns the ids of everyone linked with userID
func (r *StreakRepository) Partners(ctx context.Context, userID string) ([]string, error) {
	rs, err := r.q.Query(ctx, `SELECT partner_id FROM streak_pairs WHERE user_id = $1 ORDER BY partner_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list partners: %w", err)
	}
	defer rs.Close()

	var out []string
	for rs.Next() {
		var id string
		if err := rs.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan partner: %w", err)
		}
		out = append(out, id)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("error iterating partners: %w", err)
	}
	return out, nil
}

// SweepCandidates returns every pair with a row that is warm or carries a
// date, i.e. every pair the decay sweep has to look at
func (r *StreakRepository) SweepCandidates(ctx context.Context) ([]models.PairKey, error) {
	query := `
		SELECT DISTINCT
			CASE WHEN user_id < partner_id THEN user_id ELSE partner_id END,
			CASE WHEN user_id < partner_id THEN partner_id ELSE user_id END
		FROM streak_pairs
		WHERE streak_count > 0 OR last_date IS NOT NULL
	`
	rs, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sweep candidates: %w", err)
	}
	defer rs.Close()

	var keys []models.PairKey
	for rs.Next() {
		var k models.PairKey
		if err := rs.Scan(&k.UserA, &k.UserB); err != nil {
			return nil, fmt.Errorf("failed to scan sweep candidate: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sweep candidates: %w", err)
	}
	return keys, nil
}

func sameDate(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
