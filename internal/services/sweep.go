package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"streak-backend/internal/models"
	"streak-backend/internal/repository"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type sweepOutcome int

const (
	sweepKept sweepOutcome = iota
	sweepReset
	sweepFrozen
	sweepAnomaly
)

// Sweeper resets streaks whose last confirmed day is more than one day old
type Sweeper struct {
	store   Persistence
	locker  Locker
	auditor Auditor
	lockTTL time.Duration
	now     func() time.Time
}

// NewSweeper creates a sweeper. A nil locker means an in-process one; a nil
// auditor skips uploading reports.
func NewSweeper(store Persistence, locker Locker, auditor Auditor, lockTTL time.Duration) *Sweeper {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if lockTTL <= 0 {
		lockTTL = 48 * time.Hour
	}
	return &Sweeper{
		store:   store,
		locker:  locker,
		auditor: auditor,
		lockTTL: lockTTL,
		now:     time.Now,
	}
}

// sweepLockKey is the lock guarding the sweep of date
func sweepLockKey(date civil.Date) string {
	return "sweep:" + date.String()
}

// RunOnce sweeps asOf unless it was already swept. The lock is kept after a
// clean run and released after a failed one so a later trigger retries.
// ran is false when another run holds the date.
func (s *Sweeper) RunOnce(ctx context.Context, asOf civil.Date) (report *models.SweepReport, ran bool, err error) {
	key := sweepLockKey(asOf)
	ok, err := s.locker.Acquire(ctx, key, s.lockTTL)
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	if !ok {
		log.Info().Str("date", asOf.String()).Msg("Sweep already done or running elsewhere")
		return nil, false, nil
	}

	report, err = s.Sweep(ctx, asOf)
	if err != nil || len(report.Failed) > 0 {
		if relErr := s.locker.Release(context.WithoutCancel(ctx), key); relErr != nil {
			log.Error().Err(relErr).Str("key", key).Msg("Failed to release sweep lock")
		}
	}
	if err != nil {
		return nil, true, err
	}

	if s.auditor != nil {
		if err := s.auditor.Record(ctx, report); err != nil {
			log.Warn().Err(err).Str("run_id", report.RunID).Msg("Failed to record sweep report")
		}
	}
	return report, true, nil
}

// Sweep examines every warm or suspicious pair as of asOf, each in its own
// transaction. A failing pair is recorded in the report and does not stop the
// others.
func (s *Sweeper) Sweep(ctx context.Context, asOf civil.Date) (*models.SweepReport, error) {
	started := s.now()
	report := &models.SweepReport{
		RunID:     uuid.NewString(),
		AsOf:      asOf,
		Reset:     []string{},
		Frozen:    []string{},
		Anomalies: []string{},
		StartedAt: started,
	}

	var keys []models.PairKey
	err := s.store.InTx(ctx, func(r *repository.Repos) error {
		var err error
		keys, err = r.Streaks.SweepCandidates(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sweep candidates: %w", err)
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Scanned++

		var outcome sweepOutcome
		err := s.store.InTx(ctx, func(r *repository.Repos) error {
			var err error
			outcome, err = sweepPair(ctx, r, key, asOf)
			return err
		})
		if err != nil {
			log.Error().Err(err).Str("pair", key.String()).Msg("Failed to sweep pair")
			report.Failed = append(report.Failed, key.String())
			continue
		}

		switch outcome {
		case sweepReset:
			report.Reset = append(report.Reset, key.String())
		case sweepFrozen:
			report.Frozen = append(report.Frozen, key.String())
		case sweepAnomaly:
			report.Anomalies = append(report.Anomalies, key.String())
		}
	}

	report.Duration = s.now().Sub(started).String()
	log.Info().
		Str("run_id", report.RunID).
		Str("date", asOf.String()).
		Int("scanned", report.Scanned).
		Int("reset", len(report.Reset)).
		Int("frozen", len(report.Frozen)).
		Int("anomalies", len(report.Anomalies)).
		Int("failed", len(report.Failed)).
		Msg("Sweep finished")
	return report, nil
}

func sweepPair(ctx context.Context, r *repository.Repos, key models.PairKey, asOf civil.Date) (sweepOutcome, error) {
	snap, err := r.Streaks.Snapshot(ctx, key)
	if err != nil {
		return sweepKept, err
	}
	pair, err := snap.Pair()
	if errors.Is(err, models.ErrNotFound) {
		return sweepKept, nil
	}
	var anomaly *models.ConsistencyAnomaly
	if errors.As(err, &anomaly) {
		log.Warn().Str("pair", key.String()).Str("reason", anomaly.Reason).Msg("Consistency anomaly, forcing pair cold")
		if err := r.Streaks.Reset(ctx, key); err != nil {
			return sweepKept, err
		}
		return sweepAnomaly, nil
	}
	if err != nil {
		return sweepKept, err
	}

	if pair.Cold() || asOf.DaysSince(*pair.LastDate) <= 1 {
		return sweepKept, nil
	}

	end, err := r.Freezes.Active(ctx, key, asOf)
	if err != nil {
		return sweepKept, err
	}
	if end != nil {
		return sweepFrozen, nil
	}

	if err := r.Streaks.Reset(ctx, key); err != nil {
		return sweepKept, err
	}
	return sweepReset, nil
}
