package services

import (
	"context"
	"fmt"

	"streak-backend/internal/models"
	"streak-backend/internal/repository"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog/log"
)

// EconomyService owns point balances and freeze windows
type EconomyService struct {
	store    Persistence
	notifier Notifier
	policy   Policy
}

// NewEconomyService creates a new economy service
func NewEconomyService(store Persistence, notifier Notifier, policy Policy) *EconomyService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &EconomyService{
		store:    store,
		notifier: notifier,
		policy:   policy,
	}
}

// Balance returns the user's points
func (s *EconomyService) Balance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, models.Invalid("user_id", "required")
	}
	var balance int64
	err := s.store.InTx(ctx, func(r *repository.Repos) error {
		var err error
		balance, err = r.Users.Balance(ctx, userID)
		return err
	})
	return balance, err
}

// AdjustBalance adds delta to the user's points. It returns false, changing
// nothing, if the balance would go negative and neither allowNegative nor the
// overdraft policy permits it.
func (s *EconomyService) AdjustBalance(ctx context.Context, userID string, delta int64, allowNegative bool) (bool, error) {
	if userID == "" {
		return false, models.Invalid("user_id", "required")
	}
	var ok bool
	err := s.store.InTx(ctx, func(r *repository.Repos) error {
		var err error
		ok, err = r.Users.AdjustBalance(ctx, userID, delta, allowNegative || s.policy.AllowOverdraft)
		return err
	})
	if err != nil {
		return false, err
	}
	log.Info().Str("user_id", userID).Int64("delta", delta).Bool("applied", ok).Msg("Balance adjusted")
	return ok, nil
}

// ActiveFreeze returns the end of the pair's live freeze window, or nil
func (s *EconomyService) ActiveFreeze(ctx context.Context, userA, userB string, asOf civil.Date) (*civil.Date, error) {
	if err := validatePair(userA, userB); err != nil {
		return nil, err
	}
	var end *civil.Date
	err := s.store.InTx(ctx, func(r *repository.Repos) error {
		var err error
		end, err = r.Freezes.Active(ctx, models.NewPairKey(userA, userB), asOf)
		return err
	})
	return end, err
}

// RequestFreeze buys days of decay protection for the pair, paid by spender.
// The window extends from the later of its current end and asOf. The debit
// and the window install commit together or not at all. Insufficient funds is
// reported in the result, not as an error.
func (s *EconomyService) RequestFreeze(ctx context.Context, spenderID, partnerID string, days int, asOf civil.Date) (*models.FreezeResult, error) {
	if err := validatePair(spenderID, partnerID); err != nil {
		return nil, err
	}
	if days <= 0 {
		return nil, models.Invalid("days", "must be positive")
	}
	if !asOf.IsValid() {
		return nil, models.Invalid("as_of", "invalid date")
	}
	if days > s.policy.FreezeMaxHorizonDays {
		return nil, models.Invalid("days", fmt.Sprintf("cannot exceed %d", s.policy.FreezeMaxHorizonDays))
	}

	key := models.NewPairKey(spenderID, partnerID)
	cost := int64(days) * s.policy.FreezeCostPerDay
	horizon := asOf.AddDays(s.policy.FreezeMaxHorizonDays)

	var result *models.FreezeResult
	err := s.store.InTx(ctx, func(r *repository.Repos) error {
		result = nil

		snap, err := r.Streaks.Snapshot(ctx, key)
		if err != nil {
			return err
		}
		if !snap.Exists() {
			return fmt.Errorf("no streak between %s and %s: %w", spenderID, partnerID, models.ErrNotFound)
		}

		existing, err := r.Freezes.Active(ctx, key, asOf)
		if err != nil {
			return err
		}
		base := asOf
		if existing != nil && existing.After(asOf) {
			base = *existing
		}
		newEnd := base.AddDays(days)
		if newEnd.After(horizon) {
			return models.Invalid("days", fmt.Sprintf("freeze would end %s, past the limit of %s", newEnd, horizon))
		}

		ok, err := r.Users.AdjustBalance(ctx, spenderID, -cost, s.policy.AllowOverdraft)
		if err != nil {
			return err
		}
		balance, err := r.Users.Balance(ctx, spenderID)
		if err != nil {
			return err
		}
		if !ok {
			result = &models.FreezeResult{
				Status:     models.FreezeStatusInsufficientFunds,
				NewEndDate: existing,
				NewBalance: balance,
				Cost:       cost,
			}
			return nil
		}

		if err := r.Freezes.Put(ctx, models.FreezeWindow{Key: key, EndDate: newEnd}); err != nil {
			return err
		}
		result = &models.FreezeResult{
			Success:    true,
			Status:     models.FreezeStatusGranted,
			NewEndDate: &newEnd,
			NewBalance: balance,
			Cost:       cost,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("pair", key.String()).
		Str("spender", spenderID).
		Int("days", days).
		Str("status", string(result.Status)).
		Msg("Freeze requested")

	if result.Success {
		ev := models.StreakEvent{Type: models.EventFreezeGranted, UserA: key.UserA, UserB: key.UserB, Date: *result.NewEndDate}
		if err := s.notifier.Notify(ctx, ev); err != nil {
			log.Warn().Err(err).Str("pair", key.String()).Msg("Failed to deliver freeze event")
		}
	}
	return result, nil
}
