package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"streak-backend/internal/models"
	"streak-backend/internal/repository"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog/log"
)

// Persistence runs fn inside one atomic, retried transaction
type Persistence interface {
	InTx(ctx context.Context, fn func(r *repository.Repos) error) error
}

// StreakService reconciles interactions into streak transitions
type StreakService struct {
	store    Persistence
	cache    *DailyCache
	notifier Notifier
	policy   Policy
	now      func() time.Time

	onRollover func(ctx context.Context, today civil.Date)
}

// NewStreakService creates a new streak service. A nil notifier drops events.
func NewStreakService(store Persistence, cache *DailyCache, notifier Notifier, policy Policy) *StreakService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	return &StreakService{
		store:    store,
		cache:    cache,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
	}
}

// SetClock overrides the wall clock used for rollover detection
func (s *StreakService) SetClock(now func() time.Time) {
	s.now = now
}

// OnRollover registers fn to run, under the cache lock, whenever the
// wall-clock date moves past the cached one
func (s *StreakService) OnRollover(fn func(ctx context.Context, today civil.Date)) {
	s.onRollover = fn
}

// Today returns the current calendar date in the configured timezone
func (s *StreakService) Today() civil.Date {
	return civil.DateOf(s.now().In(s.policy.Location))
}

// Tick detects a date rollover, clearing the cache and running the rollover
// hook before any observation for the new date is accepted
func (s *StreakService) Tick(ctx context.Context) bool {
	today := s.Today()
	return s.cache.Rollover(today, func(prev civil.Date) {
		if prev.IsZero() {
			log.Info().Str("today", today.String()).Msg("Daily cache started")
		} else {
			log.Info().
				Str("previous", prev.String()).
				Str("today", today.String()).
				Msg("Date rollover")
		}
		if s.onRollover != nil {
			s.onRollover(context.WithoutCancel(ctx), today)
		}
	})
}

// ReportInteraction records that actor reached out to partner on date within
// contextID and advances the pair's streak if both sides are now present
func (s *StreakService) ReportInteraction(ctx context.Context, actorID, partnerID string, date civil.Date, contextID string) (models.StreakTransition, error) {
	if err := validatePair(actorID, partnerID); err != nil {
		return models.StreakTransition{}, err
	}
	if !date.IsValid() {
		return models.StreakTransition{}, models.Invalid("date", "invalid date")
	}
	s.Tick(ctx)

	key := models.NewPairKey(actorID, partnerID)
	var tr models.StreakTransition
	err := s.store.InTx(ctx, func(r *repository.Repos) error {
		if err := ensureUsers(ctx, r, actorID, partnerID); err != nil {
			return err
		}
		rec := models.InteractionRecord{ActorID: actorID, PartnerID: partnerID, Date: date, Context: contextID}
		if _, err := r.Interactions.Record(ctx, rec); err != nil {
			return err
		}
		var err error
		tr, err = s.reconcile(ctx, r, key, date, contextID)
		return err
	})
	if err != nil {
		return models.StreakTransition{}, err
	}

	s.announce(ctx, key, date, contextID, tr)
	return tr, nil
}

// ObserveMessage handles a message sent by userID. In the personal channel it
// counts as reaching out to every linked partner. In a group it records the
// user's presence and pairs them with everyone already active there today.
func (s *StreakService) ObserveMessage(ctx context.Context, userID, contextID string, date civil.Date) ([]models.PairOutcome, error) {
	if userID == "" {
		return nil, models.Invalid("user_id", "required")
	}
	if !date.IsValid() {
		return nil, models.Invalid("date", "invalid date")
	}
	s.Tick(ctx)

	if contextID == models.PersonalContext {
		return s.observePersonal(ctx, userID, date)
	}

	if !s.cache.Observe(contextID, userID, date) {
		return nil, nil
	}

	var others []string
	err := s.store.InTx(ctx, func(r *repository.Repos) error {
		if err := r.Users.Ensure(ctx, userID); err != nil {
			return err
		}
		presence := models.InteractionRecord{ActorID: userID, PartnerID: userID, Date: date, Context: contextID}
		if _, err := r.Interactions.Record(ctx, presence); err != nil {
			return err
		}
		active, err := r.Interactions.ActiveUsers(ctx, contextID, date)
		if err != nil {
			return err
		}
		others = others[:0]
		for _, id := range active {
			if id != userID {
				others = append(others, id)
			}
		}
		return nil
	})
	if err != nil {
		s.cache.Forget(contextID, userID, date)
		return nil, err
	}

	var (
		outcomes []models.PairOutcome
		errs     []error
	)
	for _, other := range others {
		key := models.NewPairKey(userID, other)
		var tr models.StreakTransition
		err := s.store.InTx(ctx, func(r *repository.Repos) error {
			for _, rec := range []models.InteractionRecord{
				{ActorID: userID, PartnerID: other, Date: date, Context: contextID},
				{ActorID: other, PartnerID: userID, Date: date, Context: contextID},
			} {
				if _, err := r.Interactions.Record(ctx, rec); err != nil {
					return err
				}
			}
			var err error
			tr, err = s.reconcile(ctx, r, key, date, contextID)
			return err
		})
		if err != nil {
			log.Error().Err(err).Str("pair", key.String()).Str("context", contextID).Msg("Failed to reconcile group pair")
			errs = append(errs, fmt.Errorf("pair %s: %w", key, err))
			continue
		}
		s.announce(ctx, key, date, contextID, tr)
		outcomes = append(outcomes, models.PairOutcome{PartnerID: other, Transition: tr})
	}
	if len(errs) > 0 {
		// let the next message retry the pairs that failed
		s.cache.Forget(contextID, userID, date)
	}
	return outcomes, errors.Join(errs...)
}

func (s *StreakService) observePersonal(ctx context.Context, userID string, date civil.Date) ([]models.PairOutcome, error) {
	var partners []string
	err := s.store.InTx(ctx, func(r *repository.Repos) error {
		var err error
		partners, err = r.Streaks.Partners(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	var (
		outcomes []models.PairOutcome
		errs     []error
	)
	for _, partner := range partners {
		tr, err := s.ReportInteraction(ctx, userID, partner, date, models.PersonalContext)
		if err != nil {
			errs = append(errs, fmt.Errorf("partner %s: %w", partner, err))
			continue
		}
		outcomes = append(outcomes, models.PairOutcome{PartnerID: partner, Transition: tr})
	}
	return outcomes, errors.Join(errs...)
}

// reconcile runs the state machine for key if both directional records for
// date and contextID exist. It must run in the transaction that wrote them.
func (s *StreakService) reconcile(ctx context.Context, r *repository.Repos, key models.PairKey, date civil.Date, contextID string) (models.StreakTransition, error) {
	pair, err := r.Streaks.Get(ctx, key)
	switch {
	case errors.Is(err, models.ErrNotFound):
		pair = &models.StreakPair{Key: key}
	case err != nil:
		return models.StreakTransition{}, err
	}

	both, err := r.Interactions.BothPresent(ctx, key.UserA, key.UserB, date, contextID)
	if err != nil {
		return models.StreakTransition{}, err
	}
	if !both {
		// a report older than the last confirmed day can never move the streak
		if !pair.Cold() && pair.LastDate != nil && date.Before(*pair.LastDate) {
			return models.StreakTransition{Kind: models.TransitionNoChange, Count: pair.Count}, nil
		}
		return models.StreakTransition{Kind: models.TransitionPending, Count: pair.Count}, nil
	}

	if _, err := r.Streaks.Create(ctx, key); err != nil {
		return models.StreakTransition{}, err
	}

	next, tr := Advance(*pair, date)
	if !tr.Changed() {
		return tr, nil
	}
	tr.Milestone = s.policy.Milestones.Reached(tr)

	if err := r.Streaks.Save(ctx, &next); err != nil {
		return models.StreakTransition{}, err
	}
	if err := s.credit(ctx, r, key, tr); err != nil {
		return models.StreakTransition{}, err
	}

	log.Info().
		Str("pair", key.String()).
		Str("context", contextID).
		Str("date", date.String()).
		Str("kind", string(tr.Kind)).
		Int("count", tr.Count).
		Msg("Streak advanced")
	return tr, nil
}

// credit pays both members for a confirmed day, plus the bonus on milestones
func (s *StreakService) credit(ctx context.Context, r *repository.Repos, key models.PairKey, tr models.StreakTransition) error {
	amount := s.policy.PointsPerDay
	if tr.Milestone {
		amount += s.policy.MilestoneBonus
	}
	if amount <= 0 {
		return nil
	}
	for _, id := range []string{key.UserA, key.UserB} {
		if _, err := r.Users.AdjustBalance(ctx, id, amount, true); err != nil {
			return fmt.Errorf("failed to credit %s: %w", id, err)
		}
	}
	return nil
}

// announce notifies both members once per pair, context and day
func (s *StreakService) announce(ctx context.Context, key models.PairKey, date civil.Date, contextID string, tr models.StreakTransition) {
	typ := eventFor(tr, s.policy.Milestones)
	if typ == "" {
		return
	}
	if !s.cache.MarkNotified(contextID, key.String(), date) {
		return
	}
	ev := models.StreakEvent{
		Type:       typ,
		UserA:      key.UserA,
		UserB:      key.UserB,
		Context:    contextID,
		Date:       date,
		Transition: tr,
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		log.Warn().Err(err).Str("pair", key.String()).Msg("Failed to deliver streak event")
	}
}

// CurrentStreak returns the pair's streak count, 0 if they were never linked
func (s *StreakService) CurrentStreak(ctx context.Context, userA, userB string) (int, error) {
	if err := validatePair(userA, userB); err != nil {
		return 0, err
	}
	var count int
	err := s.store.InTx(ctx, func(r *repository.Repos) error {
		pair, err := r.Streaks.Get(ctx, models.NewPairKey(userA, userB))
		if errors.Is(err, models.ErrNotFound) {
			count = 0
			return nil
		}
		if err != nil {
			return err
		}
		count = pair.Count
		return nil
	})
	return count, err
}

// ListStreaks returns the user's streaks. A group context keeps only partners
// the user has interacted with there; the personal context returns all.
func (s *StreakService) ListStreaks(ctx context.Context, userID, contextID string) ([]models.PartnerStreak, error) {
	if userID == "" {
		return nil, models.Invalid("user_id", "required")
	}
	var out []models.PartnerStreak
	err := s.store.InTx(ctx, func(r *repository.Repos) error {
		all, err := r.Streaks.ListForUser(ctx, userID)
		if err != nil {
			return err
		}
		if contextID == models.PersonalContext {
			out = all
			return nil
		}
		inContext, err := r.Interactions.PartnersInContext(ctx, userID, contextID)
		if err != nil {
			return err
		}
		out = out[:0]
		for _, ps := range all {
			if inContext[ps.PartnerID] {
				out = append(out, ps)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.PartnerStreak{}
	}
	return out, nil
}

// ResetStreak forces the pair Cold and purges their interaction records.
// It returns false if the two users were never linked.
func (s *StreakService) ResetStreak(ctx context.Context, userA, userB string) (bool, error) {
	if err := validatePair(userA, userB); err != nil {
		return false, err
	}
	key := models.NewPairKey(userA, userB)
	var found bool
	err := s.store.InTx(ctx, func(r *repository.Repos) error {
		snap, err := r.Streaks.Snapshot(ctx, key)
		if err != nil {
			return err
		}
		if found = snap.Exists(); !found {
			return nil
		}
		if err := r.Streaks.Reset(ctx, key); err != nil {
			return err
		}
		purged, err := r.Interactions.Purge(ctx, key)
		if err != nil {
			return err
		}
		log.Info().Str("pair", key.String()).Int64("purged", purged).Msg("Streak reset")
		return nil
	})
	return found, err
}

func validatePair(a, b string) error {
	switch {
	case a == "":
		return models.Invalid("user_id", "required")
	case b == "":
		return models.Invalid("partner_id", "required")
	case a == b:
		return models.Invalid("partner_id", "cannot pair with yourself")
	}
	return nil
}

func ensureUsers(ctx context.Context, r *repository.Repos, ids ...string) error {
	for _, id := range ids {
		if err := r.Users.Ensure(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
