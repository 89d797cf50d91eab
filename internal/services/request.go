package services

import (
	"context"
	"fmt"
	"time"

	"streak-backend/internal/models"
	"streak-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RequestService handles opt-in link requests between users
type RequestService struct {
	store    Persistence
	notifier Notifier
}

// NewRequestService creates a new request service
func NewRequestService(store Persistence, notifier Notifier) *RequestService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &RequestService{
		store:    store,
		notifier: notifier,
	}
}

// CreateRequestRequest represents a request to link with another user
type CreateRequestRequest struct {
	PartnerHandle string `json:"partner_handle"`
}

// RequestOutcome reports what Request did
type RequestOutcome struct {
	Request *models.StreakRequest `json:"request,omitempty"`
	// Linked is set when the partner had already asked, so the pair was
	// created straight away
	Linked bool `json:"linked"`
}

// Request asks the user with toHandle to start a streak with fromUserID.
// If they already asked fromUserID, the pair is linked immediately.
func (s *RequestService) Request(ctx context.Context, fromUserID, toHandle string) (*RequestOutcome, error) {
	handle, err := normalizeHandle(toHandle)
	if err != nil {
		return nil, err
	}

	var out *RequestOutcome
	err = s.store.InTx(ctx, func(r *repository.Repos) error {
		out = nil

		partner, err := r.Users.GetByHandle(ctx, handle)
		if err != nil {
			return fmt.Errorf("partner not found: %w", err)
		}
		if partner.ID == fromUserID {
			return models.Invalid("partner_handle", "cannot pair with yourself")
		}
		key := models.NewPairKey(fromUserID, partner.ID)

		snap, err := r.Streaks.Snapshot(ctx, key)
		if err != nil {
			return err
		}
		if snap.Exists() {
			return models.Invalid("partner_handle", "already linked")
		}

		// a pending request the other way round counts as acceptance
		reverse, err := r.Requests.Incoming(ctx, fromUserID)
		if err != nil {
			return err
		}
		for _, req := range reverse {
			if req.FromUserID == partner.ID {
				if err := s.link(ctx, r, key); err != nil {
					return err
				}
				out = &RequestOutcome{Linked: true}
				return nil
			}
		}

		if err := r.Users.Ensure(ctx, fromUserID); err != nil {
			return err
		}
		req := &models.StreakRequest{
			ID:         uuid.New().String(),
			FromUserID: fromUserID,
			ToUserID:   partner.ID,
			CreatedAt:  time.Now(),
		}
		created, err := r.Requests.Create(ctx, req)
		if err != nil {
			return err
		}
		if !created {
			return models.Invalid("partner_handle", "request already sent")
		}
		out = &RequestOutcome{Request: req}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Request != nil {
		ev := models.StreakEvent{Type: models.EventStreakRequest, UserA: out.Request.FromUserID, UserB: out.Request.ToUserID}
		if err := s.notifier.Notify(ctx, ev); err != nil {
			log.Warn().Err(err).Str("request_id", out.Request.ID).Msg("Failed to deliver request event")
		}
	}
	return out, nil
}

// Accept links the pair of a request addressed to userID
func (s *RequestService) Accept(ctx context.Context, requestID, userID string) (*models.StreakPair, error) {
	var pair *models.StreakPair
	err := s.store.InTx(ctx, func(r *repository.Repos) error {
		req, err := s.addressedTo(ctx, r, requestID, userID)
		if err != nil {
			return err
		}
		key := models.NewPairKey(req.FromUserID, req.ToUserID)
		if err := s.link(ctx, r, key); err != nil {
			return err
		}
		pair, err = r.Streaks.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("request_id", requestID).Str("pair", pair.Key.String()).Msg("Streak request accepted")
	return pair, nil
}

// Decline drops a request addressed to userID
func (s *RequestService) Decline(ctx context.Context, requestID, userID string) error {
	return s.store.InTx(ctx, func(r *repository.Repos) error {
		if _, err := s.addressedTo(ctx, r, requestID, userID); err != nil {
			return err
		}
		return r.Requests.Delete(ctx, requestID)
	})
}

// Incoming lists requests waiting for userID, with the senders' handles
func (s *RequestService) Incoming(ctx context.Context, userID string) ([]*models.StreakRequest, error) {
	var reqs []*models.StreakRequest
	err := s.store.InTx(ctx, func(r *repository.Repos) error {
		var err error
		reqs, err = r.Requests.Incoming(ctx, userID)
		if err != nil || len(reqs) == 0 {
			return err
		}
		senders := make([]string, 0, len(reqs))
		for _, req := range reqs {
			senders = append(senders, req.FromUserID)
		}
		handles, err := r.Users.Handles(ctx, senders)
		if err != nil {
			return err
		}
		for _, req := range reqs {
			req.FromHandle = handles[req.FromUserID]
		}
		return nil
	})
	if reqs == nil {
		reqs = []*models.StreakRequest{}
	}
	return reqs, err
}

// addressedTo loads the request and checks it is for userID. Requests for
// someone else look the same as missing ones.
func (s *RequestService) addressedTo(ctx context.Context, r *repository.Repos, requestID, userID string) (*models.StreakRequest, error) {
	req, err := r.Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ToUserID != userID {
		return nil, fmt.Errorf("request %s: %w", requestID, models.ErrNotFound)
	}
	return req, nil
}

// link creates the Cold pair and clears requests in both directions
func (s *RequestService) link(ctx context.Context, r *repository.Repos, key models.PairKey) error {
	if err := ensureUsers(ctx, r, key.UserA, key.UserB); err != nil {
		return err
	}
	if _, err := r.Streaks.Create(ctx, key); err != nil {
		return fmt.Errorf("failed to create pair: %w", err)
	}
	return r.Requests.DeleteBetween(ctx, key)
}
