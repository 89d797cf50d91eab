package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"streak-backend/internal/models"
	"streak-backend/internal/repository"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// pusher is the part of *apns2.Client the notifier uses
type pusher interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// APNsConfig configures token-based APNs authentication
type APNsConfig struct {
	KeyPath    string
	KeyID      string
	TeamID     string
	Topic      string
	Production bool
}

// PushNotifier sends streak events to the iOS devices of both pair members
type PushNotifier struct {
	client pusher
	store  Persistence
	topic  string
}

// NewPushNotifier creates an APNs notifier from a .p8 signing key
func NewPushNotifier(cfg APNsConfig, store Persistence) (*PushNotifier, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}
	tok := &token.Token{AuthKey: authKey, KeyID: cfg.KeyID, TeamID: cfg.TeamID}

	client := apns2.NewTokenClient(tok)
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}
	return &PushNotifier{client: client, store: store, topic: cfg.Topic}, nil
}

// Notify pushes the event to every member with a registered device
func (p *PushNotifier) Notify(ctx context.Context, ev models.StreakEvent) error {
	var errs []error
	for _, userID := range []string{ev.UserA, ev.UserB} {
		if err := p.pushTo(ctx, userID, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *PushNotifier) pushTo(ctx context.Context, userID string, ev models.StreakEvent) error {
	var user *models.User
	err := p.store.InTx(ctx, func(r *repository.Repos) error {
		var err error
		user, err = r.Users.GetByID(ctx, userID)
		return err
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load push token: %w", err)
	}
	if user.PushToken == nil || *user.PushToken == "" {
		return nil
	}

	n := &apns2.Notification{
		DeviceToken: *user.PushToken,
		Topic:       p.topic,
		Payload:     pushPayload(ev, userID),
	}
	res, err := p.client.PushWithContext(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to push to %s: %w", userID, err)
	}
	if res.Sent() {
		return nil
	}

	if res.StatusCode == http.StatusGone || res.Reason == apns2.ReasonBadDeviceToken {
		log.Info().Str("user_id", userID).Str("reason", res.Reason).Msg("Dropping stale push token")
		return p.store.InTx(ctx, func(r *repository.Repos) error {
			return r.Users.UpdatePushToken(ctx, userID, nil)
		})
	}
	return fmt.Errorf("push to %s rejected: %d %s", userID, res.StatusCode, res.Reason)
}

func pushPayload(ev models.StreakEvent, userID string) *payload.Payload {
	partner := models.NewPairKey(ev.UserA, ev.UserB).Other(userID)
	p := payload.NewPayload().
		Custom("type", ev.Type).
		Custom("partner_id", partner).
		Custom("count", ev.Transition.Count)

	switch ev.Type {
	case models.EventMilestone:
		p.AlertTitle("Milestone reached").AlertBody(fmt.Sprintf("%d day streak!", ev.Transition.Count)).Sound("default")
	case models.EventStreakIncremented:
		p.AlertBody(fmt.Sprintf("Streak is now %d days", ev.Transition.Count))
	case models.EventStreakReset:
		p.AlertBody("Streak restarted at 1 day")
	case models.EventFreezeGranted:
		p.AlertBody(fmt.Sprintf("Streak frozen through %s", ev.Date))
	case models.EventStreakRequest:
		p.AlertBody("New streak request")
	}
	return p
}
