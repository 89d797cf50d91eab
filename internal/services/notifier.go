package services

import (
	"context"
	"errors"

	"streak-backend/internal/models"
)

// Notifier delivers streak events to the members of a pair
type Notifier interface {
	Notify(ctx context.Context, ev models.StreakEvent) error
}

// MultiNotifier fans an event out to every notifier and joins their errors
type MultiNotifier []Notifier

// Notify calls every notifier even when one fails
func (m MultiNotifier) Notify(ctx context.Context, ev models.StreakEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// nopNotifier is used when nothing is configured
type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, models.StreakEvent) error { return nil }

// eventFor maps a transition to the event type it is announced as, or ""
func eventFor(t models.StreakTransition, milestones Milestones) string {
	switch {
	case milestones.Reached(t):
		return models.EventMilestone
	case t.Kind == models.TransitionIncremented:
		return models.EventStreakIncremented
	case t.Kind == models.TransitionReset:
		return models.EventStreakReset
	}
	return ""
}
