package repository

import (
	"errors"
	"fmt"
	"time"

	"streak-backend/internal/models"

	"cloud.google.com/go/civil"
)

// Repos groups the repositories bound to one transaction
type Repos struct {
	q querier

	Users        *UserRepository
	Interactions *InteractionRepository
	Streaks      *StreakRepository
	Freezes      *FreezeRepository
	Requests     *RequestRepository
}

func newRepos(q querier, now func() time.Time) *Repos {
	return &Repos{
		q:            q,
		Users:        &UserRepository{q: q, now: now},
		Interactions: &InteractionRepository{q: q, now: now},
		Streaks:      &StreakRepository{q: q, now: now},
		Freezes:      &FreezeRepository{q: q, now: now},
		Requests:     &RequestRepository{q: q},
	}
}

func formatDate(d civil.Date) string {
	return d.String()
}

func parseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid stored date %q: %w", s, err)
	}
	return d, nil
}

func parseNullDate(s *string) (*civil.Date, error) {
	if s == nil {
		return nil, nil
	}
	d, err := parseDate(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullDate(d *civil.Date) *string {
	if d == nil {
		return nil
	}
	s := formatDate(*d)
	return &s
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}
