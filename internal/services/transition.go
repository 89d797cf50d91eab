package services

import (
	"slices"

	"streak-backend/internal/models"

	"cloud.google.com/go/civil"
)

// Advance applies a confirmed mutual interaction on date d to the pair.
// It returns the next state and the transition; the input is not modified.
//
//	Cold              -> Warm(1, d)    incremented
//	Warm(n, d)        -> unchanged     no_change
//	Warm(n, d-1)      -> Warm(n+1, d)  incremented
//	Warm(n, < d-1)    -> Warm(1, d)    reset
//	Warm(n, > d)      -> unchanged     no_change
func Advance(pair models.StreakPair, d civil.Date) (models.StreakPair, models.StreakTransition) {
	next := pair

	if pair.Cold() || pair.LastDate == nil {
		next.Count = 1
		next.LastDate = &d
		return next, models.StreakTransition{Kind: models.TransitionIncremented, Count: 1}
	}

	last := *pair.LastDate
	switch gap := d.DaysSince(last); {
	case gap <= 0:
		return pair, models.StreakTransition{Kind: models.TransitionNoChange, Count: pair.Count}
	case gap == 1:
		next.Count = pair.Count + 1
		next.LastDate = &d
		return next, models.StreakTransition{Kind: models.TransitionIncremented, Count: next.Count}
	default:
		next.Count = 1
		next.LastDate = &d
		return next, models.StreakTransition{Kind: models.TransitionReset, Count: 1}
	}
}

// Milestones is the set of streak lengths that count as achievements
type Milestones []int

// DefaultMilestones are used when none are configured
var DefaultMilestones = Milestones{3, 7, 14, 30, 50, 100}

// Reached reports whether an increment landed exactly on a milestone
func (m Milestones) Reached(t models.StreakTransition) bool {
	return t.Kind == models.TransitionIncremented && slices.Contains(m, t.Count)
}
