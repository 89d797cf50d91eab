package services

import (
	"testing"

	"streak-backend/internal/models"

	"cloud.google.com/go/civil"
)

func date(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func warm(n int, d string) models.StreakPair {
	last := date(d)
	return models.StreakPair{Key: models.NewPairKey("a", "b"), Count: n, LastDate: &last}
}

func TestAdvance(t *testing.T) {
	tests := []struct {
		name      string
		pair      models.StreakPair
		on        string
		wantKind  models.TransitionKind
		wantCount int
		wantLast  string
	}{
		{"cold starts at one", models.StreakPair{}, "2024-01-01", models.TransitionIncremented, 1, "2024-01-01"},
		{"same day is a no-op", warm(4, "2024-01-10"), "2024-01-10", models.TransitionNoChange, 4, "2024-01-10"},
		{"next day increments", warm(4, "2024-01-10"), "2024-01-11", models.TransitionIncremented, 5, "2024-01-11"},
		{"gap restarts at one", warm(5, "2024-01-10"), "2024-01-13", models.TransitionReset, 1, "2024-01-13"},
		{"back-dated is a no-op", warm(5, "2024-01-10"), "2024-01-08", models.TransitionNoChange, 5, "2024-01-10"},
		{"month boundary", warm(2, "2024-01-31"), "2024-02-01", models.TransitionIncremented, 3, "2024-02-01"},
		{"leap day", warm(2, "2024-02-28"), "2024-02-29", models.TransitionIncremented, 3, "2024-02-29"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.pair
			next, tr := Advance(tt.pair, date(tt.on))
			if tr.Kind != tt.wantKind || tr.Count != tt.wantCount {
				t.Errorf("transition = %s(%d), want %s(%d)", tr.Kind, tr.Count, tt.wantKind, tt.wantCount)
			}
			if next.Count != tt.wantCount {
				t.Errorf("count = %d, want %d", next.Count, tt.wantCount)
			}
			if next.LastDate == nil || next.LastDate.String() != tt.wantLast {
				t.Errorf("last date = %v, want %s", next.LastDate, tt.wantLast)
			}
			if before.Count != tt.pair.Count {
				t.Error("Advance mutated its input")
			}
		})
	}
}

func TestMilestonesReached(t *testing.T) {
	m := DefaultMilestones
	if !m.Reached(models.StreakTransition{Kind: models.TransitionIncremented, Count: 7}) {
		t.Error("7 not reached")
	}
	if m.Reached(models.StreakTransition{Kind: models.TransitionIncremented, Count: 8}) {
		t.Error("8 reported as milestone")
	}
	if m.Reached(models.StreakTransition{Kind: models.TransitionNoChange, Count: 7}) {
		t.Error("no_change reported as milestone")
	}
}
