package models

import (
	"time"

	"cloud.google.com/go/civil"
)

// PersonalContext is the context of the user's own personal channel with the bot
const PersonalContext = ""

// User represents a user in the system
type User struct {
	ID        string    `json:"id"`
	Handle    string    `json:"handle"`
	Points    int64     `json:"points"`
	PushToken *string   `json:"push_token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InteractionRecord is one directional "actor reached out to partner" fact
type InteractionRecord struct {
	ActorID   string     `json:"actor_id"`
	PartnerID string     `json:"partner_id"`
	Date      civil.Date `json:"date"`
	Context   string     `json:"context"`
}

// PairKey identifies an unordered pair of users. UserA is always the smaller id.
type PairKey struct {
	UserA string
	UserB string
}

// NewPairKey builds the canonical key for two users
func NewPairKey(a, b string) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{UserA: a, UserB: b}
}

// String returns "a:b"
func (k PairKey) String() string {
	return k.UserA + ":" + k.UserB
}

// Other returns the member of the pair that is not userID
func (k PairKey) Other(userID string) string {
	if k.UserA == userID {
		return k.UserB
	}
	return k.UserA
}

// StreakPair is the streak aggregate of an unordered pair
type StreakPair struct {
	Key       PairKey     `json:"-"`
	Count     int         `json:"streak_count"`
	LastDate  *civil.Date `json:"last_confirmed_date,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Cold reports whether the pair has no running streak
func (p *StreakPair) Cold() bool {
	return p.Count == 0
}

// FreezeWindow suspends decay for a pair through EndDate inclusive
type FreezeWindow struct {
	Key     PairKey    `json:"-"`
	EndDate civil.Date `json:"end_date"`
}

// StreakRequest is a pending opt-in from one user to another
type StreakRequest struct {
	ID         string    `json:"id"`
	FromUserID string    `json:"from_user_id"`
	FromHandle string    `json:"from_handle,omitempty"`
	ToUserID   string    `json:"to_user_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// PartnerStreak is one row of a user's streak listing
type PartnerStreak struct {
	PartnerID string      `json:"partner_id"`
	Handle    string      `json:"handle"`
	Count     int         `json:"count"`
	LastDate  *civil.Date `json:"last_confirmed_date,omitempty"`
}

// TransitionKind is the outcome of reconciling an interaction
type TransitionKind string

const (
	TransitionNoChange    TransitionKind = "no_change"
	TransitionIncremented TransitionKind = "incremented"
	TransitionReset       TransitionKind = "reset"
	TransitionPending     TransitionKind = "pending"
)

// StreakTransition is returned by ReportInteraction
type StreakTransition struct {
	Kind      TransitionKind `json:"kind"`
	Count     int            `json:"count"`
	Milestone bool           `json:"milestone,omitempty"`
}

// Changed reports whether the streak counter moved
func (t StreakTransition) Changed() bool {
	return t.Kind == TransitionIncremented || t.Kind == TransitionReset
}

// PairOutcome is the transition for one partner of an observed message
type PairOutcome struct {
	PartnerID  string           `json:"partner_id"`
	Transition StreakTransition `json:"transition"`
}

// FreezeStatus describes the result of a freeze request
type FreezeStatus string

const (
	FreezeStatusGranted           FreezeStatus = "granted"
	FreezeStatusInsufficientFunds FreezeStatus = "insufficient_funds"
)

// FreezeResult is returned by RequestFreeze
type FreezeResult struct {
	Success    bool         `json:"success"`
	Status     FreezeStatus `json:"status"`
	NewEndDate *civil.Date  `json:"new_end_date,omitempty"`
	NewBalance int64        `json:"new_balance"`
	Cost       int64        `json:"cost"`
}

// SweepReport summarizes one decay sweep
type SweepReport struct {
	RunID     string     `json:"run_id"`
	AsOf      civil.Date `json:"as_of"`
	Scanned   int        `json:"scanned"`
	Reset     []string   `json:"reset"`
	Frozen    []string   `json:"frozen"`
	Anomalies []string   `json:"anomalies"`
	Failed    []string   `json:"failed,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	Duration  string     `json:"duration"`
}

// StreakEvent is sent to both members of a pair when their streak moves
type StreakEvent struct {
	Type       string           `json:"type"`
	UserA      string           `json:"user_a"`
	UserB      string           `json:"user_b"`
	Context    string           `json:"context,omitempty"`
	Date       civil.Date       `json:"date"`
	Transition StreakTransition `json:"transition"`
}

// Event types
const (
	EventStreakIncremented = "streak_incremented"
	EventStreakReset       = "streak_reset"
	EventMilestone         = "streak_milestone"
	EventFreezeGranted     = "freeze_granted"
	EventStreakRequest     = "streak_request"
)
