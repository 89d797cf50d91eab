package services

import (
	"sort"
	"sync"

	"cloud.google.com/go/civil"
)

// DailyCache remembers, for the current calendar day only, who was active in
// each context and which pairs were already notified. It suppresses duplicate
// work within a day and is safe to lose; persistence stays the source of truth.
type DailyCache struct {
	mu       sync.Mutex
	date     civil.Date
	active   map[string]map[string]struct{} // context -> users
	notified map[string]map[string]struct{} // context -> pair keys
}

// NewDailyCache creates an empty cache with no current date
func NewDailyCache() *DailyCache {
	return &DailyCache{
		active:   make(map[string]map[string]struct{}),
		notified: make(map[string]map[string]struct{}),
	}
}

// Date returns the day the cache currently holds
func (c *DailyCache) Date() civil.Date {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.date
}

// Rollover clears every set when today differs from the cached date and runs
// onRoll while still holding the lock, so no observation for the new day is
// accepted before onRoll returns. It reports whether a rollover happened.
func (c *DailyCache) Rollover(today civil.Date, onRoll func(prev civil.Date)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.date == today {
		return false
	}
	prev := c.date
	c.date = today
	clear(c.active)
	clear(c.notified)
	if onRoll != nil {
		onRoll(prev)
	}
	return true
}

// Observe records user activity in the context. It returns false if the user
// was already seen there on that date. Observations for a date other than
// the cached one are ignored and report true, so callers do the full work.
func (c *DailyCache) Observe(context, user string, date civil.Date) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if date != c.date {
		return true
	}
	return add(c.active, context, user)
}

// Forget drops an observation so the next one for the user does full work
func (c *DailyCache) Forget(context, user string, date civil.Date) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if date == c.date {
		delete(c.active[context], user)
	}
}

// Seen reports whether the user was already observed in the context on date
func (c *DailyCache) Seen(context, user string, date civil.Date) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return date == c.date && has(c.active, context, user)
}

// ActiveUsers returns the users observed in the context on date, sorted
func (c *DailyCache) ActiveUsers(context string, date civil.Date) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if date != c.date {
		return nil
	}
	users := make([]string, 0, len(c.active[context]))
	for u := range c.active[context] {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// AlreadyNotified reports whether the pair was notified in the context on date
func (c *DailyCache) AlreadyNotified(context, pairKey string, date civil.Date) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return date == c.date && has(c.notified, context, pairKey)
}

// MarkNotified records a notification. It returns false if the pair was
// already marked, letting callers check and mark in one step.
func (c *DailyCache) MarkNotified(context, pairKey string, date civil.Date) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if date != c.date {
		return true
	}
	return add(c.notified, context, pairKey)
}

func add(sets map[string]map[string]struct{}, context, member string) bool {
	set, ok := sets[context]
	if !ok {
		set = make(map[string]struct{})
		sets[context] = set
	}
	if _, ok := set[member]; ok {
		return false
	}
	set[member] = struct{}{}
	return true
}

func has(sets map[string]map[string]struct{}, context, member string) bool {
	_, ok := sets[context][member]
	return ok
}
