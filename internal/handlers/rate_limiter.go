package handlers

import (
	"strings"
	"sync"
	"time"
)

// placementLimiter caps how many orders one customer can place inside a sliding window.
type placementLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu     sync.Mutex
	recent map[string][]time.Time
	sweep  time.Time
}

func newPlacementLimiter(limit int, window time.Duration, clock func() time.Time) *placementLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &placementLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		recent: make(map[string][]time.Time),
	}
}

// Reserve records an attempt by customerID. When the customer is over the limit it returns false
// and how long until the oldest attempt leaves the window.
func (l *placementLimiter) Reserve(customerID string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	customerID = strings.TrimSpace(customerID)
	now := l.clock()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.sweep) >= l.window {
		l.dropIdleLocked(cutoff)
		l.sweep = now
	}

	attempts := trimBefore(l.recent[customerID], cutoff)
	if len(attempts) >= l.limit {
		l.recent[customerID] = attempts
		return false, attempts[0].Sub(cutoff)
	}
	l.recent[customerID] = append(attempts, now)
	return true, 0
}

func (l *placementLimiter) dropIdleLocked(cutoff time.Time) {
	for id, attempts := range l.recent {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(cutoff) {
			delete(l.recent, id)
		}
	}
}

// trimBefore drops attempts at or before cutoff. attempts is in ascending order.
func trimBefore(attempts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(attempts) && !attempts[i].After(cutoff) {
		i++
	}
	return attempts[i:]
}
