package checkin

import (
	"sync"
	"time"
)

// Throttle limits check-in attempts per student
// ARCHITECTURAL DISCOVERY: Per-student state tracking with periodic cleanup
// keeps memory bounded to recently active students
type Throttle struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	students map[int64]*studentWindow
}

// studentWindow tracks attempts for a single student in a fixed window
type studentWindow struct {
	attempts    int
	windowStart time.Time
}

// NewThrottle allows limit attempts per window. A non-positive limit disables it.
func NewThrottle(limit int, window time.Duration) *Throttle {
	return &Throttle{
		limit:    limit,
		window:   window,
		students: make(map[int64]*studentWindow),
	}
}

// Allow records one attempt at now and reports whether it is within the limit
func (t *Throttle) Allow(studentUserID int64, now time.Time) bool {
	if t.limit <= 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	w, exists := t.students[studentUserID]
	if !exists || now.Sub(w.windowStart) >= t.window {
		t.students[studentUserID] = &studentWindow{attempts: 1, windowStart: now}
		return true
	}

	if w.attempts >= t.limit {
		return false
	}
	w.attempts++
	return true
}

// Cleanup drops students idle for more than five windows
func (t *Throttle) Cleanup(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, w := range t.students {
		if now.Sub(w.windowStart) > 5*t.window {
			delete(t.students, id)
			removed++
		}
	}
	return removed
}

// Tracked returns the number of students with live state
func (t *Throttle) Tracked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.students)
}
