package clock

import (
	"sync"
	"time"
)

// Manual is a Clock that only moves when Advance or Set is called.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	timers []manualTimer
}

type manualTimer struct {
	at time.Time
	ch chan time.Time
}

// NewManual creates a Manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start.UTC()}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// After returns a channel that fires once the clock has advanced by d.
func (m *Manual) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if d <= 0 {
		ch <- m.now
		return ch
	}
	m.timers = append(m.timers, manualTimer{at: m.now.Add(d), ch: ch})
	return ch
}

// Advance moves the clock forward by d and fires every timer that is due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now
	pending := m.timers[:0]
	var due []manualTimer
	for _, t := range m.timers {
		if !t.at.After(now) {
			due = append(due, t)
		} else {
			pending = append(pending, t)
		}
	}
	m.timers = pending
	m.mu.Unlock()

	for _, t := range due {
		t.ch <- now
	}
}

// Set jumps the clock to t. Moving backwards is allowed, timers only fire
// when moving forward.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	d := t.UTC().Sub(m.now)
	if d <= 0 {
		m.now = t.UTC()
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.Advance(d)
}
