// Package clock provides an injectable time source so offer expiry can be
// tested deterministically. Production code uses System; tests use a Fake
// and drive it with Advance.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock is the time source consumed by the dispatcher.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that delivers the current time once the
	// given duration has elapsed.
	After(d time.Duration) <-chan time.Time
}

// System returns a Clock backed by the wall clock.
func System() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// ──────────────────────────────────────────────────
// Fake
// ──────────────────────────────────────────────────

// Fake is a manually advanced Clock for tests.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	deadline time.Time
	ch       chan time.Time
}

// NewFake creates a Fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start.UTC()}
}

// Now returns the fake's current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After registers a timer that fires when the fake clock is advanced to
// or past the deadline.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	t := &fakeTimer{deadline: f.now.Add(d), ch: ch}
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.timers = append(f.timers, t)
	return ch
}

// Advance moves the clock forward and fires every timer whose deadline
// has been reached, in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now

	var due []*fakeTimer
	remaining := f.timers[:0]
	for _, t := range f.timers {
		if !t.deadline.After(now) {
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	f.timers = remaining
	f.mu.Unlock()

	sort.Slice(due, func(i, k int) bool { return due[i].deadline.Before(due[k].deadline) })
	for _, t := range due {
		t.ch <- now
	}
}
