// Package expiry turns an absolute expiry deadline into a countdown and a
// one-shot expired signal.
package expiry

import (
	"fmt"
	"sync"
	"time"
)

// Urgency buckets the remaining time for display purposes.
type Urgency int

const (
	Normal  Urgency = iota // two minutes or more left
	Warning                // under two minutes
	Urgent                 // under one minute
)

// Classify is a pure function of the remaining time.
func Classify(remaining time.Duration) Urgency {
	switch {
	case remaining < time.Minute:
		return Urgent
	case remaining < 2*time.Minute:
		return Warning
	default:
		return Normal
	}
}

// Format renders a remaining duration as "M:SS". Anything at or below zero is
// "0:00".
func Format(remaining time.Duration) string {
	secs := int(remaining / time.Second)
	if secs <= 0 {
		return "0:00"
	}
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// Clock ticks once a second toward a deadline and invokes a callback exactly
// once when the deadline passes. Starting a clock that the caller already
// knows is expired reports the expired state without ever firing the callback.
type Clock struct {
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
	// Tick defaults to one second.
	Tick time.Duration

	mu        sync.Mutex
	expiresAt time.Time
	expired   bool
	running   bool
	stop      chan struct{}
	done      chan struct{}
}

// Start begins the countdown. If alreadyExpired is set, no ticker runs and
// onExpired is never invoked. Otherwise onExpired fires exactly once, on the
// first tick at or past the deadline. Start is a no-op on a running clock.
func (c *Clock) Start(expiresAt time.Time, alreadyExpired bool, onExpired func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}
	c.expiresAt = expiresAt
	if alreadyExpired {
		c.expired = true
		return
	}

	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.loop(onExpired)
}

func (c *Clock) loop(onExpired func()) {
	defer close(c.done)

	tick := c.Tick
	if tick == 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		if c.check(onExpired) {
			return
		}
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}
	}
}

// check fires onExpired and reports true once the deadline has passed.
func (c *Clock) check(onExpired func()) bool {
	c.mu.Lock()
	if c.remainingLocked() > 0 {
		c.mu.Unlock()
		return false
	}
	fire := !c.expired
	c.expired = true
	c.mu.Unlock()

	if fire && onExpired != nil {
		onExpired()
	}
	return true
}

// Stop halts the countdown without firing the callback. After Stop returns no
// callback will be invoked. Stop is idempotent.
func (c *Clock) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stop)
	done := c.done
	c.mu.Unlock()

	<-done
}

// Remaining returns the time left before expiry, never negative.
func (c *Clock) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked()
}

func (c *Clock) remainingLocked() time.Duration {
	if c.expired || c.expiresAt.IsZero() {
		return 0
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	r := c.expiresAt.Sub(now())
	if r < 0 {
		return 0
	}
	return r
}

// Expired reports whether the deadline has passed (or the clock was started
// in the already-expired state).
func (c *Clock) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// FormatRemaining renders the countdown for display.
func (c *Clock) FormatRemaining() string {
	return Format(c.Remaining())
}
