package bmp390test

import (
	"sync"
	"time"

	"barocode-go/drivers/bmp390"
)

// Clock is a manually advanced bmp390.Clock. Timer callbacks run on the
// goroutine calling Advance.
type Clock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*Timer
	created int
}

// NewClock returns a clock reading start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Every(period time.Duration, fn func()) bmp390.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &Timer{Period: period, c: c, fn: fn, next: c.now.Add(period)}
	c.timers = append(c.timers, t)
	c.created++
	return t
}

// Advance moves time forward by d, firing due callbacks in time order.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	end := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var due *Timer
		for _, t := range c.timers {
			if t.stopped || t.next.After(end) {
				continue
			}
			if due == nil || t.next.Before(due.next) {
				due = t
			}
		}
		if due == nil {
			c.now = end
			c.mu.Unlock()
			return
		}
		c.now = due.next
		due.next = due.next.Add(due.Period)
		due.fired++
		fn := due.fn
		c.mu.Unlock()
		fn()
	}
}

// Active returns the number of timers not stopped.
func (c *Clock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Created returns the number of timers ever started.
func (c *Clock) Created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created
}

// Last returns the most recently created timer, or nil.
func (c *Clock) Last() *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}

// Timer is a periodic callback registered with Clock.
type Timer struct {
	Period time.Duration

	c       *Clock
	fn      func()
	next    time.Time
	fired   int
	stopped bool
}

func (t *Timer) Stop() {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	t.stopped = true
}

// Stopped reports whether Stop has been called.
func (t *Timer) Stopped() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.stopped
}

// Fired returns how many times Advance dispatched the callback.
func (t *Timer) Fired() int {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.fired
}

// Fire invokes the callback directly, as if the timer service had already
// dispatched it before Stop. Used to check late callbacks are ignored.
func (t *Timer) Fire() { t.fn() }
