package bmp390

import (
	"errors"
	"sync"
	"time"
)

// Timer is a running periodic callback.
type Timer interface {
	// Stop prevents further callbacks. It does not wait for one in flight.
	Stop()
}

// Clock supplies the time base and the periodic timer service.
type Clock interface {
	Now() time.Time
	Every(period time.Duration, fn func()) Timer
}

// SystemClock runs callbacks from a ticker goroutine.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Every(period time.Duration, fn func()) Timer {
	t := &ticker{t: time.NewTicker(period), done: make(chan struct{})}
	go t.run(fn)
	return t
}

type ticker struct {
	t    *time.Ticker
	done chan struct{}
	once sync.Once
}

func (t *ticker) run(fn func()) {
	for {
		select {
		case <-t.t.C:
			fn()
		case <-t.done:
			return
		}
	}
}

func (t *ticker) Stop() {
	t.once.Do(func() {
		t.t.Stop()
		close(t.done)
	})
}

// setPeriodLocked keeps at most one timer running at the given period. An
// unchanged period leaves the running timer alone. d.mu held.
func (d *Device) setPeriodLocked(p time.Duration) {
	if d.timer != nil && p == d.period {
		return
	}
	d.stopPollingLocked()
	d.period = p
	if p <= 0 {
		return
	}
	gen := d.pollGen
	d.timer = d.clock.Every(p, func() { d.poll(gen) })
}

// stopPollingLocked cancels the timer. Bumping the generation under d.mu
// turns any callback already waiting on the lock into a no-op.
func (d *Device) stopPollingLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pollGen++
	d.period = 0
}

// poll runs once per tick of the generation it was started for.
func (d *Device) poll(gen uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.pollGen || d.intent == Disabled {
		return
	}
	if d.cfg.Forced() {
		if err := d.regs.write(regPwrCtrl, pwrForced); err != nil {
			d.log.WithError(err).Warn("forced trigger failed")
			return
		}
	}
	_, err := d.sampleLocked()
	switch {
	case err == nil:
	case errors.Is(err, ErrNotReady):
		d.log.Debug("no new measurement")
	default:
		d.log.WithError(err).Warn("sample failed")
	}
}
