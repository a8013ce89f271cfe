package clock

import (
	"sync"
	"time"
)

// Handle cancels a scheduled callback. Stop is idempotent and safe to call
// after the callback has fired or on a zero Handle obtained from Noop.
type Handle interface {
	Stop()
}

// Scheduler issues single-shot and periodic callbacks.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Handle
	Every(d time.Duration, fn func()) Handle
}

type noopHandle struct{}

func (noopHandle) Stop() {}

// Noop is a Handle that cancels nothing.
var Noop Handle = noopHandle{}

// Real schedules on the runtime timers; callbacks run on their own goroutines.
type Real struct{}

// NewReal returns the wall-clock scheduler.
func NewReal() Real { return Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, fn func()) Handle {
	return timerHandle{t: time.AfterFunc(d, fn)}
}

func (Real) Every(d time.Duration, fn func()) Handle {
	h := &tickerHandle{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-h.ticker.C:
				fn()
			case <-h.done:
				return
			}
		}
	}()
	return h
}

type timerHandle struct {
	t *time.Timer
}

func (h timerHandle) Stop() { h.t.Stop() }

type tickerHandle struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (h *tickerHandle) Stop() {
	h.once.Do(func() {
		h.ticker.Stop()
		close(h.done)
	})
}
