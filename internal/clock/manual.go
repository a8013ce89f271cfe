package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic Scheduler for tests. Time only moves on Advance,
// and due callbacks run synchronously on the caller's goroutine in due order.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers map[int]*manualTimer
}

type manualTimer struct {
	id     int
	due    time.Time
	period time.Duration
	fn     func()
}

// NewManual starts a manual clock at the given instant.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start, timers: make(map[int]*manualTimer)}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Handle {
	return m.add(d, 0, fn)
}

func (m *Manual) Every(d time.Duration, fn func()) Handle {
	return m.add(d, d, fn)
}

func (m *Manual) add(d, period time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.timers[m.seq] = &manualTimer{id: m.seq, due: m.now.Add(d), period: period, fn: fn}
	return manualHandle{m: m, id: m.seq}
}

// Pending reports how many callbacks are armed.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Advance moves time forward by d, firing every callback that falls due.
// Callbacks may schedule or stop other callbacks.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.due
		if next.period > 0 {
			next.due = next.due.Add(next.period)
		} else {
			delete(m.timers, next.id)
		}
		fn := next.fn
		m.mu.Unlock()

		fn()
	}
}

func (m *Manual) nextDueLocked(target time.Time) *manualTimer {
	due := make([]*manualTimer, 0, len(m.timers))
	for _, t := range m.timers {
		if !t.due.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].due.Equal(due[j].due) {
			return due[i].due.Before(due[j].due)
		}
		return due[i].id < due[j].id
	})
	return due[0]
}

type manualHandle struct {
	m  *Manual
	id int
}

func (h manualHandle) Stop() {
	h.m.mu.Lock()
	delete(h.m.timers, h.id)
	h.m.mu.Unlock()
}
