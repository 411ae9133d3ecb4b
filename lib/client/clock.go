package client

import (
	"slices"
	"sync"
	"time"
)

// Clock schedules the binder's timers: debounce windows, polls and delayed
// redirects.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a scheduled callback.
type Timer interface {
	// Stop cancels the callback. It reports false if the callback already
	// ran or was stopped.
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ManualClock is a Clock that only moves when Advance is called. Callbacks
// run synchronously on the goroutine calling Advance.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	clock *ManualClock
	at    time.Duration
	seq   int
	f     func()
}

// NewManualClock returns a clock at time zero.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

func (m *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{clock: m, at: m.now + max(d, 0), seq: m.seq, f: f}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the clock forward by d, running every callback that falls
// due in time order.
func (m *ManualClock) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	for {
		next := m.next(target)
		if next == nil {
			break
		}
		m.now = next.at
		m.mu.Unlock()
		next.f()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

// next pops the earliest timer due at or before target. Callers hold m.mu.
func (m *ManualClock) next(target time.Duration) *manualTimer {
	i := -1
	for j, t := range m.timers {
		if t.at > target {
			continue
		}
		if i < 0 || t.at < m.timers[i].at || (t.at == m.timers[i].at && t.seq < m.timers[i].seq) {
			i = j
		}
	}
	if i < 0 {
		return nil
	}
	t := m.timers[i]
	m.timers = slices.Delete(m.timers, i, i+1)
	return t
}

// Pending returns the number of scheduled callbacks.
func (m *ManualClock) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Now returns the elapsed time since the clock was created.
func (m *ManualClock) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (t *manualTimer) Stop() bool {
	m := t.clock
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, x := range m.timers {
		if x == t {
			m.timers = slices.Delete(m.timers, i, i+1)
			return true
		}
	}
	return false
}
