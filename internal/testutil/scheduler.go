package testutil

import (
	"sync"
	"time"

	"github.com/roomify/backend/internal/progress"
)

// ManualScheduler is a progress.Scheduler driven by Advance. Callbacks run
// synchronously on the goroutine calling Advance.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	s       *ManualScheduler
	at      time.Duration
	every   time.Duration
	seq     int
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() {
	t.s.mu.Lock()
	t.stopped = true
	t.s.mu.Unlock()
}

// NewManualScheduler returns a scheduler at time zero.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (m *ManualScheduler) add(d, every time.Duration, f func()) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{s: m, at: m.now + d, every: every, seq: m.seq, f: f}
	m.timers = append(m.timers, t)
	return t
}

func (m *ManualScheduler) AfterFunc(d time.Duration, f func()) progress.Stopper {
	return m.add(d, 0, f)
}

func (m *ManualScheduler) Every(d time.Duration, f func()) progress.Stopper {
	return m.add(d, d, f)
}

// Advance moves the clock forward, firing every due timer in order.
func (m *ManualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		var next *manualTimer
		for _, t := range m.timers {
			if t.stopped || t.at > target {
				continue
			}
			if next == nil || t.at < next.at || (t.at == next.at && t.seq < next.seq) {
				next = t
			}
		}
		if next == nil {
			m.now = target
			m.compact()
			m.mu.Unlock()
			return
		}
		m.now = next.at
		if next.every > 0 {
			next.at += next.every
		} else {
			next.stopped = true
		}
		f := next.f
		m.mu.Unlock()

		f()
	}
}

// Pending returns the number of live timers.
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Now returns the elapsed virtual time.
func (m *ManualScheduler) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *ManualScheduler) compact() {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	m.timers = live
}
