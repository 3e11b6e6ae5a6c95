// Package progress drives the time-based progress bar shown while an upload
// is "processing". The value is a UX placeholder and does not measure work.
package progress

import (
	"time"

	"github.com/roomify/backend/internal/loop"
)

// Max is the terminal progress value.
const Max = 100

// Stopper releases a timer.
type Stopper interface {
	Stop()
}

// Scheduler arms timers whose callbacks run on the owner's goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Stopper
	Every(d time.Duration, f func()) Stopper
}

// LoopScheduler adapts a loop.Loop to Scheduler.
type LoopScheduler struct {
	Loop *loop.Loop
}

func (s LoopScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	return s.Loop.AfterFunc(d, f)
}

func (s LoopScheduler) Every(d time.Duration, f func()) Stopper {
	return s.Loop.Every(d, f)
}

// Config controls tick cadence and the settle pause.
type Config struct {
	Interval    time.Duration
	Increment   int
	SettleDelay time.Duration
}

// DefaultConfig returns the stock cadence.
func DefaultConfig() Config {
	return Config{
		Interval:    100 * time.Millisecond,
		Increment:   15,
		SettleDelay: 600 * time.Millisecond,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.Increment <= 0 {
		c.Increment = def.Increment
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = def.SettleDelay
	}
	return c
}

// Simulator owns at most one running sequence at a time.
// All methods must be called from the scheduler's goroutine.
type Simulator struct {
	sched   Scheduler
	cfg     Config
	current *Handle
}

// NewSimulator creates a simulator on the given scheduler.
func NewSimulator(sched Scheduler, cfg Config) *Simulator {
	return &Simulator{sched: sched, cfg: cfg.normalized()}
}

// Start begins a new sequence, cancelling any active one first.
// onTick receives every new value up to and including Max; onSettled runs
// once, SettleDelay after Max was reached.
func (s *Simulator) Start(onTick func(int), onSettled func()) *Handle {
	s.Cancel()

	h := &Handle{
		cfg:       s.cfg,
		sched:     s.sched,
		onTick:    onTick,
		onSettled: onSettled,
	}
	h.interval = s.sched.Every(s.cfg.Interval, h.tick)
	s.current = h
	return h
}

// Cancel stops the active sequence, if any.
func (s *Simulator) Cancel() {
	if s.current != nil {
		s.current.Cancel()
		s.current = nil
	}
}

// Active reports whether a sequence is still pending.
func (s *Simulator) Active() bool {
	return s.current != nil && s.current.Active()
}

// Handle is the resource handle of one sequence. It holds the interval and
// settle timers; Cancel releases both exactly once.
type Handle struct {
	cfg       Config
	sched     Scheduler
	onTick    func(int)
	onSettled func()

	interval Stopper
	settle   Stopper
	progress int
	done     bool
}

// Progress returns the last emitted value.
func (h *Handle) Progress() int {
	return h.progress
}

// Active reports whether ticks or the settle callback are still pending.
func (h *Handle) Active() bool {
	return !h.done
}

// Cancel releases both timers. No callback runs after Cancel returns.
func (h *Handle) Cancel() {
	if h.done {
		return
	}
	h.done = true
	h.release()
}

func (h *Handle) release() {
	if h.interval != nil {
		h.interval.Stop()
		h.interval = nil
	}
	if h.settle != nil {
		h.settle.Stop()
		h.settle = nil
	}
}

func (h *Handle) tick() {
	if h.done || h.interval == nil {
		return
	}

	next := h.progress + h.cfg.Increment
	if next > Max {
		next = Max
	}
	h.progress = next

	if next == Max {
		h.interval.Stop()
		h.interval = nil
		h.settle = h.sched.AfterFunc(h.cfg.SettleDelay, h.fire)
	}

	if h.onTick != nil {
		h.onTick(next)
	}
}

func (h *Handle) fire() {
	if h.done {
		return
	}
	h.done = true
	h.settle = nil
	if h.onSettled != nil {
		h.onSettled()
	}
}
