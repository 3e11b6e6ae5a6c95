// Package loop provides a single-goroutine dispatcher. Every widget owns one
// loop and all of its state transitions run on it, so widget state needs no
// locking.
package loop

import (
	"sync"
	"sync/atomic"
	"time"
)

// Loop serializes functions onto one goroutine.
type Loop struct {
	queue chan func()
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// New starts a loop with the given queue depth.
func New(depth int) *Loop {
	if depth <= 0 {
		depth = 64
	}
	l := &Loop{
		queue: make(chan func(), depth),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case f := <-l.queue:
			f()
		case <-l.quit:
			return
		}
	}
}

// Post enqueues f. It reports false when the loop is closed.
func (l *Loop) Post(f func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.queue <- f:
		return true
	case <-l.quit:
		return false
	}
}

// Do runs f on the loop and waits for it to finish.
// Must not be called from the loop goroutine.
func (l *Loop) Do(f func()) bool {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		f()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.done:
		return false
	}
}

// Close stops the loop. Queued functions that have not started are dropped.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.quit) })
	<-l.done
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Timer is a loop-bound timer. Stop must be called on the loop goroutine
// for the no-callback-after-stop guarantee to hold.
type Timer struct {
	t       *time.Timer
	stopped atomic.Bool
}

// Stop releases the timer. It is safe to call more than once.
func (t *Timer) Stop() {
	if t.stopped.Swap(true) {
		return
	}
	t.t.Stop()
}

// AfterFunc runs f on the loop once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, f func()) *Timer {
	tm := &Timer{}
	tm.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if tm.stopped.Load() {
				return
			}
			tm.stopped.Store(true)
			f()
		})
	})
	return tm
}

// Ticker is a loop-bound repeating timer.
type Ticker struct {
	t       *time.Ticker
	stop    chan struct{}
	stopped atomic.Bool
}

// Stop releases the ticker. It is safe to call more than once.
func (t *Ticker) Stop() {
	if t.stopped.Swap(true) {
		return
	}
	t.t.Stop()
	close(t.stop)
}

// Every runs f on the loop every d until stopped.
func (l *Loop) Every(d time.Duration, f func()) *Ticker {
	tk := &Ticker{
		t:    time.NewTicker(d),
		stop: make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-tk.t.C:
				l.Post(func() {
					if tk.stopped.Load() {
						return
					}
					f()
				})
			case <-tk.stop:
				return
			case <-l.quit:
				return
			}
		}
	}()
	return tk
}
