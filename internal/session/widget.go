package session

import (
	"sync"
	"time"

	"github.com/roomify/backend/internal/loop"
	"github.com/roomify/backend/internal/models"
	"github.com/roomify/backend/internal/upload"
)

// Widget is one upload widget instance: its loop, its controller and the
// latest published snapshot.
type Widget struct {
	ID        string
	CreatedAt time.Time

	loop *loop.Loop
	ctrl *upload.Controller

	mu           sync.RWMutex
	snap         models.UploadSnapshot
	subs         map[int]chan models.UploadSnapshot
	nextSub      int
	lastAccessed time.Time
}

func newWidget(id string, l *loop.Loop) *Widget {
	now := time.Now()
	return &Widget{
		ID:           id,
		CreatedAt:    now,
		loop:         l,
		subs:         make(map[int]chan models.UploadSnapshot),
		lastAccessed: now,
	}
}

// publish stores snap and fans it out. Runs on the widget loop. Sends are
// non-blocking, so they happen under the lock that guards unsubscribe.
func (w *Widget) publish(snap models.UploadSnapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.snap = snap
	for _, ch := range w.subs {
		offerLatest(ch, snap)
	}
}

// offerLatest replaces any unread value so slow readers see the newest state.
func offerLatest(ch chan models.UploadSnapshot, snap models.UploadSnapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// Snapshot returns the last published state.
func (w *Widget) Snapshot() models.UploadSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snap
}

func (w *Widget) touch() {
	w.mu.Lock()
	w.lastAccessed = time.Now()
	w.mu.Unlock()
}

func (w *Widget) idleSince() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastAccessed
}

func (w *Widget) subscribe() (<-chan models.UploadSnapshot, func()) {
	ch := make(chan models.UploadSnapshot, 1)

	w.mu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subs[id] = ch
	ch <- w.snap
	w.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			if _, ok := w.subs[id]; ok {
				delete(w.subs, id)
				close(ch)
			}
			w.mu.Unlock()
		})
	}
}

func (w *Widget) closeSubscribers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, ch := range w.subs {
		delete(w.subs, id)
		close(ch)
	}
}

// busy reports whether a file is being read or simulated, or whether its
// project is still being saved. A completed widget holds the navigation
// location until the save settles.
func (w *Widget) busy() bool {
	snap := w.Snapshot()
	switch snap.Phase {
	case models.PhaseEncoding, models.PhaseSimulating:
		return true
	case models.PhaseComplete:
		return snap.Handoff == nil || snap.Handoff.Status == models.HandoffSaving
	}
	return false
}
