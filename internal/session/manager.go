// Package session keeps the open upload widgets and connects each one's
// completion to project creation.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roomify/backend/internal/ingest"
	"github.com/roomify/backend/internal/loop"
	"github.com/roomify/backend/internal/metrics"
	"github.com/roomify/backend/internal/models"
	"github.com/roomify/backend/internal/nav"
	"github.com/roomify/backend/internal/progress"
	"github.com/roomify/backend/internal/project"
	"github.com/roomify/backend/internal/upload"
)

// DefaultMaxSessions limits concurrently open widgets.
const DefaultMaxSessions = 100

// DefaultSaveTimeout bounds one persistence call.
const DefaultSaveTimeout = 30 * time.Second

var (
	ErrNotFound     = errors.New("widget not found")
	ErrLimit        = errors.New("too many open widgets")
	ErrNotCompleted = errors.New("upload has not completed")
	ErrHandoffBusy  = errors.New("project creation already in progress or done")
)

// DragEvent is a drop-zone pointer event.
type DragEvent string

const (
	DragEnter DragEvent = "enter"
	DragOver  DragEvent = "over"
	DragLeave DragEvent = "leave"
)

// Config wires a Manager.
type Config struct {
	Progress         progress.Config
	AllowedDropTypes []string
	Help             string
	MaxSessions      int
	SaveTimeout      time.Duration

	Store      project.Saver
	Projects   *project.Collection
	Stash      *nav.Stash
	Visibility models.Visibility

	// Scheduler overrides the loop-backed timer source. Tests only.
	Scheduler func(*loop.Loop) progress.Scheduler

	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Manager handles open upload widgets.
type Manager struct {
	cfg      Config
	widgets  map[string]*Widget
	mu       sync.RWMutex
	handoffs sync.WaitGroup
	log      zerolog.Logger
}

// NewManager creates a widget manager.
func NewManager(cfg Config) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = DefaultSaveTimeout
	}
	if cfg.Projects == nil {
		cfg.Projects = project.NewCollection()
	}
	if cfg.Stash == nil {
		cfg.Stash = nav.NewStash(0)
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = func(l *loop.Loop) progress.Scheduler { return progress.LoopScheduler{Loop: l} }
	}
	return &Manager{
		cfg:     cfg,
		widgets: make(map[string]*Widget),
		log:     cfg.Logger.With().Str("component", "session").Logger(),
	}
}

// Projects returns the page-level project collection.
func (m *Manager) Projects() *project.Collection {
	return m.cfg.Projects
}

// Stash returns the handoff state stash.
func (m *Manager) Stash() *nav.Stash {
	return m.cfg.Stash
}

// Open creates a widget and returns its initial snapshot.
func (m *Manager) Open(signedIn bool) (models.UploadSnapshot, error) {
	id := uuid.New().String()
	l := loop.New(64)
	w := newWidget(id, l)

	acq := ingest.NewAcquirer(l.Post, m.cfg.AllowedDropTypes, m.log)
	sim := progress.NewSimulator(m.cfg.Scheduler(l), m.cfg.Progress)
	w.ctrl = upload.NewController(upload.Options{
		WidgetID:  id,
		Acquirer:  acq,
		Simulator: sim,
		OnComplete: func(gen int, dataURL string) {
			m.startHandoff(w, gen, dataURL)
		},
		OnChange: w.publish,
		Help:     m.cfg.Help,
		Metrics:  m.cfg.Metrics,
		Logger:   m.cfg.Logger,
	})

	var snap models.UploadSnapshot
	l.Do(func() {
		w.ctrl.SetSignedIn(signedIn)
		snap = w.ctrl.Snapshot()
		w.publish(snap)
	})

	if err := m.register(w); err != nil {
		w.loop.Do(func() { w.ctrl.Close() })
		w.loop.Close()
		return models.UploadSnapshot{}, err
	}

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.WidgetsOpen.Inc()
	}
	m.log.Info().Str("widget", shortID(id)).Msg("widget opened")
	return snap, nil
}

func (m *Manager) get(id string) (*Widget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.widgets[id]
	if !ok {
		return nil, ErrNotFound
	}
	w.touch()
	return w, nil
}

// run executes f on the widget loop.
func (m *Manager) run(id string, f func(w *Widget)) error {
	w, err := m.get(id)
	if err != nil {
		return err
	}
	if !w.loop.Do(func() { f(w) }) {
		return ErrNotFound
	}
	return nil
}

// Accept offers a file to a widget.
func (m *Manager) Accept(id string, f ingest.File, src ingest.Source, authorized bool) (models.UploadSnapshot, ingest.Verdict, error) {
	var (
		snap    models.UploadSnapshot
		verdict ingest.Verdict
		accErr  error
	)
	err := m.run(id, func(w *Widget) {
		verdict, accErr = w.ctrl.Accept(f, src, authorized)
		snap = w.ctrl.Snapshot()
	})
	if err != nil {
		return snap, verdict, err
	}
	return snap, verdict, accErr
}

// Drag forwards a drop-zone event.
func (m *Manager) Drag(id string, ev DragEvent, authorized bool) (models.UploadSnapshot, error) {
	var snap models.UploadSnapshot
	err := m.run(id, func(w *Widget) {
		switch ev {
		case DragEnter:
			w.ctrl.DragEnter(authorized)
		case DragOver:
			w.ctrl.DragOver(authorized)
		case DragLeave:
			w.ctrl.DragLeave(authorized)
		}
		snap = w.ctrl.Snapshot()
	})
	return snap, err
}

// SetSignedIn updates the sign-in flag shown by a widget.
func (m *Manager) SetSignedIn(id string, signedIn bool) (models.UploadSnapshot, error) {
	var snap models.UploadSnapshot
	err := m.run(id, func(w *Widget) {
		w.ctrl.SetSignedIn(signedIn)
		snap = w.ctrl.Snapshot()
	})
	return snap, err
}

// Status returns the last published snapshot.
func (m *Manager) Status(id string) (models.UploadSnapshot, error) {
	w, err := m.get(id)
	if err != nil {
		return models.UploadSnapshot{}, err
	}
	return w.Snapshot(), nil
}

// Subscribe streams snapshots, starting with the current one. The channel
// keeps only the newest unread value and is closed when the widget closes.
func (m *Manager) Subscribe(id string) (<-chan models.UploadSnapshot, func(), error) {
	w, err := m.get(id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := w.subscribe()
	return ch, cancel, nil
}

// Retry re-runs project creation for a completed upload whose previous
// attempt failed.
func (m *Manager) Retry(id string) (models.UploadSnapshot, error) {
	var (
		snap     models.UploadSnapshot
		retryErr error
	)
	err := m.run(id, func(w *Widget) {
		gen, dataURL, ok := w.ctrl.Completed()
		if !ok {
			retryErr = ErrNotCompleted
			return
		}
		cur := w.ctrl.Snapshot()
		if cur.Handoff == nil || cur.Handoff.Status != models.HandoffFailed {
			retryErr = ErrHandoffBusy
			return
		}
		m.startHandoff(w, gen, dataURL)
		snap = w.ctrl.Snapshot()
	})
	if err != nil {
		return snap, err
	}
	return snap, retryErr
}

// startHandoff runs project creation off the loop. Runs on the loop.
func (m *Manager) startHandoff(w *Widget, gen int, dataURL string) {
	w.ctrl.SetHandoff(gen, models.Handoff{Status: models.HandoffSaving})

	m.handoffs.Add(1)
	go func() {
		defer m.handoffs.Done()
		var location string
		h := project.New(project.Config{
			Store:      m.cfg.Store,
			Projects:   m.cfg.Projects,
			Visibility: m.cfg.Visibility,
			Navigator: nav.NewRouter(m.cfg.Stash, func(loc string) {
				location = loc
			}),
			Metrics: m.cfg.Metrics,
			Logger:  m.log.With().Str("widget", shortID(w.ID)).Logger(),
		})

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SaveTimeout)
		d, err := h.Complete(ctx, dataURL)
		cancel()

		result := models.Handoff{Status: models.HandoffNavigated, ProjectID: d.Record.ID, Location: location}
		if err != nil {
			result = models.Handoff{Status: models.HandoffFailed, Error: err.Error()}
		}
		w.loop.Post(func() { w.ctrl.SetHandoff(gen, result) })
	}()
}

// Close tears a widget down. Its timers are released before Close returns.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	w, ok := m.widgets[id]
	if ok {
		delete(m.widgets, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	m.teardown(w)
	m.log.Info().Str("widget", shortID(id)).Msg("widget closed")
	return nil
}

func (m *Manager) teardown(w *Widget) {
	w.loop.Do(func() { w.ctrl.Close() })
	w.loop.Close()
	w.closeSubscribers()
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.WidgetsOpen.Dec()
	}
}

// Len returns the number of open widgets.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.widgets)
}

// register adds w, first evicting the least recently used non-busy widgets
// when at capacity. The capacity check and the insert share one critical
// section.
func (m *Manager) register(w *Widget) error {
	m.mu.Lock()
	evicted, err := m.cleanupOldSessionsIfNeeded()
	if err == nil {
		m.widgets[w.ID] = w
	}
	m.mu.Unlock()

	for _, old := range evicted {
		m.teardown(old)
		m.log.Info().Str("widget", shortID(old.ID)).Msg("evicted idle widget to free capacity")
	}
	return err
}

// cleanupOldSessionsIfNeeded removes enough non-busy widgets to make room
// for one more and returns them for teardown. Caller holds m.mu.
func (m *Manager) cleanupOldSessionsIfNeeded() ([]*Widget, error) {
	if len(m.widgets) < m.cfg.MaxSessions {
		return nil, nil
	}

	var candidates []*Widget
	for _, w := range m.widgets {
		if !w.busy() {
			candidates = append(candidates, w)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].idleSince().Before(candidates[j].idleSince())
	})

	toFree := len(m.widgets) - m.cfg.MaxSessions + 1
	if len(candidates) < toFree {
		return nil, fmt.Errorf("%w (max %d)", ErrLimit, m.cfg.MaxSessions)
	}
	evicted := candidates[:toFree]
	for _, w := range evicted {
		delete(m.widgets, w.ID)
	}
	return evicted, nil
}

// CleanupOldSessions closes non-busy widgets not accessed within maxAge and
// drops expired handoff state.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var stale []*Widget
	for id, w := range m.widgets {
		if w.busy() || !w.idleSince().Before(cutoff) {
			continue
		}
		stale = append(stale, w)
		delete(m.widgets, id)
	}
	m.mu.Unlock()

	for _, w := range stale {
		m.teardown(w)
	}
	if n := m.cfg.Stash.Cleanup(); n > 0 {
		m.log.Debug().Int("count", n).Msg("dropped expired handoff state")
	}
	if len(stale) > 0 {
		m.log.Info().Int("count", len(stale)).Msg("cleaned up idle widgets")
	}
	return len(stale)
}

// Shutdown closes every widget and waits for project saves already in
// flight, so the store can be closed afterwards.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := make([]*Widget, 0, len(m.widgets))
	for id, w := range m.widgets {
		all = append(all, w)
		delete(m.widgets, id)
	}
	m.mu.Unlock()

	for _, w := range all {
		m.teardown(w)
	}
	m.handoffs.Wait()
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
