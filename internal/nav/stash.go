// Package nav carries transient navigation state to the visualizer view.
// State is held in memory only and can be read once.
package nav

import (
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roomify/backend/internal/models"
)

// QueryKey is the query parameter that carries a stash token.
const QueryKey = "handoff"

// DefaultTTL bounds how long unread state is kept.
const DefaultTTL = 5 * time.Minute

type entry struct {
	path    string
	state   models.HandoffState
	created time.Time
}

// Stash holds one-shot handoff state keyed by random tokens.
type Stash struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// NewStash creates a stash. ttl <= 0 uses DefaultTTL.
func NewStash(ttl time.Duration) *Stash {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Stash{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put stores state for path and returns its token.
func (s *Stash) Put(path string, state models.HandoffState) string {
	token := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = entry{path: path, state: state, created: s.now()}
	return token
}

// Take removes and returns the state for token if it was issued for path
// and has not expired. A path mismatch leaves the entry in place.
func (s *Stash) Take(token, path string) (models.HandoffState, bool) {
	if token == "" {
		return models.HandoffState{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[token]
	if !ok || e.path != path {
		return models.HandoffState{}, false
	}
	delete(s.entries, token)
	if s.now().Sub(e.created) > s.ttl {
		return models.HandoffState{}, false
	}
	return e.state, true
}

// Cleanup drops expired entries.
func (s *Stash) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	n := 0
	for token, e := range s.entries {
		if e.created.Before(cutoff) {
			delete(s.entries, token)
			n++
		}
	}
	return n
}

// Len returns the number of unread entries.
func (s *Stash) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Router is a project.Navigator that stashes state and reports the
// resulting location to a sink.
type Router struct {
	stash *Stash
	sink  func(location string)
}

// NewRouter creates a router over stash. sink may be nil.
func NewRouter(stash *Stash, sink func(location string)) *Router {
	return &Router{stash: stash, sink: sink}
}

// GoTo stashes opts.State and emits path with the token attached.
func (r *Router) GoTo(path string, opts models.NavigateOptions) {
	token := r.stash.Put(path, opts.State)
	loc := path + "?" + url.Values{QueryKey: []string{token}}.Encode()
	if r.sink != nil {
		r.sink(loc)
	}
}

// Resolve builds the visualizer view for a project id. Without valid
// handoff state the view degrades to an untitled project with no image.
func Resolve(stash *Stash, id, path, token string) models.VisualizerView {
	view := models.VisualizerView{ID: id, Name: models.UntitledProject}
	state, ok := stash.Take(token, path)
	if !ok {
		return view
	}
	view.FromHandoff = true
	view.SourceImage = state.InitialImage
	view.Rendered = state.InitialRendered
	if state.Name != "" {
		view.Name = state.Name
	}
	return view
}
