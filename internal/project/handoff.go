// Package project creates a project from a completed upload and hands off
// to the visualizer view.
package project

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/roomify/backend/internal/metrics"
	"github.com/roomify/backend/internal/models"
)

// ErrSaveFailed is returned when the store does not return a record.
var ErrSaveFailed = errors.New("failed to save project")

// Saver is the persistence collaborator. A nil record is a failure even
// when err is nil.
type Saver interface {
	Save(ctx context.Context, req models.SaveRequest) (*models.ProjectRecord, error)
}

// Navigator issues fire-and-forget navigation requests.
type Navigator interface {
	GoTo(path string, opts models.NavigateOptions)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string, opts models.NavigateOptions)

func (f NavigatorFunc) GoTo(path string, opts models.NavigateOptions) { f(path, opts) }

// NewID returns a process-unique, time-ordered id. Calls in the same
// millisecond still differ because ulid.Make uses monotonic entropy.
func NewID() string {
	return ulid.Make().String()
}

// NamePrefix starts every generated project name.
const NamePrefix = "Residence "

// VisualizerPath is the detail view route for a project id.
func VisualizerPath(id string) string {
	return "/visualizer/" + id
}

// Decision is the navigation issued after a successful save.
type Decision struct {
	Record models.ProjectRecord
	Path   string
	State  models.HandoffState
}

// Config wires a Handoff.
type Config struct {
	Store      Saver
	Projects   *Collection
	Navigator  Navigator
	Visibility models.Visibility
	NewID      func() string
	Now        func() time.Time
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

// Handoff turns an encoded image into a persisted project.
type Handoff struct {
	cfg Config
}

// New creates a Handoff. Missing Visibility, NewID and Now get defaults.
func New(cfg Config) *Handoff {
	if cfg.Visibility == "" {
		cfg.Visibility = models.VisibilityPrivate
	}
	if cfg.NewID == nil {
		cfg.NewID = NewID
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Projects == nil {
		cfg.Projects = NewCollection()
	}
	return &Handoff{cfg: cfg}
}

// Projects returns the collection this handoff prepends to.
func (h *Handoff) Projects() *Collection {
	return h.cfg.Projects
}

// Complete saves a project whose source image is dataURL. On success the
// saved record is prepended to the collection and navigation is issued.
// On failure nothing is mutated, nothing navigates, and the error is logged
// and returned so the caller can offer a retry.
func (h *Handoff) Complete(ctx context.Context, dataURL string) (Decision, error) {
	id := h.cfg.NewID()
	name := NamePrefix + id

	item := models.ProjectRecord{
		ID:          id,
		Name:        name,
		SourceImage: dataURL,
		Timestamp:   h.cfg.Now().UnixMilli(),
	}

	saved, err := h.cfg.Store.Save(ctx, models.SaveRequest{Item: item, Visibility: h.cfg.Visibility})
	if err != nil || saved == nil {
		if h.cfg.Metrics != nil {
			h.cfg.Metrics.ProjectSaveFailure.Inc()
		}
		if err == nil {
			err = ErrSaveFailed
		} else {
			err = fmt.Errorf("%w: %w", ErrSaveFailed, err)
		}
		h.cfg.Logger.Error().Err(err).Str("project", id).Msg("Failed to save project")
		return Decision{}, err
	}

	h.cfg.Projects.Prepend(*saved)

	d := Decision{
		Record: *saved,
		Path:   VisualizerPath(saved.ID),
		State: models.HandoffState{
			InitialImage:    saved.SourceImage,
			InitialRendered: saved.RenderedImage,
			Name:            name,
		},
	}
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.ProjectsCreated.Inc()
	}
	h.cfg.Logger.Info().Str("project", saved.ID).Str("path", d.Path).Msg("project created")

	if h.cfg.Navigator != nil {
		h.cfg.Navigator.GoTo(d.Path, models.NavigateOptions{State: d.State})
	}
	return d, nil
}
