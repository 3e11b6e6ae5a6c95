// Package upload implements the upload widget state machine:
// idle -> encoding -> simulating -> complete.
package upload

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/roomify/backend/internal/ingest"
	"github.com/roomify/backend/internal/metrics"
	"github.com/roomify/backend/internal/models"
	"github.com/roomify/backend/internal/progress"
)

// ErrClosed is returned when a torn-down widget receives input.
var ErrClosed = errors.New("upload widget closed")

const (
	promptSignedIn  = "Click to upload or just drag and drop"
	promptSignedOut = "Sign in or sign up with Puter to upload"
	statusRunning   = "Redirecting ..."
	statusDone      = "Analyzing floor plan ..."

	// DefaultHelp is the advisory size text. The limit is not enforced.
	DefaultHelp = "Maximum file size 50 MB"
)

// Options configures a Controller.
type Options struct {
	WidgetID   string
	Acquirer   *ingest.Acquirer
	Simulator  *progress.Simulator
	OnComplete func(session int, dataURL string)
	OnChange   func(models.UploadSnapshot)
	Help       string
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

// session is one file's lifecycle. encoded is written once, before the
// phase leaves encoding.
type session struct {
	file      models.UploadFile
	encoded   string
	progress  int
	phase     models.Phase
	completed bool
	handoff   *models.Handoff
	cancel    context.CancelFunc
}

// Controller owns the widget state. All methods must be called on the
// goroutine the Acquirer posts to and the Simulator's scheduler fires on.
type Controller struct {
	opts     Options
	log      zerolog.Logger
	cur      *session
	gen      int
	signedIn bool
	dragging bool
	closed   bool
}

// NewController creates an idle controller.
func NewController(opts Options) *Controller {
	if opts.Help == "" {
		opts.Help = DefaultHelp
	}
	return &Controller{
		opts: opts,
		log:  opts.Logger.With().Str("widget", shortID(opts.WidgetID)).Logger(),
	}
}

// Accept offers a file. Rejected files (unauthorized, no file, disallowed
// drop type) leave the state untouched. An admitted file starts a fresh
// session and cancels whatever the previous one had outstanding.
func (c *Controller) Accept(f ingest.File, src ingest.Source, authorized bool) (ingest.Verdict, error) {
	if c.closed {
		return ingest.NoFile, ErrClosed
	}

	gen := c.gen + 1
	ctx, cancel := context.WithCancel(context.Background())
	verdict := c.opts.Acquirer.Accept(ctx, f, src, authorized, func(r ingest.Result) {
		c.onEncoded(gen, r)
	})
	c.countVerdict(verdict)
	if verdict != ingest.Admitted {
		cancel()
		return verdict, nil
	}

	c.release()
	c.gen = gen
	c.cur = &session{
		file:   models.UploadFile{Name: f.Name(), Type: f.Type()},
		phase:  models.PhaseEncoding,
		cancel: cancel,
	}
	if src == ingest.SourceDrop {
		c.dragging = false
	}
	c.log.Info().Int("session", gen).Str("file", f.Name()).Str("source", string(src)).Msg("file accepted")
	c.emit()
	return verdict, nil
}

func (c *Controller) onEncoded(gen int, r ingest.Result) {
	if c.closed || gen != c.gen || c.cur == nil || c.cur.phase != models.PhaseEncoding {
		return
	}

	if r.Err != nil {
		if c.opts.Metrics != nil {
			c.opts.Metrics.EncodeFailures.Inc()
		}
		c.log.Warn().Err(r.Err).Int("session", gen).Msg("encode failed, session discarded")
		c.release()
		c.cur = nil
		c.emit()
		return
	}

	c.cur.encoded = r.DataURL
	c.cur.phase = models.PhaseSimulating
	c.cur.progress = 0
	c.emit()

	c.opts.Simulator.Start(
		func(p int) { c.onTick(gen, p) },
		func() { c.onSettled(gen) },
	)
}

func (c *Controller) onTick(gen int, p int) {
	if c.closed || gen != c.gen || c.cur == nil || c.cur.phase != models.PhaseSimulating {
		return
	}
	if p <= c.cur.progress {
		return
	}
	c.cur.progress = p
	c.emit()
}

func (c *Controller) onSettled(gen int) {
	if c.closed || gen != c.gen || c.cur == nil || c.cur.phase != models.PhaseSimulating {
		return
	}
	s := c.cur
	s.progress = progress.Max
	s.phase = models.PhaseComplete
	c.emit()

	if s.completed {
		return
	}
	s.completed = true
	if c.opts.Metrics != nil {
		c.opts.Metrics.UploadsCompleted.Inc()
	}
	c.log.Info().Int("session", gen).Msg("upload complete")
	if c.opts.OnComplete != nil {
		c.opts.OnComplete(gen, s.encoded)
	}
}

// DragEnter marks the drop zone as hovered. Ignored when signed out.
func (c *Controller) DragEnter(authorized bool) {
	c.setDragging(authorized, true)
}

// DragOver behaves like DragEnter.
func (c *Controller) DragOver(authorized bool) {
	c.setDragging(authorized, true)
}

// DragLeave clears the hover flag. Ignored when signed out.
func (c *Controller) DragLeave(authorized bool) {
	c.setDragging(authorized, false)
}

func (c *Controller) setDragging(authorized, v bool) {
	if c.closed || !authorized || c.dragging == v {
		return
	}
	c.dragging = v
	c.emit()
}

// SetSignedIn updates the sign-in flag shown by the prompt.
func (c *Controller) SetSignedIn(v bool) {
	if c.closed || c.signedIn == v {
		return
	}
	c.signedIn = v
	c.emit()
}

// SetHandoff records the project creation outcome for a completed session.
// Outcomes for superseded sessions are dropped.
func (c *Controller) SetHandoff(gen int, h models.Handoff) {
	if c.closed || gen != c.gen || c.cur == nil || c.cur.phase != models.PhaseComplete {
		return
	}
	c.cur.handoff = &h
	c.emit()
}

// Completed returns the encoded data of the current session once it has
// reached the complete phase.
func (c *Controller) Completed() (int, string, bool) {
	if c.cur == nil || c.cur.phase != models.PhaseComplete {
		return 0, "", false
	}
	return c.gen, c.cur.encoded, true
}

// Close tears the widget down and releases every outstanding timer and
// read. No callback fires afterwards.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.release()
	c.closed = true
	c.log.Debug().Msg("widget closed")
	c.emit()
}

// Closed reports whether Close has been called.
func (c *Controller) Closed() bool {
	return c.closed
}

// Phase returns the current phase.
func (c *Controller) Phase() models.Phase {
	if c.cur == nil {
		return models.PhaseIdle
	}
	return c.cur.phase
}

// Snapshot returns the current render state.
func (c *Controller) Snapshot() models.UploadSnapshot {
	snap := models.UploadSnapshot{
		WidgetID: c.opts.WidgetID,
		Session:  c.gen,
		Phase:    models.PhaseIdle,
		SignedIn: c.signedIn,
		Dragging: c.signedIn && c.dragging,
		Closed:   c.closed,
	}
	if c.cur == nil {
		snap.Help = c.opts.Help
		if c.signedIn {
			snap.Prompt = promptSignedIn
		} else {
			snap.Prompt = promptSignedOut
		}
		return snap
	}

	file := c.cur.file
	snap.File = &file
	snap.Phase = c.cur.phase
	snap.Progress = c.cur.progress
	if c.cur.progress < progress.Max {
		snap.StatusText = statusRunning
	} else {
		snap.StatusText = statusDone
	}
	if c.cur.handoff != nil {
		h := *c.cur.handoff
		snap.Handoff = &h
	}
	return snap
}

// release cancels the simulator and any in-flight read.
func (c *Controller) release() {
	c.opts.Simulator.Cancel()
	if c.cur != nil && c.cur.cancel != nil {
		c.cur.cancel()
		c.cur.cancel = nil
	}
}

func (c *Controller) emit() {
	if c.opts.OnChange != nil {
		c.opts.OnChange(c.Snapshot())
	}
}

func (c *Controller) countVerdict(v ingest.Verdict) {
	if c.opts.Metrics != nil {
		c.opts.Metrics.FilesTotal.WithLabelValues(v.String()).Inc()
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
