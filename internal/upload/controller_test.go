package upload

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomify/backend/internal/ingest"
	"github.com/roomify/backend/internal/metrics"
	"github.com/roomify/backend/internal/models"
	"github.com/roomify/backend/internal/progress"
	schedutil "github.com/roomify/backend/internal/testutil"
)

var planPNG = ingest.MemFile{FileName: "plan.png", MIME: "image/png", Data: []byte("\x89PNG\r\n\x1a\nplan")}

type completion struct {
	session int
	dataURL string
}

// harness runs a controller on the test goroutine. Read results are
// queued by the acquirer and delivered by drain.
type harness struct {
	t         *testing.T
	posts     chan func()
	sched     *schedutil.ManualScheduler
	ctrl      *Controller
	snaps     []models.UploadSnapshot
	completes []completion
	metrics   *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		t:       t,
		posts:   make(chan func(), 8),
		sched:   schedutil.NewManualScheduler(),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	post := func(f func()) bool {
		h.posts <- f
		return true
	}
	h.ctrl = NewController(Options{
		WidgetID:  "widget-test",
		Acquirer:  ingest.NewAcquirer(post, nil, zerolog.Nop()),
		Simulator: progress.NewSimulator(h.sched, progress.Config{Interval: 100 * time.Millisecond, Increment: 15, SettleDelay: 600 * time.Millisecond}),
		OnComplete: func(session int, dataURL string) {
			h.completes = append(h.completes, completion{session, dataURL})
		},
		OnChange: func(s models.UploadSnapshot) { h.snaps = append(h.snaps, s) },
		Metrics:  h.metrics,
		Logger:   zerolog.Nop(),
	})
	h.ctrl.SetSignedIn(true)
	h.snaps = nil
	return h
}

// drain runs n posted read results.
func (h *harness) drain(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		select {
		case f := <-h.posts:
			f()
		case <-time.After(2 * time.Second):
			h.t.Fatal("expected a read result")
		}
	}
}

func (h *harness) assertNoPost() {
	h.t.Helper()
	select {
	case <-h.posts:
		h.t.Fatal("unexpected read result")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestController_PhaseSequence(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, models.PhaseIdle, h.ctrl.Phase())

	v, err := h.ctrl.Accept(planPNG, ingest.SourceDrop, true)
	require.NoError(t, err)
	require.Equal(t, ingest.Admitted, v)
	assert.Equal(t, models.PhaseEncoding, h.ctrl.Phase())

	h.drain(1)
	snap := h.ctrl.Snapshot()
	assert.Equal(t, models.PhaseSimulating, snap.Phase)
	assert.Equal(t, 0, snap.Progress)
	assert.Equal(t, "Redirecting ...", snap.StatusText)
	require.NotNil(t, snap.File)
	assert.Equal(t, "plan.png", snap.File.Name)

	h.sched.Advance(700 * time.Millisecond)
	snap = h.ctrl.Snapshot()
	assert.Equal(t, models.PhaseSimulating, snap.Phase)
	assert.Equal(t, progress.Max, snap.Progress)
	assert.Equal(t, "Analyzing floor plan ...", snap.StatusText)
	assert.Empty(t, h.completes)

	h.sched.Advance(600 * time.Millisecond)
	assert.Equal(t, models.PhaseComplete, h.ctrl.Phase())
	require.Len(t, h.completes, 1)
	assert.Equal(t, 1, h.completes[0].session)
	assert.True(t, strings.HasPrefix(h.completes[0].dataURL, "data:image/png;base64,"))

	gen, url, ok := h.ctrl.Completed()
	assert.True(t, ok)
	assert.Equal(t, 1, gen)
	assert.Equal(t, h.completes[0].dataURL, url)

	h.sched.Advance(10 * time.Second)
	assert.Len(t, h.completes, 1)

	var phases []models.Phase
	for _, s := range h.snaps {
		if len(phases) == 0 || phases[len(phases)-1] != s.Phase {
			phases = append(phases, s.Phase)
		}
	}
	assert.Equal(t, []models.Phase{models.PhaseEncoding, models.PhaseSimulating, models.PhaseComplete}, phases)

	prev := -1
	for _, s := range h.snaps {
		if s.Phase == models.PhaseSimulating {
			assert.Greater(t, s.Progress, prev)
			prev = s.Progress
		}
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.UploadsCompleted))
}

func TestController_RejectedFilesChangeNothing(t *testing.T) {
	tests := []struct {
		name       string
		file       ingest.File
		src        ingest.Source
		authorized bool
		want       ingest.Verdict
	}{
		{"signed out", planPNG, ingest.SourcePicker, false, ingest.Unauthorized},
		{"no file", nil, ingest.SourcePicker, true, ingest.NoFile},
		{"gif drop", ingest.MemFile{FileName: "a.gif", MIME: "image/gif"}, ingest.SourceDrop, true, ingest.TypeRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			v, err := h.ctrl.Accept(tt.file, tt.src, tt.authorized)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
			assert.Equal(t, models.PhaseIdle, h.ctrl.Phase())
			assert.Empty(t, h.snaps)
			h.assertNoPost()
			assert.Equal(t, 0, h.sched.Pending())
			assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.FilesTotal.WithLabelValues(tt.want.String())))
		})
	}
}

func TestController_RejectedDropKeepsRunningSession(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Accept(planPNG, ingest.SourcePicker, true)
	h.drain(1)
	h.sched.Advance(300 * time.Millisecond)

	v, _ := h.ctrl.Accept(ingest.MemFile{FileName: "a.gif", MIME: "image/gif"}, ingest.SourceDrop, true)
	assert.Equal(t, ingest.TypeRejected, v)
	assert.Equal(t, 45, h.ctrl.Snapshot().Progress)

	h.sched.Advance(10 * time.Second)
	assert.Len(t, h.completes, 1)
}

func TestController_SecondFileSupersedesFirst(t *testing.T) {
	h := newHarness(t)
	other := ingest.MemFile{FileName: "other.jpg", MIME: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}}

	h.ctrl.Accept(planPNG, ingest.SourcePicker, true)
	h.ctrl.Accept(other, ingest.SourcePicker, true)
	h.drain(2)

	h.sched.Advance(10 * time.Second)
	require.Len(t, h.completes, 1)
	assert.Equal(t, 2, h.completes[0].session)
	assert.Equal(t, ingest.DataURL("image/jpeg", other.Data), h.completes[0].dataURL)
}

func TestController_NewFileWhileSimulatingRestarts(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Accept(planPNG, ingest.SourcePicker, true)
	h.drain(1)
	h.sched.Advance(800 * time.Millisecond)

	h.ctrl.Accept(planPNG, ingest.SourcePicker, true)
	assert.Equal(t, models.PhaseEncoding, h.ctrl.Phase())
	assert.Equal(t, 0, h.sched.Pending())

	h.drain(1)
	assert.Equal(t, 0, h.ctrl.Snapshot().Progress)
	h.sched.Advance(10 * time.Second)
	require.Len(t, h.completes, 1)
	assert.Equal(t, 2, h.completes[0].session)
}

func TestController_CloseCancelsEverything(t *testing.T) {
	t.Run("while simulating", func(t *testing.T) {
		h := newHarness(t)
		h.ctrl.Accept(planPNG, ingest.SourcePicker, true)
		h.drain(1)
		h.sched.Advance(200 * time.Millisecond)

		h.ctrl.Close()
		assert.True(t, h.ctrl.Closed())
		assert.Equal(t, 0, h.sched.Pending())
		n := len(h.snaps)

		h.sched.Advance(10 * time.Second)
		assert.Empty(t, h.completes)
		assert.Len(t, h.snaps, n)
	})

	t.Run("while encoding", func(t *testing.T) {
		h := newHarness(t)
		h.ctrl.Accept(planPNG, ingest.SourcePicker, true)
		h.ctrl.Close()
		h.drain(1)

		h.sched.Advance(10 * time.Second)
		assert.Empty(t, h.completes)
		assert.Equal(t, 0, h.sched.Pending())
	})

	t.Run("input after close", func(t *testing.T) {
		h := newHarness(t)
		h.ctrl.Close()
		h.ctrl.Close()
		_, err := h.ctrl.Accept(planPNG, ingest.SourcePicker, true)
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestController_EncodeFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Accept(ingest.MemFile{FileName: "bad.png", MIME: "image/png", Err: errors.New("unreadable")}, ingest.SourcePicker, true)
	h.drain(1)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, models.PhaseIdle, snap.Phase)
	assert.Nil(t, snap.File)
	assert.Equal(t, 0, h.sched.Pending())
	assert.Empty(t, h.completes)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.EncodeFailures))
}

func TestController_Dragging(t *testing.T) {
	h := newHarness(t)

	h.ctrl.DragEnter(false)
	assert.False(t, h.ctrl.Snapshot().Dragging)

	h.ctrl.DragEnter(true)
	assert.True(t, h.ctrl.Snapshot().Dragging)
	h.ctrl.DragOver(true)
	assert.Len(t, h.snaps, 1)

	h.ctrl.DragLeave(true)
	assert.False(t, h.ctrl.Snapshot().Dragging)

	h.ctrl.DragOver(true)
	h.ctrl.Accept(planPNG, ingest.SourceDrop, true)
	assert.False(t, h.ctrl.Snapshot().Dragging)
}

func TestController_IdlePrompt(t *testing.T) {
	h := newHarness(t)
	snap := h.ctrl.Snapshot()
	assert.Equal(t, "Click to upload or just drag and drop", snap.Prompt)
	assert.Equal(t, DefaultHelp, snap.Help)

	h.ctrl.SetSignedIn(false)
	assert.Equal(t, "Sign in or sign up with Puter to upload", h.ctrl.Snapshot().Prompt)
}

func TestController_SetHandoff(t *testing.T) {
	h := newHarness(t)

	h.ctrl.SetHandoff(0, models.Handoff{Status: models.HandoffSaving})
	assert.Nil(t, h.ctrl.Snapshot().Handoff, "ignored before completion")

	h.ctrl.Accept(planPNG, ingest.SourcePicker, true)
	h.drain(1)
	h.sched.Advance(10 * time.Second)

	h.ctrl.SetHandoff(0, models.Handoff{Status: models.HandoffFailed})
	assert.Nil(t, h.ctrl.Snapshot().Handoff, "stale session ignored")

	h.ctrl.SetHandoff(1, models.Handoff{Status: models.HandoffNavigated, ProjectID: "p1", Location: "/visualizer/p1"})
	got := h.ctrl.Snapshot().Handoff
	require.NotNil(t, got)
	assert.Equal(t, models.HandoffNavigated, got.Status)
	assert.Equal(t, "/visualizer/p1", got.Location)
}
