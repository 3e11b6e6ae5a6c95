// handlers_upload.go - Upload widget handlers
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/roomify/backend/internal/ingest"
	"github.com/roomify/backend/internal/models"
	"github.com/roomify/backend/internal/session"
)

// uploadResponse is returned by file submissions. Ignored files still get
// 202 so the silent no-op is indistinguishable from the client's side
// except through the verdict field.
type uploadResponse struct {
	Verdict string                `json:"verdict" msgpack:"verdict"`
	Widget  models.UploadSnapshot `json:"widget" msgpack:"widget"`
}

// HandleOpenWidget creates a new upload widget
func (h *Handler) HandleOpenWidget(c echo.Context) error {
	snap, err := h.sessions.Open(SignedIn(c))
	if err != nil {
		return sessionError(err, "")
	}
	return respond(c, http.StatusCreated, snap)
}

// HandleCloseWidget tears a widget down
func (h *Handler) HandleCloseWidget(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}
	if err := h.sessions.Close(id); err != nil {
		return sessionError(err, id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleUploadFile accepts a multipart file picked or dropped into a widget
func (h *Handler) HandleUploadFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}
	src := ingest.ParseSource(c.FormValue("source"))

	if !SignedIn(c) {
		snap, verdict, err := h.sessions.Accept(id, nil, src, false)
		if err != nil {
			return sessionError(err, id)
		}
		return respond(c, http.StatusAccepted, uploadResponse{Verdict: verdict.String(), Widget: snap})
	}

	fh, err := c.FormFile("file")
	if err != nil {
		// No file selected is a no-op, like an empty picker result.
		snap, verdict, accErr := h.sessions.Accept(id, nil, src, true)
		if accErr != nil {
			return sessionError(accErr, id)
		}
		return respond(c, http.StatusAccepted, uploadResponse{Verdict: verdict.String(), Widget: snap})
	}

	body, err := fh.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer body.Close()

	info, err := h.spool.Save(fh.Filename, fh.Header.Get(echo.HeaderContentType), body)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}

	snap, verdict, err := h.sessions.Accept(id, h.spool.Spooled(info), src, true)
	if verdict != ingest.Admitted || err != nil {
		h.spool.Delete(info.ID)
	}
	if err != nil {
		return sessionError(err, id)
	}
	return respond(c, http.StatusAccepted, uploadResponse{Verdict: verdict.String(), Widget: snap})
}

type dragRequest struct {
	Event string `json:"event"`
}

func (r *dragRequest) validate() error {
	switch session.DragEvent(r.Event) {
	case session.DragEnter, session.DragOver, session.DragLeave:
		return nil
	}
	return NewValidationError("event")
}

// HandleDrag forwards drop-zone hover events
func (h *Handler) HandleDrag(c echo.Context) error {
	id := c.Param("id")
	var req dragRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	snap, err := h.sessions.Drag(id, session.DragEvent(req.Event), SignedIn(c))
	if err != nil {
		return sessionError(err, id)
	}
	return statusOK(c, snap)
}

// HandleWidgetStatus returns the current widget snapshot
func (h *Handler) HandleWidgetStatus(c echo.Context) error {
	id := c.Param("id")
	snap, err := h.sessions.Status(id)
	if err != nil {
		return sessionError(err, id)
	}
	return statusOK(c, snap)
}

// HandleRefreshSignIn updates the widget prompt from the caller's current
// sign-in state
func (h *Handler) HandleRefreshSignIn(c echo.Context) error {
	id := c.Param("id")
	snap, err := h.sessions.SetSignedIn(id, SignedIn(c))
	if err != nil {
		return sessionError(err, id)
	}
	return statusOK(c, snap)
}

// HandleRetryHandoff re-runs project creation after a failed save
func (h *Handler) HandleRetryHandoff(c echo.Context) error {
	id := c.Param("id")
	snap, err := h.sessions.Retry(id)
	if err != nil {
		return sessionError(err, id)
	}
	return respond(c, http.StatusAccepted, snap)
}

// HandleWidgetProgressStream streams widget snapshots via SSE until the
// handoff settles or the widget closes.
func (h *Handler) HandleWidgetProgressStream(c echo.Context) error {
	id := c.Param("id")

	updates, cancel, err := h.sessions.Subscribe(id)
	if err != nil {
		return sessionError(err, id)
	}
	defer cancel()

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")

	// The stream lives as long as the widget, past the server WriteTimeout.
	rc := http.NewResponseController(c.Response().Writer)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.log.Debug().Err(err).Str("widget", id).Msg("failed to clear write deadline")
	}
	c.Response().WriteHeader(http.StatusOK)

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			data, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", data); err != nil {
				h.log.Debug().Err(err).Str("widget", id).Msg("progress stream closed")
				return nil
			}
			if err := rc.Flush(); err != nil {
				h.log.Debug().Err(err).Str("widget", id).Msg("progress stream closed")
				return nil
			}

			if terminal(snap) {
				return nil
			}
		}
	}
}

// terminal reports whether no further snapshots are expected without new
// client input.
func terminal(snap models.UploadSnapshot) bool {
	if snap.Closed {
		return true
	}
	if snap.Phase != models.PhaseComplete || snap.Handoff == nil {
		return false
	}
	return snap.Handoff.Status == models.HandoffNavigated || snap.Handoff.Status == models.HandoffFailed
}
