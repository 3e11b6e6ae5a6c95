package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/roomify/backend/internal/ingest"
	"github.com/roomify/backend/internal/models"
	"github.com/roomify/backend/internal/nav"
	"github.com/roomify/backend/internal/session"
	"github.com/roomify/backend/internal/storage"
)

// MIMEApplicationMsgpack is the content type for msgpack responses.
const MIMEApplicationMsgpack = "application/msgpack"

// Spooler stores raw uploads and exposes them as readable files.
type Spooler interface {
	storage.Store
	Spooled(info *models.FileInfo) ingest.File
}

// Handler handles API requests.
type Handler struct {
	sessions *session.Manager
	spool    Spooler
	projects storage.ProjectStore
	stash    *nav.Stash
	log      zerolog.Logger
}

// NewHandler creates a new API handler. projects may be nil, in which case
// only the in-memory collection is served.
func NewHandler(sessions *session.Manager, spool Spooler, projects storage.ProjectStore, log zerolog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		spool:    spool,
		projects: projects,
		stash:    sessions.Stash(),
		log:      log.With().Str("component", "api").Logger(),
	}
}

// respond writes v as msgpack when the client asks for it, JSON otherwise.
func respond(c echo.Context, status int, v interface{}) error {
	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), MIMEApplicationMsgpack) {
		data, err := msgpack.Marshal(v)
		if err != nil {
			return NewInternalError("failed to encode msgpack", err)
		}
		return c.Blob(status, MIMEApplicationMsgpack, data)
	}
	return c.JSON(status, v)
}

// sessionError maps widget manager errors to API errors.
func sessionError(err error, id string) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return NewNotFoundError("widget", id)
	case errors.Is(err, session.ErrLimit):
		return NewServiceUnavailableError(err.Error())
	case errors.Is(err, session.ErrNotCompleted), errors.Is(err, session.ErrHandoffBusy):
		return NewConflictError(err.Error())
	default:
		return NewInternalError("widget operation failed", err)
	}
}

func statusOK(c echo.Context, v interface{}) error {
	return respond(c, http.StatusOK, v)
}
