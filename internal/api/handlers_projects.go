// handlers_projects.go - Project list and visualizer handlers
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/roomify/backend/internal/models"
	"github.com/roomify/backend/internal/nav"
	"github.com/roomify/backend/internal/project"
	"github.com/roomify/backend/internal/storage"
)

// projectCard is a project as listed on the home page.
type projectCard struct {
	models.ProjectRecord `msgpack:",inline"`
	Preview string `json:"preview" msgpack:"preview"`
}

func toCards(recs []models.ProjectRecord) []projectCard {
	cards := make([]projectCard, 0, len(recs))
	for i := range recs {
		cards = append(cards, projectCard{ProjectRecord: recs[i], Preview: recs[i].Preview()})
	}
	return cards
}

// HandleListProjects returns projects newest first. By default it serves
// the in-process collection; ?source=store reads the persistent store.
func (h *Handler) HandleListProjects(c echo.Context) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return NewValidationError("limit")
		}
		limit = n
	}

	if c.QueryParam("source") == "store" {
		if h.projects == nil {
			return NewServiceUnavailableError("project store not configured")
		}
		recs, err := h.projects.List(c.Request().Context(), limit)
		if err != nil {
			return NewInternalError("failed to list projects", err)
		}
		return statusOK(c, toCards(recs))
	}

	return statusOK(c, toCards(h.sessions.Projects().List(limit)))
}

// HandleGetProject returns one persisted project
func (h *Handler) HandleGetProject(c echo.Context) error {
	id := c.Param("id")
	if h.projects == nil {
		return NewServiceUnavailableError("project store not configured")
	}
	rec, err := h.projects.Get(c.Request().Context(), id)
	if errors.Is(err, storage.ErrProjectNotFound) {
		return NewNotFoundError("project", id)
	}
	if err != nil {
		return NewInternalError("failed to load project", err)
	}
	return statusOK(c, projectCard{ProjectRecord: *rec, Preview: rec.Preview()})
}

// HandleVisualizer consumes the handoff state for a project. Without it
// the view is an untitled project with no image.
func (h *Handler) HandleVisualizer(c echo.Context) error {
	id := c.Param("id")
	view := nav.Resolve(h.stash, id, project.VisualizerPath(id), c.QueryParam(nav.QueryKey))
	return c.JSON(http.StatusOK, view)
}
