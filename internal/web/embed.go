// Package web renders the server-side pages embedded in the binary.
package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/roomify/backend/internal/ingest"
	"github.com/roomify/backend/internal/models"
	"github.com/roomify/backend/internal/nav"
	"github.com/roomify/backend/internal/project"
)

//go:embed templates/*.html
var templateFiles embed.FS

// ProjectLister returns projects newest first.
type ProjectLister interface {
	List(limit int) []models.ProjectRecord
}

// Pages serves the home and visualizer pages.
type Pages struct {
	tmpl     *template.Template
	stash    *nav.Stash
	projects ProjectLister
}

// NewPages parses the embedded templates.
func NewPages(stash *nav.Stash, projects ProjectLister) (*Pages, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"imageURL": imageURL,
	}).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Pages{tmpl: tmpl, stash: stash, projects: projects}, nil
}

// RegisterRoutes registers the page routes. API routes should be
// registered first.
func (p *Pages) RegisterRoutes(e *echo.Echo) {
	e.GET("/", p.HandleHome)
	e.GET("/visualizer/:id", p.HandleVisualizer)
}

type homeData struct {
	Projects []models.ProjectRecord
}

// HandleHome lists created projects as cards.
func (p *Pages) HandleHome(c echo.Context) error {
	return p.render(c, "home.html", homeData{Projects: p.projects.List(0)})
}

// HandleVisualizer shows the project the handoff navigated to. Opening the
// page without valid handoff state shows an untitled project.
func (p *Pages) HandleVisualizer(c echo.Context) error {
	id := c.Param("id")
	view := nav.Resolve(p.stash, id, project.VisualizerPath(id), c.QueryParam(nav.QueryKey))
	return p.render(c, "visualizer.html", view)
}

func (p *Pages) render(c echo.Context, name string, data interface{}) error {
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to render page")
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

// imageURL marks image data URLs safe for src attributes. Anything else is
// passed through as plain text and left to html/template's filtering.
func imageURL(s string) interface{} {
	mime, _, err := ingest.ParseDataURL(s)
	if err != nil || !strings.HasPrefix(mime, "image/") {
		return s
	}
	return template.URL(s)
}
