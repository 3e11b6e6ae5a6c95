package web

import (
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomify/backend/internal/models"
	"github.com/roomify/backend/internal/nav"
	"github.com/roomify/backend/internal/project"
)

const planURL = "data:image/png;base64,iVBORw0KGgo="

func newTestPages(t *testing.T) (*echo.Echo, *nav.Stash, *project.Collection) {
	t.Helper()
	stash := nav.NewStash(time.Minute)
	projects := project.NewCollection()
	pages, err := NewPages(stash, projects)
	require.NoError(t, err)

	e := echo.New()
	pages.RegisterRoutes(e)
	return e, stash, projects
}

func get(e *echo.Echo, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHome(t *testing.T) {
	e, _, projects := newTestPages(t)

	rec := get(e, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No projects yet.")

	projects.Prepend(models.ProjectRecord{ID: "01A", Name: "Residence 01A", SourceImage: planURL})
	projects.Prepend(models.ProjectRecord{ID: "01B", Name: "Residence 01B", SourceImage: "javascript:alert(1)"})

	body := get(e, "/").Body.String()
	assert.Contains(t, body, `href="/visualizer/01A"`)
	assert.Contains(t, body, `src="`+planURL+`"`)
	assert.Less(t, strings.Index(body, "Residence 01B"), strings.Index(body, "Residence 01A"))
	assert.NotContains(t, body, "javascript:alert")
}

func TestVisualizer_WithoutHandoff(t *testing.T) {
	e, _, _ := newTestPages(t)

	rec := get(e, "/visualizer/01A")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>"+models.UntitledProject+"</h1>")
	assert.Contains(t, rec.Body.String(), "No floor plan loaded.")
}

func TestVisualizer_ConsumesHandoff(t *testing.T) {
	e, stash, _ := newTestPages(t)

	var loc string
	nav.NewRouter(stash, func(l string) { loc = l }).GoTo(project.VisualizerPath("01A"),
		models.NavigateOptions{State: models.HandoffState{InitialImage: planURL, Name: "Residence 01A"}})
	u, err := url.Parse(loc)
	require.NoError(t, err)

	body := get(e, u.RequestURI()).Body.String()
	assert.Contains(t, body, "<h1>Residence 01A</h1>")
	assert.Contains(t, body, `src="`+planURL+`"`)

	body = get(e, u.RequestURI()).Body.String()
	assert.Contains(t, body, models.UntitledProject)
}

func TestImageURL(t *testing.T) {
	assert.IsType(t, "", imageURL("data:text/plain;base64,aGk="))
	assert.IsType(t, "", imageURL("not a url"))
	assert.Equal(t, template.URL(planURL), imageURL(planURL))
}
