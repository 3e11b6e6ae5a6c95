// interfaces.go - Handler interface definitions
package api

import (
	"github.com/labstack/echo/v4"
)

// WidgetHandler handles upload widget operations
type WidgetHandler interface {
	HandleOpenWidget(c echo.Context) error
	HandleCloseWidget(c echo.Context) error
	HandleUploadFile(c echo.Context) error
	HandleDrag(c echo.Context) error
	HandleWidgetStatus(c echo.Context) error
	HandleRefreshSignIn(c echo.Context) error
	HandleWidgetProgressStream(c echo.Context) error
	HandleRetryHandoff(c echo.Context) error
}

// ProjectHandler handles project listing and the visualizer handoff
type ProjectHandler interface {
	HandleListProjects(c echo.Context) error
	HandleGetProject(c echo.Context) error
	HandleVisualizer(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

var (
	_ WidgetHandler  = (*Handler)(nil)
	_ ProjectHandler = (*Handler)(nil)
)
