// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version string
	widgets func() int
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, widgets func() int) HealthHandler {
	return &HealthHandlerImpl{
		version: version,
		widgets: widgets,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}
	if h.widgets != nil {
		resp["widgets"] = h.widgets()
	}
	return c.JSON(http.StatusOK, resp)
}
