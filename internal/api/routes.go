// routes.go - Route registration helpers
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers holds all handler instances
type Handlers struct {
	Widget    WidgetHandler
	Project   ProjectHandler
	Health    HealthHandler
	WebSocket *WebSocketHandler
}

// NewHandlers builds the handler set around one API handler
func NewHandlers(h *Handler, version string) *Handlers {
	return &Handlers{
		Widget:    h,
		Project:   h,
		Health:    NewHealthHandler(version, h.sessions.Len),
		WebSocket: NewWebSocketHandler(h.sessions, h.log),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Upload widgets
	widgets := apiGroup.Group("/widgets")
	widgets.POST("", handlers.Widget.HandleOpenWidget)
	widgets.GET("/:id", handlers.Widget.HandleWidgetStatus)
	widgets.DELETE("/:id", handlers.Widget.HandleCloseWidget)
	widgets.PUT("/:id/session", handlers.Widget.HandleRefreshSignIn)
	widgets.POST("/:id/files", handlers.Widget.HandleUploadFile)
	widgets.POST("/:id/drag", handlers.Widget.HandleDrag)
	widgets.GET("/:id/progress", handlers.Widget.HandleWidgetProgressStream)
	widgets.POST("/:id/retry", handlers.Widget.HandleRetryHandoff)

	apiGroup.GET("/ws/widgets/:id", handlers.WebSocket.HandleWebSocket)

	// Projects
	apiGroup.GET("/projects", handlers.Project.HandleListProjects)
	apiGroup.GET("/projects/:id", handlers.Project.HandleGetProject)
	apiGroup.GET("/visualizer/:id", handlers.Project.HandleVisualizer)
}

// RegisterMetricsRoute exposes the Prometheus registry
func RegisterMetricsRoute(e *echo.Echo) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// SetupMiddleware configures the error handler and sign-in detection
func SetupMiddleware(e *echo.Echo, auth AuthConfig, debug bool) {
	showErrorDetails = debug
	e.HTTPErrorHandler = ErrorHandler
	e.Use(Auth(auth))
}
