package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roomify/backend/internal/api"
	"github.com/roomify/backend/internal/config"
	"github.com/roomify/backend/internal/logging"
	"github.com/roomify/backend/internal/metrics"
	"github.com/roomify/backend/internal/models"
	"github.com/roomify/backend/internal/nav"
	"github.com/roomify/backend/internal/progress"
	"github.com/roomify/backend/internal/project"
	"github.com/roomify/backend/internal/session"
	"github.com/roomify/backend/internal/storage"
	"github.com/roomify/backend/internal/web"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(configPath func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			cfg, err := config.LoadConfig(path)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg, path)
		},
	}
}

func serve(ctx context.Context, cfg *config.AppConfig, configPath string) error {
	level := logging.ParseLevel(cfg.Advanced.LogLevel)
	log := logging.Init(logging.Config{Level: level, Pretty: cfg.Advanced.PrettyLogs})

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	spool, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		return fmt.Errorf("initialize upload spool: %w", err)
	}

	driver, err := storage.ParseDriver(cfg.Storage.Driver)
	if err != nil {
		return err
	}
	store, err := storage.OpenProjectStore(driver, cfg.Storage.DatabaseFile, logging.Component("storage"))
	if err != nil {
		return fmt.Errorf("open project store: %w", err)
	}
	defer store.Close()

	projects := project.NewCollection()
	if err := loadProjects(ctx, store, projects); err != nil {
		log.Warn().Err(err).Msg("failed to load saved projects")
	}

	sessions := session.NewManager(session.Config{
		Progress: progress.Config{
			Interval:    cfg.ProgressInterval(),
			Increment:   cfg.Upload.ProgressIncrement,
			SettleDelay: cfg.RedirectDelay(),
		},
		AllowedDropTypes: cfg.DropTypes(),
		Help:             cfg.Upload.MaxFileSizeText,
		MaxSessions:      cfg.Processing.MaxSessions,
		SaveTimeout:      time.Duration(cfg.Processing.SaveTimeoutSeconds) * time.Second,
		Store:            store,
		Projects:         projects,
		Stash:            nav.NewStash(time.Duration(cfg.Processing.HandoffTTLSeconds) * time.Second),
		Visibility:       models.Visibility(cfg.Storage.Visibility),
		Metrics:          metrics.Default(),
		Logger:           log,
	})
	defer sessions.Shutdown()

	h := api.NewHandler(sessions, spool, store, log)

	pages, err := web.NewPages(sessions.Stash(), sessions.Projects())
	if err != nil {
		return fmt.Errorf("parse page templates: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	setupMiddleware(e, cfg, log)
	api.SetupMiddleware(e, api.AuthConfig{
		Required: cfg.Security.RequireAuth,
		Token:    cfg.Security.AuthToken,
	}, level == zerolog.DebugLevel)

	api.RegisterRoutes(e, api.NewHandlers(h, Version))
	api.RegisterMetricsRoute(e)
	pages.RegisterRoutes(e)

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      e,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cfg, configPath, driver)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", s.Addr).Msg("server listening")
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		interval := time.Duration(cfg.Processing.CleanupIntervalMinutes) * time.Minute
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		maxAge := time.Duration(cfg.Processing.SessionTimeoutMinutes) * time.Minute
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				sessions.CleanupOldSessions(maxAge)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// loadProjects seeds the in-memory collection from the store so the home
// page lists projects created before a restart.
func loadProjects(ctx context.Context, store storage.ProjectStore, projects *project.Collection) error {
	recs, err := store.List(ctx, 0)
	if err != nil {
		return err
	}
	for i := len(recs) - 1; i >= 0; i-- {
		projects.Prepend(recs[i])
	}
	return nil
}

func setupMiddleware(e *echo.Echo, cfg *config.AppConfig, log zerolog.Logger) {
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/progress") ||
				path == "/api/health" ||
				path == "/metrics"
		},
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/progress") ||
				strings.HasPrefix(path, "/api/ws/") ||
				path == "/metrics"
		},
	}))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}
}

func printBanner(cfg *config.AppConfig, configPath string, driver storage.Driver) {
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Roomify Server                                  ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Store:      %-45s║\n", driver)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
