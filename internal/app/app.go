package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/actiomidia/projeto-bot-whatsapp/internal/config"
	apierrors "github.com/actiomidia/projeto-bot-whatsapp/internal/errors"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/exporter"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/infrastructure"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/license"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/messaging"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/messaging/whatsapp"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/services"
	ws "github.com/actiomidia/projeto-bot-whatsapp/internal/websocket"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts"
)

// Application holds every long-lived component of the bot.
type Application struct {
	Config         *config.Config
	Logger         *slog.Logger
	Router         *chi.Mux
	Server         *http.Server
	OTelProviders  *infrastructure.OTelProviders
	LicenseManager *license.Manager
	WebSocketHub   *ws.Hub
	// Session, BulkSender and Reports are nil when messaging is disabled.
	Session    messaging.Session
	BulkSender *messaging.BulkSender
	Reports    *exporter.BulkReports
	Services   *ServiceContainer

	errorHandler *apierrors.ErrorHandler
	appMetrics   *infrastructure.AppMetrics
}

// ServiceContainer holds the service layer.
type ServiceContainer struct {
	License   services.LicenseService
	Messaging services.MessagingService
	Health    *services.HealthService
}

// Options overrides collaborators, for tests.
type Options struct {
	// Session replaces the browser-driven WhatsApp session.
	Session messaging.Session
}

// New wires the application from cfg. Nothing is started until Run.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Application, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	paths := cfg.ResolvedPaths()
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution(logger)

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.NewOTelConfig(cfg.Telemetry, contracts.Version), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	appMetrics, err := infrastructure.CreateAppMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create application metrics: %w", err)
	}
	wsMetrics, err := ws.NewMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create websocket metrics: %w", err)
	}
	systemMetrics, err := infrastructure.NewSystemMetrics(otelProviders.Meter, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to create system metrics: %w", err)
	}

	a := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		Services:      &ServiceContainer{},
		errorHandler:  apierrors.NewErrorHandler(logger, false),
		appMetrics:    appMetrics,
	}

	broadcaster := &licenseBroadcaster{}
	lic, err := NewLicenseComponents(ctx, cfg, LicenseOptions{
		Meter:       otelProviders.Meter,
		OnActivated: a.startSessionAsync,
		Audit:       []license.AuditSink{broadcaster},
	}, logger)
	if err != nil {
		return nil, err
	}
	a.LicenseManager = lic.Manager
	a.Services.License = lic.Service

	hub := ws.NewHub(ws.HubConfig{
		License:         lic.Service,
		AppMetrics:      appMetrics,
		Metrics:         wsMetrics,
		AllowedOrigins:  cfg.Security.AllowedOrigins,
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		PingPeriod:      cfg.WebSocket.PingPeriod,
		PongWait:        cfg.WebSocket.PongWait,
	}, logger)
	a.WebSocketHub = hub
	broadcaster.publisher = hub
	broadcaster.state = lic.Manager

	health := services.HealthDeps{
		License: lic.Manager,
		Prober:  lic.Authority,
		Clients: hub,
		System:  systemMetrics,
	}

	if cfg.Messaging.Enabled {
		session := opts.Session
		if session == nil {
			session = whatsapp.NewSession(whatsapp.ConfigFrom(cfg.Messaging), hub, logger)
		}
		reports := exporter.NewBulkReports(paths.ReportsDir, logger)
		bulk := messaging.NewBulkSender(session, lic.Manager, messaging.BulkConfig{
			Delay:       cfg.Messaging.BulkDelay,
			MaxTargets:  cfg.Messaging.MaxBulk,
			StopOnError: cfg.Messaging.StopOnError,
			Logger:      logger,
			Metrics:     appMetrics,
			Publisher:   hub,
			Reports:     reports,
		})
		a.Session = session
		a.BulkSender = bulk
		a.Reports = reports
		a.Services.Messaging = services.NewMessagingService(session, bulk, lic.Manager, logger)
		health.Session = session
		health.Bulk = bulk
	}
	a.Services.Health = services.NewHealthService(health, logger)

	a.setupRouter()
	a.createServer()
	return a, nil
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           a.Config.Server.Addr(),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// startSessionAsync opens the WhatsApp session without holding up the
// caller; launching the browser takes seconds.
func (a *Application) startSessionAsync(ctx context.Context) {
	if a.Services.Messaging == nil {
		return
	}
	go func() {
		if err := a.Services.Messaging.EnsureSession(ctx); err != nil {
			a.Logger.WarnContext(ctx, "WhatsApp session not started",
				slog.String("error", err.Error()))
		}
	}()
}

// Start launches the background components and, when the stored license is
// usable, the WhatsApp session.
func (a *Application) Start(ctx context.Context) {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", contracts.ProductName),
		slog.String("version", contracts.Version),
		slog.String("address", a.Server.Addr),
		slog.Bool("messaging", a.Services.Messaging != nil))

	a.WebSocketHub.Start()
	a.LicenseManager.Start(ctx)

	out := a.LicenseManager.CheckCached(ctx)
	if !out.Usable() {
		a.Logger.WarnContext(ctx, "License not usable at startup; activation required",
			slog.String("verdict", out.Verdict.String()),
			slog.String("reason", string(out.Reason)))
		return
	}
	a.Logger.InfoContext(ctx, "License usable at startup",
		slog.String("verdict", out.Verdict.String()))
	a.startSessionAsync(ctx)
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}

	if a.BulkSender != nil {
		a.BulkSender.Stop()
	}
	if a.Session != nil {
		if err := a.Session.Stop(); err != nil {
			a.Logger.ErrorContext(ctx, "Error stopping WhatsApp session", slog.String("error", err.Error()))
		}
	}
	a.LicenseManager.Stop()
	a.WebSocketHub.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return errors.Join(errs...)
}

// Serve runs the HTTP server until ctx is cancelled, then shuts everything
// down.
func (a *Application) Serve(ctx context.Context) error {
	a.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.InfoContext(gctx, "HTTP server listening", slog.String("address", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.Stop(gctx)
	})
	return g.Wait()
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx)
}
