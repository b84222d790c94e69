package app

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/actiomidia/projeto-bot-whatsapp/internal/middleware"
	handlers "github.com/actiomidia/projeto-bot-whatsapp/internal/transport/http"
)

func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Only middleware that leaves the ResponseWriter unwrapped runs before
	// the websocket route; the upgrade needs the raw hijacker.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Handle("/ws", a.WebSocketHub)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOTelMiddleware(a.OTelProviders.Tracer, a.appMetrics, a.Logger).Handler)
		r.Use(middleware.StructuredLogger(a.Logger))
		r.Use(middleware.Recoverer(a.errorHandler))
		r.Use(middleware.SecurityHeaders)
		r.Use(middleware.CORS(a.Config.Security))

		if a.Config.Security.RateLimit.Enabled {
			r.Use(middleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r)
		a.setupHTMLRoutes(r)
	})

	r.Handle("/metrics", handlers.MetricsHandler(a.OTelProviders.PrometheusHTTP))

	r.NotFound(a.errorHandler.NotFound)
	r.MethodNotAllowed(a.errorHandler.MethodNotAllowed)

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	validator := middleware.NewValidator()

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(middleware.Timeout(a.Config.Server.RequestTimeout))

		healthHandler := handlers.NewHealthHandler(a.Services.Health, a.Logger)
		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/health/live", healthHandler.LivenessCheck)
		r.Get("/version", healthHandler.Version)
		r.Get("/stats", healthHandler.Stats)

		licenseHandler := handlers.NewLicenseHandler(a.Services.License, validator, a.errorHandler,
			a.Config.Security.RateLimit.ValidatePerMinute, a.Logger)
		r.Mount("/license", licenseHandler.Routes())

		// The license gate guards the messaging API only.
		if a.Services.Messaging != nil {
			gate := middleware.NewLicenseGate(a.LicenseManager, a.Logger)
			messagingHandler := handlers.NewMessagingHandler(a.Services.Messaging, validator, a.errorHandler, a.Logger).
				WithReports(a.Reports)
			r.With(gate.Handler).Mount("/messages", messagingHandler.Routes())
		}
	})
}

// setupHTMLRoutes serves the license page, the main app and its assets.
func (a *Application) setupHTMLRoutes(r chi.Router) {
	webDir := a.Config.ResolvedPaths().WebDir
	r.Get("/", handlers.ServeMainApp(webDir))
	r.Get("/license", handlers.ServeLicensePage(webDir))
	r.Handle("/static/*", handlers.StaticFiles(webDir))
}
