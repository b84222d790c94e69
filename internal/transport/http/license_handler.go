package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apierrors "github.com/actiomidia/projeto-bot-whatsapp/internal/errors"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/infrastructure"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/license"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/middleware"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/services"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/domain"
)

// LicenseHandler handles license-related HTTP requests
type LicenseHandler struct {
	service   services.LicenseService
	validator *middleware.Validator
	errors    *apierrors.ErrorHandler
	logger    *slog.Logger

	// validatePerMinute bounds POST /validate per client IP; zero disables it.
	validatePerMinute int
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(service services.LicenseService, validator *middleware.Validator, errorHandler *apierrors.ErrorHandler, validatePerMinute int, logger *slog.Logger) *LicenseHandler {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	if validator == nil {
		validator = middleware.NewValidator()
	}
	if errorHandler == nil {
		errorHandler = apierrors.NewErrorHandler(logger, false)
	}
	return &LicenseHandler{
		service:           service,
		validator:         validator,
		errors:            errorHandler,
		validatePerMinute: validatePerMinute,
		logger:            logger.With(slog.String("handler", "license")),
	}
}

// Routes returns a chi router for license endpoints
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/status", h.GetStatus)
	r.Get("/info", h.GetInfo)
	r.Get("/debug", h.GetDebugInfo)
	r.Get("/api-test", h.TestAuthority)

	r.Group(func(r chi.Router) {
		if h.validatePerMinute > 0 {
			r.Use(middleware.ValidateRateLimit(h.validatePerMinute))
		}
		r.Post("/validate", h.Validate)
	})
	r.Post("/renew", h.Renew)
	r.Post("/deactivate", h.Deactivate)
	r.Post("/force-check", h.ForceCheck)
	r.Post("/clear-cache", h.ClearCache)

	return r
}

// GetStatus handles GET /api/license/status. The answer comes from the
// cached verdict unless the revalidation interval has passed.
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := h.service.Status(r.Context())
	render.JSON(w, r, resp)
}

// Validate handles POST /api/license/validate
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	start := time.Now()

	ctx, span := otel.Tracer(infrastructure.MeterName).Start(ctx, "license_handler.validate",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/license/validate"),
			attribute.String("request_id", reqID),
			attribute.String("component", "license_handler"),
		),
	)
	defer span.End()

	var req domain.LicenseActivationRequest
	if err := h.validator.DecodeAndValidate(r, &req); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "request_validation"))
		h.errors.HandleError(w, r, err)
		return
	}

	span.SetAttributes(attribute.String("license.key_prefix", license.KeyPrefix(req.LicenseKey)))

	resp, err := h.service.Activate(ctx, req.LicenseKey)
	latency := time.Since(start)
	span.SetAttributes(
		attribute.Int64("request.latency_ms", latency.Milliseconds()),
		attribute.Bool("request.success", err == nil),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "license rejected")

		h.logger.WarnContext(ctx, "license validation failed",
			slog.String("request_id", reqID),
			slog.String("key", license.MaskLicenseKey(req.LicenseKey)),
			slog.Duration("latency", latency),
			slog.String("error", err.Error()),
		)

		problem := h.errors.ErrorToProblem(err, r).WithExtension("trace_id", reqID)
		if resp != nil {
			problem.WithExtension("verdict", resp.Verdict).
				WithExtension("reason", resp.Reason).
				WithExtension("success", false)
			span.SetAttributes(
				attribute.String("license.verdict", resp.Verdict),
				attribute.String("license.reason", resp.Reason),
			)
		}
		render.Render(w, r, problem)
		return
	}

	span.SetAttributes(
		attribute.String("license.verdict", resp.Verdict),
		attribute.Bool("license.degraded", resp.Degraded),
	)
	infrastructure.AddSpanEvent(ctx, "license.validation.success",
		attribute.String("verdict", resp.Verdict),
		attribute.String("component", "license_handler"),
	)

	h.logger.InfoContext(ctx, "license validated",
		slog.String("request_id", reqID),
		slog.String("key", license.MaskLicenseKey(req.LicenseKey)),
		slog.String("verdict", resp.Verdict),
		slog.Duration("latency", latency),
	)

	if resp.Message == "" {
		resp.Message = "license validated"
	}
	render.JSON(w, r, resp)
}

// GetInfo handles GET /api/license/info
func (h *LicenseHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Info(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"success": true,
		"license": view,
	})
}

// Renew handles POST /api/license/renew
func (h *LicenseHandler) Renew(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Renew(r.Context())
	if err != nil {
		problem := h.errors.ErrorToProblem(err, r).WithExtension("trace_id", middleware.GetRequestID(r.Context()))
		if resp != nil {
			problem.WithExtension("verdict", resp.Verdict).WithExtension("reason", resp.Reason)
		}
		render.Render(w, r, problem)
		return
	}
	render.JSON(w, r, resp)
}

// Deactivate handles POST /api/license/deactivate
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Deactivate(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// ForceCheck handles POST /api/license/force-check
func (h *LicenseHandler) ForceCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.ForceCheck(r.Context()))
}

// ClearCache handles POST /api/license/clear-cache
func (h *LicenseHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.ClearCache(r.Context()))
}

// GetDebugInfo handles GET /api/license/debug
func (h *LicenseHandler) GetDebugInfo(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Debug(r.Context()))
}

// TestAuthority handles GET /api/license/api-test. It probes the authority
// without touching license state; an unreachable authority answers 503.
func (h *LicenseHandler) TestAuthority(w http.ResponseWriter, r *http.Request) {
	resp := h.service.TestAuthority(r.Context())
	if !resp.Connected {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, resp)
}
