package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "github.com/actiomidia/projeto-bot-whatsapp/internal/errors"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/license"
)

// Response headers describing the verdict that admitted a request.
const (
	HeaderLicenseStatus   = "X-License-Status"
	HeaderLicenseDegraded = "X-License-Degraded"
)

// LicenseChecker is the slice of the license manager the gate needs.
type LicenseChecker interface {
	CheckCached(ctx context.Context) license.Outcome
}

type outcomeKey struct{}

// OutcomeFromContext returns the verdict the gate attached to the request.
func OutcomeFromContext(ctx context.Context) (license.Outcome, bool) {
	out, ok := ctx.Value(outcomeKey{}).(license.Outcome)
	return out, ok
}

// LicenseGate admits requests only while the license is usable. Warm checks
// are answered from the manager's cache; a cold cache triggers one shared
// revalidation.
type LicenseGate struct {
	checker         LicenseChecker
	logger          *slog.Logger
	tracer          trace.Tracer
	excludePaths    map[string]struct{}
	excludePrefixes []string
	licensePageURL  string
}

// NewLicenseGate creates a gate with the default exclusions: the license
// API itself, health, metrics, the realtime socket and static assets.
func NewLicenseGate(checker LicenseChecker, logger *slog.Logger) *LicenseGate {
	g := &LicenseGate{
		checker:        checker,
		logger:         logger.With(slog.String("component", "license_gate")),
		tracer:         otel.Tracer("projeto-bot-whatsapp/license-gate"),
		excludePaths:   make(map[string]struct{}),
		licensePageURL: "/license",
	}
	for _, p := range []string{
		"/",
		"/license",
		"/api/health",
		"/api/stats",
		"/api/version",
		"/metrics",
		"/ws",
		"/favicon.ico",
	} {
		g.excludePaths[p] = struct{}{}
	}
	g.excludePrefixes = []string{
		"/api/license/",
		"/static/",
		"/assets/",
	}
	return g
}

// AddExcludePath adds a path to be excluded from license validation
func (g *LicenseGate) AddExcludePath(path string) {
	g.excludePaths[path] = struct{}{}
}

// AddExcludePrefix adds a path prefix to be excluded from license validation
func (g *LicenseGate) AddExcludePrefix(prefix string) {
	g.excludePrefixes = append(g.excludePrefixes, prefix)
}

// SetLicensePageURL sets where browser requests are redirected.
func (g *LicenseGate) SetLicensePageURL(u string) {
	g.licensePageURL = u
}

// Handler returns the middleware handler function
func (g *LicenseGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx, span := g.tracer.Start(r.Context(), "license_gate.check",
			trace.WithAttributes(attribute.String("http.route", r.URL.Path)))
		out := g.checker.CheckCached(ctx)
		span.SetAttributes(
			attribute.String("license.verdict", out.Verdict.String()),
			attribute.String("license.reason", string(out.Reason)),
			attribute.Bool("license.cached", out.Cached),
		)
		span.End()

		if !out.Usable() {
			g.logger.WarnContext(ctx, "request blocked by license gate",
				slog.String("path", r.URL.Path),
				slog.String("reason", string(out.Reason)),
				slog.String("request_id", GetRequestID(ctx)),
			)
			g.deny(w, r, out)
			return
		}

		w.Header().Set(HeaderLicenseStatus, out.Verdict.String())
		if out.Verdict == license.VerdictDegraded {
			w.Header().Set(HeaderLicenseDegraded, "true")
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), outcomeKey{}, out)))
	})
}

func (g *LicenseGate) excluded(path string) bool {
	if _, ok := g.excludePaths[path]; ok {
		return true
	}
	for _, prefix := range g.excludePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (g *LicenseGate) deny(w http.ResponseWriter, r *http.Request, out license.Outcome) {
	if isAPIRequest(r) {
		problem := apierrors.NewLicenseRequiredProblem(
			r.URL.Path,
			string(out.Reason),
			out.Message,
			GetRequestID(r.Context()),
		).WithExtension("redirect_url", g.licensePageURL)
		_ = render.Render(w, r, problem)
		return
	}

	q := url.Values{}
	q.Set("reason", string(out.Reason))
	if r.URL.Path != g.licensePageURL {
		q.Set("return", r.URL.RequestURI())
	}
	http.Redirect(w, r, g.licensePageURL+"?"+q.Encode(), http.StatusTemporaryRedirect)
}

// isAPIRequest checks if the request expects a JSON response
func isAPIRequest(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}
