package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/actiomidia/projeto-bot-whatsapp/internal/errors"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/infrastructure"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/license"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/domain"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/events"
)

// LicenseManager is the part of *license.Manager the service drives.
type LicenseManager interface {
	CheckCached(ctx context.Context) license.Outcome
	Revalidate(ctx context.Context, key string) license.Outcome
	ForceRevalidate(ctx context.Context)
	Forced() bool
	Clear(ctx context.Context) error
	CurrentRecord() *license.Record
	IsUsable() bool
	LastVerdict() license.Outcome
	InFlight() bool
	Interval() time.Duration
	Policy() *license.Policy
}

// AuthorityProber probes the licensing authority without touching state.
type AuthorityProber interface {
	Ping(ctx context.Context) license.PingResult
}

// LicenseService provides the license operations exposed over HTTP, the
// realtime channel and the CLI.
type LicenseService interface {
	Status(ctx context.Context) *domain.LicenseStatusResponse
	Activate(ctx context.Context, key string) (*domain.LicenseStatusResponse, error)
	Info(ctx context.Context) (*domain.LicenseView, error)
	Renew(ctx context.Context) (*domain.LicenseStatusResponse, error)
	Deactivate(ctx context.Context) (*domain.LicenseActionResponse, error)
	ForceCheck(ctx context.Context) *domain.LicenseStatusResponse
	ClearCache(ctx context.Context) *domain.LicenseActionResponse
	Debug(ctx context.Context) *domain.LicenseDebugResponse
	TestAuthority(ctx context.Context) *domain.AuthorityProbeResponse
	IsUsable() bool
}

// LicenseServiceConfig carries what the service reports but does not own.
type LicenseServiceConfig struct {
	StoreFile    string
	AuthorityURL string
	// OnActivated runs after a key is accepted, e.g. to start the session.
	OnActivated func(ctx context.Context)
	Now         func() time.Time
}

type licenseService struct {
	manager LicenseManager
	prober  AuthorityProber
	cfg     LicenseServiceConfig
	logger  *slog.Logger
}

// NewLicenseService creates a license service. prober may be nil, in which
// case TestAuthority reports the authority as not configured.
func NewLicenseService(manager LicenseManager, prober AuthorityProber, cfg LicenseServiceConfig, logger *slog.Logger) LicenseService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &licenseService{
		manager: manager,
		prober:  prober,
		cfg:     cfg,
		logger:  logger.With(slog.String("service", "license")),
	}
}

func traceIDFrom(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	if id := infrastructure.GetTraceID(ctx); id != "" {
		return id
	}
	return infrastructure.TraceIDFromContext(ctx)
}

// Status returns the cached verdict, revalidating only when the cache is
// stale.
func (s *licenseService) Status(ctx context.Context) *domain.LicenseStatusResponse {
	out := s.manager.CheckCached(ctx)
	return s.statusResponse(ctx, out)
}

// Activate replaces the current license with key. The previous record is
// cleared first, so a rejected key leaves the system unlicensed.
func (s *licenseService) Activate(ctx context.Context, key string) (*domain.LicenseStatusResponse, error) {
	start := time.Now()
	traceID := traceIDFrom(ctx)
	key = license.NormalizeKey(key)
	if key == "" {
		return nil, apierrors.ErrLicenseKeyMissing
	}

	s.logger.InfoContext(ctx, "license activation started",
		slog.String("trace_id", traceID),
		slog.String("operation", "activate"),
		slog.String("key_prefix", license.KeyPrefix(key)),
	)

	if err := s.manager.Clear(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to clear previous license",
			slog.String("trace_id", traceID),
			slog.String("error", err.Error()),
		)
	}

	out := s.manager.Revalidate(ctx, key)
	resp := s.statusResponse(ctx, out)
	if err := outcomeError(out); err != nil {
		s.logger.WarnContext(ctx, "license activation failed",
			slog.String("trace_id", traceID),
			slog.String("key_prefix", license.KeyPrefix(key)),
			slog.String("reason", string(out.Reason)),
			slog.Duration("latency", time.Since(start)),
		)
		return resp, err
	}

	s.logger.InfoContext(ctx, "license activation succeeded",
		slog.String("trace_id", traceID),
		slog.String("key_prefix", license.KeyPrefix(key)),
		slog.String("verdict", out.Verdict.String()),
		slog.Duration("latency", time.Since(start)),
	)
	if s.cfg.OnActivated != nil {
		s.cfg.OnActivated(context.WithoutCancel(ctx))
	}
	return resp, nil
}

// Info returns the stored license without contacting the authority.
func (s *licenseService) Info(ctx context.Context) (*domain.LicenseView, error) {
	rec := s.manager.CurrentRecord()
	if rec == nil {
		return nil, apierrors.ErrLicenseRequired
	}
	return NewLicenseView(rec, s.cfg.Now()), nil
}

// Renew re-checks the stored key against the authority immediately.
func (s *licenseService) Renew(ctx context.Context) (*domain.LicenseStatusResponse, error) {
	rec := s.manager.CurrentRecord()
	if rec == nil {
		return nil, apierrors.ErrLicenseRequired
	}
	s.manager.ForceRevalidate(ctx)
	out := s.manager.Revalidate(ctx, rec.Key)
	return s.statusResponse(ctx, out), outcomeError(out)
}

// Deactivate removes the license from memory and disk.
func (s *licenseService) Deactivate(ctx context.Context) (*domain.LicenseActionResponse, error) {
	traceID := traceIDFrom(ctx)
	if err := s.manager.Clear(ctx); err != nil {
		s.logger.ErrorContext(ctx, "license deactivation failed",
			slog.String("trace_id", traceID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("deactivation failed: %w", err)
	}
	s.logger.InfoContext(ctx, "license deactivated", slog.String("trace_id", traceID))
	return &domain.LicenseActionResponse{
		Success:   true,
		Message:   "license deactivated",
		TraceID:   traceID,
		Timestamp: s.cfg.Now(),
	}, nil
}

// ForceCheck bypasses the revalidation interval once and returns the fresh
// verdict.
func (s *licenseService) ForceCheck(ctx context.Context) *domain.LicenseStatusResponse {
	s.manager.ForceRevalidate(ctx)
	return s.statusResponse(ctx, s.manager.CheckCached(ctx))
}

// ClearCache makes the next check go to the authority. The license itself
// is kept.
func (s *licenseService) ClearCache(ctx context.Context) *domain.LicenseActionResponse {
	s.manager.ForceRevalidate(ctx)
	return &domain.LicenseActionResponse{
		Success:   true,
		Message:   "validation cache cleared; the next check contacts the authority",
		TraceID:   traceIDFrom(ctx),
		Timestamp: s.cfg.Now(),
	}
}

func (s *licenseService) Debug(ctx context.Context) *domain.LicenseDebugResponse {
	now := s.cfg.Now()
	last := s.manager.LastVerdict()
	policy := s.manager.Policy()

	resp := &domain.LicenseDebugResponse{
		LastVerdict:              last.Verdict.String(),
		LastReason:               string(last.Reason),
		InFlight:                 s.manager.InFlight(),
		Forced:                   s.manager.Forced(),
		IntervalSeconds:          s.manager.Interval().Seconds(),
		FailureThreshold:         policy.Threshold(),
		ConfirmedInvalidStatuses: policy.ConfirmedInvalidStatuses(),
		AmbiguousStatuses:        policy.AmbiguousStatuses(),
		StoreFile:                s.cfg.StoreFile,
		AuthorityURL:             s.cfg.AuthorityURL,
		MachineID:                license.MachineID(),
		Timestamp:                now,
	}
	if rec := s.manager.CurrentRecord(); rec != nil {
		resp.RecordPresent = true
		resp.License = NewLicenseView(rec, now)
	}
	if s.cfg.StoreFile != "" {
		_, err := os.Stat(s.cfg.StoreFile)
		resp.StoreFileExists = err == nil
	}
	return resp
}

func (s *licenseService) TestAuthority(ctx context.Context) *domain.AuthorityProbeResponse {
	if s.prober == nil {
		return &domain.AuthorityProbeResponse{Message: "licensing authority not configured"}
	}
	res := s.prober.Ping(ctx)
	s.logger.InfoContext(ctx, "authority probe completed",
		slog.String("trace_id", traceIDFrom(ctx)),
		slog.Bool("reachable", res.Reachable),
		slog.Int("http_status", res.HTTPStatus),
		slog.Duration("latency", res.Latency),
	)
	return &domain.AuthorityProbeResponse{
		Success:    res.Reachable,
		Connected:  res.Reachable,
		HTTPStatus: res.HTTPStatus,
		LatencyMS:  res.Latency.Milliseconds(),
		Message:    res.Message,
		Payload:    res.Payload,
	}
}

func (s *licenseService) IsUsable() bool {
	return s.manager.IsUsable()
}

func (s *licenseService) statusResponse(ctx context.Context, out license.Outcome) *domain.LicenseStatusResponse {
	resp := &domain.LicenseStatusResponse{
		Success:   out.Usable(),
		IsValid:   out.Usable(),
		Verdict:   out.Verdict.String(),
		Reason:    string(out.Reason),
		Cached:    out.Cached,
		Degraded:  out.Verdict == license.VerdictDegraded,
		Status:    out.Status,
		Message:   out.Message,
		TraceID:   traceIDFrom(ctx),
		Timestamp: out.CheckedAt,
	}
	if out.Record != nil {
		resp.License = NewLicenseView(out.Record, s.cfg.Now())
	}
	return resp
}

// outcomeError maps an unusable outcome to the error the HTTP layer
// renders. Usable and degraded outcomes return nil.
func outcomeError(out license.Outcome) error {
	if out.Usable() {
		return nil
	}
	if out.Reason == license.ReasonTransportFailure {
		return fmt.Errorf("%w: %s", apierrors.ErrAuthorityDown, out.Message)
	}
	return fmt.Errorf("%w: %s", apierrors.ErrLicenseInvalid, out.Message)
}

// NewLicenseView projects a record for callers. The key is masked.
func NewLicenseView(rec *license.Record, now time.Time) *domain.LicenseView {
	if rec == nil {
		return nil
	}
	view := &domain.LicenseView{
		Key:             license.MaskLicenseKey(rec.Key),
		DaysRemaining:   rec.DaysRemaining(now),
		AuthorityStatus: rec.AuthorityStatus,
		CustomerName:    rec.CustomerName,
		LicenseType:     rec.LicenseType,
		MaxUses:         rec.MaxUses,
		CurrentUses:     rec.CurrentUses,
		Notes:           rec.Notes,
		LastCheckedAt:   rec.LastCheckedAt,
		VerifiedAt:      rec.VerifiedAt,
		FailureCount:    rec.ConsecutiveFailureCount,
	}
	if !rec.ExpiresAt.IsZero() {
		expires := rec.ExpiresAt
		view.ExpiresAt = &expires
	}
	return view
}

// LicenseEvent builds the realtime payload for an outcome.
func LicenseEvent(out license.Outcome, now time.Time) events.LicenseEvent {
	ev := events.LicenseEvent{
		Valid:    out.Usable(),
		Verdict:  out.Verdict.String(),
		Reason:   string(out.Reason),
		Degraded: out.Verdict == license.VerdictDegraded,
		Message:  out.Message,
	}
	if out.Record != nil {
		ev.Key = license.MaskLicenseKey(out.Record.Key)
		if days := out.Record.DaysRemaining(now); days >= 0 {
			ev.DaysRemaining = &days
		}
	}
	return ev
}

// IsLicenseError reports whether err came from an unusable license outcome.
func IsLicenseError(err error) bool {
	return errors.Is(err, apierrors.ErrLicenseInvalid) || errors.Is(err, apierrors.ErrAuthorityDown) ||
		errors.Is(err, apierrors.ErrLicenseRequired) || errors.Is(err, apierrors.ErrLicenseKeyMissing)
}
