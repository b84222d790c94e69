package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/actiomidia/projeto-bot-whatsapp/internal/infrastructure"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/license"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts"
)

const authorityProbeTimeout = 5 * time.Second

// LicenseState is what health reporting reads from the license manager.
type LicenseState interface {
	LastVerdict() license.Outcome
	IsUsable() bool
}

// SessionState reports the WhatsApp session.
type SessionState interface {
	Started() bool
	Ready() bool
}

// ClientCounter reports connected realtime clients.
type ClientCounter interface {
	ClientCount() int
}

// HealthService provides health check functionality
type HealthService struct {
	license   LicenseState
	prober    AuthorityProber
	session   SessionState
	clients   ClientCounter
	bulk      interface{ Running() string }
	system    *infrastructure.SystemMetrics
	startTime time.Time
	logger    *slog.Logger
}

// HealthDeps are the collaborators a HealthService reports on. Nil
// collaborators are reported as not configured.
type HealthDeps struct {
	License LicenseState
	Prober  AuthorityProber
	Session SessionState
	Clients ClientCounter
	Bulk    interface{ Running() string }
	System  *infrastructure.SystemMetrics
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Uptime    float64                  `json:"uptime_seconds"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// StatsResponse is served by /api/stats.
type StatsResponse struct {
	System           infrastructure.SystemStats `json:"system"`
	WebSocketClients int                        `json:"websocket_clients"`
	SessionStarted   bool                       `json:"session_started"`
	SessionReady     bool                       `json:"session_ready"`
	BulkJobID        string                     `json:"bulk_job_id,omitempty"`
	LicenseVerdict   string                     `json:"license_verdict"`
	OS               string                     `json:"os"`
	Arch             string                     `json:"arch"`
}

// NewHealthService creates a new health service.
func NewHealthService(deps HealthDeps, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	system := deps.System
	if system == nil {
		system, _ = infrastructure.NewSystemMetrics(nil, time.Now())
	}
	return &HealthService{
		license:   deps.License,
		prober:    deps.Prober,
		session:   deps.Session,
		clients:   deps.Clients,
		bulk:      deps.Bulk,
		system:    system,
		startTime: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// HealthCheck reports "healthy" only when the license is usable and the
// licensing authority answers.
func (hs *HealthService) HealthCheck(ctx context.Context) (HealthStatus, bool) {
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Uptime:    time.Since(hs.startTime).Seconds(),
		Services: map[string]ServiceHealth{
			"license":   hs.checkLicense(),
			"authority": hs.checkAuthority(ctx),
			"session":   hs.checkSession(),
			"websocket": hs.checkWebSocket(),
		},
	}

	healthy := status.Services["license"].Status == "ready" && status.Services["authority"].Status == "ready"
	if !healthy {
		status.Status = "unhealthy"
		hs.logger.WarnContext(ctx, "health check failed",
			slog.String("license", status.Services["license"].Message),
			slog.String("authority", status.Services["authority"].Message),
		)
	}
	return status, healthy
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Uptime:    time.Since(hs.startTime).Seconds(),
		Runtime: map[string]interface{}{
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	info := contracts.GetVersionInfo()
	return map[string]interface{}{
		"product":      contracts.ProductName,
		"version":      info.Version,
		"api_version":  info.APIVersion,
		"build_time":   info.BuildTime,
		"git_commit":   info.GitCommit,
		"go_version":   info.GoVersion,
		"os":           info.OS,
		"arch":         info.Architecture,
		"start_time":   hs.startTime.Format(time.RFC3339),
		"current_time": time.Now().Format(time.RFC3339),
	}
}

// SystemStats returns system statistics
func (hs *HealthService) SystemStats(ctx context.Context) StatsResponse {
	stats := StatsResponse{
		System:         hs.system.Snapshot(),
		LicenseVerdict: "unknown",
		OS:             runtime.GOOS,
		Arch:           runtime.GOARCH,
	}
	if hs.clients != nil {
		stats.WebSocketClients = hs.clients.ClientCount()
	}
	if hs.session != nil {
		stats.SessionStarted = hs.session.Started()
		stats.SessionReady = hs.session.Ready()
	}
	if hs.bulk != nil {
		stats.BulkJobID = hs.bulk.Running()
	}
	if hs.license != nil {
		stats.LicenseVerdict = hs.license.LastVerdict().Verdict.String()
	}
	return stats
}

func (hs *HealthService) checkLicense() ServiceHealth {
	if hs.license == nil {
		return ServiceHealth{Status: "not_ready", Message: "license manager not configured"}
	}
	last := hs.license.LastVerdict()
	if !hs.license.IsUsable() {
		return ServiceHealth{
			Status:  "not_ready",
			Message: fmt.Sprintf("license %s (%s)", last.Verdict, last.Reason),
		}
	}
	return ServiceHealth{Status: "ready", Message: fmt.Sprintf("license %s", last.Verdict)}
}

func (hs *HealthService) checkAuthority(ctx context.Context) ServiceHealth {
	if hs.prober == nil {
		return ServiceHealth{Status: "not_ready", Message: "licensing authority not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, authorityProbeTimeout)
	defer cancel()

	res := hs.prober.Ping(ctx)
	if !res.Reachable {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("authority unreachable: %s", res.Message)}
	}
	return ServiceHealth{Status: "ready", Message: fmt.Sprintf("authority answered in %dms", res.Latency.Milliseconds())}
}

func (hs *HealthService) checkSession() ServiceHealth {
	switch {
	case hs.session == nil:
		return ServiceHealth{Status: "disabled"}
	case hs.session.Ready():
		return ServiceHealth{Status: "ready", Message: "connected"}
	case hs.session.Started():
		return ServiceHealth{Status: "starting", Message: "waiting for QR scan"}
	default:
		return ServiceHealth{Status: "stopped"}
	}
}

func (hs *HealthService) checkWebSocket() ServiceHealth {
	if hs.clients == nil {
		return ServiceHealth{Status: "disabled"}
	}
	return ServiceHealth{Status: "ready", Message: fmt.Sprintf("%d clients", hs.clients.ClientCount())}
}
