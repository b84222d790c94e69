// Package domain holds the request and response payloads shared by the HTTP
// API, the realtime channel and the CLI.
package domain

import (
	"time"
)

// LicenseActivationRequest is the body of POST /api/license/validate and of
// the realtime validate-license event.
type LicenseActivationRequest struct {
	LicenseKey string `json:"license_key" validate:"required,license_key"`
}

// LicenseView is the caller-facing projection of the stored license. The
// key is always masked.
type LicenseView struct {
	Key             string     `json:"key"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	DaysRemaining   int        `json:"days_remaining"`
	AuthorityStatus string     `json:"authority_status,omitempty"`
	CustomerName    string     `json:"customer_name,omitempty"`
	LicenseType     string     `json:"license_type,omitempty"`
	MaxUses         int        `json:"max_uses,omitempty"`
	CurrentUses     int        `json:"current_uses,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	LastCheckedAt   time.Time  `json:"last_checked_at"`
	VerifiedAt      time.Time  `json:"verified_at"`
	FailureCount    int        `json:"failure_count"`
}

// LicenseStatusResponse answers status, validate, renew and force-check.
type LicenseStatusResponse struct {
	Success  bool         `json:"success"`
	IsValid  bool         `json:"is_valid"`
	Verdict  string       `json:"verdict"`
	Reason   string       `json:"reason"`
	Cached   bool         `json:"cached"`
	Degraded bool         `json:"degraded"`
	Status   string       `json:"status,omitempty"`
	Message  string       `json:"message"`
	License  *LicenseView `json:"license,omitempty"`
	TraceID  string       `json:"trace_id,omitempty"`
	// Timestamp is when the verdict was reached, not when it was served.
	Timestamp time.Time `json:"timestamp"`
}

// LicenseActionResponse answers deactivate and clear-cache.
type LicenseActionResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AuthorityProbeResponse answers GET /api/license/api-test.
type AuthorityProbeResponse struct {
	Success    bool   `json:"success"`
	Connected  bool   `json:"connected"`
	HTTPStatus int    `json:"http_status,omitempty"`
	LatencyMS  int64  `json:"latency_ms"`
	Message    string `json:"message"`
	Payload    any    `json:"payload,omitempty"`
}

// LicenseDebugResponse is the diagnostic snapshot served by
// GET /api/license/debug and `wabot license status --debug`.
type LicenseDebugResponse struct {
	RecordPresent            bool         `json:"record_present"`
	License                  *LicenseView `json:"license,omitempty"`
	LastVerdict              string       `json:"last_verdict"`
	LastReason               string       `json:"last_reason"`
	InFlight                 bool         `json:"in_flight"`
	Forced                   bool         `json:"forced"`
	IntervalSeconds          float64      `json:"interval_seconds"`
	FailureThreshold         int          `json:"failure_threshold"`
	ConfirmedInvalidStatuses []string     `json:"confirmed_invalid_statuses"`
	AmbiguousStatuses        []string     `json:"ambiguous_statuses"`
	StoreFile                string       `json:"store_file"`
	StoreFileExists          bool         `json:"store_file_exists"`
	AuthorityURL             string       `json:"authority_url"`
	MachineID                string       `json:"machine_id"`
	Timestamp                time.Time    `json:"timestamp"`
}
