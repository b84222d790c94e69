package license

import (
	"encoding/json"
	"time"
)

// OutcomeKind classifies a single authority round trip.
type OutcomeKind int

const (
	// OutcomeTransportFailure covers network errors, timeouts and any body
	// that is empty, unparseable or of the wrong shape.
	OutcomeTransportFailure OutcomeKind = iota
	// OutcomeAffirmed means the authority answered valid=true.
	OutcomeAffirmed
	// OutcomeRejected means the authority answered but did not affirm.
	OutcomeRejected
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAffirmed:
		return "affirmed"
	case OutcomeRejected:
		return "rejected"
	default:
		return "transport_failure"
	}
}

// LicenseData is the license payload the authority returns alongside a
// check. Absent fields are left at their zero value.
type LicenseData struct {
	ExpiresAt    time.Time
	CustomerName string
	LicenseType  string
	MaxUses      int
	CurrentUses  int
	Notes        string
}

// RawOutcome is the unclassified result of one authority check.
type RawOutcome struct {
	Kind    OutcomeKind
	Status  string
	Message string
	License *LicenseData
	// Reason describes a transport failure.
	Reason  string
	Latency time.Duration
}

// Affirmed builds an affirmed outcome.
func Affirmed(status string, data *LicenseData, message string) RawOutcome {
	return RawOutcome{Kind: OutcomeAffirmed, Status: status, License: data, Message: message}
}

// Rejected builds a rejected outcome.
func Rejected(status, message string) RawOutcome {
	return RawOutcome{Kind: OutcomeRejected, Status: status, Message: message}
}

// TransportFailure builds a transport failure outcome.
func TransportFailure(reason string) RawOutcome {
	return RawOutcome{Kind: OutcomeTransportFailure, Reason: reason}
}

// Verdict is the usability decision handed to callers.
type Verdict int

const (
	VerdictInvalid Verdict = iota
	VerdictUsable
	VerdictDegraded
)

func (v Verdict) String() string {
	switch v {
	case VerdictUsable:
		return "usable"
	case VerdictDegraded:
		return "degraded"
	default:
		return "invalid"
	}
}

// MarshalJSON renders the verdict as its string form.
func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// Allows reports whether the verdict lets the caller proceed.
func (v Verdict) Allows() bool {
	return v == VerdictUsable || v == VerdictDegraded
}

// Reason explains how a verdict was reached. Reasons are values, not errors.
type Reason string

const (
	ReasonAffirmed         Reason = "affirmed"
	ReasonCacheHit         Reason = "cache_hit"
	ReasonAmbiguousStatus  Reason = "ambiguous_status"
	ReasonTransportFailure Reason = "transport_failure"
	ReasonConfirmedInvalid Reason = "confirmed_invalid"
	ReasonFailureThreshold Reason = "failure_threshold"
	ReasonLocalExpiry      Reason = "local_expiry"
	ReasonNoRecord         Reason = "no_record"
	ReasonCleared          Reason = "cleared"
)

// Outcome is what the orchestrator returns for every check.
type Outcome struct {
	Verdict Verdict `json:"verdict"`
	Reason  Reason  `json:"reason"`
	// Cached is set when the verdict rests on previously stored state rather
	// than a fresh affirmation.
	Cached       bool      `json:"cached"`
	Status       string    `json:"status,omitempty"`
	Message      string    `json:"message"`
	FailureCount int       `json:"failure_count"`
	CheckedAt    time.Time `json:"checked_at"`
	Record       *Record   `json:"-"`
}

// Usable reports whether the outcome lets the caller proceed.
func (o Outcome) Usable() bool {
	return o.Verdict.Allows()
}
