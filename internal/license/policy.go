package license

import (
	"fmt"
	"strings"
	"time"
)

// DefaultFailureThreshold is the number of consecutive ambiguous or failed
// checks after which a cached license is discarded.
const DefaultFailureThreshold = 3

// MessageNoLocalRecord is returned when the authority is unreachable and
// nothing is cached.
const MessageNoLocalRecord = "cannot reach licensing authority and no local record"

// DefaultConfirmedInvalidStatuses are authority statuses that revoke a
// license outright.
var DefaultConfirmedInvalidStatuses = []string{"expired", "suspended", "expirada"}

// DefaultAmbiguousStatuses are soft statuses tolerated up to the failure
// threshold even when the authority reports valid=true.
var DefaultAmbiguousStatuses = []string{"pending", "inactive", "pendente", "inativa"}

// Tier is the policy classification of a single authority outcome.
type Tier int

const (
	TierAffirmed Tier = iota
	TierAmbiguous
	TierConfirmedInvalid
)

func (t Tier) String() string {
	switch t {
	case TierAffirmed:
		return "affirmed"
	case TierConfirmedInvalid:
		return "confirmed_invalid"
	default:
		return "ambiguous"
	}
}

// PolicyConfig holds the configurable parts of the resilience policy.
type PolicyConfig struct {
	FailureThreshold         int
	ConfirmedInvalidStatuses []string
	AmbiguousStatuses        []string
}

// Policy decides how a fresh authority outcome changes the cached record.
// It is pure: no I/O, no clock, no shared state.
type Policy struct {
	threshold        int
	confirmedInvalid map[string]struct{}
	ambiguous        map[string]struct{}
}

// NewPolicy builds a policy. Empty status lists fall back to the defaults
// and a non-positive threshold falls back to DefaultFailureThreshold.
func NewPolicy(cfg PolicyConfig) *Policy {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if len(cfg.ConfirmedInvalidStatuses) == 0 {
		cfg.ConfirmedInvalidStatuses = DefaultConfirmedInvalidStatuses
	}
	if len(cfg.AmbiguousStatuses) == 0 {
		cfg.AmbiguousStatuses = DefaultAmbiguousStatuses
	}
	return &Policy{
		threshold:        cfg.FailureThreshold,
		confirmedInvalid: statusSet(cfg.ConfirmedInvalidStatuses),
		ambiguous:        statusSet(cfg.AmbiguousStatuses),
	}
}

func statusSet(statuses []string) map[string]struct{} {
	set := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		if s = normalizeStatus(s); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

func normalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Threshold returns the configured failure threshold.
func (p *Policy) Threshold() int { return p.threshold }

// ConfirmedInvalidStatuses returns the confirmed-invalid tier.
func (p *Policy) ConfirmedInvalidStatuses() []string { return setKeys(p.confirmedInvalid) }

// AmbiguousStatuses returns the explicitly ambiguous tier.
func (p *Policy) AmbiguousStatuses() []string { return setKeys(p.ambiguous) }

func setKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys
}

// Classify maps a raw outcome onto a tier. A confirmed-invalid status is
// never softened, whichever envelope carried it. Transport failures are
// always ambiguous.
func (p *Policy) Classify(out RawOutcome) Tier {
	if out.Kind == OutcomeTransportFailure {
		return TierAmbiguous
	}
	status := normalizeStatus(out.Status)
	if _, ok := p.confirmedInvalid[status]; ok {
		return TierConfirmedInvalid
	}
	if out.Kind == OutcomeAffirmed {
		if _, ok := p.ambiguous[status]; ok {
			return TierAmbiguous
		}
		return TierAffirmed
	}
	return TierAmbiguous
}

// Decision is the result of applying the policy.
type Decision struct {
	// Next is the record to hold after the decision, nil when none.
	Next *Record
	// Persist asks the caller to save Next.
	Persist bool
	// Delete asks the caller to remove the held and persisted record.
	Delete  bool
	Outcome Outcome
}

// CheckExpiry is the local pre-flight check. It reports a deletion decision
// when prev has expired, without consulting the authority.
func (p *Policy) CheckExpiry(prev *Record, now time.Time) (Decision, bool) {
	if prev == nil || !prev.Expired(now) {
		return Decision{}, false
	}
	return Decision{
		Delete: true,
		Outcome: Outcome{
			Verdict:   VerdictInvalid,
			Reason:    ReasonLocalExpiry,
			Status:    prev.AuthorityStatus,
			Message:   "local license expired",
			CheckedAt: now,
		},
	}, true
}

// Apply combines the previous record for key (nil when none) with a fresh
// authority outcome observed at now.
func (p *Policy) Apply(prev *Record, key string, out RawOutcome, now time.Time) Decision {
	switch p.Classify(out) {
	case TierAffirmed:
		return p.affirm(prev, key, out, now)
	case TierConfirmedInvalid:
		return Decision{
			Delete: prev != nil,
			Outcome: Outcome{
				Verdict:   VerdictInvalid,
				Reason:    ReasonConfirmedInvalid,
				Status:    out.Status,
				Message:   confirmedInvalidMessage(out),
				CheckedAt: now,
			},
		}
	default:
		return p.tolerate(prev, key, out, now)
	}
}

func confirmedInvalidMessage(out RawOutcome) string {
	if out.Message != "" && out.Kind == OutcomeRejected {
		return out.Message
	}
	return fmt.Sprintf("license is %s", out.Status)
}

func (p *Policy) affirm(prev *Record, key string, out RawOutcome, now time.Time) Decision {
	next := &Record{Key: key}
	if prev != nil {
		next = prev.Clone()
	}
	if d := out.License; d != nil {
		if !d.ExpiresAt.IsZero() {
			next.ExpiresAt = d.ExpiresAt
		}
		next.CustomerName = d.CustomerName
		next.LicenseType = d.LicenseType
		next.MaxUses = d.MaxUses
		next.CurrentUses = d.CurrentUses
		next.Notes = d.Notes
	}
	next.AuthorityStatus = out.Status
	next.Message = out.Message
	next.LastCheckedAt = now
	next.VerifiedAt = now
	next.ConsecutiveFailureCount = 0

	// The authority may affirm a key whose expiry date has already passed.
	if next.Expired(now) {
		return Decision{
			Delete: prev != nil,
			Outcome: Outcome{
				Verdict:   VerdictInvalid,
				Reason:    ReasonLocalExpiry,
				Status:    out.Status,
				Message:   "license expired",
				CheckedAt: now,
			},
		}
	}

	return Decision{
		Next:    next,
		Persist: true,
		Outcome: Outcome{
			Verdict:   VerdictUsable,
			Reason:    ReasonAffirmed,
			Status:    out.Status,
			Message:   out.Message,
			CheckedAt: now,
			Record:    next.Clone(),
		},
	}
}

func (p *Policy) tolerate(prev *Record, key string, out RawOutcome, now time.Time) Decision {
	reason := ReasonAmbiguousStatus
	if out.Kind == OutcomeTransportFailure {
		reason = ReasonTransportFailure
	}

	var next *Record
	switch {
	case prev != nil:
		next = prev.Clone()
	case out.Kind == OutcomeTransportFailure:
		return Decision{Outcome: Outcome{
			Verdict:   VerdictInvalid,
			Reason:    ReasonTransportFailure,
			Message:   MessageNoLocalRecord,
			CheckedAt: now,
		}}
	case out.License != nil:
		next = &Record{
			Key:          key,
			ExpiresAt:    out.License.ExpiresAt,
			CustomerName: out.License.CustomerName,
			LicenseType:  out.License.LicenseType,
			MaxUses:      out.License.MaxUses,
			CurrentUses:  out.License.CurrentUses,
			Notes:        out.License.Notes,
		}
	default:
		msg := out.Message
		if msg == "" {
			msg = fmt.Sprintf("license status %q not accepted and no local record", out.Status)
		}
		return Decision{Outcome: Outcome{
			Verdict:   VerdictInvalid,
			Reason:    ReasonNoRecord,
			Status:    out.Status,
			Message:   msg,
			CheckedAt: now,
		}}
	}

	next.ConsecutiveFailureCount++
	next.LastCheckedAt = now
	if out.Kind != OutcomeTransportFailure {
		next.AuthorityStatus = out.Status
	}

	if next.ConsecutiveFailureCount >= p.threshold {
		return Decision{
			Delete: prev != nil,
			Outcome: Outcome{
				Verdict:      VerdictInvalid,
				Reason:       ReasonFailureThreshold,
				Status:       out.Status,
				Message:      fmt.Sprintf("license could not be confirmed after %d consecutive checks", next.ConsecutiveFailureCount),
				FailureCount: next.ConsecutiveFailureCount,
				CheckedAt:    now,
			},
		}
	}

	if next.Expired(now) {
		return Decision{
			Delete: prev != nil,
			Outcome: Outcome{
				Verdict:   VerdictInvalid,
				Reason:    ReasonLocalExpiry,
				Status:    out.Status,
				Message:   "license expired",
				CheckedAt: now,
			},
		}
	}

	msg := fmt.Sprintf("operating on cached license (%d/%d)", next.ConsecutiveFailureCount, p.threshold)
	if reason == ReasonTransportFailure {
		msg += ": " + out.Reason
	} else if out.Status != "" {
		msg += ": status " + out.Status
	}

	return Decision{
		Next:    next,
		Persist: true,
		Outcome: Outcome{
			Verdict:      VerdictDegraded,
			Reason:       reason,
			Cached:       true,
			Status:       next.AuthorityStatus,
			Message:      msg,
			FailureCount: next.ConsecutiveFailureCount,
			CheckedAt:    now,
			Record:       next.Clone(),
		},
	}
}
