package license

import (
	"math"
	"strings"
	"time"
)

// KeyPrefixLength is the number of license key characters ever surfaced in
// logs, API responses or audit entries.
const KeyPrefixLength = 8

// Record is the single process-wide snapshot of the current license.
type Record struct {
	Key                     string    `json:"key"`
	ExpiresAt               time.Time `json:"expires_at"`
	AuthorityStatus         string    `json:"authority_status"`
	LastCheckedAt           time.Time `json:"last_checked_at"`
	VerifiedAt              time.Time `json:"verified_at"`
	ConsecutiveFailureCount int       `json:"consecutive_failure_count"`

	// Fields copied from the authority payload on the last affirmed check.
	CustomerName string `json:"customer_name,omitempty"`
	LicenseType  string `json:"license_type,omitempty"`
	MaxUses      int    `json:"max_uses,omitempty"`
	CurrentUses  int    `json:"current_uses,omitempty"`
	Notes        string `json:"notes,omitempty"`
	Message      string `json:"message,omitempty"`
}

// Clone returns a deep copy. Records are replaced, never mutated in place,
// so handing out clones keeps readers isolated from later commits.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Expired reports whether the record is past its expiry instant. A record
// without an expiry date never expires locally.
func (r *Record) Expired(now time.Time) bool {
	if r == nil {
		return true
	}
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Usable reports whether the record may gate access at now.
func (r *Record) Usable(now time.Time) bool {
	return r != nil && r.Key != "" && !r.Expired(now)
}

// DaysRemaining returns whole days until expiry, rounded up, or -1 when the
// record has no expiry date.
func (r *Record) DaysRemaining(now time.Time) int {
	if r == nil || r.ExpiresAt.IsZero() {
		return -1
	}
	d := r.ExpiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

// KeyPrefix returns the loggable prefix of the record's key.
func (r *Record) KeyPrefix() string {
	if r == nil {
		return ""
	}
	return KeyPrefix(r.Key)
}

// KeyPrefix returns the first KeyPrefixLength characters of key.
func KeyPrefix(key string) string {
	return key[:min(KeyPrefixLength, len(key))]
}

// MaskLicenseKey masks a license key for display purposes
func MaskLicenseKey(key string) string {
	if key == "" {
		return "N/A"
	}
	return KeyPrefix(key) + "****"
}

// NormalizeKey trims surrounding whitespace from a user supplied key.
func NormalizeKey(key string) string {
	return strings.TrimSpace(key)
}
