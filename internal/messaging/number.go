package messaging

import (
	"fmt"
	"strings"

	apierrors "github.com/actiomidia/projeto-bot-whatsapp/internal/errors"
)

const (
	// DefaultCountryCode is prefixed to numbers that lack it.
	DefaultCountryCode = "55"

	contactSuffix = "@c.us"
	groupSuffix   = "@g.us"
)

// NormalizeNumber strips formatting from a phone number, prefixes the
// default country code when missing and returns the bare digits together
// with the WhatsApp chat ID (<digits>@c.us).
func NormalizeNumber(number string) (digits, chatID string, err error) {
	number = strings.TrimSuffix(strings.TrimSpace(number), contactSuffix)

	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits = b.String()

	if !strings.HasPrefix(digits, DefaultCountryCode) {
		digits = DefaultCountryCode + digits
	}
	// E.164 allows at most 15 digits; Brazilian numbers have 12 or 13.
	if len(digits) < 10 || len(digits) > 15 {
		return "", "", fmt.Errorf("%w: %q", apierrors.ErrRecipientInvalid, number)
	}
	return digits, digits + contactSuffix, nil
}

// IsGroupID reports whether id is a group chat ID.
func IsGroupID(id string) bool {
	return strings.HasSuffix(id, groupSuffix) && len(id) > len(groupSuffix)
}

// MaskNumber keeps the country code and the last four digits.
func MaskNumber(digits string) string {
	if len(digits) <= 6 {
		return "****"
	}
	return digits[:2] + strings.Repeat("*", len(digits)-6) + digits[len(digits)-4:]
}
