package token

import (
	"math"
	"time"
)

// Defaults for the token lifecycle. Facebook long-lived tokens are granted for
// roughly 60 days; refresh kicks in a week before they lapse.
const (
	DefaultWarningDays   = 7
	DefaultTokenValidity = 60 * 24 * time.Hour
)

// DaysUntilExpiry rounds the remaining lifetime to whole days.
// Negative means already expired.
func DaysUntilExpiry(expiresAt time.Time, now time.Time) int {
	return int(math.Round(expiresAt.Sub(now).Hours() / 24))
}

// IsExpiring reports whether the token is inside the warning window.
// Already-expired tokens (negative days) are expiring too.
func IsExpiring(daysUntilExpiry int, warningDays int) bool {
	return daysUntilExpiry <= warningDays
}

// daysOrZero treats a missing expiry as immediately expiring.
func daysOrZero(expiresAt *time.Time, now time.Time) int {
	if expiresAt == nil {
		return 0
	}
	return DaysUntilExpiry(*expiresAt, now)
}
