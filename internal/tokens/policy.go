// Package tokens holds the access-token refresh policy shared by the request
// path and the background loops.
package tokens

import (
	"fmt"
	"time"
)

// DefaultThreshold is how long before expiry a token is renewed
const DefaultThreshold = 30 * time.Minute

// KST is the wall-clock zone both brokers report expiry and trade times in
var KST = mustLoadKST()

func mustLoadKST() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		// Korea has had no DST since 1988
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// ShouldRefresh reports whether a token expiring at expiry must be renewed at now.
// A nil expiry means the account never authenticated.
func ShouldRefresh(expiry *time.Time, now time.Time, threshold time.Duration) bool {
	if expiry == nil {
		return true
	}
	return !now.Add(threshold).Before(*expiry)
}

// Valid is the inverse of ShouldRefresh, for callers that read better that way
func Valid(expiry *time.Time, now time.Time, threshold time.Duration) bool {
	return !ShouldRefresh(expiry, now, threshold)
}

// ParseKSTDateTime parses a broker "2006-01-02 15:04:05" wall-clock string as KST
func ParseKSTDateTime(value string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04:05", value, KST)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse expiry %q: %w", value, err)
	}
	return t, nil
}

// ExpiryFromSeconds turns a relative expires_in value into an absolute instant
func ExpiryFromSeconds(now time.Time, seconds int64) time.Time {
	return now.Add(time.Duration(seconds) * time.Second)
}
