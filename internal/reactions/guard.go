package reactions

import "time"

// Gate returns how long a caller must wait before the next connect attempt
// may fire, given the time of the previous attempt. A zero lastAttempt means
// no attempt has been made and no wait is required.
//
// This is a plain debounce, not a token bucket: there is no burst allowance.
// The Manager stamps lastAttempt after the wait, immediately before dialing,
// so overlapping callers serialize correctly.
func Gate(lastAttempt, now time.Time, minInterval time.Duration) time.Duration {
	if lastAttempt.IsZero() {
		return 0
	}
	elapsed := now.Sub(lastAttempt)
	if elapsed >= minInterval {
		return 0
	}
	return minInterval - elapsed
}
