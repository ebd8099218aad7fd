package currency

import "time"

// AdjustedTime is the wall-clock-based "now" used by the timestamp checks
// in §4.2.1 step 5, grounded on the original's get_adjusted_time (which is
// simply host time with no network time correction at this layer). Exposed
// as a package variable rather than a direct time.Now() call so integration
// tests can substitute a deterministic clock.
var AdjustedTime = func() int64 {
	return time.Now().Unix()
}
