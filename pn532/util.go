package pn532

import "time"

// sleepFor is a thin wrapper around time.Sleep so call sites read like the
// timing table in spec.md §9 rather than bare time.Sleep calls.
func sleepFor(d time.Duration) {
	time.Sleep(d)
}
