package ratelimit

import (
	"math/rand/v2"
	"time"
)

// DiscogsRequestsPerMinute is the documented per-token budget of the
// Discogs API.
const DiscogsRequestsPerMinute = 60

func TrackFetchSleep() time.Duration {
	const (
		from = 1
		to   = 4
	)
	millis := (rand.IntN(to-from)+from)*1000 + rand.N(1000) //nolint:gosec
	return time.Duration(millis) * time.Millisecond
}
