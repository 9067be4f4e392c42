// Package throttle implements the token-bucket output throttle that caps
// how fast a single noisy command's bytes are mirrored to the daemon,
// without touching what gets written to the real terminal. The bucket
// itself is golang.org/x/time/rate's Limiter, used per-byte rather than
// per-event.
package throttle

import (
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/omnish-dev/omnish/internal/logger"
)

const (
	// DefaultThreshold is the command-byte count above which throttling
	// engages.
	DefaultThreshold = 2 << 20 // 2 MiB
	// RefillRate is the bucket's steady-state fill rate once throttling is
	// active, in bytes/second.
	RefillRate = 10 * 1024 // 10 kB/s
	// BurstCap caps the bucket at one second's worth of refill, in bytes.
	BurstCap = 10 * 1024 // 10 kB
)

// Throttle tracks bytes sent for the current command and, once the
// threshold is crossed, a refilling token bucket gating further sends.
type Throttle struct {
	threshold int64
	limiter   *rate.Limiter

	sentBytes int64
}

// New creates a Throttle with the default threshold/rate/cap.
func New() *Throttle {
	return &Throttle{
		threshold: DefaultThreshold,
		limiter:   rate.NewLimiter(rate.Limit(RefillRate), BurstCap),
	}
}

// Allow reports whether a chunk of length n bytes should be passed through
// right now. Below threshold, every chunk passes; above it, a chunk is
// allowed only when the bucket holds at least n tokens.
func (t *Throttle) Allow(n int) bool {
	if t.sentBytes < t.threshold {
		return true
	}
	return t.limiter.AllowN(time.Now(), n)
}

// RecordSent accrues n bytes against the command-byte counter that
// determines whether throttling is active, logging once when the
// threshold is first crossed so a noisy command's throttling is visible.
func (t *Throttle) RecordSent(n int) {
	wasBelow := t.sentBytes < t.threshold
	t.sentBytes += int64(n)
	if wasBelow && t.sentBytes >= t.threshold {
		logger.Debug("throttle: threshold crossed, engaging rate limit",
			"sent", humanize.Bytes(uint64(t.sentBytes)), "threshold", humanize.Bytes(uint64(t.threshold)))
	}
}

// Reset zeroes the sent-byte counter and refills the bucket to full, for
// use at command boundaries.
func (t *Throttle) Reset() {
	t.sentBytes = 0
	t.limiter = rate.NewLimiter(rate.Limit(RefillRate), BurstCap)
}
