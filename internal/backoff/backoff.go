// Package backoff provides an opt-in jittered exponential backoff for
// client connection and reconnection attempts. When enabled it replaces the
// protocol's flat connectionDelay gap (session.ClientProperties.ConnectionDelay).
package backoff

import (
	"math/rand"
	"time"
)

// Config describes a jittered exponential backoff schedule. The zero value
// disables backoff entirely: callers should fall back to a flat delay.
type Config struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	Jitter     float64 // fraction of the computed delay to randomize, e.g. 0.2
}

// Enabled reports whether this config describes a real backoff schedule.
func (c Config) Enabled() bool {
	return c.BaseDelay > 0 && c.Multiplier > 0
}

// Next computes the delay before the given attempt number (0-based),
// applying exponential growth bounded by MaxDelay and randomized by Jitter.
func Next(attempt int, cfg Config, rnd *rand.Rand) time.Duration {
	if !cfg.Enabled() {
		return 0
	}
	delay := float64(cfg.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= cfg.Multiplier
		if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
			delay = float64(cfg.MaxDelay)
			break
		}
	}
	if cfg.Jitter > 0 {
		spread := delay * cfg.Jitter
		delay += (rnd.Float64()*2 - 1) * spread
		if delay < 0 {
			delay = 0
		}
	}
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
