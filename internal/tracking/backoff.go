package tracking

import (
	"math/rand"
	"time"
)

// backoffConfig shapes the retry delay after transient carrier failures.
type backoffConfig struct {
	base   time.Duration
	cap    time.Duration
	jitter float64 // fraction of the delay added as random jitter
}

var defaultBackoff = backoffConfig{
	base:   5 * time.Second,
	cap:    30 * time.Minute,
	jitter: 0.2,
}

// nextDelay returns the delay before retry number attempt (1-based):
// exponential doubling from base, capped, plus jitter so a fleet of
// failing shipments does not re-poll in lockstep.
func (b backoffConfig) nextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.cap {
			d = b.cap
			break
		}
	}
	if b.jitter > 0 {
		d += time.Duration(rand.Float64() * b.jitter * float64(d))
		if d > b.cap {
			d = b.cap
		}
	}
	return d
}
