// Package backoff computes exponential retry delays with jitter.
package backoff

import (
	"math/rand"
	"time"
)

// Policy describes an exponential backoff schedule. Delay for attempt n is
// Base*Factor^n capped at Max, with up to Jitter fraction of random spread.
type Policy struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64 // 0..1 fraction of the delay randomized
}

// Default is the schedule used for startup dependency retries.
var Default = Policy{
	Base:   250 * time.Millisecond,
	Max:    10 * time.Second,
	Factor: 2,
	Jitter: 0.2,
}

// Delay returns the wait before retry attempt n (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.Base)
	for i := 0; i < attempt; i++ {
		d *= p.Factor
		if d >= float64(p.Max) {
			d = float64(p.Max)
			break
		}
	}
	if p.Jitter > 0 {
		spread := d * p.Jitter
		d = d - spread/2 + rand.Float64()*spread
	}
	if d > float64(p.Max) {
		d = float64(p.Max)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
