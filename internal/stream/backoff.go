// internal/stream/backoff.go
package stream

import "time"

const (
	backoffMaxExponent = 6
	jitterFraction     = 0.25
	minReconnectDelay  = time.Second
)

// BackoffDelay returns base * 2^min(attempts,6), capped at max.
// It is non-decreasing in attempts.
func BackoffDelay(attempts uint, base, max time.Duration) time.Duration {
	exp := attempts
	if exp > backoffMaxExponent {
		exp = backoffMaxExponent
	}
	d := base * time.Duration(1<<exp)
	if d > max {
		d = max
	}
	return d
}

// Jitter spreads d by +/-25% using r in [0,1) and floors the result at one second.
func Jitter(d time.Duration, r float64) time.Duration {
	f := 1 + (2*r-1)*jitterFraction
	out := time.Duration(float64(d) * f)
	if out < minReconnectDelay {
		out = minReconnectDelay
	}
	return out
}
