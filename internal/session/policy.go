package session

import "time"

// RetryPolicy bounds reconnection after unexpected disconnects. The contract
// is fixed (bounded retries, then terminal Failed); the numbers are tunable.
type RetryPolicy struct {
	// MaxAttempts is the number of reconnect attempts before giving up.
	MaxAttempts int
	// Delay is the wait before the first reconnect attempt.
	Delay time.Duration
	// BackoffFactor multiplies the delay per subsequent attempt.
	// Values <= 1 keep the delay fixed.
	BackoffFactor float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   5,
		Delay:         5 * time.Second,
		BackoffFactor: 1,
	}
}

// DelayFor returns the wait before the given 1-based attempt.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	d := p.Delay
	if d <= 0 {
		return 0
	}
	if p.BackoffFactor > 1 {
		for i := 1; i < attempt; i++ {
			d = time.Duration(float64(d) * p.BackoffFactor)
		}
	}
	return d
}
