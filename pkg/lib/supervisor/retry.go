package supervisor

import "time"

// RetryPolicy bounds how often a crawl that exits with a non-zero code is relaunched.
type RetryPolicy struct {
	// MaxRetries is the number of relaunches after the first attempt. Zero disables retries.
	MaxRetries int
	// Backoff is the delay before the first retry.
	Backoff time.Duration
	// Multiplier scales the delay for every following retry. Values below 1 mean a fixed delay.
	Multiplier float64
	// MaxBackoff caps the delay. Zero means no cap.
	MaxBackoff time.Duration
}

// DefaultRetryPolicy allows two retries, 2s apart and doubling.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 2,
	Backoff:    2 * time.Second,
	Multiplier: 2,
	MaxBackoff: 30 * time.Second,
}

// MaxAttempts is the total number of launches a run may make.
func (p RetryPolicy) MaxAttempts() int {
	return 1 + max(p.MaxRetries, 0)
}

// ShouldRetry reports whether a run whose attempt just failed may launch again.
func (p RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts()
}

// Delay is the wait before launching attempt+1, after attempt failed.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.Backoff
	if d <= 0 {
		return 0
	}
	if p.Multiplier > 1 {
		for i := 1; i < attempt; i++ {
			d = time.Duration(float64(d) * p.Multiplier)
			if p.MaxBackoff > 0 && d >= p.MaxBackoff {
				break
			}
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}
