package sink

import (
	"fmt"
	"net/http"
	"time"
)

// RetryConfig bounds the retries of a single batch delivery.
type RetryConfig struct {
	// InitialRetryDelay is the delay before the first retry.
	InitialRetryDelay time.Duration
	// MaxRetryDelay caps the exponentially growing delay.
	MaxRetryDelay time.Duration
	// MaxRetryCount is the number of retries after the first attempt, so a
	// batch is attempted at most MaxRetryCount+1 times.
	MaxRetryCount int
}

// DefaultRetryConfig returns the stock retry policy: 30ms initial delay
// doubling up to 5s, at most 100 retries per batch.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialRetryDelay: 30 * time.Millisecond,
		MaxRetryDelay:     5 * time.Second,
		MaxRetryCount:     100,
	}
}

func (c RetryConfig) validate() error {
	if c.InitialRetryDelay < 0 {
		return fmt.Errorf("initial retry delay must not be negative, got %s", c.InitialRetryDelay)
	}
	if c.MaxRetryDelay < c.InitialRetryDelay {
		return fmt.Errorf("max retry delay %s is below the initial retry delay %s", c.MaxRetryDelay, c.InitialRetryDelay)
	}
	if c.MaxRetryCount < 0 {
		return fmt.Errorf("max retry count must not be negative, got %d", c.MaxRetryCount)
	}
	return nil
}

// Delay returns the backoff delay after the given 1-based attempt fails:
// the initial delay doubled per subsequent attempt, capped at MaxRetryDelay.
// The sequence is non-decreasing.
func (c RetryConfig) Delay(attempt int) time.Duration {
	if c.InitialRetryDelay <= 0 {
		return 0
	}
	delay := c.InitialRetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		// The negative check catches overflow on absurd attempt counts.
		if delay >= c.MaxRetryDelay || delay < 0 {
			return c.MaxRetryDelay
		}
	}
	if delay > c.MaxRetryDelay {
		return c.MaxRetryDelay
	}
	return delay
}

// retriableStatus reports whether a remote status code is worth another
// attempt: 429 and the 5xx class.
func retriableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code < 600)
}
