// Package backoff computes how long to wait between retries.
package backoff

import (
	"math"
	"time"
)

// Strategy returns the delay before the next try, given how many attempts
// have been made so far. Attempts start at 1.
type Strategy func(attempts uint) time.Duration

// Constant waits interval between every attempt.
func Constant(interval time.Duration) Strategy {
	return func(uint) time.Duration {
		return interval
	}
}

// BinaryExponential doubles the delay on each attempt, starting at base.
// Delays that would overflow saturate at the largest time.Duration.
//
// Ex. BinaryExponential(time.Second) = 1s, 2s, 4s, 8s, ...
func BinaryExponential(base time.Duration) Strategy {
	return func(attempts uint) time.Duration {
		if attempts <= 1 {
			return base
		}

		shift := attempts - 1
		if shift >= 63 || base > math.MaxInt64>>shift {
			return math.MaxInt64
		}
		return base << shift
	}
}
