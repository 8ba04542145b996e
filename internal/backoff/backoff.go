// Package backoff computes inter-attempt delays for retried operations.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy is a delay-calculation algorithm. attempt is 0-based: attempt 0
// is the delay after the first failure.
type Strategy interface {
	Delay(attempt int, initial, max time.Duration, factor, jitter float64) time.Duration
}

// ExponentialJitter grows the delay geometrically (initial * factor^attempt,
// capped at max) and adds uniform jitter up to jitter*delay.
type ExponentialJitter struct{}

// Delay implements Strategy.
func (ExponentialJitter) Delay(attempt int, initial, max time.Duration, factor, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Beyond 30 doublings any realistic initial delay has hit the cap.
	if attempt > 30 {
		attempt = 30
	}

	delay := time.Duration(float64(initial) * pow(factor, attempt))
	if delay < 0 || delay > max {
		delay = max
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		extra := time.Duration(float64(delay) * jitter * rand.Float64())
		if delay+extra > max {
			delay = max
		} else {
			delay += extra
		}
	}
	return delay
}

// DecorrelatedJitter draws the delay uniformly from [initial, initial*3^attempt],
// capped at max. Compared to plain exponential jitter it spreads concurrent
// retries more evenly.
type DecorrelatedJitter struct{}

// Delay implements Strategy.
func (DecorrelatedJitter) Delay(attempt int, initial, max time.Duration, _, _ float64) time.Duration {
	if attempt <= 0 {
		return initial
	}
	if attempt > 10 {
		attempt = 10
	}

	base := float64(initial)
	upper := base * pow(3.0, attempt)
	if upper > float64(max) || upper < 0 {
		upper = float64(max)
	}
	if upper < base {
		upper = base
	}

	delay := time.Duration(base + rand.Float64()*(upper-base))
	if delay < 0 || delay > max {
		delay = max
	}
	return delay
}

func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
