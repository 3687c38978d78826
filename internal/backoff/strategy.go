// Package backoff computes inter-attempt delays for the retry executor.
package backoff

import (
	"math/rand"
	"time"
)

// Params are the policy values every strategy reads.
type Params struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	// Jitter is the fraction of the delay added at random, clamped to [0, 1].
	Jitter float64
}

// Strategy returns the delay to wait after the failed attempt with the given
// 0-based number.
type Strategy interface {
	Delay(attempt int, p Params) time.Duration
}

// randFloat is swapped in tests for deterministic jitter.
var randFloat = rand.Float64

// Exponential grows the delay as Initial*Multiplier^attempt, capped at Max,
// and adds up to Jitter*delay on top without exceeding Max. With
// Multiplier >= 1+Jitter successive delays never decrease.
type Exponential struct{}

func (Exponential) Delay(attempt int, p Params) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Prevent overflow by limiting attempt
	if attempt > 30 {
		attempt = 30
	}

	delay := time.Duration(float64(p.Initial) * Pow(p.Multiplier, attempt))
	if delay < 0 || delay > p.Max {
		delay = p.Max
	}

	jitter := clampJitter(p.Jitter)
	if jitter > 0 {
		extra := time.Duration(float64(delay) * jitter * randFloat())
		if delay+extra > p.Max {
			delay = p.Max
		} else {
			delay += extra
		}
	}
	return delay
}

// Decorrelated picks uniformly in [Initial, min(Max, Initial*3^attempt)].
// See https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
type Decorrelated struct{}

func (Decorrelated) Delay(attempt int, p Params) time.Duration {
	if attempt <= 0 {
		return p.Initial
	}
	if attempt > 10 {
		attempt = 10
	}

	base := float64(p.Initial)
	upper := base * Pow(3.0, attempt)
	if upper > float64(p.Max) || upper < 0 {
		upper = float64(p.Max)
	}
	if upper < base {
		upper = base
	}

	result := time.Duration(base + randFloat()*(upper-base))
	if result < 0 || result > p.Max {
		result = p.Max
	}
	return result
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

// Pow calculates base^exponent using integer exponentiation.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
