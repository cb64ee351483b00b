package asyncjob

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Strategy selects how waits between polls are paced.
type Strategy int

// Pacing strategies.
const (
	// StrategyFixed waits Interval between every poll.
	StrategyFixed Strategy = iota
	// StrategyExponential waits Interval, Interval*Multiplier, ... capped at MaxInterval.
	StrategyExponential
)

const defaultMultiplier = 2.0

// Policy validation errors.
var (
	ErrPolicyUnbounded = errors.New("poll policy needs max attempts or a timeout")
	ErrPolicyInterval  = errors.New("poll policy interval must be positive")
	ErrPolicyNegative  = errors.New("poll policy bounds must not be negative")
)

// PollPolicy bounds and paces AwaitCompletion.
type PollPolicy struct {
	// MaxAttempts is the number of status queries allowed. Zero means no attempt bound.
	MaxAttempts int

	// Timeout bounds the elapsed polling time. Zero means no time bound.
	Timeout time.Duration

	Strategy Strategy

	// Interval is the fixed wait, or the first wait for StrategyExponential.
	Interval time.Duration

	// MaxInterval caps exponential waits. Zero leaves them uncapped.
	MaxInterval time.Duration

	// Multiplier is the exponential growth factor. Zero means 2.
	Multiplier float64
}

// FixedPolicy polls at a constant interval, at most maxAttempts times.
func FixedPolicy(maxAttempts int, interval time.Duration) PollPolicy {
	return PollPolicy{
		MaxAttempts: maxAttempts,
		Strategy:    StrategyFixed,
		Interval:    interval,
	}
}

// ExponentialPolicy polls with waits of base, base*2, base*4, ... never longer than limit.
// With base = 2s this is min(limit, 2^attempt) seconds.
func ExponentialPolicy(maxAttempts int, base, limit time.Duration) PollPolicy {
	return PollPolicy{
		MaxAttempts: maxAttempts,
		Strategy:    StrategyExponential,
		Interval:    base,
		MaxInterval: limit,
		Multiplier:  defaultMultiplier,
	}
}

// WithTimeout returns a copy of p with an elapsed-time bound.
func (p PollPolicy) WithTimeout(timeout time.Duration) PollPolicy {
	p.Timeout = timeout

	return p
}

// Validate rejects policies that could poll forever or never wait.
func (p PollPolicy) Validate() error {
	if p.MaxAttempts < 0 || p.Timeout < 0 || p.MaxInterval < 0 || p.Multiplier < 0 {
		return ErrPolicyNegative
	}

	if p.MaxAttempts == 0 && p.Timeout == 0 {
		return ErrPolicyUnbounded
	}

	if p.Interval <= 0 {
		return fmt.Errorf("%w: got %s", ErrPolicyInterval, p.Interval)
	}

	return nil
}

// newBackOff builds the pacing sequence for one AwaitCompletion call.
// Randomisation is disabled so waits are reproducible.
func (p PollPolicy) newBackOff() backoff.BackOff {
	if p.Strategy != StrategyExponential {
		return backoff.NewConstantBackOff(p.Interval)
	}

	multiplier := p.Multiplier
	if multiplier == 0 {
		multiplier = defaultMultiplier
	}

	maxInterval := p.MaxInterval
	if maxInterval == 0 {
		maxInterval = time.Duration(1<<63 - 1)
	}

	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = p.Interval
	exponential.RandomizationFactor = 0
	exponential.Multiplier = multiplier
	exponential.MaxInterval = maxInterval
	exponential.MaxElapsedTime = 0
	exponential.Reset()

	return exponential
}

// Waits returns the first n waits the policy would apply between polls.
func (p PollPolicy) Waits(n int) []time.Duration {
	pacer := p.newBackOff()
	waits := make([]time.Duration, 0, n)

	for range n {
		waits = append(waits, pacer.NextBackOff())
	}

	return waits
}
