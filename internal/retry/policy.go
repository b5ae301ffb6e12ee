package retry

import (
	"fmt"
	"time"

	"git.home.luguber.info/inful/datapub/internal/config"
)

// Policy describes how repeated attempts are spaced out. A policy is a
// value and never mutated after construction, so it is safe to share
// between goroutines.
type Policy struct {
	Mode    config.RetryBackoffMode
	Initial time.Duration // delay before the first retry
	Max     time.Duration // growth ceiling for linear and exponential modes

	// MaxRetries caps retries after the initial attempt; zero leaves the
	// loop bounded by its deadline alone.
	MaxRetries int
}

// NewPolicy builds a policy, substituting defaults for zero or invalid
// inputs: linear mode, one second initial, thirty second cap, no retry cap.
func NewPolicy(mode config.RetryBackoffMode, initial, limit time.Duration, maxRetries int) Policy {
	p := Policy{
		Mode:    config.RetryBackoffLinear,
		Initial: time.Second,
		Max:     30 * time.Second,
	}
	switch mode {
	case config.RetryBackoffFixed, config.RetryBackoffLinear, config.RetryBackoffExponential:
		p.Mode = mode
	}
	if initial > 0 {
		p.Initial = initial
	}
	if limit > 0 {
		p.Max = limit
	}
	if maxRetries > 0 {
		p.MaxRetries = maxRetries
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// Delay returns the wait before retry number n, where the first retry is 1.
func (p Policy) Delay(n int) time.Duration {
	if n <= 0 {
		return 0
	}

	var d time.Duration
	switch p.Mode {
	case config.RetryBackoffFixed:
		return p.Initial
	case config.RetryBackoffExponential:
		d = p.Initial * (1 << (n - 1))
	default:
		d = time.Duration(n) * p.Initial
	}
	if d > p.Max {
		return p.Max
	}
	return d
}

// Validate rejects policies that could never schedule a retry.
func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return fmt.Errorf("initial delay must be positive")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max delay must be positive")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}
