package graph

import (
	"errors"
	"time"
)

// BackoffStrategy defines different backoff strategies
type BackoffStrategy int

const (
	FixedBackoff BackoffStrategy = iota
	ExponentialBackoff
	LinearBackoff
)

// RetryPolicy defines how to handle node failures.
//
// A failed node is re-run from its input state. Only errors matching one of RetryableErrors
// (via errors.Is) are retried; an empty list retries nothing.
type RetryPolicy struct {
	MaxRetries      int
	BackoffStrategy BackoffStrategy
	// BaseDelay defaults to one second.
	BaseDelay       time.Duration
	RetryableErrors []error
}

// Retryable reports whether err matches the policy.
func (p *RetryPolicy) Retryable(err error) bool {
	if p == nil {
		return false
	}
	for _, target := range p.RetryableErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Delay returns how long to wait before retry number attempt+1.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	if p == nil {
		return 0
	}
	base := p.BaseDelay
	if base == 0 {
		base = time.Second
	}

	switch p.BackoffStrategy {
	case ExponentialBackoff:
		// 1x, 2x, 4x, 8x, ...
		return base * time.Duration(1<<attempt)
	case LinearBackoff:
		// 1x, 2x, 3x, 4x, ...
		return base * time.Duration(attempt+1)
	default:
		return base
	}
}
