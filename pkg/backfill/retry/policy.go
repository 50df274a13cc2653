package retry

import (
	"math"
	"time"

	"github.com/tigerroll/solarback/pkg/support/exception"
)

// RetryPolicy is an interface that defines retry logic for transient fetch failures.
// It provides methods to determine if a specific error is retryable,
// and to determine the backoff interval between retries.
type RetryPolicy interface {
	// ShouldRetry determines if a given error is retryable.
	// err: The error to evaluate.
	// Returns: true if the error is retryable, false otherwise.
	ShouldRetry(err error) bool
	// GetBackoffInterval returns the backoff interval for a given attempt number.
	// attempt: The current attempt number (starting from 1).
	// Returns: The waiting time until the next retry.
	GetBackoffInterval(attempt int) time.Duration
	// GetMaxAttempts returns the maximum number of attempts.
	GetMaxAttempts() int
}

// DefaultRetryPolicyFactory is a factory for creating RetryPolicy.
// This factory generates instances of exponentialRetryPolicy based on configuration.
type DefaultRetryPolicyFactory struct{}

// NewDefaultRetryPolicyFactory creates a new DefaultRetryPolicyFactory.
func NewDefaultRetryPolicyFactory() *DefaultRetryPolicyFactory {
	return &DefaultRetryPolicyFactory{}
}

// Create creates a new RetryPolicy instance based on the given settings.
//
// maxAttempts: The maximum number of attempts (including the first).
// initialInterval: The waiting time until the first retry.
// maxInterval: The upper bound on any single backoff interval.
// factor: The multiplier applied to the interval per attempt (e.g., 2.0).
// retryableExceptions: A list of string representations of error types considered retryable.
func (f *DefaultRetryPolicyFactory) Create(maxAttempts int, initialInterval, maxInterval time.Duration, factor float64, retryableExceptions []string) RetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if factor < 1 {
		factor = 1
	}
	return &exponentialRetryPolicy{
		maxAttempts:         maxAttempts,
		initialInterval:     initialInterval,
		maxInterval:         maxInterval,
		factor:              factor,
		retryableExceptions: retryableExceptions,
	}
}

// exponentialRetryPolicy is the default implementation of RetryPolicy.
// It applies bounded exponential backoff between attempts.
type exponentialRetryPolicy struct {
	maxAttempts         int
	initialInterval     time.Duration
	maxInterval         time.Duration
	factor              float64
	retryableExceptions []string
}

// GetMaxAttempts returns the maximum number of attempts.
func (p *exponentialRetryPolicy) GetMaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry determines if an error is retryable.
// The determination is based on the IsRetryable flag of BatchError, or by matching
// against the configured list of retryable exceptions.
func (p *exponentialRetryPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	// 1. Check BatchError flag
	if be, ok := err.(*exception.BatchError); ok && be.IsRetryable() {
		return true
	}

	// 2. Match against configured retryable exceptions list
	for _, typeName := range p.retryableExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}

	return false
}

// GetBackoffInterval returns the backoff interval for the specified attempt number.
// The interval grows by the configured factor per attempt and is capped at maxInterval.
func (p *exponentialRetryPolicy) GetBackoffInterval(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	interval := time.Duration(float64(p.initialInterval) * math.Pow(p.factor, float64(attempt-1)))
	if p.maxInterval > 0 && interval > p.maxInterval {
		interval = p.maxInterval
	}
	return interval
}

// Verify interfaces
var _ RetryPolicy = (*exponentialRetryPolicy)(nil)
