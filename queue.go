package queueworker

import "time"

// Queue describes a consumed queue and its retry policy. Values are
// immutable once a worker has started.
type Queue struct {
	Name string

	// MaxRetryAttempts is the delivery-failure budget. A message whose
	// retry count reaches this value is terminally rejected.
	MaxRetryAttempts int

	// AllowRetry gates rescheduling entirely. When false a failed message
	// is rejected from the queue with no retry publish and no callback,
	// unless its retry budget is already exhausted.
	AllowRetry bool

	// AllowRetryBackoff switches the retry delay from flat RetryDelay to
	// linear attempt*RetryDelay capped at MaxRetryDelay.
	AllowRetryBackoff bool

	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}
