// Package backoff computes retry delays for rescheduled queue messages.
package backoff

import "time"

// MaxVisibility is the longest delay a visibility-timeout broker accepts.
const MaxVisibility = 43200 * time.Second

// Policy holds the per-queue retry delay settings.
type Policy struct {
	Enabled  bool // linear backoff; flat delay when false
	Delay    time.Duration
	MaxDelay time.Duration
}

// Delay returns how long the given attempt should wait before redelivery.
// attempt is 1-indexed on the attempt being scheduled.
func Delay(attempt int, p Policy) time.Duration {
	if !p.Enabled {
		return p.Delay
	}
	if attempt < 0 {
		attempt = 0
	}
	d := time.Duration(attempt) * p.Delay
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// VisibilitySeconds converts a delay to the whole-second visibility timeout
// accepted by cloud queues, rounding down and clamping to MaxVisibility.
func VisibilitySeconds(d time.Duration) int32 {
	if d < 0 {
		return 0
	}
	if d > MaxVisibility {
		d = MaxVisibility
	}
	return int32(d / time.Second)
}
