package queueworker

import "context"

// Adapter binds the worker to a concrete broker. Implementations live
// under driver/ and must be safe for concurrent FetchAndProcess calls
// from multiple consumer goroutines.
type Adapter interface {
	// Configure validates and stores adapter-specific settings. Called
	// once per Start, before any process or goroutine spawns.
	Configure(queue Queue, opts Options) error

	// PreProcess runs once per worker process before consumers spawn.
	PreProcess(ctx context.Context, rt *Runtime) error

	// FetchAndProcess pulls at most one message, dispatches it through
	// rt.Dispatch and issues exactly one broker disposition for it.
	// It reports whether a message was handled; returned errors are
	// routed to OnError by the caller and do not stop the consumer.
	FetchAndProcess(ctx context.Context, rt *Runtime) (bool, error)

	// Stop releases adapter-held resources. Idempotent.
	Stop() error
}
