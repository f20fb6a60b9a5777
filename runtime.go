package queueworker

import (
	"context"
	"fmt"
)

// Runtime is the per-process context handed to adapters. It owns nonce
// admission, handler dispatch, and callback fan-out so that every adapter
// applies the same at-most-once and disposition rules.
type Runtime struct {
	queue      Queue
	opts       Options
	handler    Handler
	hooks      Hooks
	logger     Logger
	gate       NonceGate
	serializer Serializer
	verifier   Verifier
	metrics    *workerMetrics
}

// NewRuntime builds a standalone runtime context. Workers create their own
// runtime on Start; this constructor exists for adapter implementations
// and their tests.
func NewRuntime(queue Queue, handler Handler, opts ...Option) *Runtime {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.gate == nil {
		cfg.gate = NewMemoryGate(defaultGateBytes, defaultGateTTL)
	}
	metrics, err := newWorkerMetrics(cfg.meter)
	if err != nil {
		cfg.logger.Warn(context.Background(), "metrics disabled", "err", err)
	}
	return &Runtime{
		queue:      queue,
		opts:       cfg.opts,
		handler:    handler,
		hooks:      cfg.hooks,
		logger:     cfg.logger,
		gate:       cfg.gate,
		serializer: cfg.serializer,
		verifier:   cfg.verifier,
		metrics:    metrics,
	}
}

func (rt *Runtime) Queue() Queue           { return rt.queue }
func (rt *Runtime) Options() Options       { return rt.opts }
func (rt *Runtime) Logger() Logger         { return rt.logger }
func (rt *Runtime) Serializer() Serializer { return rt.serializer }
func (rt *Runtime) Verifier() Verifier     { return rt.verifier }

// Outcome is the broker disposition an adapter must apply after Dispatch.
type Outcome int

const (
	// OutcomeAck: the handler succeeded; remove the message.
	OutcomeAck Outcome = iota

	// OutcomeDuplicate: nonce admission failed; remove the message
	// without a handler call.
	OutcomeDuplicate

	// OutcomeReject: the handler failed or aborted; apply the retry
	// policy via RetryDecision.
	OutcomeReject
)

// DispatchResult reports what happened to a dispatched message.
type DispatchResult struct {
	Outcome Outcome

	// Aborted is true when the handler requested rejection via
	// Args.Abort instead of returning an error.
	Aborted bool

	// Err is the handler error, nil for an abort-only rejection.
	Err error
}

// Dispatch runs nonce admission and the handler for msg. Handler panics
// are recovered into errors and routed to OnError; abort-only rejections
// skip OnError.
func (rt *Runtime) Dispatch(ctx context.Context, msg *Message) DispatchResult {
	if !rt.gate.Admit(msg.ID) {
		rt.logger.Debug(ctx, "duplicate message dropped", "queue", rt.queue.Name, "message", msg.ID)
		rt.metrics.add(ctx, rt.metrics.duplicates, rt.queue.Name)
		return DispatchResult{Outcome: OutcomeDuplicate}
	}
	rt.metrics.add(ctx, rt.metrics.processed, rt.queue.Name)

	args := msg.args()
	err := rt.invokeHandler(ctx, msg, args)
	if err != nil {
		rt.gate.Failed(msg.ID)
		rt.ReportError(err, msg)
		return DispatchResult{Outcome: OutcomeReject, Err: err}
	}
	if args.Abort {
		rt.gate.Failed(msg.ID)
		return DispatchResult{Outcome: OutcomeReject, Aborted: true}
	}
	rt.gate.Complete(msg.ID)
	return DispatchResult{Outcome: OutcomeAck}
}

func (rt *Runtime) invokeHandler(ctx context.Context, msg *Message, args *Args) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queueworker: handler panic: %v", r)
		}
	}()
	return rt.handler.Handle(ctx, msg.Content, args)
}

// RetryDecision is the terminal branch of the reject path.
type RetryDecision int

const (
	// RetrySchedule: reschedule with a backoff delay and report OnRetry.
	RetrySchedule RetryDecision = iota

	// RetryExceeded: drop terminally and report OnRetryExceeded.
	RetryExceeded

	// RetryForbidden: the queue disallows retries; drop with no callback.
	RetryForbidden
)

// DecideRetry maps a message's retry count onto the queue policy.
// Exhaustion wins over AllowRetry so terminal rejections are always
// reported.
func (rt *Runtime) DecideRetry(retryAttempts int) RetryDecision {
	if retryAttempts >= rt.queue.MaxRetryAttempts {
		return RetryExceeded
	}
	if !rt.queue.AllowRetry {
		return RetryForbidden
	}
	return RetrySchedule
}

// ReportError routes an error to OnError. msg may be nil for failures
// before parse.
func (rt *Runtime) ReportError(err error, msg *Message) {
	if err == nil {
		return
	}
	id := ""
	if msg != nil {
		id = msg.ID
	}
	rt.logger.Error(context.Background(), "worker error", "queue", rt.queue.Name, "message", id, "err", err)
	if rt.hooks.OnError == nil {
		return
	}
	defer rt.recoverHook("on_error")
	rt.hooks.OnError(err, msg)
}

// ReportRetry records a successful reschedule.
func (rt *Runtime) ReportRetry(ctx context.Context, msg *Message, aborted bool) {
	rt.metrics.add(ctx, rt.metrics.retries, rt.queue.Name)
	if rt.hooks.OnRetry == nil {
		return
	}
	defer rt.recoverHook("on_retry")
	rt.hooks.OnRetry(msg, aborted)
}

// ReportRetryExceeded records a terminal rejection.
func (rt *Runtime) ReportRetryExceeded(ctx context.Context, msg *Message) {
	rt.logger.Warn(ctx, "retry budget exhausted", "queue", rt.queue.Name, "message", msg.ID, "attempts", msg.RetryAttempts)
	rt.metrics.add(ctx, rt.metrics.retriesExceeded, rt.queue.Name)
	if rt.hooks.OnRetryExceeded == nil {
		return
	}
	defer rt.recoverHook("on_retry_exceeded")
	rt.hooks.OnRetryExceeded(msg)
}

func (rt *Runtime) recoverHook(name string) {
	if r := recover(); r != nil {
		rt.logger.Error(context.Background(), "callback panic", "hook", name, "queue", rt.queue.Name, "panic", r)
	}
}
