// Package queueworker is a broker-agnostic queue consumption runtime. A
// Worker pulls messages from a broker adapter, dispatches them to a
// user-supplied handler, and orchestrates acknowledgement, deduplication,
// and retry with backoff. Delivery is at-least-once; a bounded nonce store
// suppresses duplicate handler invocations per process.
package queueworker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

var (
	ErrAdapterRequired   = errors.New("queueworker: adapter required")
	ErrHandlerRequired   = errors.New("queueworker: handler required")
	ErrQueueNameRequired = errors.New("queueworker: queue name required")
	ErrAlreadyRunning    = errors.New("queueworker: worker already running")
)

// Worker drives an Adapter with a pool of consumer goroutines, optionally
// fanned out over child processes. A Worker runs one queue at a time and
// is reusable after Stop.
type Worker struct {
	adapter Adapter
	cfg     config
	metrics *workerMetrics

	running atomic.Bool
	lastGC  atomic.Int64
	book    statusBook

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New validates the adapter and applies options. The worker does not touch
// the broker until Start.
func New(adapter Adapter, opts ...Option) (*Worker, error) {
	if adapter == nil {
		return nil, ErrAdapterRequired
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.gate == nil {
		cfg.gate = NewMemoryGate(defaultGateBytes, defaultGateTTL)
	}
	metrics, err := newWorkerMetrics(cfg.meter)
	if err != nil {
		return nil, fmt.Errorf("queueworker: create metrics: %w", err)
	}
	return &Worker{adapter: adapter, cfg: cfg, metrics: metrics}, nil
}

// Start begins consuming queue with handler. With Wait (the default) it
// blocks until every consumer has exited; otherwise it returns once the
// consumers are running. Starting a running worker is an error.
func (w *Worker) Start(ctx context.Context, queue Queue, handler Handler) error {
	if handler == nil {
		return ErrHandlerRequired
	}
	if queue.Name == "" {
		return ErrQueueNameRequired
	}
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	if err := w.adapter.Configure(queue, w.cfg.opts); err != nil {
		w.running.Store(false)
		return fmt.Errorf("queueworker: configure adapter: %w", err)
	}
	if w.cfg.opts.ForkCount > 0 && !isChildProcess() {
		return w.supervise(ctx)
	}
	return w.runProcess(ctx, queue, handler)
}

// Stop flips the running flag, cancels the consumer context, and releases
// the adapter. Consumers observe the flag at the top of their next
// iteration; Stop does not join them.
func (w *Worker) Stop() {
	if !w.running.CompareAndSwap(true, false) {
		return
	}
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if err := w.adapter.Stop(); err != nil {
		w.cfg.logger.Error(context.Background(), "adapter stop", "err", err)
	}
}

// Running reports whether the worker accepts new fetches.
func (w *Worker) Running() bool { return w.running.Load() }

// Status returns the process and consumer roster recorded at start-up.
func (w *Worker) Status() Status { return w.book.snapshot() }

func (w *Worker) ForkCount() int                 { return w.cfg.opts.ForkCount }
func (w *Worker) ThreadCount() int               { return w.cfg.opts.ThreadCount }
func (w *Worker) SleepInterval() time.Duration   { return w.cfg.opts.SleepInterval }
func (w *Worker) GCFlushInterval() time.Duration { return w.cfg.opts.GCFlushInterval }
func (w *Worker) PollWait() time.Duration        { return w.cfg.opts.PollWait }

func (w *Worker) runProcess(ctx context.Context, queue Queue, handler Handler) error {
	// The consumer context outlives this call when Wait is disabled; Stop
	// owns its cancellation.
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	rt := &Runtime{
		queue:      queue,
		opts:       w.cfg.opts,
		handler:    handler,
		hooks:      w.cfg.hooks,
		logger:     w.cfg.logger,
		gate:       w.cfg.gate,
		serializer: w.cfg.serializer,
		verifier:   w.cfg.verifier,
		metrics:    w.metrics,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case s := <-sigCh:
			w.cfg.logger.Info(ctx, "signal received, stopping", "signal", s.String(), "queue", queue.Name)
			w.Stop()
		case <-ctx.Done():
		}
	}()

	w.book.addProcess(os.Getpid(), w.cfg.opts.ThreadCount)
	w.lastGC.Store(time.Now().UnixNano())

	if err := w.adapter.PreProcess(ctx, rt); err != nil {
		w.running.Store(false)
		cancel()
		return fmt.Errorf("queueworker: pre-process: %w", err)
	}

	threads := w.cfg.opts.ThreadCount
	if threads == 0 {
		w.consumeLoop(ctx, rt, 0)
		return nil
	}
	var wg sync.WaitGroup
	for i := 1; i <= threads; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.consumeLoop(ctx, rt, id)
		}(i)
	}
	if w.cfg.opts.Wait {
		wg.Wait()
	}
	return nil
}

// consumeLoop is the per-consumer fetch loop. Fetch and handler errors are
// reported and survived; anything else escaping the adapter kills the
// process so a supervisor can respawn it.
func (w *Worker) consumeLoop(ctx context.Context, rt *Runtime, id int) {
	defer func() {
		if r := recover(); r != nil {
			rt.ReportError(fmt.Errorf("queueworker: consumer %d: fatal: %v", id, r), nil)
			panic(r)
		}
	}()
	for w.running.Load() {
		if ctx.Err() != nil {
			return
		}
		received, err := w.adapter.FetchAndProcess(ctx, rt)
		w.metrics.add(ctx, w.metrics.fetches, rt.queue.Name)
		if err != nil {
			rt.ReportError(err, nil)
		}
		w.flushGC(ctx, rt)
		if !received && w.cfg.opts.SleepInterval > 0 {
			w.idle(ctx, w.cfg.opts.SleepInterval)
		}
	}
}

func (w *Worker) idle(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// flushGC forces a collection at most once per GCFlushInterval across all
// consumers of this process.
func (w *Worker) flushGC(ctx context.Context, rt *Runtime) {
	interval := w.cfg.opts.GCFlushInterval
	if interval <= 0 {
		return
	}
	now := time.Now().UnixNano()
	last := w.lastGC.Load()
	if now-last < int64(interval) {
		return
	}
	if !w.lastGC.CompareAndSwap(last, now) {
		return
	}
	runtime.GC()
	w.metrics.add(ctx, w.metrics.gcFlushes, rt.queue.Name)
}
