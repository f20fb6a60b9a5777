// Package inmem is a channel-backed broker for tests and examples.
// Rejected messages are redelivered after the queue's backoff delay using
// real timers; there is no persistence.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	queueworker "github.com/infigaming-com/go-queueworker"
	"github.com/infigaming-com/go-queueworker/internal/backoff"
)

type Adapter struct {
	msgs chan *queueworker.Message

	mu      sync.Mutex
	queue   queueworker.Queue
	opts    queueworker.Options
	policy  backoff.Policy
	stopped bool
}

func New(buffer int) *Adapter {
	if buffer <= 0 {
		buffer = 64
	}
	return &Adapter{msgs: make(chan *queueworker.Message, buffer)}
}

// Push enqueues a message, assigning an id and timestamp when missing.
// Messages pushed after Stop, or past the buffer capacity, are dropped.
func (a *Adapter) Push(msg *queueworker.Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Created.IsZero() {
		msg.Created = time.Now().UTC()
	}
	a.mu.Lock()
	stopped := a.stopped
	a.mu.Unlock()
	if stopped {
		return
	}
	select {
	case a.msgs <- msg:
	default:
	}
}

func (a *Adapter) Configure(queue queueworker.Queue, opts queueworker.Options) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue = queue
	a.opts = opts
	a.policy = backoff.Policy{
		Enabled:  queue.AllowRetryBackoff,
		Delay:    queue.RetryDelay,
		MaxDelay: queue.MaxRetryDelay,
	}
	a.stopped = false
	return nil
}

func (a *Adapter) PreProcess(context.Context, *queueworker.Runtime) error {
	return nil
}

func (a *Adapter) FetchAndProcess(ctx context.Context, rt *queueworker.Runtime) (bool, error) {
	a.mu.Lock()
	wait := a.opts.PollWait
	a.mu.Unlock()
	if wait <= 0 {
		wait = 50 * time.Millisecond
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false, nil
	case <-timer.C:
		return false, nil
	case msg := <-a.msgs:
		a.process(ctx, rt, msg)
		return true, nil
	}
}

func (a *Adapter) process(ctx context.Context, rt *queueworker.Runtime, msg *queueworker.Message) {
	res := rt.Dispatch(ctx, msg)
	if res.Outcome != queueworker.OutcomeReject {
		return
	}
	switch rt.DecideRetry(msg.RetryAttempts) {
	case queueworker.RetryExceeded:
		rt.ReportRetryExceeded(ctx, msg)
	case queueworker.RetryForbidden:
	case queueworker.RetrySchedule:
		msg.RetryAttempts++
		a.mu.Lock()
		delay := backoff.Delay(msg.RetryAttempts, a.policy)
		a.mu.Unlock()
		time.AfterFunc(delay, func() { a.Push(msg) })
		rt.ReportRetry(ctx, msg, res.Aborted)
	}
}

func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	return nil
}
