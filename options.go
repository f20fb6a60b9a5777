package queueworker

import (
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Options is the runtime configuration handed to adapters. Fields not
// relevant to a given adapter are ignored by it.
type Options struct {
	// ForkCount is the number of child worker processes to spawn.
	// 0 keeps all work in the calling process.
	ForkCount int

	// ThreadCount is the number of consumer goroutines per process.
	// 0 runs a single inline loop on the caller.
	ThreadCount int

	// SleepInterval is how long a consumer idles after an empty poll.
	SleepInterval time.Duration

	// GCFlushInterval is the minimum spacing between forced garbage
	// collections triggered from the consumer loop.
	GCFlushInterval time.Duration

	// PollWait is the long-poll wait passed to pull-based brokers.
	PollWait time.Duration

	// Durable marks AMQP queues and exchanges durable.
	Durable bool

	// Wait makes Start block until all consumers have exited.
	Wait bool
}

func defaultOptions() Options {
	return Options{
		ThreadCount:     1,
		GCFlushInterval: 10 * time.Second,
		PollWait:        15 * time.Second,
		Durable:         true,
		Wait:            true,
	}
}

type config struct {
	opts       Options
	hooks      Hooks
	logger     Logger
	gate       NonceGate
	serializer Serializer
	verifier   Verifier
	meter      metric.Meter
}

func defaultConfig() config {
	return config{
		opts:       defaultOptions(),
		logger:     noopLogger{},
		serializer: jsonSerializer{},
	}
}

// Option configures a Worker.
type Option func(*config)

func WithForkCount(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.opts.ForkCount = n
		}
	}
}

func WithThreadCount(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.opts.ThreadCount = n
		}
	}
}

func WithSleepInterval(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.opts.SleepInterval = d
		}
	}
}

func WithGCFlushInterval(d time.Duration) Option {
	return func(c *config) {
		c.opts.GCFlushInterval = d
	}
}

func WithPollWait(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.opts.PollWait = d
		}
	}
}

func WithDurable(durable bool) Option {
	return func(c *config) {
		c.opts.Durable = durable
	}
}

// WithWait controls whether Start blocks until the consumers exit.
func WithWait(wait bool) Option {
	return func(c *config) {
		c.opts.Wait = wait
	}
}

func WithHooks(h Hooks) Option {
	return func(c *config) {
		c.hooks = h
	}
}

func WithLogger(lg Logger) Option {
	return func(c *config) {
		if lg != nil {
			c.logger = lg
		}
	}
}

// WithNonceGate replaces the default in-process dedup store.
func WithNonceGate(gate NonceGate) Option {
	return func(c *config) {
		if gate != nil {
			c.gate = gate
		}
	}
}

func WithSerializer(s Serializer) Option {
	return func(c *config) {
		if s != nil {
			c.serializer = s
		}
	}
}

// WithVerifier installs a signature check applied by adapters that carry
// signed payloads.
func WithVerifier(v Verifier) Option {
	return func(c *config) {
		c.verifier = v
	}
}

// WithMeter overrides the otel meter used for worker counters.
func WithMeter(m metric.Meter) Option {
	return func(c *config) {
		c.meter = m
	}
}
