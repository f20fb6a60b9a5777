package queueworker

// Hooks are the worker's error and retry sinks. All fields are optional
// and installed before Start; a panicking hook is logged and swallowed so
// the worker stays alive.
type Hooks struct {
	// OnError fires when a fetch, parse, or handler invocation fails.
	// msg is nil when the failure happened before the message was parsed.
	OnError func(err error, msg *Message)

	// OnRetry fires after a message has been rescheduled. aborted reports
	// whether the handler requested the rejection via Args.Abort rather
	// than by returning an error.
	OnRetry func(msg *Message, aborted bool)

	// OnRetryExceeded fires once per message that exhausts its retry
	// budget and is terminally rejected.
	OnRetryExceeded func(msg *Message)
}
