package queueworker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is the broker-agnostic payload moved through a queue.
// RetryAttempts counts prior redeliveries and is 0 on first delivery.
type Message struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Content       json.RawMessage `json:"content"`
	Created       time.Time       `json:"created"`
	RetryAttempts int             `json:"retry_attempts"`
	Context       json.RawMessage `json:"context,omitempty"`
	ContentType   string          `json:"content_type,omitempty"`
}

// NewMessage builds a message with a fresh id and the content marshalled
// to JSON.
func NewMessage(msgType string, content any) (*Message, error) {
	data, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("queueworker: marshal content: %w", err)
	}
	return &Message{
		ID:      uuid.NewString(),
		Type:    msgType,
		Content: data,
		Created: time.Now().UTC(),
	}, nil
}

// Args is the handler-visible view of a message. All fields are read-only
// except Abort, which the handler sets to request rejection without
// returning an error.
type Args struct {
	ID            string
	Type          string
	RetryAttempts int
	Sent          time.Time
	Context       json.RawMessage
	ContentType   string
	Abort         bool
}

func (m *Message) args() *Args {
	return &Args{
		ID:            m.ID,
		Type:          m.Type,
		RetryAttempts: m.RetryAttempts,
		Sent:          m.Created,
		Context:       m.Context,
		ContentType:   m.ContentType,
	}
}

// Handler consumes message content. Returning an error, or setting
// args.Abort, rejects the message for retry subject to the queue policy.
type Handler interface {
	Handle(ctx context.Context, content []byte, args *Args) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, content []byte, args *Args) error

func (f HandlerFunc) Handle(ctx context.Context, content []byte, args *Args) error {
	return f(ctx, content, args)
}

// Serializer converts messages to and from their wire form.
type Serializer interface {
	Marshal(msg *Message) ([]byte, error)
	Unmarshal(data []byte) (*Message, error)
}

type jsonSerializer struct{}

func (jsonSerializer) Marshal(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("queueworker: marshal message: %w", err)
	}
	return data, nil
}

func (jsonSerializer) Unmarshal(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("queueworker: unmarshal message: %w", err)
	}
	return &msg, nil
}

// Verifier validates a message signature before dispatch. raw is the
// serialized payload as received from the broker.
type Verifier interface {
	Verify(msg *Message, raw []byte) error
}
