package queueworker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage("order.created", map[string]int{"order_id": 42})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "order.created", msg.Type)
	assert.JSONEq(t, `{"order_id":42}`, string(msg.Content))
	assert.WithinDuration(t, time.Now().UTC(), msg.Created, time.Second)
	assert.Zero(t, msg.RetryAttempts)

	second, err := NewMessage("order.created", nil)
	require.NoError(t, err)
	assert.NotEqual(t, msg.ID, second.ID)
}

func TestNewMessageUnmarshalableContent(t *testing.T) {
	_, err := NewMessage("order.created", func() {})
	assert.Error(t, err)
}

func TestJSONSerializer(t *testing.T) {
	s := jsonSerializer{}
	msg := &Message{
		ID:            "a",
		Type:          "order.created",
		Content:       json.RawMessage(`{"order_id":42}`),
		Created:       time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		RetryAttempts: 2,
		ContentType:   "application/json",
	}

	data, err := s.Marshal(msg)
	require.NoError(t, err)

	got, err := s.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	_, err = s.Unmarshal([]byte("not json"))
	assert.Error(t, err)
}

func TestMessageArgs(t *testing.T) {
	msg := &Message{
		ID:            "a",
		Type:          "order.created",
		RetryAttempts: 3,
		Created:       time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		Context:       json.RawMessage(`{"trace_id":"t"}`),
		ContentType:   "application/json",
	}
	args := msg.args()
	assert.Equal(t, "a", args.ID)
	assert.Equal(t, "order.created", args.Type)
	assert.Equal(t, 3, args.RetryAttempts)
	assert.Equal(t, msg.Created, args.Sent)
	assert.JSONEq(t, `{"trace_id":"t"}`, string(args.Context))
	assert.Equal(t, "application/json", args.ContentType)
	assert.False(t, args.Abort)
}
