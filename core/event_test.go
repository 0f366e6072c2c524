package core

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errorPayload(t *testing.T, e *Event) ErrorEventPayload {
	t.Helper()
	require.Equal(t, ErrorEvent, e.Type)
	var p ErrorEventPayload
	require.NoError(t, json.Unmarshal(e.Payload, &p))
	return p
}

func TestEventRouterDispatch(t *testing.T) {
	r := NewEventRouter()
	var got []string
	r.On("join_chat", func(ctx context.Context, sub Subscriber, e *Event) error {
		got = append(got, e.Type)
		return nil
	})
	r.On("send_message", func(ctx context.Context, sub Subscriber, e *Event) error {
		return NewValidationError("message body is required")
	})
	r.On("typing", func(ctx context.Context, sub Subscriber, e *Event) error {
		return errors.New("disk on fire")
	})
	r.On("leave_chat", func(ctx context.Context, sub Subscriber, e *Event) error {
		return ErrAccessDenied
	})

	t.Run("handled", func(t *testing.T) {
		sub := newFakeSubscriber("a", 1)
		r.Dispatch(context.Background(), sub, &Event{Type: "join_chat"})
		assert.Equal(t, []string{"join_chat"}, got)
		assert.Empty(t, sub.Events())
	})

	tcs := []struct {
		name  string
		event string
		exp   string
	}{
		{"unknown event", "dance", ErrUnknownEvent.Error()},
		{"validation error", "send_message", "message body is required"},
		{"client error", "leave_chat", ErrAccessDenied.Error()},
		{"internal error is hidden", "typing", "internal server error"},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			sub := newFakeSubscriber("a", 1)
			r.Dispatch(context.Background(), sub, &Event{ID: "evt-1", Type: tc.event})

			events := sub.Events()
			require.Len(t, events, 1)
			p := errorPayload(t, events[0])
			assert.Equal(t, tc.exp, p.Error)
			assert.Equal(t, "evt-1", p.EventID)
		})
	}
}

func TestEventRouterContext(t *testing.T) {
	r := NewEventRouter(WithHandlerTimeout(time.Second))
	var ctxErr error
	var deadline bool
	r.On("join_chat", func(ctx context.Context, sub Subscriber, e *Event) error {
		ctxErr = ctx.Err()
		_, deadline = ctx.Deadline()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Dispatch(ctx, newFakeSubscriber("a", 1), &Event{Type: "join_chat"})
	assert.NoError(t, ctxErr, "handlers outlive the connection context")
	assert.True(t, deadline)
}

func TestEventCodec(t *testing.T) {
	e, err := NewEvent("receive_message", map[string]string{"body": "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)

	var sb strings.Builder
	require.NoError(t, EncodeEvent(&sb, e))

	var decoded Event
	require.NoError(t, DecodeEvent(strings.NewReader(sb.String()), &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, e.Type, decoded.Type)
	assert.JSONEq(t, `{"body":"hi"}`, string(decoded.Payload))

	assert.Error(t, DecodeEvent(strings.NewReader("{"), &decoded))
}
