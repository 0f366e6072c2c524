package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrorEvent is sent back to a single connection when one of its events fails.
const ErrorEvent = "error"

var ErrUnknownEvent = errors.New("unknown event type")

type Event struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (e Event) String() string {
	return fmt.Sprintf("Event{ID: %s, Type: %s, Payload.Size: %d}", e.ID, e.Type, len(e.Payload))
}

// NewEvent marshals payload and stamps the event with a fresh id.
func NewEvent(t string, payload interface{}) (*Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return &Event{
		ID:      uuid.NewString(),
		Type:    t,
		Payload: b,
	}, nil
}

func EncodeEvent(w io.Writer, e *Event) error {
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

func DecodeEvent(r io.Reader, e *Event) error {
	if err := json.NewDecoder(r).Decode(e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return nil
}

type ErrorEventPayload struct {
	// EventID is the id of the event that failed, when the client set one.
	EventID string `json:"event_id,omitempty"`
	Error   string `json:"error"`
}

// EventHandler handles one inbound event from a subscriber.
type EventHandler func(ctx context.Context, sub Subscriber, e *Event) error

// EventRouter dispatches inbound events to handlers by type.
// Dispatch runs on the caller's goroutine, so the events of one connection
// are handled one at a time and in the order they arrived.
type EventRouter struct {
	handlers map[string]EventHandler
	logger   *slog.Logger
	timeout  time.Duration
}

type EventRouterOption func(*EventRouter)

func WithEventLogger(logger *slog.Logger) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

// WithHandlerTimeout bounds how long a single handler may run.
func WithHandlerTimeout(d time.Duration) EventRouterOption {
	return func(r *EventRouter) {
		r.timeout = d
	}
}

func NewEventRouter(opts ...EventRouterOption) *EventRouter {
	r := &EventRouter{
		handlers: make(map[string]EventHandler),
		logger:   slog.Default(),
		timeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *EventRouter) On(eventType string, handler EventHandler) {
	r.handlers[eventType] = handler
}

// Dispatch runs the handler registered for e.Type.
// Handlers get a context that is not cancelled when the connection goes
// away, so writes they started always complete or fail on their own.
// A failing handler results in an ErrorEvent sent to sub only.
func (r *EventRouter) Dispatch(ctx context.Context, sub Subscriber, e *Event) {
	handler, ok := r.handlers[e.Type]
	if !ok {
		r.fail(sub, e, fmt.Errorf("%w: %q", ErrUnknownEvent, e.Type))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := handler(ctx, sub, e); err != nil {
		r.fail(sub, e, err)
	}
}

func (r *EventRouter) fail(sub Subscriber, e *Event, err error) {
	msg, ok := ClientMessage(err)
	if !ok {
		r.logger.Error(fmt.Sprintf("%s handler: %v", e.Type, err), slog.String("subscriber", sub.ID()))
		msg = "internal server error"
	} else {
		r.logger.Debug(fmt.Sprintf("%s handler: %v", e.Type, err), slog.String("subscriber", sub.ID()))
	}

	errEvent, encErr := NewEvent(ErrorEvent, ErrorEventPayload{EventID: e.ID, Error: msg})
	if encErr != nil {
		r.logger.Error(encErr.Error())
		return
	}
	sub.Send(errEvent)
}
