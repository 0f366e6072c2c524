package riverchat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/putto11262002/riverchat/core"
)

// Inbound live events.
const (
	JoinChatEvent    = "join_chat"
	LeaveChatEvent   = "leave_chat"
	SendMessageEvent = "send_message"
	TypingEvent      = "typing"
)

// Outbound live events.
const (
	UserJoinedEvent      = "user_joined"
	UserLeftEvent        = "user_left"
	ReceiveMessageEvent  = "receive_message"
	MessageEditedEvent   = "message_edited"
	MessageDeletedEvent  = "message_deleted"
	ReactionUpdatedEvent = "reaction_updated"
	UserTypingEvent      = "user_typing"
)

type RoomEventPayload struct {
	Room string `json:"room"`
}

type SendMessageEventPayload struct {
	Room    string           `json:"room"`
	Body    string           `json:"body"`
	Type    core.MessageType `json:"message_type"`
	ReplyTo *int64           `json:"reply_to"`
}

type TypingEventPayload struct {
	Room   string `json:"room"`
	Typing bool   `json:"typing"`
}

// PresenceEventPayload is sent with user_joined and user_left.
// MemberCount is set when the event follows a membership change.
type PresenceEventPayload struct {
	Room        string    `json:"room"`
	UserID      int64     `json:"user_id"`
	MemberCount *int      `json:"member_count,omitempty"`
	At          time.Time `json:"at"`
}

type UserTypingEventPayload struct {
	Room   string `json:"room"`
	UserID int64  `json:"user_id"`
	Typing bool   `json:"typing"`
}

type MessageDeletedEventPayload struct {
	ID   int64  `json:"id"`
	Room string `json:"room"`
}

type ReactionUpdatedEventPayload struct {
	MessageID int64          `json:"message_id"`
	Room      string         `json:"room"`
	Emoji     string         `json:"emoji"`
	UserID    int64          `json:"user_id"`
	Added     bool           `json:"added"`
	Reactions core.Reactions `json:"reactions"`
}

func decodePayload(e *core.Event, v interface{}) error {
	if len(e.Payload) == 0 {
		return core.NewValidationError("%s: payload is required", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return core.NewValidationError("%s: malformed payload", e.Type)
	}
	return nil
}

// RegisterEvents routes the inbound live events to the gateway.
func (g *Gateway) RegisterEvents(r *core.EventRouter) {
	r.On(JoinChatEvent, g.JoinChatHandler)
	r.On(LeaveChatEvent, g.LeaveChatHandler)
	r.On(SendMessageEvent, g.SendMessageHandler)
	r.On(TypingEvent, g.TypingHandler)
}

func (g *Gateway) JoinChatHandler(ctx context.Context, sub core.Subscriber, e *core.Event) error {
	var payload RoomEventPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}
	if _, err := g.Subscribe(ctx, sub, payload.Room); err != nil {
		return fmt.Errorf("Subscribe: %w", err)
	}
	return nil
}

func (g *Gateway) LeaveChatHandler(_ context.Context, sub core.Subscriber, e *core.Event) error {
	var payload RoomEventPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}
	g.Unsubscribe(sub, payload.Room)
	return nil
}

func (g *Gateway) SendMessageHandler(ctx context.Context, sub core.Subscriber, e *core.Event) error {
	var payload SendMessageEventPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}
	input := core.MessageCreateInput{
		Room:    payload.Room,
		Body:    payload.Body,
		Type:    payload.Type,
		ReplyTo: payload.ReplyTo,
	}
	if _, err := g.SendMessage(ctx, sub.Principal(), input); err != nil {
		return fmt.Errorf("SendMessage: %w", err)
	}
	return nil
}

func (g *Gateway) TypingHandler(ctx context.Context, sub core.Subscriber, e *core.Event) error {
	var payload TypingEventPayload
	if err := decodePayload(e, &payload); err != nil {
		return err
	}
	return g.Typing(ctx, sub, payload.Room, payload.Typing)
}

// ConnectionClosed tells the channels a closed connection was subscribed to
// that its user left.
func (g *Gateway) ConnectionClosed(sub core.Subscriber, channels []string) {
	for _, channel := range channels {
		g.publish(channel, UserLeftEvent, PresenceEventPayload{
			Room:   channel,
			UserID: sub.Principal().ID,
			At:     g.now(),
		})
	}
}
