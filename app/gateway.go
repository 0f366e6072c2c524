package riverchat

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/putto11262002/riverchat/core"
	"github.com/putto11262002/riverchat/pkg/metrics"
)

const maxEmojiLength = 32

// Broadcaster is the part of the hub the gateway publishes through.
type Broadcaster interface {
	Subscribe(sub core.Subscriber, channel string) bool
	Unsubscribe(sub core.Subscriber, channel string) bool
	UnsubscribePrincipal(principalID int64, channel string) int
	Publish(channel string, e *core.Event, except ...string) int
}

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Gateway composes the room directory, the message store and the hub.
// Every mutation is persisted first and broadcast only once it succeeded.
type Gateway struct {
	rooms    core.RoomDirectory
	messages core.MessageStore
	hub      Broadcaster
	limiter  Limiter
	logger   *slog.Logger
	now      func() time.Time
}

type GatewayOption func(*Gateway)

// WithLimiter rate limits message sends per principal.
func WithLimiter(l Limiter) GatewayOption {
	return func(g *Gateway) {
		g.limiter = l
	}
}

func WithGatewayLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func NewGateway(rooms core.RoomDirectory, messages core.MessageStore, hub Broadcaster, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		rooms:    rooms,
		messages: messages,
		hub:      hub,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// publish is best effort: a broadcast failure never fails the operation
// that triggered it.
func (g *Gateway) publish(channel, eventType string, payload interface{}, except ...string) {
	e, err := core.NewEvent(eventType, payload)
	if err != nil {
		g.logger.Error(fmt.Sprintf("building %s event: %v", eventType, err))
		return
	}
	g.hub.Publish(channel, e, except...)
}

func (g *Gateway) ListRooms(ctx context.Context, p core.Principal, filter core.RoomFilter) ([]core.RoomSummary, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, core.NewValidationError("invalid room type: %q", filter.Type)
	}
	// disabled rooms are only visible to the principals that can re-enable them
	if filter.IncludeInactive && !p.Elevated() {
		return nil, core.ErrForbidden
	}
	return g.rooms.ListRooms(ctx, p, filter)
}

func (g *Gateway) GetRoom(ctx context.Context, p core.Principal, roomID int64) (*core.RoomDetail, error) {
	return g.rooms.GetRoom(ctx, p, roomID)
}

func (g *Gateway) CreateRoom(ctx context.Context, p core.Principal, input core.RoomCreateInput) (*core.Room, error) {
	if !p.Elevated() {
		return nil, core.ErrForbidden
	}
	input.Name = strings.TrimSpace(input.Name)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	return g.rooms.CreateRoom(ctx, &p.ID, input)
}

func (g *Gateway) SetRoomActive(ctx context.Context, p core.Principal, roomID int64, active bool) (*core.Room, error) {
	if !p.Elevated() {
		return nil, core.ErrForbidden
	}
	return g.rooms.SetRoomActive(ctx, roomID, active)
}

func (g *Gateway) JoinRoom(ctx context.Context, p core.Principal, roomID int64) (*core.Room, error) {
	room, err := g.rooms.Join(ctx, p, roomID)
	if err != nil {
		return nil, err
	}
	count := room.MemberCount
	g.publish(room.Name, UserJoinedEvent, PresenceEventPayload{
		Room: room.Name, UserID: p.ID, MemberCount: &count, At: g.now(),
	})
	return room, nil
}

func (g *Gateway) LeaveRoom(ctx context.Context, p core.Principal, roomID int64) (*core.Room, error) {
	room, err := g.rooms.Leave(ctx, p, roomID)
	if err != nil {
		return nil, err
	}
	// Connections of a principal that may no longer read the room stop
	// receiving its events.
	ok, err := g.rooms.CanAccess(ctx, p, room.Name, core.ReadAccess)
	if err != nil {
		g.logger.Warn(fmt.Sprintf("CanAccess(%s): %v", room.Name, err))
	}
	if !ok {
		g.hub.UnsubscribePrincipal(p.ID, room.Name)
	}
	count := room.MemberCount
	g.publish(room.Name, UserLeftEvent, PresenceEventPayload{
		Room: room.Name, UserID: p.ID, MemberCount: &count, At: g.now(),
	})
	return room, nil
}

// ListMessages validates the pagination bounds. Zero values select the defaults.
func (g *Gateway) ListMessages(ctx context.Context, q core.MessageQuery) (*core.MessagePage, error) {
	if strings.TrimSpace(q.Room) == "" {
		return nil, core.NewValidationError("room is required")
	}
	if q.Page < 0 {
		return nil, core.NewValidationError("page must be at least 1")
	}
	if q.Limit < 0 || q.Limit > core.MaxMessageLimit {
		return nil, core.NewValidationError("limit must be between 1 and %d", core.MaxMessageLimit)
	}
	return g.messages.ListMessages(ctx, q)
}

func (g *Gateway) SendMessage(ctx context.Context, p core.Principal, input core.MessageCreateInput) (*core.Message, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Body) == "" {
		return nil, core.NewValidationError("body is a required field")
	}
	if utf8.RuneCountInString(input.Body) > core.MaxMessageBody {
		return nil, core.NewValidationError("body must be at most %d characters", core.MaxMessageBody)
	}

	if g.limiter != nil {
		allowed, err := g.limiter.Allow(ctx, "send:"+strconv.FormatInt(p.ID, 10))
		if err != nil {
			// the limiter is an optional guard, keep chatting when redis is down
			g.logger.Warn(fmt.Sprintf("rate limiter: %v", err))
		} else if !allowed {
			metrics.RateLimitHits.Inc()
			return nil, core.ErrRateLimited
		}
	}

	msg, err := g.messages.Send(ctx, p, input)
	if err != nil {
		return nil, err
	}
	metrics.MessagesSent.WithLabelValues(string(msg.Type)).Inc()

	g.publish(msg.RoomName, ReceiveMessageEvent, msg)
	return msg, nil
}

func (g *Gateway) EditMessage(ctx context.Context, p core.Principal, id int64, body string) (*core.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, core.NewValidationError("body is a required field")
	}
	if utf8.RuneCountInString(body) > core.MaxMessageBody {
		return nil, core.NewValidationError("body must be at most %d characters", core.MaxMessageBody)
	}

	msg, err := g.messages.Edit(ctx, p, id, body)
	if err != nil {
		return nil, err
	}
	g.publish(msg.RoomName, MessageEditedEvent, msg)
	return msg, nil
}

func (g *Gateway) DeleteMessage(ctx context.Context, p core.Principal, id int64) error {
	msg, err := g.messages.Delete(ctx, p, id)
	if err != nil {
		return err
	}
	g.publish(msg.RoomName, MessageDeletedEvent, MessageDeletedEventPayload{ID: msg.ID, Room: msg.RoomName})
	return nil
}

func (g *Gateway) ToggleReaction(ctx context.Context, p core.Principal, id int64, emoji string) (*core.Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, core.NewValidationError("emoji is a required field")
	}
	if len(emoji) > maxEmojiLength {
		return nil, core.NewValidationError("emoji must be at most %d bytes", maxEmojiLength)
	}

	msg, err := g.messages.ToggleReaction(ctx, p, id, emoji)
	if err != nil {
		return nil, err
	}
	metrics.ReactionsToggled.Inc()

	g.publish(msg.RoomName, ReactionUpdatedEvent, ReactionUpdatedEventPayload{
		MessageID: msg.ID,
		Room:      msg.RoomName,
		Emoji:     emoji,
		UserID:    p.ID,
		Added:     msg.Reactions[emoji].Has(p.ID),
		Reactions: msg.Reactions,
	})
	return msg, nil
}

// Subscribe starts delivering the room's live events to sub.
// Any principal that can read the room may subscribe, member or not.
// It reports false when sub was already subscribed.
func (g *Gateway) Subscribe(ctx context.Context, sub core.Subscriber, room string) (bool, error) {
	if strings.TrimSpace(room) == "" {
		return false, core.NewValidationError("room is a required field")
	}
	if err := g.rooms.Access(ctx, sub.Principal(), room, core.ReadAccess); err != nil {
		return false, err
	}
	if !g.hub.Subscribe(sub, room) {
		return false, nil
	}
	g.publish(room, UserJoinedEvent, PresenceEventPayload{
		Room: room, UserID: sub.Principal().ID, At: g.now(),
	})
	return true, nil
}

// Unsubscribe stops delivering the room's live events to sub.
func (g *Gateway) Unsubscribe(sub core.Subscriber, room string) bool {
	if !g.hub.Unsubscribe(sub, room) {
		return false
	}
	g.publish(room, UserLeftEvent, PresenceEventPayload{
		Room: room, UserID: sub.Principal().ID, At: g.now(),
	})
	return true
}

// Typing relays a typing indicator to the other subscribers of the room.
// Nothing is persisted.
func (g *Gateway) Typing(ctx context.Context, sub core.Subscriber, room string, typing bool) error {
	if strings.TrimSpace(room) == "" {
		return core.NewValidationError("room is a required field")
	}
	if err := g.rooms.Access(ctx, sub.Principal(), room, core.WriteAccess); err != nil {
		return err
	}
	g.publish(room, UserTypingEvent, UserTypingEventPayload{
		Room: room, UserID: sub.Principal().ID, Typing: typing,
	}, sub.ID())
	return nil
}
