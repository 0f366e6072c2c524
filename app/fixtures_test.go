package riverchat

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/putto11262002/riverchat/core"
	"github.com/stretchr/testify/require"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type published struct {
	channel string
	event   *core.Event
	except  []string
}

// recordingHub is a Broadcaster that remembers what was published.
type recordingHub struct {
	mu        sync.Mutex
	subs      map[string]map[string]core.Subscriber
	published []published
}

func newRecordingHub() *recordingHub {
	return &recordingHub{subs: make(map[string]map[string]core.Subscriber)}
}

func (h *recordingHub) Subscribe(sub core.Subscriber, channel string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[string]core.Subscriber)
	}
	if _, ok := h.subs[channel][sub.ID()]; ok {
		return false
	}
	h.subs[channel][sub.ID()] = sub
	return true
}

func (h *recordingHub) Unsubscribe(sub core.Subscriber, channel string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[channel][sub.ID()]; !ok {
		return false
	}
	delete(h.subs[channel], sub.ID())
	return true
}

func (h *recordingHub) UnsubscribePrincipal(principalID int64, channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for id, sub := range h.subs[channel] {
		if sub.Principal().ID == principalID {
			delete(h.subs[channel], id)
			n++
		}
	}
	return n
}

func (h *recordingHub) Publish(channel string, e *core.Event, except ...string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.published = append(h.published, published{channel: channel, event: e, except: except})
	return len(h.subs[channel])
}

func (h *recordingHub) Published() []published {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.published)
}

func (h *recordingHub) Types() []string {
	var types []string
	for _, p := range h.Published() {
		types = append(types, p.event.Type)
	}
	return types
}

func (h *recordingHub) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.published = nil
}

type testSubscriber struct {
	id        string
	principal core.Principal
	mu        sync.Mutex
	events    []*core.Event
}

func (s *testSubscriber) ID() string                { return s.id }
func (s *testSubscriber) Principal() core.Principal { return s.principal }
func (s *testSubscriber) Close()                    {}

func (s *testSubscriber) Send(e *core.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return true
}

func (s *testSubscriber) Events() []*core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

func decodeEventPayload[T any](t *testing.T, e *core.Event) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(e.Payload, &v))
	return v
}

type GatewayFixture struct {
	ctx      context.Context
	t        *testing.T
	db       *core.SQLiteDB
	users    *core.SQLiteUserStore
	rooms    *core.SQLiteRoomDirectory
	messages *core.SQLiteMessageStore
	hub      *recordingHub
	gateway  *Gateway
}

func NewGatewayFixture(t *testing.T, opts ...GatewayOption) *GatewayFixture {
	ctx, cancel := context.WithCancel(context.Background())

	opt := core.DefaultSQLiteDBOption
	db, err := core.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"), "../migrations", &opt)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() {
		cancel()
		db.Close()
	})

	f := &GatewayFixture{
		ctx:      ctx,
		t:        t,
		db:       db,
		users:    core.NewSQLiteUserStore(db.DB),
		rooms:    core.NewSQLiteRoomDirectory(db.DB),
		messages: core.NewSQLiteMessageStore(db.DB, core.WithMessageStoreLogger(discardLogger)),
		hub:      newRecordingHub(),
	}
	opts = append([]GatewayOption{WithGatewayLogger(discardLogger)}, opts...)
	f.gateway = NewGateway(f.rooms, f.messages, f.hub, opts...)
	return f
}

func (f *GatewayFixture) user(username string, role core.Role) core.Principal {
	u, err := f.users.CreateUser(f.ctx, core.User{
		Username:    username,
		DisplayName: username,
		Password:    "password",
		Role:        role,
	})
	require.NoError(f.t, err)
	return u.Principal()
}

func (f *GatewayFixture) room(name string, t core.RoomType) *core.Room {
	room, err := f.rooms.CreateRoom(f.ctx, nil, core.RoomCreateInput{Name: name, DisplayName: name, Type: t})
	require.NoError(f.t, err)
	return room
}

func (f *GatewayFixture) subscriber(id string, p core.Principal) *testSubscriber {
	return &testSubscriber{id: id, principal: p}
}
