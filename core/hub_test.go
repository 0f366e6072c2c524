package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSubscriber records the events queued for it.
type fakeSubscriber struct {
	id        string
	principal Principal
	capacity  int

	mu     sync.Mutex
	events []*Event
	closed bool
}

func newFakeSubscriber(id string, principalID int64) *fakeSubscriber {
	return &fakeSubscriber{id: id, principal: Principal{ID: principalID, Role: RoleUser}, capacity: -1}
}

func (s *fakeSubscriber) ID() string           { return s.id }
func (s *fakeSubscriber) Principal() Principal { return s.principal }

func (s *fakeSubscriber) Send(e *Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || (s.capacity >= 0 && len(s.events) >= s.capacity) {
		return false
	}
	s.events = append(s.events, e)
	return true
}

func (s *fakeSubscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSubscriber) Events() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Event(nil), s.events...)
}

func (s *fakeSubscriber) Types() []string {
	var types []string
	for _, e := range s.Events() {
		types = append(types, e.Type)
	}
	return types
}

func (s *fakeSubscriber) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func mustEvent(t *testing.T, typ string, payload any) *Event {
	t.Helper()
	e, err := NewEvent(typ, payload)
	require.NoError(t, err)
	return e
}

func TestHubSubscribe(t *testing.T) {
	h := NewHub()
	sub := newFakeSubscriber("a", 1)

	assert.True(t, h.Subscribe(sub, "lobby"))
	assert.False(t, h.Subscribe(sub, "lobby"))
	assert.Equal(t, 1, h.Subscribers("lobby"))
	assert.True(t, h.IsSubscribed(sub, "lobby"))

	assert.True(t, h.Unsubscribe(sub, "lobby"))
	assert.False(t, h.Unsubscribe(sub, "lobby"))
	assert.Equal(t, 0, h.Subscribers("lobby"))
	assert.False(t, h.IsSubscribed(sub, "lobby"))
}

func TestHubPublish(t *testing.T) {
	t.Run("fans out to the channel only", func(t *testing.T) {
		h := NewHub()
		a, b, c := newFakeSubscriber("a", 1), newFakeSubscriber("b", 2), newFakeSubscriber("c", 3)
		h.Subscribe(a, "lobby")
		h.Subscribe(b, "lobby")
		h.Subscribe(c, "announcements")

		n := h.Publish("lobby", mustEvent(t, "receive_message", "hi"))
		assert.Equal(t, 2, n)
		assert.Len(t, a.Events(), 1)
		assert.Len(t, b.Events(), 1)
		assert.Empty(t, c.Events())
	})

	t.Run("except", func(t *testing.T) {
		h := NewHub()
		a, b := newFakeSubscriber("a", 1), newFakeSubscriber("b", 2)
		h.Subscribe(a, "lobby")
		h.Subscribe(b, "lobby")

		n := h.Publish("lobby", mustEvent(t, "user_typing", true), "a")
		assert.Equal(t, 1, n)
		assert.Empty(t, a.Events())
		assert.Len(t, b.Events(), 1)
	})

	t.Run("no subscribers", func(t *testing.T) {
		h := NewHub()
		assert.Equal(t, 0, h.Publish("empty", mustEvent(t, "receive_message", "hi")))
	})

	t.Run("every subscriber sees the same order", func(t *testing.T) {
		h := NewHub()
		subs := []*fakeSubscriber{newFakeSubscriber("a", 1), newFakeSubscriber("b", 2), newFakeSubscriber("c", 3)}
		for _, s := range subs {
			h.Subscribe(s, "lobby")
		}

		const publishers, perPublisher = 4, 25
		batches := make([][]*Event, publishers)
		for p := range batches {
			for i := 0; i < perPublisher; i++ {
				batches[p] = append(batches[p], mustEvent(t, "receive_message", i))
			}
		}
		var wg sync.WaitGroup
		for _, batch := range batches {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for _, e := range batch {
					h.Publish("lobby", e)
				}
			}()
		}
		wg.Wait()

		ids := func(s *fakeSubscriber) []string {
			var out []string
			for _, e := range s.Events() {
				out = append(out, e.ID)
			}
			return out
		}
		first := ids(subs[0])
		require.Len(t, first, publishers*perPublisher)
		for _, s := range subs[1:] {
			assert.Equal(t, first, ids(s))
		}
	})

	t.Run("slow subscriber is dropped", func(t *testing.T) {
		h := NewHub()
		fast, slow := newFakeSubscriber("fast", 1), newFakeSubscriber("slow", 2)
		slow.capacity = 1
		h.Subscribe(fast, "lobby")
		h.Subscribe(slow, "lobby")
		h.Subscribe(slow, "announcements")

		h.Publish("lobby", mustEvent(t, "receive_message", 1))
		n := h.Publish("lobby", mustEvent(t, "receive_message", 2))
		assert.Equal(t, 1, n)

		assert.True(t, slow.IsClosed())
		assert.False(t, h.IsSubscribed(slow, "lobby"))
		assert.False(t, h.IsSubscribed(slow, "announcements"))
		assert.Len(t, fast.Events(), 2)
		assert.False(t, fast.IsClosed())
	})
}

func TestHubUnsubscribeAll(t *testing.T) {
	h := NewHub()
	a, b := newFakeSubscriber("a", 1), newFakeSubscriber("b", 2)
	h.Subscribe(a, "lobby")
	h.Subscribe(a, "announcements")
	h.Subscribe(b, "lobby")

	channels := h.UnsubscribeAll(a)
	assert.ElementsMatch(t, []string{"lobby", "announcements"}, channels)
	assert.Equal(t, 1, h.Subscribers("lobby"))
	assert.Equal(t, 0, h.Subscribers("announcements"))

	assert.Empty(t, h.UnsubscribeAll(a))
}

func TestHubUnsubscribePrincipal(t *testing.T) {
	h := NewHub()
	phone, laptop := newFakeSubscriber("phone", 1), newFakeSubscriber("laptop", 1)
	other := newFakeSubscriber("other", 2)
	h.Subscribe(phone, "mods-only")
	h.Subscribe(laptop, "mods-only")
	h.Subscribe(laptop, "lobby")
	h.Subscribe(other, "mods-only")

	assert.Equal(t, 2, h.UnsubscribePrincipal(1, "mods-only"))
	assert.Equal(t, 1, h.Subscribers("mods-only"))
	assert.True(t, h.IsSubscribed(laptop, "lobby"))

	h.Publish("mods-only", mustEvent(t, "ping", nil))
	assert.Empty(t, phone.Events())
	assert.Empty(t, laptop.Events())
	assert.Len(t, other.Events(), 1)

	assert.Equal(t, 0, h.UnsubscribePrincipal(1, "mods-only"))
	// the reverse index no longer lists the channel
	assert.Equal(t, []string{"lobby"}, h.UnsubscribeAll(laptop))
}
