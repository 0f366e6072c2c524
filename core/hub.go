package core

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/putto11262002/riverchat/pkg/metrics"
)

// Subscriber is a live connection that can receive hub events.
type Subscriber interface {
	ID() string
	Principal() Principal
	// Send queues e without blocking. It returns false when the subscriber
	// is closed or its queue is full.
	Send(e *Event) bool
	Close()
}

// Hub fans events out to the subscribers of a channel. A channel is the
// live counterpart of a room and is named after it.
//
// Publish holds the hub lock while queueing, so every subscriber of a
// channel observes publishes in the same order. Delivery is at most once:
// a subscriber whose queue is full misses the event and is disconnected.
type Hub struct {
	mu       sync.Mutex
	channels map[string]map[string]Subscriber
	// joined is the reverse index: subscriber id to channel names.
	joined map[string]map[string]struct{}
	logger *slog.Logger
}

type HubOption func(*Hub)

func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		channels: make(map[string]map[string]Subscriber),
		joined:   make(map[string]map[string]struct{}),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe adds sub to channel. It reports false if sub was already subscribed.
func (h *Hub) Subscribe(sub Subscriber, channel string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[string]Subscriber)
		h.channels[channel] = subs
	}
	if _, ok := subs[sub.ID()]; ok {
		return false
	}
	subs[sub.ID()] = sub

	joined, ok := h.joined[sub.ID()]
	if !ok {
		joined = make(map[string]struct{})
		h.joined[sub.ID()] = joined
	}
	joined[channel] = struct{}{}
	metrics.HubSubscriptions.Inc()
	return true
}

// Unsubscribe removes sub from channel. It reports false if sub was not subscribed.
func (h *Hub) Unsubscribe(sub Subscriber, channel string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unsubscribe(sub.ID(), channel)
}

func (h *Hub) unsubscribe(id, channel string) bool {
	subs, ok := h.channels[channel]
	if !ok {
		return false
	}
	if _, ok := subs[id]; !ok {
		return false
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(h.channels, channel)
	}
	if joined, ok := h.joined[id]; ok {
		delete(joined, channel)
		if len(joined) == 0 {
			delete(h.joined, id)
		}
	}
	metrics.HubSubscriptions.Dec()
	return true
}

// UnsubscribePrincipal removes every subscriber of channel that belongs to
// the principal and returns how many were removed.
func (h *Hub) UnsubscribePrincipal(principalID int64, channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	var ids []string
	for id, sub := range h.channels[channel] {
		if sub.Principal().ID == principalID {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		h.unsubscribe(id, channel)
	}
	return len(ids)
}

// UnsubscribeAll removes sub from every channel and returns the channels it left.
func (h *Hub) UnsubscribeAll(sub Subscriber) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined := h.joined[sub.ID()]
	channels := make([]string, 0, len(joined))
	for channel := range joined {
		channels = append(channels, channel)
	}
	for _, channel := range channels {
		h.unsubscribe(sub.ID(), channel)
	}
	return channels
}

// Publish queues e for every subscriber of channel except the ones whose ids
// are listed in except. It returns the number of subscribers e was queued for.
func (h *Hub) Publish(channel string, e *Event, except ...string) int {
	var slow []Subscriber
	delivered := 0

	h.mu.Lock()
	for id, sub := range h.channels[channel] {
		if slices.Contains(except, id) {
			continue
		}
		if sub.Send(e) {
			delivered++
			continue
		}
		slow = append(slow, sub)
	}
	h.mu.Unlock()

	metrics.EventsPublished.WithLabelValues(e.Type).Add(float64(delivered))

	for _, sub := range slow {
		metrics.EventsDropped.Inc()
		h.logger.Warn("dropping slow subscriber",
			slog.String("subscriber", sub.ID()), slog.String("channel", channel), slog.String("event", e.Type))
		h.UnsubscribeAll(sub)
		sub.Close()
	}
	return delivered
}

// IsSubscribed reports whether sub currently receives events for channel.
func (h *Hub) IsSubscribed(sub Subscriber, channel string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.channels[channel][sub.ID()]
	return ok
}

// Subscribers returns the number of subscribers of channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels[channel])
}
