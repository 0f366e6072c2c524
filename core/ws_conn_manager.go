package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/putto11262002/riverchat/pkg/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 32 * 1024

	defaultSendBufferSize = 256
)

// ConnManager upgrades HTTP requests to websocket connections, runs their
// read and write loops and removes them from the hub once they close.
type ConnManager struct {
	conns  *SyncMap[string, *Conn]
	hub    *Hub
	events *EventRouter
	ctx    context.Context
	wg     *sync.WaitGroup
	logger *slog.Logger

	upgrader       websocket.Upgrader
	sendBufferSize int

	onConnectionClosed func(sub Subscriber, channels []string)
}

var defaultUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type ManagerOption func(*ConnManager)

func WithCheckOrigin(f func(r *http.Request) bool) ManagerOption {
	return func(m *ConnManager) {
		m.upgrader.CheckOrigin = f
	}
}

func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *ConnManager) {
		m.logger = l
	}
}

// WithSendBufferSize sets how many outbound events a connection may have
// queued before it is treated as a slow consumer.
func WithSendBufferSize(n int) ManagerOption {
	return func(m *ConnManager) {
		if n > 0 {
			m.sendBufferSize = n
		}
	}
}

func NewConnManager(ctx context.Context, wg *sync.WaitGroup, hub *Hub, events *EventRouter, opts ...ManagerOption) *ConnManager {
	m := &ConnManager{
		conns:              NewSyncMap[string, *Conn](),
		hub:                hub,
		events:             events,
		ctx:                ctx,
		wg:                 wg,
		logger:             slog.Default(),
		upgrader:           defaultUpgrader,
		sendBufferSize:     defaultSendBufferSize,
		onConnectionClosed: func(Subscriber, []string) {},
	}

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnConnectionClosed registers a callback that runs after a connection has
// been removed from the hub, with the channels it was subscribed to.
func (m *ConnManager) OnConnectionClosed(f func(sub Subscriber, channels []string)) {
	m.onConnectionClosed = f
}

// Len returns the number of open connections.
func (m *ConnManager) Len() int {
	return m.conns.Len()
}

func (m *ConnManager) Connect(p Principal, w http.ResponseWriter, r *http.Request) error {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written an error response
		return fmt.Errorf("upgrade: %w", err)
	}

	id := uuid.NewString()
	conn := newConn(ws, id, p, m.sendBufferSize,
		m.logger.With(slog.String("connection", id), slog.Int64("principal", p.ID)))
	m.conns.Store(id, conn)
	metrics.WSConnections.Inc()

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		conn.writeLoop(m.ctx)
	}()
	go func() {
		defer m.wg.Done()
		defer m.disconnect(conn)
		conn.readLoop(m.ctx, func(ctx context.Context, e *Event) {
			m.events.Dispatch(ctx, conn, e)
		})
	}()

	return nil
}

func (m *ConnManager) disconnect(conn *Conn) {
	if _, ok := m.conns.LoadAndDelete(conn.ID()); !ok {
		return
	}
	metrics.WSConnections.Dec()
	conn.Close()
	channels := m.hub.UnsubscribeAll(conn)
	m.onConnectionClosed(conn, channels)
}

// Close closes every open connection. It does not wait for the loops to exit;
// callers wait on the WaitGroup passed to NewConnManager.
func (m *ConnManager) Close() {
	for _, conn := range m.conns.Values() {
		conn.Close()
	}
}
