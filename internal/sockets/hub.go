// Package sockets pushes server events to the dashboards of connected users.
package sockets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const writeTimeout = 5 * time.Second

// ErrUnknownHandle is returned by Emit for a handle that is not registered.
var ErrUnknownHandle = errors.New("sockets: unknown connection handle")

// Frame is the JSON message written to a socket.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Observer is notified when connections come and go.
type Observer interface {
	SocketOpened()
	SocketClosed()
}

type client struct {
	handle string
	uid    string
	conn   *websocket.Conn
}

// Hub is the registry of open connections, keyed by uid and by handle.
type Hub struct {
	logger   *slog.Logger
	observer Observer

	mu       sync.RWMutex
	byUID    map[string]map[string]*client
	byHandle map[string]*client
	closed   bool
}

// NewHub constructs an empty Hub. observer may be nil.
func NewHub(logger *slog.Logger, observer Observer) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:   logger,
		observer: observer,
		byUID:    make(map[string]map[string]*client),
		byHandle: make(map[string]*client),
	}
}

// Register adds conn for uid and returns its handle.
func (h *Hub) Register(uid string, conn *websocket.Conn) (string, error) {
	c := &client{handle: uuid.NewString(), uid: uid, conn: conn}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", errors.New("sockets: hub closed")
	}
	handles := h.byUID[uid]
	if handles == nil {
		handles = make(map[string]*client)
		h.byUID[uid] = handles
	}
	handles[c.handle] = c
	h.byHandle[c.handle] = c
	h.mu.Unlock()

	if h.observer != nil {
		h.observer.SocketOpened()
	}
	h.logger.Debug("socket registered", slog.String("uid", uid), slog.String("handle", c.handle))
	return c.handle, nil
}

// Unregister forgets handle. Unknown handles are ignored.
func (h *Hub) Unregister(handle string) {
	h.mu.Lock()
	c, ok := h.byHandle[handle]
	if ok {
		h.remove(c)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	if h.observer != nil {
		h.observer.SocketClosed()
	}
	h.logger.Debug("socket unregistered", slog.String("uid", c.uid), slog.String("handle", handle))
}

// remove must be called with mu held.
func (h *Hub) remove(c *client) {
	delete(h.byHandle, c.handle)
	if handles := h.byUID[c.uid]; handles != nil {
		delete(handles, c.handle)
		if len(handles) == 0 {
			delete(h.byUID, c.uid)
		}
	}
}

// Connections returns the handles currently open for uid, sorted.
func (h *Hub) Connections(uid string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	handles := make([]string, 0, len(h.byUID[uid]))
	for handle := range h.byUID[uid] {
		handles = append(handles, handle)
	}
	sort.Strings(handles)
	return handles
}

// Emit writes one frame to the connection behind handle.
func (h *Hub) Emit(ctx context.Context, handle, event string, payload any) error {
	h.mu.RLock()
	c, ok := h.byHandle[handle]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownHandle
	}
	return c.write(ctx, Frame{Event: event, Data: payload})
}

// EmitUser writes one frame to every connection of uid and returns how many
// received it. Write failures are joined into the returned error.
func (h *Hub) EmitUser(ctx context.Context, uid, event string, payload any) (int, error) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.byUID[uid]))
	for _, c := range h.byUID[uid] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	frame := Frame{Event: event, Data: payload}
	var (
		delivered int
		errs      []error
	)
	for _, c := range targets {
		if err := c.write(ctx, frame); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

// Close closes every connection and refuses new registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.byHandle))
	for _, c := range h.byHandle {
		clients = append(clients, c)
		h.remove(c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		if h.observer != nil {
			h.observer.SocketClosed()
		}
	}
}

func (c *client) write(ctx context.Context, frame Frame) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, frame); err != nil {
		return fmt.Errorf("sockets: write %s: %w", c.handle, err)
	}
	return nil
}
