package shared

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pthm/forgewire/lib/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 32
)

// Hub pushes shared-key change notices to subscribed browsers over
// websockets. Register it as a Notifier on the Broker and mount it as an
// http.Handler.
//
// Notices only say which key changed; clients re-fetch through a normal
// refresh action so the snapshot stays the single source of state.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu    sync.RWMutex
	conns map[*hubConn]struct{}
}

var _ Notifier = (*Hub)(nil)

type hubConn struct {
	ws   *websocket.Conn
	send chan protocol.WatchNotice

	mu   sync.RWMutex
	keys map[string]struct{}
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the logger. Default: zap.NewNop().
func WithHubLogger(l *zap.Logger) HubOption {
	return func(h *Hub) {
		h.logger = l
	}
}

// WithCheckOrigin overrides the websocket origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) HubOption {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = fn
	}
}

// NewHub creates a hub with no subscribers.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		logger:   zap.NewNop(),
		conns:    make(map[*hubConn]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish notifies every connection watching key. Slow connections drop
// notices rather than blocking the writer.
func (h *Hub) Publish(key string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		if !c.watching(key) {
			continue
		}
		select {
		case c.send <- protocol.WatchNotice{Key: key}:
		default:
			h.logger.Debug("dropping shared notice for slow subscriber", zap.String("key", key))
		}
	}
}

// Subscribers returns the number of open connections.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// ServeHTTP upgrades the request and serves the subscription until the
// client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &hubConn{
		ws:   ws,
		send: make(chan protocol.WatchNotice, sendBuffer),
		keys: make(map[string]struct{}),
	}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)

	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	close(c.send)
}

func (h *Hub) readLoop(c *hubConn) {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req protocol.WatchRequest
		if err := c.ws.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		c.update(req)
	}
}

func (h *Hub) writeLoop(c *hubConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case notice, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(notice); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *hubConn) update(req protocol.WatchRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range req.Watch {
		c.keys[k] = struct{}{}
	}
	for _, k := range req.Unwatch {
		delete(c.keys, k)
	}
}

func (c *hubConn) watching(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.keys[key]
	return ok
}
