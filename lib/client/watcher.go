package client

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pthm/forgewire/lib/protocol"
)

// Watcher subscribes to shared-key notices over a websocket and refreshes
// the islands bound to a key whenever it changes.
type Watcher struct {
	client *Client
	url    string
	dialer *websocket.Dialer
	header http.Header
	logger *zap.Logger
}

// NewWatcher creates a watcher for the hub at url (ws:// or wss://).
func NewWatcher(c *Client, url string) *Watcher {
	return &Watcher{
		client: c,
		url:    url,
		dialer: websocket.DefaultDialer,
		logger: c.logger,
	}
}

// Run subscribes to every shared key of the client's islands and processes
// notices until ctx is cancelled or the connection drops.
func (w *Watcher) Run(ctx context.Context) error {
	ws, _, err := w.dialer.DialContext(ctx, w.url, w.header)
	if err != nil {
		return err
	}
	defer ws.Close()

	if err := ws.WriteJSON(protocol.WatchRequest{Watch: w.client.SharedKeys()}); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		ws.Close()
	})
	defer stop()

	for {
		var notice protocol.WatchNotice
		if err := ws.ReadJSON(&notice); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if notice.Key == "" {
			continue
		}
		w.logger.Debug("shared key changed", zap.String("key", notice.Key))
		w.client.RefreshShared(notice.Key)
	}
}
