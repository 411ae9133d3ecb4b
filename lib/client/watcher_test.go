package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/forgewire/lib/protocol"
	"github.com/pthm/forgewire/lib/shared"
)

func TestWatcherRefreshesSharedIslands(t *testing.T) {
	hub := shared.NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	h := newHarness(t, islandPage)
	w := NewWatcher(h.client, "ws"+strings.TrimPrefix(srv.URL, "http"))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	// Notices published before the watch request lands are not delivered,
	// so keep publishing until one gets through.
	require.Eventually(t, func() bool {
		hub.Publish("elsewhere")
		hub.Publish("todos")
		return h.transport.count() > 0
	}, 5*time.Second, 10*time.Millisecond)

	req := h.transport.request(0)
	require.Len(t, req.Calls, 1)
	assert.Equal(t, protocol.RefreshAction, req.Calls[0].Action)

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
