package client

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/pthm/forgewire"
	"github.com/pthm/forgewire/lib/dom"
	"github.com/pthm/forgewire/lib/protocol"
)

type tally struct {
	Count int
}

func (t *tally) inc(_ context.Context, _ forgewire.Args) forgewire.Result {
	t.Count++
	return forgewire.OK().Dispatch("tally:changed", map[string]any{"count": t.Count})
}

var tallyDef = forgewire.Define("tally", func(b *forgewire.Builder[*tally]) {
	b.Int("count", func(t *tally) *int { return &t.Count })
	b.Action("inc", (*tally).inc)
})

type echoBox struct {
	Last int
}

func (e *echoBox) seen(_ context.Context, args forgewire.Args) forgewire.Result {
	e.Last = args.Int("count")
	return forgewire.OK()
}

var echoDef = forgewire.Define("echo", func(b *forgewire.Builder[*echoBox]) {
	b.Int("last", func(e *echoBox) *int { return &e.Last })
	b.Action("seen", (*echoBox).seen, forgewire.Param("count", forgewire.KindNumber))
	b.Listen("tally:changed", "seen")
})

var e2eRenderer = forgewire.RendererFunc(func(_ context.Context, _ any, template string, v forgewire.View) (string, error) {
	switch template {
	case "tally":
		return fmt.Sprintf(`<div><span target="n">%d</span><button action-trigger="inc" action-target="n">+</button></div>`, v.State["count"]), nil
	case "echo":
		return fmt.Sprintf(`<p class="echo">last=%d</p>`, v.State["last"]), nil
	}
	return "", fmt.Errorf("no template %q", template)
})

// signalling reports every completed round trip.
type signalling struct {
	Transport
	done chan struct{}
}

func (s signalling) Send(ctx context.Context, route string, req protocol.Request, done func(Reply)) {
	s.Transport.Send(ctx, route, req, func(r Reply) {
		done(r)
		s.done <- struct{}{}
	})
}

func wait(t *testing.T, ch <-chan struct{}, n int) {
	t.Helper()
	for range n {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for a response")
		}
	}
}

func TestEndToEnd(t *testing.T) {
	reg := forgewire.NewRegistry([]byte("e2e-secret"), forgewire.WithRenderer(e2eRenderer))
	reg.Add(tallyDef, echoDef)
	srv := httptest.NewServer(reg.Handler())
	defer srv.Close()

	ctx := context.Background()
	tallyHTML, err := reg.Mount(ctx, "tally", nil)
	require.NoError(t, err)
	echoHTML, err := reg.Mount(ctx, "echo", nil)
	require.NoError(t, err)

	doc, err := dom.Parse("<html><body>" + tallyHTML + echoHTML + "</body></html>")
	require.NoError(t, err)

	tr := signalling{Transport: &HTTPTransport{BaseURL: srv.URL, Client: srv.Client()}, done: make(chan struct{}, 8)}
	var failures []Failure
	c := New(doc, tr, WithHooks(Hooks{OnFailure: func(f Failure) { failures = append(failures, f) }}))
	require.NoError(t, c.Start())
	defer c.Close()
	require.Len(t, c.Islands(), 2)

	var button *html.Node
	c.Do(func(doc *dom.Document) { button = dom.ByAttr(doc.Root(), "action-trigger", "inc") })
	require.NotNil(t, button)

	require.NoError(t, c.Click(button))
	wait(t, tr.done, 2) // tally, then the listening echo island

	require.NoError(t, c.Click(button))
	wait(t, tr.done, 2)

	c.Do(func(doc *dom.Document) {
		assert.Equal(t, "2", dom.Text(dom.ByAttr(doc.Root(), "target", "n")))
		echo := dom.ByAttr(doc.Root(), "class", "echo")
		require.NotNil(t, echo)
		assert.Equal(t, "last=2", dom.Text(echo))
		name, _ := dom.Attr(echo, protocol.AttrIslandName)
		assert.Equal(t, "echo", name)
	})
	assert.Empty(t, failures)
}

func TestEndToEndFailure(t *testing.T) {
	reg := forgewire.NewRegistry([]byte("e2e-secret"), forgewire.WithRenderer(e2eRenderer))
	reg.Add(tallyDef)
	srv := httptest.NewServer(reg.Handler())
	defer srv.Close()

	page := `<html><body><div island="x" island-name="tally" island-route="/_wire/tally" snapshot="forged"><button action-trigger="inc">+</button></div></body></html>`
	doc, err := dom.Parse(page)
	require.NoError(t, err)

	tr := signalling{Transport: &HTTPTransport{BaseURL: srv.URL, Client: srv.Client()}, done: make(chan struct{}, 1)}
	var failures []Failure
	c := New(doc, tr, WithHooks(Hooks{OnFailure: func(f Failure) { failures = append(failures, f) }}))
	require.NoError(t, c.Start())
	defer c.Close()

	var button *html.Node
	c.Do(func(doc *dom.Document) { button = dom.ByAttr(doc.Root(), "action-trigger", "inc") })
	require.NoError(t, c.Click(button))
	wait(t, tr.done, 1)

	c.Do(func(*dom.Document) {
		require.Len(t, failures, 1)
		assert.Equal(t, protocol.CodeTampered, failures[0].Code)
		assert.Equal(t, 400, failures[0].Status)
	})
}
