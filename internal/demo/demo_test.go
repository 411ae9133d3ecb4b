package demo

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/forgewire"
	"github.com/pthm/forgewire/lib/protocol"
	"github.com/pthm/forgewire/lib/shared"
)

var (
	testKey = []byte("demo-test-key-0123456789")
	noon    = time.Date(2026, 10, 19, 12, 34, 56, 0, time.UTC)
)

func newRegistry(t *testing.T, store *Store, opts ...forgewire.Option) *forgewire.Registry {
	t.Helper()
	opts = append([]forgewire.Option{
		forgewire.WithResolver(Resolver(store, func() time.Time { return noon })),
		forgewire.WithRenderer(Templates()),
	}, opts...)
	reg := forgewire.NewRegistry(testKey, opts...)
	reg.Add(Definitions()...)
	return reg
}

func mount(t *testing.T, reg *forgewire.Registry, name string, props forgewire.Props) *forgewire.TestResult {
	t.Helper()
	res, err := forgewire.TestMount(reg, name, props)
	require.NoError(t, err)
	return res
}

func TestEveryComponentMounts(t *testing.T) {
	reg := newRegistry(t, NewStore("first"))
	for _, def := range Definitions() {
		t.Run(def.Name(), func(t *testing.T) {
			res := mount(t, reg, def.Name(), nil)
			assert.True(t, res.HTMLContains(`island-name="`+def.Name()+`"`), res.HTML)
			assert.NotEmpty(t, res.Snapshot)
		})
	}
}

func TestTemplatesAreDeterministic(t *testing.T) {
	view := forgewire.View{
		State:    map[string]any{"title": "x", "filter": "pending"},
		Computed: map[string]any{"items": []Todo{{ID: "todo-1", Title: "a"}, {ID: "todo-2", Title: "b", Done: true}}},
		Errors:   forgewire.Errors{"title": {"too long"}},
	}
	var first, second bytes.Buffer
	require.NoError(t, todosView(view).Render(context.Background(), &first))
	require.NoError(t, todosView(view).Render(context.Background(), &second))
	assert.Equal(t, first.String(), second.String())
	assert.Contains(t, first.String(), `<li class="todo done" key="todo-2">`)
	assert.Contains(t, first.String(), `<option selected value="pending">pending</option>`)
	assert.Contains(t, first.String(), `<p class="error" data-field="title">too long</p>`)
}

func TestCounter(t *testing.T) {
	reg := newRegistry(t, NewStore())
	res := mount(t, reg, "counter", forgewire.Props{"start": 3})
	assert.True(t, res.HTMLContains("<output>3</output>"))

	res, err := forgewire.TestCall(reg, res, "increment", nil)
	require.NoError(t, err)
	assert.True(t, res.HTMLContains("<output>4</output>"), res.HTML)

	res, err = forgewire.TestCall(reg, res, "increment", map[string]any{"by": "10"})
	require.NoError(t, err)
	assert.True(t, res.HTMLContains("<output>14</output>"), res.HTML)

	res, err = forgewire.TestCall(reg, res, "increment", map[string]any{"by": "1.5"})
	require.NoError(t, err)
	assert.True(t, res.HasError("step"))
	assert.True(t, res.HTMLContains("<output>14</output>"), res.HTML)

	res, err = forgewire.TestCall(reg, res, "reset", nil)
	require.NoError(t, err)
	assert.True(t, res.HasFlash(forgewire.FlashSuccess, "Counter reset!"))

	res, err = forgewire.TestCall(reg, res, "decrement", nil)
	require.NoError(t, err)
	assert.True(t, res.IsOK())
	assert.True(t, res.HasError("count"))
	assert.True(t, res.HTMLContains("<output>0</output>"))
}

func TestCounterStepModel(t *testing.T) {
	reg := newRegistry(t, NewStore())
	res := mount(t, reg, "counter", nil)

	res, err := forgewire.NewTestRequest(res).Update("step", "500").Execute(reg)
	require.NoError(t, err)
	assert.True(t, res.HasError("step"), "step is validated on update")

	res, err = forgewire.NewTestRequest(res).Update("step", "5").Call("increment", nil).Execute(reg)
	require.NoError(t, err)
	assert.False(t, res.HasError("step"))
	assert.True(t, res.HTMLContains("<output>5</output>"), res.HTML)
}

func TestContactValidatesBeforeSending(t *testing.T) {
	reg := newRegistry(t, NewStore())
	res := mount(t, reg, "contact", nil)

	invalid, err := forgewire.TestCall(reg, res, "send", nil)
	require.NoError(t, err)
	assert.True(t, invalid.IsOK(), "validation failures are not fatal")
	for _, f := range []string{"name", "email", "message"} {
		assert.True(t, invalid.HasError(f), f)
	}
	assert.False(t, invalid.HasEvent("contact:sent"))
	assert.True(t, invalid.HTMLContains("0 sent"))

	sent, err := forgewire.NewTestRequest(invalid).
		Update("name", "Ada").
		Update("email", "ada@example.com").
		Update("message", "Hello from the analytical engine").
		Call("send", nil).
		Execute(reg)
	require.NoError(t, err)
	assert.Empty(t, sent.Errors)
	assert.True(t, sent.HasFlash(forgewire.FlashSuccess, "Thanks Ada, your message was sent."))
	assert.True(t, sent.HasEvent("contact:sent"))
	assert.True(t, sent.HTMLContains("1 sent"))
	assert.False(t, sent.HTMLContains("ada@example.com"), "fields are cleared after sending")
}

func TestSearch(t *testing.T) {
	reg := newRegistry(t, NewStore())
	res := mount(t, reg, "search", forgewire.Props{"limit": 5})
	assert.False(t, res.HTMLContains("<li>"))

	res, err := forgewire.NewTestRequest(res).Update("query", "ro").Targets("results").Execute(reg)
	require.NoError(t, err)
	require.True(t, res.HasFragment("results"), "fragments: %v", res.Fragments)
	assert.Contains(t, res.Fragments["results"], "<li>Rob Pike</li><li>Robert Griesemer</li>")

	res, err = forgewire.TestCall(reg, res, "clear", nil)
	require.NoError(t, err)
	assert.False(t, res.HTMLContains("<li>"))
}

func TestMatch(t *testing.T) {
	tests := []struct {
		query string
		limit int
		want  []string
	}{
		{"", 5, nil},
		{"  ", 5, nil},
		{"a", 2, []string{"Ada Lovelace", "Alan Turing"}},
		{"HOPPER", 5, []string{"Grace Hopper"}},
		{"zzz", 5, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Match(People, tt.query, tt.limit), "query %q", tt.query)
	}
}

func TestClock(t *testing.T) {
	reg := newRegistry(t, NewStore())
	res := mount(t, reg, "clock", forgewire.Props{"zone": "UTC"})
	assert.True(t, res.HTMLContains("<time>12:34:56</time>"), res.HTML)
	assert.True(t, res.HTMLContains(`poll="1s"`))

	res, err := forgewire.TestCall(reg, res, "tick", nil)
	require.NoError(t, err)
	assert.True(t, res.HTMLContains("UTC / 1 ticks"), res.HTML)

	_, err = forgewire.TestMount(reg, "clock", forgewire.Props{"zone": "Nowhere/Special"})
	assert.Error(t, err)
}

func TestTodosNotifyStats(t *testing.T) {
	store := NewStore("Buy groceries")
	reg := newRegistry(t, store)

	stats := mount(t, reg, "stats", nil)
	assert.True(t, stats.HTMLContains(`island-listen="todo:added=changed todo:changed=changed"`), stats.HTML)
	assert.True(t, stats.HTMLContains("1 total, 1 pending, 0 done"))

	todos := mount(t, reg, "todos", nil)
	assert.True(t, todos.HTMLContains("Buy groceries"))

	empty, err := forgewire.TestCall(reg, todos, "add", nil)
	require.NoError(t, err)
	assert.True(t, empty.HasError("title"))
	assert.Equal(t, 1, store.Stats().Total)

	added, err := forgewire.NewTestRequest(todos).Update("title", "Write docs").Call("add", nil).Execute(reg)
	require.NoError(t, err)
	assert.True(t, added.HasEvent("todo:added"))
	assert.True(t, added.HTMLContains("Write docs"))
	assert.Equal(t, 2, store.Stats().Total)

	var id string
	for _, e := range added.Effects {
		if e.Type == protocol.EffectDispatch {
			id, _ = e.Payload["id"].(string)
		}
	}
	require.NotEmpty(t, id)

	stats, err = forgewire.TestCall(reg, stats, "changed", map[string]any{"id": id})
	require.NoError(t, err)
	assert.True(t, stats.HTMLContains("2 total, 2 pending, 0 done"), stats.HTML)
	assert.True(t, stats.HTMLContains("1 updates"))

	toggled, err := forgewire.TestCall(reg, added, "toggle", map[string]any{"id": id})
	require.NoError(t, err)
	assert.True(t, toggled.HasEvent("todo:changed"))
	assert.Equal(t, 1, store.Stats().Completed)

	missing, err := forgewire.TestCall(reg, toggled, "remove", map[string]any{"id": "todo-99"})
	require.NoError(t, err)
	assert.True(t, missing.HasFlashLevel(forgewire.FlashError))
}

func TestHitsAreShared(t *testing.T) {
	broker, err := shared.NewBroker(shared.NewMemory())
	require.NoError(t, err)
	reg := newRegistry(t, NewStore(), forgewire.WithBroker(broker))

	a := mount(t, reg, "hits", nil)
	b := mount(t, reg, "hits", nil)
	assert.True(t, b.HTMLContains(`island-shared="`+HitsKey+`"`))

	_, err = forgewire.TestCall(reg, a, "bump", nil)
	require.NoError(t, err)

	b, err = forgewire.TestCall(reg, b, protocol.RefreshAction, nil)
	require.NoError(t, err)
	assert.True(t, b.HTMLContains("1 hits"), b.HTML)
}

func TestPage(t *testing.T) {
	reg := newRegistry(t, NewStore())
	var failures []error
	h := Handler(reg, "ws://localhost/_wire/ws", func(err error) { failures = append(failures, err) })

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Empty(t, failures)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	for _, def := range Definitions() {
		assert.Contains(t, body, `island-name="`+def.Name()+`"`)
	}
	assert.Contains(t, body, `data-watch="ws://localhost/_wire/ws"`)
	assert.Contains(t, body, `<div id="toasts" class="toast-container"></div>`)
}
