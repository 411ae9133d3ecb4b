// Package client is the browser half of forgewire, written against the
// headless document in lib/dom.
//
// A Client finds island roots in a document, binds their directive
// attributes, sends action requests through a Transport and patches the
// responses back in. Every DOM operation and every callback runs under one
// lock, so the document sees a single-threaded event loop:
//
//	doc, _ := dom.Parse(page)
//	c := client.New(doc, &client.HTTPTransport{BaseURL: srv.URL})
//	if err := c.Start(); err != nil { ... }
//	c.Click(dom.ByAttr(doc.Root(), "action-trigger", "increment"))
package client

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pthm/forgewire/lib/dom"
	"github.com/pthm/forgewire/lib/protocol"
)

// Failure describes a fatal action response.
type Failure struct {
	Island    string
	Component string
	Status    int
	Code      string
	Message   string
	Err       error
}

// ToastContainerID is the element that receives flash toasts when no
// OnFlash hook is set.
const ToastContainerID = "toasts"

// ToastDismiss is how long a default toast stays in the document.
const ToastDismiss = 3 * time.Second

// Hooks receive effects and failures. They run with the client lock held
// and must not call back into the Client.
type Hooks struct {
	OnRedirect func(url string)
	OnFlash    func(level, message string) // nil appends a toast to #toasts
	OnEvent    func(event string, payload map[string]any)
	OnFailure  func(Failure)
}

// Option configures a Client.
type Option func(*Client)

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithHooks sets the effect and failure hooks.
func WithHooks(h Hooks) Option {
	return func(c *Client) {
		c.hooks = h
	}
}

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithDebounce changes the default model.debounce window.
func WithDebounce(d time.Duration) Option {
	return func(c *Client) {
		c.debounce = d
	}
}

// Client binds and drives every island in a document.
type Client struct {
	mu        sync.Mutex
	doc       *dom.Document
	transport Transport
	clock     Clock
	hooks     Hooks
	logger    *zap.Logger
	debounce  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	islands map[string]*island
	order   []string
	timers  map[Timer]struct{}
	closed  bool
}

// New creates a client for doc. Call Start to bind it.
func New(doc *dom.Document, transport Transport, opts ...Option) *Client {
	c := &Client{
		doc:       doc,
		transport: transport,
		clock:     realClock{},
		logger:    zap.NewNop(),
		debounce:  DefaultDebounce,
		islands:   map[string]*island{},
		timers:    map[Timer]struct{}{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Start binds every island root in the document.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	roots := dom.FindAll(c.doc.Root(), func(n *html.Node) bool {
		_, ok := dom.Attr(n, protocol.AttrIsland)
		return ok
	})
	for _, root := range roots {
		if c.enclosingIsland(root) != nil {
			c.logger.Warn("nested island ignored", zap.String("island", attrOr(root, protocol.AttrIsland)))
			continue
		}
		isl := newIsland(c, root)
		if _, dup := c.islands[isl.id]; dup || isl.id == "" {
			c.logger.Warn("island without unique id ignored", zap.String("island", isl.id))
			continue
		}
		c.islands[isl.id] = isl
		c.order = append(c.order, isl.id)
		isl.scan()
	}
	return nil
}

// enclosingIsland returns the bound island containing n, if any.
func (c *Client) enclosingIsland(n *html.Node) *island {
	for _, isl := range c.islands {
		if dom.Contains(isl.root, n) {
			return isl
		}
	}
	return nil
}

// Close unbinds every island, stops all timers and cancels in-flight
// requests. Responses arriving afterwards are dropped.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, id := range c.order {
		c.islands[id].unbind()
	}
	for t := range c.timers {
		t.Stop()
	}
	clear(c.timers)
	c.cancel()
}

// after schedules f under the client lock. The timer is stopped by Close.
func (c *Client) after(d time.Duration, f func()) Timer {
	var t Timer
	t = c.clock.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.timers, t)
		if c.closed {
			return
		}
		f()
	})
	c.timers[t] = struct{}{}
	return t
}

func (c *Client) stop(t Timer) {
	if t == nil {
		return
	}
	t.Stop()
	delete(c.timers, t)
}

// Do runs fn with exclusive access to the document.
func (c *Client) Do(fn func(doc *dom.Document)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.doc)
}

// Fire dispatches an event at n as the browser would.
func (c *Client) Fire(n *html.Node, ev *dom.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Dispatch(n, ev)
}

// Click fires a click event.
func (c *Client) Click(n *html.Node) error {
	return c.Fire(n, &dom.Event{Type: "click"})
}

// Submit fires a submit event.
func (c *Client) Submit(n *html.Node) error {
	return c.Fire(n, &dom.Event{Type: "submit"})
}

// Key fires a keydown event for key.
func (c *Client) Key(n *html.Node, key string) error {
	return c.Fire(n, &dom.Event{Type: "keydown", Key: key})
}

// Input types value into n and fires an input event.
func (c *Client) Input(n *html.Node, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.doc.Attached(n) {
		return dom.ErrDetached
	}
	c.doc.SetValue(n, value)
	return c.doc.Dispatch(n, &dom.Event{Type: "input"})
}

// Change fires a change event, as when an input loses focus after editing.
func (c *Client) Change(n *html.Node) error {
	return c.Fire(n, &dom.Event{Type: "change"})
}

// Focus focuses n.
func (c *Client) Focus(n *html.Node) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Focus(n)
}

// Islands returns the bound island ids in document order.
func (c *Client) Islands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.order)
}

// Root returns the current root element of an island.
func (c *Client) Root(id string) *html.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	if isl, ok := c.islands[id]; ok {
		return isl.root
	}
	return nil
}

// InFlight reports whether an island has a request outstanding.
func (c *Client) InFlight(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	isl, ok := c.islands[id]
	return ok && isl.inflight
}

// Call runs an action on an island as if a trigger fired.
func (c *Client) Call(id, action string, args map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if isl, ok := c.islands[id]; ok {
		isl.send(batch{calls: []protocol.Call{{Action: action, Args: encodeArgs(args)}}, whole: true, flush: true})
	}
}

// SharedKeys returns every shared key any bound island depends on.
func (c *Client) SharedKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []string
	for _, id := range c.order {
		for _, k := range c.islands[id].shared {
			if !slices.Contains(keys, k) {
				keys = append(keys, k)
			}
		}
	}
	slices.Sort(keys)
	return keys
}

// RefreshShared re-renders every island bound to the shared key.
func (c *Client) RefreshShared(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.order {
		isl := c.islands[id]
		if slices.Contains(isl.shared, key) {
			isl.send(batch{calls: []protocol.Call{{Action: protocol.RefreshAction}}, whole: true})
		}
	}
}

// broadcast runs the listening action of every island that declared event.
func (c *Client) broadcast(event string, payload map[string]any) {
	for _, id := range c.order {
		isl := c.islands[id]
		action, ok := isl.listen[event]
		if !ok {
			continue
		}
		isl.send(batch{calls: []protocol.Call{{Action: action, Args: encodeArgs(payload)}}, whole: true, flush: true})
	}
}

func (c *Client) fail(isl *island, f Failure) {
	c.logger.Debug("action failed",
		zap.String("island", isl.id),
		zap.String("component", isl.name),
		zap.String("code", f.Code),
		zap.Error(f.Err))
	if c.hooks.OnFailure != nil {
		c.hooks.OnFailure(f)
	}
}

// runEffects executes effects exactly once, in order.
func (c *Client) runEffects(effects []protocol.Effect) {
	for _, e := range effects {
		switch e.Type {
		case protocol.EffectRedirect:
			if c.hooks.OnRedirect == nil {
				continue
			}
			url := e.URL
			if e.DelayMs > 0 {
				c.after(time.Duration(e.DelayMs)*time.Millisecond, func() { c.hooks.OnRedirect(url) })
				continue
			}
			c.hooks.OnRedirect(url)
		case protocol.EffectFlash:
			if c.hooks.OnFlash != nil {
				c.hooks.OnFlash(e.Level, e.Message)
				continue
			}
			c.toast(e.Level, e.Message)
		case protocol.EffectDispatch:
			if c.hooks.OnEvent != nil {
				c.hooks.OnEvent(e.Event, e.Payload)
			}
			c.broadcast(e.Event, e.Payload)
		default:
			c.logger.Debug("ignoring effect", zap.String("type", string(e.Type)))
		}
	}
}

// toast appends a flash message to the #toasts container and removes it
// after ToastDismiss. Pages without a container drop the message.
func (c *Client) toast(level, message string) {
	container := dom.ByID(c.doc.Root(), ToastContainerID)
	if container == nil {
		c.logger.Debug("no toast container", zap.String("level", level), zap.String("message", message))
		return
	}
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: "class", Val: "toast toast-" + level},
			{Key: "role", Val: "status"},
		},
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: message})
	container.AppendChild(n)
	c.after(ToastDismiss, func() {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	})
}

func attrOr(n *html.Node, key string) string {
	v, _ := dom.Attr(n, key)
	return v
}

// parseListen reads island-listen="event=action ..." pairs.
func parseListen(v string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Fields(v) {
		event, action, ok := strings.Cut(pair, protocol.ListenSeparator)
		if ok && event != "" && action != "" {
			out[event] = action
		}
	}
	return out
}
