package client

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/pthm/forgewire/lib/dom"
	"github.com/pthm/forgewire/lib/protocol"
)

// island is the client side of one mounted component.
type island struct {
	c    *Client
	id   string
	root *html.Node

	name     string
	route    string
	snapshot string
	shared   []string
	listen   map[string]string

	bindings map[*html.Node][]*binding

	// Model values not yet sent: deferred fields and fields whose debounce
	// window is still open.
	deferred  map[string]string
	debounced map[string]*pendingValue
	// Last value sent per field.
	sent map[string]string

	inflight bool
	queued   *batch
}

type pendingValue struct {
	value string
	timer Timer
}

type binding struct {
	node   *html.Node
	dir    Directive
	remove func()
	timer  Timer
}

// batch is what one or more coalesced triggers want to send.
type batch struct {
	calls   []protocol.Call
	updates map[string]string
	targets []string
	// whole is set when any coalesced trigger wants the full island.
	whole bool
	// flush sends pending model values along with the batch.
	flush bool
}

func newIsland(c *Client, root *html.Node) *island {
	isl := &island{
		c:         c,
		id:        attrOr(root, protocol.AttrIsland),
		root:      root,
		bindings:  map[*html.Node][]*binding{},
		deferred:  map[string]string{},
		debounced: map[string]*pendingValue{},
		sent:      map[string]string{},
	}
	isl.readRoot()
	return isl
}

// readRoot syncs island metadata from the root element's attributes.
func (isl *island) readRoot() {
	isl.name = attrOr(isl.root, protocol.AttrIslandName)
	isl.route = attrOr(isl.root, protocol.AttrIslandRoute)
	isl.snapshot = attrOr(isl.root, protocol.AttrSnapshot)
	isl.shared = strings.Fields(attrOr(isl.root, protocol.AttrShared))
	isl.listen = parseListen(attrOr(isl.root, protocol.AttrListen))
}

// scan drops bindings on nodes that left the island and binds every
// directive element not yet bound.
func (isl *island) scan() {
	for n, bs := range isl.bindings {
		if dom.Contains(isl.root, n) && isl.c.doc.Attached(n) {
			continue
		}
		for _, b := range bs {
			isl.release(b)
		}
		delete(isl.bindings, n)
	}
	dom.Walk(isl.root, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if _, bound := isl.bindings[n]; bound {
			return
		}
		dirs, err := Parse(n, isl.c.debounce)
		if err != nil {
			isl.c.logger.Warn("malformed directive", zap.String("island", isl.id), zap.Error(err))
		}
		for _, d := range dirs {
			isl.bindings[n] = append(isl.bindings[n], isl.bind(n, d))
		}
	})
}

func (isl *island) unbind() {
	for n, bs := range isl.bindings {
		for _, b := range bs {
			isl.release(b)
		}
		delete(isl.bindings, n)
	}
	for field, p := range isl.debounced {
		isl.c.stop(p.timer)
		delete(isl.debounced, field)
	}
}

func (isl *island) release(b *binding) {
	if b.remove != nil {
		b.remove()
	}
	isl.c.stop(b.timer)
	b.timer = nil
}

func (isl *island) bind(n *html.Node, d Directive) *binding {
	b := &binding{node: n, dir: d}
	doc := isl.c.doc
	switch d.Kind {
	case KindTrigger:
		b.remove = doc.Listen(n, d.Event, func(_ *html.Node, ev *dom.Event) {
			if d.Key != "" && !strings.EqualFold(ev.Key, d.Key) {
				return
			}
			ev.StopPropagation()
			isl.send(batch{
				calls:   []protocol.Call{{Action: d.Action, Args: encodeParams(d.Params)}},
				targets: d.Targets,
				whole:   len(d.Targets) == 0,
				flush:   true,
			})
		})
	case KindModel:
		b.remove = isl.bindModel(n, d)
	case KindPoll:
		isl.schedulePoll(b)
	case KindLoading:
		isl.showLoading(b)
	}
	return b
}

func (isl *island) bindModel(n *html.Node, d Directive) func() {
	doc := isl.c.doc
	switch d.Mode {
	case ModelLazy:
		send := func(_ *html.Node, _ *dom.Event) {
			isl.sendUpdate(d.Field, doc.Value(n))
		}
		offChange := doc.Listen(n, "change", send)
		offBlur := doc.Listen(n, "blur", send)
		return func() { offChange(); offBlur() }
	case ModelDefer:
		return doc.Listen(n, "input", func(_ *html.Node, _ *dom.Event) {
			isl.deferred[d.Field] = doc.Value(n)
		})
	case ModelDebounce:
		return doc.Listen(n, "input", func(_ *html.Node, _ *dom.Event) {
			p := isl.debounced[d.Field]
			if p == nil {
				p = &pendingValue{}
				isl.debounced[d.Field] = p
			}
			p.value = doc.Value(n)
			isl.c.stop(p.timer)
			p.timer = isl.c.after(d.Debounce, func() {
				if isl.debounced[d.Field] != p {
					return
				}
				delete(isl.debounced, d.Field)
				isl.sendUpdate(d.Field, p.value)
			})
		})
	default:
		return doc.Listen(n, "input", func(_ *html.Node, _ *dom.Event) {
			isl.sendUpdate(d.Field, doc.Value(n))
		})
	}
}

func (isl *island) sendUpdate(field, value string) {
	isl.send(batch{updates: map[string]string{field: value}, whole: true})
}

func (isl *island) schedulePoll(b *binding) {
	b.timer = isl.c.after(b.dir.Interval, func() {
		b.timer = nil
		if !isl.c.doc.Attached(b.node) || !dom.Contains(isl.root, b.node) {
			return
		}
		isl.send(batch{calls: []protocol.Call{{Action: b.dir.Action}}, whole: true})
		isl.schedulePoll(b)
	})
}

// showLoading renders a loading element in its idle state.
func (isl *island) showLoading(b *binding) {
	visible := b.dir.Remove
	if isl.inflight {
		visible = !visible
	}
	if visible {
		dom.RemoveAttr(b.node, "hidden")
	} else {
		dom.SetAttr(b.node, "hidden", "")
	}
}

func (isl *island) setLoading() {
	for _, bs := range isl.bindings {
		for _, b := range bs {
			if b.dir.Kind == KindLoading {
				isl.showLoading(b)
			}
		}
	}
}

// takePending removes and returns every unsent model value.
func (isl *island) takePending() map[string]string {
	out := map[string]string{}
	maps.Copy(out, isl.deferred)
	clear(isl.deferred)
	for field, p := range isl.debounced {
		isl.c.stop(p.timer)
		out[field] = p.value
		delete(isl.debounced, field)
	}
	return out
}

// send issues b, or merges it into the queued batch while a request is in
// flight.
func (isl *island) send(b batch) {
	if isl.c.closed {
		return
	}
	if isl.inflight {
		if isl.queued == nil {
			isl.queued = &batch{}
		}
		isl.queued.merge(b)
		return
	}
	isl.dispatch(b)
}

func (q *batch) merge(b batch) {
	q.calls = append(q.calls, b.calls...)
	if len(b.updates) > 0 {
		if q.updates == nil {
			q.updates = map[string]string{}
		}
		maps.Copy(q.updates, b.updates)
	}
	for _, t := range b.targets {
		if !slices.Contains(q.targets, t) {
			q.targets = append(q.targets, t)
		}
	}
	q.whole = q.whole || b.whole
	q.flush = q.flush || b.flush
}

func (isl *island) dispatch(b batch) {
	updates := b.updates
	if b.flush {
		pending := isl.takePending()
		maps.Copy(pending, b.updates)
		updates = pending
	}
	req := protocol.Request{
		Component: isl.name,
		Island:    isl.id,
		Snapshot:  isl.snapshot,
		Calls:     b.calls,
	}
	if len(updates) > 0 {
		req.Updates = make(map[string]json.RawMessage, len(updates))
		for field, v := range updates {
			req.Updates[field] = encode(v)
			isl.sent[field] = v
		}
	}
	if !b.whole {
		req.Targets = b.targets
	}

	isl.inflight = true
	isl.setLoading()
	c := isl.c
	c.transport.Send(c.ctx, isl.route, req, func(r Reply) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		isl.complete(r)
	})
}

func (isl *island) complete(r Reply) {
	isl.inflight = false
	isl.setLoading()

	c := isl.c
	switch {
	case r.Err != nil:
		c.fail(isl, Failure{Island: isl.id, Component: isl.name, Status: r.Status, Code: protocol.CodeInternal, Message: "Request failed.", Err: r.Err})
	case r.Failure != nil:
		f := Failure{Island: isl.id, Component: isl.name, Status: r.Status, Code: r.Failure.Error.Code, Message: r.Failure.Error.Message}
		for _, e := range r.Failure.Effects {
			if e.Type == protocol.EffectFailure && e.Message != "" {
				f.Message = e.Message
			}
		}
		c.fail(isl, f)
	default:
		if err := isl.patch(r.Response); err != nil {
			c.fail(isl, Failure{Island: isl.id, Component: isl.name, Status: r.Status, Code: protocol.CodeInternal, Message: "Could not apply update.", Err: err})
		} else {
			c.runEffects(r.Response.Effects)
		}
	}

	if q := isl.queued; q != nil && !c.closed {
		isl.queued = nil
		isl.dispatch(*q)
	}
}

func encode(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}

func encodeParams(params map[string]string) map[string]json.RawMessage {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage, len(params))
	for k, v := range params {
		out[k] = encode(v)
	}
	return out
}

func encodeArgs(args map[string]any) map[string]json.RawMessage {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage, len(args))
	for k, v := range args {
		out[k] = encode(v)
	}
	return out
}
