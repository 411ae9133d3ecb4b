// Package dom is a small live document model over golang.org/x/net/html.
//
// It tracks the browser state the client runtime has to preserve across
// patches: which element has focus, the caret position inside it, live input
// values that differ from the markup, scroll offsets and event listeners.
// Events bubble from the target to the document root.
//
// A Document is not safe for concurrent use. The client runtime serializes
// all access under its own lock.
package dom

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ErrDetached is returned when an operation needs an element that is no
// longer part of the document.
var ErrDetached = errors.New("dom: element is not attached")

// Event is delivered to listeners, innermost element first.
type Event struct {
	Type   string
	Key    string // keyboard events only
	Target *html.Node

	stopped bool
}

// StopPropagation prevents ancestors from seeing the event.
func (e *Event) StopPropagation() { e.stopped = true }

// Handler handles an event. current is the element the listener is
// registered on.
type Handler func(current *html.Node, ev *Event)

type listener struct {
	event   string
	handler Handler
	removed bool
}

// Document is a parsed HTML document plus its live state.
type Document struct {
	root *html.Node

	focused   *html.Node
	caret     int
	values    map[*html.Node]string
	scroll    map[*html.Node]int
	listeners map[*html.Node][]*listener
}

// Parse parses a complete HTML document.
func Parse(markup string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return &Document{
		root:      root,
		values:    map[*html.Node]string{},
		scroll:    map[*html.Node]int{},
		listeners: map[*html.Node][]*listener{},
	}, nil
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// Body returns the <body> element.
func (d *Document) Body() *html.Node {
	return Find(d.root, func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == "body" })
}

// Attached reports whether n is part of the document tree.
func (d *Document) Attached(n *html.Node) bool {
	return n != nil && Contains(d.root, n)
}

// Listen registers h for event on n and returns a function that removes it.
func (d *Document) Listen(n *html.Node, event string, h Handler) (remove func()) {
	l := &listener{event: event, handler: h}
	d.listeners[n] = append(d.listeners[n], l)
	return func() {
		l.removed = true
		ls := d.listeners[n]
		for i, x := range ls {
			if x == l {
				d.listeners[n] = append(ls[:i:i], ls[i+1:]...)
				break
			}
		}
		if len(d.listeners[n]) == 0 {
			delete(d.listeners, n)
		}
	}
}

// Listeners returns the number of listeners registered on n.
func (d *Document) Listeners(n *html.Node) int { return len(d.listeners[n]) }

// Dispatch fires ev at target and bubbles it up to the document root.
// Events on detached elements are dropped.
func (d *Document) Dispatch(target *html.Node, ev *Event) error {
	if !d.Attached(target) {
		return ErrDetached
	}
	ev.Target = target
	for n := target; n != nil && !ev.stopped; n = n.Parent {
		// Copy: handlers may add or remove listeners.
		ls := append([]*listener(nil), d.listeners[n]...)
		for _, l := range ls {
			if l.removed || l.event != ev.Type {
				continue
			}
			l.handler(n, ev)
		}
	}
	return nil
}

// Focus moves focus to n and places the caret at the end of its value.
func (d *Document) Focus(n *html.Node) error {
	if !d.Attached(n) {
		return ErrDetached
	}
	d.focused = n
	d.caret = len([]rune(d.Value(n)))
	return nil
}

// Blur clears focus.
func (d *Document) Blur() {
	d.focused = nil
	d.caret = 0
}

// Focused returns the focused element, or nil.
func (d *Document) Focused() *html.Node {
	if d.focused != nil && !d.Attached(d.focused) {
		d.focused = nil
	}
	return d.focused
}

// Caret returns the caret position within the focused element.
func (d *Document) Caret() int { return d.caret }

// SetCaret moves the caret, clamped to the focused element's value.
func (d *Document) SetCaret(pos int) {
	if d.focused == nil {
		return
	}
	end := len([]rune(d.Value(d.focused)))
	d.caret = min(max(0, pos), end)
}

// Value returns the live value of a form control: the typed value if one
// exists, otherwise the markup default.
func (d *Document) Value(n *html.Node) string {
	if v, ok := d.values[n]; ok {
		return v
	}
	return DefaultValue(n)
}

// SetValue sets the live value of a form control, as typing would.
func (d *Document) SetValue(n *html.Node, v string) {
	d.values[n] = v
	if n == d.focused {
		d.caret = len([]rune(v))
	}
}

// Dirty reports whether n holds a live value different from its markup.
func (d *Document) Dirty(n *html.Node) bool {
	v, ok := d.values[n]
	return ok && v != DefaultValue(n)
}

// ScrollTop returns the vertical scroll offset of n.
func (d *Document) ScrollTop(n *html.Node) int { return d.scroll[n] }

// SetScrollTop scrolls n.
func (d *Document) SetScrollTop(n *html.Node, top int) {
	if top == 0 {
		delete(d.scroll, n)
		return
	}
	d.scroll[n] = top
}

// Scrolled returns every attached element with a non-zero scroll offset
// inside root.
func (d *Document) Scrolled(root *html.Node) []*html.Node {
	var out []*html.Node
	for n := range d.scroll {
		if Contains(root, n) {
			out = append(out, n)
		}
	}
	return out
}

// Replace parses markup in the context of old's parent and swaps the single
// resulting element in for old. Live state held by the old subtree is
// dropped.
func (d *Document) Replace(old *html.Node, markup string) (*html.Node, error) {
	if !d.Attached(old) || old.Parent == nil {
		return nil, ErrDetached
	}
	context := old.Parent
	if context.Type != html.ElementNode {
		context = d.Body()
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, fmt.Errorf("dom: parse fragment: %w", err)
	}
	var repl *html.Node
	for _, n := range nodes {
		switch {
		case n.Type == html.ElementNode && repl == nil:
			repl = n
		case n.Type == html.ElementNode:
			return nil, fmt.Errorf("dom: fragment has more than one root element")
		case n.Type == html.TextNode && strings.TrimSpace(n.Data) != "":
			return nil, fmt.Errorf("dom: fragment has text outside its root element")
		}
	}
	if repl == nil {
		return nil, fmt.Errorf("dom: fragment has no root element")
	}
	old.Parent.InsertBefore(repl, old)
	old.Parent.RemoveChild(old)
	d.forget(old)
	return repl, nil
}

// forget drops live state attached to a detached subtree.
func (d *Document) forget(root *html.Node) {
	Walk(root, func(n *html.Node) {
		delete(d.values, n)
		delete(d.scroll, n)
		delete(d.listeners, n)
		if n == d.focused {
			d.Blur()
		}
	})
}

// Render returns the outer HTML of n.
func Render(n *html.Node) string {
	var buf bytes.Buffer
	_ = html.Render(&buf, n)
	return buf.String()
}
