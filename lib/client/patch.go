package client

import (
	"fmt"
	"slices"

	"golang.org/x/net/html"

	"github.com/pthm/forgewire/lib/dom"
	"github.com/pthm/forgewire/lib/protocol"
)

// preserved is the live browser state carried across a patch, keyed by
// element identity.
type preserved struct {
	focus    string
	caret    int
	hasFocus bool
	values   map[string]string
	scroll   map[string]int
}

// capture records focus, caret, uncommitted values and scroll offsets
// inside the island.
func (isl *island) capture() preserved {
	doc := isl.c.doc
	p := preserved{values: map[string]string{}, scroll: map[string]int{}}
	if f := doc.Focused(); f != nil && dom.Contains(isl.root, f) {
		if id, ok := dom.Identity(f); ok {
			p.focus, p.caret, p.hasFocus = id, doc.Caret(), true
		}
	}
	dom.Walk(isl.root, func(n *html.Node) {
		id, ok := dom.Identity(n)
		if !ok {
			return
		}
		if doc.Dirty(n) && isl.uncommitted(n, doc.Value(n)) {
			p.values[id] = doc.Value(n)
		}
		if top := doc.ScrollTop(n); top != 0 {
			p.scroll[id] = top
		}
	})
	return p
}

// uncommitted reports whether the server has not yet seen value for n.
func (isl *island) uncommitted(n *html.Node, value string) bool {
	a, ok := dom.AttrPrefix(n, protocol.AttrModel)
	if !ok {
		return true
	}
	sent, ok := isl.sent[a.Val]
	return !ok || sent != value
}

func (p preserved) restore(doc *dom.Document, root *html.Node) {
	for id, v := range p.values {
		if n := dom.FindIdentity(root, id); n != nil {
			doc.SetValue(n, v)
		}
	}
	for id, top := range p.scroll {
		if n := dom.FindIdentity(root, id); n != nil {
			doc.SetScrollTop(n, top)
		}
	}
	if p.hasFocus {
		if n := dom.FindIdentity(root, p.focus); n != nil {
			_ = doc.Focus(n)
			doc.SetCaret(p.caret)
		}
	}
}

// patch applies a successful response: a targeted swap when fragments are
// present, otherwise a whole-island swap. Bindings on removed nodes are
// released and new nodes bound.
func (isl *island) patch(resp protocol.Response) error {
	doc := isl.c.doc
	if !doc.Attached(isl.root) {
		return dom.ErrDetached
	}
	state := isl.capture()

	if len(resp.Fragments) > 0 {
		ids := make([]string, 0, len(resp.Fragments))
		for id := range resp.Fragments {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		olds := make([]*html.Node, len(ids))
		for i, id := range ids {
			if olds[i] = dom.ByAttr(isl.root, protocol.AttrTarget, id); olds[i] == nil {
				return fmt.Errorf("client: island %s: no target %q", isl.id, id)
			}
		}
		for i, id := range ids {
			old := olds[i]
			if !doc.Attached(old) {
				// Inside a target replaced earlier in this patch.
				continue
			}
			if _, err := doc.Replace(old, resp.Fragments[id]); err != nil {
				return fmt.Errorf("client: island %s: target %q: %w", isl.id, id, err)
			}
		}
		dom.SetAttr(isl.root, protocol.AttrSnapshot, resp.Snapshot)
	} else {
		root, err := doc.Replace(isl.root, resp.HTML)
		if err != nil {
			return fmt.Errorf("client: island %s: %w", isl.id, err)
		}
		isl.root = root
		dom.SetAttr(root, protocol.AttrIsland, isl.id)
		if resp.Snapshot != "" {
			dom.SetAttr(root, protocol.AttrSnapshot, resp.Snapshot)
		}
	}
	isl.readRoot()

	state.restore(doc, isl.root)
	isl.scan()
	return nil
}
