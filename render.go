package forgewire

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pthm/forgewire/lib/protocol"
)

// View is the data handed to a component's template.
type View struct {
	Component any
	ID        string
	State     map[string]any
	Computed  map[string]any
	Errors    Errors
}

// Templates renders templ components registered by template name.
//
//	forgewire.Templates{
//	    "counter": func(v forgewire.View) templ.Component { return CounterView(v) },
//	}
type Templates map[string]func(View) templ.Component

func (t Templates) Render(ctx context.Context, _ any, template string, view View) (string, error) {
	fn, ok := t[template]
	if !ok {
		return "", fmt.Errorf("forgewire: no template %q", template)
	}
	var buf bytes.Buffer
	if err := fn(view).Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// rootAttrs are the island attributes written onto the template's root
// element.
type rootAttrs struct {
	id       string
	name     string
	route    string
	snapshot string
	shared   []string
	listen   map[string]string
}

func (r rootAttrs) list() []html.Attribute {
	attrs := []html.Attribute{
		{Key: protocol.AttrIsland, Val: r.id},
		{Key: protocol.AttrIslandName, Val: r.name},
		{Key: protocol.AttrIslandRoute, Val: r.route},
		{Key: protocol.AttrSnapshot, Val: r.snapshot},
	}
	if len(r.shared) > 0 {
		attrs = append(attrs, html.Attribute{Key: protocol.AttrShared, Val: strings.Join(r.shared, " ")})
	}
	if len(r.listen) > 0 {
		pairs := make([]string, 0, len(r.listen))
		for event, action := range r.listen {
			pairs = append(pairs, event+protocol.ListenSeparator+action)
		}
		slices.Sort(pairs)
		attrs = append(attrs, html.Attribute{Key: protocol.AttrListen, Val: strings.Join(pairs, " ")})
	}
	return attrs
}

var bodyContext = &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}

// parseRoot parses rendered HTML and returns its single root element.
func parseRoot(markup string) (*html.Node, error) {
	nodes, err := html.ParseFragment(strings.NewReader(markup), bodyContext)
	if err != nil {
		return nil, fmt.Errorf("forgewire: parse rendered html: %w", err)
	}
	var root *html.Node
	for _, n := range nodes {
		switch n.Type {
		case html.ElementNode:
			if root != nil {
				return nil, fmt.Errorf("forgewire: template must render a single root element, found <%s> and <%s>", root.Data, n.Data)
			}
			root = n
		case html.TextNode:
			if strings.TrimSpace(n.Data) != "" {
				return nil, fmt.Errorf("forgewire: template must render a single root element, found text %q", strings.TrimSpace(n.Data))
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("forgewire: template rendered no root element")
	}
	return root, nil
}

// injectRoot writes the island attributes onto the root element of markup.
func injectRoot(markup string, attrs rootAttrs) (string, error) {
	root, err := parseRoot(markup)
	if err != nil {
		return "", err
	}
	for _, a := range attrs.list() {
		setAttr(root, a.Key, a.Val)
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// extractFragments returns the outer HTML of every target="id" subtree in
// markup. ok is false when any requested id is missing, in which case the
// caller falls back to the whole island.
func extractFragments(markup string, ids []string) (map[string]string, bool, error) {
	root, err := parseRoot(markup)
	if err != nil {
		return nil, false, err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	found := make(map[string]*html.Node, len(ids))
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if id, ok := attr(n, protocol.AttrTarget); ok && want[id] {
				if _, dup := found[id]; !dup {
					found[id] = n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if len(found) != len(want) {
		return nil, false, nil
	}
	out := make(map[string]string, len(found))
	for id, n := range found {
		var buf bytes.Buffer
		if err := html.Render(&buf, n); err != nil {
			return nil, false, err
		}
		out[id] = buf.String()
	}
	return out, true, nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
