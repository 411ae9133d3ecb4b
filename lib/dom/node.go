package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Attr returns the value of the attribute key on n.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// AttrPrefix returns the first attribute whose key is prefix or starts with
// prefix followed by a dot, e.g. "model" matches "model.lazy".
func AttrPrefix(n *html.Node, prefix string) (html.Attribute, bool) {
	for _, a := range n.Attr {
		if a.Namespace != "" {
			continue
		}
		if a.Key == prefix || strings.HasPrefix(a.Key, prefix+".") {
			return a, true
		}
	}
	return html.Attribute{}, false
}

// SetAttr sets or replaces an attribute.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes an attribute if present.
func RemoveAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// Contains reports whether n is root or one of its descendants.
func Contains(root, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == root {
			return true
		}
	}
	return false
}

// Walk visits root and its descendants in document order.
func Walk(root *html.Node, fn func(*html.Node)) {
	fn(root)
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, fn)
	}
}

// Find returns the first element under root matching fn.
func Find(root *html.Node, fn func(*html.Node) bool) *html.Node {
	var found *html.Node
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && fn(n) {
			found = n
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(root)
	return found
}

// FindAll returns every element under root matching fn, in document order.
func FindAll(root *html.Node, fn func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	Walk(root, func(n *html.Node) {
		if n.Type == html.ElementNode && fn(n) {
			out = append(out, n)
		}
	})
	return out
}

// ByAttr returns the first element under root with key=val.
func ByAttr(root *html.Node, key, val string) *html.Node {
	return Find(root, func(n *html.Node) bool {
		v, ok := Attr(n, key)
		return ok && v == val
	})
}

// ByID returns the element with the given id.
func ByID(root *html.Node, id string) *html.Node {
	return ByAttr(root, "id", id)
}

// Text returns the concatenated text content of n.
func Text(n *html.Node) string {
	var b strings.Builder
	Walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return b.String()
}

// DefaultValue returns the value a form control has in its markup.
func DefaultValue(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "textarea" {
		return Text(n)
	}
	v, _ := Attr(n, "value")
	return v
}

// identityAttrs are checked in order; the first present one identifies an
// element across re-renders.
var identityAttrs = []string{"id", "model", "name", "key"}

// Identity returns a key that identifies n across re-renders: its tag plus
// its first stable attribute. ok is false for elements without one.
func Identity(n *html.Node) (string, bool) {
	if n == nil || n.Type != html.ElementNode {
		return "", false
	}
	for _, key := range identityAttrs {
		if key == "model" {
			if a, ok := AttrPrefix(n, key); ok {
				return n.Data + "[model=" + a.Val + "]", true
			}
			continue
		}
		if v, ok := Attr(n, key); ok && v != "" {
			return n.Data + "[" + key + "=" + v + "]", true
		}
	}
	return "", false
}

// FindIdentity returns the element under root with the given identity.
func FindIdentity(root *html.Node, identity string) *html.Node {
	return Find(root, func(n *html.Node) bool {
		id, ok := Identity(n)
		return ok && id == identity
	})
}
