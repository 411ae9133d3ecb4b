package demo

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/a-h/templ"

	"github.com/pthm/forgewire"
)

// markup accumulates template output. Attribute sets are written in sorted
// order so identical views render identical HTML.
type markup struct {
	strings.Builder
}

func (m *markup) open(tag string, sets ...forgewire.WireAttrs) {
	m.WriteString("<" + tag)
	merged := forgewire.WireAttrs{}
	for _, set := range sets {
		for k, v := range set {
			merged[k] = v
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		switch v := merged[k].(type) {
		case bool:
			if v {
				m.WriteString(" " + k)
			}
		default:
			fmt.Fprintf(&m.Builder, ` %s="%s"`, k, templ.EscapeString(fmt.Sprint(v)))
		}
	}
	m.WriteString(">")
}

func (m *markup) close(tag string) {
	m.WriteString("</" + tag + ">")
}

func (m *markup) text(s string) {
	m.WriteString(templ.EscapeString(s))
}

// elem writes a complete element with escaped text content.
func (m *markup) elem(tag, text string, sets ...forgewire.WireAttrs) {
	m.open(tag, sets...)
	m.text(text)
	m.close(tag)
}

// fieldError writes the first validation message for field, if any.
func (m *markup) fieldError(v forgewire.View, field string) {
	if msg := v.Errors.First(field); msg != "" {
		m.elem("p", msg, forgewire.WireAttrs{"class": "error", "data-field": field})
	}
}

// component adapts a markup builder to templ.
func component(build func(m *markup)) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var m markup
		build(&m)
		_, err := io.WriteString(w, m.String())
		return err
	})
}

func attr(k string, v any) forgewire.WireAttrs {
	return forgewire.WireAttrs{k: v}
}
