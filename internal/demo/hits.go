package demo

import (
	"context"
	"strconv"

	"github.com/a-h/templ"

	"github.com/pthm/forgewire"
)

// HitsKey is the shared-state key every Hits island reads and writes.
const HitsKey = "demo:hits"

// Hits is a counter shared by every island on every page. Other islands see
// a bump on their next action, poll, or watcher refresh.
//
//wire:component hits
type Hits struct {
	Total int `wire:"total,shared=demo:hits"`
}

//wire:action
func (h *Hits) Bump(_ context.Context, _ forgewire.Args) forgewire.Result {
	h.Total++
	return forgewire.OK().Dispatch("hits:bumped", map[string]any{"total": h.Total})
}

func hitsView(v forgewire.View) templ.Component {
	return component(func(m *markup) {
		m.open("div", attr("class", "hits"))
		m.elem("span", strconv.Itoa(v.State["total"].(int))+" hits")
		m.elem("button", "Bump", forgewire.Trigger("bump"))
		m.elem("span", "saving", forgewire.Loading())
		m.close("div")
	})
}
