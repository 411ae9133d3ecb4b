package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/a-h/templ"

	"github.com/pthm/forgewire"
)

// Stats summarises the Store. It refreshes when Todos dispatches a change
// and polls as a fallback.
//
//wire:component stats
type Stats struct {
	Updates int `wire:"updates"`

	store *Store
}

//wire:computed summary
func (s *Stats) Summary(_ context.Context) (any, error) {
	return s.store.Stats(), nil
}

//wire:action param=id:string?
//wire:listen todo:added
//wire:listen todo:changed
func (s *Stats) Changed(_ context.Context, _ forgewire.Args) forgewire.Result {
	s.Updates++
	return forgewire.OK()
}

func statsView(v forgewire.View) templ.Component {
	return component(func(m *markup) {
		st := v.Computed["summary"].(TodoStats)
		m.open("aside", attr("class", "stats"), forgewire.Poll(5*time.Second, ""))
		m.elem("span", fmt.Sprintf("%d total, %d pending, %d done", st.Total, st.Pending, st.Completed))
		m.elem("small", fmt.Sprintf("%d updates", v.State["updates"].(int)))
		m.close("aside")
	})
}
