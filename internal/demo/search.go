package demo

import (
	"context"
	"slices"
	"strings"

	"github.com/a-h/templ"

	"github.com/pthm/forgewire"
)

// People is the directory the live search filters.
var People = []string{
	"Ada Lovelace",
	"Alan Turing",
	"Barbara Liskov",
	"Dennis Ritchie",
	"Donald Knuth",
	"Edsger Dijkstra",
	"Frances Allen",
	"Grace Hopper",
	"John McCarthy",
	"Ken Thompson",
	"Leslie Lamport",
	"Margaret Hamilton",
	"Niklaus Wirth",
	"Rob Pike",
	"Robert Griesemer",
}

// Search filters People as the user types.
//
//wire:component search
type Search struct {
	Query string `wire:"query" rules:"max:40"`
	Limit int    `wire:"limit" rules:"between:1,50"`
}

//wire:mount
func (s *Search) Mount(_ context.Context, props forgewire.Props) error {
	s.Limit = 5
	if limit, ok := props["limit"].(int); ok {
		s.Limit = limit
	}
	return nil
}

//wire:computed results
func (s *Search) Results(_ context.Context) (any, error) {
	return Match(People, s.Query, s.Limit), nil
}

//wire:action
func (s *Search) Clear(_ context.Context, _ forgewire.Args) forgewire.Result {
	s.Query = ""
	return forgewire.OK()
}

// Match returns up to limit names containing query, case-insensitively.
// An empty query matches nothing.
func Match(names []string, query string, limit int) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	var out []string
	for _, n := range names {
		if len(out) == limit {
			break
		}
		if strings.Contains(strings.ToLower(n), query) {
			out = append(out, n)
		}
	}
	return slices.Clip(out)
}

func searchView(v forgewire.View) templ.Component {
	return component(func(m *markup) {
		m.open("div", attr("class", "search"))
		m.open("input",
			attr("type", "search"),
			attr("name", "query"),
			attr("value", v.State["query"]),
			forgewire.Model("query").Debounce(0).Attrs(),
		)
		m.elem("button", "Clear", forgewire.Trigger("clear"))
		m.fieldError(v, "query")
		m.open("ul", forgewire.Target("results"))
		for _, name := range v.Computed["results"].([]string) {
			m.elem("li", name)
		}
		m.close("ul")
		m.close("div")
	})
}
