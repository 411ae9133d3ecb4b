// Package demo holds the components served by forgewire serve. Each one
// exercises a different part of the runtime: snapshot-only state, shared
// state, deferred form fields with validation, debounced search with a
// targeted fragment, polling, injected dependencies and event listeners.
//
// Definitions live in the *_wire.go files written by forgewire generate.
package demo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/a-h/templ"

	"github.com/pthm/forgewire"
)

// Definitions returns every demo component definition.
func Definitions() []*forgewire.Definition {
	return []*forgewire.Definition{CounterDef, HitsDef, ContactDef, SearchDef, ClockDef, TodosDef, StatsDef}
}

// Templates renders the demo components.
func Templates() forgewire.Templates {
	return forgewire.Templates{
		"counter": counterView,
		"hits":    hitsView,
		"contact": contactView,
		"search":  searchView,
		"clock":   clockView,
		"todos":   todosView,
		"stats":   statsView,
	}
}

// Resolver injects store into the components that need it. now overrides
// the clock's time source; nil means time.Now.
func Resolver(store *Store, now func() time.Time) forgewire.Resolver {
	byName := make(map[string]*forgewire.Definition)
	for _, def := range Definitions() {
		byName[def.Name()] = def
	}
	return forgewire.ResolverFunc(func(_ context.Context, name string) (any, error) {
		switch name {
		case "todos":
			return &Todos{store: store}, nil
		case "stats":
			return &Stats{store: store}, nil
		case "clock":
			return &Clock{now: now}, nil
		}
		def, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("demo: no component %q", name)
		}
		return def.New(), nil
	})
}

// Options returns the registry options the demo needs.
func Options(store *Store) []forgewire.Option {
	return []forgewire.Option{
		forgewire.WithResolver(Resolver(store, nil)),
		forgewire.WithRenderer(Templates()),
	}
}

// Page renders the demo page. watchURL, when set, is the websocket the
// client watcher subscribes to for shared-state changes.
func Page(reg *forgewire.Registry, watchURL string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var head markup
		head.WriteString(`<!doctype html><html><head><meta charset="utf-8"><title>forgewire demo</title></head>`)
		head.open("body", attr("data-watch", watchURL))
		head.elem("h1", "forgewire")
		if _, err := io.WriteString(w, head.String()); err != nil {
			return err
		}

		islands := []struct {
			name  string
			props forgewire.Props
		}{
			{"counter", forgewire.Props{"start": 0}},
			{"hits", nil},
			{"hits", nil},
			{"contact", nil},
			{"search", forgewire.Props{"limit": 5}},
			{"clock", forgewire.Props{"zone": "UTC"}},
			{"todos", nil},
			{"stats", nil},
		}
		for _, isl := range islands {
			if err := reg.Island(isl.name, isl.props).Render(ctx, w); err != nil {
				return err
			}
		}
		if err := forgewire.ToastContainer().Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</body></html>")
		return err
	})
}

// Handler serves the demo page.
func Handler(reg *forgewire.Registry, watchURL string, onError func(error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := forgewire.Render(w, r, Page(reg, watchURL)); err != nil {
			onError(err)
		}
	})
}
