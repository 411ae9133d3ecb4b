package demo

import (
	"context"
	"strings"

	"github.com/a-h/templ"

	"github.com/pthm/forgewire"
)

// Todos lists and edits the Store. The store is injected by the resolver;
// only the draft title and the filter travel in the snapshot.
//
//wire:component todos
type Todos struct {
	Title  string `wire:"title" rules:"required|max:80"`
	Filter string `wire:"filter" rules:"in:all,pending,completed"`

	store *Store
}

//wire:computed items
func (t *Todos) Items(_ context.Context) (any, error) {
	return t.store.List(t.Filter), nil
}

//wire:action form
func (t *Todos) Add(_ context.Context, _ forgewire.Args) forgewire.Result {
	id := t.store.Add(strings.TrimSpace(t.Title))
	t.Title = ""
	return forgewire.OK().
		Flash(forgewire.FlashSuccess, "Todo added!").
		Dispatch("todo:added", map[string]any{"id": id})
}

//wire:action param=id:string
func (t *Todos) Toggle(_ context.Context, args forgewire.Args) forgewire.Result {
	if !t.store.Toggle(args.String("id")) {
		return forgewire.OK().Flash(forgewire.FlashError, "That todo no longer exists.")
	}
	return forgewire.OK().Dispatch("todo:changed", map[string]any{"id": args.String("id")})
}

//wire:action param=id:string
func (t *Todos) Remove(_ context.Context, args forgewire.Args) forgewire.Result {
	if !t.store.Delete(args.String("id")) {
		return forgewire.OK().Flash(forgewire.FlashError, "That todo no longer exists.")
	}
	return forgewire.OK().
		Flash(forgewire.FlashInfo, "Todo removed.").
		Dispatch("todo:changed", map[string]any{"id": args.String("id")})
}

func todosView(v forgewire.View) templ.Component {
	return component(func(m *markup) {
		m.open("section", attr("class", "todos"))
		m.open("form", forgewire.Targets(forgewire.Trigger("add"), "list"))
		m.open("input", attr("name", "title"), attr("value", v.State["title"]), forgewire.Model("title").Defer().Attrs())
		m.elem("button", "Add", attr("type", "submit"))
		m.fieldError(v, "title")
		m.close("form")

		m.open("select", attr("name", "filter"), forgewire.Model("filter").Attrs())
		for _, f := range []string{"all", "pending", "completed"} {
			m.elem("option", f, attr("value", f), attr("selected", v.State["filter"] == f))
		}
		m.close("select")

		m.open("ul", forgewire.Target("list"))
		for _, todo := range v.Computed["items"].([]Todo) {
			class := "todo"
			if todo.Done {
				class += " done"
			}
			m.open("li", attr("class", class), attr("key", todo.ID))
			m.elem("span", todo.Title, forgewire.Trigger("toggle", "id", todo.ID))
			m.elem("button", "x", forgewire.Targets(forgewire.Trigger("remove", "id", todo.ID), "list"))
			m.close("li")
		}
		m.close("ul")
		m.close("section")
	})
}
