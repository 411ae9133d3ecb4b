package demo

import (
	"context"
	"strconv"

	"github.com/a-h/templ"

	"github.com/pthm/forgewire"
)

// Counter is the smallest island: all of its state lives in the snapshot.
//
//wire:component counter
type Counter struct {
	Count int `wire:"count" rules:"min:0"`
	Step  int `wire:"step" rules:"between:1,100"`
}

//wire:mount
func (c *Counter) Mount(_ context.Context, props forgewire.Props) error {
	c.Step = 1
	if start, ok := props["start"].(int); ok {
		c.Count = start
	}
	if step, ok := props["step"].(int); ok {
		c.Step = step
	}
	return nil
}

//wire:action param=by:number?
func (c *Counter) Increment(_ context.Context, args forgewire.Args) forgewire.Result {
	by := c.Step
	if args.Has("by") {
		n, err := args.Integer("by")
		if err != nil {
			return forgewire.Invalid(forgewire.Errors{"step": {"The step must be a whole number."}})
		}
		by = n
	}
	c.Count += by
	return forgewire.OK()
}

//wire:action
func (c *Counter) Decrement(_ context.Context, _ forgewire.Args) forgewire.Result {
	if c.Count-c.Step < 0 {
		return forgewire.Invalid(forgewire.Errors{"count": {"The counter cannot go below zero."}})
	}
	c.Count -= c.Step
	return forgewire.OK()
}

//wire:action
func (c *Counter) Reset(_ context.Context, _ forgewire.Args) forgewire.Result {
	c.Count = 0
	return forgewire.OK().Flash(forgewire.FlashSuccess, "Counter reset!")
}

func counterView(v forgewire.View) templ.Component {
	return component(func(m *markup) {
		m.open("div", attr("class", "counter"))
		m.elem("output", strconv.Itoa(v.State["count"].(int)))
		m.elem("button", "-", forgewire.Trigger("decrement"))
		m.elem("button", "+", forgewire.Trigger("increment"))
		m.elem("button", "+10", forgewire.Trigger("increment", "by", 10))
		m.elem("button", "Reset", forgewire.Trigger("reset"))
		m.open("label")
		m.text("Step ")
		m.open("input", attr("type", "number"), attr("value", v.State["step"]), forgewire.Model("step").Lazy().Attrs())
		m.close("label")
		m.fieldError(v, "count")
		m.fieldError(v, "step")
		m.close("div")
	})
}
