package demo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/a-h/templ"

	"github.com/pthm/forgewire"
)

// Clock polls the server every second.
//
//wire:component clock
type Clock struct {
	Zone  string `wire:"zone" rules:"required"`
	Ticks int    `wire:"ticks"`

	now func() time.Time
}

//wire:mount
func (c *Clock) Mount(_ context.Context, props forgewire.Props) error {
	c.Zone = "UTC"
	if zone, ok := props["zone"].(string); ok {
		if _, err := time.LoadLocation(zone); err != nil {
			return fmt.Errorf("clock: %w", err)
		}
		c.Zone = zone
	}
	return nil
}

//wire:action
func (c *Clock) Tick(_ context.Context, _ forgewire.Args) forgewire.Result {
	c.Ticks++
	return forgewire.OK()
}

//wire:computed time
func (c *Clock) Time(_ context.Context) (any, error) {
	loc, err := time.LoadLocation(c.Zone)
	if err != nil {
		return nil, err
	}
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	return now().In(loc).Format("15:04:05"), nil
}

func clockView(v forgewire.View) templ.Component {
	return component(func(m *markup) {
		m.open("div", attr("class", "clock"), forgewire.Poll(time.Second, "tick"))
		m.elem("time", v.Computed["time"].(string))
		m.elem("small", v.State["zone"].(string)+" / "+strconv.Itoa(v.State["ticks"].(int))+" ticks")
		m.close("div")
	})
}
