package demo

import (
	"context"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/pthm/forgewire"
)

// Contact is a validated form. Fields are deferred: typing never hits the
// server, the values travel with the submit.
//
//wire:component contact
type Contact struct {
	Name    string `wire:"name" rules:"required|max:60"`
	Email   string `wire:"email" rules:"required|email"`
	Message string `wire:"message" rules:"required|between:10,500"`
	Sent    int    `wire:"sent"`
}

//wire:action form
func (c *Contact) Send(_ context.Context, _ forgewire.Args) forgewire.Result {
	name := strings.TrimSpace(c.Name)
	c.Name, c.Email, c.Message = "", "", ""
	c.Sent++
	return forgewire.OK().
		Flash(forgewire.FlashSuccess, "Thanks "+name+", your message was sent.").
		Dispatch("contact:sent", map[string]any{"name": name})
}

func contactView(v forgewire.View) templ.Component {
	return component(func(m *markup) {
		m.open("form", attr("class", "contact"), forgewire.Trigger("send"))
		for _, f := range []string{"name", "email"} {
			m.open("input", attr("name", f), attr("value", v.State[f]), forgewire.Model(f).Defer().Attrs())
			m.fieldError(v, f)
		}
		m.elem("textarea", v.State["message"].(string), attr("name", "message"), forgewire.Model("message").Defer().Attrs())
		m.fieldError(v, "message")
		m.elem("button", "Send", attr("type", "submit"), forgewire.LoadingRemove())
		m.elem("span", "sending", forgewire.Loading())
		m.elem("small", strconv.Itoa(v.State["sent"].(int))+" sent")
		m.close("form")
	})
}
