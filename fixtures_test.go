package forgewire

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/pthm/forgewire/lib/shared"
)

var testKey = []byte("forgewire-test-key")

type counter struct {
	Count int
	Label string
	Tags  []string
}

func (c *counter) increment(_ context.Context, args Args) Result {
	step := 1
	if args.Has("step") {
		step = args.Int("step")
	}
	c.Count += step
	return OK()
}

func (c *counter) setLabel(_ context.Context, args Args) Result {
	c.Label = args.String("label")
	return OK().Dispatch("counter:labelled", map[string]any{"label": c.Label})
}

func (c *counter) tag(_ context.Context, args Args) Result {
	c.Tags = append(c.Tags, args.String("tag"))
	return OK()
}

func (c *counter) fail(_ context.Context, _ Args) Result {
	c.Count = -1
	return Fail(errors.New("database unavailable"))
}

func (c *counter) boom(_ context.Context, _ Args) Result {
	panic("boom")
}

var counterDef = Define("counter", func(b *Builder[*counter]) {
	b.Mount(func(c *counter, _ context.Context, props Props) error {
		if start, ok := props["start"].(int); ok {
			c.Count = start
		}
		return nil
	})
	b.Int("count", func(c *counter) *int { return &c.Count })
	b.String("label", func(c *counter) *string { return &c.Label })
	b.Strings("tags", func(c *counter) *[]string { return &c.Tags })
	b.Action("increment", (*counter).increment, OptionalParam("step", KindNumber))
	b.Action("setLabel", (*counter).setLabel, Param("label", KindString))
	b.Action("tag", (*counter).tag, Param("tag", KindString))
	b.Action("fail", (*counter).fail)
	b.Action("boom", (*counter).boom)
	b.Computed("double", func(c *counter, _ context.Context) (any, error) {
		return c.Count * 2, nil
	})
})

type hits struct {
	Count int
}

func (h *hits) bump(_ context.Context, _ Args) Result {
	h.Count++
	return OK()
}

var hitsDef = Define("hits", func(b *Builder[*hits]) {
	b.Int("count", func(h *hits) *int { return &h.Count }, Shared("hits"))
	b.Action("bump", (*hits).bump)
	b.Computed("seen", func(h *hits, _ context.Context) (any, error) {
		return fmt.Sprintf("seen %d", h.Count), nil
	})
})

type contact struct {
	Name  string
	Email string
	Sent  bool
}

func (c *contact) save(_ context.Context, _ Args) Result {
	if c.Email == "taken@example.com" {
		return Invalid(Errors{"email": {"The email has already been taken."}})
	}
	c.Sent = true
	return OK().Flash(FlashSuccess, "Thanks!").Redirect("/thanks")
}

var contactDef = Define("contact", func(b *Builder[*contact]) {
	b.String("name", func(c *contact) *string { return &c.Name }, Rules("required|min:3"))
	b.String("email", func(c *contact) *string { return &c.Email }, Rules("required|email"))
	b.Bool("sent", func(c *contact) *bool { return &c.Sent })
	b.Action("save", (*contact).save, FormSubmit())
})

type vault struct {
	Secret string
}

var vaultDef = Define("vault", func(b *Builder[*vault]) {
	b.Sensitive()
	b.String("secret", func(v *vault) *string { return &v.Secret })
	b.Mount(func(v *vault, _ context.Context, _ Props) error {
		v.Secret = "s3cr3t"
		return nil
	})
})

type feed struct {
	Last string
}

func (f *feed) onLabel(_ context.Context, args Args) Result {
	f.Last = args.String("label")
	return OK()
}

var feedDef = Define("feed", func(b *Builder[*feed]) {
	b.String("last", func(f *feed) *string { return &f.Last })
	b.Action("onLabel", (*feed).onLabel, Param("label", KindString))
	b.Listen("counter:labelled", "onLabel")
})

// testRenderer renders every fixture deterministically.
var testRenderer = RendererFunc(func(_ context.Context, _ any, template string, v View) (string, error) {
	switch template {
	case "counter":
		return fmt.Sprintf(`<div class="counter"><span target="count">%d</span><span target="double">%d</span><em>%s</em><ul>%s</ul></div>`,
			v.State["count"], v.Computed["double"], html.EscapeString(v.State["label"].(string)), items(v.State["tags"].([]string))), nil
	case "hits":
		return fmt.Sprintf(`<div class="hits"><b>%d</b> <i>%s</i></div>`, v.State["count"], v.Computed["seen"]), nil
	case "contact":
		var sb strings.Builder
		sb.WriteString(`<form>`)
		for _, f := range []string{"name", "email"} {
			fmt.Fprintf(&sb, `<input model="%s" value="%s"/>`, f, html.EscapeString(v.State[f].(string)))
			if msg := v.Errors.First(f); msg != "" {
				fmt.Fprintf(&sb, `<p class="error" data-field="%s">%s</p>`, f, html.EscapeString(msg))
			}
		}
		if v.State["sent"].(bool) {
			sb.WriteString(`<p>sent</p>`)
		}
		sb.WriteString(`</form>`)
		return sb.String(), nil
	case "vault":
		return `<div>locked</div>`, nil
	case "feed":
		return fmt.Sprintf(`<div>%s</div>`, html.EscapeString(v.State["last"].(string))), nil
	}
	return "", fmt.Errorf("no template %q", template)
})

func items(tags []string) string {
	var sb strings.Builder
	for _, t := range tags {
		sb.WriteString("<li>" + html.EscapeString(t) + "</li>")
	}
	return sb.String()
}

func newTestRegistry(opts ...Option) *Registry {
	opts = append([]Option{WithRenderer(testRenderer)}, opts...)
	reg := NewRegistry(testKey, opts...)
	reg.Add(counterDef, hitsDef, contactDef, vaultDef, feedDef)
	return reg
}

func newSharedRegistry(store shared.Store, bopts ...shared.Option) (*Registry, *shared.Broker) {
	broker, err := shared.NewBroker(store, bopts...)
	if err != nil {
		panic(err)
	}
	return newTestRegistry(WithBroker(broker)), broker
}
