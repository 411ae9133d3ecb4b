package client

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/pthm/forgewire/lib/dom"
	"github.com/pthm/forgewire/lib/protocol"
)

// DefaultDebounce is the window used by model.debounce without a duration.
const DefaultDebounce = 150 * time.Millisecond

// Kind is the kind of a directive.
type Kind int

const (
	KindTrigger Kind = iota + 1
	KindModel
	KindPoll
	KindLoading
)

// ModelMode controls when a model binding sends its value.
type ModelMode int

const (
	ModelImmediate ModelMode = iota
	ModelLazy
	ModelDefer
	ModelDebounce
)

// Directive is one parsed directive attribute.
type Directive struct {
	Kind Kind

	// Trigger
	Event   string
	Key     string
	Action  string
	Targets []string
	Params  map[string]string

	// Model
	Field    string
	Mode     ModelMode
	Debounce time.Duration

	// Poll
	Interval time.Duration

	// Loading
	Remove bool
}

// Parse returns the directives declared on n. Malformed directives are
// reported together with the well-formed ones.
func Parse(n *html.Node, debounce time.Duration) ([]Directive, error) {
	if n.Type != html.ElementNode {
		return nil, nil
	}
	var out []Directive
	var errs []string
	for _, a := range n.Attr {
		if a.Namespace != "" {
			continue
		}
		key := a.Key
		switch {
		case key == protocol.AttrAction || strings.HasPrefix(key, protocol.AttrAction+"."):
			d, err := parseTrigger(n, key, a.Val)
			if err != nil {
				errs = append(errs, err.Error())
				continue
			}
			out = append(out, d)
		case key == protocol.AttrModel || strings.HasPrefix(key, protocol.AttrModel+"."):
			d, err := parseModel(key, a.Val, debounce)
			if err != nil {
				errs = append(errs, err.Error())
				continue
			}
			out = append(out, d)
		case key == protocol.AttrPoll:
			d, err := parsePoll(n, a.Val)
			if err != nil {
				errs = append(errs, err.Error())
				continue
			}
			out = append(out, d)
		case key == protocol.AttrLoading:
			out = append(out, Directive{Kind: KindLoading})
		case key == protocol.AttrLoading+".remove":
			out = append(out, Directive{Kind: KindLoading, Remove: true})
		}
	}
	if len(errs) > 0 {
		return out, fmt.Errorf("client: <%s>: %s", n.Data, strings.Join(errs, "; "))
	}
	return out, nil
}

func parseTrigger(n *html.Node, key, action string) (Directive, error) {
	if action == "" {
		return Directive{}, fmt.Errorf("%s: empty action", key)
	}
	d := Directive{Kind: KindTrigger, Action: action, Event: "click"}
	if n.Data == "form" {
		d.Event = "submit"
	}
	parts := strings.Split(key, ".")[1:]
	switch len(parts) {
	case 0:
	case 1:
		d.Event = parts[0]
	case 2:
		d.Event, d.Key = parts[0], parts[1]
	default:
		return Directive{}, fmt.Errorf("%s: too many modifiers", key)
	}
	if d.Event == "" {
		return Directive{}, fmt.Errorf("%s: empty event", key)
	}
	if v, ok := dom.Attr(n, protocol.AttrActionTarget); ok {
		d.Targets = strings.Fields(v)
	}
	for _, a := range n.Attr {
		if name, ok := strings.CutPrefix(a.Key, protocol.AttrParamPrefix); ok && name != "" {
			if d.Params == nil {
				d.Params = map[string]string{}
			}
			d.Params[name] = a.Val
		}
	}
	return d, nil
}

func parseModel(key, field string, debounce time.Duration) (Directive, error) {
	if field == "" {
		return Directive{}, fmt.Errorf("%s: empty field", key)
	}
	d := Directive{Kind: KindModel, Field: field}
	mods := strings.SplitN(key, ".", 3)[1:]
	if len(mods) == 0 {
		return d, nil
	}
	switch mods[0] {
	case "lazy":
		d.Mode = ModelLazy
	case "defer":
		d.Mode = ModelDefer
	case "debounce":
		d.Mode = ModelDebounce
		d.Debounce = debounce
		if len(mods) == 2 {
			w, err := time.ParseDuration(mods[1])
			if err != nil || w <= 0 {
				return Directive{}, fmt.Errorf("%s: bad debounce window %q", key, mods[1])
			}
			d.Debounce = w
		}
		return d, nil
	default:
		return Directive{}, fmt.Errorf("%s: unknown modifier %q", key, mods[0])
	}
	if len(mods) > 1 {
		return Directive{}, fmt.Errorf("%s: too many modifiers", key)
	}
	return d, nil
}

func parsePoll(n *html.Node, interval string) (Directive, error) {
	w, err := time.ParseDuration(interval)
	if err != nil || w <= 0 {
		return Directive{}, fmt.Errorf("%s: bad interval %q", protocol.AttrPoll, interval)
	}
	d := Directive{Kind: KindPoll, Interval: w, Action: protocol.RefreshAction}
	if a, ok := dom.Attr(n, protocol.AttrPollAction); ok && a != "" {
		d.Action = a
	}
	return d, nil
}
