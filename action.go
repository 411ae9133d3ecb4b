package forgewire

import (
	"fmt"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/pthm/forgewire/lib/protocol"
)

// WireAttrs builds directive attributes for templates.
//
// Each builder returns templ.Attributes to spread on an element; the client
// runtime binds to them after every render:
//
//	<button { forgewire.Trigger("increment", "step", 2)... }>+2</button>
//	<input { forgewire.Model("title").Debounce(300 * time.Millisecond).Attrs()... }/>
//	<div { forgewire.Poll(2*time.Second, "tick")... }></div>
type WireAttrs = templ.Attributes

// Trigger binds the default event (click, or submit on forms) to action.
// kv are parameter name/value pairs sent as param-* attributes.
func Trigger(action string, kv ...any) WireAttrs {
	return TriggerOn("", action, kv...)
}

// TriggerOn binds event (optionally "keydown.enter" style) to action.
func TriggerOn(event, action string, kv ...any) WireAttrs {
	key := protocol.AttrAction
	if event != "" {
		key += "." + event
	}
	attrs := WireAttrs{key: action}
	for i := 0; i+1 < len(kv); i += 2 {
		name, ok := kv[i].(string)
		if !ok {
			continue
		}
		attrs[protocol.AttrParamPrefix+name] = fmt.Sprint(kv[i+1])
	}
	return attrs
}

// Targets hints which target markers the response should re-render.
func Targets(attrs WireAttrs, ids ...string) WireAttrs {
	attrs[protocol.AttrActionTarget] = strings.Join(ids, " ")
	return attrs
}

// Target marks a subtree that can be re-rendered in isolation.
func Target(id string) WireAttrs {
	return WireAttrs{protocol.AttrTarget: id}
}

// ModelBuilder configures a model binding.
type ModelBuilder struct {
	field    string
	modifier string
}

// Model binds an input to field, sending every input event.
func Model(field string) ModelBuilder {
	return ModelBuilder{field: field}
}

// Lazy sends only on change or blur.
func (m ModelBuilder) Lazy() ModelBuilder {
	m.modifier = "lazy"
	return m
}

// Defer keeps the value locally until the next action request.
func (m ModelBuilder) Defer() ModelBuilder {
	m.modifier = "defer"
	return m
}

// Debounce coalesces input events, sending at most once per window. A zero
// window uses the client default.
func (m ModelBuilder) Debounce(window time.Duration) ModelBuilder {
	m.modifier = "debounce"
	if window > 0 {
		m.modifier += fmt.Sprintf(".%dms", window.Milliseconds())
	}
	return m
}

// Attrs returns the directive attribute.
func (m ModelBuilder) Attrs() WireAttrs {
	key := protocol.AttrModel
	if m.modifier != "" {
		key += "." + m.modifier
	}
	return WireAttrs{key: m.field}
}

// Poll runs action every interval while the element is attached. An empty
// action refreshes.
func Poll(interval time.Duration, action string) WireAttrs {
	attrs := WireAttrs{protocol.AttrPoll: interval.String()}
	if action != "" {
		attrs[protocol.AttrPollAction] = action
	}
	return attrs
}

// Loading shows the element only while the island has a request in flight.
func Loading() WireAttrs {
	return WireAttrs{protocol.AttrLoading: true}
}

// LoadingRemove hides the element while the island has a request in flight.
func LoadingRemove() WireAttrs {
	return WireAttrs{protocol.AttrLoading + ".remove": true}
}
