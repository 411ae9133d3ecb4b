package forgewire

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/pthm/forgewire/lib/protocol"
)

// Kind is the closed set of state and parameter types.
type Kind int

const (
	KindString Kind = iota + 1
	KindNumber
	KindBool
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Props are the initial-render inputs passed to a component's mount hook.
type Props map[string]any

// Field is a declared state field.
type Field struct {
	Name      string
	Kind      Kind
	SharedKey string
	Rules     string

	tag   string
	get   func(inst any) (json.RawMessage, error)
	set   func(inst any, raw json.RawMessage) error
	value func(inst any) any
}

// Shared reports whether the field lives in the shared-state broker.
func (f *Field) Shared() bool { return f.SharedKey != "" }

// Parameter is a declared action parameter.
type Parameter struct {
	Name     string
	Kind     Kind
	Optional bool
}

// Action is a declared action.
type Action struct {
	Name       string
	FormSubmit bool
	Params     []Parameter

	handler func(inst any, ctx context.Context, args Args) Result
}

type computed struct {
	name string
	fn   func(inst any, ctx context.Context) (any, error)
}

// Definition is the static description of a component type: its state
// fields, actions, computed values and listeners. Definitions are built once
// by Define and never change afterwards.
type Definition struct {
	name      string
	template  string
	sensitive bool
	typ       reflect.Type

	fields    []*Field
	fieldByID map[string]*Field
	actions   map[string]*Action
	order     []string
	computed  []computed
	listeners map[string]string
	mount     func(inst any, ctx context.Context, props Props) error
}

// Name returns the component name used in markup and routes.
func (d *Definition) Name() string { return d.name }

// Template returns the template name passed to the renderer.
func (d *Definition) Template() string { return d.template }

// Sensitive reports whether snapshot tokens are encrypted.
func (d *Definition) Sensitive() bool { return d.sensitive }

// Type returns the Go type the definition describes.
func (d *Definition) Type() reflect.Type { return d.typ }

// Fields returns the state fields in declaration order.
func (d *Definition) Fields() []Field {
	out := make([]Field, len(d.fields))
	for i, f := range d.fields {
		out[i] = *f
	}
	return out
}

// Field returns the named state field.
func (d *Definition) Field(name string) (Field, bool) {
	f, ok := d.fieldByID[name]
	if !ok {
		return Field{}, false
	}
	return *f, true
}

// Action returns the named action.
func (d *Definition) Action(name string) (Action, bool) {
	a, ok := d.actions[name]
	if !ok {
		return Action{}, false
	}
	return *a, true
}

// Actions returns action names in declaration order.
func (d *Definition) Actions() []string {
	return append([]string(nil), d.order...)
}

// Computed returns computed value names in declaration order.
func (d *Definition) Computed() []string {
	out := make([]string, len(d.computed))
	for i, c := range d.computed {
		out[i] = c.name
	}
	return out
}

// Listeners returns the browser event to action mapping.
func (d *Definition) Listeners() map[string]string {
	out := make(map[string]string, len(d.listeners))
	for k, v := range d.listeners {
		out[k] = v
	}
	return out
}

// SharedKeys returns the broker keys of all shared fields.
func (d *Definition) SharedKeys() []string {
	var keys []string
	for _, f := range d.fields {
		if f.Shared() {
			keys = append(keys, f.SharedKey)
		}
	}
	return keys
}

// New returns a fresh zero instance of the component type.
func (d *Definition) New() any {
	return reflect.New(d.typ.Elem()).Interface()
}

var (
	defsMu sync.RWMutex
	defs   = map[reflect.Type]*Definition{}
)

// Define builds and caches the definition for component type C, which must be
// a pointer to a struct. It panics on malformed declarations and when C has
// already been defined: both are programming errors. Malformed means a name
// shared by two fields, actions or computed values, a validation rule that is
// unknown or does not fit its field's kind, or a listener for an undeclared
// action.
//
//	var CounterDef = forgewire.Define("counter", func(b *forgewire.Builder[*Counter]) {
//	    b.Int("count", func(c *Counter) *int { return &c.Count })
//	    b.Action("increment", (*Counter).Increment)
//	})
func Define[C any](name string, build func(b *Builder[C])) *Definition {
	typ := reflect.TypeFor[C]()
	if typ.Kind() != reflect.Pointer || typ.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("forgewire: component %q: type %s must be a pointer to a struct", name, typ))
	}
	if name == "" || strings.ContainsAny(name, "/ ") {
		panic(fmt.Sprintf("forgewire: invalid component name %q", name))
	}

	b := &Builder[C]{def: &Definition{
		name:      name,
		template:  name,
		typ:       typ,
		fieldByID: map[string]*Field{},
		actions:   map[string]*Action{},
		listeners: map[string]string{},
	}}
	if build != nil {
		build(b)
	}
	def := b.def
	for event, action := range def.listeners {
		if _, ok := def.actions[action]; !ok && action != RefreshAction {
			panic(fmt.Sprintf("forgewire: component %q: listener %q targets undeclared action %q", name, event, action))
		}
	}

	defsMu.Lock()
	defer defsMu.Unlock()
	if prev, ok := defs[typ]; ok {
		panic(fmt.Sprintf("forgewire: type %s already defined as %q", typ, prev.name))
	}
	defs[typ] = def
	return def
}

// Describe returns the definition of instance's dynamic type.
func Describe(instance any) (*Definition, error) {
	defsMu.RLock()
	defer defsMu.RUnlock()
	def, ok := defs[reflect.TypeOf(instance)]
	if !ok {
		return nil, fmt.Errorf("%w: no definition for %T", ErrUnknownComponent, instance)
	}
	return def, nil
}

// RefreshAction re-renders without running user code.
const RefreshAction = protocol.RefreshAction

// Builder declares a component's bindable surface. Only state declared
// through a Builder is serialized or accepted from the client.
type Builder[C any] struct {
	def *Definition
}

// Template overrides the template name. Default: the component name.
func (b *Builder[C]) Template(name string) *Builder[C] {
	b.def.template = name
	return b
}

// Sensitive encrypts snapshot tokens so state is opaque to the browser.
func (b *Builder[C]) Sensitive() *Builder[C] {
	b.def.sensitive = true
	return b
}

// Mount sets the first-visit hook. It runs exactly once per island, before
// shared fields are read from the broker.
func (b *Builder[C]) Mount(fn func(c C, ctx context.Context, props Props) error) *Builder[C] {
	b.def.mount = func(inst any, ctx context.Context, props Props) error {
		return fn(inst.(C), ctx, props)
	}
	return b
}

// String declares a string field.
func (b *Builder[C]) String(name string, ref func(C) *string, opts ...FieldOption) *Builder[C] {
	addField(b, name, KindString, ref, opts)
	return b
}

// Int declares an integer field.
func (b *Builder[C]) Int(name string, ref func(C) *int, opts ...FieldOption) *Builder[C] {
	addField(b, name, KindNumber, ref, opts)
	return b
}

// Float declares a floating point field.
func (b *Builder[C]) Float(name string, ref func(C) *float64, opts ...FieldOption) *Builder[C] {
	addField(b, name, KindNumber, ref, opts)
	return b
}

// Bool declares a boolean field.
func (b *Builder[C]) Bool(name string, ref func(C) *bool, opts ...FieldOption) *Builder[C] {
	addField(b, name, KindBool, ref, opts)
	return b
}

// Strings declares a field holding an array of strings.
func (b *Builder[C]) Strings(name string, ref func(C) *[]string, opts ...FieldOption) *Builder[C] {
	addField(b, name, KindArray, ref, opts)
	return b
}

// List declares a field holding an array of arbitrary JSON values.
func (b *Builder[C]) List(name string, ref func(C) *[]any, opts ...FieldOption) *Builder[C] {
	addField(b, name, KindArray, ref, opts)
	return b
}

// Action declares an action. Handlers take the component as their first
// argument so method expressions can be passed directly:
//
//	b.Action("save", (*Form).Save, forgewire.FormSubmit())
func (b *Builder[C]) Action(name string, fn func(c C, ctx context.Context, args Args) Result, opts ...ActionOption) *Builder[C] {
	def := b.def
	if name == "" || strings.HasPrefix(name, "$") {
		panic(fmt.Sprintf("forgewire: component %q: invalid action name %q", def.name, name))
	}
	if _, dup := def.actions[name]; dup {
		panic(fmt.Sprintf("forgewire: component %q: duplicate action %q", def.name, name))
	}
	if _, clash := def.fieldByID[name]; clash {
		panic(fmt.Sprintf("forgewire: component %q: action %q clashes with a field", def.name, name))
	}
	if def.hasComputed(name) {
		panic(fmt.Sprintf("forgewire: component %q: action %q clashes with a computed value", def.name, name))
	}
	a := &Action{
		Name: name,
		handler: func(inst any, ctx context.Context, args Args) Result {
			return fn(inst.(C), ctx, args)
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	seen := map[string]bool{}
	for _, p := range a.Params {
		if seen[p.Name] {
			panic(fmt.Sprintf("forgewire: action %s.%s: duplicate parameter %q", def.name, name, p.Name))
		}
		seen[p.Name] = true
	}
	def.actions[name] = a
	def.order = append(def.order, name)
	return b
}

// Computed declares a value derived on every render. Computed values are
// never serialized.
func (b *Builder[C]) Computed(name string, fn func(c C, ctx context.Context) (any, error)) *Builder[C] {
	def := b.def
	if _, clash := def.fieldByID[name]; clash {
		panic(fmt.Sprintf("forgewire: component %q: computed %q clashes with a field", def.name, name))
	}
	if _, clash := def.actions[name]; clash {
		panic(fmt.Sprintf("forgewire: component %q: computed %q clashes with an action", def.name, name))
	}
	if def.hasComputed(name) {
		panic(fmt.Sprintf("forgewire: component %q: duplicate computed %q", def.name, name))
	}
	def.computed = append(def.computed, computed{name: name, fn: func(inst any, ctx context.Context) (any, error) {
		return fn(inst.(C), ctx)
	}})
	return b
}

// Listen runs action whenever any island dispatches the browser event.
// The event payload becomes the action's arguments.
func (b *Builder[C]) Listen(event, action string) *Builder[C] {
	if _, dup := b.def.listeners[event]; dup {
		panic(fmt.Sprintf("forgewire: component %q: duplicate listener for %q", b.def.name, event))
	}
	b.def.listeners[event] = action
	return b
}

func (d *Definition) hasComputed(name string) bool {
	for _, c := range d.computed {
		if c.name == name {
			return true
		}
	}
	return false
}

func addField[C, T any](b *Builder[C], name string, kind Kind, ref func(C) *T, opts []FieldOption) {
	def := b.def
	if name == "" {
		panic(fmt.Sprintf("forgewire: component %q: empty field name", def.name))
	}
	if _, dup := def.fieldByID[name]; dup {
		panic(fmt.Sprintf("forgewire: component %q: duplicate field %q", def.name, name))
	}
	if _, clash := def.actions[name]; clash {
		panic(fmt.Sprintf("forgewire: component %q: field %q clashes with an action", def.name, name))
	}
	if def.hasComputed(name) {
		panic(fmt.Sprintf("forgewire: component %q: field %q clashes with a computed value", def.name, name))
	}
	f := &Field{
		Name: name,
		Kind: kind,
		get: func(inst any) (json.RawMessage, error) {
			v := ref(inst.(C))
			if kind == KindArray && reflect.ValueOf(v).Elem().IsNil() {
				return json.RawMessage(`[]`), nil
			}
			return json.Marshal(v)
		},
		set: func(inst any, raw json.RawMessage) error {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			*ref(inst.(C)) = v
			return nil
		},
		value: func(inst any) any {
			return *ref(inst.(C))
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.Rules != "" {
		tag, err := compileRules(f.Rules, kind)
		if err != nil {
			panic(fmt.Sprintf("forgewire: field %s.%s: %v", def.name, name, err))
		}
		f.tag = tag
	}
	def.fields = append(def.fields, f)
	def.fieldByID[name] = f
}

// FieldOption configures a state field.
type FieldOption func(*Field)

// Shared stores the field in the shared-state broker under key.
func Shared(key string) FieldOption {
	return func(f *Field) {
		f.SharedKey = key
	}
}

// Rules attaches validation rules, e.g. "required|min:3|max:40".
func Rules(expr string) FieldOption {
	return func(f *Field) {
		f.Rules = expr
	}
}

// ActionOption configures an action.
type ActionOption func(*Action)

// Param declares a required parameter.
func Param(name string, kind Kind) ActionOption {
	return func(a *Action) {
		a.Params = append(a.Params, Parameter{Name: name, Kind: kind})
	}
}

// OptionalParam declares a parameter that may be omitted.
func OptionalParam(name string, kind Kind) ActionOption {
	return func(a *Action) {
		a.Params = append(a.Params, Parameter{Name: name, Kind: kind, Optional: true})
	}
}

// FormSubmit validates every field with rules before the handler runs. When
// validation fails the handler is skipped and the errors render inline.
func FormSubmit() ActionOption {
	return func(a *Action) {
		a.FormSubmit = true
	}
}
