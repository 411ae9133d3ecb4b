package forgewire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pthm/forgewire/lib/protocol"
	"github.com/pthm/forgewire/lib/snapshot"
)

type phase int

const (
	phaseConstructed phase = iota
	phaseMounted
	phaseHydrated
	phaseActed
	phaseRendered
	phaseSnapshotted
)

func (p phase) String() string {
	switch p {
	case phaseConstructed:
		return "constructed"
	case phaseMounted:
		return "mounted"
	case phaseHydrated:
		return "hydrated"
	case phaseActed:
		return "acted"
	case phaseRendered:
		return "rendered"
	case phaseSnapshotted:
		return "snapshotted"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Instance is one component instance, alive for a single request.
type Instance struct {
	def     *Definition
	value   any
	id      string
	phase   phase
	errors  Errors
	effects []protocol.Effect

	// base holds the broker value each shared field was read from (nil when
	// the key was absent); seen holds the field's JSON after mount/hydrate.
	base map[string]json.RawMessage
	seen map[string]json.RawMessage
}

// NewInstance wraps a freshly constructed component value.
func NewInstance(def *Definition, value any, id string) *Instance {
	return &Instance{
		def:    def,
		value:  value,
		id:     id,
		errors: Errors{},
		base:   map[string]json.RawMessage{},
		seen:   map[string]json.RawMessage{},
	}
}

// Definition returns the instance's component definition.
func (i *Instance) Definition() *Definition { return i.def }

// Value returns the component value.
func (i *Instance) Value() any { return i.value }

// ID returns the island id.
func (i *Instance) ID() string { return i.id }

// Errors returns pending validation errors.
func (i *Instance) Errors() Errors { return i.errors }

// Effects returns browser effects queued so far, in emission order.
func (i *Instance) Effects() []protocol.Effect { return i.effects }

// advance moves the instance to the next phase. Out-of-order transitions are
// programming errors.
func (i *Instance) advance(to phase, from ...phase) {
	for _, p := range from {
		if i.phase == p {
			i.phase = to
			return
		}
	}
	panic(fmt.Sprintf("forgewire: %s: cannot move from %s to %s", i.def.name, i.phase, to))
}

// Runtime drives component instances through
// constructed -> mounted|hydrated -> acted* -> rendered -> snapshotted.
type Runtime struct {
	codec    *snapshot.Codec
	shared   SharedState
	renderer Renderer
	logger   *zap.Logger
}

// NewRuntime creates a runtime. shared may be nil when no component declares
// shared fields.
func NewRuntime(codec *snapshot.Codec, renderer Renderer, shared SharedState, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{codec: codec, shared: shared, renderer: renderer, logger: logger}
}

// Mount runs the first-visit hook exactly once and then loads shared fields.
func (rt *Runtime) Mount(ctx context.Context, inst *Instance, props Props) error {
	inst.advance(phaseMounted, phaseConstructed)
	if inst.def.mount != nil {
		if err := inst.def.mount(inst.value, ctx, props); err != nil {
			return fmt.Errorf("forgewire: mount %s: %w", inst.def.name, err)
		}
	}
	return rt.loadShared(ctx, inst)
}

// Hydrate assigns restored state and re-reads shared fields from the broker.
// The snapshot value is kept when the broker has no entry.
func (rt *Runtime) Hydrate(ctx context.Context, inst *Instance, state map[string]json.RawMessage) error {
	inst.advance(phaseHydrated, phaseConstructed)
	for _, f := range inst.def.fields {
		raw, ok := state[f.Name]
		if !ok {
			continue
		}
		if err := f.set(inst.value, raw); err != nil {
			return fmt.Errorf("%w: field %q: %v", ErrTamperedSnapshot, f.Name, err)
		}
	}
	return rt.loadShared(ctx, inst)
}

func (rt *Runtime) loadShared(ctx context.Context, inst *Instance) error {
	var fields []*Field
	for _, f := range inst.def.fields {
		if f.Shared() {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return nil
	}

	type read struct {
		value json.RawMessage
		ok    bool
	}
	reads := make([]read, len(fields))
	if rt.shared != nil {
		g, gctx := errgroup.WithContext(ctx)
		for i, f := range fields {
			g.Go(func() error {
				v, ok, err := rt.shared.Get(gctx, f.SharedKey)
				if err != nil {
					return fmt.Errorf("forgewire: read shared %q: %w", f.SharedKey, err)
				}
				reads[i] = read{value: v, ok: ok}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	for i, f := range fields {
		if reads[i].ok {
			if err := f.set(inst.value, reads[i].value); err != nil {
				return fmt.Errorf("forgewire: shared %q holds a non-%s value: %w", f.SharedKey, f.Kind, err)
			}
			inst.base[f.Name] = reads[i].value
		} else {
			inst.base[f.Name] = nil
		}
		cur, err := f.get(inst.value)
		if err != nil {
			return err
		}
		inst.seen[f.Name] = cur
	}
	return nil
}

// Update applies a client field value. Fields with rules are validated on
// their own and the result replaces any previous message for that field.
func (rt *Runtime) Update(ctx context.Context, inst *Instance, name string, raw json.RawMessage) error {
	inst.advance(phaseActed, phaseMounted, phaseHydrated, phaseActed)
	f, ok := inst.def.fieldByID[name]
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, inst.def.name, name)
	}
	v, err := coerce(name, f.Kind, raw)
	if err != nil {
		return err
	}
	if err := f.set(inst.value, v); err != nil {
		return &CoercionError{Name: name, Kind: f.Kind, Reason: err.Error()}
	}
	delete(inst.errors, name)
	if msg := validateField(f, inst.value); msg != "" {
		inst.errors.Add(name, msg)
	}
	return nil
}

// Call runs one action. Form-submit actions validate every field first and
// skip the handler when validation fails.
func (rt *Runtime) Call(ctx context.Context, inst *Instance, call protocol.Call) error {
	inst.advance(phaseActed, phaseMounted, phaseHydrated, phaseActed)
	if call.Action == RefreshAction {
		return nil
	}
	a, ok := inst.def.actions[call.Action]
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownAction, inst.def.name, call.Action)
	}
	args, err := bindArgs(a, call.Args)
	if err != nil {
		return err
	}

	if a.FormSubmit {
		inst.errors = validateAll(inst.def, inst.value)
		if inst.errors.Any() {
			return nil
		}
	}

	res, err := rt.invoke(ctx, inst, a, args)
	if err != nil {
		return err
	}
	for field, msgs := range res.errors {
		for _, m := range msgs {
			inst.errors.Add(field, m)
		}
	}
	inst.effects = append(inst.effects, res.effects...)
	return nil
}

func (rt *Runtime) invoke(ctx context.Context, inst *Instance, a *Action, args Args) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ActionError{Component: inst.def.name, Action: a.Name, Err: fmt.Errorf("panic: %v", r)}
			rt.logger.Error("action panicked",
				zap.String("component", inst.def.name),
				zap.String("action", a.Name),
				zap.Any("panic", r),
				zap.StackSkip("stack", 2),
			)
		}
	}()

	res = a.handler(inst.value, ctx, args)
	if res.err != nil {
		rt.logger.Error("action failed",
			zap.String("component", inst.def.name),
			zap.String("action", a.Name),
			zap.Error(res.err),
		)
		return Result{}, &ActionError{Component: inst.def.name, Action: a.Name, Err: res.err}
	}
	return res, nil
}

// writeShared stores every shared field whose value changed since it was
// read. It runs before rendering so computed values see the new state.
func (rt *Runtime) writeShared(ctx context.Context, inst *Instance) error {
	if rt.shared == nil {
		return nil
	}
	for _, f := range inst.def.fields {
		if !f.Shared() {
			continue
		}
		cur, err := f.get(inst.value)
		if err != nil {
			return err
		}
		if bytes.Equal(cur, inst.seen[f.Name]) {
			continue
		}
		if err := rt.shared.Put(ctx, f.SharedKey, inst.base[f.Name], cur); err != nil {
			rt.logger.Info("shared write rejected",
				zap.String("component", inst.def.name),
				zap.String("key", f.SharedKey),
				zap.Error(err),
			)
			return fmt.Errorf("forgewire: write shared %q: %w", f.SharedKey, err)
		}
		inst.base[f.Name] = cur
		inst.seen[f.Name] = cur
	}
	return nil
}

// Render writes back shared fields, evaluates computed values and renders
// the template. Rendering the same state twice yields identical HTML.
func (rt *Runtime) Render(ctx context.Context, inst *Instance) (string, error) {
	if inst.phase == phaseActed {
		if err := rt.writeShared(ctx, inst); err != nil {
			return "", err
		}
	}
	inst.advance(phaseRendered, phaseMounted, phaseHydrated, phaseActed, phaseRendered)

	view, err := rt.view(ctx, inst)
	if err != nil {
		return "", err
	}
	if rt.renderer == nil {
		return "", fmt.Errorf("forgewire: no renderer configured")
	}
	out, err := rt.renderer.Render(ctx, inst.value, inst.def.template, view)
	if err != nil {
		return "", fmt.Errorf("forgewire: render %s: %w", inst.def.name, err)
	}
	return out, nil
}

func (rt *Runtime) view(ctx context.Context, inst *Instance) (View, error) {
	v := View{
		Component: inst.value,
		ID:        inst.id,
		State:     make(map[string]any, len(inst.def.fields)),
		Computed:  make(map[string]any, len(inst.def.computed)),
		Errors:    inst.errors,
	}
	for _, f := range inst.def.fields {
		v.State[f.Name] = f.value(inst.value)
	}
	for _, c := range inst.def.computed {
		val, err := c.fn(inst.value, ctx)
		if err != nil {
			return View{}, fmt.Errorf("forgewire: computed %s.%s: %w", inst.def.name, c.name, err)
		}
		v.Computed[c.name] = val
	}
	return v, nil
}

// Snapshot captures the rendered state into a token for the browser.
func (rt *Runtime) Snapshot(ctx context.Context, inst *Instance) (string, error) {
	inst.advance(phaseSnapshotted, phaseRendered)
	var reader SharedReader
	if rt.shared != nil {
		reader = rt.shared
	}
	s, err := Capture(ctx, rt.codec, inst.def, inst.value, reader)
	if err != nil {
		return "", err
	}
	return sealToken(rt.codec, inst.def, s)
}
