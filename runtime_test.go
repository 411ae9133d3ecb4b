package forgewire

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pthm/forgewire/lib/protocol"
	"github.com/pthm/forgewire/lib/shared"
)

func call(action string, args map[string]any) protocol.Call {
	c := protocol.Call{Action: action}
	if len(args) > 0 {
		c.Args = map[string]json.RawMessage{}
		for k, v := range args {
			raw, _ := json.Marshal(v)
			c.Args[k] = raw
		}
	}
	return c
}

func TestHydrationFidelity(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	rt := reg.Runtime()

	steps := []protocol.Call{
		call("increment", nil),
		call("increment", map[string]any{"step": 5}),
		call("setLabel", map[string]any{"label": "clicks"}),
		call("tag", map[string]any{"tag": "a"}),
		call("increment", map[string]any{"step": "-2"}),
		call("tag", map[string]any{"tag": "b"}),
	}

	// All actions in one process.
	inst := NewInstance(counterDef, counterDef.New(), "island-1")
	if err := rt.Mount(ctx, inst, Props{"start": 10}); err != nil {
		t.Fatal(err)
	}
	for _, c := range steps {
		if err := rt.Call(ctx, inst, c); err != nil {
			t.Fatalf("Call(%s) error = %v", c.Action, err)
		}
	}
	want := inst.Value().(*counter)

	// One action per request, round-tripping through the snapshot.
	res, err := TestMount(reg, "counter", Props{"start": 10})
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range steps {
		var args map[string]any
		if c.Args != nil {
			args = map[string]any{}
			for k, v := range c.Args {
				args[k] = json.RawMessage(v)
			}
		}
		res, err = TestCall(reg, res, c.Action, args)
		if err != nil {
			t.Fatal(err)
		}
		if !res.IsOK() {
			t.Fatalf("TestCall(%s) status = %d (%s)", c.Action, res.StatusCode, res.ErrorCode)
		}
	}
	state, err := res.State(reg)
	if err != nil {
		t.Fatal(err)
	}
	got := counterDef.New().(*counter)
	if err := rt.Hydrate(ctx, NewInstance(counterDef, got, ""), state); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round-tripped state differs (-in-process +round-trip):\n%s", diff)
	}
}

func TestIdempotentRendering(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	rt := reg.Runtime()

	res, err := TestMount(reg, "counter", Props{"start": 3})
	if err != nil {
		t.Fatal(err)
	}
	state, err := res.State(reg)
	if err != nil {
		t.Fatal(err)
	}

	render := func() string {
		inst := NewInstance(counterDef, counterDef.New(), "x")
		if err := rt.Hydrate(ctx, inst, state); err != nil {
			t.Fatal(err)
		}
		out, err := rt.Render(ctx, inst)
		if err != nil {
			t.Fatal(err)
		}
		again, err := rt.Render(ctx, inst)
		if err != nil {
			t.Fatal(err)
		}
		if out != again {
			t.Errorf("second render differs:\n%s\n%s", out, again)
		}
		return out
	}

	if a, b := render(), render(); a != b {
		t.Errorf("renders from the same state differ:\n%s\n%s", a, b)
	}

	// Whole responses, snapshot token included, are stable too.
	r1, _ := TestCall(reg, res, RefreshAction, nil)
	r2, _ := TestCall(reg, res, RefreshAction, nil)
	if r1.HTML != r2.HTML || r1.Snapshot != r2.Snapshot {
		t.Error("refreshing the same snapshot twice produced different responses")
	}
}

func TestCounterIsStateless(t *testing.T) {
	reg := newTestRegistry()
	initial, err := TestMount(reg, "counter", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !initial.HTMLContains(`<span target="count">0</span>`) {
		t.Fatalf("initial HTML = %s", initial.HTML)
	}

	for i := 0; i < 2; i++ {
		res, err := TestCall(reg, initial, "increment", nil)
		if err != nil {
			t.Fatal(err)
		}
		if !res.HTMLContains(`<span target="count">1</span>`) {
			t.Errorf("request %d from the initial snapshot: HTML = %s, want count 1", i, res.HTML)
		}
		state, err := res.State(reg)
		if err != nil {
			t.Fatal(err)
		}
		if string(state["count"]) != "1" {
			t.Errorf("request %d snapshot count = %s, want 1", i, state["count"])
		}
	}
}

func TestPhaseOrderIsEnforced(t *testing.T) {
	ctx := context.Background()
	rt := newTestRegistry().Runtime()

	inst := NewInstance(counterDef, counterDef.New(), "x")
	mustPanic(t, "cannot move from constructed to snapshotted", func() {
		_, _ = rt.Snapshot(ctx, inst)
	})

	inst = NewInstance(counterDef, counterDef.New(), "x")
	if err := rt.Mount(ctx, inst, nil); err != nil {
		t.Fatal(err)
	}
	mustPanic(t, "cannot move from mounted to mounted", func() {
		_ = rt.Mount(ctx, inst, nil)
	})
	mustPanic(t, "cannot move from mounted to hydrated", func() {
		_ = rt.Hydrate(ctx, inst, nil)
	})

	if _, err := rt.Render(ctx, inst); err != nil {
		t.Fatal(err)
	}
	if _, err := rt.Snapshot(ctx, inst); err != nil {
		t.Fatal(err)
	}
	mustPanic(t, "cannot move from snapshotted to acted", func() {
		_ = rt.Call(ctx, inst, call("increment", nil))
	})
}

func TestMountRunsOnce(t *testing.T) {
	ctx := context.Background()
	rt := newTestRegistry().Runtime()

	inst := NewInstance(counterDef, counterDef.New(), "x")
	if err := rt.Mount(ctx, inst, Props{"start": 4}); err != nil {
		t.Fatal(err)
	}
	if got := inst.Value().(*counter).Count; got != 4 {
		t.Errorf("Count after mount = %d, want 4", got)
	}

	// Hydration never runs the mount hook.
	inst = NewInstance(counterDef, counterDef.New(), "x")
	if err := rt.Hydrate(ctx, inst, map[string]json.RawMessage{"count": json.RawMessage(`9`)}); err != nil {
		t.Fatal(err)
	}
	if got := inst.Value().(*counter).Count; got != 9 {
		t.Errorf("Count after hydrate = %d, want 9", got)
	}
}

func TestActionFailures(t *testing.T) {
	ctx := context.Background()
	rt := newTestRegistry().Runtime()

	tests := []struct {
		action string
		check  func(error) bool
	}{
		{"fail", IsActionError},
		{"boom", IsActionError},
		{"missing", func(err error) bool { return errors.Is(err, ErrUnknownAction) }},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			inst := NewInstance(counterDef, counterDef.New(), "x")
			if err := rt.Mount(ctx, inst, nil); err != nil {
				t.Fatal(err)
			}
			err := rt.Call(ctx, inst, call(tt.action, nil))
			if err == nil || !tt.check(err) {
				t.Errorf("Call(%s) error = %v", tt.action, err)
			}
			if len(inst.Effects()) != 0 {
				t.Errorf("effects = %v, want none", inst.Effects())
			}
		})
	}

	inst := NewInstance(counterDef, counterDef.New(), "x")
	_ = rt.Mount(ctx, inst, nil)
	err := rt.Call(ctx, inst, call("fail", nil))
	var ae *ActionError
	if !errors.As(err, &ae) || ae.Action != "fail" || ae.Err.Error() != "database unavailable" {
		t.Errorf("ActionError = %+v", ae)
	}
}

func TestUpdateValidatesOnlyThatField(t *testing.T) {
	ctx := context.Background()
	rt := newTestRegistry().Runtime()

	inst := NewInstance(contactDef, contactDef.New(), "x")
	if err := rt.Mount(ctx, inst, nil); err != nil {
		t.Fatal(err)
	}
	if err := rt.Update(ctx, inst, "name", json.RawMessage(`"Al"`)); err != nil {
		t.Fatal(err)
	}
	if !inst.Errors().Has("name") {
		t.Error("name should fail min:3")
	}
	if inst.Errors().Has("email") {
		t.Error("email was not updated and should not be validated")
	}

	if err := rt.Update(ctx, inst, "name", json.RawMessage(`"Alice"`)); err != nil {
		t.Fatal(err)
	}
	if inst.Errors().Has("name") {
		t.Error("valid name should clear its error")
	}

	err := rt.Update(ctx, inst, "nope", json.RawMessage(`1`))
	if !errors.Is(err, ErrUnknownField) {
		t.Errorf("Update(nope) error = %v, want ErrUnknownField", err)
	}
}

func TestFormSubmitSkipsHandlerWhenInvalid(t *testing.T) {
	ctx := context.Background()
	rt := newTestRegistry().Runtime()

	inst := NewInstance(contactDef, contactDef.New(), "x")
	_ = rt.Mount(ctx, inst, nil)
	if err := rt.Update(ctx, inst, "name", json.RawMessage(`"Alice"`)); err != nil {
		t.Fatal(err)
	}
	if err := rt.Call(ctx, inst, call("save", nil)); err != nil {
		t.Fatalf("invalid form submit should not be fatal: %v", err)
	}
	c := inst.Value().(*contact)
	if c.Sent {
		t.Error("handler ran despite validation failure")
	}
	if !inst.Errors().Has("email") {
		t.Error("missing email error")
	}
	if len(inst.Effects()) != 0 {
		t.Errorf("effects = %v, want none", inst.Effects())
	}

	_ = rt.Update(ctx, inst, "email", json.RawMessage(`"alice@example.com"`))
	if err := rt.Call(ctx, inst, call("save", nil)); err != nil {
		t.Fatal(err)
	}
	if !c.Sent || inst.Errors().Any() {
		t.Errorf("Sent = %v, errors = %v; want sent with no errors", c.Sent, inst.Errors())
	}
}

func TestSharedWriteBackBeforeRender(t *testing.T) {
	ctx := context.Background()
	store := shared.NewMemory()
	reg, broker := newSharedRegistry(store)
	rt := reg.Runtime()

	inst := NewInstance(hitsDef, hitsDef.New(), "x")
	if err := rt.Mount(ctx, inst, nil); err != nil {
		t.Fatal(err)
	}
	if err := rt.Call(ctx, inst, call("bump", nil)); err != nil {
		t.Fatal(err)
	}
	out, err := rt.Render(ctx, inst)
	if err != nil {
		t.Fatal(err)
	}
	if out != `<div class="hits"><b>1</b> <i>seen 1</i></div>` {
		t.Errorf("Render() = %s", out)
	}
	v, ok, err := broker.Get(ctx, "hits")
	if err != nil || !ok || string(v) != "1" {
		t.Errorf("broker hits = %s, %v, %v; want 1", v, ok, err)
	}
}

func TestRefreshDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	store := shared.NewMemory()
	reg, _ := newSharedRegistry(store)
	rt := reg.Runtime()

	inst := NewInstance(hitsDef, hitsDef.New(), "x")
	_ = rt.Mount(ctx, inst, nil)
	if err := rt.Call(ctx, inst, call(RefreshAction, nil)); err != nil {
		t.Fatal(err)
	}
	if _, err := rt.Render(ctx, inst); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(ctx, "hits"); ok {
		t.Error("refresh wrote an unchanged shared field")
	}
}
