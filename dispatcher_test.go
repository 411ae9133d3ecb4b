package forgewire

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pthm/forgewire/lib/protocol"
	"github.com/pthm/forgewire/lib/shared"
)

func mount(t *testing.T, reg *Registry, name string, props Props) *TestResult {
	t.Helper()
	res, err := TestMount(reg, name, props)
	if err != nil {
		t.Fatalf("TestMount(%s) error = %v", name, err)
	}
	return res
}

func TestMountEmbedsIslandAttributes(t *testing.T) {
	reg := newTestRegistry()
	res := mount(t, reg, "feed", nil)

	if res.Island == "" || res.Snapshot == "" {
		t.Fatalf("island = %q, snapshot = %q; want both set", res.Island, res.Snapshot)
	}
	for _, want := range []string{
		`island="` + res.Island + `"`,
		`island-name="feed"`,
		`island-route="/_wire/feed"`,
		`snapshot="` + res.Snapshot + `"`,
		`island-listen="counter:labelled=onLabel"`,
	} {
		if !res.HTMLContains(want) {
			t.Errorf("HTML missing %s:\n%s", want, res.HTML)
		}
	}

	hits := mount(t, newTestRegistry(), "hits", nil)
	if !hits.HTMLContains(`island-shared="hits"`) {
		t.Errorf("HTML missing island-shared:\n%s", hits.HTML)
	}
}

func TestIslandComponent(t *testing.T) {
	reg := newTestRegistry()
	var buf bytes.Buffer
	if err := reg.Island("counter", Props{"start": 2}).Render(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `<span target="count">2</span>`) {
		t.Errorf("Island() = %s", buf.String())
	}

	if err := reg.Island("missing", nil).Render(context.Background(), &buf); !IsNotFound(err) {
		t.Errorf("Island(missing) error = %v, want not found", err)
	}
}

func TestDispatchKeepsIslandID(t *testing.T) {
	reg := newTestRegistry()
	first := mount(t, reg, "counter", nil)
	next, err := TestCall(reg, first, "increment", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !next.HTMLContains(`island="` + first.Island + `"`) {
		t.Errorf("response lost island id %s:\n%s", first.Island, next.HTML)
	}
	if next.Snapshot == first.Snapshot {
		t.Error("snapshot did not change after increment")
	}
}

func TestDispatchErrors(t *testing.T) {
	reg := newTestRegistry()
	first := mount(t, reg, "counter", nil)

	tampered := []byte(first.Snapshot)
	tampered[len(tampered)/2] ^= 1

	tests := []struct {
		name   string
		build  func() *TestRequestBuilder
		status int
		code   string
	}{
		{
			name:   "missing header",
			build:  func() *TestRequestBuilder { return NewTestRequest(first).WithoutHeader(protocol.HeaderRequest) },
			status: http.StatusForbidden,
			code:   protocol.CodeForbidden,
		},
		{
			name: "unknown component",
			build: func() *TestRequestBuilder {
				r := NewTestRequest(first)
				r.req.Component = "nope"
				return r
			},
			status: http.StatusNotFound,
			code:   protocol.CodeUnknownComponent,
		},
		{
			name:   "unknown action",
			build:  func() *TestRequestBuilder { return NewTestRequest(first).Call("nope", nil) },
			status: http.StatusNotFound,
			code:   protocol.CodeUnknownAction,
		},
		{
			name:   "tampered snapshot",
			build:  func() *TestRequestBuilder { return NewTestRequest(first).WithSnapshot(string(tampered)).Call("increment", nil) },
			status: http.StatusBadRequest,
			code:   protocol.CodeTampered,
		},
		{
			name:   "empty snapshot",
			build:  func() *TestRequestBuilder { return NewTestRequest(first).WithSnapshot("").Call("increment", nil) },
			status: http.StatusBadRequest,
			code:   protocol.CodeTampered,
		},
		{
			name:   "snapshot for another component",
			build:  func() *TestRequestBuilder { return NewTestRequest(mount(t, reg, "feed", nil)).WithSnapshot(first.Snapshot) },
			status: http.StatusBadRequest,
			code:   protocol.CodeTampered,
		},
		{
			name:   "argument coercion",
			build:  func() *TestRequestBuilder { return NewTestRequest(first).Call("increment", map[string]any{"step": "many"}) },
			status: http.StatusBadRequest,
			code:   protocol.CodeCoercion,
		},
		{
			name:   "undeclared argument",
			build:  func() *TestRequestBuilder { return NewTestRequest(first).Call("increment", map[string]any{"by": 1}) },
			status: http.StatusBadRequest,
			code:   protocol.CodeCoercion,
		},
		{
			name:   "unknown field",
			build:  func() *TestRequestBuilder { return NewTestRequest(first).Update("secret", 1) },
			status: http.StatusBadRequest,
			code:   protocol.CodeUnknownField,
		},
		{
			name:   "action failure",
			build:  func() *TestRequestBuilder { return NewTestRequest(first).Call("fail", nil) },
			status: http.StatusInternalServerError,
			code:   protocol.CodeActionFailed,
		},
		{
			name:   "action panic",
			build:  func() *TestRequestBuilder { return NewTestRequest(first).Call("boom", nil) },
			status: http.StatusInternalServerError,
			code:   protocol.CodeActionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.build().Execute(reg)
			if err != nil {
				t.Fatal(err)
			}
			if !res.HasStatus(tt.status) {
				t.Errorf("status = %d, want %d", res.StatusCode, tt.status)
			}
			if res.ErrorCode != tt.code {
				t.Errorf("code = %q, want %q", res.ErrorCode, tt.code)
			}
			if res.HTML != "" || res.Snapshot != "" {
				t.Error("fatal response leaked HTML or snapshot")
			}
			if want := tt.code == protocol.CodeActionFailed; res.HasFailure() != want {
				t.Errorf("HasFailure() = %v, want %v", res.HasFailure(), want)
			}
		})
	}
}

func TestActionFailureMessageIsGeneric(t *testing.T) {
	reg := newTestRegistry()
	first := mount(t, reg, "counter", nil)

	body, _ := json.Marshal(protocol.Request{Snapshot: first.Snapshot, Action: "fail"})
	req := httptest.NewRequest(http.MethodPost, "/_wire/counter", bytes.NewReader(body))
	req.Header.Set(protocol.HeaderRequest, "true")
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, req)

	if strings.Contains(rec.Body.String(), "database unavailable") {
		t.Errorf("internal error detail leaked: %s", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestHandlerRejectsNonPost(t *testing.T) {
	reg := newTestRegistry()
	req := httptest.NewRequest(http.MethodGet, "/_wire/counter", nil)
	req.Header.Set(protocol.HeaderRequest, "true")
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/_wire/counter", strings.NewReader("{"))
	req.Header.Set(protocol.HeaderRequest, "true")
	rec = httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rec.Code)
	}
}

func TestCustomOnError(t *testing.T) {
	reg := newTestRegistry()
	var seen error
	reg.OnError = func(w http.ResponseWriter, r *http.Request, err error) {
		seen = err
		http.Error(w, "nope", http.StatusTeapot)
	}

	req := httptest.NewRequest(http.MethodPost, "/_wire/counter", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
	if StatusCode(seen) != http.StatusForbidden {
		t.Errorf("OnError got %v, want ErrForbidden", seen)
	}
}

func TestTargetedFragments(t *testing.T) {
	reg := newTestRegistry()
	first := mount(t, reg, "counter", nil)

	res, err := NewTestRequest(first).Call("increment", nil).Targets("count").Execute(reg)
	if err != nil {
		t.Fatal(err)
	}
	if res.HTML != "" {
		t.Errorf("targeted response carried whole HTML: %s", res.HTML)
	}
	if got, want := res.Fragments["count"], `<span target="count">1</span>`; got != want {
		t.Errorf("fragment = %q, want %q", got, want)
	}
	if res.HasFragment("double") {
		t.Error("unrequested fragment returned")
	}

	// A missing marker falls back to the whole island.
	res, err = NewTestRequest(first).Call("increment", nil).Targets("count", "nowhere").Execute(reg)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Fragments) != 0 || !res.HTMLContains(`island="`) {
		t.Errorf("fallback = fragments %v, html %q", res.Fragments, res.HTML)
	}
}

func TestEffectsInEmissionOrder(t *testing.T) {
	reg := newTestRegistry()
	first := mount(t, reg, "contact", nil)

	res, err := NewTestRequest(first).
		Update("name", "Alice").
		Update("email", "alice@example.com").
		Call("save", nil).
		Execute(reg)
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsOK() {
		t.Fatalf("status = %d (%s)", res.StatusCode, res.ErrorCode)
	}
	if len(res.Effects) != 2 || res.Effects[0].Type != protocol.EffectFlash || res.Effects[1].Type != protocol.EffectRedirect {
		t.Errorf("effects = %+v, want flash then redirect", res.Effects)
	}
	if !res.HasFlash(FlashSuccess, "Thanks!") || !res.RedirectedTo("/thanks") {
		t.Errorf("flashes = %v, redirect = %q", res.Flashes, res.RedirectURL)
	}
	if strings.Contains(res.HTML, "Thanks!") {
		t.Error("effects must not be embedded in HTML")
	}
}

func TestValidationIsNotFatal(t *testing.T) {
	reg := newTestRegistry()
	first := mount(t, reg, "contact", nil)

	res, err := NewTestRequest(first).Update("name", "Al").Call("save", nil).Execute(reg)
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsOK() {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if !res.HasError("name") || !res.HasError("email") {
		t.Errorf("errors = %v, want name and email", res.Errors)
	}
	if !res.HTMLContains(`data-field="email"`) {
		t.Errorf("errors not rendered inline:\n%s", res.HTML)
	}
	if res.WasRedirected() {
		t.Error("invalid submit redirected")
	}

	// Errors returned by the handler itself are inline too.
	res, err = NewTestRequest(first).
		Update("name", "Alice").
		Update("email", "taken@example.com").
		Call("save", nil).
		Execute(reg)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Errors.First("email"); got != "The email has already been taken." {
		t.Errorf("email error = %q", got)
	}
}

func TestDispatchedEventsReachListeners(t *testing.T) {
	reg := newTestRegistry()
	c := mount(t, reg, "counter", nil)
	res, err := TestCall(reg, c, "setLabel", map[string]any{"label": "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.HasEvent("counter:labelled") {
		t.Fatalf("events = %v", res.TriggeredEvents)
	}

	// The client runs the listener's action with the event payload.
	f := mount(t, reg, "feed", nil)
	action := feedDef.Listeners()["counter:labelled"]
	out, err := TestCall(reg, f, action, res.Effects[0].Payload)
	if err != nil {
		t.Fatal(err)
	}
	if !out.HTMLContains(">hello</div>") {
		t.Errorf("listener HTML = %s", out.HTML)
	}
}

func TestSensitiveSnapshotsAreOpaque(t *testing.T) {
	reg := newTestRegistry()
	res := mount(t, reg, "vault", nil)
	if strings.Contains(res.Snapshot, "s3cr3t") {
		t.Error("snapshot leaks plaintext")
	}
	state, err := res.State(reg)
	if err != nil {
		t.Fatal(err)
	}
	if string(state["secret"]) != `"s3cr3t"` {
		t.Errorf("secret = %s", state["secret"])
	}

	next, err := TestCall(reg, res, RefreshAction, nil)
	if err != nil || !next.IsOK() {
		t.Fatalf("refresh = %+v, %v", next, err)
	}
}

func TestKeyRotation(t *testing.T) {
	old := newTestRegistry()
	first := mount(t, old, "counter", nil)

	rotated := NewRegistry([]byte("new-key"), WithRenderer(testRenderer), WithPreviousKeys(testKey))
	rotated.Add(counterDef)
	res, err := TestCall(rotated, first, "increment", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsOK() {
		t.Fatalf("rotated registry rejected old snapshot: %s", res.ErrorCode)
	}

	fresh := NewRegistry([]byte("new-key"), WithRenderer(testRenderer))
	fresh.Add(counterDef)
	res, _ = TestCall(fresh, first, "increment", nil)
	if res.ErrorCode != protocol.CodeTampered {
		t.Errorf("unknown key code = %q, want %q", res.ErrorCode, protocol.CodeTampered)
	}
}

func TestSharedStateConvergence(t *testing.T) {
	reg, _ := newSharedRegistry(shared.NewMemory())

	a := mount(t, reg, "hits", nil)
	b := mount(t, reg, "hits", nil)

	a2, err := TestCall(reg, a, "bump", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !a2.HTMLContains("<b>1</b>") {
		t.Fatalf("a after bump = %s", a2.HTML)
	}

	// b still holds a snapshot with 0; its next poll sees the broker value.
	b2, err := TestCall(reg, b, RefreshAction, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !b2.HTMLContains("<b>1</b>") {
		t.Errorf("b after refresh = %s, want 1", b2.HTML)
	}
	state, _ := b2.State(reg)
	if string(state["count"]) != "1" {
		t.Errorf("b snapshot count = %s, want 1", state["count"])
	}

	b3, _ := TestCall(reg, b2, "bump", nil)
	a3, _ := TestCall(reg, a2, RefreshAction, nil)
	if !b3.HTMLContains("<b>2</b>") || !a3.HTMLContains("<b>2</b>") {
		t.Errorf("a = %s, b = %s; want both 2", a3.HTML, b3.HTML)
	}
}

func TestSharedStateConsistencyModes(t *testing.T) {
	ctx := context.Background()

	race := func(t *testing.T, reg *Registry) (*TestResult, *TestResult) {
		t.Helper()
		// Two islands read 0 and both bump before either writes: drive the
		// runtime by hand so the interleaving is deterministic.
		rt := reg.Runtime()
		i1 := NewInstance(hitsDef, hitsDef.New(), "1")
		i2 := NewInstance(hitsDef, hitsDef.New(), "2")
		for _, inst := range []*Instance{i1, i2} {
			if err := rt.Mount(ctx, inst, nil); err != nil {
				t.Fatal(err)
			}
			if err := rt.Call(ctx, inst, call("bump", nil)); err != nil {
				t.Fatal(err)
			}
		}
		_, err1 := rt.Render(ctx, i1)
		_, err2 := rt.Render(ctx, i2)
		return &TestResult{StatusCode: StatusCode(err1)}, &TestResult{StatusCode: StatusCode(err2)}
	}

	t.Run("last writer wins", func(t *testing.T) {
		reg, broker := newSharedRegistry(shared.NewMemory())
		r1, r2 := race(t, reg)
		if !r1.IsOK() || !r2.IsOK() {
			t.Fatalf("statuses = %d, %d; want both 200", r1.StatusCode, r2.StatusCode)
		}
		v, _, _ := broker.Get(ctx, "hits")
		if string(v) != "1" {
			t.Errorf("hits = %s, want 1 (one update lost)", v)
		}
	})

	t.Run("compare and swap", func(t *testing.T) {
		reg, broker := newSharedRegistry(shared.NewMemory(), shared.WithConsistency(shared.CompareAndSwap))
		r1, r2 := race(t, reg)
		if !r1.IsOK() || !r2.HasStatus(http.StatusConflict) {
			t.Fatalf("statuses = %d, %d; want 200 then 409", r1.StatusCode, r2.StatusCode)
		}
		v, _, _ := broker.Get(ctx, "hits")
		if string(v) != "1" {
			t.Errorf("hits = %s, want 1", v)
		}
	})
}

func TestDispatchMetrics(t *testing.T) {
	promReg := prometheus.NewRegistry()
	reg := newTestRegistry(WithMetrics(promReg))
	first := mount(t, reg, "counter", nil)

	_, _ = TestCall(reg, first, "increment", nil)
	_, _ = NewTestRequest(first).WithSnapshot("garbage").Execute(reg)

	if got := testutil.ToFloat64(reg.metrics.dispatches.WithLabelValues("counter", "ok")); got != 1 {
		t.Errorf("ok dispatches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(reg.metrics.snapshotsRejected); got != 1 {
		t.Errorf("rejected snapshots = %v, want 1", got)
	}
	if n, err := testutil.GatherAndCount(promReg, "forgewire_dispatches_total"); err != nil || n != 2 {
		t.Errorf("dispatch series = %d, %v; want 2", n, err)
	}
}
