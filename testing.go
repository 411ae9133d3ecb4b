package forgewire

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/pthm/forgewire/lib/protocol"
)

// TestResult holds the result of mounting or calling a component in tests.
//
// Provides convenience methods for asserting on HTML content, status codes,
// effects, flashes, redirects and validation errors. A TestResult also
// carries the island's snapshot, so it can be fed into the next TestCall.
type TestResult struct {
	Component string
	Island    string
	Snapshot  string

	HTML       string
	Fragments  map[string]string
	StatusCode int
	ErrorCode  string

	Effects         []protocol.Effect
	TriggeredEvents []string
	Flashes         []Flash
	RedirectURL     string
	Errors          Errors
}

// TestMount performs a first-visit render.
//
//	result, err := forgewire.TestMount(reg, "counter", forgewire.Props{"start": 3})
//	if !result.HTMLContains("3") {
//	    t.Fatal("missing initial count")
//	}
func TestMount(reg *Registry, name string, props Props) (*TestResult, error) {
	return TestMountWithContext(context.Background(), reg, name, props)
}

// TestMountWithContext performs a first-visit render with a custom context.
func TestMountWithContext(ctx context.Context, reg *Registry, name string, props Props) (*TestResult, error) {
	out, err := reg.Mount(ctx, name, props)
	if err != nil {
		return nil, err
	}
	root, err := parseRoot(out)
	if err != nil {
		return nil, err
	}
	id, _ := attr(root, protocol.AttrIsland)
	token, _ := attr(root, protocol.AttrSnapshot)
	return &TestResult{
		Component:  name,
		Island:     id,
		Snapshot:   token,
		HTML:       out,
		StatusCode: http.StatusOK,
	}, nil
}

// TestCall runs action against the island captured in from, going through
// the full HTTP handler (header check, snapshot verification, hydration,
// rendering):
//
//	first, _ := forgewire.TestMount(reg, "counter", nil)
//	next, err := forgewire.TestCall(reg, first, "increment", nil)
//	if !next.IsOK() {
//	    t.Fatal("expected success")
//	}
func TestCall(reg *Registry, from *TestResult, action string, args map[string]any) (*TestResult, error) {
	return NewTestRequest(from).Call(action, args).Execute(reg)
}

// TestRequestBuilder provides a fluent interface for building test requests.
//
// Use this when you need fine-grained control over request construction:
//
//	result, err := forgewire.NewTestRequest(first).
//	    Update("title", "New title").
//	    Call("save", nil).
//	    Targets("list").
//	    Execute(reg)
type TestRequestBuilder struct {
	from    *TestResult
	req     protocol.Request
	headers map[string]string
	ctx     context.Context
	err     error
}

// NewTestRequest creates a request builder continuing from a previous result.
func NewTestRequest(from *TestResult) *TestRequestBuilder {
	return &TestRequestBuilder{
		from: from,
		req: protocol.Request{
			Component: from.Component,
			Island:    from.Island,
			Snapshot:  from.Snapshot,
		},
		headers: map[string]string{protocol.HeaderRequest: "true"},
		ctx:     context.Background(),
	}
}

// Call appends an action call.
func (b *TestRequestBuilder) Call(action string, args map[string]any) *TestRequestBuilder {
	call := protocol.Call{Action: action}
	if len(args) > 0 {
		call.Args = make(map[string]json.RawMessage, len(args))
		for k, v := range args {
			call.Args[k] = b.marshal(v)
		}
	}
	b.req.Calls = append(b.req.Calls, call)
	return b
}

// Update sets a model field value.
func (b *TestRequestBuilder) Update(field string, value any) *TestRequestBuilder {
	if b.req.Updates == nil {
		b.req.Updates = map[string]json.RawMessage{}
	}
	b.req.Updates[field] = b.marshal(value)
	return b
}

// Targets asks for targeted fragments instead of the whole island.
func (b *TestRequestBuilder) Targets(ids ...string) *TestRequestBuilder {
	b.req.Targets = append(b.req.Targets, ids...)
	return b
}

// WithSnapshot replaces the snapshot token, e.g. to test tampering.
func (b *TestRequestBuilder) WithSnapshot(token string) *TestRequestBuilder {
	b.req.Snapshot = token
	return b
}

// WithHeader adds a header to the request.
func (b *TestRequestBuilder) WithHeader(key, value string) *TestRequestBuilder {
	b.headers[key] = value
	return b
}

// WithoutHeader removes a header from the request.
func (b *TestRequestBuilder) WithoutHeader(key string) *TestRequestBuilder {
	delete(b.headers, key)
	return b
}

// WithContext sets the context for the request.
func (b *TestRequestBuilder) WithContext(ctx context.Context) *TestRequestBuilder {
	b.ctx = ctx
	return b
}

func (b *TestRequestBuilder) marshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil && b.err == nil {
		b.err = err
	}
	return raw
}

// Execute sends the request through reg's HTTP handler.
func (b *TestRequestBuilder) Execute(reg *Registry) (*TestResult, error) {
	if b.err != nil {
		return nil, b.err
	}
	body, err := json.Marshal(b.req)
	if err != nil {
		return nil, err
	}

	req := httptest.NewRequest(http.MethodPost, reg.Prefix()+b.req.Component, bytes.NewReader(body))
	req = req.WithContext(b.ctx)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, req)

	result := &TestResult{
		Component:  b.req.Component,
		Island:     b.req.Island,
		StatusCode: rec.Code,
	}
	if rec.Code != http.StatusOK {
		var er protocol.ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
			return nil, err
		}
		result.ErrorCode = er.Error.Code
		result.setEffects(er.Effects)
		return result, nil
	}

	var resp protocol.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		return nil, err
	}
	result.Snapshot = resp.Snapshot
	result.HTML = resp.HTML
	result.Fragments = resp.Fragments
	result.Errors = Errors(resp.Errors)
	result.setEffects(resp.Effects)
	return result, nil
}

func (r *TestResult) setEffects(effects []protocol.Effect) {
	r.Effects = effects
	r.Flashes = Flashes(effects)
	for _, e := range effects {
		switch e.Type {
		case protocol.EffectDispatch:
			r.TriggeredEvents = append(r.TriggeredEvents, e.Event)
		case protocol.EffectRedirect:
			r.RedirectURL = e.URL
		}
	}
}

// HTMLContains checks if the HTML (or any fragment) contains a substring.
func (r *TestResult) HTMLContains(substr string) bool {
	if strings.Contains(r.HTML, substr) {
		return true
	}
	for _, f := range r.Fragments {
		if strings.Contains(f, substr) {
			return true
		}
	}
	return false
}

// HTMLContainsAll checks if the HTML contains all the given substrings.
func (r *TestResult) HTMLContainsAll(substrs ...string) bool {
	for _, s := range substrs {
		if !r.HTMLContains(s) {
			return false
		}
	}
	return true
}

// HTMLContainsAny checks if the HTML contains any of the given substrings.
func (r *TestResult) HTMLContainsAny(substrs ...string) bool {
	for _, s := range substrs {
		if r.HTMLContains(s) {
			return true
		}
	}
	return false
}

// HasFragment checks if a targeted fragment was returned for id.
func (r *TestResult) HasFragment(id string) bool {
	_, ok := r.Fragments[id]
	return ok
}

// HasEvent checks if an event was dispatched.
func (r *TestResult) HasEvent(event string) bool {
	for _, e := range r.TriggeredEvents {
		if e == event {
			return true
		}
	}
	return false
}

// HasFlash checks if a flash message was set with the given level and message.
func (r *TestResult) HasFlash(level, message string) bool {
	for _, f := range r.Flashes {
		if f.Level == level && f.Message == message {
			return true
		}
	}
	return false
}

// HasFlashLevel checks if any flash message was set with the given level.
func (r *TestResult) HasFlashLevel(level string) bool {
	for _, f := range r.Flashes {
		if f.Level == level {
			return true
		}
	}
	return false
}

// HasFailure checks if the response carried a failure effect.
func (r *TestResult) HasFailure() bool {
	for _, e := range r.Effects {
		if e.Type == protocol.EffectFailure {
			return true
		}
	}
	return false
}

// HasError checks if field has a validation message.
func (r *TestResult) HasError(field string) bool {
	return r.Errors.Has(field)
}

// WasRedirected checks if the response asked for a redirect.
func (r *TestResult) WasRedirected() bool {
	return r.RedirectURL != ""
}

// RedirectedTo checks if the response redirected to a specific URL.
func (r *TestResult) RedirectedTo(url string) bool {
	return r.RedirectURL == url
}

// IsOK checks if the status code is 200.
func (r *TestResult) IsOK() bool {
	return r.StatusCode == http.StatusOK
}

// HasStatus checks if the status code matches.
func (r *TestResult) HasStatus(code int) bool {
	return r.StatusCode == code
}

// State decodes the snapshot carried by the result using reg's codec.
func (r *TestResult) State(reg *Registry) (map[string]json.RawMessage, error) {
	def, err := reg.Lookup(r.Component)
	if err != nil {
		return nil, err
	}
	return openToken(reg.codec, def, r.Snapshot)
}

// MockResolver is a Resolver for tests. It builds instances with New and
// records the names it was asked for:
//
//	mock := forgewire.NewMockResolver(func(name string) any {
//	    return &Counter{store: fakeStore}
//	})
//	reg := forgewire.NewRegistry(key, forgewire.WithResolver(mock))
type MockResolver struct {
	New func(name string) any

	mu       sync.Mutex
	resolved []string
}

// NewMockResolver creates a MockResolver.
func NewMockResolver(fn func(name string) any) *MockResolver {
	return &MockResolver{New: fn}
}

// Resolve implements Resolver.
func (m *MockResolver) Resolve(_ context.Context, name string) (any, error) {
	m.mu.Lock()
	m.resolved = append(m.resolved, name)
	m.mu.Unlock()
	v := m.New(name)
	if v == nil {
		return nil, ErrUnknownComponent
	}
	return v, nil
}

// Resolved returns the names resolved so far.
func (m *MockResolver) Resolved() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.resolved...)
}
