package forgewire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/a-h/templ"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pthm/forgewire/lib/protocol"
	"github.com/pthm/forgewire/lib/shared"
	"github.com/pthm/forgewire/lib/snapshot"
)

// DefaultPrefix is where the action endpoint is mounted unless WithPrefix
// says otherwise.
const DefaultPrefix = "/_wire/"

// Option configures a Registry.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	resolver Resolver
	renderer Renderer
	shared   SharedState
	prefix   string
	previous [][]byte
	metrics  prometheus.Registerer
	tracer   trace.TracerProvider
}

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithResolver sets the component resolver. Default: a zero value of the
// definition's type.
func WithResolver(r Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithRenderer sets the template renderer.
func WithRenderer(r Renderer) Option {
	return func(o *options) {
		o.renderer = r
	}
}

// WithBroker sets the shared-state broker.
func WithBroker(b *shared.Broker) Option {
	return func(o *options) {
		if b != nil {
			o.shared = b
		}
	}
}

// WithSharedState sets a custom shared-state implementation.
func WithSharedState(s SharedState) Option {
	return func(o *options) {
		o.shared = s
	}
}

// WithPrefix sets the URL prefix of the action endpoint. Default: DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		o.prefix = prefix
	}
}

// WithPreviousKeys keeps older secrets valid for verification during key
// rotation.
func WithPreviousKeys(keys ...[]byte) Option {
	return func(o *options) {
		o.previous = append(o.previous, keys...)
	}
}

// WithMetrics registers dispatcher metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.metrics = reg
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
// Default: otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracer = tp
	}
}

// Registry holds component definitions and serves the action endpoint.
type Registry struct {
	mu      sync.RWMutex
	defs    map[string]*Definition
	codec   *snapshot.Codec
	runtime *Runtime

	resolver Resolver
	prefix   string
	logger   *zap.Logger
	metrics  *metrics
	tracer   trace.Tracer

	// OnError is called when a request fails. Customize this to handle
	// errors appropriately for your application; WriteError is the default.
	OnError func(http.ResponseWriter, *http.Request, error)
}

// NewRegistry creates a registry that signs snapshots with secret.
// Panics if the secret is empty.
func NewRegistry(secret []byte, opts ...Option) *Registry {
	o := options{
		logger: zap.NewNop(),
		prefix: DefaultPrefix,
		tracer: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	codec, err := snapshot.NewCodec(secret, o.previous...)
	if err != nil {
		panic(fmt.Sprintf("forgewire: failed to create snapshot codec: %v", err))
	}

	reg := &Registry{
		defs:     make(map[string]*Definition),
		codec:    codec,
		resolver: o.resolver,
		prefix:   o.prefix,
		logger:   o.logger,
		metrics:  newMetrics(o.metrics),
		tracer:   o.tracer.Tracer("github.com/pthm/forgewire"),
	}
	var sharedState SharedState
	if o.shared != nil {
		sharedState = &countingShared{SharedState: o.shared, m: reg.metrics}
	}
	reg.runtime = NewRuntime(codec, o.renderer, sharedState, o.logger)
	reg.OnError = func(w http.ResponseWriter, r *http.Request, err error) {
		WriteError(w, err)
	}
	return reg
}

// Prefix returns the URL prefix of the action endpoint.
func (reg *Registry) Prefix() string {
	return reg.prefix
}

// Codec returns the snapshot codec.
func (reg *Registry) Codec() *snapshot.Codec {
	return reg.codec
}

// Runtime returns the component runtime.
func (reg *Registry) Runtime() *Runtime {
	return reg.runtime
}

// Add registers component definitions.
// Panics on a name collision.
func (reg *Registry) Add(defs ...*Definition) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, def := range defs {
		if _, exists := reg.defs[def.name]; exists {
			panic(fmt.Sprintf("forgewire: component name collision for %q", def.name))
		}
		reg.defs[def.name] = def
	}
}

// Lookup returns the definition registered under name.
func (reg *Registry) Lookup(name string) (*Definition, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	def, ok := reg.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownComponent, name)
	}
	return def, nil
}

// Names returns the registered component names.
func (reg *Registry) Names() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	names := make([]string, 0, len(reg.defs))
	for name := range reg.defs {
		names = append(names, name)
	}
	return names
}

// construct resolves a fresh component value for def.
func (reg *Registry) construct(ctx context.Context, def *Definition) (any, error) {
	if reg.resolver == nil {
		return def.New(), nil
	}
	v, err := reg.resolver.Resolve(ctx, def.name)
	if err != nil {
		return nil, fmt.Errorf("forgewire: resolve %q: %w", def.name, err)
	}
	if reflect.TypeOf(v) != def.typ {
		return nil, fmt.Errorf("forgewire: resolver returned %T for %q, want %s", v, def.name, def.typ)
	}
	return v, nil
}

func (reg *Registry) attrs(inst *Instance, token string) rootAttrs {
	return rootAttrs{
		id:       inst.id,
		name:     inst.def.name,
		route:    reg.prefix + inst.def.name,
		snapshot: token,
		shared:   inst.def.SharedKeys(),
		listen:   inst.def.listeners,
	}
}

// Mount performs a first-visit render of the named component and returns
// its island HTML, ready to embed in a page.
func (reg *Registry) Mount(ctx context.Context, name string, props Props) (string, error) {
	def, err := reg.Lookup(name)
	if err != nil {
		return "", err
	}
	v, err := reg.construct(ctx, def)
	if err != nil {
		return "", err
	}
	inst := NewInstance(def, v, uuid.NewString())
	rt := reg.runtime
	if err := rt.Mount(ctx, inst, props); err != nil {
		return "", err
	}
	out, err := rt.Render(ctx, inst)
	if err != nil {
		return "", err
	}
	token, err := rt.Snapshot(ctx, inst)
	if err != nil {
		return "", err
	}
	return injectRoot(out, reg.attrs(inst, token))
}

// Island returns a templ component that mounts the named component:
//
//	@reg.Island("counter", forgewire.Props{"start": 5})
func (reg *Registry) Island(name string, props Props) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		out, err := reg.Mount(ctx, name, props)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	})
}

// Handler returns the HTTP handler for the action endpoint.
// Mount it at Prefix() in your application.
func (reg *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.ServeComponent(w, r, strings.TrimPrefix(r.URL.Path, reg.prefix))
	})
}

// ServeComponent serves one action request for the named component. Router
// adapters call it with the component taken from their path parameter.
func (reg *Registry) ServeComponent(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// CSRF protection: browsers only send custom headers same-origin
	if !IsWire(r) {
		reg.OnError(w, r, ErrForbidden)
		return
	}

	name = strings.Trim(name, "/")
	if name == "" || strings.Contains(name, "/") {
		reg.OnError(w, r, fmt.Errorf("%w: %q", ErrUnknownComponent, name))
		return
	}

	var req protocol.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		reg.OnError(w, r, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	req.Component = name

	resp, err := reg.Dispatch(r.Context(), req)
	if err != nil {
		reg.OnError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

const maxRequestBody = 1 << 20

// WriteError writes err as a JSON ErrorResponse with the status from
// StatusCode. Action failures carry a failure effect so the client shows a
// single notification.
func WriteError(w http.ResponseWriter, err error) {
	body := protocol.ErrorResponse{
		Error: protocol.ErrorBody{Code: errorCode(err), Message: publicMessage(err)},
	}
	if IsActionError(err) {
		body.Effects = []protocol.Effect{{Type: protocol.EffectFailure, Message: body.Error.Message}}
	}
	writeJSON(w, StatusCode(err), body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// countingShared records write-back outcomes.
type countingShared struct {
	SharedState
	m *metrics
}

func (c *countingShared) Put(ctx context.Context, key string, prev, next json.RawMessage) error {
	err := c.SharedState.Put(ctx, key, prev, next)
	switch {
	case err == nil:
		c.m.sharedWrites.WithLabelValues("ok").Inc()
	case errors.Is(err, shared.ErrConflict):
		c.m.sharedWrites.WithLabelValues("conflict").Inc()
	default:
		c.m.sharedWrites.WithLabelValues("error").Inc()
	}
	return err
}
