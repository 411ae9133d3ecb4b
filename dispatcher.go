package forgewire

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pthm/forgewire/lib/protocol"
)

// Dispatch handles one action request: verify the snapshot, hydrate a fresh
// instance, apply model updates, run the calls in order, write back shared
// state, render and snapshot.
//
// Any error is fatal for the request and no partial state escapes: the
// instance is discarded without being snapshotted. Requests are not
// deduplicated; each one executes its calls at most once.
func (reg *Registry) Dispatch(ctx context.Context, req protocol.Request) (resp protocol.Response, err error) {
	component := req.Component
	if _, lerr := reg.Lookup(component); lerr != nil {
		component = "unknown"
	}

	ctx, span := reg.tracer.Start(ctx, "forgewire.dispatch",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("forgewire.component", component),
			attribute.Int("forgewire.calls", len(req.AllCalls())),
			attribute.Int("forgewire.updates", len(req.Updates)),
		),
	)
	start := time.Now()
	defer func() {
		reg.metrics.observe(component, err, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, errorCode(err))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	return reg.dispatch(ctx, req)
}

func (reg *Registry) dispatch(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	def, err := reg.Lookup(req.Component)
	if err != nil {
		return protocol.Response{}, err
	}

	state, err := openToken(reg.codec, def, req.Snapshot)
	if err != nil {
		reg.metrics.snapshotsRejected.Inc()
		reg.logger.Warn("snapshot rejected",
			zap.String("component", def.name),
			zap.Error(err),
		)
		return protocol.Response{}, err
	}

	v, err := reg.construct(ctx, def)
	if err != nil {
		return protocol.Response{}, err
	}
	id := req.Island
	if id == "" {
		id = uuid.NewString()
	}
	inst := NewInstance(def, v, id)

	rt := reg.runtime
	if err := rt.Hydrate(ctx, inst, state); err != nil {
		return protocol.Response{}, err
	}

	fields := make([]string, 0, len(req.Updates))
	for name := range req.Updates {
		fields = append(fields, name)
	}
	slices.Sort(fields)
	for _, name := range fields {
		if err := rt.Update(ctx, inst, name, req.Updates[name]); err != nil {
			return protocol.Response{}, err
		}
	}

	for _, call := range req.AllCalls() {
		if err := rt.Call(ctx, inst, call); err != nil {
			return protocol.Response{}, err
		}
	}

	out, err := rt.Render(ctx, inst)
	if err != nil {
		return protocol.Response{}, err
	}
	token, err := rt.Snapshot(ctx, inst)
	if err != nil {
		return protocol.Response{}, err
	}
	full, err := injectRoot(out, reg.attrs(inst, token))
	if err != nil {
		return protocol.Response{}, err
	}

	resp := protocol.Response{
		Snapshot: token,
		Effects:  inst.effects,
	}
	if inst.errors.Any() {
		resp.Errors = inst.errors
	}
	if len(req.Targets) > 0 {
		frags, ok, err := extractFragments(full, req.Targets)
		if err != nil {
			return protocol.Response{}, err
		}
		if ok {
			resp.Fragments = frags
			return resp, nil
		}
	}
	resp.HTML = full
	return resp, nil
}
