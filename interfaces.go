package forgewire

import (
	"context"
	"encoding/json"
)

// The runtime consumes its surroundings through these narrow contracts. The
// host framework supplies a Resolver and a Renderer; shared state comes from
// a *shared.Broker or any SharedState.

// Resolver constructs a fresh component instance with its dependencies
// injected.
type Resolver interface {
	Resolve(ctx context.Context, name string) (any, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, name string) (any, error)

func (f ResolverFunc) Resolve(ctx context.Context, name string) (any, error) {
	return f(ctx, name)
}

// Renderer renders a component template to HTML. Implementations must be
// deterministic: identical views produce identical HTML.
type Renderer interface {
	Render(ctx context.Context, instance any, template string, view View) (string, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, instance any, template string, view View) (string, error)

func (f RendererFunc) Render(ctx context.Context, instance any, template string, view View) (string, error) {
	return f(ctx, instance, template, view)
}

// SharedReader reads shared state. *shared.Broker implements it.
type SharedReader interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
}

// SharedState is the broker the runtime reads shared fields from and writes
// them back to. *shared.Broker implements it.
type SharedState interface {
	SharedReader
	Put(ctx context.Context, key string, prev, next json.RawMessage) error
}
