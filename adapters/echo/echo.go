// Package forgewireecho provides Echo framework integration for forgewire
// components.
//
// Mount the action endpoint onto an Echo instance or group:
//
//	e := echo.New()
//	reg := forgewireecho.Mount(e, forgewireecho.WithKey(key))
//	reg.Add(components.CounterDef)
//
// Or mount on a group with middleware:
//
//	g := e.Group("/app", authMiddleware)
//	reg := forgewireecho.MountGroup(g, "/app")
package forgewireecho

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/pthm/forgewire"
)

// Option configures the Mount and MountGroup functions.
type Option func(*options)

type options struct {
	key      []byte
	path     string
	registry []forgewire.Option
}

// WithKey sets the snapshot signing key for the registry.
// The key should be at least 32 bytes of cryptographically random data.
// If not provided, a random key is generated (suitable for development only).
func WithKey(key []byte) Option {
	return func(o *options) {
		o.key = key
	}
}

// WithPath sets the URL path prefix of the action endpoint.
// Defaults to forgewire.DefaultPrefix.
func WithPath(path string) Option {
	return func(o *options) {
		o.path = path
	}
}

// WithRegistryOptions passes options through to forgewire.NewRegistry.
func WithRegistryOptions(opts ...forgewire.Option) Option {
	return func(o *options) {
		o.registry = append(o.registry, opts...)
	}
}

// Mount creates a registry and mounts the action endpoint on an Echo instance.
func Mount(e *echo.Echo, opts ...Option) *forgewire.Registry {
	reg, path := newRegistry("", opts)
	e.Any(path+"*", Handler(reg))
	return reg
}

// MountGroup creates a registry and mounts the action endpoint on an Echo
// group, so it shares the group's middleware (auth, logging, etc.).
// groupPrefix is the prefix the group was created with; island routes
// include it.
func MountGroup(g *echo.Group, groupPrefix string, opts ...Option) *forgewire.Registry {
	reg, path := newRegistry(groupPrefix, opts)
	g.Any(path+"*", Handler(reg))
	return reg
}

// Handler serves the action endpoint for a route ending in a "*" wildcard
// that matches the component name.
func Handler(reg *forgewire.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		reg.ServeComponent(c.Response(), c.Request(), c.Param("*"))
		return nil
	}
}

func newRegistry(groupPrefix string, opts []Option) (*forgewire.Registry, string) {
	o := &options{path: forgewire.DefaultPrefix}
	for _, opt := range opts {
		opt(o)
	}
	path := "/" + strings.Trim(o.path, "/") + "/"

	key := o.key
	if key == nil {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("forgewireecho: failed to generate random key: %v", err))
		}
	}

	prefix := strings.TrimSuffix(groupPrefix, "/") + path
	ropts := append([]forgewire.Option{forgewire.WithPrefix(prefix)}, o.registry...)
	return forgewire.NewRegistry(key, ropts...), path
}

// Render writes a templ component to the Echo response.
//
//	func handler(c echo.Context) error {
//	    return forgewireecho.Render(c, page(reg.Island("counter", nil)))
//	}
func Render(c echo.Context, component templ.Component) error {
	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	return component.Render(c.Request().Context(), c.Response())
}
