// Package forgewire provides server-driven reactive components ("islands")
// for Go web applications using templ templates.
//
// A component's state lives on the server. Each render embeds a signed
// snapshot of that state in the island's root element; the client runtime
// sends the snapshot back with every action, so no server memory is needed
// between requests and any instance can serve any island.
//
// # Core Concepts
//
// Components are plain structs. Their bindable surface is declared once with
// Define, which builds and caches a Definition for the type:
//
//	type Counter struct {
//	    Count int
//	}
//
//	func (c *Counter) Increment(ctx context.Context, args forgewire.Args) forgewire.Result {
//	    c.Count += max(args.Int("step"), 1)
//	    return forgewire.OK()
//	}
//
//	var CounterDef = forgewire.Define("counter", func(b *forgewire.Builder[*Counter]) {
//	    b.Int("count", func(c *Counter) *int { return &c.Count })
//	    b.Action("increment", (*Counter).Increment, forgewire.OptionalParam("step", forgewire.KindNumber))
//	})
//
// Only declared fields are serialized or accepted from the client. State
// kinds are a closed set: string, number, bool and arrays of JSON values.
// `forgewire generate` produces Define calls from struct tags and method
// directives.
//
// The lifecycle of an instance is
//
//	constructed -> mounted | hydrated -> acted* -> rendered -> snapshotted
//
// Mount runs once on first render. Later requests hydrate from the snapshot,
// apply model updates, run the requested actions, write back shared fields,
// render and capture a fresh snapshot.
//
// # Actions and Results
//
// Action handlers return a Result. OK re-renders; Invalid records field
// errors that the template renders inline; Fail aborts the request with a
// generic failure notification. Results also carry browser effects:
//
//	return forgewire.OK().
//	    Flash(forgewire.FlashSuccess, "Saved!").
//	    Dispatch("todo:added", map[string]any{"id": id}).
//	    RedirectAfter("/todos", 2*time.Second)
//
// Effects are structured data, never HTML, and the client executes each
// exactly once in emission order.
//
// # Security Model
//
// Snapshots are HMAC-SHA256 signed. Sensitive components additionally
// encrypt the token with AES-GCM so state is opaque to the browser. Any
// mismatch rejects the request before user code runs.
//
// CSRF protection is automatic: action requests require the
// X-Wire-Request: true header, which browsers do not send cross-origin
// without a preflight.
//
// # Shared State
//
// Fields declared with Shared(key) live in a lib/shared Broker. They are
// re-read on every request and written back before rendering when changed.
// The default consistency is last-writer-wins; compare-and-swap can be
// configured on the broker and turns lost updates into 409 conflicts.
//
// # Setup
//
//	reg := forgewire.NewRegistry(secret,
//	    forgewire.WithRenderer(forgewire.Templates{"counter": CounterView}),
//	    forgewire.WithBroker(broker),
//	    forgewire.WithLogger(logger),
//	)
//	reg.Add(CounterDef)
//	mux.Handle(reg.Prefix(), reg.Handler())
//
// Pages embed islands with reg.Island(name, props).
package forgewire
