// Package protocol defines the wire format exchanged between the forgewire
// action endpoint and the client runtime, plus the markup attribute names
// both sides agree on.
//
// The server never embeds effects in HTML; everything out-of-band travels as
// structured data in Response.Effects so the client executes each effect
// exactly once, in emission order.
package protocol

import "encoding/json"

// HeaderRequest must be "true" on every action request. Browsers do not send
// custom headers cross-origin without a preflight, so its presence doubles as
// CSRF protection.
const HeaderRequest = "X-Wire-Request"

// RefreshAction re-renders a component without running any user code.
// Polling and shared-state notifications use it.
const RefreshAction = "$refresh"

// Call is a single action invocation.
type Call struct {
	Action string                     `json:"action"`
	Args   map[string]json.RawMessage `json:"args,omitempty"`
}

// Request is the body of POST {prefix}{component}.
//
// Island echoes the island root id so re-rendered markup keeps it.
// Action/Args is the single-call shorthand. Calls carries a batch that the
// client coalesced while a previous request was in flight; the server runs the
// shorthand first, then Calls, in order.
type Request struct {
	Component string                     `json:"component,omitempty"`
	Island    string                     `json:"island,omitempty"`
	Snapshot  string                     `json:"snapshot"`
	Action    string                     `json:"action,omitempty"`
	Args      map[string]json.RawMessage `json:"args,omitempty"`
	Calls     []Call                     `json:"calls,omitempty"`
	Updates   map[string]json.RawMessage `json:"updates,omitempty"`
	Targets   []string                   `json:"targets,omitempty"`
}

// AllCalls returns the shorthand call (if any) followed by the batch.
func (r Request) AllCalls() []Call {
	calls := make([]Call, 0, len(r.Calls)+1)
	if r.Action != "" {
		calls = append(calls, Call{Action: r.Action, Args: r.Args})
	}
	return append(calls, r.Calls...)
}

// Response is returned with a 2xx status. Exactly one of HTML or Fragments is
// set.
type Response struct {
	Snapshot  string              `json:"snapshot"`
	HTML      string              `json:"html,omitempty"`
	Fragments map[string]string   `json:"fragments,omitempty"`
	Effects   []Effect            `json:"effects,omitempty"`
	Errors    map[string][]string `json:"errors,omitempty"`
}

// EffectType names an out-of-band browser instruction.
type EffectType string

const (
	EffectRedirect EffectType = "redirect"
	EffectFlash    EffectType = "flash"
	EffectDispatch EffectType = "dispatch"
	EffectFailure  EffectType = "failure"
)

// Effect is an out-of-band instruction accumulated while an action ran.
type Effect struct {
	Type    EffectType     `json:"type"`
	URL     string         `json:"url,omitempty"`
	DelayMs int64          `json:"delayMs,omitempty"`
	Level   string         `json:"level,omitempty"`
	Message string         `json:"message,omitempty"`
	Event   string         `json:"event,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Error codes carried in ErrorBody.Code.
const (
	CodeBadRequest       = "bad_request"
	CodeForbidden        = "forbidden"
	CodeTampered         = "tampered_snapshot"
	CodeUnknownComponent = "unknown_component"
	CodeUnknownAction    = "unknown_action"
	CodeUnknownField     = "unknown_field"
	CodeCoercion         = "argument_coercion"
	CodeActionFailed     = "action_failed"
	CodeConflict         = "shared_conflict"
	CodeInternal         = "internal"
)

// ErrorBody describes a fatal request failure.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is returned with a non-2xx status.
type ErrorResponse struct {
	Error   ErrorBody `json:"error"`
	Effects []Effect  `json:"effects,omitempty"`
}

// WatchRequest is sent by a client over the shared-state websocket to
// (un)subscribe from shared keys.
type WatchRequest struct {
	Watch   []string `json:"watch,omitempty"`
	Unwatch []string `json:"unwatch,omitempty"`
}

// WatchNotice is pushed to subscribers after a shared key was written.
type WatchNotice struct {
	Key string `json:"key"`
}
