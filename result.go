package forgewire

import (
	"slices"
	"time"

	"github.com/pthm/forgewire/lib/protocol"
)

// Result is returned from action handlers to report the outcome and queue
// browser effects.
//
// Result is a fluent builder: handlers chain flashes, redirects and
// dispatched events without touching the response. The runtime applies the
// Result after the handler returns, then renders and snapshots the component.
//
//	// Success: re-render with the updated state
//	return forgewire.OK()
//
//	// Success with a toast
//	return forgewire.OK().Flash(forgewire.FlashSuccess, "Saved!")
//
//	// Field errors, rendered inline by the template
//	return forgewire.Invalid(forgewire.Errors{"email": {"Already taken."}})
//
//	// Runtime failure: no HTML, a generic failure effect, logged server side
//	return forgewire.Fail(err)
//
//	// Tell listening islands something changed
//	return forgewire.OK().Dispatch("todo:added", map[string]any{"id": id})
//
// Invalid and Fail are disjoint outcomes. Invalid is not fatal and keeps the
// queued effects; Fail discards the instance and every queued effect.
type Result struct {
	err     error
	errors  Errors
	effects []protocol.Effect
}

// OK creates a success result.
func OK() Result {
	return Result{}
}

// Fail creates a fatal result. The error is logged and the browser receives a
// generic failure notification.
func Fail(err error) Result {
	return Result{err: err}
}

// Invalid creates a non-fatal result carrying field errors.
func Invalid(errs Errors) Result {
	return Result{errors: errs}
}

// Redirect navigates the browser to url once the response is applied.
func (r Result) Redirect(url string) Result {
	return r.RedirectAfter(url, 0)
}

// RedirectAfter navigates the browser to url after delay.
func (r Result) RedirectAfter(url string, delay time.Duration) Result {
	r.effects = append(slices.Clip(r.effects), protocol.Effect{
		Type:    protocol.EffectRedirect,
		URL:     url,
		DelayMs: delay.Milliseconds(),
	})
	return r
}

// Flash adds a toast notification. Levels are typically FlashSuccess,
// FlashError, FlashWarning or FlashInfo.
//
//	return forgewire.OK().
//	    Flash(forgewire.FlashSuccess, "Primary action completed").
//	    Flash(forgewire.FlashInfo, "Notification sent")
func (r Result) Flash(level, message string) Result {
	r.effects = append(slices.Clip(r.effects), protocol.Effect{
		Type:    protocol.EffectFlash,
		Level:   level,
		Message: message,
	})
	return r
}

// Dispatch emits a named browser event. Islands whose component listens for
// event run the mapped action with payload as arguments.
func (r Result) Dispatch(event string, payload map[string]any) Result {
	r.effects = append(slices.Clip(r.effects), protocol.Effect{
		Type:    protocol.EffectDispatch,
		Event:   event,
		Payload: payload,
	})
	return r
}

// Err returns the failure, if any.
func (r Result) Err() error {
	return r.err
}

// Errors returns the field errors, if any.
func (r Result) Errors() Errors {
	return r.errors
}

// Effects returns queued effects in emission order.
func (r Result) Effects() []protocol.Effect {
	return r.effects
}
