package forgewire

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pthm/forgewire/lib/protocol"
	"github.com/pthm/forgewire/lib/shared"
)

// Sentinel errors for dispatch failures. All of them are fatal for the request:
// the instance that raised them is discarded and never snapshotted.
var (
	ErrTamperedSnapshot = errors.New("forgewire: snapshot checksum mismatch")
	ErrUnknownComponent = errors.New("forgewire: unknown component")
	ErrUnknownAction    = errors.New("forgewire: unknown action")
	ErrUnknownField     = errors.New("forgewire: unknown field")
	ErrArgumentCoercion = errors.New("forgewire: argument coercion failed")
	ErrActionFailed     = errors.New("forgewire: action failed")
	ErrForbidden        = errors.New("forgewire: wire request header required")
	ErrBadRequest       = errors.New("forgewire: malformed request")
)

// CoercionError reports a client value that could not be converted to the
// declared kind of a field or action parameter.
type CoercionError struct {
	Name   string
	Kind   Kind
	Reason string
}

func (e *CoercionError) Error() string {
	if e.Kind == 0 {
		return fmt.Sprintf("forgewire: argument %q: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("forgewire: cannot coerce %q to %s: %s", e.Name, e.Kind, e.Reason)
}

func (e *CoercionError) Unwrap() error { return ErrArgumentCoercion }

// ActionError wraps a failure raised inside user action code, either a
// returned Fail result or a recovered panic.
type ActionError struct {
	Component string
	Action    string
	Err       error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("forgewire: %s.%s: %v", e.Component, e.Action, e.Err)
}

func (e *ActionError) Unwrap() []error { return []error{ErrActionFailed, e.Err} }

// IsTampered checks if err is a snapshot integrity failure.
func IsTampered(err error) bool {
	return errors.Is(err, ErrTamperedSnapshot)
}

// IsNotFound checks if err names a component or action that does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownComponent) || errors.Is(err, ErrUnknownAction)
}

// IsClientError checks if err was caused by a malformed request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrBadRequest) || errors.Is(err, ErrArgumentCoercion) ||
		errors.Is(err, ErrUnknownField) || IsTampered(err)
}

// IsActionError checks if err came from user action code.
func IsActionError(err error) bool {
	return errors.Is(err, ErrActionFailed)
}

// StatusCode maps a dispatch error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case IsNotFound(err):
		return http.StatusNotFound
	case IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorCode maps a dispatch error to its wire code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrForbidden):
		return protocol.CodeForbidden
	case errors.Is(err, ErrBadRequest):
		return protocol.CodeBadRequest
	case IsTampered(err):
		return protocol.CodeTampered
	case errors.Is(err, ErrUnknownComponent):
		return protocol.CodeUnknownComponent
	case errors.Is(err, ErrUnknownAction):
		return protocol.CodeUnknownAction
	case errors.Is(err, ErrUnknownField):
		return protocol.CodeUnknownField
	case errors.Is(err, ErrArgumentCoercion):
		return protocol.CodeCoercion
	case IsActionError(err):
		return protocol.CodeActionFailed
	case errors.Is(err, shared.ErrConflict):
		return protocol.CodeConflict
	default:
		return protocol.CodeInternal
	}
}

// publicMessage is the message sent to the browser. Action failures and
// internal errors are reported generically; the detail goes to the log.
func publicMessage(err error) string {
	switch errorCode(err) {
	case protocol.CodeActionFailed:
		return "Something went wrong. Please try again."
	case protocol.CodeInternal:
		return "Internal error"
	case protocol.CodeConflict:
		return "The value was changed by someone else. Please retry."
	default:
		return err.Error()
	}
}
