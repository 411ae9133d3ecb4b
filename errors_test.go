package forgewire

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/pthm/forgewire/lib/protocol"
	"github.com/pthm/forgewire/lib/shared"
)

func TestSentinelErrors(t *testing.T) {
	// Verify sentinel errors are distinct
	errs := []error{
		ErrTamperedSnapshot,
		ErrUnknownComponent,
		ErrUnknownAction,
		ErrUnknownField,
		ErrArgumentCoercion,
		ErrActionFailed,
		ErrForbidden,
		ErrBadRequest,
	}

	for i, err1 := range errs {
		for j, err2 := range errs {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("Sentinel errors should be distinct: %v and %v", err1, err2)
			}
		}
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"nil", nil, http.StatusOK, ""},
		{"forbidden", ErrForbidden, http.StatusForbidden, protocol.CodeForbidden},
		{"bad request", fmt.Errorf("%w: eof", ErrBadRequest), http.StatusBadRequest, protocol.CodeBadRequest},
		{"tampered", fmt.Errorf("%w: mismatch", ErrTamperedSnapshot), http.StatusBadRequest, protocol.CodeTampered},
		{"unknown component", ErrUnknownComponent, http.StatusNotFound, protocol.CodeUnknownComponent},
		{"unknown action", fmt.Errorf("x: %w", ErrUnknownAction), http.StatusNotFound, protocol.CodeUnknownAction},
		{"unknown field", ErrUnknownField, http.StatusBadRequest, protocol.CodeUnknownField},
		{"coercion", &CoercionError{Name: "n", Kind: KindNumber, Reason: "nope"}, http.StatusBadRequest, protocol.CodeCoercion},
		{"action", &ActionError{Component: "c", Action: "a", Err: errors.New("x")}, http.StatusInternalServerError, protocol.CodeActionFailed},
		{"conflict", fmt.Errorf("write: %w", shared.ErrConflict), http.StatusConflict, protocol.CodeConflict},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError, protocol.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusCode(tt.err); got != tt.want {
				t.Errorf("StatusCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
			if tt.err == nil {
				return
			}
			if got := errorCode(tt.err); got != tt.code {
				t.Errorf("errorCode(%v) = %q, want %q", tt.err, got, tt.code)
			}
		})
	}
}

func TestActionErrorUnwrap(t *testing.T) {
	cause := errors.New("database unavailable")
	err := fmt.Errorf("dispatch: %w", &ActionError{Component: "todo", Action: "save", Err: cause})

	if !IsActionError(err) {
		t.Error("IsActionError() = false, want true")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if got, want := publicMessage(err), "Something went wrong. Please try again."; got != want {
		t.Errorf("publicMessage() = %q, want %q", got, want)
	}
}

func TestCoercionErrorMessage(t *testing.T) {
	tests := []struct {
		err  *CoercionError
		want string
	}{
		{&CoercionError{Name: "step", Kind: KindNumber, Reason: "not a number"}, `forgewire: cannot coerce "step" to number: not a number`},
		{&CoercionError{Name: "by", Reason: "undeclared argument"}, `forgewire: argument "by": undeclared argument`},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
