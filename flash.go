package forgewire

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"github.com/pthm/forgewire/lib/protocol"
)

// Flash levels for toast notifications.
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashWarning = "warning"
	FlashInfo    = "info"
)

// Flash represents a one-time notification message.
//
// Flashes travel as structured effects; the client runtime hands each one to
// its flash hook exactly once. Without a hook it appends a toast to the
// #toasts container rendered by ToastContainer and removes it a few seconds
// later.
type Flash struct {
	Level   string // success, error, warning, info
	Message string
}

// Flashes extracts the flash effects in emission order.
func Flashes(effects []protocol.Effect) []Flash {
	var out []Flash
	for _, e := range effects {
		if e.Type == protocol.EffectFlash {
			out = append(out, Flash{Level: e.Level, Message: e.Message})
		}
	}
	return out
}

// ToastContainer returns a templ component for the toast container.
//
// Add this to your layout template (typically near the end of <body>):
//
//	@forgewire.ToastContainer()
func ToastContainer() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div id="toasts" class="toast-container"></div>`)
		return err
	})
}
