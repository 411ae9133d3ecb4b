package forgewire

import (
	"net/http"

	"github.com/a-h/templ"

	"github.com/pthm/forgewire/lib/protocol"
)

// Render writes a templ component to the HTTP response.
//
// Sets Content-Type to text/html and renders the component using the
// request's context. Use this for pages that embed islands:
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    forgewire.Render(w, r, page(reg.Island("counter", nil)))
//	}
func Render(w http.ResponseWriter, r *http.Request, component templ.Component) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return component.Render(r.Context(), w)
}

// IsWire returns true if the request came from the forgewire client runtime.
func IsWire(r *http.Request) bool {
	return r.Header.Get(protocol.HeaderRequest) == "true"
}
