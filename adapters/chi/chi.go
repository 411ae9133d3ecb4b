// Package forgewirechi mounts a forgewire registry on a chi router.
//
//	r := chi.NewRouter()
//	reg := forgewire.NewRegistry(secret)
//	forgewirechi.Mount(r, reg)
//
// Under a sub-router, create the registry with the full prefix so island
// routes resolve:
//
//	reg := forgewire.NewRegistry(secret, forgewire.WithPrefix("/app/_wire/"))
//	r.Route("/app", func(r chi.Router) { forgewirechi.MountAt(r, "/_wire/", reg) })
package forgewirechi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pthm/forgewire"
)

// Mount registers the action endpoint at the registry's prefix.
func Mount(r chi.Router, reg *forgewire.Registry) {
	MountAt(r, reg.Prefix(), reg)
}

// MountAt registers the action endpoint at path, relative to r.
func MountAt(r chi.Router, path string, reg *forgewire.Registry) {
	path = "/" + strings.Trim(path, "/") + "/"
	r.HandleFunc(path+"{component}", Handler(reg))
}

// Handler returns a handler that reads the component from the {component}
// URL parameter.
func Handler(reg *forgewire.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reg.ServeComponent(w, r, chi.URLParam(r, "component"))
	}
}
