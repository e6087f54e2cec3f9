// Copyright (c) 2026 Meridian Press Digital
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@meridianpress.com for commercial licensing options.

package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/meridianpress/go-passkey/pkg/passkey"
	"github.com/meridianpress/go-passkey/pkg/ratelimit"
)

// MountChi mounts passkey routes on a chi router without rate limiting.
//
// Example:
//
//	handler := passkeyhttp.NewHandler(svc, issuer)
//	r.Route("/passkey", func(r chi.Router) {
//	    passkeyhttp.MountChi(r, handler)
//	})
func MountChi(r chi.Router, h *Handler) {
	r.Post("/register/begin", h.BeginRegistration)
	r.Post("/register/complete", h.FinishRegistration)
	r.Post("/authenticate/begin", h.BeginAuthentication)
	r.Post("/authenticate/complete", h.FinishAuthentication)
	r.Get("/credentials", h.ListCredentials)
	r.Delete("/credentials/{credentialID}", h.RevokeCredential)
}

// MountChiLimited mounts passkey routes with a per-class, per-IP rate
// limiter as the outermost layer of each route. A throttled request is
// rejected before any handler or store code runs.
func MountChiLimited(r chi.Router, h *Handler, limiter *ratelimit.Limiter) {
	onLimited := func(class string) {
		passkey.RateLimitedTotal.WithLabelValues(class).Inc()
	}

	limit := func(class string, handler http.HandlerFunc) http.Handler {
		return ratelimit.Middleware(limiter, class, onLimited)(handler)
	}

	r.Method(http.MethodPost, "/register/begin",
		limit(ratelimit.ClassRegisterBegin, h.BeginRegistration))
	r.Method(http.MethodPost, "/register/complete",
		limit(ratelimit.ClassRegisterFinish, h.FinishRegistration))
	r.Method(http.MethodPost, "/authenticate/begin",
		limit(ratelimit.ClassAuthBegin, h.BeginAuthentication))
	r.Method(http.MethodPost, "/authenticate/complete",
		limit(ratelimit.ClassAuthFinish, h.FinishAuthentication))
	r.Method(http.MethodGet, "/credentials",
		limit(ratelimit.ClassCredentials, h.ListCredentials))
	r.Method(http.MethodDelete, "/credentials/{credentialID}",
		limit(ratelimit.ClassCredentials, h.RevokeCredential))
}

// RouteEntry represents a single route with its method, path, and handler.
type RouteEntry struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Routes returns a slice of route entries for manual mounting on routers
// not directly supported.
func (h *Handler) Routes() []RouteEntry {
	return []RouteEntry{
		{Method: "POST", Path: "/register/begin", Handler: h.BeginRegistration},
		{Method: "POST", Path: "/register/complete", Handler: h.FinishRegistration},
		{Method: "POST", Path: "/authenticate/begin", Handler: h.BeginAuthentication},
		{Method: "POST", Path: "/authenticate/complete", Handler: h.FinishAuthentication},
		{Method: "GET", Path: "/credentials", Handler: h.ListCredentials},
		{Method: "DELETE", Path: "/credentials/{credentialID}", Handler: h.RevokeCredential},
	}
}
