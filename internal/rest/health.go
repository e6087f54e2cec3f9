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

package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthHandlers serves liveness and readiness probes. Readiness checks
// are registered per backing dependency (Redis, SQLite) so an instance
// stops receiving traffic when its stores are unreachable.
type HealthHandlers struct {
	mu     sync.RWMutex
	checks map[string]func(context.Context) error
}

// NewHealthHandlers creates an empty health handler set.
func NewHealthHandlers() *HealthHandlers {
	return &HealthHandlers{
		checks: make(map[string]func(context.Context) error),
	}
}

// SetCheck registers or replaces a named readiness check.
func (h *HealthHandlers) SetCheck(name string, check func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Liveness handles GET /healthz. It reports only that the process is up.
func (h *HealthHandlers) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness handles GET /healthz/ready. It runs every registered check
// with a short deadline and reports per-dependency status.
func (h *HealthHandlers) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	h.mu.RLock()
	checks := make(map[string]func(context.Context) error, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	h.mu.RUnlock()

	status := http.StatusOK
	deps := make(map[string]string, len(checks))
	for name, check := range checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = err.Error()
		} else {
			deps[name] = "ok"
		}
	}

	body := map[string]any{"status": "ok", "dependencies": deps}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	writeHealth(w, status, body)
}

func writeHealth(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
