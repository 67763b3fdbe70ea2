package httpapi

import (
	"context"
	"net/http"
	"sort"
	"time"
)

type healthHandler struct {
	checks  map[string]Pinger
	version string
}

func newHealthHandler(checks map[string]Pinger, version string) *healthHandler {
	return &healthHandler{checks: checks, version: version}
}

type healthData struct {
	Status       string          `json:"status"`
	Version      string          `json:"version"`
	Dependencies map[string]bool `json:"dependencies"`
}

// ServeHTTP pings every dependency with a shared 2s budget. Any failure
// reports degraded with 503.
func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	data := healthData{Status: "healthy", Version: h.version, Dependencies: make(map[string]bool, len(names))}
	for _, name := range names {
		ok := h.checks[name].Ping(ctx) == nil
		data.Dependencies[name] = ok
		if !ok {
			data.Status = "degraded"
		}
	}

	status := http.StatusOK
	if data.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	success(w, status, data, getRequestID(r.Context()))
}
