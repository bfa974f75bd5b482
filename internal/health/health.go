// Package health serves the liveness and readiness probes on Vidforge's
// diagnostics listener.
//
//   - /healthz — liveness; a process that answers is alive. Reports the
//     server version.
//   - /readyz  — readiness; 200 only while every registered [Checker]
//     passes (history database reachable, poll session capacity left).
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil while the dependency
// can take work and an error describing the problem otherwise. It must
// respect context cancellation.
type Checker struct {
	// Name keys the check's entry in the /readyz response (e.g. "history",
	// "poll_sessions").
	Name string

	Check func(ctx context.Context) error
}

// checkState is one check's entry in the /readyz response.
type checkState struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// report is the response body for both probe endpoints.
type report struct {
	Status  string                `json:"status"`
	Version string                `json:"version,omitempty"`
	Checks  map[string]checkState `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker list is fixed at
// construction, so Handler is safe for concurrent use.
type Handler struct {
	version  string
	checkers []Checker
}

// New creates a [Handler] reporting version from /healthz and evaluating the
// given checkers, in order, on each /readyz request.
func New(version string, checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{version: version, checkers: c}
}

// Healthz answers the liveness probe with 200 and the server version.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok", Version: h.version})
}

// Readyz answers the readiness probe. Every checker runs with a
// [checkTimeout] deadline derived from the request context; one failure
// makes the whole response a 503 so the host stops routing generation work
// here.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := report{
		Status: "ok",
		Checks: make(map[string]checkState, len(h.checkers)),
	}

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			res.Checks[c.Name] = checkState{Status: "fail", Error: err.Error()}
			res.Status = "fail"
			slog.Warn("readiness check failed", "check", c.Name, "error", err)
			continue
		}
		res.Checks[c.Name] = checkState{Status: "ok"}
	}

	status := http.StatusOK
	if res.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
