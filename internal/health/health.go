// Package health serves the liveness and readiness probes for the diagnostic
// listener.
//
// GET /healthz answers 200 whenever the process can serve HTTP at all.
// GET /readyz runs every registered [Checker] and answers 200 only when all
// of them pass; the JSON body carries a per-check verdict so an operator can
// see which stage of bring-up is still pending.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds one checker invocation during a readiness sweep.
const checkTimeout = 5 * time.Second

// Checker probes one dependency of the pipeline. Check returns nil when the
// dependency is ready and an error naming what is missing otherwise; the
// error text is surfaced verbatim in the /readyz body.
type Checker struct {
	// Name keys this check's verdict in the JSON response.
	Name string

	// Check must respect context cancellation.
	Check func(ctx context.Context) error
}

// Handler answers the probe routes. The checker set is fixed at construction,
// so the value is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New returns a [Handler] that sweeps the given checkers, in order, on every
// readiness request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Register mounts the probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.serveAlive)
	mux.HandleFunc("GET /readyz", h.serveReady)
}

// report is the wire shape of a probe response.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *Handler) serveAlive(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, report{Status: "ok"})
}

func (h *Handler) serveReady(w http.ResponseWriter, r *http.Request) {
	verdicts, ready := h.sweep(r.Context())

	rep := report{Status: "ok", Checks: verdicts}
	code := http.StatusOK
	if !ready {
		rep.Status = "fail"
		code = http.StatusServiceUnavailable
	}
	respond(w, code, rep)
}

// sweep runs every checker under its own timeout and returns the per-check
// verdicts plus the overall outcome.
func (h *Handler) sweep(ctx context.Context) (map[string]string, bool) {
	verdicts := make(map[string]string, len(h.checkers))
	ready := true
	for _, c := range h.checkers {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(cctx)
		cancel()
		if err != nil {
			verdicts[c.Name] = "fail: " + err.Error()
			ready = false
			continue
		}
		verdicts[c.Name] = "ok"
	}
	return verdicts, ready
}

// respond encodes the report before touching the connection so a marshal
// failure can still produce a clean 500.
func respond(w http.ResponseWriter, code int, rep report) {
	body, err := json.Marshal(rep)
	if err != nil {
		http.Error(w, "health: encode report", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	w.Write(append(body, '\n'))
}
