package api

import "net/http"

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Target string `json:"target"`
}

// Healthz pings the history store and the default target. Either
// failing degrades the response to 503 with the failing component's
// error in the body.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Store: "ok", Target: "ok"}
	status := http.StatusOK

	if h.storePing != nil {
		if err := h.storePing(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Store = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if err := h.svc.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Target = err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, resp)
}
