package api

import "net/http"

type validateRequest struct {
	SQL string `json:"sql"`
}

type validateResponse struct {
	Valid    bool     `json:"valid"`
	Reason   string   `json:"reason,omitempty"`
	Type     string   `json:"type"`
	Tables   []string `json:"tables,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Validate reports whether the posted query would be accepted for
// optimization. Rejections are part of the answer, not errors: a
// non-SELECT still gets a 200 with valid=false and the reason.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	check, err := h.svc.Validate(req.SQL)
	if check == nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Valid:    check.Valid,
		Reason:   check.Reason,
		Type:     check.Type.String(),
		Tables:   check.Tables,
		Warnings: check.Warnings,
	})
}

type analyzeRequest struct {
	SQL        string `json:"sql"`
	Connection string `json:"connection,omitempty"`
}

// Analyze runs EXPLAIN ANALYZE against the target and returns the
// baseline report.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	report, err := h.svc.Analyze(r.Context(), req.SQL, req.Connection)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type optimizeRequest struct {
	SQL        string `json:"sql"`
	Connection string `json:"connection,omitempty"`
	Wait       bool   `json:"wait,omitempty"`
}

type optimizeAccepted struct {
	SessionID string `json:"session_id"`
}

// Optimize starts an optimization session. With wait=true the request
// blocks until the session concludes and returns the full conclusion;
// otherwise the session runs in the background and the caller polls
// /v1/sessions/{id} with the returned id.
func (h *Handler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	if req.Wait {
		conclusion, err := h.svc.Optimize(r.Context(), req.SQL, req.Connection)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conclusion)
		return
	}

	id, err := h.svc.OptimizeAsync(r.Context(), req.SQL, req.Connection)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, optimizeAccepted{SessionID: id})
}
