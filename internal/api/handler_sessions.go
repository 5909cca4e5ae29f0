package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pg-advisor/internal/domain"
)

type sessionPage struct {
	Data  []domain.Session `json:"data"`
	Total int64            `json:"total"`
}

// ListSessions returns recent sessions, newest first. limit and offset
// query parameters page through history.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	sessions, total, err := h.svc.Sessions(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	writeJSON(w, http.StatusOK, sessionPage{Data: sessions, Total: total})
}

// GetSession returns one session with its live state while running.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// CancelSession stops a running session. Concluded or unknown sessions
// yield 404.
func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CancelSession(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type attemptList struct {
	Data []domain.Attempt `json:"data"`
}

// SessionAttempts returns the sandbox-tested attempts of a session in
// round then rank order.
func (h *Handler) SessionAttempts(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.svc.SessionAttempts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if attempts == nil {
		attempts = []domain.Attempt{}
	}
	writeJSON(w, http.StatusOK, attemptList{Data: attempts})
}

type recommendationList struct {
	Data []domain.Recommendation `json:"data"`
}

// SessionRecommendations returns the advisor recommendations a session
// received.
func (h *Handler) SessionRecommendations(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.SessionRecommendations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.Recommendation{}
	}
	writeJSON(w, http.StatusOK, recommendationList{Data: recs})
}
