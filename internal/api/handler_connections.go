package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pg-advisor/internal/domain"
	"pg-advisor/internal/service"
)

type connectionList struct {
	Data []domain.Connection `json:"data"`
}

// ListConnections returns the stored targets, passwords never included.
func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := h.conns.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if conns == nil {
		conns = []domain.Connection{}
	}
	writeJSON(w, http.StatusOK, connectionList{Data: conns})
}

// CreateConnection stores a named target. The password is sealed at
// rest and write-only: no read path ever echoes it.
func (h *Handler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	var req service.CreateConnectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := h.conns.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

// GetConnection returns one stored target.
func (h *Handler) GetConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.conns.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

// DeleteConnection removes a stored target and drops any pooled
// handles to it.
func (h *Handler) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.conns.Delete(r.Context(), name); err != nil {
		h.writeError(w, err)
		return
	}
	h.svc.Invalidate(name)
	w.WriteHeader(http.StatusNoContent)
}

type testResult struct {
	Status string `json:"status"`
}

// TestConnection dials the stored target and reports reachability.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.conns.Test(r.Context(), chi.URLParam(r, "name")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, testResult{Status: "ok"})
}
