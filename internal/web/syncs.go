package web

import (
	"net/http"

	"staycal/internal/calsync"
)

func (s *Server) handleListSyncs(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Syncs.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAddSync(w http.ResponseWriter, r *http.Request) {
	var req calsync.AddRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entry, err := s.deps.Syncs.Add(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleRemoveSync(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Syncs.Remove(r.Context(), r.PathValue("id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSyncNow(w http.ResponseWriter, r *http.Request) {
	entry, err := s.deps.Syncs.SyncNow(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
