package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docmux/internal/pipeline"
)

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.pool.Snapshot(pipeline.Handle(chi.URLParam(r, "jobID")))
	if !ok {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}
