package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleEngineStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		jsonError(w, "engine stats unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"engines":     s.stats.Snapshot(),
		"queue_depth": s.pool.QueueDepth(),
		"workers":     s.pool.Workers(),
	})
}
