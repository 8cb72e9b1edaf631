package api

import (
	"encoding/json"
	"net/http"

	"github.com/dgallion1/docmux/internal/engine"
)

type categoryView struct {
	Category       engine.Category     `json:"category"`
	TimeoutSeconds float64             `json:"timeout_seconds"`
	Engines        []engine.Descriptor `json:"engines"`
}

func (s *Server) handleEngines(w http.ResponseWriter, r *http.Request) {
	cats := s.table.Categories()
	if v := r.URL.Query().Get("category"); v != "" {
		c, err := engine.ParseCategory(v)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		cats = []engine.Category{c}
	}

	views := make([]categoryView, 0, len(cats))
	for _, c := range cats {
		ds, err := s.table.Descriptors(c)
		if err != nil {
			jsonError(w, err.Error(), http.StatusNotFound)
			return
		}
		views = append(views, categoryView{
			Category:       c,
			TimeoutSeconds: s.controller.Timeout(c).Seconds(),
			Engines:        ds,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"categories": views})
}
