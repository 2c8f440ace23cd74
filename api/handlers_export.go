package api

import (
	"fmt"
	"log"
	"net/http"

	"retail-analytics/export"
)

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	c, err := s.bindFilters(r)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	name := r.PathValue("table")
	table, err := s.svc.Export(r.Context(), name, c)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
	if err := export.WriteCSV(w, table); err != nil {
		log.Printf("API Error: export %s: %v", name, err)
	}
}
