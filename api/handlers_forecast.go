package api

import (
	"net/http"
)

func (s *Server) handleGetForecast(w http.ResponseWriter, r *http.Request) {
	q := forecastQuery{
		filterQuery: parseFilters(r),
		Periods:     getIntParam(r, "periods", 0, nil, nil),
	}
	if err := s.validate.Struct(q); err != nil {
		respondWithEngineError(w, err)
		return
	}

	result, err := s.svc.Forecast(r.Context(), q.criteria(), q.Periods)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
