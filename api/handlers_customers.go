package api

import (
	"net/http"

	"retail-analytics/models"
	"retail-analytics/rfm"
)

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	c, err := s.bindFilters(r)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	ov, err := s.svc.Overview(r.Context(), c)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"overview":  ov,
		"countries": s.svc.Countries(),
	})
}

func (s *Server) handleGetRFM(w http.ResponseWriter, r *http.Request) {
	q, err := s.bindRFM(r)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	var segment *models.Segment
	if q.Segment != "" {
		seg, err := models.ParseSegment(q.Segment)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		segment = &seg
	}

	rows, err := s.svc.RFM(r.Context(), q.serviceQuery())
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	if segment != nil {
		rows = rfm.BySegment(rows, *segment)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"customers": limit(rows, q.Limit),
		"count":     len(rows),
	})
}

func (s *Server) handleGetSegments(w http.ResponseWriter, r *http.Request) {
	q, err := s.bindRFM(r)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	stats, err := s.svc.Segments(r.Context(), q.serviceQuery())
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"segments": stats})
}

func (s *Server) handleGetTopCustomers(w http.ResponseWriter, r *http.Request) {
	q, err := s.bindRFM(r)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	if q.Limit == 0 {
		q.Limit = 10
	}

	top, err := s.svc.TopCustomers(r.Context(), q.serviceQuery(), q.Limit)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"customers": top})
}

func (s *Server) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	q, err := s.bindRFM(r)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	profile, err := s.svc.Customer(r.Context(), q.serviceQuery(), r.PathValue("id"))
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}
