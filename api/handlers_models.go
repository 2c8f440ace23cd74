package api

import (
	"net/http"

	"retail-analytics/clv"
	"retail-analytics/jobs"
)

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	c, err := s.bindFilters(r)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	id, err := s.svc.TrainAsync(r.Context(), c)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	w.Header().Set("Location", "/api/jobs/"+id)
	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": id,
		"state":  string(jobs.StatePending),
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, ok := s.svc.Job(id)
	if !ok {
		respondWithEngineError(w, &jobs.NotFoundError{ID: id})
		return
	}

	body := map[string]interface{}{"job": status}
	if status.State == jobs.StateCompleted {
		body["result"] = status.Result
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleDiscardJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.svc.DiscardJob(id) {
		respondWithEngineError(w, &jobs.NotFoundError{ID: id})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetPredictions(w http.ResponseWriter, r *http.Request) {
	c, err := s.bindFilters(r)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	n := getIntParam(r, "limit", defaultLimit, nil, nil)

	report, err := s.svc.Predictions(r.Context(), c)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"fingerprint":   report.Fingerprint,
		"trained_at":    report.TrainedAt,
		"from_artifact": report.FromArtifact,
		"mae":           report.MAE,
		"accuracy":      report.Accuracy,
		"customers":     len(report.Customers),
		"matrix":        report.Matrix,
		"top_clv":       clv.TopByCLV(report.Customers, n),
		"high_risk":     clv.HighRisk(report.Customers, n),
	})
}

func (s *Server) handleGetImportance(w http.ResponseWriter, r *http.Request) {
	c, err := s.bindFilters(r)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	report, err := s.svc.Predictions(r.Context(), c)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"regression":  report.RegressionImportance,
		"classifier":  report.ClassifierImportance,
		"attribution": report.Attribution,
	})
}

// handleGetLatestRun reports the newest persisted snapshot of an engine
func (s *Server) handleGetLatestRun(w http.ResponseWriter, r *http.Request) {
	c, err := s.bindFilters(r)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	run, err := s.svc.LatestRun(r.Context(), r.PathValue("engine"), c)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}
