package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"retail-analytics/database"
)

// handleHealth returns the health status of the API and the loaded dataset
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{"status": "ok"}
	if table := s.svc.Table(); table != nil {
		body["source"] = table.Source
		body["fingerprint"] = table.Fingerprint
		body["rows"] = table.Len()
	} else {
		body["status"] = "loading"
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	table, err := s.svc.Reload(r.Context())
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"source":      table.Source,
		"fingerprint": table.Fingerprint,
		"rows":        table.Len(),
		"dropped":     table.Dropped,
	})
}

// Configuration Handlers (Webhooks Only)

func (s *Server) handleGetWebhooks(w http.ResponseWriter, r *http.Request) {
	if s.webhooks == nil {
		respondWithError(w, http.StatusServiceUnavailable, "webhooks require the snapshot database", nil)
		return
	}

	webhooks, err := s.webhooks.GetWebhooks(r.Context())
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, webhooks)
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhooks == nil {
		respondWithError(w, http.StatusServiceUnavailable, "webhooks require the snapshot database", nil)
		return
	}

	var webhook database.Webhook
	if err := json.NewDecoder(r.Body).Decode(&webhook); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	// Reset ID to let DB assign it
	webhook.ID = 0

	if err := s.webhooks.SaveWebhook(r.Context(), &webhook); err != nil {
		respondWithEngineError(w, err)
		return
	}
	s.refreshWebhooks(r)

	respondJSON(w, http.StatusCreated, webhook)
}

func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhooks == nil {
		respondWithError(w, http.StatusServiceUnavailable, "webhooks require the snapshot database", nil)
		return
	}

	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid ID", nil)
		return
	}

	var webhook database.Webhook
	if err := json.NewDecoder(r.Body).Decode(&webhook); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	existing, err := s.webhooks.GetWebhookByID(r.Context(), id)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	// Ensure ID matches path and delivery stats survive the edit
	webhook.ID = id
	webhook.CreatedAt = existing.CreatedAt
	webhook.TotalSent = existing.TotalSent
	webhook.TotalFailed = existing.TotalFailed
	webhook.LastTriggeredAt = existing.LastTriggeredAt
	webhook.LastSuccessAt = existing.LastSuccessAt
	if err := s.webhooks.SaveWebhook(r.Context(), &webhook); err != nil {
		respondWithEngineError(w, err)
		return
	}
	s.refreshWebhooks(r)

	respondJSON(w, http.StatusOK, webhook)
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhooks == nil {
		respondWithError(w, http.StatusServiceUnavailable, "webhooks require the snapshot database", nil)
		return
	}

	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid ID", nil)
		return
	}

	if err := s.webhooks.DeleteWebhook(r.Context(), id); err != nil {
		respondWithEngineError(w, err)
		return
	}
	s.refreshWebhooks(r)

	w.WriteHeader(http.StatusNoContent)
}

// refreshWebhooks drops the delivery cache so changes apply to the next event
func (s *Server) refreshWebhooks(r *http.Request) {
	if s.refresher != nil {
		s.refresher.RefreshCache(r.Context())
	}
}
