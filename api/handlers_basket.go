package api

import (
	"net/http"

	"retail-analytics/basket"
	"retail-analytics/models"
)

// bindBasket reads thresholds over the configured defaults
func (s *Server) bindBasket(r *http.Request) (basketQuery, error) {
	q := basketQuery{
		filterQuery:    parseFilters(r),
		MinSupport:     getFloatParam(r, "min_support", s.basket.MinSupport),
		MinConfidence:  getFloatParam(r, "min_confidence", s.basket.MinConfidence),
		MinLift:        getFloatParam(r, "min_lift", s.basket.MinLift),
		MaxBasketItems: getIntParam(r, "max_basket_items", s.basket.MaxBasketItems, nil, nil),
		Item:           r.URL.Query().Get("item"),
		Limit:          getIntParam(r, "limit", defaultLimit, nil, nil),
	}
	return q, s.validate.Struct(q)
}

func (q basketQuery) params() basket.Params {
	return basket.Params{
		MinSupport:     q.MinSupport,
		MinConfidence:  q.MinConfidence,
		MinLift:        q.MinLift,
		MaxBasketItems: q.MaxBasketItems,
	}
}

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	q, err := s.bindBasket(r)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	result, err := s.svc.Rules(r.Context(), q.criteria(), q.params())
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	rules := result.Rules
	if q.Item != "" {
		rules = rulesFor(rules, q.Item)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"rules":   limit(rules, q.Limit),
		"count":   len(rules),
		"baskets": result.Baskets,
		"stats":   result.Stats,
		"bundles": basket.TopBundles(result.Rules, 10),
	})
}

func (s *Server) handleGetItems(w http.ResponseWriter, r *http.Request) {
	q, err := s.bindBasket(r)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	result, err := s.svc.Rules(r.Context(), q.criteria(), q.params())
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":   limit(result.Items, q.Limit),
		"baskets": result.Baskets,
	})
}

func (s *Server) handleGetRecommendations(w http.ResponseWriter, r *http.Request) {
	q, err := s.bindBasket(r)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	if q.Item == "" {
		respondWithError(w, http.StatusBadRequest, "item is required", nil)
		return
	}

	recs, err := s.svc.Recommend(r.Context(), q.criteria(), q.params(), q.Item, q.Limit)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"item":            q.Item,
		"recommendations": recs,
	})
}

// rulesFor keeps the rules that involve item on either side
func rulesFor(rules []models.AssociationRule, item string) []models.AssociationRule {
	out := make([]models.AssociationRule, 0)
	for _, r := range rules {
		if r.ItemA == item || r.ItemB == item {
			out = append(out, r)
		}
	}
	return out
}
