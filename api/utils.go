package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"retail-analytics/database"
	"retail-analytics/jobs"
	"retail-analytics/models"
	"retail-analytics/service"
	"retail-analytics/transactions"
)

const (
	dateLayout   = "2006-01-02"
	defaultLimit = 50
)

// filterQuery holds the filters every analytics route accepts
type filterQuery struct {
	Countries []string `validate:"dive,required,max=64"`
	From      string   `validate:"omitempty,datetime=2006-01-02"`
	To        string   `validate:"omitempty,datetime=2006-01-02"`
}

type rfmQuery struct {
	filterQuery
	ReferenceDate string `validate:"omitempty,datetime=2006-01-02"`
	Segment       string `validate:"omitempty,max=64"`
	Limit         int    `validate:"gte=0,lte=5000"`
}

type basketQuery struct {
	filterQuery
	MinSupport     float64 `validate:"gte=0,lte=1"`
	MinConfidence  float64 `validate:"gte=0,lte=1"`
	MinLift        float64 `validate:"gte=0"`
	MaxBasketItems int     `validate:"gte=0"`
	Item           string  `validate:"omitempty,max=256"`
	Limit          int     `validate:"gte=1,lte=5000"`
}

type forecastQuery struct {
	filterQuery
	Periods int `validate:"gte=0,lte=120"`
}

// parseFilters reads country, from and to. country may repeat or be comma separated.
func parseFilters(r *http.Request) filterQuery {
	q := r.URL.Query()
	var countries []string
	for _, v := range q["country"] {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				countries = append(countries, c)
			}
		}
	}
	return filterQuery{
		Countries: countries,
		From:      q.Get("from"),
		To:        q.Get("to"),
	}
}

// criteria converts validated filters; To covers the whole end day
func (f filterQuery) criteria() transactions.Criteria {
	c := transactions.Criteria{Countries: f.Countries}
	if f.From != "" {
		c.From, _ = time.Parse(dateLayout, f.From)
	}
	if f.To != "" {
		to, _ := time.Parse(dateLayout, f.To)
		c.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	return c
}

func (q rfmQuery) serviceQuery() service.RFMQuery {
	out := service.RFMQuery{Criteria: q.criteria()}
	if q.ReferenceDate != "" {
		ref, _ := time.Parse(dateLayout, q.ReferenceDate)
		out.ReferenceDate = &ref
	}
	return out
}

// bindRFM parses and validates the RFM query string
func (s *Server) bindRFM(r *http.Request) (rfmQuery, error) {
	q := rfmQuery{
		filterQuery:   parseFilters(r),
		ReferenceDate: r.URL.Query().Get("reference_date"),
		Segment:       r.URL.Query().Get("segment"),
		Limit:         getIntParam(r, "limit", 0, nil, nil),
	}
	return q, s.validate.Struct(q)
}

// bindFilters parses and validates only the common filters
func (s *Server) bindFilters(r *http.Request) (transactions.Criteria, error) {
	f := parseFilters(r)
	if err := s.validate.Struct(f); err != nil {
		return transactions.Criteria{}, err
	}
	return f.criteria(), nil
}

// getIntParam retrieves an integer query parameter with default value and optional range validation
func getIntParam(r *http.Request, key string, defaultVal int, minVal, maxVal *int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}

	if minVal != nil && val < *minVal {
		return defaultVal
	}
	if maxVal != nil && val > *maxVal {
		return defaultVal
	}

	return val
}

// getFloatParam retrieves a float query parameter with default value
func getFloatParam(r *http.Request, key string, defaultVal float64) float64 {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal
	}

	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return defaultVal
	}

	return val
}

// respondJSON writes v as JSON with the given status
func respondJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API Error: encode response: %v", err)
	}
}

// respondWithError logs the error and sends a JSON error response
// Use this to avoid exposing internal errors while still logging them
func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	if err != nil {
		log.Printf("API Error [%d]: %s - %v", code, message, err)
	} else {
		log.Printf("API Error [%d]: %s", code, message)
	}
	respondJSON(w, code, map[string]string{"error": message})
}

// respondWithEngineError maps the error taxonomy onto HTTP status codes
func respondWithEngineError(w http.ResponseWriter, err error) {
	var (
		paramErr     *models.InvalidParameterError
		dataErr      *models.InsufficientDataError
		validateErrs validator.ValidationErrors
		jobErr       *jobs.NotFoundError
	)

	switch {
	case errors.As(err, &paramErr), errors.As(err, &validateErrs), database.IsValidation(err):
		respondWithError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.As(err, &dataErr):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error(), nil)
	case database.IsNotFound(err), errors.As(err, &jobErr):
		respondWithError(w, http.StatusNotFound, err.Error(), nil)
	default:
		respondWithError(w, http.StatusInternalServerError, "internal error", err)
	}
}

// limit truncates a slice to n items when n > 0
func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
