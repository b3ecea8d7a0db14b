package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/helixir/pubmed-search-service/internal/domain"
	"github.com/helixir/pubmed-search-service/internal/pubmed"
)

// dateLayout is the accepted format for date filters.
const dateLayout = "2006-01-02"

// maxRequestBody caps request body size (1 MiB); PMID lists are small.
const maxRequestBody = 1 << 20

type searchRequest struct {
	Query    string `json:"query" validate:"required"`
	RetMax   int    `json:"ret_max" validate:"gte=0,lte=10000"`
	RetStart int    `json:"ret_start" validate:"gte=0"`
	Sort     string `json:"sort" validate:"omitempty,oneof=relevance pub_date"`
	DateFrom string `json:"date_from" validate:"omitempty,datetime=2006-01-02"`
	DateTo   string `json:"date_to" validate:"omitempty,datetime=2006-01-02"`
}

type pmidsRequest struct {
	PMIDs []string `json:"pmids" validate:"required,min=1,dive,required"`
}

type summariesResponse struct {
	Results []domain.SummaryItem `json:"results"`
}

type fullTextResponse struct {
	Results []domain.FullTextResult `json:"results"`
}

// handleSearch serves POST /api/v1/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}

	opts := pubmed.SearchOptions{
		RetMax:   req.RetMax,
		RetStart: req.RetStart,
		Sort:     pubmed.SortOrder(req.Sort),
	}

	if req.DateFrom != "" {
		t, err := time.Parse(dateLayout, req.DateFrom)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid date_from: %v", err))
			return
		}
		opts.DateFrom = &t
	}
	if req.DateTo != "" {
		t, err := time.Parse(dateLayout, req.DateTo)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid date_to: %v", err))
			return
		}
		opts.DateTo = &t
	}

	result, err := s.client.Search(r.Context(), req.Query, opts)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleSummaries serves POST /api/v1/summaries.
func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	var req pmidsRequest
	if !s.decode(w, r, &req) {
		return
	}

	items, err := s.client.FetchSummary(r.Context(), req.PMIDs)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summariesResponse{Results: items})
}

// handleFullText serves POST /api/v1/fulltext.
func (s *Server) handleFullText(w http.ResponseWriter, r *http.Request) {
	var req pmidsRequest
	if !s.decode(w, r, &req) {
		return
	}

	results, err := s.client.GetFullText(r.Context(), req.PMIDs)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, fullTextResponse{Results: results})
}

// decode reads, unmarshals, and validates a JSON request body. It writes
// the error response itself and returns false when the request is bad.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}

	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return false
	}

	return true
}
