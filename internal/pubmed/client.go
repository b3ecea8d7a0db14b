package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-search-service/internal/domain"
	"github.com/helixir/pubmed-search-service/internal/eutils"
	"github.com/helixir/pubmed-search-service/internal/observability"
)

const (
	// DefaultBaseURL is the base URL for the NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultMaxResults is the default page size for searches.
	DefaultMaxResults = 20

	// MaxResultsLimit is the maximum page size the API allows.
	MaxResultsLimit = 10000

	// DefaultSummaryBatchSize is how many PMIDs one efetch call carries.
	// NCBI recommends at most 200 IDs per GET request.
	DefaultSummaryBatchSize = 200
)

// E-utilities endpoints.
const (
	endpointSearch = "esearch.fcgi"
	endpointFetch  = "efetch.fcgi"
)

// Operation names used for fingerprints and metrics labels.
const (
	opSearch   = "search"
	opSummary  = "fetch_summary"
	opFullText = "get_fulltext"
)

// SortOrder selects the ordering of search results.
type SortOrder string

const (
	// SortRelevance orders by upstream relevance (the default).
	SortRelevance SortOrder = "relevance"

	// SortPubDate orders by publication date, newest first.
	SortPubDate SortOrder = "pub_date"
)

// SearchOptions are the optional filters for Search. Zero values defer to
// upstream defaults (page size DefaultMaxResults, relevance ordering).
type SearchOptions struct {
	// RetMax limits the number of PMIDs returned.
	RetMax int

	// RetStart is the pagination offset.
	RetStart int

	// Sort is the result ordering (relevance or pub_date).
	Sort SortOrder

	// DateFrom restricts results to publication dates on or after it.
	DateFrom *time.Time

	// DateTo restricts results to publication dates on or before it.
	DateTo *time.Time
}

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// Tool identifies this service to NCBI.
	Tool string

	// Contact is the required contact address sent with every request.
	Contact string

	// APIKey is the NCBI API key for higher rate limits.
	// Optional; raises the default budget from 3 to 10 requests/second.
	APIKey string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// MaxRetries is the retry ceiling for transient upstream failures.
	MaxRetries int

	// RetryDelay is the base backoff delay between retries.
	RetryDelay time.Duration

	// RateLimit overrides the requests-per-second budget. Zero derives
	// it from the API key (3 without, 10 with).
	RateLimit float64

	// Burst is the token bucket capacity. Zero follows RateLimit.
	Burst int

	// MaxResults is the default search page size.
	MaxResults int

	// SummaryBatchSize caps PMIDs per efetch call.
	SummaryBatchSize int

	// CacheTTL is the response cache lifetime. Zero with no CacheDir
	// disables caching.
	CacheTTL time.Duration

	// CacheDir enables the persistent cache tier when non-empty.
	CacheDir string
}

// applyDefaults applies default values to the config.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.SummaryBatchSize == 0 {
		c.SummaryBatchSize = DefaultSummaryBatchSize
	}
}

// Client is the PubMed access client. It owns one rate limiter, one
// response cache, and one in-flight registry for its lifetime; every
// public operation runs the cache → in-flight → rate limit → transport →
// parse pipeline. Safe for concurrent use.
type Client struct {
	config    Config
	transport *eutils.Transport
	cache     *eutils.ResponseCache
	inflight  *eutils.InFlightRegistry
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// New creates a PubMed client with the given configuration.
func New(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()

	transport := eutils.NewTransport(eutils.TransportConfig{
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Tool:       cfg.Tool,
		Contact:    cfg.Contact,
		APIKey:     cfg.APIKey,
		RateLimit:  cfg.RateLimit,
		Burst:      cfg.Burst,
	}, logger, metrics)

	return NewWithTransport(cfg, transport, logger, metrics)
}

// NewWithTransport creates a PubMed client with a custom transport.
// This is useful for testing with mock upstreams.
func NewWithTransport(cfg Config, transport *eutils.Transport, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()

	return &Client{
		config:    cfg,
		transport: transport,
		cache: eutils.NewResponseCache(eutils.CacheConfig{
			TTL: cfg.CacheTTL,
			Dir: cfg.CacheDir,
		}, logger, metrics),
		inflight: eutils.NewInFlightRegistry(metrics),
		logger:   logger.With().Str("component", "pubmed-client").Logger(),
		metrics:  metrics,
	}
}

// Transport exposes the underlying transport, mainly so callers and tests
// can observe the rate limiter.
func (c *Client) Transport() *eutils.Transport {
	return c.transport
}

// Search queries PubMed for PMIDs matching the query. The result preserves
// upstream ordering and carries the total match count.
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) (*domain.SearchResult, error) {
	start := time.Now()

	result, err := c.search(ctx, query, opts)
	c.observe(opSearch, start, err)
	return result, err
}

func (c *Client) search(ctx context.Context, query string, opts SearchOptions) (*domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewInvalidRequestError("query", "must not be empty")
	}

	params, err := c.searchParams(query, opts)
	if err != nil {
		return nil, err
	}

	fp := eutils.Fingerprint(opSearch, params)

	if raw, ok := c.cache.Get(fp); ok {
		var cached domain.SearchResult
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
		// Corrupt cached value; fall through and refetch.
	}

	v, shared, err := c.inflight.Do(fp, func() (interface{}, error) {
		raw, err := c.transport.Get(ctx, endpointSearch, params)
		if err != nil {
			return nil, fmt.Errorf("esearch failed: %w", err)
		}

		result, err := parseSearch(raw, query)
		if err != nil {
			return nil, err
		}

		if enc, err := json.Marshal(result); err == nil {
			c.cache.Set(fp, enc)
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}

	logger := observability.WithOperationContext(c.logger, opSearch, fp)
	logger.Debug().
		Bool("shared", shared).
		Int("pmids", len(v.(*domain.SearchResult).PMIDs)).
		Msg("search completed")

	return v.(*domain.SearchResult), nil
}

// searchParams builds and validates the esearch query parameters. The
// parameter set is fully normalized (defaults applied, canonical sort
// handling) before fingerprinting so that logically identical requests
// hash identically.
func (c *Client) searchParams(query string, opts SearchOptions) (url.Values, error) {
	retMax := opts.RetMax
	if retMax <= 0 {
		retMax = c.config.MaxResults
	}
	if retMax > MaxResultsLimit {
		retMax = MaxResultsLimit
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", query)
	params.Set("retmode", "xml")
	params.Set("retmax", strconv.Itoa(retMax))

	if opts.RetStart > 0 {
		params.Set("retstart", strconv.Itoa(opts.RetStart))
	}

	switch opts.Sort {
	case "", SortRelevance:
		// Upstream default ordering.
	case SortPubDate:
		params.Set("sort", "pub_date")
	default:
		return nil, domain.NewInvalidRequestError("sort", fmt.Sprintf("unsupported sort value %q", opts.Sort))
	}

	if opts.DateFrom != nil && opts.DateTo != nil && opts.DateFrom.After(*opts.DateTo) {
		return nil, domain.NewInvalidRequestError("date_from", "must not be after date_to")
	}
	if opts.DateFrom != nil || opts.DateTo != nil {
		params.Set("datetype", "pdat")
		if opts.DateFrom != nil {
			params.Set("mindate", opts.DateFrom.Format("2006/01/02"))
		}
		if opts.DateTo != nil {
			params.Set("maxdate", opts.DateTo.Format("2006/01/02"))
		}
	}

	return params, nil
}

// summaryBatch is the cached outcome of one efetch batch: summaries keyed
// by PMID plus record-scoped failure reasons.
type summaryBatch struct {
	Summaries map[string]*domain.ArticleSummary `json:"summaries"`
	Failures  map[string]string                 `json:"failures,omitempty"`
}

// FetchSummary retrieves citation metadata for the given PMIDs. The result
// always has exactly one entry per requested PMID, in request order,
// regardless of upstream batch or response ordering. A PMID unknown
// upstream yields a not_found entry; a malformed record or a batch whose
// upstream call failed yields failed entries. The call as a whole fails
// only on invalid input.
func (c *Client) FetchSummary(ctx context.Context, pmids []string) ([]domain.SummaryItem, error) {
	start := time.Now()

	items, err := c.fetchSummary(ctx, pmids)
	c.observe(opSummary, start, err)
	return items, err
}

func (c *Client) fetchSummary(ctx context.Context, pmids []string) ([]domain.SummaryItem, error) {
	cleaned, err := cleanPMIDs(pmids)
	if err != nil {
		return nil, err
	}

	merged := summaryBatch{
		Summaries: make(map[string]*domain.ArticleSummary),
		Failures:  make(map[string]string),
	}

	for _, batch := range chunkStrings(uniqueStrings(cleaned), c.config.SummaryBatchSize) {
		result := c.summaryBatchFor(ctx, batch)
		for pmid, s := range result.Summaries {
			merged.Summaries[pmid] = s
		}
		for pmid, reason := range result.Failures {
			merged.Failures[pmid] = reason
		}
	}

	items := make([]domain.SummaryItem, len(cleaned))
	for i, pmid := range cleaned {
		switch {
		case merged.Summaries[pmid] != nil:
			items[i] = domain.SummaryItem{
				PMID:    pmid,
				Status:  domain.SummaryStatusOK,
				Summary: merged.Summaries[pmid],
			}
		case merged.Failures[pmid] != "":
			items[i] = domain.SummaryItem{
				PMID:   pmid,
				Status: domain.SummaryStatusFailed,
				Error:  merged.Failures[pmid],
			}
		default:
			items[i] = domain.SummaryItem{
				PMID:   pmid,
				Status: domain.SummaryStatusNotFound,
			}
		}
	}

	return items, nil
}

// summaryBatchFor runs the pipeline for one efetch batch. Upstream failure
// marks every PMID of the batch failed instead of failing the call.
func (c *Client) summaryBatchFor(ctx context.Context, pmids []string) summaryBatch {
	// Batch membership is order-independent for caching purposes.
	sorted := append([]string(nil), pmids...)
	sort.Strings(sorted)

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(sorted, ","))
	params.Set("retmode", "xml")
	params.Set("rettype", "abstract")

	fp := eutils.Fingerprint(opSummary, params)

	if raw, ok := c.cache.Get(fp); ok {
		var cached summaryBatch
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached
		}
	}

	v, _, err := c.inflight.Do(fp, func() (interface{}, error) {
		raw, err := c.transport.Get(ctx, endpointFetch, params)
		if err != nil {
			return nil, fmt.Errorf("efetch failed: %w", err)
		}

		summaries, failures, err := parseSummaries(raw)
		if err != nil {
			return nil, err
		}

		batch := summaryBatch{Summaries: summaries, Failures: failures}
		if enc, err := json.Marshal(batch); err == nil {
			c.cache.Set(fp, enc)
		}
		return batch, nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Int("batch_size", len(pmids)).Msg("summary batch failed")
		failed := summaryBatch{Failures: make(map[string]string, len(pmids))}
		for _, pmid := range pmids {
			failed.Failures[pmid] = err.Error()
		}
		return failed
	}

	return v.(summaryBatch)
}

// fullTextRecord is the cached outcome of one full-text resolution.
type fullTextRecord struct {
	Available bool   `json:"available"`
	FullText  string `json:"full_text,omitempty"`
	NotFound  bool   `json:"not_found,omitempty"`
}

// GetFullText retrieves open-access full text for the given PMIDs. Each
// PMID is fetched, cached, and parsed independently and concurrently; one
// PMID's failure never fails the batch. The result has exactly one entry
// per requested PMID, in request order. The call as a whole fails only on
// invalid input.
func (c *Client) GetFullText(ctx context.Context, pmids []string) ([]domain.FullTextResult, error) {
	start := time.Now()

	results, err := c.getFullText(ctx, pmids)
	c.observe(opFullText, start, err)
	return results, err
}

func (c *Client) getFullText(ctx context.Context, pmids []string) ([]domain.FullTextResult, error) {
	cleaned, err := cleanPMIDs(pmids)
	if err != nil {
		return nil, err
	}

	results := make([]domain.FullTextResult, len(cleaned))

	var wg sync.WaitGroup
	for i, pmid := range cleaned {
		wg.Add(1)
		go func(i int, pmid string) {
			defer wg.Done()
			results[i] = c.fullTextFor(ctx, pmid)
		}(i, pmid)
	}
	wg.Wait()

	return results, nil
}

// fullTextFor runs the pipeline for a single PMID's full text.
func (c *Client) fullTextFor(ctx context.Context, pmid string) domain.FullTextResult {
	params := url.Values{}
	params.Set("pmid", pmid)

	fp := eutils.Fingerprint(opFullText, params)

	if raw, ok := c.cache.Get(fp); ok {
		var cached fullTextRecord
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached.toResult(pmid)
		}
	}

	v, _, err := c.inflight.Do(fp, func() (interface{}, error) {
		record, err := c.fetchFullText(ctx, pmid)
		if err != nil {
			return nil, err
		}

		if enc, err := json.Marshal(record); err == nil {
			c.cache.Set(fp, enc)
		}
		return record, nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("pmid", pmid).Msg("full text fetch failed")
		return domain.FullTextResult{PMID: pmid, Error: err.Error()}
	}

	return v.(fullTextRecord).toResult(pmid)
}

// fetchFullText resolves a PMID to its PMC deposit and normalizes the
// article body. Absence of a deposit or of a parsable body is a negative
// result, not an error; only transport failures return an error.
func (c *Client) fetchFullText(ctx context.Context, pmid string) (fullTextRecord, error) {
	resolveParams := url.Values{}
	resolveParams.Set("db", "pubmed")
	resolveParams.Set("id", pmid)
	resolveParams.Set("retmode", "xml")
	resolveParams.Set("rettype", "abstract")

	raw, err := c.transport.Get(ctx, endpointFetch, resolveParams)
	if err != nil {
		return fullTextRecord{}, fmt.Errorf("resolve PMCID: %w", err)
	}

	var set PubmedArticleSet
	if err := xml.Unmarshal(raw, &set); err != nil {
		return fullTextRecord{}, domain.NewParseError(pmid, "efetch payload: "+err.Error())
	}
	if len(set.Articles) == 0 {
		return fullTextRecord{NotFound: true}, nil
	}

	pmcid := extractPMCID(set.Articles[0])
	if pmcid == "" {
		return fullTextRecord{}, nil
	}

	fetchParams := url.Values{}
	fetchParams.Set("db", "pmc")
	fetchParams.Set("id", pmcid)
	fetchParams.Set("retmode", "xml")

	raw, err = c.transport.Get(ctx, endpointFetch, fetchParams)
	if err != nil {
		return fullTextRecord{}, fmt.Errorf("fetch PMC article: %w", err)
	}

	text, err := parseFullText(raw)
	if err != nil {
		// Normalization infeasible for this deposit; not an error.
		c.logger.Debug().Err(err).Str("pmid", pmid).Str("pmcid", pmcid).
			Msg("full text not normalizable")
		return fullTextRecord{}, nil
	}
	if text == "" {
		return fullTextRecord{}, nil
	}

	return fullTextRecord{Available: true, FullText: text}, nil
}

func (r fullTextRecord) toResult(pmid string) domain.FullTextResult {
	result := domain.FullTextResult{
		PMID:      pmid,
		Available: r.Available,
		FullText:  r.FullText,
	}
	if r.NotFound {
		result.Error = domain.NewNotFoundError("article", pmid).Error()
	}
	return result
}

// observe records operation metrics.
func (c *Client) observe(op string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}

	c.metrics.OperationsTotal.WithLabelValues(op).Inc()
	c.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.OperationsFailed.WithLabelValues(op, errorReason(err)).Inc()
	}
}

// errorReason maps an error to a low-cardinality metrics label.
func errorReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, domain.ErrParse):
		return "parse"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}

// cleanPMIDs trims and validates the identifier list.
func cleanPMIDs(pmids []string) ([]string, error) {
	if len(pmids) == 0 {
		return nil, domain.NewInvalidRequestError("pmids", "must not be empty")
	}

	cleaned := make([]string, len(pmids))
	for i, pmid := range pmids {
		trimmed := strings.TrimSpace(pmid)
		if trimmed == "" {
			return nil, domain.NewInvalidRequestError("pmids", "contains an empty identifier")
		}
		cleaned[i] = trimmed
	}
	return cleaned, nil
}

// uniqueStrings returns the values in first-seen order without duplicates.
func uniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// chunkStrings splits values into slices of at most size elements.
func chunkStrings(values []string, size int) [][]string {
	if size <= 0 {
		size = DefaultSummaryBatchSize
	}

	var chunks [][]string
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}
