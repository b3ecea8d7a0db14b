package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/pubmed-search-service/internal/domain"
	"github.com/helixir/pubmed-search-service/internal/observability"
	"github.com/helixir/pubmed-search-service/internal/pubmed"
)

const esearchResponseXML = `<?xml version="1.0" encoding="UTF-8" ?>
<eSearchResult>
	<Count>2</Count>
	<RetMax>2</RetMax>
	<RetStart>0</RetStart>
	<IdList>
		<Id>12345678</Id>
		<Id>87654321</Id>
	</IdList>
</eSearchResult>`

const efetchResponseXML = `<?xml version="1.0" encoding="UTF-8" ?>
<PubmedArticleSet>
	<PubmedArticle>
		<MedlineCitation>
			<PMID Version="1">12345678</PMID>
			<Article>
				<Journal>
					<Title>Journal of Testing</Title>
					<JournalIssue><PubDate><Year>2023</Year></PubDate></JournalIssue>
				</Journal>
				<ArticleTitle>A Test Article</ArticleTitle>
			</Article>
		</MedlineCitation>
		<PubmedData>
			<ArticleIdList>
				<ArticleId IdType="pubmed">12345678</ArticleId>
			</ArticleIdList>
		</PubmedData>
	</PubmedArticle>
</PubmedArticleSet>`

// newTestServer wires a Server to a fake E-utilities upstream.
func newTestServer(t *testing.T, upstream http.HandlerFunc) *Server {
	t.Helper()

	fake := httptest.NewServer(upstream)
	t.Cleanup(fake.Close)

	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	client := pubmed.New(pubmed.Config{
		BaseURL:    fake.URL,
		Tool:       "pubmed-search-service",
		Contact:    "dev@example.org",
		Timeout:    5 * time.Second,
		MaxRetries: 0,
		RetryDelay: 5 * time.Millisecond,
		RateLimit:  1000,
		Burst:      1000,
		CacheTTL:   time.Minute,
	}, zerolog.Nop(), metrics)

	return NewServer(Config{Address: "127.0.0.1:0"}, client, zerolog.Nop())
}

func eutilsUpstream(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.URL.Path, "esearch.fcgi") {
		w.Write([]byte(esearchResponseXML))
		return
	}
	w.Write([]byte(efetchResponseXML))
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, eutilsUpstream)

	rec := doJSON(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_CorrelationID(t *testing.T) {
	s := newTestServer(t, eutilsUpstream)

	t.Run("generates one when absent", func(t *testing.T) {
		rec := doJSON(t, s, http.MethodGet, "/healthz", "")
		assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
	})

	t.Run("echoes a caller-supplied one", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("X-Correlation-ID", "caller-id-42")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Equal(t, "caller-id-42", rec.Header().Get("X-Correlation-ID"))
	})
}

func TestServer_HandleSearch(t *testing.T) {
	t.Run("returns search results", func(t *testing.T) {
		s := newTestServer(t, eutilsUpstream)

		rec := doJSON(t, s, http.MethodPost, "/api/v1/search", `{"query":"crispr"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var result domain.SearchResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, "crispr", result.Query)
		assert.Equal(t, []string{"12345678", "87654321"}, result.PMIDs)
	})

	t.Run("rejects a missing query", func(t *testing.T) {
		s := newTestServer(t, eutilsUpstream)

		rec := doJSON(t, s, http.MethodPost, "/api/v1/search", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "error")
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		s := newTestServer(t, eutilsUpstream)

		rec := doJSON(t, s, http.MethodPost, "/api/v1/search", `{"query":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		s := newTestServer(t, eutilsUpstream)

		rec := doJSON(t, s, http.MethodPost, "/api/v1/search", `{"query":"crispr","surprise":true}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects an unsupported sort value", func(t *testing.T) {
		s := newTestServer(t, eutilsUpstream)

		rec := doJSON(t, s, http.MethodPost, "/api/v1/search", `{"query":"crispr","sort":"citations"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a malformed date filter", func(t *testing.T) {
		s := newTestServer(t, eutilsUpstream)

		rec := doJSON(t, s, http.MethodPost, "/api/v1/search", `{"query":"crispr","date_from":"01/02/2023"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("maps upstream exhaustion to 502", func(t *testing.T) {
		s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		rec := doJSON(t, s, http.MethodPost, "/api/v1/search", `{"query":"crispr"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestServer_HandleSummaries(t *testing.T) {
	t.Run("returns one entry per PMID", func(t *testing.T) {
		s := newTestServer(t, eutilsUpstream)

		rec := doJSON(t, s, http.MethodPost, "/api/v1/summaries", `{"pmids":["12345678","99999999"]}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp summariesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 2)
		assert.Equal(t, domain.SummaryStatusOK, resp.Results[0].Status)
		assert.Equal(t, domain.SummaryStatusNotFound, resp.Results[1].Status)
	})

	t.Run("rejects an empty PMID list", func(t *testing.T) {
		s := newTestServer(t, eutilsUpstream)

		rec := doJSON(t, s, http.MethodPost, "/api/v1/summaries", `{"pmids":[]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("upstream failure yields failed entries, not an error status", func(t *testing.T) {
		s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		rec := doJSON(t, s, http.MethodPost, "/api/v1/summaries", `{"pmids":["12345678"]}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp summariesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 1)
		assert.Equal(t, domain.SummaryStatusFailed, resp.Results[0].Status)
	})
}

func TestServer_HandleFullText(t *testing.T) {
	t.Run("returns one entry per PMID", func(t *testing.T) {
		s := newTestServer(t, eutilsUpstream)

		rec := doJSON(t, s, http.MethodPost, "/api/v1/fulltext", `{"pmids":["12345678"]}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp fullTextResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "12345678", resp.Results[0].PMID)
		// Fixture article carries no PMC deposit.
		assert.False(t, resp.Results[0].Available)
	})

	t.Run("rejects a blank identifier", func(t *testing.T) {
		s := newTestServer(t, eutilsUpstream)

		rec := doJSON(t, s, http.MethodPost, "/api/v1/fulltext", `{"pmids":[""]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWriteDomainError(t *testing.T) {
	s := newTestServer(t, eutilsUpstream)

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid request", domain.NewInvalidRequestError("query", "must not be empty"), http.StatusBadRequest},
		{"not found", domain.NewNotFoundError("article", "123"), http.StatusNotFound},
		{"upstream unavailable", domain.NewTransientUpstreamError("esearch.fcgi", 3, 503, nil), http.StatusBadGateway},
		{"unclassified", assert.AnError, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			rec := httptest.NewRecorder()
			s.writeDomainError(rec, req, tc.err)

			assert.Equal(t, tc.status, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.err.Error(), body["error"])
		})
	}
}
