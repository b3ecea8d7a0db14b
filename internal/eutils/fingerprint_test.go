package eutils

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	t.Run("deterministic for identical input", func(t *testing.T) {
		params := url.Values{}
		params.Set("db", "pubmed")
		params.Set("term", "crispr")

		fp1 := Fingerprint("search", params)
		fp2 := Fingerprint("search", params)
		assert.Equal(t, fp1, fp2)
	})

	t.Run("independent of parameter assembly order", func(t *testing.T) {
		a := url.Values{}
		a.Set("db", "pubmed")
		a.Set("term", "crispr")
		a.Set("retmax", "20")

		b := url.Values{}
		b.Set("retmax", "20")
		b.Set("term", "crispr")
		b.Set("db", "pubmed")

		assert.Equal(t, Fingerprint("search", a), Fingerprint("search", b))
	})

	t.Run("distinct operations yield distinct fingerprints", func(t *testing.T) {
		params := url.Values{}
		params.Set("id", "12345678")

		assert.NotEqual(t, Fingerprint("summary", params), Fingerprint("fulltext", params))
	})

	t.Run("distinct parameter values yield distinct fingerprints", func(t *testing.T) {
		a := url.Values{}
		a.Set("term", "crispr")
		b := url.Values{}
		b.Set("term", "aspirin")

		assert.NotEqual(t, Fingerprint("search", a), Fingerprint("search", b))
	})

	t.Run("credentials do not affect the fingerprint", func(t *testing.T) {
		bare := url.Values{}
		bare.Set("db", "pubmed")
		bare.Set("term", "crispr")

		withCreds := url.Values{}
		withCreds.Set("db", "pubmed")
		withCreds.Set("term", "crispr")
		withCreds.Set("api_key", "secret")
		withCreds.Set("email", "dev@example.org")
		withCreds.Set("tool", "pubmed-search-service")

		assert.Equal(t, Fingerprint("search", bare), Fingerprint("search", withCreds))
	})

	t.Run("multi-valued parameters are joined", func(t *testing.T) {
		a := url.Values{"id": {"1", "2"}}
		b := url.Values{"id": {"1,2"}}

		// Both canonicalize to id=1,2.
		assert.Equal(t, Fingerprint("summary", a), Fingerprint("summary", b))
	})

	t.Run("is a hex SHA-256 digest", func(t *testing.T) {
		fp := Fingerprint("search", url.Values{})
		assert.Len(t, fp, 64)
		assert.Regexp(t, "^[0-9a-f]+$", fp)
	})
}
