package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorSentinels(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"invalid request", NewInvalidRequestError("query", "must not be empty"), ErrInvalidRequest},
		{"transient upstream", NewTransientUpstreamError("esearch.fcgi", 3, 503, errors.New("boom")), ErrUpstreamUnavailable},
		{"not found", NewNotFoundError("article", "12345678"), ErrNotFound},
		{"parse", NewParseError("12345678", "truncated record"), ErrParse},
		{"cache io", NewCacheIOError("write", "/tmp/x.json", errors.New("disk full")), ErrCacheIO},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.err, tc.sentinel)
		})
	}
}

func TestErrorMessages(t *testing.T) {
	t.Run("invalid request names the field", func(t *testing.T) {
		err := NewInvalidRequestError("sort", `unsupported sort value "citations"`)
		assert.Equal(t, `invalid request: sort: unsupported sort value "citations"`, err.Error())
	})

	t.Run("transient upstream includes attempts and status", func(t *testing.T) {
		err := NewTransientUpstreamError("esearch.fcgi", 3, 503, errors.New("boom"))
		assert.Contains(t, err.Error(), "after 3 attempts")
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("transient upstream without a status omits it", func(t *testing.T) {
		err := NewTransientUpstreamError("esearch.fcgi", 3, 0, errors.New("connection refused"))
		assert.NotContains(t, err.Error(), "status")
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("not found names the entity and id", func(t *testing.T) {
		err := NewNotFoundError("article", "12345678")
		assert.Equal(t, "article not found: 12345678", err.Error())
	})
}

func TestErrorWrapping(t *testing.T) {
	inner := NewTransientUpstreamError("efetch.fcgi", 3, 429, errors.New("rate limited"))
	wrapped := fmt.Errorf("efetch failed: %w", inner)

	assert.ErrorIs(t, wrapped, ErrUpstreamUnavailable)

	var upstreamErr *TransientUpstreamError
	assert.ErrorAs(t, wrapped, &upstreamErr)
	assert.Equal(t, 429, upstreamErr.StatusCode)
}
