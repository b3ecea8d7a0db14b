// Package domain defines the stable records returned by the PubMed access
// layer and the error taxonomy shared across the service.
//
// Records carry only what the upstream actually returned: fields absent
// upstream are omitted or empty, never fabricated. Batch operations return
// one tagged entry per requested PMID so that partial failures stay
// value-level instead of aborting the whole sequence.
package domain

import "time"

// SearchResult contains the outcome of a keyword search.
type SearchResult struct {
	// Query is the search query echoed back from the request.
	Query string `json:"query"`

	// PMIDs is the ordered list of matching PubMed identifiers.
	// Ordering reflects the upstream relevance or sort choice.
	PMIDs []string `json:"pmids"`

	// Count is the total number of records matching the query upstream,
	// regardless of pagination limits.
	Count int `json:"count"`

	// RetStart is the offset of the first returned identifier.
	RetStart int `json:"ret_start"`

	// RetMax is the page size that was applied.
	RetMax int `json:"ret_max"`
}

// Author is a single article author in citation order.
type Author struct {
	// Name is the display name ("ForeName LastName" or collective name).
	Name string `json:"name"`

	// Affiliation is the first listed affiliation, if any.
	Affiliation string `json:"affiliation,omitempty"`
}

// ArticleSummary contains the citation metadata for one article.
type ArticleSummary struct {
	// PMID is the PubMed identifier.
	PMID string `json:"pmid"`

	// Title is the article title.
	Title string `json:"title"`

	// Authors is the ordered author list. Empty when upstream lists none.
	Authors []Author `json:"authors,omitempty"`

	// Journal is the journal title (ISO abbreviation as fallback).
	Journal string `json:"journal,omitempty"`

	// PubDate is the publication date when one could be determined.
	PubDate *time.Time `json:"pub_date,omitempty"`

	// DOI is the digital object identifier, if present upstream.
	DOI string `json:"doi,omitempty"`

	// Abstract is the article abstract with structured sections joined.
	Abstract string `json:"abstract,omitempty"`
}

// SummaryStatus tags one entry of a FetchSummary result.
type SummaryStatus string

const (
	// SummaryStatusOK marks an entry whose metadata was retrieved.
	SummaryStatusOK SummaryStatus = "ok"

	// SummaryStatusNotFound marks a PMID absent upstream.
	SummaryStatusNotFound SummaryStatus = "not_found"

	// SummaryStatusFailed marks an entry whose record could not be
	// retrieved or parsed; Error carries the reason.
	SummaryStatusFailed SummaryStatus = "failed"
)

// SummaryItem is one position-preserving entry of a FetchSummary result.
// Exactly one entry is produced per requested PMID, in request order.
type SummaryItem struct {
	// PMID is the identifier this entry answers for.
	PMID string `json:"pmid"`

	// Status tags the entry as ok, not_found, or failed.
	Status SummaryStatus `json:"status"`

	// Summary is populated only when Status is SummaryStatusOK.
	Summary *ArticleSummary `json:"summary,omitempty"`

	// Error is a human-readable reason, populated when Status is
	// SummaryStatusFailed.
	Error string `json:"error,omitempty"`
}

// FullTextResult is one position-preserving entry of a GetFullText result.
type FullTextResult struct {
	// PMID is the identifier this entry answers for.
	PMID string `json:"pmid"`

	// Available reports whether open full text exists for this PMID.
	// False with an empty Error means upstream simply has no open full
	// text; that is not an error.
	Available bool `json:"available"`

	// FullText is the normalized plain-text article body when Available.
	FullText string `json:"full_text,omitempty"`

	// Error is a human-readable reason when this PMID's fetch failed.
	// The surrounding batch still succeeds.
	Error string `json:"error,omitempty"`
}
