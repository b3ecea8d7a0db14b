package pubmed

import (
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/pubmed-search-service/internal/domain"
)

// parseSearch converts a raw esearch payload into a SearchResult. A query
// whose phrase was not found upstream yields an empty result, not an error.
func parseSearch(raw []byte, query string) (*domain.SearchResult, error) {
	var result ESearchResult
	if err := xml.Unmarshal(raw, &result); err != nil {
		return nil, domain.NewParseError("", "esearch payload: "+err.Error())
	}

	if result.ErrorList != nil && len(result.ErrorList.PhraseNotFound) > 0 {
		return &domain.SearchResult{
			Query:    query,
			PMIDs:    []string{},
			Count:    0,
			RetStart: result.RetStart,
			RetMax:   result.RetMax,
		}, nil
	}

	pmids := result.IDList.IDs
	if pmids == nil {
		pmids = []string{}
	}

	return &domain.SearchResult{
		Query:    query,
		PMIDs:    pmids,
		Count:    result.Count,
		RetStart: result.RetStart,
		RetMax:   result.RetMax,
	}, nil
}

// parseSummaries converts a raw efetch payload into summaries keyed by
// PMID. Records that cannot be attributed to a PMID are dropped; the
// second return value maps PMIDs to record-scoped failure reasons so one
// malformed record never fails the rest of the batch.
func parseSummaries(raw []byte) (map[string]*domain.ArticleSummary, map[string]string, error) {
	var set PubmedArticleSet
	if err := xml.Unmarshal(raw, &set); err != nil {
		return nil, nil, domain.NewParseError("", "efetch payload: "+err.Error())
	}

	summaries := make(map[string]*domain.ArticleSummary, len(set.Articles))
	failures := make(map[string]string)

	for _, article := range set.Articles {
		pmid := article.MedlineCitation.PMID.Value
		if pmid == "" {
			continue
		}

		summary, err := summarizeArticle(article)
		if err != nil {
			failures[pmid] = err.Error()
			continue
		}
		summaries[pmid] = summary
	}

	return summaries, failures, nil
}

// summarizeArticle builds an ArticleSummary from one citation record.
// Missing sub-fields (authors, abstract, DOI, date) are omitted rather
// than failing the record; only a record with no usable citation at all
// is reported as malformed.
func summarizeArticle(article PubmedArticle) (*domain.ArticleSummary, error) {
	citation := article.MedlineCitation
	a := citation.Article

	journal := a.Journal.Title
	if journal == "" {
		journal = a.Journal.ISOAbbreviation
	}

	if a.ArticleTitle == "" && journal == "" {
		return nil, domain.NewParseError(citation.PMID.Value, "record carries neither title nor journal")
	}

	summary := &domain.ArticleSummary{
		PMID:     citation.PMID.Value,
		Title:    strings.TrimSpace(a.ArticleTitle),
		Authors:  extractAuthors(a.AuthorList),
		Journal:  journal,
		PubDate:  extractPublicationDate(a),
		DOI:      extractDOI(a, article.PubmedData),
		Abstract: extractAbstract(a.Abstract),
	}

	return summary, nil
}

// extractPMCID returns the PMC identifier attached to a citation, or empty
// when the article has no open-access full text deposit.
func extractPMCID(article PubmedArticle) string {
	for _, aid := range article.PubmedData.ArticleIdList.ArticleIds {
		if aid.IdType == "pmc" {
			return aid.Value
		}
	}
	return ""
}

// extractDOI extracts the DOI from article metadata.
// It checks ELocationID first (more reliable), then ArticleIdList.
func extractDOI(article Article, pubmedData PubmedData) string {
	for _, eloc := range article.ELocationID {
		if eloc.EIdType == "doi" && (eloc.Valid == "" || eloc.Valid == "Y") {
			return eloc.Value
		}
	}

	for _, aid := range pubmedData.ArticleIdList.ArticleIds {
		if aid.IdType == "doi" {
			return aid.Value
		}
	}

	return ""
}

// extractAuthors converts the upstream author list into domain authors,
// preserving citation order. Invalid or nameless entries are skipped.
func extractAuthors(authorList *AuthorList) []domain.Author {
	if authorList == nil || len(authorList.Authors) == 0 {
		return nil
	}

	authors := make([]domain.Author, 0, len(authorList.Authors))
	for _, a := range authorList.Authors {
		if a.ValidYN == "N" {
			continue
		}

		var name string
		if a.CollectiveName != "" {
			name = a.CollectiveName
		} else {
			nameParts := make([]string, 0, 2)
			if a.ForeName != "" {
				nameParts = append(nameParts, a.ForeName)
			}
			if a.LastName != "" {
				nameParts = append(nameParts, a.LastName)
			}
			name = strings.Join(nameParts, " ")
		}

		if name == "" {
			continue
		}

		var affiliation string
		if len(a.AffiliationInfo) > 0 {
			affiliation = a.AffiliationInfo[0].Affiliation
		}

		authors = append(authors, domain.Author{
			Name:        name,
			Affiliation: affiliation,
		})
	}

	return authors
}

// extractAbstract concatenates multiple abstract sections into one string,
// prefixing labeled sections with their label.
func extractAbstract(abstract *Abstract) string {
	if abstract == nil || len(abstract.AbstractTexts) == 0 {
		return ""
	}

	if len(abstract.AbstractTexts) == 1 && abstract.AbstractTexts[0].Label == "" {
		return strings.TrimSpace(abstract.AbstractTexts[0].Value)
	}

	var parts []string
	for _, at := range abstract.AbstractTexts {
		text := strings.TrimSpace(at.Value)
		if text == "" {
			continue
		}
		if at.Label != "" {
			parts = append(parts, at.Label+": "+text)
		} else {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " ")
}

// extractPublicationDate returns the publication date, preferring the
// electronic ArticleDate and falling back to the journal issue PubDate.
// Returns nil when no date can be determined.
func extractPublicationDate(article Article) *time.Time {
	for _, ad := range article.ArticleDate {
		if ad.DateType == "epublish" || ad.DateType == "Electronic" || ad.DateType == "" {
			if t := parseDate(ad.Year, ad.Month, ad.Day); t != nil {
				return t
			}
		}
	}

	pubDate := article.Journal.JournalIssue.PubDate

	// MedlineDate covers irregular forms like "2020 Jan-Feb" or "2020-2021".
	if pubDate.MedlineDate != "" {
		if year := yearFromMedlineDate(pubDate.MedlineDate); year > 0 {
			t := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
			return &t
		}
	}

	if pubDate.Year != "" {
		if t := parseDate(pubDate.Year, pubDate.Month, pubDate.Day); t != nil {
			return t
		}
		if year, err := strconv.Atoi(pubDate.Year); err == nil {
			t := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
			return &t
		}
	}

	return nil
}

// parseDate parses year, month, day strings into a time.Time.
func parseDate(year, month, day string) *time.Time {
	if year == "" {
		return nil
	}

	y, err := strconv.Atoi(year)
	if err != nil {
		return nil
	}

	m := parseMonth(month)
	d := 1
	if day != "" {
		if parsed, err := strconv.Atoi(day); err == nil {
			d = parsed
		}
	}

	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// monthNames maps lowercase month names (abbreviated and full) to time.Month.
var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// parseMonth parses a month string (numeric or name) into time.Month.
func parseMonth(month string) time.Month {
	if month == "" {
		return time.January
	}

	if m, err := strconv.Atoi(month); err == nil && m >= 1 && m <= 12 {
		return time.Month(m)
	}

	if m, ok := monthNames[strings.ToLower(month)]; ok {
		return m
	}

	return time.January
}

// yearFromMedlineDate extracts the leading year from a MedlineDate string.
func yearFromMedlineDate(medlineDate string) int {
	parts := strings.Fields(medlineDate)
	if len(parts) > 0 {
		yearStr := strings.Split(parts[0], "-")[0]
		if year, err := strconv.Atoi(yearStr); err == nil {
			return year
		}
	}
	return 0
}

// parseFullText converts a raw PMC efetch payload into normalized plain
// text. An article without a body (no open full text, or a deposit the
// normalizer cannot handle) yields an empty string, never an error.
func parseFullText(raw []byte) (string, error) {
	var set PMCArticleSet
	if err := xml.Unmarshal(raw, &set); err != nil {
		return "", domain.NewParseError("", "pmc payload: "+err.Error())
	}

	if len(set.Articles) == 0 {
		return "", nil
	}

	return normalizeBody(set.Articles[0].Body.InnerXML), nil
}

// normalizeBody strips PMC body markup into readable text. Section titles
// and paragraphs become newline-separated blocks; figures and tables keep
// whatever character data they carry. Best effort: unbalanced markup stops
// normalization at the last well-formed token.
func normalizeBody(innerXML string) string {
	if strings.TrimSpace(innerXML) == "" {
		return ""
	}

	dec := xml.NewDecoder(strings.NewReader(innerXML))
	var b strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.CharData:
			b.WriteString(string(t))
		case xml.EndElement:
			switch t.Name.Local {
			case "title", "p", "sec", "caption", "table-wrap":
				b.WriteString("\n\n")
			case "break":
				b.WriteString("\n")
			}
		}
	}

	return collapseBlankLines(b.String())
}

// collapseBlankLines trims trailing space per line and folds runs of blank
// lines into single paragraph breaks.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := true

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}

	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}

	return strings.Join(out, "\n")
}
