package models

import "fmt"

// Search modes. Semantic search embeds the query and runs the vector index;
// lexical search runs the term index over titles and abstracts.
const (
	ModeSemantic = "semantic"
	ModeLexical  = "lexical"
)

// Granularities for semantic search.
const (
	GranularityDocument  = "document"
	GranularityParagraph = "paragraph"
)

// SearchFilter holds optional metadata constraints. Every field is optional
// and applied independently, after vector retrieval.
type SearchFilter struct {
	YearMin    *int     `json:"year_min,omitempty"`
	YearMax    *int     `json:"year_max,omitempty"`
	Authors    []string `json:"authors,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	Conference string   `json:"conference,omitempty"`
	Journal    string   `json:"journal,omitempty"`
}

// Empty reports whether no filter field is set.
func (f *SearchFilter) Empty() bool {
	if f == nil {
		return true
	}
	return f.YearMin == nil && f.YearMax == nil &&
		len(f.Authors) == 0 && len(f.Keywords) == 0 &&
		f.Conference == "" && f.Journal == ""
}

// SearchRequest is a search over the corpus.
type SearchRequest struct {
	Query       string        `json:"query"`
	Mode        string        `json:"mode,omitempty"`
	Granularity string        `json:"granularity,omitempty"`
	Filters     *SearchFilter `json:"filters,omitempty"`
	Limit       int           `json:"limit,omitempty"`
	// Threshold overrides the configured similarity floor; nil keeps the default.
	Threshold *float64 `json:"threshold,omitempty"`
}

// Validate normalizes the request and rejects empty queries.
func (r *SearchRequest) Validate(defaultLimit, maxLimit int) error {
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if r.Limit <= 0 {
		r.Limit = defaultLimit
	}
	if r.Limit > maxLimit {
		r.Limit = maxLimit
	}
	switch r.Mode {
	case "", ModeSemantic:
		r.Mode = ModeSemantic
	case ModeLexical:
	default:
		return fmt.Errorf("unknown search mode: %s", r.Mode)
	}
	switch r.Granularity {
	case "", GranularityParagraph:
		r.Granularity = GranularityParagraph
	case GranularityDocument:
	default:
		return fmt.Errorf("unknown granularity: %s", r.Granularity)
	}
	return nil
}
