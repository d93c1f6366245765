package models

// ParagraphMatch is a matched paragraph inside a paper result.
type ParagraphMatch struct {
	Text           string  `json:"text"`
	Context        string  `json:"context,omitempty"`
	Score          float64 `json:"score"`
	Section        string  `json:"section,omitempty"`
	ParagraphIndex int     `json:"paragraph_index"`
}

// SearchResult is a single paper hit. For paragraph-granularity searches,
// Score is the best paragraph score and MatchingParagraphs holds the top
// paragraphs; for document granularity MatchingParagraphs is empty.
type SearchResult struct {
	PaperID            string           `json:"paper_id"`
	Title              string           `json:"title"`
	Authors            []string         `json:"authors"`
	Year               int              `json:"publication_year,omitempty"`
	Abstract           string           `json:"abstract,omitempty"`
	Score              float64          `json:"similarity_score"`
	Filename           string           `json:"filename,omitempty"`
	Conference         string           `json:"conference,omitempty"`
	Journal            string           `json:"journal,omitempty"`
	Keywords           []string         `json:"keywords,omitempty"`
	MatchingParagraphs []ParagraphMatch `json:"matching_paragraphs,omitempty"`
}

// SearchResponse is the response for a search request. TotalCount is the
// number of distinct papers matched, not the raw hit count.
type SearchResponse struct {
	Results    []*SearchResult `json:"results"`
	TotalCount int             `json:"total_count"`
	Query      string          `json:"query"`
	QueryTime  int64           `json:"query_time_ms"`
}

// FilterOptions lists the distinct filterable values present in the corpus.
type FilterOptions struct {
	Years       []int    `json:"years"`
	Authors     []string `json:"authors"`
	Keywords    []string `json:"keywords"`
	Conferences []string `json:"conferences"`
	Journals    []string `json:"journals"`
}
