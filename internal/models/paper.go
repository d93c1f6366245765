// Package models defines core data structures for papers, queries, and search results.
package models

import "time"

// PaperMetadata is the structured metadata of a research paper. Fields the
// retrieval pipeline filters on are typed; anything else callers want to carry
// goes into Extra.
type PaperMetadata struct {
	Title      string         `json:"title"`
	Authors    []string       `json:"authors"`
	Abstract   string         `json:"abstract,omitempty"`
	Year       int            `json:"publication_year,omitempty"`
	DOI        string         `json:"doi,omitempty"`
	URL        string         `json:"url,omitempty"`
	Keywords   []string       `json:"keywords,omitempty"`
	Conference string         `json:"conference,omitempty"`
	Journal    string         `json:"journal,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Paper is a stored paper with its metadata and bookkeeping fields.
type Paper struct {
	ID             string        `json:"id"`
	Metadata       PaperMetadata `json:"metadata"`
	Filename       string        `json:"filename,omitempty"`
	FilePath       string        `json:"file_path,omitempty"`
	ParagraphCount int           `json:"paragraph_count,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Paragraph is one pre-split paragraph of a paper, supplied by the caller at
// ingestion time. Paragraph boundary detection happens upstream of this
// service.
type Paragraph struct {
	Index    int    `json:"index"`
	Section  string `json:"section,omitempty"`
	Text     string `json:"text"`
	Context  string `json:"context,omitempty"`
	IsHeader bool   `json:"is_header,omitempty"`
}

// IngestRequest is the input for ingesting one paper. Exactly one of Text or
// Paragraphs should be set: Text produces a single document-level vector,
// Paragraphs produces one vector per paragraph plus the paper record.
type IngestRequest struct {
	ID         string        `json:"id,omitempty"`
	Filename   string        `json:"filename,omitempty"`
	FilePath   string        `json:"file_path,omitempty"`
	Metadata   PaperMetadata `json:"metadata"`
	Text       string        `json:"text,omitempty"`
	Paragraphs []Paragraph   `json:"paragraphs,omitempty"`
}

// IngestResponse reports the outcome of an ingestion.
type IngestResponse struct {
	PaperID        string    `json:"paper_id"`
	ParagraphCount int       `json:"paragraph_count,omitempty"`
	IngestedAt     time.Time `json:"ingested_at"`
}
