package vector

import "time"

// Mode selects the search strategy for the hybrid index.
type Mode int32

const (
	// ModeHybrid answers queries through the approximate graph tier
	// with an exact rerank over the candidate window.
	ModeHybrid Mode = iota
	// ModeFlat answers queries with an exhaustive exact scan.
	ModeFlat
)

func (m Mode) String() string {
	switch m {
	case ModeHybrid:
		return "hybrid"
	case ModeFlat:
		return "flat"
	default:
		return "unknown"
	}
}

// ParseMode maps a persisted mode label back to its value.
// Unknown labels fall back to flat, which is always correct.
func ParseMode(s string) Mode {
	if s == "hybrid" {
		return ModeHybrid
	}
	return ModeFlat
}

// RecordMeta carries the searchable payload attached to a vector.
// Paragraph-level records reference their paper through PaperID and
// ParagraphIndex; document-level records set IsDocument and carry no
// paragraph position.
type RecordMeta struct {
	PaperID        string         `json:"paper_id"`
	Title          string         `json:"title"`
	Authors        []string       `json:"authors,omitempty"`
	Abstract       string         `json:"abstract,omitempty"`
	Year           int            `json:"publication_year,omitempty"`
	Keywords       []string       `json:"keywords,omitempty"`
	Conference     string         `json:"conference,omitempty"`
	Journal        string         `json:"journal,omitempty"`
	Filename       string         `json:"filename,omitempty"`
	ParagraphIndex int            `json:"paragraph_index"`
	Section        string         `json:"section,omitempty"`
	Text           string         `json:"text,omitempty"`
	Context        string         `json:"context,omitempty"`
	IsHeader       bool           `json:"is_header,omitempty"`
	IsDocument     bool           `json:"is_document,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// Record is one stored vector with its identity and payload.
type Record struct {
	ID     string
	Vector []float32
	Meta   RecordMeta
}

// ScoredResult is one search hit. Score is a similarity in (0, 1],
// derived from squared L2 distance as 1/(1+d).
type ScoredResult struct {
	ID    string
	Score float64
	Meta  RecordMeta
}

// BackupInfo describes the current backup slot, if any.
type BackupInfo struct {
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"created_at"`
	Valid     bool      `json:"valid"`
}

// Status is a point-in-time description of the index.
type Status struct {
	Population     int         `json:"population"`
	Dimensions     int         `json:"dimensions"`
	Mode           string      `json:"mode"`
	HybridEnabled  bool        `json:"hybrid_enabled"`
	GraphSize      int         `json:"graph_size"`
	M              int         `json:"m"`
	EfConstruction int         `json:"ef_construction"`
	EfSearch       int         `json:"ef_search"`
	RerankSize     int         `json:"rerank_size"`
	HighWatermark  float64     `json:"memory_high_watermark"`
	Margin         float64     `json:"memory_margin"`
	LastUpdated    time.Time   `json:"last_updated"`
	Backup         *BackupInfo `json:"backup,omitempty"`
}
