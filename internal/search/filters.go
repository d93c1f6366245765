package search

import (
	"strings"

	"github.com/shirahama/ronbun/internal/models"
	"github.com/shirahama/ronbun/internal/vector"
)

// Metadata filters run after vector retrieval, never inside it. The
// pipeline over-fetches to compensate for hits the filters discard.

// matchesFilter reports whether a record's metadata satisfies every
// set filter field. Text matching is case-insensitive substring; list
// fields match when any requested value matches any stored value.
func matchesFilter(meta vector.RecordMeta, f *models.SearchFilter) bool {
	if f.Empty() {
		return true
	}
	if f.YearMin != nil || f.YearMax != nil {
		if meta.Year == 0 {
			return false
		}
		if f.YearMin != nil && meta.Year < *f.YearMin {
			return false
		}
		if f.YearMax != nil && meta.Year > *f.YearMax {
			return false
		}
	}
	if len(f.Authors) > 0 && !anyContains(meta.Authors, f.Authors) {
		return false
	}
	if len(f.Keywords) > 0 && !anyContains(meta.Keywords, f.Keywords) {
		return false
	}
	if f.Conference != "" && !containsFold(meta.Conference, f.Conference) {
		return false
	}
	if f.Journal != "" && !containsFold(meta.Journal, f.Journal) {
		return false
	}
	return true
}

// filterResults keeps the hits whose metadata satisfies the filter.
func filterResults(results []vector.ScoredResult, f *models.SearchFilter) []vector.ScoredResult {
	if f.Empty() {
		return results
	}
	kept := results[:0]
	for _, r := range results {
		if matchesFilter(r.Meta, f) {
			kept = append(kept, r)
		}
	}
	return kept
}

func anyContains(stored, wanted []string) bool {
	for _, w := range wanted {
		if w == "" {
			continue
		}
		for _, s := range stored {
			if containsFold(s, w) {
				return true
			}
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
