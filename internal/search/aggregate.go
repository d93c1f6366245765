package search

import (
	"sort"

	"github.com/shirahama/ronbun/internal/models"
	"github.com/shirahama/ronbun/internal/vector"
)

// aggregateByPaper folds paragraph-level hits into one result per
// paper. A paper's score is its best paragraph score, computed over
// every hit including section headers. Truncation to the top
// maxParagraphs also counts headers, so a high-scoring header holds
// its slot; headers are then skipped at emission, never surfacing as
// snippets. Papers come back ordered by score, best first.
func aggregateByPaper(hits []vector.ScoredResult, maxParagraphs int, withParagraphs bool) []*models.SearchResult {
	grouped := make(map[string]*paperGroup)
	var order []string
	for _, hit := range hits {
		paperID := hit.Meta.PaperID
		if paperID == "" {
			paperID = hit.ID
		}
		g, ok := grouped[paperID]
		if !ok {
			g = &paperGroup{id: paperID}
			grouped[paperID] = g
			order = append(order, paperID)
		}
		if hit.Score > g.best.Score || g.best.ID == "" {
			g.best = hit
		}
		g.paragraphs = append(g.paragraphs, hit)
	}

	results := make([]*models.SearchResult, 0, len(order))
	for _, id := range order {
		g := grouped[id]
		meta := g.best.Meta
		res := &models.SearchResult{
			PaperID:    g.id,
			Title:      meta.Title,
			Authors:    meta.Authors,
			Year:       meta.Year,
			Abstract:   meta.Abstract,
			Score:      g.best.Score,
			Filename:   meta.Filename,
			Conference: meta.Conference,
			Journal:    meta.Journal,
			Keywords:   meta.Keywords,
		}
		if withParagraphs {
			sort.SliceStable(g.paragraphs, func(i, j int) bool {
				return g.paragraphs[i].Score > g.paragraphs[j].Score
			})
			limit := maxParagraphs
			if limit > len(g.paragraphs) {
				limit = len(g.paragraphs)
			}
			for _, p := range g.paragraphs[:limit] {
				if p.Meta.IsHeader {
					continue
				}
				res.MatchingParagraphs = append(res.MatchingParagraphs, models.ParagraphMatch{
					Text:           p.Meta.Text,
					Context:        p.Meta.Context,
					Score:          p.Score,
					Section:        p.Meta.Section,
					ParagraphIndex: p.Meta.ParagraphIndex,
				})
			}
		}
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

type paperGroup struct {
	id         string
	best       vector.ScoredResult
	paragraphs []vector.ScoredResult
}
