package ingest

import (
	"strings"

	"github.com/shirahama/ronbun/internal/models"
)

// SplitText turns raw text into paragraphs for embedding. Blank lines
// delimit paragraphs; paragraphs longer than chunkSize words are
// windowed with chunkOverlap words of context carried between windows.
//
// Callers with real paragraph boundaries should pass them in the
// ingest request instead; this splitter is the fallback for plain text.
func SplitText(text string, chunkSize, chunkOverlap int) []models.Paragraph {
	if chunkSize <= 0 {
		chunkSize = 200
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}

	var out []models.Paragraph
	idx := 0
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		words := strings.Fields(block)
		if len(words) <= chunkSize {
			out = append(out, models.Paragraph{Index: idx, Text: strings.Join(words, " ")})
			idx++
			continue
		}
		step := chunkSize - chunkOverlap
		for start := 0; start < len(words); start += step {
			end := start + chunkSize
			if end > len(words) {
				end = len(words)
			}
			out = append(out, models.Paragraph{Index: idx, Text: strings.Join(words[start:end], " ")})
			idx++
			if end == len(words) {
				break
			}
		}
	}
	return out
}
