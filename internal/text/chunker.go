package text

import (
	"fmt"

	"docuchat/backend/internal/pdf"
	"docuchat/backend/internal/pipeline"
)

// Chunk is a contiguous span of one page's extracted text. Offsets are rune
// offsets into that page's text, so boundaries are stable across runs and
// safe inside multi-byte characters.
type Chunk struct {
	Page      int
	Index     int
	Text      string
	CharStart int
	CharEnd   int
}

// SplitPages splits each page independently into overlapping fixed-size
// chunks, so every chunk carries the exact page its text came from. The
// window is size runes wide and advances by size-overlap. A trailing chunk
// shorter than size/10 runes folds into the page's previous chunk instead of
// being emitted on its own; a whole page shorter than that is still kept.
// Chunk indexes run across the whole document. Identical input and parameters
// always produce identical chunk boundaries.
func SplitPages(pages []pdf.Page, size, overlap int) ([]Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", pipeline.ErrValidation, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", pipeline.ErrValidation, overlap, size)
	}

	minLen := size / 10
	if minLen < 1 {
		minLen = 1
	}
	step := size - overlap

	var chunks []Chunk
	for _, p := range pages {
		runes := []rune(p.Text)
		if len(runes) == 0 {
			continue
		}

		pageFirst := len(chunks)
		for start := 0; start < len(runes); start += step {
			end := start + size
			if end > len(runes) {
				end = len(runes)
			}

			if end-start < minLen && len(chunks) > pageFirst {
				// Trailing sliver: fold it into the page's previous chunk.
				prev := &chunks[len(chunks)-1]
				prev.Text = string(runes[prev.CharStart:end])
				prev.CharEnd = end
				break
			}

			chunks = append(chunks, Chunk{
				Page:      p.Number,
				Index:     len(chunks),
				Text:      string(runes[start:end]),
				CharStart: start,
				CharEnd:   end,
			})

			if end == len(runes) {
				break
			}
		}
	}

	return chunks, nil
}
