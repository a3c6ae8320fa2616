package answer

import (
	"sort"

	"docuchat/backend/internal/retrieval"
)

// Confidence labels how well the retrieved evidence supports an answer.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// Citation points at a source location backing the answer.
type Citation struct {
	Filename  string `json:"filename"`
	Page      int    `json:"page"`
	Relevance int    `json:"relevance"`
}

// Assessment is the graded evidence for one answer.
type Assessment struct {
	Confidence Confidence `json:"confidence"`
	Citations  []Citation `json:"citations"`
}

// Grade labels the evidence behind the included chunks and derives citations.
// High requires the best chunk at or above high plus a second chunk at or
// above low. Medium requires the best chunk at or above low. No chunks at all
// means none.
func Grade(included []retrieval.Candidate, high, low float32) Assessment {
	if len(included) == 0 {
		return Assessment{Confidence: ConfidenceNone}
	}

	sorted := make([]retrieval.Candidate, len(included))
	copy(sorted, included)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	top := sorted[0].Score
	supporting := 0
	for _, c := range sorted {
		if c.Score >= low {
			supporting++
		}
	}

	confidence := ConfidenceLow
	switch {
	case top >= high && supporting >= 2:
		confidence = ConfidenceHigh
	case top >= low:
		confidence = ConfidenceMedium
	}

	return Assessment{
		Confidence: confidence,
		Citations:  citations(sorted),
	}
}

// citations dedupes (filename, page) pairs, keeping the highest-scored
// occurrence of each. Input must already be sorted by descending score.
func citations(sorted []retrieval.Candidate) []Citation {
	type key struct {
		filename string
		page     int
	}
	seen := make(map[key]struct{}, len(sorted))
	out := make([]Citation, 0, len(sorted))
	for _, c := range sorted {
		k := key{c.Filename, c.Page}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, Citation{
			Filename:  c.Filename,
			Page:      c.Page,
			Relevance: relevancePercent(c.Score),
		})
	}
	return out
}

func relevancePercent(score float32) int {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 100
	}
	return int(score*100 + 0.5)
}
