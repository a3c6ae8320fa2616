package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"docuchat/backend/internal/pipeline"
)

// Candidate is a chunk returned by the vector index for one query, carrying
// the similarity score and the stored vector so MMR can be computed locally.
// Candidates live only for the duration of a request.
type Candidate struct {
	ChunkID   string
	DocID     string
	Filename  string
	Page      int
	Index     int
	Text      string
	CharStart int
	CharEnd   int
	Version   int
	Score     float32
	Vector    []float32
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]Candidate, error)
}

// DocumentVersions reports the current index version per document id. Chunks
// whose stored version differs are superseded and must never be served.
type DocumentVersions interface {
	CurrentVersions(ctx context.Context) (map[string]int, error)
}

// Params are the retrieval tuning knobs, resolved from config at startup.
type Params struct {
	TopK          int
	FetchK        int
	Lambda        float32
	EmbedTimeout  time.Duration
	SearchTimeout time.Duration
}

type Service struct {
	embedder Embedder
	store    VectorSearcher
	versions DocumentVersions
	logger   *QueryLogger
	params   Params
}

func NewService(e Embedder, s VectorSearcher, v DocumentVersions, l *QueryLogger, p Params) *Service {
	return &Service{embedder: e, store: s, versions: v, logger: l, params: p}
}

// Retrieve embeds the question, over-fetches a candidate pool, drops
// stale-version chunks and selects a diverse top-k with MMR. An empty index
// yields an empty slice and no error; the caller turns that into a
// "no documents indexed" answer instead of a generation attempt.
func (s *Service) Retrieve(ctx context.Context, question string) ([]Candidate, error) {
	start := time.Now()

	embedCtx, cancel := context.WithTimeout(ctx, s.params.EmbedTimeout)
	defer cancel()
	queryVec, err := s.embedder.Embed(embedCtx, question)
	if err != nil {
		return nil, pipeline.FailStage("", pipeline.StageRetrieval, err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.params.SearchTimeout)
	defer cancel()
	pool, err := s.store.Search(searchCtx, queryVec, s.params.FetchK)
	if err != nil {
		return nil, pipeline.FailStage("", pipeline.StageRetrieval, err)
	}

	current, err := s.versions.CurrentVersions(ctx)
	if err != nil {
		return nil, pipeline.FailStage("", pipeline.StageRetrieval, fmt.Errorf("resolving document versions: %w", err))
	}
	pool = dropStale(pool, current)

	selected := MaximalMarginalRelevance(queryVec, pool, s.params.TopK, s.params.Lambda)

	if s.logger != nil {
		s.logger.Log(ctx, QueryLogEntry{
			Query:      question,
			PoolSize:   len(pool),
			NumResults: len(selected),
			Duration:   time.Since(start),
		})
	}
	slog.DebugContext(ctx, "retrieval complete", "pool", len(pool), "selected", len(selected))
	return selected, nil
}

// dropStale removes candidates whose owning document no longer exists or
// whose stored version is not the document's current one. This is what keeps
// concurrent reindexing invisible: a query sees the old complete set or the
// new complete set, never a mix.
func dropStale(pool []Candidate, current map[string]int) []Candidate {
	kept := pool[:0]
	for _, c := range pool {
		if v, ok := current[c.DocID]; ok && v == c.Version {
			kept = append(kept, c)
		}
	}
	return kept
}

// MaximalMarginalRelevance greedily selects up to k candidates maximizing
// lambda*relevance - (1-lambda)*max-similarity-to-selected. Ties break on
// higher raw index score, then lower chunk sequence index, making selection
// deterministic for reproducible results.
func MaximalMarginalRelevance(queryVec []float32, pool []Candidate, k int, lambda float32) []Candidate {
	if len(pool) == 0 || k <= 0 {
		return nil
	}
	if k > len(pool) {
		k = len(pool)
	}

	relevance := make([]float64, len(pool))
	for i, c := range pool {
		relevance[i] = CosineSimilarity(queryVec, c.Vector)
	}

	selected := make([]Candidate, 0, k)
	selectedIdx := make([]int, 0, k)
	used := make([]bool, len(pool))

	for len(selected) < k {
		best := -1
		var bestScore float64
		for i := range pool {
			if used[i] {
				continue
			}
			redundancy := 0.0
			for _, j := range selectedIdx {
				if sim := CosineSimilarity(pool[i].Vector, pool[j].Vector); sim > redundancy {
					redundancy = sim
				}
			}
			score := float64(lambda)*relevance[i] - float64(1-lambda)*redundancy
			if best == -1 || score > bestScore || (score == bestScore && prefer(pool[i], pool[best])) {
				best = i
				bestScore = score
			}
		}
		used[best] = true
		selectedIdx = append(selectedIdx, best)
		selected = append(selected, pool[best])
	}
	return selected
}

// prefer is the MMR tie-break: higher raw similarity score wins, then lower
// chunk sequence index.
func prefer(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Index < b.Index
}

// CosineSimilarity computes the cosine of the angle between two vectors,
// accumulating in float64. Zero or mismatched vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
