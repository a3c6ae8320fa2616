package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"docuchat/backend/internal/pipeline"
)

// Embedder maps text to fixed-dimension vectors using one frozen Gemini
// embedding model. The model identity is part of the index schema; it must not
// change for the lifetime of an index.
type Embedder struct {
	client *genai.Client
	model  string
}

func NewEmbedder(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Embedder, error) {
	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Embedder{client: client, model: model}, nil
}

// Model returns the frozen embedding model identity.
func (e *Embedder) Model() string {
	return e.model
}

// Embed returns the vector for a single text. Queries and chunks go through
// the identical normalization; mismatched preprocessing between the two paths
// silently degrades retrieval.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds a batch of texts, preserving order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	slog.DebugContext(ctx, "embedding batch", "model", e.model, "count", len(texts))

	em := e.client.EmbeddingModel(e.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(Normalize(t)))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, pipeline.WrapTimeout(err, pipeline.ErrEmbedding)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", pipeline.ErrEmbedding, len(res.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range res.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at position %d", pipeline.ErrEmbedding, i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func (e *Embedder) Close() error {
	return e.client.Close()
}

// Normalize is the single preprocessing step applied before embedding, at both
// ingestion and query time: trim and collapse all whitespace runs to single
// spaces. Casing is left untouched; the model is case-aware.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
