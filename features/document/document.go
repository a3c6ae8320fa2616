// Package document owns the ingestion pipeline: PDF extraction, chunking,
// embedding and indexing, plus the document catalog behind it.
package document

import (
	"context"
	"errors"

	weav "docuchat/backend/internal/adapter/weaviate"
)

const (
	StatusPending    = "pending"
	StatusExtracting = "extracting"
	StatusChunking   = "chunking"
	StatusEmbedding  = "embedding"
	StatusIndexing   = "indexing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ErrIngestInProgress is returned when an ingest is already running for the
// same document id.
var ErrIngestInProgress = errors.New("ingest already in progress for document")

type Document struct {
	ID            string `json:"id"`
	Filename      string `json:"filename"`
	SizeBytes     int64  `json:"size_bytes"`
	PageCount     int    `json:"page_count"`
	ChunkCount    int    `json:"chunk_count"`
	Status        string `json:"status"`
	Version       int    `json:"version"`
	FailedStage   string `json:"failed_stage,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	ExtractMs     int64  `json:"extract_ms"`
	ChunkMs       int64  `json:"chunk_ms"`
	EmbedMs       int64  `json:"embed_ms"`
	IndexMs       int64  `json:"index_ms"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// IngestionResult summarizes a completed ingest.
type IngestionResult struct {
	Document *Document `json:"document"`
}

type Repository interface {
	Upsert(ctx context.Context, doc *Document) error
	UpdateStatus(ctx context.Context, id, status string) error
	MarkFailed(ctx context.Context, id, stage, reason string) error
	Complete(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context) ([]Document, error)
	Delete(ctx context.Context, id string) error
	CurrentVersions(ctx context.Context) (map[string]int, error)
	Count(ctx context.Context) (int, error)
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type ChunkIndex interface {
	UpsertChunks(ctx context.Context, chunks []weav.IndexedChunk) error
	DeleteDocument(ctx context.Context, docID string) error
	DeleteVersion(ctx context.Context, docID string, version int) error
	DeleteVersionsBelow(ctx context.Context, docID string, version int) error
}
