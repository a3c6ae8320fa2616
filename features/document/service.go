package document

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	weav "docuchat/backend/internal/adapter/weaviate"
	"docuchat/backend/internal/metrics"
	"docuchat/backend/internal/pdf"
	"docuchat/backend/internal/pipeline"
	"docuchat/backend/internal/text"
)

var pdfMagic = []byte("%PDF")

// embedBatchSize caps texts per embedding request.
const embedBatchSize = 100

type ServiceConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	MaxUploadBytes int64
	RetryAttempts  int
	RetryDelay     time.Duration
	EmbedTimeout   time.Duration
}

type extractFunc func(r io.Reader) ([]pdf.Page, error)

type Service struct {
	repo     Repository
	embedder Embedder
	index    ChunkIndex
	metrics  *metrics.Collector
	cfg      ServiceConfig
	extract  extractFunc

	inflight *inflightSet
}

func NewService(repo Repository, embedder Embedder, index ChunkIndex, collector *metrics.Collector, cfg ServiceConfig) *Service {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	return &Service{
		repo:     repo,
		embedder: embedder,
		index:    index,
		metrics:  collector,
		cfg:      cfg,
		extract:  pdf.ExtractPages,
		inflight: newInflightSet(),
	}
}

// Ingest runs the full pipeline for one document. Re-ingesting an existing id
// writes a fresh chunk version, flips the document to it, then purges the old
// versions, so concurrent queries only ever see one complete version.
func (s *Service) Ingest(ctx context.Context, id, filename string, pdfBytes []byte) (*IngestionResult, error) {
	if err := s.validate(id, filename, pdfBytes); err != nil {
		return nil, err
	}

	if !s.inflight.tryAcquire(id) {
		return nil, fmt.Errorf("%w: %s", ErrIngestInProgress, id)
	}
	defer s.inflight.release(id)

	// Only a confirmed missing row starts a fresh document. Proceeding past a
	// transient read error would restart the version counter and let a later
	// reindex collide with the live version's never-purged chunks.
	doc, err := s.repo.Get(ctx, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		doc = &Document{ID: id}
	case err != nil:
		return nil, fmt.Errorf("reading document before ingest: %w", err)
	}
	doc.Filename = filename
	doc.SizeBytes = int64(len(pdfBytes))
	doc.Status = StatusPending
	if err := s.repo.Upsert(ctx, doc); err != nil {
		return nil, err
	}
	newVersion := doc.Version + 1

	result, err := s.runPipeline(ctx, doc, newVersion, pdfBytes)
	if err != nil {
		var stageErr *pipeline.StageError
		stage := ""
		if errors.As(err, &stageErr) {
			stage = stageErr.Stage
		}
		if repoErr := s.repo.MarkFailed(ctx, id, stage, err.Error()); repoErr != nil {
			slog.Error("failed to record ingest failure", "error", repoErr, "document_id", id)
		}
		if s.metrics != nil {
			s.metrics.RecordIngestFailure()
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordIngest(result.Document.ChunkCount)
	}
	return result, nil
}

func (s *Service) runPipeline(ctx context.Context, doc *Document, version int, pdfBytes []byte) (*IngestionResult, error) {
	id := doc.ID

	// Extract
	if err := s.repo.UpdateStatus(ctx, id, StatusExtracting); err != nil {
		return nil, err
	}
	start := time.Now()
	pages, err := s.extract(bytes.NewReader(pdfBytes))
	if err != nil {
		return nil, pipeline.FailStage(id, pipeline.StageExtracting, err)
	}
	doc.ExtractMs = time.Since(start).Milliseconds()
	doc.PageCount = len(pages)

	// Chunk
	if err := s.repo.UpdateStatus(ctx, id, StatusChunking); err != nil {
		return nil, err
	}
	start = time.Now()
	chunks, err := text.SplitPages(pages, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if err != nil {
		return nil, pipeline.FailStage(id, pipeline.StageChunking, err)
	}
	if len(chunks) == 0 {
		return nil, pipeline.FailStage(id, pipeline.StageChunking, pipeline.ErrEmptyContent)
	}
	doc.ChunkMs = time.Since(start).Milliseconds()

	// Embed
	if err := s.repo.UpdateStatus(ctx, id, StatusEmbedding); err != nil {
		return nil, err
	}
	start = time.Now()
	vectors, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return nil, pipeline.FailStage(id, pipeline.StageEmbedding, err)
	}
	doc.EmbedMs = time.Since(start).Milliseconds()

	// Index
	if err := s.repo.UpdateStatus(ctx, id, StatusIndexing); err != nil {
		return nil, err
	}
	start = time.Now()
	indexed := make([]weav.IndexedChunk, len(chunks))
	for i, c := range chunks {
		indexed[i] = weav.IndexedChunk{
			DocID:     id,
			Filename:  doc.Filename,
			Page:      c.Page,
			Index:     c.Index,
			Text:      c.Text,
			CharStart: c.CharStart,
			CharEnd:   c.CharEnd,
			Version:   version,
			Vector:    vectors[i],
		}
	}
	if err := s.withRetry(ctx, func() error {
		return s.index.UpsertChunks(ctx, indexed)
	}); err != nil {
		s.rollback(ctx, id, version)
		return nil, pipeline.FailStage(id, pipeline.StageIndexing, err)
	}
	doc.IndexMs = time.Since(start).Milliseconds()

	// Flip the current version, then purge superseded chunks. A purge failure
	// leaves stale versions behind but retrieval filters them out.
	doc.Version = version
	doc.ChunkCount = len(chunks)
	doc.Status = StatusCompleted
	doc.FailedStage = ""
	doc.FailureReason = ""
	if err := s.repo.Complete(ctx, doc); err != nil {
		s.rollback(ctx, id, version)
		return nil, pipeline.FailStage(id, pipeline.StageIndexing, err)
	}
	if err := s.index.DeleteVersionsBelow(ctx, id, version); err != nil {
		slog.Warn("failed to purge superseded chunk versions", "error", err, "document_id", id, "version", version)
	}

	slog.Info("document ingested",
		"document_id", id,
		"filename", doc.Filename,
		"pages", doc.PageCount,
		"chunks", doc.ChunkCount,
		"version", version,
	)
	return &IngestionResult{Document: doc}, nil
}

func (s *Service) embedChunks(ctx context.Context, chunks []text.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for startIdx := 0; startIdx < len(chunks); startIdx += embedBatchSize {
		end := startIdx + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-startIdx)
		for _, c := range chunks[startIdx:end] {
			texts = append(texts, c.Text)
		}

		var batch [][]float32
		err := s.withRetry(ctx, func() error {
			embedCtx := ctx
			if s.cfg.EmbedTimeout > 0 {
				var cancel context.CancelFunc
				embedCtx, cancel = context.WithTimeout(ctx, s.cfg.EmbedTimeout)
				defer cancel()
			}
			var embedErr error
			batch, embedErr = s.embedder.EmbedBatch(embedCtx, texts)
			return embedErr
		})
		if err != nil {
			return nil, err
		}
		if len(batch) != end-startIdx {
			return nil, fmt.Errorf("%w: expected %d vectors, got %d", pipeline.ErrEmbedding, end-startIdx, len(batch))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	delay := s.cfg.RetryDelay
	var err error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		err = fn()
		if err == nil || !pipeline.Retryable(err) {
			return err
		}
		if attempt == s.cfg.RetryAttempts {
			break
		}
		slog.Warn("retrying after transient failure", "error", err, "attempt", attempt, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return pipeline.WrapTimeout(ctx.Err(), pipeline.ErrTimeout)
		}
		delay *= 2
	}
	return err
}

// rollback removes the partially written new version so the previous version
// stays the only complete one.
func (s *Service) rollback(ctx context.Context, id string, version int) {
	if err := s.index.DeleteVersion(ctx, id, version); err != nil {
		slog.Error("failed to roll back partial chunk version", "error", err, "document_id", id, "version", version)
	}
}

func (s *Service) validate(id, filename string, pdfBytes []byte) error {
	if id == "" {
		return fmt.Errorf("%w: document id is required", pipeline.ErrValidation)
	}
	if filename == "" {
		return fmt.Errorf("%w: filename is required", pipeline.ErrValidation)
	}
	if len(pdfBytes) == 0 {
		return fmt.Errorf("%w: empty file", pipeline.ErrValidation)
	}
	if s.cfg.MaxUploadBytes > 0 && int64(len(pdfBytes)) > s.cfg.MaxUploadBytes {
		return fmt.Errorf("%w: file exceeds %d bytes", pipeline.ErrValidation, s.cfg.MaxUploadBytes)
	}
	if !bytes.HasPrefix(pdfBytes, pdfMagic) {
		return fmt.Errorf("%w: not a PDF file", pipeline.ErrValidation)
	}
	return nil
}

// Delete removes the document's chunks from the index and its catalog row.
// Unknown ids are a no-op.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.index.DeleteDocument(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Document, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	return s.repo.Get(ctx, id)
}

// CurrentVersions reports the live chunk version per document. Retrieval uses
// it to drop candidates from superseded or deleted versions.
func (s *Service) CurrentVersions(ctx context.Context) (map[string]int, error) {
	return s.repo.CurrentVersions(ctx)
}
