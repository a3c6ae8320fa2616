package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds shared by the ingestion and query pipelines. Callers match with
// errors.Is to decide between retry, reject and fail-document handling.
var (
	ErrExtraction   = errors.New("pdf extraction failed")
	ErrEmptyContent = errors.New("no extractable text (document may be an image-only scan without an OCR layer)")
	ErrEmbedding    = errors.New("embedding backend unavailable")
	ErrGeneration   = errors.New("generation backend unavailable")
	ErrVectorIndex  = errors.New("vector index failure")
	ErrValidation   = errors.New("invalid input")
	ErrTimeout      = errors.New("external call timed out")
)

// Pipeline stages, recorded on documents when a stage fails.
const (
	StageExtracting = "extracting"
	StageChunking   = "chunking"
	StageEmbedding  = "embedding"
	StageIndexing   = "indexing"
	StageRetrieval  = "retrieval"
	StageGeneration = "generation"
)

// StageError carries enough context for audit logging at the boundary: which
// document, which stage, and the underlying cause.
type StageError struct {
	DocumentID string
	Stage      string
	Err        error
}

func (e *StageError) Error() string {
	if e.DocumentID == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("document %s: %s: %v", e.DocumentID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailStage wraps err with document and stage context.
func FailStage(docID, stage string, err error) error {
	return &StageError{DocumentID: docID, Stage: stage, Err: err}
}

// WrapTimeout maps context deadline errors onto ErrTimeout while keeping the
// backend error kind, so a timed-out embedding call matches both ErrEmbedding
// and ErrTimeout.
func WrapTimeout(err, kind error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %w", kind, ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Retryable reports whether an ingestion stage failure is worth retrying.
// Backend unavailability and timeouts are transient; everything else is fatal
// for the document.
func Retryable(err error) bool {
	return errors.Is(err, ErrEmbedding) || errors.Is(err, ErrTimeout)
}
