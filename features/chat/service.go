package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"docuchat/backend/internal/adapter/gemini"
	"docuchat/backend/internal/answer"
	"docuchat/backend/internal/metrics"
	"docuchat/backend/internal/pipeline"
	"docuchat/backend/internal/retrieval"
)

// NoEvidenceAnswer is returned without calling the generator when retrieval
// finds nothing.
const NoEvidenceAnswer = "I could not find this information in the uploaded documents. " +
	"Try uploading a relevant document or rephrasing the question."

type Retriever interface {
	Retrieve(ctx context.Context, question string) ([]retrieval.Candidate, error)
}

type Generator interface {
	Stream(ctx context.Context, system, user string) (<-chan gemini.StreamDelta, error)
}

type ServiceConfig struct {
	ContextBudget   int
	ThresholdHigh   float32
	ThresholdLow    float32
	GenerateTimeout time.Duration
}

type Service struct {
	retriever Retriever
	generator Generator
	metrics   *metrics.Collector
	cfg       ServiceConfig
}

func NewService(retriever Retriever, generator Generator, collector *metrics.Collector, cfg ServiceConfig) *Service {
	return &Service{retriever: retriever, generator: generator, metrics: collector, cfg: cfg}
}

// Ask answers the question against the indexed documents. The returned channel
// closes when the stream is finished. Cancelling ctx aborts generation.
func (s *Service) Ask(ctx context.Context, question string) (<-chan Event, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is required", pipeline.ErrValidation)
	}

	out := make(chan Event)
	go s.run(ctx, question, out)
	return out, nil
}

func (s *Service) run(ctx context.Context, question string, out chan<- Event) {
	defer close(out)
	start := time.Now()

	chunks, err := s.retriever.Retrieve(ctx, question)
	if err != nil {
		s.fail(ctx, out, pipeline.FailStage("", pipeline.StageRetrieval, err))
		return
	}
	retrievalMs := time.Since(start).Milliseconds()

	// Zero retrieved chunks and a context nothing fit into are the same case:
	// there is no evidence to ground an answer on, so the generator never runs.
	contextText, included := answer.BuildContext(chunks, s.cfg.ContextBudget)
	if len(included) == 0 {
		timings := &Timings{RetrievalMs: retrievalMs, TotalMs: time.Since(start).Milliseconds()}
		if !s.emit(ctx, out, Event{Type: EventContent, Content: NoEvidenceAnswer}) {
			return
		}
		if !s.emit(ctx, out, Event{Type: EventSources, Confidence: answer.ConfidenceNone, Citations: []answer.Citation{}}) {
			return
		}
		s.emit(ctx, out, Event{Type: EventDone, Timings: timings})
		if s.metrics != nil {
			s.metrics.RecordQuery(time.Duration(retrievalMs)*time.Millisecond, 0)
		}
		return
	}

	assessment := answer.Grade(included, s.cfg.ThresholdHigh, s.cfg.ThresholdLow)

	genCtx := ctx
	if s.cfg.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.cfg.GenerateTimeout)
		defer cancel()
	}

	genStart := time.Now()
	deltas, err := s.generator.Stream(genCtx, answer.RenderPrompt(contextText), question)
	if err != nil {
		s.fail(ctx, out, pipeline.FailStage("", pipeline.StageGeneration, err))
		return
	}

	for delta := range deltas {
		if delta.Err != nil {
			s.fail(ctx, out, pipeline.FailStage("", pipeline.StageGeneration, delta.Err))
			return
		}
		if !s.emit(ctx, out, Event{Type: EventContent, Content: delta.Text}) {
			return
		}
	}
	generationMs := time.Since(genStart).Milliseconds()

	if !s.emit(ctx, out, Event{
		Type:       EventSources,
		Confidence: assessment.Confidence,
		Citations:  assessment.Citations,
	}) {
		return
	}
	s.emit(ctx, out, Event{Type: EventDone, Timings: &Timings{
		RetrievalMs:  retrievalMs,
		GenerationMs: generationMs,
		TotalMs:      time.Since(start).Milliseconds(),
	}})

	if s.metrics != nil {
		s.metrics.RecordQuery(time.Duration(retrievalMs)*time.Millisecond, time.Duration(generationMs)*time.Millisecond)
	}
}

func (s *Service) fail(ctx context.Context, out chan<- Event, err error) {
	slog.Error("question answering failed", "error", err)
	if s.metrics != nil {
		s.metrics.RecordQueryFailure()
	}
	s.emit(ctx, out, Event{Type: EventError, Error: err.Error()})
}

// emit delivers one event unless the caller has gone away.
func (s *Service) emit(ctx context.Context, out chan<- Event, e Event) bool {
	select {
	case out <- e:
		return true
	case <-ctx.Done():
		return false
	}
}
