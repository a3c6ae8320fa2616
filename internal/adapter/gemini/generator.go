package gemini

import (
	"context"
	"errors"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"docuchat/backend/internal/pipeline"
)

// StreamDelta is one increment of a streamed generation: either a piece of
// answer text or a terminal error. The delta channel closes after the last
// delta; a delta with Err set is always the final one.
type StreamDelta struct {
	Text string
	Err  error
}

// Generator streams grounded answers from a Gemini chat model.
type Generator struct {
	client *genai.Client
	model  string
}

func NewGenerator(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Generator, error) {
	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Generator{client: client, model: model}, nil
}

// Stream starts a generation with fixed system instructions and the assembled
// user prompt, emitting content deltas until the backend finishes. Cancelling
// ctx stops consumption of backend output promptly; the channel then closes
// after a final error delta.
func (g *Generator) Stream(ctx context.Context, system, user string) (<-chan StreamDelta, error) {
	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}

	iter := model.GenerateContentStream(ctx, genai.Text(user))
	out := make(chan StreamDelta)

	go func() {
		defer close(out)
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				select {
				case out <- StreamDelta{Err: pipeline.WrapTimeout(err, pipeline.ErrGeneration)}:
				case <-ctx.Done():
				}
				return
			}
			for _, text := range responseText(resp) {
				select {
				case out <- StreamDelta{Text: text}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (g *Generator) Close() error {
	return g.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) []string {
	var parts []string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok && text != "" {
				parts = append(parts, string(text))
			}
		}
	}
	return parts
}
