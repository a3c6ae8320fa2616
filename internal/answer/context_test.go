package answer_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuchat/backend/internal/answer"
	"docuchat/backend/internal/retrieval"
)

func chunk(filename string, page int, text string, score float32) retrieval.Candidate {
	return retrieval.Candidate{Filename: filename, Page: page, Text: text, Score: score}
}

func TestBuildContext_TagsEveryBlock(t *testing.T) {
	ctx, included := answer.BuildContext([]retrieval.Candidate{
		chunk("manual.pdf", 2, "The warranty period is 24 months.", 0.9),
		chunk("manual.pdf", 5, "Returns require an RMA number.", 0.8),
	}, 6000)

	require.Len(t, included, 2)
	assert.Contains(t, ctx, "[Source: manual.pdf (Page 2)]")
	assert.Contains(t, ctx, "[Source: manual.pdf (Page 5)]")
	assert.Contains(t, ctx, "The warranty period is 24 months.")
	assert.Less(t, strings.Index(ctx, "warranty"), strings.Index(ctx, "RMA"))
}

func TestBuildContext_DropsOverflowingChunkWhole(t *testing.T) {
	big := strings.Repeat("x", 500)
	small := "short fact"

	ctx, included := answer.BuildContext([]retrieval.Candidate{
		chunk("a.pdf", 1, big, 0.9),
		chunk("a.pdf", 2, small, 0.8),
	}, 560)

	// First chunk fits, second would overflow and is skipped, not cut.
	require.Len(t, included, 1)
	assert.Equal(t, 1, included[0].Page)
	assert.NotContains(t, ctx, small)
	assert.LessOrEqual(t, len(ctx), 560)
}

func TestBuildContext_SkipsOversizedButKeepsLater(t *testing.T) {
	huge := strings.Repeat("y", 10000)

	_, included := answer.BuildContext([]retrieval.Candidate{
		chunk("a.pdf", 1, huge, 0.9),
		chunk("a.pdf", 2, "fits fine", 0.8),
	}, 200)

	require.Len(t, included, 1)
	assert.Equal(t, 2, included[0].Page)
}

func TestBuildContext_Empty(t *testing.T) {
	ctx, included := answer.BuildContext(nil, 6000)
	assert.Empty(t, ctx)
	assert.Empty(t, included)
}

func TestRenderPrompt_EmbedsContext(t *testing.T) {
	prompt := answer.RenderPrompt("[Source: a.pdf (Page 1)]\nfact")
	assert.Contains(t, prompt, "EXCERPTS")
	assert.Contains(t, prompt, "[Source: a.pdf (Page 1)]")
	assert.Contains(t, prompt, "ONLY the document excerpts")
}
