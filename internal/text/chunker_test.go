package text

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuchat/backend/internal/pdf"
	"docuchat/backend/internal/pipeline"
)

func pagesFrom(texts ...string) []pdf.Page {
	pages := make([]pdf.Page, len(texts))
	for i, t := range texts {
		pages[i] = pdf.Page{Number: i + 1, Text: t}
	}
	return pages
}

func TestSplitPages_Validation(t *testing.T) {
	_, err := SplitPages(pagesFrom("x"), 0, 0)
	assert.True(t, errors.Is(err, pipeline.ErrValidation))

	_, err = SplitPages(pagesFrom("x"), 100, 100)
	assert.True(t, errors.Is(err, pipeline.ErrValidation))

	_, err = SplitPages(pagesFrom("x"), 100, -1)
	assert.True(t, errors.Is(err, pipeline.ErrValidation))
}

func TestSplitPages_Empty(t *testing.T) {
	chunks, err := SplitPages(nil, 100, 20)
	assert.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitPages_SinglePage(t *testing.T) {
	chunks, err := SplitPages(pagesFrom("abcdefghij"), 4, 1)
	require.NoError(t, err)

	// Window 4, step 3: [0,4) [3,7) [6,10).
	require.Len(t, chunks, 3)
	assert.Equal(t, "abcd", chunks[0].Text)
	assert.Equal(t, "defg", chunks[1].Text)
	assert.Equal(t, "ghij", chunks[2].Text)
	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, 6, chunks[2].CharStart)
	assert.Equal(t, 10, chunks[2].CharEnd)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, 1, c.Page)
	}
}

func TestSplitPages_OverlapRegion(t *testing.T) {
	chunks, err := SplitPages(pagesFrom("abcdefghijklmnop"), 8, 4)
	require.NoError(t, err)
	require.True(t, len(chunks) >= 2)

	// Consecutive chunks share exactly the configured overlap.
	first := []rune(chunks[0].Text)
	second := []rune(chunks[1].Text)
	assert.Equal(t, string(first[len(first)-4:]), string(second[:4]))
}

func TestSplitPages_TrailingSliverMerged(t *testing.T) {
	// 101 runes with size 100: the final 1-rune window is below size/10 and
	// must fold into the previous chunk, never appear as its own chunk.
	input := strings.Repeat("a", 101)
	chunks, err := SplitPages(pagesFrom(input), 100, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 101, chunks[0].CharEnd)
	assert.Equal(t, input, chunks[0].Text)
}

func TestSplitPages_ShortPageKept(t *testing.T) {
	// A page shorter than size/10 has no previous chunk to fold into and must
	// still come through as its own chunk.
	chunks, err := SplitPages(pagesFrom(strings.Repeat("a", 150), "ok"), 100, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "ok", chunks[2].Text)
	assert.Equal(t, 2, chunks[2].Page)
}

func TestSplitPages_PageAttributionExact(t *testing.T) {
	// Pages chunk independently, so a chunk's text always comes from the page
	// it is attributed to and never straddles a boundary.
	pages := pagesFrom(strings.Repeat("a", 25), strings.Repeat("b", 25), strings.Repeat("c", 7))
	chunks, err := SplitPages(pages, 10, 2)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		want := strings.Repeat(string(rune('a'+c.Page-1)), len(c.Text))
		assert.Equal(t, want, c.Text, "chunk %d holds text from another page", c.Index)
		assert.LessOrEqual(t, c.CharEnd, len([]rune(pages[c.Page-1].Text)))
	}
}

func TestSplitPages_AnswerSpanCitesItsPage(t *testing.T) {
	// The sentence lives at the start of page 2, right after a long page 1.
	// Its chunk must be attributed to page 2, not to the page the window
	// would have started on under document-wide chunking.
	pages := pagesFrom(
		strings.Repeat("intro text ", 30),
		"The warranty period is 24 months. "+strings.Repeat("terms ", 20),
	)
	chunks, err := SplitPages(pages, 200, 40)
	require.NoError(t, err)

	found := false
	for _, c := range chunks {
		if strings.Contains(c.Text, "The warranty period is 24 months.") {
			found = true
			assert.Equal(t, 2, c.Page)
		}
	}
	assert.True(t, found)
}

func TestSplitPages_IndexesAreDocumentWide(t *testing.T) {
	chunks, err := SplitPages(pagesFrom(strings.Repeat("x", 30), strings.Repeat("y", 30)), 10, 0)
	require.NoError(t, err)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestSplitPages_Deterministic(t *testing.T) {
	pages := pagesFrom(
		"The quick brown fox jumps over the lazy dog. "+strings.Repeat("lorem ipsum ", 40),
		strings.Repeat("dolor sit amet ", 30),
	)

	a, err := SplitPages(pages, 120, 30)
	require.NoError(t, err)
	b, err := SplitPages(pages, 120, 30)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSplitPages_Coverage(t *testing.T) {
	// Within each page, chunk spans minus overlaps must reconstruct the page
	// text with no gaps.
	pages := pagesFrom(strings.Repeat("0123456789", 13), strings.Repeat("abcde", 11))

	chunks, err := SplitPages(pages, 50, 10)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, p := range pages {
		var b strings.Builder
		prevEnd := 0
		for _, c := range chunks {
			if c.Page != p.Number {
				continue
			}
			require.LessOrEqual(t, c.CharStart, prevEnd, "gap before chunk %d", c.Index)
			text := []rune(c.Text)
			b.WriteString(string(text[prevEnd-c.CharStart:]))
			prevEnd = c.CharEnd
		}
		assert.Equal(t, p.Text, b.String())
	}
}

func TestSplitPages_RuneSafety(t *testing.T) {
	chunks, err := SplitPages(pagesFrom("héllo wörld ünïcode téxt hère"), 10, 2)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.True(t, strings.ToValidUTF8(c.Text, "") == c.Text, "chunk %d split inside a rune", c.Index)
	}
}
