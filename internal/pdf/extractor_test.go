package pdf

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"docuchat/backend/internal/pipeline"
)

func TestExtractPages_CorruptInput(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"Empty", nil},
		{"Garbage", []byte("this is not a pdf")},
		{"Truncated Header", []byte("%PDF-1.7\n")},
		{"Binary Noise", bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := ExtractPages(bytes.NewReader(tt.input))
			assert.Nil(t, pages)
			assert.Error(t, err)
			assert.True(t, errors.Is(err, pipeline.ErrExtraction), "want ErrExtraction, got %v", err)
		})
	}
}

func TestExtractPages_DistinctErrorKinds(t *testing.T) {
	// Corrupt input must never be reported as empty content: callers suggest
	// OCR for the latter and re-upload for the former.
	_, err := ExtractPages(strings.NewReader("garbage"))
	assert.False(t, errors.Is(err, pipeline.ErrEmptyContent))
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "Collapses Internal Whitespace",
			in:   "The  warranty\tperiod   is 24 months.",
			want: "The warranty period is 24 months.",
		},
		{
			name: "Drops Bare Page Numbers",
			in:   "Intro text\n42\nMore text",
			want: "Intro text\nMore text",
		},
		{
			name: "Keeps Long Numbers",
			in:   "Serial\n123456\nEnd",
			want: "Serial\n123456\nEnd",
		},
		{
			name: "Drops Blank Lines",
			in:   "a\n\n   \nb",
			want: "a\nb",
		},
		{
			name: "Empty Input",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}
