package services

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSplitForAudio(t *testing.T) {
	tp := NewTextProcessor(100)

	tests := []struct {
		name      string
		input     string
		minChunks int
		maxChunks int
	}{
		{
			name:      "Empty text",
			input:     "   ",
			minChunks: 0,
			maxChunks: 0,
		},
		{
			name:      "Short text",
			input:     "Hello world",
			minChunks: 1,
			maxChunks: 1,
		},
		{
			name: "Long text with sentences",
			input: "This is the first sentence. This is the second sentence. This is the third sentence. " +
				"This is the fourth sentence. This is the fifth sentence.",
			minChunks: 2,
			maxChunks: 4,
		},
		{
			name:      "Single long sentence without punctuation",
			input:     strings.Repeat("word ", 60),
			minChunks: 3,
			maxChunks: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := tp.SplitForAudio(tt.input)
			assert.GreaterOrEqual(t, len(chunks), tt.minChunks)
			assert.LessOrEqual(t, len(chunks), tt.maxChunks)

			for i, chunk := range chunks {
				assert.LessOrEqual(t, len(chunk), tp.AudioChunkSize, "chunk %d too long", i)
				assert.NotEmpty(t, chunk)
			}
		})
	}
}

func TestSplitForAudioKeepsAllWords(t *testing.T) {
	tp := NewTextProcessor(40)
	input := "Alpha beta gamma. Delta epsilon, zeta eta theta iota; kappa lambda mu nu xi omicron pi rho."

	chunks := tp.SplitForAudio(input)
	assert.Equal(t, strings.Fields(input), strings.Fields(strings.Join(chunks, " ")))
}

func TestSplitForAudioMultibyte(t *testing.T) {
	tp := NewTextProcessor(10)
	input := strings.Repeat("ééééé", 6)

	chunks := tp.SplitForAudio(input)
	assert.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk))
		assert.LessOrEqual(t, len(chunk), 10)
	}
	assert.Equal(t, input, strings.Join(chunks, ""))
}

func TestSplitIntoSentences(t *testing.T) {
	tp := NewTextProcessor(100)

	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "Simple sentences",
			input:    "First sentence. Second sentence.",
			expected: []string{"First sentence.", "Second sentence."},
		},
		{
			name:     "Multiple punctuation",
			input:    "Question? Exclamation! Statement.",
			expected: []string{"Question?", "Exclamation!", "Statement."},
		},
		{
			name:     "Decimal is not a boundary",
			input:    "Version 2.5 is out. Update now",
			expected: []string{"Version 2.5 is out.", "Update now"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tp.splitIntoSentences(tt.input))
		})
	}
}
