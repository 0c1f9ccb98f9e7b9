package services

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TextProcessor splits caption text into chunks a speech backend accepts in one call
type TextProcessor struct {
	AudioChunkSize int
}

// NewTextProcessor creates a new text processor
func NewTextProcessor(audioChunkSize int) *TextProcessor {
	if audioChunkSize <= 0 {
		audioChunkSize = 100
	}
	return &TextProcessor{AudioChunkSize: audioChunkSize}
}

// SplitForAudio splits text into chunks suitable for TTS
// - Maximum bytes per chunk defined by AudioChunkSize
// - Splits at sentence boundaries where possible
// - Long sentences are split at punctuation, then spaces, then hard at the limit
func (tp *TextProcessor) SplitForAudio(text string) []string {
	text = normalizeSpace(text)
	if text == "" {
		return []string{}
	}

	if len(text) <= tp.AudioChunkSize {
		return []string{text}
	}

	chunks := []string{}
	currentChunk := ""

	for _, sentence := range tp.splitIntoSentences(text) {
		potentialLen := len(currentChunk) + len(sentence)
		if currentChunk != "" {
			potentialLen++
		}

		if potentialLen <= tp.AudioChunkSize {
			if currentChunk != "" {
				currentChunk += " " + sentence
			} else {
				currentChunk = sentence
			}
			continue
		}

		if currentChunk != "" {
			chunks = append(chunks, currentChunk)
		}
		if len(sentence) > tp.AudioChunkSize {
			chunks = append(chunks, tp.smartSplit(sentence, tp.AudioChunkSize)...)
			currentChunk = ""
		} else {
			currentChunk = sentence
		}
	}

	if currentChunk != "" {
		chunks = append(chunks, currentChunk)
	}

	return chunks
}

// smartSplit splits a long text at the best boundary inside each window
func (tp *TextProcessor) smartSplit(text string, limit int) []string {
	var chunks []string
	remaining := text

	for len(remaining) > limit {
		// Only consider split points past a third of the window to avoid tiny chunks
		searchStart := limit / 3
		splitIdx := -1

		for _, punc := range []string{";", ":", ",", " - "} {
			if idx := strings.LastIndex(remaining[searchStart:limit], punc); idx != -1 {
				if actual := searchStart + idx + len(punc); actual > splitIdx {
					splitIdx = actual
				}
			}
		}

		if splitIdx == -1 {
			if lastSpace := strings.LastIndex(remaining[:limit], " "); lastSpace > 0 {
				splitIdx = lastSpace
			} else {
				splitIdx = runeBoundary(remaining, limit)
			}
		}

		if chunk := strings.TrimSpace(remaining[:splitIdx]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = strings.TrimSpace(remaining[splitIdx:])
	}

	if remaining != "" {
		chunks = append(chunks, remaining)
	}

	return chunks
}

// splitIntoSentences splits text into individual sentences
func (tp *TextProcessor) splitIntoSentences(text string) []string {
	sentences := []string{}
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)

		// Look ahead to avoid splitting on abbreviations and decimals
		if isSentenceEnding(r) && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			if sentence := strings.TrimSpace(current.String()); sentence != "" {
				sentences = append(sentences, sentence)
			}
			current.Reset()
		}
	}

	if sentence := strings.TrimSpace(current.String()); sentence != "" {
		sentences = append(sentences, sentence)
	}

	return sentences
}

func isSentenceEnding(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '。' || r == '！' || r == '？'
}

// runeBoundary moves idx back to the start of a UTF-8 sequence
func runeBoundary(s string, idx int) int {
	for idx > 0 && !utf8.RuneStart(s[idx]) {
		idx--
	}
	if idx == 0 {
		_, size := utf8.DecodeRuneInString(s)
		return size
	}
	return idx
}

func normalizeSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
