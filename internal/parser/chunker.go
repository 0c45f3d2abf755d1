package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"document-chat/internal/models"
)

// sentence boundary: terminal punctuation followed by whitespace
var sentenceBoundaryRe = regexp.MustCompile(`[.!?]\s+`)

// SplitSentences splits text after '.', '!' or '?' followed by whitespace.
// Sentences are trimmed and empty ones dropped.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	for _, loc := range sentenceBoundaryRe.FindAllStringIndex(text, -1) {
		sentences = appendSentence(sentences, text[start:loc[0]+1])
		start = loc[1]
	}
	return appendSentence(sentences, text[start:])
}

func appendSentence(sentences []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return sentences
	}
	return append(sentences, s)
}

// ChunkText groups sentences into chunks of roughly maxChunkChars characters,
// counted in runes.
//
// When the next sentence would push the buffer past maxChunkChars the buffer is
// emitted and the next one starts with its last overlapSentences sentences plus
// the sentence that overflowed. A sentence longer than maxChunkChars is never cut,
// so the limit is a target rather than a cap.
func ChunkText(text string, maxChunkChars, overlapSentences int) []string {
	if maxChunkChars <= 0 {
		maxChunkChars = models.DefaultChunkSize
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}

	var (
		chunks []string
		buffer []string
		length int
	)
	for _, sentence := range SplitSentences(text) {
		if length+utf8.RuneCountInString(sentence) > maxChunkChars && len(buffer) > 0 {
			chunks = append(chunks, strings.Join(buffer, " "))

			keep := min(overlapSentences, len(buffer))
			next := make([]string, 0, keep+1)
			next = append(next, buffer[len(buffer)-keep:]...)
			buffer = append(next, sentence)
			length = sentencesLen(buffer)
			continue
		}
		buffer = append(buffer, sentence)
		length += utf8.RuneCountInString(sentence)
	}
	if len(buffer) > 0 {
		chunks = append(chunks, strings.Join(buffer, " "))
	}
	return chunks
}

// GetChunks chunks text and assigns sequential ordinals starting at 0.
func GetChunks(text string, maxChunkChars, overlapSentences int) []models.Chunk {
	var chunks []models.Chunk
	for i, content := range ChunkText(text, maxChunkChars, overlapSentences) {
		chunks = append(chunks, models.Chunk{
			Content:    content,
			ChunkIndex: i,
		})
	}
	return chunks
}

// ReconstructSentences drops the overlap window from consecutive chunks and
// returns the original sentence sequence.
func ReconstructSentences(chunks []string, overlapSentences int) []string {
	var (
		sentences []string
		prevCount int
	)
	for i, chunk := range chunks {
		current := SplitSentences(chunk)
		skip := 0
		if i > 0 {
			skip = min(overlapSentences, prevCount)
		}
		if skip < len(current) {
			sentences = append(sentences, current[skip:]...)
		}
		prevCount = len(current)
	}
	return sentences
}

func sentencesLen(sentences []string) int {
	n := 0
	for _, s := range sentences {
		n += utf8.RuneCountInString(s)
	}
	return n
}
