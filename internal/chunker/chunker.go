// Package chunker turns cleaned document text into bounded, overlapping
// segments sized for embedding.
package chunker

import (
	"regexp"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	symbolRe     = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?;:\-()'"]+`)
	boundaryRe   = regexp.MustCompile(`[.!?]\s+`)
)

// Clean normalizes extracted text: whitespace runs collapse to a single
// space, symbols outside the kept punctuation set are stripped, and
// repeated punctuation collapses to one occurrence.
func Clean(text string) string {
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = symbolRe.ReplaceAllString(text, "")
	text = collapsePunctuation(text)
	return strings.TrimSpace(text)
}

func collapsePunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune = -1
	for _, r := range s {
		if r == prev && isCollapsible(r) {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

func isCollapsible(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ';', ':':
		return true
	}
	return false
}

// Chunk splits cleaned text into segments of at most maxChars, seeding each
// new segment with a word-level tail of the previous one. The overlap is a
// word-count proxy for overlapChars (overlapChars/5 trailing words, only
// when the closed segment has more than 10 words). A single sentence longer
// than maxChars is emitted whole rather than split.
func Chunk(text string, maxChars, overlapChars int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sentences := splitSentences(text)

	var chunks []string
	current := ""
	for _, sentence := range sentences {
		if len(current)+len(sentence) > maxChars && current != "" {
			chunks = append(chunks, strings.TrimSpace(current))
			current = overlapTail(current, overlapChars) + " " + sentence
		} else {
			current += " " + sentence
		}
	}
	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}
	return chunks
}

// splitSentences breaks text at `.`, `!` or `?` followed by whitespace,
// keeping the terminator with its sentence.
func splitSentences(text string) []string {
	matches := boundaryRe.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}
	sentences := make([]string, 0, len(matches)+1)
	start := 0
	for _, m := range matches {
		sentences = append(sentences, text[start:m[0]+1])
		start = m[1]
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

func overlapTail(closed string, overlapChars int) string {
	words := strings.Fields(closed)
	if len(words) <= 10 {
		return ""
	}
	n := overlapChars / 5
	if n <= 0 {
		return ""
	}
	if n > len(words) {
		n = len(words)
	}
	return strings.Join(words[len(words)-n:], " ")
}
