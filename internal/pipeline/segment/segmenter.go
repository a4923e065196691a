// Package segment splits transcript text into bounded-length chunks.
// Chunk lengths are measured in runes and the configured maximum is a
// hard ceiling: even a single token longer than the limit is sliced.
package segment

import (
	"fmt"
	"strings"
	"unicode"
)

// Split chunks text into pieces of at most maxLen runes, preferring
// sentence boundaries, falling back to word boundaries, falling back
// to raw slicing. Returned chunks are trimmed and non-empty.
func Split(text string, maxLen int) []string {
	if maxLen < 1 {
		maxLen = 1
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		piece := strings.TrimSpace(cur.String())
		if piece != "" {
			chunks = append(chunks, piece)
		}
		cur.Reset()
		curLen = 0
	}

	for _, sentence := range splitSentences(text) {
		sentLen := runeLen(sentence)

		if sentLen > maxLen {
			// A single sentence cannot fit. Flush what we have and
			// break the sentence down at word boundaries.
			flush()
			chunks = append(chunks, splitWords(sentence, maxLen)...)
			continue
		}

		// +1 accounts for the joining space.
		if curLen > 0 && curLen+1+sentLen > maxLen {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(sentence)
		curLen += sentLen
	}
	flush()

	return chunks
}

// splitWords greedily packs whitespace-separated words into chunks.
// A word longer than maxLen is sliced at exact rune boundaries; this
// is the only path that guarantees the ceiling for input with no
// natural boundary at all.
func splitWords(text string, maxLen int) []string {
	var chunks []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		piece := strings.TrimSpace(cur.String())
		if piece != "" {
			chunks = append(chunks, piece)
		}
		cur.Reset()
		curLen = 0
	}

	for _, word := range strings.Fields(text) {
		wordLen := runeLen(word)

		if wordLen > maxLen {
			flush()
			chunks = append(chunks, sliceRunes(word, maxLen)...)
			continue
		}

		if curLen > 0 && curLen+1+wordLen > maxLen {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(word)
		curLen += wordLen
	}
	flush()

	return chunks
}

// sliceRunes cuts s into consecutive pieces of exactly maxLen runes
// (the last piece may be shorter).
func sliceRunes(s string, maxLen int) []string {
	runes := []rune(s)
	var pieces []string
	for start := 0; start < len(runes); start += maxLen {
		end := start + maxLen
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

// splitSentences breaks text on runs of sentence-ending punctuation
// followed by whitespace, keeping the punctuation with its sentence.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isSentenceEnd(runes[i]) {
			continue
		}
		// Consume the full punctuation run ("?!", "...").
		j := i
		for j+1 < len(runes) && isSentenceEnd(runes[j+1]) {
			j++
		}
		// Boundary only when whitespace (or end of text) follows.
		if j+1 < len(runes) && !unicode.IsSpace(runes[j+1]) {
			i = j
			continue
		}
		s := strings.TrimSpace(string(runes[start : j+1]))
		if s != "" {
			sentences = append(sentences, s)
		}
		start = j + 1
		i = j
	}

	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func runeLen(s string) int {
	return len([]rune(s))
}

// Validate checks the hard ceiling over produced chunks. A violation
// here is a logic defect in the splitter, not bad input.
func Validate(chunks []string, maxLen int) error {
	if maxLen < 1 {
		maxLen = 1
	}
	for i, c := range chunks {
		if n := runeLen(c); n > maxLen {
			return fmt.Errorf("chunk %d has length %d exceeding limit %d", i, n, maxLen)
		}
	}
	return nil
}
