package segment

import (
	"regexp"
	"strings"
)

// Options configures semantic-aware chunking used for retrieval.
type Options struct {
	// MaxLength is the hard per-chunk ceiling in runes.
	MaxLength int

	// MinLength merges chunks shorter than this into their
	// predecessor instead of letting them stand alone. 0 disables.
	MinLength int

	// Overlap appends this many runes of context from each
	// neighboring chunk, applied only after finalization. It does not
	// affect the greedy accumulation math, so overlapped chunks may
	// exceed MaxLength by up to 2*Overlap.
	Overlap int

	// PreserveParagraphs pre-splits on blank lines so no chunk spans
	// a paragraph break.
	PreserveParagraphs bool
}

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

// SplitSemantic chunks text with paragraph preservation, minimum
// length merging, and neighbor overlap on top of the core greedy
// algorithm.
func SplitSemantic(text string, opts Options) []string {
	maxLen := opts.MaxLength
	if maxLen < 1 {
		maxLen = 1
	}

	var chunks []string
	if opts.PreserveParagraphs {
		for _, para := range paragraphBreak.Split(text, -1) {
			chunks = append(chunks, Split(para, maxLen)...)
		}
	} else {
		chunks = Split(text, maxLen)
	}

	if opts.MinLength > 0 {
		chunks = mergeShort(chunks, opts.MinLength, maxLen)
	}

	if opts.Overlap > 0 {
		chunks = applyOverlap(chunks, opts.Overlap)
	}

	return chunks
}

// mergeShort folds chunks below minLen into the previous chunk, but
// never past the hard ceiling.
func mergeShort(chunks []string, minLen, maxLen int) []string {
	var merged []string
	for _, c := range chunks {
		if len(merged) > 0 && runeLen(c) < minLen {
			prev := merged[len(merged)-1]
			if runeLen(prev)+1+runeLen(c) <= maxLen {
				merged[len(merged)-1] = prev + " " + c
				continue
			}
		}
		merged = append(merged, c)
	}
	return merged
}

// applyOverlap extends each chunk with trailing context from the
// previous chunk and leading context from the next one.
func applyOverlap(chunks []string, overlap int) []string {
	if len(chunks) < 2 {
		return chunks
	}

	out := make([]string, len(chunks))
	for i, c := range chunks {
		var b strings.Builder
		if i > 0 {
			b.WriteString(tailRunes(chunks[i-1], overlap))
			b.WriteByte(' ')
		}
		b.WriteString(c)
		if i < len(chunks)-1 {
			b.WriteByte(' ')
			b.WriteString(headRunes(chunks[i+1], overlap))
		}
		out[i] = b.String()
	}
	return out
}

func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

func headRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
