// Package sentence splits document text into speakable sentences and maps
// sentences back to positions in the source text.
package sentence

import (
	"regexp"
	"strings"
)

var (
	// A sentence is a run of non-terminal characters followed by terminal
	// punctuation. Asterisks are excluded so emphasis markers never leak
	// into a sentence body.
	boundaryPattern = regexp.MustCompile(`[^.!?*]+[.!?]+`)

	// Leading list and heading markers stripped during cleaning.
	leadingMarkerPattern = regexp.MustCompile(`^[-#\s]+`)
)

// Segment splits text into cleaned sentences in order of appearance.
// When no terminal punctuation is found the whole input is returned as a
// single sentence. Empty input yields a single empty sentence; callers are
// expected to tolerate empty sentences.
func Segment(text string) []string {
	matches := boundaryPattern.FindAllString(text, -1)
	if matches == nil {
		return []string{Clean(text)}
	}

	sentences := make([]string, 0, len(matches))
	for _, m := range matches {
		sentences = append(sentences, Clean(m))
	}
	return sentences
}

// Clean strips leading list/heading markers and surrounding whitespace.
// Idempotent on already-clean input.
func Clean(s string) string {
	return strings.TrimSpace(leadingMarkerPattern.ReplaceAllString(s, ""))
}

// Position locates a cleaned sentence within the source text, returning
// byte offsets suitable for a highlight range. Best effort: the first
// occurrence wins.
func Position(text, sentence string) (start, end int, ok bool) {
	cleaned := Clean(sentence)
	if cleaned == "" {
		return 0, 0, false
	}
	idx := strings.Index(text, cleaned)
	if idx < 0 {
		return 0, 0, false
	}
	return idx, idx + len(cleaned), true
}

// IndexAtOffset returns the index of the sentence containing the given
// byte offset in text. When the offset falls between sentences the last
// sentence starting before it is returned, so playback picks up from the
// reader's position rather than skipping ahead.
func IndexAtOffset(text string, sentences []string, offset int) int {
	index := 0
	for i, s := range sentences {
		start, end, ok := Position(text, s)
		if ok && offset >= start && offset <= end {
			return i
		}
		if ok && start > offset {
			break
		}
		index = i
	}
	return index
}
