// Package chunker splits raw document text into retrieval-sized chunks.
//
// Splitting is sentence-aware: a chunk ends at the earliest sentence
// terminator that fits the size budget, a tolerance window absorbs slightly
// oversized sentences, and sentences that exceed budget plus tolerance are
// cut at the nearest preceding whitespace, or hard-cut as a last resort.
package chunker

import (
	"strings"
	"unicode"
)

// minLookback is the smallest whitespace lookback window used when a
// sentence must be split mid-way.
const minLookback = 10

// Split breaks text into ordered, trimmed, non-blank chunks.
//
// targetSize is the chunk size budget in runes. tolerance widens the budget
// for a sentence that slightly overflows it, so the sentence is kept whole
// instead of being split awkwardly. Negative tolerance is treated as zero.
//
// Returns nil when text is blank or targetSize is not positive.
func Split(text string, targetSize, tolerance int) []string {
	if strings.TrimSpace(text) == "" || targetSize <= 0 {
		return nil
	}
	if tolerance < 0 {
		tolerance = 0
	}

	runes := []rune(text)
	n := len(runes)

	lookback := targetSize / 5
	if lookback < minLookback {
		lookback = minLookback
	}

	var chunks []string
	start := 0
	for start < n {
		boundary := sentenceEnd(runes, start)

		var end int
		if boundary-start <= targetSize+tolerance {
			end = boundary
		} else {
			// Sentence too long even with tolerance: cut at the nearest
			// whitespace before the budget, or hard-cut at the budget.
			ideal := start + targetSize
			end = ideal
			low := ideal - lookback
			if low < start {
				low = start
			}
			for i := ideal - 1; i >= low; i-- {
				if unicode.IsSpace(runes[i]) {
					end = i + 1
					break
				}
			}
		}

		if end > n {
			end = n
		}
		if end <= start {
			// Guarantees forward progress on pathological input.
			end = start + 1
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		start = end
	}
	return chunks
}

// sentenceEnd returns the index one past the end of the sentence starting
// at start. The sentence ends at the earliest terminator (. ! ?) followed
// by whitespace, end of text, or another terminator. A period flanked by
// letters on both sides is treated as part of an acronym, not a boundary.
// Runs of consecutive terminators are absorbed into one boundary. When no
// terminator qualifies the sentence runs to the end of the text.
func sentenceEnd(runes []rune, start int) int {
	n := len(runes)
	for i := start; i < n; i++ {
		if !isTerminator(runes[i]) {
			continue
		}

		atEnd := i+1 >= n
		endContext := atEnd || unicode.IsSpace(runes[i+1]) || isTerminator(runes[i+1])
		if !endContext {
			continue
		}

		if runes[i] == '.' && i > start && !atEnd &&
			unicode.IsLetter(runes[i-1]) && unicode.IsLetter(runes[i+1]) {
			continue
		}

		// Absorb runs like "...?" into a single boundary.
		end := i
		for end+1 < n && isTerminator(runes[end+1]) {
			end++
		}
		return end + 1
	}
	return n
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
