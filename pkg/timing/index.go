package timing

import (
	"fmt"
	"sort"
)

// Index is an immutable, sorted collection of word timings plus derived
// sentence timings. It owns no mutable state after construction and is safe
// for unsynchronized concurrent reads from any number of callers.
//
// Lookups never fail for out-of-range positions: playback position naturally
// drifts slightly outside [0, totalDurationMs] at boundaries, so range errors
// are policy-clamped instead of returned.
type Index struct {
	words     []Word
	sentences []Sentence
}

// NewIndex validates words and sentences and returns an immutable Index.
// The input slices are copied; callers may reuse them afterwards.
//
// Validation enforces the two structural invariants:
//
//   - words are sorted by StartMs ascending, each with StartMs < EndMs, and
//     non-overlapping (EndMs[i] <= StartMs[i+1]);
//   - sentence ranges partition the word array contiguously and
//     exhaustively.
//
// Violations return an error wrapping [ErrInvalidTimingData]. An empty word
// slice (with an empty sentence slice) is valid and yields an empty index —
// the valid-but-trivial case for an empty payload.
//
// Each word's Sentence field is (re)assigned from the sentence ranges during
// construction, so the sentence ranges are authoritative.
func NewIndex(words []Word, sentences []Sentence) (*Index, error) {
	if len(words) == 0 {
		if len(sentences) != 0 {
			return nil, fmt.Errorf("%w: %d sentences over zero words", ErrInvalidTimingData, len(sentences))
		}
		return &Index{}, nil
	}

	ws := make([]Word, len(words))
	copy(ws, words)

	for i, w := range ws {
		if w.StartMs >= w.EndMs {
			return nil, fmt.Errorf("%w: word %d %q has empty interval [%d, %d)",
				ErrInvalidTimingData, i, w.Text, w.StartMs, w.EndMs)
		}
		if i > 0 && ws[i-1].EndMs > w.StartMs {
			return nil, fmt.Errorf("%w: word %d %q starts at %dms before word %d ends at %dms",
				ErrInvalidTimingData, i, w.Text, w.StartMs, i-1, ws[i-1].EndMs)
		}
	}

	ss := make([]Sentence, len(sentences))
	copy(ss, sentences)

	next := 0
	for i, s := range ss {
		if s.WordStart != next {
			return nil, fmt.Errorf("%w: sentence %d starts at word %d, want %d",
				ErrInvalidTimingData, i, s.WordStart, next)
		}
		if s.WordEnd < s.WordStart || s.WordEnd >= len(ws) {
			return nil, fmt.Errorf("%w: sentence %d has word range [%d, %d] over %d words",
				ErrInvalidTimingData, i, s.WordStart, s.WordEnd, len(ws))
		}
		next = s.WordEnd + 1
		for j := s.WordStart; j <= s.WordEnd; j++ {
			ws[j].Sentence = i
		}
	}
	if next != len(ws) {
		return nil, fmt.Errorf("%w: sentences cover %d of %d words", ErrInvalidTimingData, next, len(ws))
	}

	return &Index{words: ws, sentences: ss}, nil
}

// Empty reports whether the index contains no words.
func (ix *Index) Empty() bool { return ix == nil || len(ix.words) == 0 }

// WordCount returns the number of words in the index.
func (ix *Index) WordCount() int { return len(ix.words) }

// SentenceCount returns the number of sentences in the index.
func (ix *Index) SentenceCount() int { return len(ix.sentences) }

// Word returns the word record at index i.
func (ix *Index) Word(i int) Word { return ix.words[i] }

// Sentence returns the sentence record at index i.
func (ix *Index) Sentence(i int) Sentence { return ix.sentences[i] }

// EndMs returns the end of the last word's interval, or 0 for an empty index.
func (ix *Index) EndMs() int64 {
	if ix.Empty() {
		return 0
	}
	return ix.words[len(ix.words)-1].EndMs
}

// ActiveWord returns the index of the word active at positionMs.
//
// Policy: the active word is the last word whose StartMs <= positionMs. This
// single rule yields interval containment when positionMs falls inside a
// word, the most recently finished word when positionMs falls in a gap, and
// the last word when positionMs runs past the end of the content. Positions
// before the first word clamp to index 0.
//
// Returns -1 for an empty index. O(log n).
func (ix *Index) ActiveWord(positionMs int64) int {
	if ix.Empty() {
		return -1
	}
	// sort.Search finds the first word starting strictly after positionMs;
	// the word before it is the active one.
	i := sort.Search(len(ix.words), func(i int) bool {
		return ix.words[i].StartMs > positionMs
	})
	if i == 0 {
		return 0
	}
	return i - 1
}

// ActiveSentence returns the sentence index of the word active at
// positionMs. Sentence ranges are monotonic in word index, so no independent
// search structure is needed. Returns -1 for an empty index.
func (ix *Index) ActiveSentence(positionMs int64) int {
	w := ix.ActiveWord(positionMs)
	if w < 0 {
		return -1
	}
	return ix.words[w].Sentence
}
