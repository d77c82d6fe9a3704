// Package timing defines the canonical word/sentence timing model and the
// immutable lookup index used to map playback positions to the active word
// and sentence.
//
// These types are the lingua franca between ingestion, segmentation, and
// position tracking. All millisecond values are relative to the start of the
// content item's audio.
package timing

import "errors"

// NoChar marks an absent or unresolvable character offset. Words carrying
// NoChar offsets are valid for position lookup but cannot be highlighted by
// character range.
const NoChar = -1

// ErrInvalidTimingData reports word intervals that are unordered or
// overlapping, or sentence ranges that fail to partition the word array.
// Index construction fails with this error; callers fall back to an
// "unavailable" state rather than guessing.
var ErrInvalidTimingData = errors.New("timing: invalid timing data")

// Word is one spoken word with its playback interval.
type Word struct {
	// Text is the word as it appears in the canonical display text.
	Text string

	// StartMs and EndMs bound the half-open interval [StartMs, EndMs)
	// during which the word is being spoken. StartMs < EndMs always holds
	// inside a validated Index.
	StartMs int64
	EndMs   int64

	// CharStart and CharEnd are byte offsets into the canonical display
	// text, half-open. Either may be NoChar when the upstream source
	// supplied no offsets or alignment failed for this word.
	CharStart int
	CharEnd   int

	// Sentence is the index of the sentence this word belongs to. Assigned
	// during index construction; every word in a validated Index belongs to
	// exactly one sentence.
	Sentence int
}

// Sentence is one supplied or inferred sentence-level segment.
type Sentence struct {
	// Text is the concatenation of the member words' text.
	Text string

	// StartMs is the first member word's StartMs; EndMs is the last member
	// word's EndMs.
	StartMs int64
	EndMs   int64

	// WordStart and WordEnd are inclusive bounds into the word array.
	WordStart int
	WordEnd   int

	// CharStart and CharEnd are derived from the member words' character
	// spans, best effort. NoChar when no member word carries offsets.
	CharStart int
	CharEnd   int
}

// Duration returns the length of the word's interval in milliseconds.
func (w Word) Duration() int64 { return w.EndMs - w.StartMs }

// Contains reports whether positionMs falls inside the word's half-open
// interval.
func (w Word) Contains(positionMs int64) bool {
	return positionMs >= w.StartMs && positionMs < w.EndMs
}
