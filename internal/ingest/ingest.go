// Package ingest normalizes upstream timing payloads into the canonical
// [timing.Word]/[timing.Sentence] model and builds the immutable lookup
// index.
//
// Different transcription/TTS sources ship timing data in different shapes.
// Rather than letting the engine branch on source shape everywhere, ingest
// performs a tagged-variant normalization exactly once: every supported shape
// is converted to the flat word-record form, character offsets are reconciled
// against the canonical display text, and sentence segments are taken from
// the payload when supplied or inferred otherwise. The rest of the engine
// never sees the source shape again.
package ingest

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/voxalign/voxalign/pkg/timing"
)

// ErrUnknownShape reports a payload carrying none of the supported timing
// shapes.
var ErrUnknownShape = errors.New("ingest: payload has no recognized timing shape")

// ErrAmbiguousShape reports a payload carrying more than one timing shape.
// Exactly one variant must be populated.
var ErrAmbiguousShape = errors.New("ingest: payload mixes multiple timing shapes")

// Payload is the raw timing payload handed over by the host application.
// Exactly one of Words, Segments, or CharAlignment must be populated.
type Payload struct {
	// TotalDurationMs is the reported audio duration. Zero when the source
	// does not report one; used for sanity logging only.
	TotalDurationMs int64 `json:"total_duration_ms,omitempty"`

	// Words is the flat word-record shape: one record per spoken word with
	// millisecond intervals and optional character offsets and sentence
	// indices.
	Words []WordRecord `json:"words,omitempty"`

	// Segments is the nested shape used by whisper-style transcribers:
	// utterance segments with second-based float timestamps.
	Segments []Segment `json:"segments,omitempty"`

	// CharAlignment is the character-level shape used by TTS engines that
	// report per-character onsets and durations.
	CharAlignment *CharAlignment `json:"char_alignment,omitempty"`
}

// WordRecord is one word in the flat payload shape.
type WordRecord struct {
	Word    string `json:"word"`
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`

	// CharStart and CharEnd are optional offsets into the canonical text.
	// They are treated as unreliable and routed through the alignment
	// resolver.
	CharStart *int `json:"char_start,omitempty"`
	CharEnd   *int `json:"char_end,omitempty"`

	// SentenceIndex pre-groups words into sentences. Either every record
	// carries one or sentence boundaries are inferred for the whole
	// payload.
	SentenceIndex *int `json:"sentence_index,omitempty"`
}

// Segment is one utterance in the nested whisper-style shape. Timestamps are
// seconds.
type Segment struct {
	Start float64       `json:"start"`
	End   float64       `json:"end"`
	Words []SegmentWord `json:"words"`
}

// SegmentWord is one word inside a [Segment]. Timestamps are seconds.
type SegmentWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// CharAlignment is the character-level TTS shape: parallel arrays of
// characters, onset times, and durations.
type CharAlignment struct {
	Chars       []string `json:"chars"`
	CharStartMs []int64  `json:"char_start_ms"`
	CharDurMs   []int64  `json:"char_dur_ms"`
}

// words converts the populated payload variant into canonical word records,
// ordered as supplied. Character offsets that the shape cannot express are
// set to [timing.NoChar].
func (p *Payload) words() ([]timing.Word, error) {
	populated := 0
	if len(p.Words) > 0 {
		populated++
	}
	if len(p.Segments) > 0 {
		populated++
	}
	if p.CharAlignment != nil {
		populated++
	}
	switch {
	case populated == 0:
		return nil, nil // empty payload: valid, trivial
	case populated > 1:
		return nil, ErrAmbiguousShape
	}

	switch {
	case len(p.Words) > 0:
		return flatWords(p.Words), nil
	case len(p.Segments) > 0:
		return segmentWords(p.Segments), nil
	default:
		return charWords(p.CharAlignment)
	}
}

// sentenceIndices returns the supplied per-word sentence indices when every
// flat record carries one, or nil when segmentation must be inferred.
func (p *Payload) sentenceIndices() []int {
	if len(p.Words) == 0 {
		return nil
	}
	out := make([]int, len(p.Words))
	for i, w := range p.Words {
		if w.SentenceIndex == nil {
			return nil
		}
		out[i] = *w.SentenceIndex
	}
	return out
}

func flatWords(records []WordRecord) []timing.Word {
	words := make([]timing.Word, 0, len(records))
	for _, r := range records {
		w := timing.Word{
			Text:      r.Word,
			StartMs:   r.StartMs,
			EndMs:     r.EndMs,
			CharStart: timing.NoChar,
			CharEnd:   timing.NoChar,
		}
		if r.CharStart != nil && r.CharEnd != nil {
			w.CharStart = *r.CharStart
			w.CharEnd = *r.CharEnd
		}
		words = append(words, w)
	}
	return words
}

func segmentWords(segments []Segment) []timing.Word {
	var words []timing.Word
	for _, seg := range segments {
		for _, sw := range seg.Words {
			words = append(words, timing.Word{
				Text:      strings.TrimSpace(sw.Word),
				StartMs:   secondsToMs(sw.Start),
				EndMs:     secondsToMs(sw.End),
				CharStart: timing.NoChar,
				CharEnd:   timing.NoChar,
			})
		}
	}
	return words
}

func secondsToMs(s float64) int64 {
	return int64(s*1000 + 0.5)
}

// charWords groups the per-character alignment arrays into whitespace-
// separated words. The character stream is assumed to spell out the canonical
// text, so byte offsets accumulate directly.
func charWords(ca *CharAlignment) ([]timing.Word, error) {
	if len(ca.Chars) != len(ca.CharStartMs) || len(ca.Chars) != len(ca.CharDurMs) {
		return nil, fmt.Errorf("ingest: char alignment arrays disagree: %d chars, %d starts, %d durations",
			len(ca.Chars), len(ca.CharStartMs), len(ca.CharDurMs))
	}

	var words []timing.Word
	var cur *timing.Word
	var text strings.Builder
	offset := 0

	flush := func() {
		if cur != nil {
			cur.Text = text.String()
			words = append(words, *cur)
			cur = nil
			text.Reset()
		}
	}

	for i, ch := range ca.Chars {
		isSpace := ch != "" && unicode.IsSpace([]rune(ch)[0])
		if isSpace {
			flush()
			offset += len(ch)
			continue
		}

		startMs := ca.CharStartMs[i]
		endMs := startMs + max64(ca.CharDurMs[i], 0)
		if cur == nil {
			cur = &timing.Word{
				StartMs:   startMs,
				CharStart: offset,
				CharEnd:   offset,
			}
		}
		cur.EndMs = max64(cur.EndMs, endMs)
		text.WriteString(ch)
		offset += len(ch)
		cur.CharEnd = offset
	}
	flush()

	return words, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// sortWords stable-sorts words by start time so that sources with slightly
// out-of-order emission still index. Overlaps remain fatal downstream.
func sortWords(words []timing.Word) {
	sort.SliceStable(words, func(i, j int) bool {
		return words[i].StartMs < words[j].StartMs
	})
}

// sortWordsAndIndices stable-sorts words by start time with each word's
// supplied sentence index attached, so reordering cannot pair a word with
// another word's sentence. Reorders within a sentence stay valid; a word
// crossing a supplied boundary yields a non-monotonic index sequence that
// [groupSupplied] rejects.
func sortWordsAndIndices(words []timing.Word, indices []int) {
	type pair struct {
		word  timing.Word
		index int
	}
	pairs := make([]pair, len(words))
	for i := range words {
		pairs[i] = pair{words[i], indices[i]}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].word.StartMs < pairs[j].word.StartMs
	})
	for i := range pairs {
		words[i], indices[i] = pairs[i].word, pairs[i].index
	}
}

// groupSupplied builds sentence records from supplied per-word sentence
// indices. Indices must be non-decreasing, contiguous, and start at zero —
// anything else fails with [timing.ErrInvalidTimingData].
func groupSupplied(words []timing.Word, indices []int) ([]timing.Sentence, error) {
	var sentences []timing.Sentence
	start := 0

	for i := range words {
		if indices[i] != len(sentences) {
			return nil, fmt.Errorf("%w: word %d has sentence index %d, want %d or %d",
				timing.ErrInvalidTimingData, i, indices[i], len(sentences), len(sentences)+1)
		}
		last := i == len(words)-1
		if last || indices[i+1] != indices[i] {
			sentences = append(sentences, timing.BuildSentence(words, start, i, len(sentences)))
			start = i + 1
		}
	}
	return sentences, nil
}
