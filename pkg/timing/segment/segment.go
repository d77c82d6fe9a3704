// Package segment infers sentence-level segments from a word-level timing
// sequence when the upstream source supplies no explicit segmentation.
//
// The inference is a deterministic single pass driven by two independent
// signals, either of which ends the current sentence:
//
//  1. Punctuation: the word ends with a terminal mark (after stripping
//     trailing quotes/brackets) and is not a known abbreviation.
//  2. Timing gap: the silence between this word's end and the next word's
//     start reaches the pause threshold. A long silence alone can end a
//     sentence, which keeps un-punctuated transcripts segmentable.
//
// This is intentionally NOT linguistic sentence parsing: the output is a
// deterministic, explainable approximation. Identical input and configuration
// always yield identical boundaries.
package segment

import (
	"strings"
	"unicode"

	"github.com/voxalign/voxalign/pkg/timing"
)

const defaultPauseThresholdMs = 350

// defaultTerminalMarks end a sentence when they close a word.
const defaultTerminalMarks = ".!?"

// defaultAbbreviations suppress the punctuation signal. Case-insensitive,
// compared with trailing periods stripped ("Dr." matches "dr"). Product
// tunable; override with [WithAbbreviations].
var defaultAbbreviations = []string{
	"mr", "mrs", "ms", "dr", "prof", "rev", "sr", "jr", "st",
	"vs", "etc", "approx", "dept", "est", "fig", "no",
	"e.g", "i.e", "u.s", "u.k",
}

// Option is a functional option for configuring an [Inferencer].
type Option func(*Inferencer)

// WithPauseThreshold sets the minimum inter-word silence, in milliseconds,
// that ends a sentence on its own. Default: 350.
func WithPauseThreshold(ms int64) Option {
	return func(inf *Inferencer) {
		inf.pauseThresholdMs = ms
	}
}

// WithTerminalMarks sets the characters that end a sentence when they close a
// word. Default: ".!?".
func WithTerminalMarks(marks string) Option {
	return func(inf *Inferencer) {
		inf.terminal = map[rune]bool{}
		for _, r := range marks {
			inf.terminal[r] = true
		}
	}
}

// WithAbbreviations replaces the abbreviation list. Entries are matched
// case-insensitively against words with trailing terminal punctuation
// stripped, so "Dr" suppresses a split after "Dr.".
func WithAbbreviations(abbrevs []string) Option {
	return func(inf *Inferencer) {
		inf.abbrev = make(map[string]struct{}, len(abbrevs))
		for _, a := range abbrevs {
			inf.abbrev[strings.ToLower(strings.TrimRight(a, "."))] = struct{}{}
		}
	}
}

// Inferencer derives sentence segments from word timings. It is read-only
// after construction and safe for concurrent use.
type Inferencer struct {
	pauseThresholdMs int64
	terminal         map[rune]bool
	abbrev           map[string]struct{}
}

// New returns an [Inferencer] with the supplied options applied over the
// defaults (350ms pause threshold, ".!?" terminal marks, a small English
// abbreviation list).
func New(opts ...Option) *Inferencer {
	inf := &Inferencer{pauseThresholdMs: defaultPauseThresholdMs}
	WithTerminalMarks(defaultTerminalMarks)(inf)
	WithAbbreviations(defaultAbbreviations)(inf)
	for _, o := range opts {
		o(inf)
	}
	return inf
}

// Infer groups words into sentences and assigns each word's Sentence field.
// Words must already be ordered by start time; timings are trusted, character
// offsets are optional.
//
// The trailing accumulator is always closed: truncated content with no final
// terminal condition still ends in a complete sentence. A run of words with
// no punctuation and no sufficient gaps yields one sentence spanning the
// whole input — the accepted degenerate case.
//
// O(n) in word count, single pass, no backtracking.
func (inf *Inferencer) Infer(words []timing.Word) []timing.Sentence {
	if len(words) == 0 {
		return nil
	}

	var sentences []timing.Sentence
	start := 0

	for i := range words {
		last := i == len(words)-1
		ends := last ||
			inf.endsOnPunctuation(words[i].Text) ||
			words[i+1].StartMs-words[i].EndMs >= inf.pauseThresholdMs
		if !ends {
			continue
		}

		sentences = append(sentences, timing.BuildSentence(words, start, i, len(sentences)))
		start = i + 1
	}

	return sentences
}

// endsOnPunctuation reports whether text triggers the punctuation signal:
// after stripping trailing quotation/bracket characters it ends with a
// terminal mark, and the word itself is not an abbreviation.
func (inf *Inferencer) endsOnPunctuation(text string) bool {
	trimmed := strings.TrimRightFunc(text, isClosingMark)
	if trimmed == "" {
		return false
	}

	runes := []rune(trimmed)
	if !inf.terminal[runes[len(runes)-1]] {
		return false
	}

	core := strings.ToLower(strings.TrimRight(trimmed, string(runes[len(runes)-1])))
	core = strings.TrimRight(core, ".")
	if core == "" {
		return false
	}
	if _, ok := inf.abbrev[core]; ok {
		return false
	}
	// Single-letter initials ("J." in "J. R. R. Tolkien") never end a sentence.
	if coreRunes := []rune(core); len(coreRunes) == 1 && unicode.IsLetter(coreRunes[0]) {
		return false
	}
	return true
}

// isClosingMark matches quotation and bracket characters that may trail a
// terminal mark ("word.")» etc.).
func isClosingMark(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '»', '”', '’':
		return true
	}
	return false
}

