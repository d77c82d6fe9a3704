// Package align reconciles character-offset metadata reported by upstream
// transcription/TTS sources against the canonical display text.
//
// Upstream offsets disagree with the display text in a handful of recurring
// ways: inclusive instead of exclusive end indices, 0-based vs. 1-based
// indexing, and small whitespace/punctuation accounting drift. The resolver
// tries an ordered list of correction strategies and accepts the first exact
// match. The ordering is policy, not an optimization detail — it biases
// toward the cheapest, most common corrections and keeps each strategy
// auditable and testable on its own.
//
// The resolver never fabricates a span: when no strategy produces an exact
// match within the bounded search window, the result is explicitly
// unresolved and the caller degrades that word to unhighlightable.
package align

// defaultSearchRadius bounds the window-scan strategy around the reported
// start offset.
const defaultSearchRadius = 5

// Strategy identifies which correction produced a resolved span.
type Strategy int

const (
	// StrategyNone marks an unresolved result.
	StrategyNone Strategy = iota

	// StrategyExact accepted the reported span unchanged.
	StrategyExact

	// StrategyInclusiveEnd reinterpreted the reported end as the index of
	// the last character instead of one-past-the-end.
	StrategyInclusiveEnd

	// StrategyIndexShift shifted both offsets by ±1 to absorb a 0-based vs.
	// 1-based indexing mismatch.
	StrategyIndexShift

	// StrategyWindowScan found the word within the bounded search window
	// around the reported start.
	StrategyWindowScan
)

// String returns the strategy name as used in metrics labels.
func (s Strategy) String() string {
	switch s {
	case StrategyExact:
		return "exact"
	case StrategyInclusiveEnd:
		return "inclusive_end"
	case StrategyIndexShift:
		return "index_shift"
	case StrategyWindowScan:
		return "window_scan"
	default:
		return "unresolved"
	}
}

// Result is the outcome of a span resolution. When Resolved is false, Start
// and End are meaningless and the word must be treated as unhighlightable.
type Result struct {
	// Start and End are the corrected half-open byte offsets into the
	// canonical text.
	Start int
	End   int

	// Strategy records which correction succeeded.
	Strategy Strategy

	// Resolved reports whether any strategy produced an exact match.
	Resolved bool
}

// Option is a functional option for configuring a [Resolver].
type Option func(*Resolver)

// WithSearchRadius sets the maximum distance from the reported start offset
// scanned by the window strategy. Default: 5.
func WithSearchRadius(radius int) Option {
	return func(r *Resolver) {
		r.radius = radius
	}
}

// Resolver corrects reported character spans against canonical text. It is
// read-only after construction and safe for concurrent use.
type Resolver struct {
	radius int
}

// New returns a [Resolver] with the supplied options applied.
func New(opts ...Option) *Resolver {
	r := &Resolver{radius: defaultSearchRadius}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve finds the [start, end) slice of canonical that equals word,
// starting from the reported offsets. Strategies are tried in order; the
// first exact match wins:
//
//  1. the reported span as-is (exclusive end);
//  2. end+1 (upstream reported the last-character index);
//  3. both offsets shifted by -1 then +1, each with both end conventions;
//  4. a scan of start offsets within ±radius of the reported start;
//  5. unresolved.
//
// Candidate spans outside the text bounds are rejected before comparison, so
// out-of-range reports never panic. If the reported span already matches,
// it is returned unchanged — resolution is idempotent for correct input.
func (r *Resolver) Resolve(word string, reportedStart, reportedEnd int, canonical string) Result {
	if word == "" {
		return Result{Strategy: StrategyNone}
	}

	if match(canonical, reportedStart, reportedEnd, word) {
		return Result{Start: reportedStart, End: reportedEnd, Strategy: StrategyExact, Resolved: true}
	}

	if match(canonical, reportedStart, reportedEnd+1, word) {
		return Result{Start: reportedStart, End: reportedEnd + 1, Strategy: StrategyInclusiveEnd, Resolved: true}
	}

	for _, shift := range [2]int{-1, +1} {
		s := reportedStart + shift
		for _, endExtra := range [2]int{0, 1} {
			e := reportedEnd + shift + endExtra
			if match(canonical, s, e, word) {
				return Result{Start: s, End: e, Strategy: StrategyIndexShift, Resolved: true}
			}
		}
	}

	// Window scan, nearest offsets first. The end is recomputed from the
	// word length, so offset 0 covers reports whose start is right but
	// whose end is garbage. Tolerates minor punctuation and whitespace
	// accounting drift upstream.
	for off := 0; off <= r.radius; off++ {
		for _, s := range [2]int{reportedStart - off, reportedStart + off} {
			if match(canonical, s, s+len(word), word) {
				return Result{Start: s, End: s + len(word), Strategy: StrategyWindowScan, Resolved: true}
			}
		}
	}

	return Result{Strategy: StrategyNone}
}

// match reports whether canonical[start:end] equals word, rejecting any span
// that falls outside the text bounds.
func match(canonical string, start, end int, word string) bool {
	if start < 0 || end > len(canonical) || start >= end {
		return false
	}
	return canonical[start:end] == word
}
