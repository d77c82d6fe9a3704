package ingest

import (
	"context"
	"fmt"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxalign/voxalign/internal/observe"
	"github.com/voxalign/voxalign/pkg/timing"
	"github.com/voxalign/voxalign/pkg/timing/align"
	"github.com/voxalign/voxalign/pkg/timing/segment"
)

// Normalizer converts raw timing payloads into validated timing indexes. It
// is read-only after construction and safe for concurrent use; one instance
// serves all sync sessions.
type Normalizer struct {
	inferencer *segment.Inferencer
	resolver   *align.Resolver
	metrics    *observe.Metrics
}

// NewNormalizer creates a Normalizer. inferencer and resolver must be
// non-nil; metrics may be nil to disable instrumentation (tests).
func NewNormalizer(inferencer *segment.Inferencer, resolver *align.Resolver, metrics *observe.Metrics) *Normalizer {
	return &Normalizer{
		inferencer: inferencer,
		resolver:   resolver,
		metrics:    metrics,
	}
}

// Normalize builds a [timing.Index] from payload, reconciling character
// offsets against the canonical display text.
//
// Pipeline:
//
//  1. Convert the populated payload shape to canonical word records.
//  2. Stable-sort by start time (some sources emit slightly out of order;
//     overlapping intervals remain fatal).
//  3. Route every reported character span through the alignment resolver.
//     Unresolved spans degrade that word to unhighlightable and are logged
//     with a Jaro-Winkler similarity between the reported slice and the word
//     text, which makes upstream indexing bugs auditable. Spans are never
//     guessed beyond the resolver's bounded window.
//  4. Take sentence segments from the payload when every word carries one,
//     otherwise infer them.
//  5. Validate and build the immutable index.
//
// An empty payload yields a valid empty index; callers surface it as
// "timing unavailable".
func (n *Normalizer) Normalize(ctx context.Context, payload *Payload, canonical string) (*timing.Index, error) {
	ctx, span := observe.StartSpan(ctx, "ingest.normalize")
	defer span.End()
	log := observe.Logger(ctx)

	words, err := payload.words()
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		log.Debug("empty timing payload, index unavailable")
		return timing.NewIndex(nil, nil)
	}

	// Supplied sentence indices parallel the payload's word order, so they
	// must travel with their words through the sort. A word that the sort
	// moves across a supplied boundary makes the index sequence
	// non-monotonic, and groupSupplied rejects it below.
	indices := payload.sentenceIndices()
	if indices != nil {
		sortWordsAndIndices(words, indices)
	} else {
		sortWords(words)
	}
	n.resolveSpans(ctx, words, canonical)

	var sentences []timing.Sentence
	if indices != nil {
		if sentences, err = groupSupplied(words, indices); err != nil {
			return nil, err
		}
	} else {
		sentences = n.inferencer.Infer(words)
	}

	ix, err := timing.NewIndex(words, sentences)
	if err != nil {
		return nil, err
	}

	if payload.TotalDurationMs > 0 && payload.TotalDurationMs < ix.EndMs() {
		log.Warn("reported duration shorter than last word",
			"total_duration_ms", payload.TotalDurationMs,
			"last_word_end_ms", ix.EndMs(),
		)
	}
	log.Debug("timing payload normalized",
		"words", ix.WordCount(),
		"sentences", ix.SentenceCount(),
	)
	return ix, nil
}

// resolveSpans runs the alignment resolver over every word that reported a
// character span. Words without spans are left unhighlightable.
func (n *Normalizer) resolveSpans(ctx context.Context, words []timing.Word, canonical string) {
	log := observe.Logger(ctx)

	for i := range words {
		w := &words[i]
		if w.CharStart == timing.NoChar || w.CharEnd == timing.NoChar {
			continue
		}
		if canonical == "" {
			w.CharStart, w.CharEnd = timing.NoChar, timing.NoChar
			continue
		}

		res := n.resolver.Resolve(w.Text, w.CharStart, w.CharEnd, canonical)
		n.countResolution(ctx, res.Strategy)

		if !res.Resolved {
			// The word stays in the index for position lookup but cannot
			// be highlighted. Log what the reported span actually pointed
			// at so the upstream drift is diagnosable.
			slice := clampSlice(canonical, w.CharStart, w.CharEnd)
			log.Warn("character span unresolved",
				"word", w.Text,
				"reported_start", w.CharStart,
				"reported_end", w.CharEnd,
				"reported_slice", slice,
				"similarity", fmt.Sprintf("%.2f", matchr.JaroWinkler(slice, w.Text, false)),
			)
			w.CharStart, w.CharEnd = timing.NoChar, timing.NoChar
			continue
		}

		if res.Strategy != align.StrategyExact {
			log.Debug("character span corrected",
				"word", w.Text,
				"strategy", res.Strategy.String(),
				"start", res.Start,
				"end", res.End,
			)
		}
		w.CharStart, w.CharEnd = res.Start, res.End
	}
}

func (n *Normalizer) countResolution(ctx context.Context, s align.Strategy) {
	if n.metrics == nil {
		return
	}
	n.metrics.AlignmentResolutions.Add(ctx, 1,
		metric.WithAttributes(observe.Attr("strategy", s.String())))
}

// clampSlice returns canonical[start:end] clamped to the text bounds, for
// diagnostics only.
func clampSlice(canonical string, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(canonical) {
		end = len(canonical)
	}
	if start >= end {
		return ""
	}
	return canonical[start:end]
}
