// Package tracker adapts a high-frequency playback-position stream into
// change-only highlight notifications backed by a [timing.Index].
//
// Audio backends commonly report position more often than a display
// refreshes. The tracker therefore coalesces instead of queueing: only the
// most recent position matters, and superseded positions are discarded, never
// buffered and replayed. Downstream consumers see an update only when the
// active word or sentence actually changes.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/voxalign/voxalign/pkg/timing"
)

// Update is one change notification. Consecutive updates always differ in
// WordIndex or SentenceIndex, except for the single Unavailable update
// emitted when no usable timing data exists.
type Update struct {
	// WordIndex and SentenceIndex identify the newly active word and
	// sentence.
	WordIndex     int
	SentenceIndex int

	// Unavailable is set on the one-shot update emitted when the tracker
	// has no timing data. No further updates follow it.
	Unavailable bool
}

// Option is a functional option for configuring a [Tracker].
type Option func(*Tracker)

// WithLookupObserver installs a callback invoked with the duration of every
// position-to-word lookup. Used to feed latency metrics without coupling this
// package to an instrumentation backend. The callback runs on the Run
// goroutine and must be cheap.
func WithLookupObserver(fn func(time.Duration)) Option {
	return func(t *Tracker) {
		t.onLookup = fn
	}
}

// Tracker consumes position updates for a single content item and emits
// change notifications. Create one per consumer with [New], feed it via
// [Tracker.Offer], and drain [Tracker.Updates] while [Tracker.Run] executes.
//
// Offer and Close are safe to call from any goroutine. Run must be called
// exactly once.
type Tracker struct {
	ix     *timing.Index
	cursor *timing.Cursor

	positions chan int64
	updates   chan Update
	onLookup  func(time.Duration)

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Tracker over ix. A nil or empty index is valid: Run then
// emits a single Unavailable update and stops computing instead of emitting
// spurious zero indices.
func New(ix *timing.Index, opts ...Option) *Tracker {
	t := &Tracker{
		positions: make(chan int64, 1),
		updates:   make(chan Update, 1),
		done:      make(chan struct{}),
	}
	if !ix.Empty() {
		t.ix = ix
		t.cursor = ix.NewCursor()
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Offer submits a playback position in milliseconds. It never blocks: when a
// previous position has not been consumed yet it is discarded in favor of the
// new one (latest-value-wins). Offers after Close are dropped.
func (t *Tracker) Offer(positionMs int64) {
	select {
	case <-t.done:
		return
	default:
	}

	for {
		select {
		case t.positions <- positionMs:
			return
		default:
		}
		// Displace the stale unconsumed position.
		select {
		case <-t.positions:
		default:
		}
	}
}

// Updates returns the change-notification stream. The channel is closed when
// Run returns.
func (t *Tracker) Updates() <-chan Update {
	return t.updates
}

// Run consumes offered positions until ctx is cancelled or [Tracker.Close] is
// called. Each consumed position is resolved through the index's locality
// cursor; an update is emitted only when the active (word, sentence) pair
// differs from the previously emitted one.
//
// When the tracker has no timing data, Run emits one Unavailable update and
// returns immediately.
func (t *Tracker) Run(ctx context.Context) error {
	defer close(t.updates)

	if t.cursor == nil {
		t.emit(Update{WordIndex: -1, SentenceIndex: -1, Unavailable: true})
		return nil
	}

	lastWord, lastSentence := -1, -1
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.done:
			return nil
		case pos := <-t.positions:
			start := time.Now()
			word := t.cursor.ActiveWord(pos)
			if t.onLookup != nil {
				t.onLookup(time.Since(start))
			}
			sentence := t.ix.Word(word).Sentence
			if word == lastWord && sentence == lastSentence {
				continue
			}
			lastWord, lastSentence = word, sentence
			t.emit(Update{WordIndex: word, SentenceIndex: sentence})
		}
	}
}

// emit delivers an update with the same latest-value-wins policy as Offer: a
// consumer that lags behind sees only the newest change, never a backlog.
func (t *Tracker) emit(u Update) {
	for {
		select {
		case t.updates <- u:
			return
		default:
		}
		select {
		case <-t.updates:
		default:
		}
	}
}

// CacheStats returns the locality-cache hit and miss counts of the
// underlying cursor. Zero for an unavailable tracker. Only meaningful once
// Run has returned, since the cursor is owned by the Run goroutine.
func (t *Tracker) CacheStats() (hits, misses uint64) {
	if t.cursor == nil {
		return 0, 0
	}
	return t.cursor.Stats()
}

// Close stops the tracker: further Offer calls are dropped and Run returns.
// Safe to call multiple times and concurrently with Offer.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() { close(t.done) })
}
