package timing

// Cursor wraps an [Index] with a single-slot last-result cache. Consecutive
// playback queries land in the same or the immediately following word almost
// always, so the cursor answers from its cached neighborhood in O(1) and
// falls back to the index's binary search only on a locality miss.
//
// Each consumer owns its own Cursor — the cache is an instance field, never
// shared, so multiple simultaneous consumers of the same Index cannot corrupt
// each other's locality. A Cursor is NOT safe for concurrent use; the
// underlying Index remains safe to share.
type Cursor struct {
	ix   *Index
	last int

	hits   uint64
	misses uint64
}

// NewCursor returns a Cursor positioned before the first word.
func (ix *Index) NewCursor() *Cursor {
	return &Cursor{ix: ix, last: -1}
}

// ActiveWord returns the index of the word active at positionMs, with the
// same clamping policy as [Index.ActiveWord]. Returns -1 for an empty index.
func (c *Cursor) ActiveWord(positionMs int64) int {
	ix := c.ix
	if ix.Empty() {
		return -1
	}

	// Cached word still active: positionMs has not reached the next word's
	// start (or there is no next word).
	if c.last >= 0 && positionMs >= ix.words[c.last].StartMs {
		if c.last == len(ix.words)-1 || positionMs < ix.words[c.last+1].StartMs {
			c.hits++
			return c.last
		}
		// Playback advanced into the next word.
		if c.last+2 == len(ix.words) || positionMs < ix.words[c.last+2].StartMs {
			c.hits++
			c.last++
			return c.last
		}
	}

	c.misses++
	c.last = ix.ActiveWord(positionMs)
	return c.last
}

// ActiveSentence returns the sentence index of the word active at positionMs.
// Returns -1 for an empty index.
func (c *Cursor) ActiveSentence(positionMs int64) int {
	w := c.ActiveWord(positionMs)
	if w < 0 {
		return -1
	}
	return c.ix.words[w].Sentence
}

// Stats returns the cumulative locality cache hit and miss counts. Useful for
// metrics; reads are only meaningful from the goroutine using the cursor.
func (c *Cursor) Stats() (hits, misses uint64) { return c.hits, c.misses }
