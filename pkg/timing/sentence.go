package timing

import "strings"

// BuildSentence derives the sentence record spanning words[start..end]
// (inclusive) and stamps each member word's Sentence field with index.
//
// The sentence text is the space-joined member word text; the interval is the
// first member's start to the last member's end; character offsets are the
// first and last resolvable member offsets, or NoChar when no member carries
// offsets. Both the segmentation inferencer and payload ingestion derive
// sentences through this one function so supplied and inferred segmentations
// are shaped identically.
func BuildSentence(words []Word, start, end, index int) Sentence {
	texts := make([]string, 0, end-start+1)
	charStart, charEnd := NoChar, NoChar

	for i := start; i <= end; i++ {
		words[i].Sentence = index
		texts = append(texts, words[i].Text)
		if charStart == NoChar && words[i].CharStart != NoChar {
			charStart = words[i].CharStart
		}
		if words[i].CharEnd != NoChar {
			charEnd = words[i].CharEnd
		}
	}

	return Sentence{
		Text:      strings.Join(texts, " "),
		StartMs:   words[start].StartMs,
		EndMs:     words[end].EndMs,
		WordStart: start,
		WordEnd:   end,
		CharStart: charStart,
		CharEnd:   charEnd,
	}
}
