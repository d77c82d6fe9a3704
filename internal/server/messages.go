package server

import "github.com/voxalign/voxalign/internal/ingest"

// Client message types.
const (
	msgLoad     = "load"
	msgPosition = "position"
	msgUnload   = "unload"
)

// Server message types.
const (
	msgLoaded      = "loaded"
	msgHighlight   = "highlight"
	msgUnavailable = "unavailable"
	msgError       = "error"
)

// clientMessage is the envelope for all messages a client sends on /sync.
// Which fields are meaningful depends on Type:
//
//   - "load": ContentID, Text (canonical display text), and Timing.
//   - "position": PositionMs.
//   - "unload": no extra fields.
type clientMessage struct {
	Type       string          `json:"type"`
	ContentID  string          `json:"content_id,omitempty"`
	Text       string          `json:"text,omitempty"`
	Timing     *ingest.Payload `json:"timing,omitempty"`
	PositionMs int64           `json:"position_ms,omitempty"`
}

// serverMessage is the envelope for all messages the server sends.
//
//   - "loaded": ContentID, Words, Sentences.
//   - "highlight": Highlight.
//   - "unavailable": sent once when loaded content has no usable timing.
//   - "error": Message.
type serverMessage struct {
	Type      string `json:"type"`
	ContentID string `json:"content_id,omitempty"`

	Words     int `json:"words,omitempty"`
	Sentences int `json:"sentences,omitempty"`

	Highlight *highlightPayload `json:"highlight,omitempty"`

	Message string `json:"message,omitempty"`
}

// highlightPayload carries one active-word change. CharStart and CharEnd are
// -1 when the word cannot be highlighted by character span.
type highlightPayload struct {
	WordIndex     int    `json:"word_index"`
	SentenceIndex int    `json:"sentence_index"`
	Word          string `json:"word"`
	CharStart     int    `json:"char_start"`
	CharEnd       int    `json:"char_end"`
}
