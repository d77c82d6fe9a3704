package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxalign/voxalign/internal/config"
	"github.com/voxalign/voxalign/internal/ingest"
)

// startServer launches a test sync server and returns the WebSocket URL for
// /sync.
func startServer(t *testing.T) string {
	t.Helper()
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	srv := New(cfg, nil, "test")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/sync"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readMsg(t *testing.T, conn *websocket.Conn) serverMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return msg
}

// readType reads messages until one of the given type arrives, failing the
// test if something else shows up more than a few times.
func readType(t *testing.T, conn *websocket.Conn, typ string) serverMessage {
	t.Helper()
	for range 5 {
		msg := readMsg(t, conn)
		if msg.Type == typ {
			return msg
		}
	}
	t.Fatalf("no %q message received", typ)
	return serverMessage{}
}

func intp(v int) *int { return &v }

// threeWordPayload matches the canonical text "Hello world. Next".
func threeWordPayload() *ingest.Payload {
	return &ingest.Payload{
		Words: []ingest.WordRecord{
			{Word: "Hello", StartMs: 0, EndMs: 500, CharStart: intp(0), CharEnd: intp(5)},
			{Word: "world.", StartMs: 500, EndMs: 1000, CharStart: intp(6), CharEnd: intp(12)},
			{Word: "Next", StartMs: 1500, EndMs: 2000, CharStart: intp(13), CharEnd: intp(17)},
		},
	}
}

const threeWordText = "Hello world. Next"

func TestSync_LoadAndHighlight(t *testing.T) {
	t.Parallel()
	conn := dial(t, startServer(t))

	sendJSON(t, conn, clientMessage{
		Type:      msgLoad,
		ContentID: "chapter-1",
		Text:      threeWordText,
		Timing:    threeWordPayload(),
	})

	loaded := readType(t, conn, msgLoaded)
	if loaded.ContentID != "chapter-1" {
		t.Errorf("content_id = %q, want %q", loaded.ContentID, "chapter-1")
	}
	if loaded.Words != 3 {
		t.Errorf("words = %d, want 3", loaded.Words)
	}
	if loaded.Sentences != 2 {
		t.Errorf("sentences = %d, want 2", loaded.Sentences)
	}

	// First position resolves to the first word.
	sendJSON(t, conn, clientMessage{Type: msgPosition, PositionMs: 100})
	hl := readType(t, conn, msgHighlight)
	if hl.Highlight == nil {
		t.Fatal("highlight message missing payload")
	}
	if hl.Highlight.WordIndex != 0 || hl.Highlight.SentenceIndex != 0 {
		t.Errorf("highlight = (%d,%d), want (0,0)", hl.Highlight.WordIndex, hl.Highlight.SentenceIndex)
	}
	if hl.Highlight.Word != "Hello" {
		t.Errorf("word = %q, want %q", hl.Highlight.Word, "Hello")
	}
	if hl.Highlight.CharStart != 0 || hl.Highlight.CharEnd != 5 {
		t.Errorf("char span = [%d,%d), want [0,5)", hl.Highlight.CharStart, hl.Highlight.CharEnd)
	}

	// A position inside the trailing silence still maps to the most recent
	// word; the sentence advances with it.
	sendJSON(t, conn, clientMessage{Type: msgPosition, PositionMs: 1200})
	hl = readType(t, conn, msgHighlight)
	if hl.Highlight.WordIndex != 1 || hl.Highlight.SentenceIndex != 0 {
		t.Errorf("highlight = (%d,%d), want (1,0)", hl.Highlight.WordIndex, hl.Highlight.SentenceIndex)
	}

	sendJSON(t, conn, clientMessage{Type: msgPosition, PositionMs: 1600})
	hl = readType(t, conn, msgHighlight)
	if hl.Highlight.WordIndex != 2 || hl.Highlight.SentenceIndex != 1 {
		t.Errorf("highlight = (%d,%d), want (2,1)", hl.Highlight.WordIndex, hl.Highlight.SentenceIndex)
	}
}

func TestSync_NoRepeatForSameWord(t *testing.T) {
	t.Parallel()
	conn := dial(t, startServer(t))

	sendJSON(t, conn, clientMessage{
		Type:   msgLoad,
		Text:   threeWordText,
		Timing: threeWordPayload(),
	})
	readType(t, conn, msgLoaded)

	sendJSON(t, conn, clientMessage{Type: msgPosition, PositionMs: 100})
	readType(t, conn, msgHighlight)

	// Another position inside the same word must not produce a second
	// highlight. Send a position in a different word afterwards and verify
	// it is the very next message.
	sendJSON(t, conn, clientMessage{Type: msgPosition, PositionMs: 200})
	time.Sleep(50 * time.Millisecond)
	sendJSON(t, conn, clientMessage{Type: msgPosition, PositionMs: 600})

	msg := readMsg(t, conn)
	if msg.Type != msgHighlight {
		t.Fatalf("message type = %q, want %q", msg.Type, msgHighlight)
	}
	if msg.Highlight.WordIndex != 1 {
		t.Errorf("word index = %d, want 1", msg.Highlight.WordIndex)
	}
}

func TestSync_EmptyTimingIsUnavailable(t *testing.T) {
	t.Parallel()
	conn := dial(t, startServer(t))

	sendJSON(t, conn, clientMessage{
		Type:   msgLoad,
		Text:   "Some text without timing.",
		Timing: &ingest.Payload{},
	})

	// The loaded ack is queued before the tracker starts, so it always
	// precedes the one-shot unavailable signal.
	msg := readMsg(t, conn)
	if msg.Type != msgLoaded {
		t.Fatalf("first message type = %q, want %q", msg.Type, msgLoaded)
	}
	if msg.Words != 0 {
		t.Errorf("words = %d, want 0", msg.Words)
	}
	msg = readMsg(t, conn)
	if msg.Type != msgUnavailable {
		t.Errorf("second message type = %q, want %q", msg.Type, msgUnavailable)
	}
}

func TestSync_InvalidTimingRejected(t *testing.T) {
	t.Parallel()
	conn := dial(t, startServer(t))

	// Overlapping word intervals are invalid.
	sendJSON(t, conn, clientMessage{
		Type: msgLoad,
		Text: "Hello world.",
		Timing: &ingest.Payload{
			Words: []ingest.WordRecord{
				{Word: "Hello", StartMs: 0, EndMs: 600},
				{Word: "world.", StartMs: 500, EndMs: 1000},
			},
		},
	})

	msg := readType(t, conn, msgError)
	if msg.Message == "" {
		t.Error("error message is empty")
	}
}

func TestSync_PositionBeforeLoad(t *testing.T) {
	t.Parallel()
	conn := dial(t, startServer(t))

	sendJSON(t, conn, clientMessage{Type: msgPosition, PositionMs: 100})
	msg := readType(t, conn, msgError)
	if !strings.Contains(msg.Message, "no content loaded") {
		t.Errorf("message = %q, want it to mention no content loaded", msg.Message)
	}
}

func TestSync_MalformedJSON(t *testing.T) {
	t.Parallel()
	conn := dial(t, startServer(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := readType(t, conn, msgError)
	if !strings.Contains(msg.Message, "malformed") {
		t.Errorf("message = %q, want malformed", msg.Message)
	}
}

func TestSync_UnknownMessageType(t *testing.T) {
	t.Parallel()
	conn := dial(t, startServer(t))

	sendJSON(t, conn, clientMessage{Type: "rewind"})
	msg := readType(t, conn, msgError)
	if !strings.Contains(msg.Message, "rewind") {
		t.Errorf("message = %q, want it to name the unknown type", msg.Message)
	}
}

func TestSync_ReloadReplacesContent(t *testing.T) {
	t.Parallel()
	conn := dial(t, startServer(t))

	sendJSON(t, conn, clientMessage{
		Type:      msgLoad,
		ContentID: "a",
		Text:      threeWordText,
		Timing:    threeWordPayload(),
	})
	readType(t, conn, msgLoaded)

	sendJSON(t, conn, clientMessage{
		Type:      msgLoad,
		ContentID: "b",
		Text:      "Bye",
		Timing: &ingest.Payload{
			Words: []ingest.WordRecord{{Word: "Bye", StartMs: 0, EndMs: 300}},
		},
	})
	loaded := readType(t, conn, msgLoaded)
	if loaded.ContentID != "b" {
		t.Errorf("content_id = %q, want %q", loaded.ContentID, "b")
	}
	if loaded.Words != 1 {
		t.Errorf("words = %d, want 1", loaded.Words)
	}

	sendJSON(t, conn, clientMessage{Type: msgPosition, PositionMs: 100})
	hl := readType(t, conn, msgHighlight)
	if hl.Highlight.Word != "Bye" {
		t.Errorf("word = %q, want %q", hl.Highlight.Word, "Bye")
	}
}

func TestSync_UnloadStopsHighlights(t *testing.T) {
	t.Parallel()
	conn := dial(t, startServer(t))

	sendJSON(t, conn, clientMessage{
		Type:   msgLoad,
		Text:   threeWordText,
		Timing: threeWordPayload(),
	})
	readType(t, conn, msgLoaded)

	sendJSON(t, conn, clientMessage{Type: msgUnload})
	time.Sleep(50 * time.Millisecond)

	sendJSON(t, conn, clientMessage{Type: msgPosition, PositionMs: 100})
	msg := readType(t, conn, msgError)
	if !strings.Contains(msg.Message, "no content loaded") {
		t.Errorf("message = %q, want no content loaded", msg.Message)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	srv := New(cfg, nil, "test")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	srv := New(cfg, nil, "test")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want 200", resp.StatusCode)
	}
}

func TestUpdateSyncConfig_AffectsNextLoad(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	srv := New(cfg, nil, "test")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	conn := dial(t, "ws"+strings.TrimPrefix(ts.URL, "http")+"/sync")

	// Two words split only by a 400ms pause: two sentences at the default
	// 350ms threshold, one sentence once the threshold is raised past it.
	payload := func() *ingest.Payload {
		return &ingest.Payload{
			Words: []ingest.WordRecord{
				{Word: "Hello", StartMs: 0, EndMs: 500},
				{Word: "there", StartMs: 900, EndMs: 1200},
			},
		}
	}

	sendJSON(t, conn, clientMessage{Type: msgLoad, Text: "Hello there", Timing: payload()})
	loaded := readType(t, conn, msgLoaded)
	if loaded.Sentences != 2 {
		t.Fatalf("sentences = %d, want 2 at default threshold", loaded.Sentences)
	}

	newSync := cfg.Sync
	newSync.PauseThresholdMs = 1000
	srv.UpdateSyncConfig(newSync)

	sendJSON(t, conn, clientMessage{Type: msgLoad, Text: "Hello there", Timing: payload()})
	loaded = readType(t, conn, msgLoaded)
	if loaded.Sentences != 1 {
		t.Errorf("sentences = %d, want 1 after raising pause threshold", loaded.Sentences)
	}
}
