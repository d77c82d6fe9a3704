package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/voxalign/voxalign/internal/observe"
	"github.com/voxalign/voxalign/pkg/timing"
	"github.com/voxalign/voxalign/pkg/timing/tracker"
)

// session is one live sync connection. A session holds at most one loaded
// content item at a time; loading new content replaces the previous tracker.
type session struct {
	srv  *Server
	conn *websocket.Conn

	// out serializes all conn writes through writeLoop. coder/websocket
	// permits only one concurrent writer.
	out chan serverMessage

	mu        sync.Mutex
	tr        *tracker.Tracker
	ix        *timing.Index
	contentID string
}

func newSession(srv *Server, conn *websocket.Conn) *session {
	return &session{
		srv:  srv,
		conn: conn,
		out:  make(chan serverMessage, 16),
	}
}

// run services the connection until the client disconnects or ctx is
// cancelled. It returns nil on clean closure.
func (s *session) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.writeLoop(ctx) })
	g.Go(func() error {
		defer s.unload()
		return s.readLoop(ctx, g)
	})

	err := g.Wait()
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	}
	return err
}

// readLoop parses client messages and dispatches them. Tracker goroutines are
// started on the shared errgroup so run waits for them.
func (s *session) readLoop(ctx context.Context, g *errgroup.Group) error {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return err
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.send(ctx, serverMessage{Type: msgError, Message: "malformed message: " + err.Error()})
			continue
		}

		switch msg.Type {
		case msgLoad:
			s.handleLoad(ctx, g, msg)
		case msgPosition:
			s.handlePosition(ctx, msg.PositionMs)
		case msgUnload:
			s.unload()
		default:
			s.send(ctx, serverMessage{Type: msgError, Message: "unknown message type: " + msg.Type})
		}
	}
}

// handleLoad normalizes the timing payload and starts a tracker for it. Any
// previously loaded content is unloaded first.
func (s *session) handleLoad(ctx context.Context, g *errgroup.Group, msg clientMessage) {
	log := observe.Logger(ctx)

	if msg.Timing == nil {
		s.send(ctx, serverMessage{Type: msgError, Message: "load requires a timing payload"})
		return
	}

	s.unload()

	start := time.Now()
	ix, err := s.srv.newNormalizer().Normalize(ctx, msg.Timing, msg.Text)
	if s.srv.metrics != nil {
		s.srv.metrics.NormalizeDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		log.Warn("timing payload rejected", "content_id", msg.ContentID, "err", err)
		s.send(ctx, serverMessage{Type: msgError, ContentID: msg.ContentID, Message: err.Error()})
		return
	}

	var trOpts []tracker.Option
	if s.srv.metrics != nil {
		trOpts = append(trOpts, tracker.WithLookupObserver(func(d time.Duration) {
			s.srv.metrics.LookupDuration.Record(ctx, d.Seconds())
		}))
	}
	tr := tracker.New(ix, trOpts...)

	s.mu.Lock()
	s.tr = tr
	s.ix = ix
	s.contentID = msg.ContentID
	s.mu.Unlock()

	log.Info("content loaded",
		"content_id", msg.ContentID,
		"words", ix.WordCount(),
		"sentences", ix.SentenceCount(),
	)
	// Queue the loaded ack before the tracker starts emitting so the client
	// always sees "loaded" ahead of the first highlight or unavailable event.
	s.send(ctx, serverMessage{
		Type:      msgLoaded,
		ContentID: msg.ContentID,
		Words:     ix.WordCount(),
		Sentences: ix.SentenceCount(),
	})

	g.Go(func() error {
		if err := tr.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.forward(ctx, tr, ix)
		return nil
	})
}

// handlePosition feeds one playback position to the current tracker. Positions
// arriving faster than they can be resolved coalesce inside the tracker.
func (s *session) handlePosition(ctx context.Context, positionMs int64) {
	s.mu.Lock()
	tr := s.tr
	s.mu.Unlock()

	if tr == nil {
		s.send(ctx, serverMessage{Type: msgError, Message: "no content loaded"})
		return
	}
	if s.srv.metrics != nil {
		s.srv.metrics.PositionsReceived.Add(ctx, 1)
	}
	tr.Offer(positionMs)
}

// forward drains tracker updates into the write channel until the tracker
// stops, then folds its cursor cache counters into the server metrics.
func (s *session) forward(ctx context.Context, tr *tracker.Tracker, ix *timing.Index) {
	for u := range tr.Updates() {
		if u.Unavailable {
			s.send(ctx, serverMessage{Type: msgUnavailable})
			continue
		}
		w := ix.Word(u.WordIndex)
		s.send(ctx, serverMessage{
			Type: msgHighlight,
			Highlight: &highlightPayload{
				WordIndex:     u.WordIndex,
				SentenceIndex: u.SentenceIndex,
				Word:          w.Text,
				CharStart:     w.CharStart,
				CharEnd:       w.CharEnd,
			},
		})
		if s.srv.metrics != nil {
			s.srv.metrics.HighlightEmissions.Add(ctx, 1)
		}
	}

	if s.srv.metrics != nil {
		hits, misses := tr.CacheStats()
		s.srv.metrics.CursorCacheHits.Add(ctx, int64(hits))
		s.srv.metrics.CursorCacheMisses.Add(ctx, int64(misses))
	}
}

// unload stops the current tracker, if any. The tracker's Run goroutine then
// closes the update stream, which ends the matching forward goroutine.
func (s *session) unload() {
	s.mu.Lock()
	tr := s.tr
	s.tr = nil
	s.ix = nil
	s.contentID = ""
	s.mu.Unlock()

	if tr != nil {
		tr.Close()
	}
}

// send queues a message for writeLoop. Blocks only when the write channel is
// full, and gives up when the session context ends.
func (s *session) send(ctx context.Context, msg serverMessage) {
	select {
	case s.out <- msg:
	case <-ctx.Done():
	}
}

// writeLoop is the sole writer on the connection.
func (s *session) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-s.out:
			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
				return err
			}
		}
	}
}
