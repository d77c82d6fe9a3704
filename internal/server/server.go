// Package server exposes the voxalign sync API over WebSocket, plus health
// and metrics endpoints.
//
// A client opens /sync, loads a content item with its raw timing payload and
// canonical display text, then streams playback positions. The server answers
// with change-only highlight messages. Position updates may arrive at any
// rate; only the newest one is ever acted on.
package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxalign/voxalign/internal/config"
	"github.com/voxalign/voxalign/internal/health"
	"github.com/voxalign/voxalign/internal/ingest"
	"github.com/voxalign/voxalign/internal/observe"
	"github.com/voxalign/voxalign/pkg/timing/align"
	"github.com/voxalign/voxalign/pkg/timing/segment"
)

// maxMessageBytes bounds a single WebSocket message. Timing payloads for long
// audiobook chapters run to a few megabytes of JSON.
const maxMessageBytes = 8 << 20

// Server handles sync sessions. Safe for concurrent use.
type Server struct {
	metrics *observe.Metrics
	health  *health.Handler

	mu      sync.RWMutex
	syncCfg config.SyncConfig
}

// New creates a Server using the sync tunables from cfg. metrics may be nil
// to disable instrumentation (tests). The given checkers are served on
// /readyz.
func New(cfg *config.Config, metrics *observe.Metrics, version string, checkers ...health.Checker) *Server {
	return &Server{
		metrics: metrics,
		health:  health.New(version, checkers...),
		syncCfg: cfg.Sync,
	}
}

// UpdateSyncConfig swaps in new sync tunables. Content loaded after the call
// uses them; already loaded sessions keep their indexes.
func (s *Server) UpdateSyncConfig(sc config.SyncConfig) {
	s.mu.Lock()
	s.syncCfg = sc
	s.mu.Unlock()
}

// newNormalizer builds a normalizer from the current sync tunables. Cheap
// enough to construct per load, which is what makes hot-reload safe without
// locking inside the normalization path.
func (s *Server) newNormalizer() *ingest.Normalizer {
	s.mu.RLock()
	sc := s.syncCfg
	s.mu.RUnlock()

	segOpts := []segment.Option{
		segment.WithPauseThreshold(sc.PauseThresholdMs),
		segment.WithTerminalMarks(sc.TerminalMarks),
	}
	if len(sc.Abbreviations) > 0 {
		segOpts = append(segOpts, segment.WithAbbreviations(sc.Abbreviations))
	}

	return ingest.NewNormalizer(
		segment.New(segOpts...),
		align.New(align.WithSearchRadius(sc.AlignmentSearchRadius)),
		s.metrics,
	)
}

// Handler returns the full HTTP handler: /sync, /healthz, /readyz, and
// /metrics, wrapped in the tracing middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sync", s.handleSync)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)

	if s.metrics == nil {
		return mux
	}
	return observe.Middleware(s.metrics)(mux)
}

// handleSync upgrades the request to a WebSocket and services the session
// until the client disconnects.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessageBytes)

	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(ctx, 1)
		defer func() { s.metrics.ActiveSessions.Add(ctx, -1) }()
	}

	start := time.Now()
	log.Info("sync session opened", "remote", r.RemoteAddr)

	if err := newSession(s, conn).run(ctx); err != nil {
		log.Warn("sync session failed", "remote", r.RemoteAddr, "err", err)
	} else {
		log.Info("sync session closed", "remote", r.RemoteAddr, "duration", time.Since(start))
		conn.Close(websocket.StatusNormalClosure, "")
	}
}
