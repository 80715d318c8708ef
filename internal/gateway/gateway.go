// Package gateway exposes the websocket session endpoint and runs the
// server side of the voice protocol: capture frames in, voice activity
// segmentation, turn discipline, and synthesis segments out.
//
// One websocket connection is one conversation, keyed by tenant and user in
// the URL path. The gateway owns the turn state machine; the client only
// ever reports playback completion and barge-ins.
package gateway

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/voicewire/voicewire/internal/engine"
	"github.com/voicewire/voicewire/internal/observe"
	"github.com/voicewire/voicewire/internal/tenant"
)

// readLimit caps inbound websocket messages. Capture frames are a few KiB;
// anything near the cap is a misbehaving client.
const readLimit = 1 << 20

// Server accepts voice sessions and hands them to the response engine.
type Server struct {
	eng      *engine.Engine
	registry *tenant.Registry
	metrics  *observe.Metrics
	vad      VADConfig
}

// Option configures a Server.
type Option func(*Server)

// WithVAD overrides the voice activity segmentation thresholds applied to
// every session.
func WithVAD(cfg VADConfig) Option {
	return func(s *Server) { s.vad = cfg }
}

// WithMetrics overrides the metrics instance, for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a Server over the engine and tenant registry.
func New(eng *engine.Engine, registry *tenant.Registry, opts ...Option) *Server {
	s := &Server{eng: eng, registry: registry}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Register adds the session endpoint to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/session/{tenant_id}/{user_id}", s.handleSession)
}

// handleSession upgrades the connection and runs the session until it ends.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant_id")
	userID := r.PathValue("user_id")
	if tenantID == "" || userID == "" {
		http.Error(w, "tenant and user required", http.StatusBadRequest)
		return
	}

	profile, err := s.registry.Resolve(tenantID)
	if err != nil {
		http.Error(w, "unknown tenant", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(readLimit)

	ctx := r.Context()
	sessionID := uuid.NewString()
	log := observe.Logger(ctx).With(
		"session_id", sessionID,
		"tenant_id", profile.ID,
		"user_id", userID,
	)

	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(ctx, -1)
	log.Info("session opened")

	sess := &session{
		id:      sessionID,
		tenant:  profile,
		userID:  userID,
		conn:    conn,
		eng:     s.eng,
		metrics: s.metrics,
		log:     log,
		seg:     newSegmenter(s.vad),
		out:     make(chan outbound, outBuffer),
	}
	err = sess.run(ctx)
	_ = conn.Close(websocket.StatusNormalClosure, "session ended")
	if err != nil {
		log.Warn("session ended with error", "err", err)
		return
	}
	log.Info("session closed")
}
