// Package control serves the operator HTTP surface (health, Prometheus
// metrics, the session snapshot and topic overrides) and the viewer pages
// for live avatar sessions.
package control

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	orchestration "github.com/koscakluka/ema-duet/core"
	"github.com/koscakluka/ema-duet/core/topic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	shutdownTimeout = 5 * time.Second
	maxTopicBody    = 4 << 10
)

// SessionSource is the part of the orchestrator the server reads.
type SessionSource interface {
	Snapshot() orchestration.SessionSnapshot
}

// TopicSetter installs operator topics with chat precedence.
type TopicSetter interface {
	SetChat(value string, now time.Time) (topic.State, error)
}

type Server struct {
	session  SessionSource
	topics   TopicSetter
	gatherer prometheus.Gatherer
	token    string
	now      func() time.Time

	router chi.Router
}

type ServerOption func(*Server)

// WithToken enables POST /topic for requests carrying the bearer token.
func WithToken(token string) ServerOption {
	return func(s *Server) { s.token = token }
}

func WithGatherer(gatherer prometheus.Gatherer) ServerOption {
	return func(s *Server) { s.gatherer = gatherer }
}

func NewServer(session SessionSource, topics TopicSetter, opts ...ServerOption) *Server {
	s := &Server{
		session:  session,
		topics:   topics,
		gatherer: prometheus.DefaultGatherer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/session", s.handleSession)
	r.Post("/topic", s.handleTopic)

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	return listen(ctx, "control", addr, s.router)
}

func listen(ctx context.Context, name string, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(handler, name),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("starting "+name+" server", "addr", addr)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s server failed: %w", name, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down %s server: %w", name, err)
		}
		return nil
	}
}

// handleHealth is healthy until the session is DONE.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.session.Snapshot()

	status, code := "ok", http.StatusOK
	if snapshot.State == orchestration.StateDone {
		status, code = "done", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"session_id": snapshot.SessionID,
		"state":      snapshot.State,
		"turn_count": snapshot.TurnCount,
		"idle":       snapshot.Idle,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

type topicRequest struct {
	Topic string `json:"topic"`
}

func (s *Server) handleTopic(w http.ResponseWriter, r *http.Request) {
	if s.token == "" {
		writeError(w, http.StatusForbidden, "topic updates are disabled")
		return
	}
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	var req topicRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTopicBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := s.topics.SetChat(req.Topic, s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger.InfoContext(r.Context(), "topic set over control API", "topic", state.Value)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"topic":      state.Value,
		"source":     state.Source,
		"expires_at": state.SetAt.Add(state.TTL),
	})
}

func (s *Server) authorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
