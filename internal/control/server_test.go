package control

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	orchestration "github.com/koscakluka/ema-duet/core"
	"github.com/koscakluka/ema-duet/core/topic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionStub struct {
	snapshot orchestration.SessionSnapshot
}

func (s sessionStub) Snapshot() orchestration.SessionSnapshot { return s.snapshot }

func newTestServer(state orchestration.SessionState, provider *topic.Provider, opts ...ServerOption) *Server {
	session := sessionStub{snapshot: orchestration.SessionSnapshot{
		SessionID: "session-1",
		State:     state,
		TurnCount: 7,
		Queue:     []orchestration.SlotStatus{{TurnID: 8, Speaker: "B", Kind: "regular"}},
	}}
	return NewServer(session, provider, opts...)
}

func serve(s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthReflectsSessionState(t *testing.T) {
	running := serve(newTestServer(orchestration.StateRunning, topic.NewProvider()), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, running.Code)
	assert.Contains(t, running.Body.String(), `"state":"RUNNING"`)

	done := serve(newTestServer(orchestration.StateDone, topic.NewProvider()), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, done.Code)
}

func TestSessionReturnsSnapshot(t *testing.T) {
	rec := serve(newTestServer(orchestration.StateClosing, topic.NewProvider()), http.MethodGet, "/session", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot orchestration.SessionSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, "session-1", snapshot.SessionID)
	assert.Equal(t, orchestration.StateClosing, snapshot.State)
	assert.Len(t, snapshot.Queue, 1)
}

func TestMetricsUsesGatherer(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "duet_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	rec := serve(newTestServer(orchestration.StateRunning, topic.NewProvider(), WithGatherer(registry)), http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "duet_test_total 1")
}

func TestTopicRequiresConfiguredToken(t *testing.T) {
	provider := topic.NewProvider(topic.WithDefault("default"))

	disabled := serve(newTestServer(orchestration.StateRunning, provider), http.MethodPost, "/topic", `{"topic":"new"}`, nil)
	assert.Equal(t, http.StatusForbidden, disabled.Code)

	s := newTestServer(orchestration.StateRunning, provider, WithToken("secret"))
	unauthorized := serve(s, http.MethodPost, "/topic", `{"topic":"new"}`, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, unauthorized.Code)
	assert.Equal(t, "default", provider.Current(time.Now()).Value)
}

func TestTopicSetsChatOverride(t *testing.T) {
	provider := topic.NewProvider(topic.WithDefault("default"))
	s := newTestServer(orchestration.StateRunning, provider, WithToken("secret"))
	auth := map[string]string{"Authorization": "Bearer secret"}

	rec := serve(s, http.MethodPost, "/topic", `{"topic":"  deep sea mining  "}`, auth)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source":"chat"`)

	state := provider.Current(time.Now())
	assert.Equal(t, "deep sea mining", state.Value)
	assert.Equal(t, topic.SourceChat, state.Source)

	empty := serve(s, http.MethodPost, "/topic", `{"topic":" "}`, auth)
	assert.Equal(t, http.StatusBadRequest, empty.Code)

	malformed := serve(s, http.MethodPost, "/topic", `{`, auth)
	assert.Equal(t, http.StatusBadRequest, malformed.Code)
}
