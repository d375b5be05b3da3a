package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	orchestration "github.com/koscakluka/ema-duet/core"
	"github.com/koscakluka/ema-duet/core/llms/groq"
	"github.com/koscakluka/ema-duet/core/llms/openai"
	"github.com/koscakluka/ema-duet/core/stage"
	"github.com/koscakluka/ema-duet/core/topic"
	"github.com/koscakluka/ema-duet/core/transcript"
	"github.com/koscakluka/ema-duet/core/turns"
	"github.com/koscakluka/ema-duet/internal/config"
	"github.com/koscakluka/ema-duet/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newResponsesServer answers every request with a new sentence so no turn is
// rejected as a repeat.
func newResponsesServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"output":[{"type":"message","content":[{"type":"output_text","text":"Point number %d is worth a closer look."}]}]}`, n)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()

	cfg := config.NewDefaultConfig()
	cfg.LLM.APIKey = "key"
	cfg.LLM.BaseURL = baseURL
	cfg.TTS.Provider = "none"
	cfg.Stage.Mode = string(stage.ModeTextOnly)
	cfg.Stage.Text.WordsPerSecond = 1000
	cfg.Stage.Text.MinHold = time.Millisecond
	cfg.Session.MaxTurns = 4
	cfg.Session.FinalRounds = 1
	cfg.Session.IdleRetryInterval = 5 * time.Millisecond
	cfg.Retry.MaxRetries = 0
	cfg.Transcript.Path = filepath.Join(t.TempDir(), "transcript.jsonl")
	return cfg
}

func readTranscript(t *testing.T, path string) []transcript.Record {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var records []transcript.Record
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record transcript.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		records = append(records, record)
	}
	require.NoError(t, scanner.Err())
	return records
}

func TestRunPlaysSessionToTranscript(t *testing.T) {
	server, calls := newResponsesServer(t)
	cfg := testConfig(t, server.URL)

	a, err := New(context.Background(), cfg, logger.Nop(), WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	require.NoError(t, a.Run(ctx))
	require.NoError(t, a.Close())

	snapshot := a.Orchestrator().Snapshot()
	assert.Equal(t, orchestration.StateDone, snapshot.State)
	assert.GreaterOrEqual(t, snapshot.TurnCount, cfg.Session.MaxTurns)
	assert.Positive(t, calls.Load())

	var spoken []transcript.Record
	for _, record := range readTranscript(t, cfg.Transcript.Path) {
		assert.Equal(t, snapshot.SessionID, record.SessionID)
		if record.Type == transcript.TypeTurn {
			spoken = append(spoken, record)
		}
	}
	require.Len(t, spoken, snapshot.TurnCount)
	for i, record := range spoken {
		assert.Equal(t, i+1, record.TurnID)
		assert.Equal(t, string(turns.SpeakerForSlot(i+1)), record.Speaker)
		assert.Equal(t, string(topic.SourceDefault), record.TopicSource)
		assert.NotEmpty(t, record.Text)
	}
	assert.Equal(t, string(turns.KindClosing), spoken[len(spoken)-1].Kind)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Session.MaxTurns = 1

	_, err := New(context.Background(), cfg, logger.Nop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, orchestration.ErrConfiguration))
}

func TestSelfCheckWithTextStage(t *testing.T) {
	server, _ := newResponsesServer(t)
	a, err := New(context.Background(), testConfig(t, server.URL), logger.Nop(), WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.NoError(t, a.SelfCheck(context.Background()))
}

type failingPresenter struct {
	*stage.TextOnly
	closed bool
}

func (p *failingPresenter) SelfCheck(context.Context) error { return errors.New("scene missing") }

func (p *failingPresenter) Close(context.Context) error {
	p.closed = true
	return nil
}

func TestSelfCheckReportsStageUnavailable(t *testing.T) {
	server, _ := newResponsesServer(t)
	presenter := &failingPresenter{TextOnly: stage.NewTextOnly()}
	a, err := New(context.Background(), testConfig(t, server.URL), logger.Nop(),
		WithRegistry(prometheus.NewRegistry()),
		WithPresenter(presenter),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	err = a.SelfCheck(context.Background())
	assert.ErrorIs(t, err, orchestration.ErrStageUnavailable)
	assert.True(t, presenter.closed)
}

func TestLiveSessionServesViewer(t *testing.T) {
	server, _ := newResponsesServer(t)
	cfg := testConfig(t, server.URL)
	cfg.Stage.Mode = string(stage.ModeLiveSession)
	cfg.Stage.HeyGen.APIKey = "heygen-key"
	cfg.Stage.HeyGen.AvatarA = "avatar-a"
	cfg.Stage.HeyGen.AvatarB = "avatar-b"
	cfg.Stage.HeyGen.SessionsFile = filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(cfg.Stage.HeyGen.SessionsFile,
		[]byte(`{"sessions":{"A":{"session_id":"sess-a"}}}`), 0o644))

	a, err := New(context.Background(), cfg, logger.Nop(),
		WithRegistry(prometheus.NewRegistry()),
		WithPresenter(stage.NewTextOnly()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NotNil(t, a.viewer)

	rec := httptest.NewRecorder()
	a.viewer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session?agent=A", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sess-a")
}

func TestTextStageHasNoViewer(t *testing.T) {
	server, _ := newResponsesServer(t)
	a, err := New(context.Background(), testConfig(t, server.URL), logger.Nop(), WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Nil(t, a.viewer)
}

func TestNewLanguageModelByProvider(t *testing.T) {
	model, err := newLanguageModel(config.LLMConfig{Provider: "openai", APIKey: "key"})
	require.NoError(t, err)
	assert.IsType(t, &openai.Client{}, model)

	model, err = newLanguageModel(config.LLMConfig{Provider: "groq", APIKey: "key"})
	require.NoError(t, err)
	assert.IsType(t, &groq.Client{}, model)

	_, err = newLanguageModel(config.LLMConfig{Provider: "parrot"})
	assert.Error(t, err)
}

func TestNewSynthesizerNoneDisablesSpeech(t *testing.T) {
	synthesizer, err := newSynthesizer(config.TTSConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, synthesizer)

	synthesizer, err = newSynthesizer(config.TTSConfig{Provider: "openai", APIKey: "key", OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.NotNil(t, synthesizer)
}

func TestSessionConfigMapsSettings(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Session.MaxTurns = 10
	cfg.Session.Timeout = time.Minute
	cfg.Topic.CancelInflight = true
	cfg.LLM.PersonaA = "You are a sailor."
	cfg.Retry.MaxRetries = 2

	session := sessionConfig(cfg, stage.ModeStaticImage, true)
	assert.Equal(t, 10, session.MaxTurns)
	assert.Equal(t, time.Minute, session.SessionTimeout)
	assert.True(t, session.CancelInflightOnTopicChange)
	assert.True(t, session.NeedsAudio)
	assert.Equal(t, "You are a sailor.", session.Personas[turns.SpeakerA])
	assert.NotContains(t, session.Personas, turns.SpeakerB)
	assert.Equal(t, "alloy", session.Voices[turns.SpeakerA])
	assert.Equal(t, "echo", session.Voices[turns.SpeakerB])
	assert.Equal(t, 2, session.Retry.MaxRetries)
	assert.NotNil(t, session.Retry.OnRetry)

	assert.False(t, sessionConfig(cfg, stage.ModeTextOnly, true).NeedsAudio)
	assert.False(t, sessionConfig(cfg, stage.ModeStaticImage, false).NeedsAudio)
}

func TestChatTopicHandlerSetsChatTopic(t *testing.T) {
	provider := newTopicProvider(config.TopicConfig{Default: "tides", TTL: time.Minute})
	handle := chatTopicHandler(provider, logger.Nop())

	handle(context.Background(), "volcanoes", topic.Author{DisplayName: "mod"})
	state := provider.Current(time.Now())
	assert.Equal(t, "volcanoes", state.Value)
	assert.Equal(t, topic.SourceChat, state.Source)

	handle(context.Background(), "  ", topic.Author{DisplayName: "mod"})
	assert.Equal(t, "volcanoes", provider.Current(time.Now()).Value)
}

func TestTranscriptSinkWithoutPathDropsRecords(t *testing.T) {
	sink, err := newTranscriptSink(config.TranscriptConfig{})
	require.NoError(t, err)
	assert.NoError(t, sink.Write(context.Background(), transcript.Record{Type: transcript.TypeTurn}))
	assert.NoError(t, sink.Close())
}
