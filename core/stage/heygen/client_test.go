package heygen

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/ema-duet/core/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderVideoRunsTheWholeFlow(t *testing.T) {
	var statusCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/asset", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "audio/wav", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "RIFF", string(body))
		_, _ = w.Write([]byte(`{"code":100,"data":{"id":"asset-1"}}`))
	})
	mux.HandleFunc("/v2/video/generate", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			VideoInputs []struct {
				Character map[string]any `json:"character"`
				Voice     map[string]any `json:"voice"`
			} `json:"video_inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Len(t, payload.VideoInputs, 1)
		assert.Equal(t, "avatar-a", payload.VideoInputs[0].Character["avatar_id"])
		assert.Equal(t, "asset-1", payload.VideoInputs[0].Voice["audio_asset_id"])
		_, _ = w.Write([]byte(`{"data":{"video_id":"video-1"}}`))
	})
	var server *httptest.Server
	mux.HandleFunc("/v1/video_status.get", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "video-1", r.URL.Query().Get("video_id"))
		if statusCalls.Add(1) == 1 {
			_, _ = w.Write([]byte(`{"data":{"status":"processing"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"status":"completed","video_url":"` + server.URL + `/files/video-1.mp4"}}`))
	})
	mux.HandleFunc("/files/video-1.mp4", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("mp4 bytes"))
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	dir := t.TempDir()
	audioPath := filepath.Join(dir, "0001_A.wav")
	require.NoError(t, os.WriteFile(audioPath, []byte("RIFF"), 0o644))

	client, err := NewClient("key",
		WithAPIBase(server.URL),
		WithUploadURL(server.URL+"/v1/asset"),
		WithHTTPClient(server.Client()),
		WithPollInterval(time.Millisecond),
	)
	require.NoError(t, err)

	outPath := filepath.Join(dir, "video", "0001_A.mp4")
	require.NoError(t, client.RenderVideo(context.Background(), "avatar-a", audioPath, outPath))

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "mp4 bytes", string(data))
	assert.Equal(t, int32(2), statusCalls.Load())
}

func TestWaitForVideoStopsOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"status":"failed","error":"bad audio"}}`))
	}))
	defer server.Close()

	client, err := NewClient("key", WithAPIBase(server.URL))
	require.NoError(t, err)

	_, err = client.WaitForVideo(context.Background(), "video-1")
	assert.ErrorIs(t, err, ErrVideoFailed)
	assert.False(t, retry.IsRetryable(err))
}

func TestStreamingSessionLifecycle(t *testing.T) {
	var tasks []map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/streaming.create_token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(`{"data":{"token":"session-token"}}`))
	})
	mux.HandleFunc("/v1/streaming.new", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer session-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"session_id":"s-1","url":"wss://livekit","access_token":"lk"}}`))
	})
	mux.HandleFunc("/v1/streaming.start", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer session-token", r.Header.Get("Authorization"))
	})
	mux.HandleFunc("/v1/streaming.task", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		tasks = append(tasks, payload)
	})
	mux.HandleFunc("/v1/streaming.stop", func(w http.ResponseWriter, r *http.Request) {})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := NewClient("key", WithAPIBase(server.URL))
	require.NoError(t, err)

	session, err := client.OpenSession(context.Background(), "A", SessionRequest{AvatarName: "Anna", VoiceID: "v1"})
	require.NoError(t, err)
	assert.Equal(t, "s-1", session.SessionID)
	assert.Equal(t, "wss://livekit", session.URL)
	assert.Equal(t, "session-token", session.Token())

	require.NoError(t, client.Speak(context.Background(), session, "Hello there."))
	require.Len(t, tasks, 1)
	assert.Equal(t, "repeat", tasks[0]["task_type"])
	assert.Equal(t, "Hello there.", tasks[0]["text"])

	require.NoError(t, client.CloseSession(context.Background(), session))
}

func TestWriteSessionsFileOmitsToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	session := StreamSession{Agent: "A", SessionID: "s-1", token: "secret"}

	require.NoError(t, WriteSessionsFile(path, map[string]StreamSession{"A": session}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"session_id":"s-1"`)
	assert.NotContains(t, string(data), "secret")
}

func TestStatusErrorsAreClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := NewClient("key", WithAPIBase(server.URL))
	require.NoError(t, err)

	_, err = client.CreateToken(context.Background())
	var statusErr *retry.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.False(t, retry.IsRetryable(err))
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
