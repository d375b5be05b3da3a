package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/koscakluka/ema-duet/core/audio"
	"github.com/koscakluka/ema-duet/core/texttospeech"
)

func TestSynthesizeWritesAudioToOutputDir(t *testing.T) {
	var received speechRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != speechEndpoint {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		_, _ = w.Write([]byte("ID3 fake mp3 data"))
	}))
	defer server.Close()

	dir := t.TempDir()
	synthesizer := NewSynthesizer("key", dir,
		WithBaseURL(server.URL),
		WithHTTPClient(server.Client()),
		WithProber(audio.Prober{FFProbePath: filepath.Join(dir, "no-ffprobe")}),
	)

	speech, err := synthesizer.Synthesize(context.Background(), "0001_A", "Hello there.", texttospeech.WithVoice("nova"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if speech.Path != filepath.Join(dir, "0001_A.mp3") {
		t.Fatalf("unexpected path %q", speech.Path)
	}
	data, err := os.ReadFile(speech.Path)
	if err != nil || string(data) != "ID3 fake mp3 data" {
		t.Fatalf("expected audio on disk, got %q (%v)", data, err)
	}
	if received.Voice != "nova" || received.Input != "Hello there." || received.Model != DefaultModel {
		t.Fatalf("unexpected request %+v", received)
	}
	if speech.Duration != 0 {
		t.Fatalf("expected unknown duration without ffprobe, got %s", speech.Duration)
	}
}

func TestSynthesizeClassifiesRateLimits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","code":"rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	synthesizer := NewSynthesizer("key", t.TempDir(), WithBaseURL(server.URL))
	_, err := synthesizer.Synthesize(context.Background(), "0001_A", "Hi.")

	var synthesisErr *texttospeech.SynthesisError
	if !errors.As(err, &synthesisErr) {
		t.Fatalf("expected synthesis error, got %v", err)
	}
	if !synthesisErr.Retryable() || !errors.Is(err, texttospeech.ErrRateLimited) {
		t.Fatalf("expected retryable rate limit, got %+v", synthesisErr)
	}
}

func TestSynthesizeDoesNotRetryBadRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad voice","code":"invalid_voice"}}`))
	}))
	defer server.Close()

	synthesizer := NewSynthesizer("key", t.TempDir(), WithBaseURL(server.URL))
	_, err := synthesizer.Synthesize(context.Background(), "0001_A", "Hi.")

	var synthesisErr *texttospeech.SynthesisError
	if !errors.As(err, &synthesisErr) || synthesisErr.Retryable() {
		t.Fatalf("expected non-retryable synthesis error, got %v", err)
	}
	if !errors.Is(err, texttospeech.ErrInvalidVoice) {
		t.Fatalf("expected invalid voice cause, got %v", err)
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	synthesizer := NewSynthesizer("key", t.TempDir())
	if _, err := synthesizer.Synthesize(context.Background(), "x", ""); !errors.Is(err, texttospeech.ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}
