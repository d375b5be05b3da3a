package control

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Viewer serves the browser pages that join the live avatar sessions and the
// session details they read from the sessions file.
type Viewer struct {
	sessionsFile string
	webRoot      string

	router chi.Router
}

// sessionsPayload mirrors the sessions file written by the live-session stage.
type sessionsPayload struct {
	UpdatedAt json.RawMessage            `json:"updated_at,omitempty"`
	Sessions  map[string]json.RawMessage `json:"sessions"`
}

func NewViewer(sessionsFile string, webRoot string) *Viewer {
	v := &Viewer{sessionsFile: sessionsFile, webRoot: webRoot}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Use(middleware.SetHeader("Access-Control-Allow-Origin", "*"))

	r.Get("/", v.page("index.html"))
	r.Get("/index.html", v.page("index.html"))
	r.Get("/agent", v.page("agent.html"))
	r.Get("/agent.html", v.page("agent.html"))
	r.Get("/agent/{agent}", v.handleAgentRedirect)
	r.Get("/api/sessions", v.handleSessions)
	r.Get("/api/session", v.handleSession)

	v.router = r
	return v
}

func (v *Viewer) Handler() http.Handler { return v.router }

// Run serves on addr until ctx is done.
func (v *Viewer) Run(ctx context.Context, addr string) error {
	return listen(ctx, "viewer", addr, v.router)
}

func (v *Viewer) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(v.webRoot, name)
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, path)
	}
}

func (v *Viewer) handleAgentRedirect(w http.ResponseWriter, r *http.Request) {
	agent := strings.ToUpper(chi.URLParam(r, "agent"))
	if agent != "A" && agent != "B" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/agent.html?agent="+agent, http.StatusFound)
}

func (v *Viewer) handleSessions(w http.ResponseWriter, r *http.Request) {
	payload, err := v.readSessions()
	if err != nil {
		logger.WarnContext(r.Context(), "failed to read sessions file", "path", v.sessionsFile, "error", err)
	}
	if payload.Sessions == nil {
		payload.Sessions = map[string]json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleSession returns one agent's session, speaker A unless ?agent= says
// otherwise.
func (v *Viewer) handleSession(w http.ResponseWriter, r *http.Request) {
	agent := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("agent")))
	if agent == "" {
		agent = "A"
	}

	payload, err := v.readSessions()
	if err != nil {
		logger.WarnContext(r.Context(), "failed to read sessions file", "path", v.sessionsFile, "error", err)
	}
	session, ok := payload.Sessions[agent]
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(session)
}

// readSessions returns an empty payload while the file does not exist yet.
func (v *Viewer) readSessions() (sessionsPayload, error) {
	var payload sessionsPayload

	data, err := os.ReadFile(v.sessionsFile)
	if errors.Is(err, fs.ErrNotExist) {
		return payload, nil
	}
	if err != nil {
		return payload, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return sessionsPayload{}, err
	}
	return payload, nil
}
