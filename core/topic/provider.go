// Package topic resolves the discussion topic from its sources: a chat
// override, the environment, a hot-reloaded file and a built-in default.
package topic

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type Source string

const (
	SourceChat    Source = "chat"
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
	SourceDefault Source = "default"
)

const (
	DefaultTopic          = "An open discussion about how everyday technology shapes the way we live"
	DefaultReloadInterval = 3 * time.Minute
	DefaultChatTTL        = 15 * time.Minute
)

// State is the topic in effect and where it came from.
type State struct {
	Value  string
	Source Source
	SetAt  time.Time
	// TTL is only set for chat topics.
	TTL time.Duration
}

// Expired reports whether a chat topic has outlived its TTL at now.
func (s State) Expired(now time.Time) bool {
	return s.TTL > 0 && !now.Before(s.SetAt.Add(s.TTL))
}

// Provider resolves the current topic with precedence chat > env > file >
// default. It is safe for concurrent use.
type Provider struct {
	defaultTopic   string
	envTopic       string
	filePath       string
	reloadInterval time.Duration
	chatTTL        time.Duration

	mu         sync.Mutex
	fileTopic  string
	fileSetAt  time.Time
	fileMTime  time.Time
	lastReload time.Time
	chat       *State
	createdAt  time.Time
}

type ProviderOption func(*Provider)

func WithDefault(topic string) ProviderOption {
	return func(p *Provider) {
		if topic = strings.TrimSpace(topic); topic != "" {
			p.defaultTopic = topic
		}
	}
}

// WithEnvTopic sets the value taken from the environment.
func WithEnvTopic(topic string) ProviderOption {
	return func(p *Provider) { p.envTopic = strings.TrimSpace(topic) }
}

// WithFile makes the provider read its topic from path, re-reading it at
// most every reloadInterval unless Watch notices a change first.
func WithFile(path string, reloadInterval time.Duration) ProviderOption {
	return func(p *Provider) {
		p.filePath = path
		if reloadInterval > 0 {
			p.reloadInterval = reloadInterval
		}
	}
}

func WithChatTTL(ttl time.Duration) ProviderOption {
	return func(p *Provider) {
		if ttl > 0 {
			p.chatTTL = ttl
		}
	}
}

func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{
		defaultTopic:   DefaultTopic,
		reloadInterval: DefaultReloadInterval,
		chatTTL:        DefaultChatTTL,
		createdAt:      time.Now(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Current returns the topic in effect at now.
func (p *Provider) Current(now time.Time) State {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.chat != nil {
		if !p.chat.Expired(now) {
			return *p.chat
		}
		logger.Info("chat topic expired", "topic", p.chat.Value)
		p.chat = nil
	}

	if p.envTopic != "" {
		return State{Value: p.envTopic, Source: SourceEnv, SetAt: p.createdAt}
	}

	if p.filePath != "" && (p.lastReload.IsZero() || now.Sub(p.lastReload) >= p.reloadInterval) {
		p.reloadLocked(now, false)
	}
	if p.fileTopic != "" {
		return State{Value: p.fileTopic, Source: SourceFile, SetAt: p.fileSetAt}
	}
	return State{Value: p.defaultTopic, Source: SourceDefault, SetAt: p.createdAt}
}

// SetChat installs a chat topic that overrides every other source until its
// TTL runs out.
func (p *Provider) SetChat(value string, now time.Time) (State, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return State{}, errors.New("topic is empty")
	}

	state := State{Value: value, Source: SourceChat, SetAt: now, TTL: p.chatTTL}
	p.mu.Lock()
	p.chat = &state
	p.mu.Unlock()

	logger.Info("chat topic set", "topic", value, "ttl", p.chatTTL)
	return state, nil
}

// Reload re-reads the topic file immediately.
func (p *Provider) Reload(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloadLocked(now, true)
}

func (p *Provider) reloadLocked(now time.Time, force bool) {
	p.lastReload = now

	stat, err := os.Stat(p.filePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to stat topic file", "path", p.filePath, "error", err)
		}
		return
	}
	if !force && stat.ModTime().Equal(p.fileMTime) && p.fileTopic != "" {
		return
	}

	data, err := os.ReadFile(p.filePath)
	if err != nil {
		logger.Warn("failed to read topic file", "path", p.filePath, "error", err)
		return
	}
	p.fileMTime = stat.ModTime()

	// An emptied file keeps the last known topic.
	if topic := strings.TrimSpace(string(data)); topic != "" && topic != p.fileTopic {
		p.fileTopic = topic
		p.fileSetAt = now
	}
}

// Watch reloads the topic file as soon as it is written. It blocks until ctx
// is done.
func (p *Provider) Watch(ctx context.Context) error {
	if p.filePath == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create topic watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(p.filePath)); err != nil {
		return fmt.Errorf("failed to watch topic dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(p.filePath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.Reload(time.Now())
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("topic watcher error: %w", err)
		}
	}
}
