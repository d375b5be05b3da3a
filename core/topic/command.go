package topic

import (
	"strings"
	"sync"
	"time"
)

const (
	DefaultCommandPrefix = "!topic "
	DefaultCooldown      = 3 * time.Minute
)

// Author describes who sent a chat message.
type Author struct {
	ChannelID   string
	DisplayName string
	IsOwner     bool
	IsModerator bool
}

type CommandConfig struct {
	Prefix    string
	Cooldown  time.Duration
	Allowlist []string
	// ModsOnly restricts commands to the owner and moderators when no
	// allow-list is set.
	ModsOnly bool
}

// CommandFilter turns chat messages into topic changes, applying the prefix,
// allow-list and cooldown rules.
type CommandFilter struct {
	prefix    string
	cooldown  time.Duration
	allowlist map[string]struct{}
	modsOnly  bool

	mu         sync.Mutex
	lastChange time.Time
}

func NewCommandFilter(cfg CommandConfig) *CommandFilter {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultCommandPrefix
	}

	allowlist := make(map[string]struct{}, len(cfg.Allowlist))
	for _, entry := range cfg.Allowlist {
		if entry = strings.TrimSpace(entry); entry != "" {
			allowlist[entry] = struct{}{}
		}
	}

	return &CommandFilter{
		prefix:    strings.ToLower(prefix),
		cooldown:  cfg.Cooldown,
		allowlist: allowlist,
		modsOnly:  cfg.ModsOnly,
	}
}

// Accept returns the requested topic when text is a permitted command.
// Accepted commands start the cooldown.
func (f *CommandFilter) Accept(text string, author Author, now time.Time) (string, bool) {
	text = strings.TrimSpace(text)
	if !f.allowed(author) {
		return "", false
	}

	// A trailing space in the prefix is optional at the end of the command
	// word, so "!topic:foo" and "!topic foo" both work.
	prefix := strings.TrimRight(f.prefix, " ")
	if !strings.HasPrefix(strings.ToLower(text), prefix) {
		return "", false
	}
	rest := text[len(prefix):]
	if rest != "" && !strings.ContainsAny(rest[:1], " :") {
		return "", false
	}
	topic := strings.Trim(rest, " :")
	if topic == "" {
		return "", false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.lastChange.IsZero() && now.Sub(f.lastChange) < f.cooldown {
		return "", false
	}
	f.lastChange = now
	return topic, true
}

func (f *CommandFilter) allowed(author Author) bool {
	if len(f.allowlist) > 0 {
		_, byID := f.allowlist[author.ChannelID]
		_, byName := f.allowlist[author.DisplayName]
		return byID || byName
	}
	if f.modsOnly {
		return author.IsOwner || author.IsModerator
	}
	return true
}
