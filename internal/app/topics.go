package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/koscakluka/ema-duet/core/topic"
	"github.com/koscakluka/ema-duet/core/topic/youtube"
	"github.com/koscakluka/ema-duet/internal/config"
)

func newTopicProvider(cfg config.TopicConfig) *topic.Provider {
	opts := []topic.ProviderOption{
		topic.WithDefault(cfg.Default),
		topic.WithEnvTopic(cfg.Env),
		topic.WithChatTTL(cfg.TTL),
	}
	if cfg.File != "" {
		opts = append(opts, topic.WithFile(cfg.File, cfg.ReloadInterval))
	}
	return topic.NewProvider(opts...)
}

// newChatPoller forwards accepted chat commands to the provider as chat
// topics.
func newChatPoller(cfg *config.Config, topics *topic.Provider, logger *slog.Logger) *youtube.Poller {
	filter := topic.NewCommandFilter(topic.CommandConfig{
		Prefix:    cfg.Topic.CommandPrefix,
		Cooldown:  cfg.Topic.Cooldown,
		Allowlist: cfg.Topic.Allowlist,
		ModsOnly:  cfg.Topic.ModsOnly,
	})

	return youtube.NewPoller(youtube.Config{
		APIKey:       cfg.YouTube.APIKey,
		ClientID:     cfg.YouTube.ClientID,
		ClientSecret: cfg.YouTube.ClientSecret,
		RefreshToken: cfg.YouTube.RefreshToken,
		LiveChatID:   cfg.YouTube.LiveChatID,
		BroadcastID:  cfg.YouTube.BroadcastID,
		PollFallback: cfg.YouTube.PollInterval,
	}, filter, chatTopicHandler(topics, logger))
}

func chatTopicHandler(topics *topic.Provider, logger *slog.Logger) youtube.TopicHandler {
	return func(ctx context.Context, value string, author topic.Author) {
		state, err := topics.SetChat(value, time.Now())
		if err != nil {
			logger.WarnContext(ctx, "rejected chat topic", "author", author.DisplayName, "error", err)
			return
		}
		logger.InfoContext(ctx, "chat topic accepted",
			"topic", state.Value,
			"author", author.DisplayName,
			"expires_in", state.TTL,
		)
	}
}
