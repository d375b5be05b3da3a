// Package youtube watches a YouTube live chat for topic commands.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/koscakluka/ema-duet/core/retry"
	"github.com/koscakluka/ema-duet/core/topic"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	DefaultAPIBase  = "https://www.googleapis.com/youtube/v3"
	DefaultTokenURL = "https://oauth2.googleapis.com/token"

	defaultPollFallback = 2 * time.Second
	defaultMinInterval  = time.Second
	errorBackoff        = 3 * time.Second

	seenLimit  = 2000
	seenRetain = 1000
)

var ErrNoLiveChat = errors.New("live chat id or broadcast id is required")

type Config struct {
	APIKey       string
	ClientID     string
	ClientSecret string
	RefreshToken string

	LiveChatID  string
	BroadcastID string

	// PollFallback is used when the API does not suggest a polling interval.
	PollFallback time.Duration
	// MinInterval is the lowest spacing allowed between API calls.
	MinInterval time.Duration
}

// TopicHandler receives accepted topic commands.
type TopicHandler func(ctx context.Context, topic string, author topic.Author)

// Poller reads live chat messages and forwards permitted topic commands.
type Poller struct {
	cfg        Config
	apiBase    string
	tokenURL   string
	baseClient *http.Client
	httpClient *http.Client
	limiter    *rate.Limiter

	filter  *topic.CommandFilter
	onTopic TopicHandler

	seen      map[string]struct{}
	seenOrder []string
}

type PollerOption func(*Poller)

func WithAPIBase(apiBase string) PollerOption {
	return func(p *Poller) { p.apiBase = apiBase }
}

func WithTokenURL(tokenURL string) PollerOption {
	return func(p *Poller) { p.tokenURL = tokenURL }
}

func WithHTTPClient(client *http.Client) PollerOption {
	return func(p *Poller) { p.baseClient = client }
}

func NewPoller(cfg Config, filter *topic.CommandFilter, onTopic TopicHandler, opts ...PollerOption) *Poller {
	if cfg.PollFallback <= 0 {
		cfg.PollFallback = defaultPollFallback
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaultMinInterval
	}

	p := &Poller{
		cfg:        cfg,
		apiBase:    DefaultAPIBase,
		tokenURL:   DefaultTokenURL,
		baseClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		limiter:    rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		filter:     filter,
		onTopic:    onTopic,
		seen:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.httpClient = p.baseClient
	if cfg.ClientID != "" && cfg.ClientSecret != "" && cfg.RefreshToken != "" {
		oauthConfig := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: p.tokenURL},
		}
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, p.baseClient)
		p.httpClient = oauthConfig.Client(tokenCtx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	}
	return p
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	liveChatID, err := p.liveChatID(ctx)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "watching live chat", "live_chat_id", liveChatID)

	var pageToken string
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil
		}

		next, interval, err := p.poll(ctx, liveChatID, pageToken)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.WarnContext(ctx, "failed to poll live chat", "error", err)
			interval = errorBackoff
		} else {
			pageToken = next
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

type liveChatMessage struct {
	ID      string `json:"id"`
	Snippet struct {
		DisplayMessage string `json:"displayMessage"`
	} `json:"snippet"`
	AuthorDetails struct {
		ChannelID       string `json:"channelId"`
		DisplayName     string `json:"displayName"`
		IsChatOwner     bool   `json:"isChatOwner"`
		IsChatModerator bool   `json:"isChatModerator"`
	} `json:"authorDetails"`
}

type messagesResponse struct {
	Items                 []liveChatMessage `json:"items"`
	NextPageToken         string            `json:"nextPageToken"`
	PollingIntervalMillis int               `json:"pollingIntervalMillis"`
}

func (p *Poller) poll(ctx context.Context, liveChatID string, pageToken string) (string, time.Duration, error) {
	ctx, span := tracer.Start(ctx, "poll live chat")
	defer span.End()

	query := url.Values{
		"liveChatId": {liveChatID},
		"part":       {"snippet,authorDetails"},
		"maxResults": {"200"},
	}
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}

	var resp messagesResponse
	if err := p.get(ctx, "/liveChat/messages", query, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", 0, err
	}
	span.SetAttributes(attribute.Int("youtube.items", len(resp.Items)))

	for _, item := range resp.Items {
		p.handle(ctx, item)
	}

	interval := p.cfg.PollFallback
	if resp.PollingIntervalMillis > 0 {
		interval = time.Duration(resp.PollingIntervalMillis) * time.Millisecond
	}
	return resp.NextPageToken, interval, nil
}

func (p *Poller) handle(ctx context.Context, item liveChatMessage) {
	if item.ID == "" || !p.markSeen(item.ID) {
		return
	}

	author := topic.Author{
		ChannelID:   item.AuthorDetails.ChannelID,
		DisplayName: item.AuthorDetails.DisplayName,
		IsOwner:     item.AuthorDetails.IsChatOwner,
		IsModerator: item.AuthorDetails.IsChatModerator,
	}
	requested, ok := p.filter.Accept(item.Snippet.DisplayMessage, author, time.Now())
	if !ok {
		return
	}

	logger.InfoContext(ctx, "topic requested from chat", "topic", requested, "author", author.DisplayName)
	p.onTopic(ctx, requested, author)
}

// markSeen reports whether id is new. The set keeps the most recent ids
// once it grows past its limit.
func (p *Poller) markSeen(id string) bool {
	if _, ok := p.seen[id]; ok {
		return false
	}
	p.seen[id] = struct{}{}
	p.seenOrder = append(p.seenOrder, id)

	if len(p.seenOrder) > seenLimit {
		dropped := p.seenOrder[:len(p.seenOrder)-seenRetain]
		for _, old := range dropped {
			delete(p.seen, old)
		}
		p.seenOrder = append([]string(nil), p.seenOrder[len(p.seenOrder)-seenRetain:]...)
	}
	return true
}

func (p *Poller) liveChatID(ctx context.Context) (string, error) {
	if p.cfg.LiveChatID != "" {
		return p.cfg.LiveChatID, nil
	}
	if p.cfg.BroadcastID == "" {
		return "", ErrNoLiveChat
	}

	var resp struct {
		Items []struct {
			Snippet struct {
				LiveChatID string `json:"liveChatId"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := p.get(ctx, "/liveBroadcasts", url.Values{"part": {"snippet"}, "id": {p.cfg.BroadcastID}}, &resp); err != nil {
		return "", fmt.Errorf("failed to look up broadcast: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet.LiveChatID == "" {
		return "", fmt.Errorf("broadcast %s has no live chat", p.cfg.BroadcastID)
	}
	return resp.Items[0].Snippet.LiveChatID, nil
}

func (p *Poller) get(ctx context.Context, path string, query url.Values, out any) error {
	if p.httpClient == p.baseClient && p.cfg.APIKey != "" {
		query.Set("key", p.cfg.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return retry.NewStatusError(resp, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response (%s bytes): %w", strconv.Itoa(len(body)), err)
	}
	return nil
}
