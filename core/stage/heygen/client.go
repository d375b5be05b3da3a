// Package heygen talks to the HeyGen avatar APIs: pre-rendered videos from an
// audio track and interactive streaming sessions.
package heygen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/koscakluka/ema-duet/core/retry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultAPIBase   = "https://api.heygen.com"
	DefaultUploadURL = "https://upload.heygen.com/v1/asset"

	defaultPollInterval = 5 * time.Second
)

var ErrMissingAPIKey = errors.New("heygen api key is required")

type Client struct {
	apiKey       string
	apiBase      string
	uploadURL    string
	pollInterval time.Duration
	httpClient   *http.Client
}

type ClientOption func(*Client)

func WithAPIBase(apiBase string) ClientOption {
	return func(c *Client) { c.apiBase = apiBase }
}

func WithUploadURL(uploadURL string) ClientOption {
	return func(c *Client) { c.uploadURL = uploadURL }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithPollInterval sets how often video status is checked.
func WithPollInterval(interval time.Duration) ClientOption {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	c := &Client{
		apiKey:       apiKey,
		apiBase:      DefaultAPIBase,
		uploadURL:    DefaultUploadURL,
		pollInterval: defaultPollInterval,
		httpClient:   &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// do sends a request authenticated either with the API key or, when token
// is set, with a streaming session token.
func (c *Client) do(ctx context.Context, method string, endpoint string, token string, contentType string, body io.Reader) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, retry.NewStatusError(resp, respBody)
	}

	data := map[string]any{}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(respBody, &data); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return data, nil
}

func (c *Client) postJSON(ctx context.Context, path string, token string, payload any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.apiBase+path, token, "application/json", bytes.NewReader(body))
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values) (map[string]any, error) {
	endpoint := c.apiBase + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, endpoint, "", "", nil)
}

// firstKey looks for the first non-empty key, either at the top level or
// inside the "data" envelope.
func firstKey(data map[string]any, keys ...string) string {
	for _, scope := range []map[string]any{data, envelope(data)} {
		for _, key := range keys {
			if value, ok := scope[key]; ok && value != nil {
				if s := fmt.Sprint(value); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func envelope(data map[string]any) map[string]any {
	if nested, ok := data["data"].(map[string]any); ok {
		return nested
	}
	return data
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
