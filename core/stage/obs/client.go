// Package obs is a small obs-websocket v5 client covering scene switching and
// media playback control.
package obs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultURL       = "ws://127.0.0.1:4455"
	handshakeTimeout = 10 * time.Second
)

var (
	ErrClosed         = errors.New("obs connection closed")
	ErrAuthentication = errors.New("obs authentication required but no password configured")
)

// Client keeps a single identified session with OBS.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu          sync.Mutex
	pending     map[string]chan response
	subscribers map[int]chan Event
	nextSubID   int

	done     chan struct{}
	closeErr error
	once     sync.Once

	Version string
}

type clientOptions struct {
	password      string
	subscriptions int
	dialer        *websocket.Dialer
}

type ClientOption func(*clientOptions)

func WithPassword(password string) ClientOption {
	return func(o *clientOptions) { o.password = password }
}

// WithEventSubscriptions overrides the event subscription mask.
func WithEventSubscriptions(mask int) ClientOption {
	return func(o *clientOptions) { o.subscriptions = mask }
}

func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(o *clientOptions) { o.dialer = dialer }
}

// Dial connects to OBS and completes the Hello/Identify handshake.
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	ctx, span := tracer.Start(ctx, "connect obs")
	defer span.End()

	options := clientOptions{
		subscriptions: SubscriptionGeneral | SubscriptionMediaInputs,
		dialer:        websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if url == "" {
		url = DefaultURL
	}

	conn, _, err := options.dialer.DialContext(ctx, url, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to connect to obs at %s: %w", url, err)
	}

	c := &Client{
		conn:        conn,
		pending:     make(map[string]chan response),
		subscribers: make(map[int]chan Event),
		done:        make(chan struct{}),
	}
	if err := c.handshake(ctx, options); err != nil {
		conn.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("obs.version", c.Version))

	go c.readLoop()
	return c, nil
}

func (c *Client) handshake(ctx context.Context, options clientOptions) error {
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})

	var msg message
	if err := c.conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("failed to read obs hello: %w", err)
	}
	if msg.Op != opHello {
		return fmt.Errorf("expected obs hello, got op %d", msg.Op)
	}
	var h hello
	if err := json.Unmarshal(msg.Data, &h); err != nil {
		return fmt.Errorf("failed to parse obs hello: %w", err)
	}
	c.Version = h.OBSWebSocketVersion

	ident := identify{RPCVersion: rpcVersion, EventSubscriptions: options.subscriptions}
	if h.Authentication != nil {
		if options.password == "" {
			return ErrAuthentication
		}
		ident.Authentication = authResponse(options.password, h.Authentication.Salt, h.Authentication.Challenge)
	}
	if err := c.write(opIdentify, ident); err != nil {
		return fmt.Errorf("failed to identify with obs: %w", err)
	}

	if err := c.conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("failed to read obs identified: %w", err)
	}
	if msg.Op != opIdentified {
		return fmt.Errorf("expected obs identified, got op %d", msg.Op)
	}
	return nil
}

func (c *Client) write(op opCode, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(message{Op: op, Data: payload})
}

func (c *Client) readLoop() {
	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.shutdown(err)
			return
		}

		switch msg.Op {
		case opResponse:
			var resp response
			if err := json.Unmarshal(msg.Data, &resp); err != nil {
				logger.Warn("failed to parse obs response", "error", err)
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[resp.RequestID]
			delete(c.pending, resp.RequestID)
			c.mu.Unlock()
			if ok {
				ch <- resp
			}

		case opEvent:
			var event Event
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				logger.Warn("failed to parse obs event", "error", err)
				continue
			}
			c.mu.Lock()
			for _, sub := range c.subscribers {
				select {
				case sub <- event:
				default:
					logger.Warn("dropping obs event for slow subscriber", "event", event.Type)
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *Client) shutdown(err error) {
	c.once.Do(func() {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			err = nil
		}
		c.mu.Lock()
		c.closeErr = err
		for id, sub := range c.subscribers {
			close(sub)
			delete(c.subscribers, id)
		}
		c.mu.Unlock()
		close(c.done)
	})
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended, nil while it is open or after a
// normal close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	err := c.conn.Close()
	c.shutdown(ErrClosed)
	return err
}

// Subscribe returns a buffered channel receiving every OBS event until
// cancel is called or the connection ends.
func (c *Client) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(sub)
		}
	}
}

// Request sends a request and decodes responseData into out when non-nil.
func (c *Client) Request(ctx context.Context, requestType string, data any, out any) error {
	ctx, span := tracer.Start(ctx, "obs request")
	defer span.End()
	span.SetAttributes(attribute.String("obs.request_type", requestType))

	id := uuid.NewString()
	ch := make(chan response, 1)

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return ErrClosed
	default:
	}
	c.pending[id] = ch
	c.mu.Unlock()

	cleanup := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	if err := c.write(opRequest, request{RequestType: requestType, RequestID: id, RequestData: data}); err != nil {
		cleanup()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to send %s: %w", requestType, err)
	}

	select {
	case resp := <-ch:
		if !resp.RequestStatus.Result {
			err := &RequestError{
				RequestType: requestType,
				Code:        resp.RequestStatus.Code,
				Comment:     resp.RequestStatus.Comment,
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		if out != nil && len(resp.ResponseData) > 0 {
			if err := json.Unmarshal(resp.ResponseData, out); err != nil {
				return fmt.Errorf("failed to parse %s response: %w", requestType, err)
			}
		}
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		cleanup()
		return ctx.Err()
	}
}

type VersionInfo struct {
	OBSVersion          string `json:"obsVersion"`
	OBSWebSocketVersion string `json:"obsWebSocketVersion"`
	RPCVersion          int    `json:"rpcVersion"`
}

func (c *Client) GetVersion(ctx context.Context) (VersionInfo, error) {
	var info VersionInfo
	err := c.Request(ctx, "GetVersion", nil, &info)
	return info, err
}

func (c *Client) SceneNames(ctx context.Context) ([]string, error) {
	var list struct {
		Scenes []struct {
			SceneName string `json:"sceneName"`
		} `json:"scenes"`
	}
	if err := c.Request(ctx, "GetSceneList", nil, &list); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(list.Scenes))
	for _, scene := range list.Scenes {
		names = append(names, scene.SceneName)
	}
	return names, nil
}

// InputExists returns an error when OBS does not know the input.
func (c *Client) InputExists(ctx context.Context, inputName string) error {
	return c.Request(ctx, "GetInputSettings", map[string]any{"inputName": inputName}, nil)
}

func (c *Client) SetCurrentProgramScene(ctx context.Context, sceneName string) error {
	return c.Request(ctx, "SetCurrentProgramScene", map[string]any{"sceneName": sceneName}, nil)
}

// SetMediaFile points a media source at a local file. OBS needs absolute
// paths.
func (c *Client) SetMediaFile(ctx context.Context, inputName string, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve media path: %w", err)
	}
	return c.Request(ctx, "SetInputSettings", map[string]any{
		"inputName":     inputName,
		"inputSettings": map[string]any{"local_file": absPath},
		"overlay":       true,
	}, nil)
}

func (c *Client) RestartMedia(ctx context.Context, inputName string) error {
	return c.Request(ctx, "TriggerMediaInputAction", map[string]any{
		"inputName":   inputName,
		"mediaAction": mediaActionRestart,
	}, nil)
}

type MediaStatus struct {
	State    MediaState
	Duration time.Duration
	Cursor   time.Duration
}

func (c *Client) MediaStatus(ctx context.Context, inputName string) (MediaStatus, error) {
	var status struct {
		MediaState    string `json:"mediaState"`
		MediaDuration *int64 `json:"mediaDuration"`
		MediaCursor   *int64 `json:"mediaCursor"`
	}
	if err := c.Request(ctx, "GetMediaInputStatus", map[string]any{"inputName": inputName}, &status); err != nil {
		return MediaStatus{}, err
	}

	result := MediaStatus{State: NormalizeMediaState(status.MediaState)}
	if status.MediaDuration != nil {
		result.Duration = time.Duration(*status.MediaDuration) * time.Millisecond
	}
	if status.MediaCursor != nil {
		result.Cursor = time.Duration(*status.MediaCursor) * time.Millisecond
	}
	return result, nil
}
