package heygen

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/koscakluka/ema-duet/internal/utils"
	"go.opentelemetry.io/otel/attribute"
)

type SessionRequest struct {
	AvatarName string
	AvatarID   string
	VoiceID    string
	VoiceRate  float64
}

// StreamSession is an interactive avatar session a browser page can attach
// to.
type StreamSession struct {
	Agent       string    `json:"agent"`
	SessionID   string    `json:"session_id"`
	URL         string    `json:"url"`
	AccessToken string    `json:"access_token"`
	AvatarName  string    `json:"avatar_name"`
	VoiceID     string    `json:"voice_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	token string
}

func (s StreamSession) Token() string { return s.token }

func (c *Client) CreateToken(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "create heygen streaming token")
	defer span.End()

	data, err := c.postJSON(ctx, "/v1/streaming.create_token", "", map[string]any{})
	if err != nil {
		return "", recordErr(span, fmt.Errorf("failed to create streaming token: %w", err))
	}
	token := firstKey(data, "token", "access_token")
	if token == "" {
		return "", recordErr(span, fmt.Errorf("%w: token", ErrMissingField))
	}
	return token, nil
}

// OpenSession creates and starts a streaming session for agent.
func (c *Client) OpenSession(ctx context.Context, agent string, req SessionRequest) (StreamSession, error) {
	ctx, span := tracer.Start(ctx, "open heygen streaming session")
	defer span.End()
	span.SetAttributes(attribute.String("heygen.agent", agent))

	token, err := c.CreateToken(ctx)
	if err != nil {
		return StreamSession{}, err
	}

	payload := map[string]any{
		"quality":              "high",
		"version":              "v2",
		"video_encoding":       "H264",
		"disable_idle_timeout": true,
	}
	switch {
	case req.AvatarName != "":
		payload["avatar_name"] = req.AvatarName
	case req.AvatarID != "":
		payload["avatar_id"] = req.AvatarID
	default:
		return StreamSession{}, recordErr(span, errors.New("avatar name or id is required"))
	}
	if req.VoiceID != "" {
		rate := req.VoiceRate
		if rate == 0 {
			rate = 1
		}
		payload["voice"] = map[string]any{"voice_id": req.VoiceID, "rate": rate}
	}

	data, err := c.postJSON(ctx, "/v1/streaming.new", token, payload)
	if err != nil {
		return StreamSession{}, recordErr(span, fmt.Errorf("failed to create streaming session: %w", err))
	}
	info := envelope(data)

	session := StreamSession{
		Agent:       agent,
		SessionID:   firstKey(info, "session_id"),
		URL:         firstKey(info, "url"),
		AccessToken: firstKey(info, "access_token"),
		AvatarName:  cmp.Or(req.AvatarName, req.AvatarID),
		VoiceID:     req.VoiceID,
		CreatedAt:   time.Now(),
		token:       token,
	}
	if session.SessionID == "" {
		return StreamSession{}, recordErr(span, fmt.Errorf("%w: session_id", ErrMissingField))
	}
	span.SetAttributes(attribute.String("heygen.session_id", session.SessionID))

	if _, err := c.postJSON(ctx, "/v1/streaming.start", token, map[string]any{"session_id": session.SessionID}); err != nil {
		return StreamSession{}, recordErr(span, fmt.Errorf("failed to start streaming session: %w", err))
	}
	return session, nil
}

// Speak makes the avatar repeat text verbatim.
func (c *Client) Speak(ctx context.Context, session StreamSession, text string) error {
	ctx, span := tracer.Start(ctx, "heygen streaming task")
	defer span.End()
	span.SetAttributes(attribute.String("heygen.session_id", session.SessionID))

	_, err := c.postJSON(ctx, "/v1/streaming.task", session.token, map[string]any{
		"session_id": session.SessionID,
		"text":       text,
		"task_type":  "repeat",
	})
	if err != nil {
		return recordErr(span, fmt.Errorf("failed to send streaming task: %w", err))
	}
	return nil
}

func (c *Client) CloseSession(ctx context.Context, session StreamSession) error {
	ctx, span := tracer.Start(ctx, "close heygen streaming session")
	defer span.End()

	if _, err := c.postJSON(ctx, "/v1/streaming.stop", session.token, map[string]any{"session_id": session.SessionID}); err != nil {
		return recordErr(span, fmt.Errorf("failed to stop streaming session: %w", err))
	}
	return nil
}

// WriteSessionsFile publishes session details for the viewer page.
func WriteSessionsFile(path string, sessions map[string]StreamSession) error {
	payload, err := json.Marshal(struct {
		UpdatedAt time.Time                `json:"updated_at"`
		Sessions  map[string]StreamSession `json:"sessions"`
	}{
		UpdatedAt: time.Now(),
		Sessions:  sessions,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}

	if _, err := utils.WriteFileAtomic(path, bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("failed to write sessions file: %w", err)
	}
	return nil
}
