package heygen

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/koscakluka/ema-duet/core/retry"
	"github.com/koscakluka/ema-duet/internal/utils"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrVideoFailed  = errors.New("heygen video rendering failed")
	ErrMissingField = errors.New("heygen response is missing a field")
)

type CharacterType string

const (
	CharacterAvatar       CharacterType = "avatar"
	CharacterTalkingPhoto CharacterType = "talking_photo"
)

type VideoRequest struct {
	AvatarID      string
	AvatarStyle   string
	CharacterType CharacterType
	AudioAssetID  string
	Width         int
	Height        int
	Caption       bool
}

// UploadAsset uploads a local file and returns its asset id.
func (c *Client) UploadAsset(ctx context.Context, path string) (string, error) {
	ctx, span := tracer.Start(ctx, "upload heygen asset")
	defer span.End()

	file, err := os.Open(path)
	if err != nil {
		return "", recordErr(span, fmt.Errorf("failed to open asset: %w", err))
	}
	defer file.Close()

	data, err := c.do(ctx, http.MethodPost, c.uploadURL, "", guessMIME(path), file)
	if err != nil {
		return "", recordErr(span, fmt.Errorf("failed to upload asset: %w", err))
	}

	assetID := firstKey(data, "asset_id", "id")
	if assetID == "" {
		return "", recordErr(span, fmt.Errorf("%w: asset_id", ErrMissingField))
	}
	return assetID, nil
}

func (c *Client) GenerateAvatarVideo(ctx context.Context, req VideoRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "generate heygen video")
	defer span.End()

	if req.AvatarID == "" {
		return "", recordErr(span, retry.Permanent(errors.New("avatar id is required")))
	}

	character := map[string]any{}
	switch req.CharacterType {
	case CharacterTalkingPhoto:
		character["type"] = string(CharacterTalkingPhoto)
		character["talking_photo_id"] = req.AvatarID
	case CharacterAvatar, "":
		character["type"] = string(CharacterAvatar)
		character["avatar_id"] = req.AvatarID
		if req.AvatarStyle != "" {
			character["avatar_style"] = req.AvatarStyle
		}
	default:
		return "", recordErr(span, retry.Permanent(fmt.Errorf("unsupported character type %q", req.CharacterType)))
	}

	width, height := req.Width, req.Height
	if width == 0 || height == 0 {
		width, height = 1280, 720
	}

	data, err := c.postJSON(ctx, "/v2/video/generate", "", map[string]any{
		"video_inputs": []map[string]any{{
			"character": character,
			"voice":     map[string]any{"type": "audio", "audio_asset_id": req.AudioAssetID},
			"caption":   req.Caption,
		}},
		"dimension": map[string]int{"width": width, "height": height},
	})
	if err != nil {
		return "", recordErr(span, fmt.Errorf("failed to generate video: %w", err))
	}

	videoID := firstKey(data, "video_id", "id")
	if videoID == "" {
		return "", recordErr(span, fmt.Errorf("%w: video_id", ErrMissingField))
	}
	span.SetAttributes(attribute.String("heygen.video_id", videoID))
	return videoID, nil
}

// WaitForVideo polls the status endpoint until the video is ready and returns
// its download URL.
func (c *Client) WaitForVideo(ctx context.Context, videoID string) (string, error) {
	ctx, span := tracer.Start(ctx, "wait for heygen video")
	defer span.End()
	span.SetAttributes(attribute.String("heygen.video_id", videoID))

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		data, err := c.getJSON(ctx, "/v1/video_status.get", url.Values{"video_id": {videoID}})
		if err != nil {
			return "", recordErr(span, fmt.Errorf("failed to get video status: %w", err))
		}

		status := firstKey(data, "status")
		switch status {
		case "completed":
			videoURL := firstKey(data, "video_url")
			if videoURL == "" {
				return "", recordErr(span, fmt.Errorf("%w: video_url", ErrMissingField))
			}
			return videoURL, nil
		case "failed":
			return "", recordErr(span, retry.Permanent(fmt.Errorf("%w: %v", ErrVideoFailed, envelope(data)["error"])))
		}
		logger.DebugContext(ctx, "video not ready", "video_id", videoID, "status", status)

		select {
		case <-ctx.Done():
			return "", recordErr(span, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) Download(ctx context.Context, videoURL string, outPath string) error {
	ctx, span := tracer.Start(ctx, "download heygen video")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return recordErr(span, fmt.Errorf("failed to create request: %w", err))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return recordErr(span, fmt.Errorf("failed to download video: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return recordErr(span, retry.NewStatusError(resp, nil))
	}

	if _, err := utils.WriteFileAtomic(outPath, resp.Body); err != nil {
		return recordErr(span, err)
	}
	return nil
}

// RenderVideo runs the whole upload, generate, wait and download flow and
// leaves the finished video at outPath.
func (c *Client) RenderVideo(ctx context.Context, avatarID string, audioPath string, outPath string) error {
	assetID, err := c.UploadAsset(ctx, audioPath)
	if err != nil {
		return err
	}
	videoID, err := c.GenerateAvatarVideo(ctx, VideoRequest{AvatarID: avatarID, AudioAssetID: assetID})
	if err != nil {
		return err
	}
	videoURL, err := c.WaitForVideo(ctx, videoID)
	if err != nil {
		return err
	}
	return c.Download(ctx, videoURL, outPath)
}

func guessMIME(path string) string {
	ext := filepath.Ext(path)
	switch ext {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".mp4":
		return "video/mp4"
	}
	if guessed := mime.TypeByExtension(ext); guessed != "" {
		return guessed
	}
	return "application/octet-stream"
}
