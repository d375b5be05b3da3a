package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Prober measures the playback duration of audio and video files.
type Prober struct {
	// FFProbePath is used for anything that is not a WAV file. Empty means
	// "ffprobe" from PATH.
	FFProbePath string
}

// Duration reads WAV headers directly and falls back to ffprobe for other
// containers.
func (p Prober) Duration(ctx context.Context, path string) (time.Duration, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	duration, wavErr := WAVDuration(file)
	file.Close()
	if wavErr == nil {
		return duration, nil
	}
	if !errors.Is(wavErr, ErrNotWAV) {
		return 0, wavErr
	}

	return p.probe(ctx, path)
}

func (p Prober) probe(ctx context.Context, path string) (time.Duration, error) {
	binary := p.FFProbePath
	if binary == "" {
		binary = "ffprobe"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe duration %q: %w", stdout.String(), err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
