package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileSink appends records as JSON lines.
type FileSink struct {
	path string

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

func NewFileSink(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create transcript directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}

	return &FileSink{path: path, file: file, encoder: json.NewEncoder(file)}, nil
}

func (s *FileSink) Path() string { return s.path }

func (s *FileSink) Write(ctx context.Context, record Record) error {
	_, span := tracer.Start(ctx, "write transcript record")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrClosed
	}
	// Encode writes the whole line in a single call.
	if err := s.encoder.Encode(record); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to write transcript record: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
