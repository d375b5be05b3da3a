package logger

import (
	"io"
	"log/slog"
)

type Option func(*config)

func WithDebug(debug bool) Option {
	return func(c *config) {
		if debug {
			c.level = slog.LevelDebug
		} else {
			c.level = slog.LevelInfo
		}
	}
}

// WithPretty switches to the charmbracelet/log handler.
func WithPretty(pretty bool) Option {
	return func(c *config) { c.pretty = pretty }
}

func WithJSON(json bool) Option {
	return func(c *config) { c.json = json }
}

// WithWriter replaces the output, stdout by default.
func WithWriter(w io.Writer) Option {
	return func(c *config) { c.writers = []io.Writer{w} }
}

func WithWriters(w ...io.Writer) Option {
	return func(c *config) { c.writers = w }
}

// WithSource adds the caller location to every record.
func WithSource(source bool) Option {
	return func(c *config) { c.source = source }
}
