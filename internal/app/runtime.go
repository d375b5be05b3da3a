package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/koscakluka/ema-duet/internal/config"
	"github.com/koscakluka/ema-duet/internal/logger"
	"github.com/koscakluka/ema-duet/internal/telemetry"
)

// Runtime is the process setup every command shares: configuration, the
// logger and the telemetry pipeline feeding it.
type Runtime struct {
	Config *config.Config
	Logger *slog.Logger

	telemetry *telemetry.Telemetry
	logFile   *os.File
}

// Bootstrap loads configuration from configFile (or the default locations)
// and installs logging. debug forces debug logging on.
func Bootstrap(configFile string, debug bool) (*Runtime, error) {
	v, err := config.InitViper(configFile)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Log.Debug = true
	}

	r := &Runtime{Config: cfg}
	r.Logger = logger.New(
		logger.WithDebug(cfg.Log.Debug),
		logger.WithPretty(cfg.Log.Pretty),
		logger.WithJSON(cfg.Log.JSON),
	)

	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		r.logFile, err = os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		r.Logger = logger.Multi(r.Logger, logger.New(
			logger.WithDebug(cfg.Log.Debug),
			logger.WithJSON(true),
			logger.WithWriter(r.logFile),
		))
	}

	slog.SetDefault(r.Logger)
	r.telemetry = telemetry.Setup(r.Logger)
	return r, nil
}

// Shutdown flushes telemetry and closes the log file.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error
	if err := r.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if r.logFile != nil {
		if err := r.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close log file: %w", err))
		}
	}
	return errors.Join(errs...)
}
