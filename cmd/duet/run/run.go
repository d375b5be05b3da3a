// Package runcmder provides the run command that plays a broadcast session.
package runcmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/koscakluka/ema-duet/internal/app"
)

const shutdownTimeout = 10 * time.Second

type runCommander struct {
	configFile string
	debug      bool

	topic    string
	stage    string
	maxTurns int
}

const runLongDesc string = `Run a broadcast session until the turn budget is spent.

The first interrupt stops producing new turns and lets the turn on stage
finish before the session closes.

Examples:
  duet run
  duet run --stage text-only --topic "Deep sea mining"
  duet run -c prod.yaml --max-turns 40`

const runShortDesc string = "Run a broadcast session"

func NewRunCmd() *cobra.Command {
	cmder := &runCommander{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: runShortDesc,
		Long:  runLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.configFile, err = cmd.Flags().GetString("config")
			if err != nil {
				return fmt.Errorf("could not get config flag: %w", err)
			}
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.topic, "topic", "t", "", "Starting topic (overrides topic.default)")
	cmd.Flags().StringVarP(&cmder.stage, "stage", "s", "", "Stage mode: static-image, pre-rendered-video, live-session or text-only")
	cmd.Flags().IntVar(&cmder.maxTurns, "max-turns", 0, "Turn budget for the session (overrides session.max_turns)")

	return cmd
}

func (c *runCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runtime, err := app.Bootstrap(c.configFile, c.debug)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = runtime.Shutdown(shutdownCtx)
	}()

	cfg := runtime.Config
	if c.topic != "" {
		cfg.Topic.Default = c.topic
	}
	if c.stage != "" {
		cfg.Stage.Mode = c.stage
	}
	if c.maxTurns > 0 {
		cfg.Session.MaxTurns = c.maxTurns
	}

	session, err := app.New(ctx, cfg, runtime.Logger)
	if err != nil {
		runtime.Logger.Error("failed to set up session", "error", err)
		return err
	}
	defer session.Close()

	if err := session.Run(ctx); err != nil {
		runtime.Logger.Error("session failed", "error", err)
		return err
	}
	return nil
}
