// Package selfcheckcmder provides the selfcheck command that validates the
// configuration and the stage before going live.
package selfcheckcmder

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/koscakluka/ema-duet/internal/app"
)

const defaultTimeout = 30 * time.Second

type selfCheckCommander struct {
	configFile string
	debug      bool
	timeout    time.Duration

	out io.Writer
}

const selfCheckLongDesc string = `Validate the configuration and check that the stage is reachable.

For OBS stages this connects to OBS and verifies the scenes and media
inputs exist. For HeyGen live sessions it opens and closes both avatar
sessions.

Examples:
  duet selfcheck
  duet selfcheck -c prod.yaml --timeout 1m`

const selfCheckShortDesc string = "Verify the stage and configuration"

func NewSelfCheckCmd() *cobra.Command {
	cmder := &selfCheckCommander{}

	cmd := &cobra.Command{
		Use:   "selfcheck",
		Short: selfCheckShortDesc,
		Long:  selfCheckLongDesc,
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
			cmder.out = cmd.OutOrStdout()

			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().DurationVar(&cmder.timeout, "timeout", defaultTimeout, "Time allowed for the check")

	return cmd
}

func (c *selfCheckCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	runtime, err := app.Bootstrap(c.configFile, c.debug)
	if err != nil {
		return err
	}
	defer runtime.Shutdown(context.WithoutCancel(ctx))

	session, err := app.New(ctx, runtime.Config, runtime.Logger)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.SelfCheck(ctx); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "stage %s ready\n", runtime.Config.Stage.Mode)
	return nil
}
