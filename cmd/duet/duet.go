// Package duetcmder is the root duet command.
package duetcmder

import (
	"github.com/spf13/cobra"

	runcmder "github.com/koscakluka/ema-duet/cmd/duet/run"
	selfcheckcmder "github.com/koscakluka/ema-duet/cmd/duet/selfcheck"
	versioncmder "github.com/koscakluka/ema-duet/cmd/version"
)

const duetLongDesc string = `Duet runs an unattended two-speaker dialogue broadcast.

Two language model personas take turns on a topic while the stage (OBS,
HeyGen avatars or plain text) presents every line in order.

Configuration is read from duet.yaml in the working directory, the file
given with --config and DUET_ environment variables, e.g.
DUET_SESSION_MAX_TURNS=40.

Commands:
  duet run          Run a broadcast session
  duet selfcheck    Verify the stage and configuration
  duet version      Show version information`

const duetShortDesc string = "Duet - two-speaker live dialogue"

func NewDuetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "duet",
		Short:        duetShortDesc,
		Long:         duetLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringP("config", "c", "", "Path to a config file (default: ./duet.yaml)")
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")

	// Add subcommands
	cmd.AddCommand(runcmder.NewRunCmd())
	cmd.AddCommand(selfcheckcmder.NewSelfCheckCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
