package cli

import (
	"os"

	"github.com/ankittk/taskwatch/internal/config"
	"github.com/spf13/cobra"
)

func NewRootCmd(version string) *cobra.Command {
	var homeOverride string

	cmd := &cobra.Command{
		Use:          "taskwatch",
		Short:        "taskwatch turns what is on your screen into a prioritized task list",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			home, err := config.ResolveHome(homeOverride)
			if err != nil {
				return err
			}
			cmd.SetContext(config.WithHome(cmd.Context(), home))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&homeOverride, "home", "", "Override taskwatch home directory (default: ~/.taskwatch, env: TASKWATCH_HOME)")
	cmd.PersistentFlags().String("server", "", "Daemon URL (default: address of the local daemon, env: TASKWATCH_URL)")

	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newStatusCmd())

	cmd.AddCommand(newTaskCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newSettingsCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newApikeyCmd())

	// Hidden internal subcommand used by `taskwatch start` for background mode.
	cmd.AddCommand(newDaemonCmd())

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version != "" {
		cmd.Version = version
	} else {
		cmd.Version = "dev"
	}

	return cmd
}
