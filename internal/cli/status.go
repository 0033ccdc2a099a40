package cli

import (
	"fmt"

	"github.com/ankittk/taskwatch/internal/config"
	"github.com/ankittk/taskwatch/internal/daemon"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show taskwatch daemon and watch status",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			st, err := daemon.Status(cmd.Context(), home)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !st.Running {
				_, _ = fmt.Fprintln(out, "taskwatch not running")
				return nil
			}
			_, _ = fmt.Fprintf(out, "taskwatch running (pid %d, addr %s)\n", st.PID, st.Addr)
			c, err := apiClient(cmd)
			if err != nil {
				return nil
			}
			ws, err := c.WatchStatus(cmd.Context())
			if err != nil {
				_, _ = fmt.Fprintf(out, "watch status unavailable: %v\n", err)
				return nil
			}
			printWatchStatus(out, *ws)
			return nil
		},
	}
	return cmd
}
