package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/ankittk/taskwatch/pkg/models"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Control periodic screen capture",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start watching the screen",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			st, err := c.StartWatching(cmd.Context())
			if err != nil {
				return err
			}
			printWatchStatus(cmd.OutOrStdout(), *st)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop watching the screen",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			st, err := c.StopWatching(cmd.Context())
			if err != nil {
				return err
			}
			printWatchStatus(cmd.OutOrStdout(), *st)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show watch status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			st, err := c.WatchStatus(cmd.Context())
			if err != nil {
				return err
			}
			printWatchStatus(cmd.OutOrStdout(), *st)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "capture",
		Short: "Run one capture cycle now and print the tasks it created",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			res, err := c.CaptureNow(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			title := res.Capture.WindowTitle
			if title == "" {
				title = res.Capture.AppName
			}
			_, _ = fmt.Fprintf(out, "Captured %s %s\n", res.Capture.ID, dim(title))
			printTasks(out, res.Tasks)
			return nil
		},
	})
	return cmd
}

func printWatchStatus(w io.Writer, st models.WatchStatus) {
	_, _ = fmt.Fprintf(w, "Watching:   %s (every %ds)\n", onOff(st.IsWatching), st.IntervalSecs)
	if st.IsCapturing {
		_, _ = fmt.Fprintln(w, "Capturing:  "+cyan("in progress"))
	}
	last := "never"
	if st.LastCaptureAt != nil {
		last = ago(*st.LastCaptureAt, time.Now())
	}
	_, _ = fmt.Fprintf(w, "Last:       %s\n", last)
	_, _ = fmt.Fprintf(w, "Captures:   %d\n", st.CapturesSinceStart)
	_, _ = fmt.Fprintf(w, "Detected:   %d\n", st.TasksDetectedSinceStart)
	if st.LastError != "" {
		_, _ = fmt.Fprintf(w, "Last error: %s\n", red(st.LastError))
	}
}
