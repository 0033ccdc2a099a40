package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/ankittk/taskwatch/pkg/models"
	"github.com/spf13/cobra"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskAddCmd())
	cmd.AddCommand(newTaskShowCmd())
	cmd.AddCommand(newTaskCommandCmd("start", "Start working on a task"))
	cmd.AddCommand(newTaskCommandCmd("complete", "Mark a task completed"))
	cmd.AddCommand(newTaskCommandCmd("dismiss", "Dismiss a task"))
	cmd.AddCommand(newTaskSnoozeCmd())
	cmd.AddCommand(newTaskSetStatusCmd())
	cmd.AddCommand(newTaskDeleteCmd())
	return cmd
}

func newTaskListCmd() *cobra.Command {
	var (
		status string
		limit  int
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active tasks by current priority (or all tasks with --all / --status)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			var list []models.Task
			if all || status != "" {
				list, err = c.ListTasks(cmd.Context(), status, limit)
			} else {
				list, err = c.ActiveTasks(cmd.Context())
			}
			if err != nil {
				return err
			}
			printTasks(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only tasks with this status (pending, in_progress, snoozed, completed, dismissed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of tasks (0 = no limit)")
	cmd.Flags().BoolVar(&all, "all", false, "Include snoozed and finished tasks")
	return cmd
}

func newTaskAddCmd() *cobra.Command {
	var (
		description string
		priority    float64
		window      string
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task manually",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			in := models.NewTask{Title: args[0], Description: description, Priority: priority}
			if window != "" {
				in.SourceWindow = &window
			}
			t, err := c.CreateTask(cmd.Context(), in)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created task %s (%s)\n", bold(t.ID), bandLabel(t.PriorityBand, t.CurrentPriority))
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Task description")
	cmd.Flags().Float64Var(&priority, "priority", 0.5, "Initial priority in [0, 1]")
	cmd.Flags().StringVar(&window, "window", "", "Source window title")
	return cmd
}

func newTaskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			t, err := c.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printTask(cmd.OutOrStdout(), *t)
			return nil
		},
	}
}

// newTaskCommandCmd builds start, complete and dismiss, which differ only in the command name.
func newTaskCommandCmd(command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   command + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			t, err := c.TaskCommand(cmd.Context(), args[0], command)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Task %s is now %s\n", t.ID, statusLabel(t.Status))
			return nil
		},
	}
}

func newTaskSnoozeCmd() *cobra.Command {
	var hours float64
	cmd := &cobra.Command{
		Use:   "snooze <id>",
		Short: "Hide a task for a while; its priority does not decay while snoozed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			t, err := c.SnoozeTask(cmd.Context(), args[0], hours)
			if err != nil {
				return err
			}
			until := ""
			if t.SnoozedUntil != nil {
				until = " until " + t.SnoozedUntil.Local().Format(time.Kitchen)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Snoozed task %s%s\n", t.ID, until)
			return nil
		},
	}
	cmd.Flags().Float64Var(&hours, "hours", 1, "Snooze duration in hours")
	return cmd
}

func newTaskSetStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <id> <status>",
		Short: "Move a task to a status directly (must be a legal transition)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			t, err := c.SetTaskStatus(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Task %s is now %s\n", t.ID, statusLabel(t.Status))
			return nil
		},
	}
}

func newTaskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(cmd)
			if err != nil {
				return err
			}
			if err := c.DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", args[0])
			return nil
		},
	}
}

func printTasks(w io.Writer, list []models.Task) {
	if len(list) == 0 {
		_, _ = fmt.Fprintln(w, "No tasks")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tPRIORITY\tTITLE\tAGE\tSTATUS")
	now := time.Now()
	for _, t := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			t.ID, bandLabel(t.PriorityBand, t.CurrentPriority), t.Title, ago(t.CreatedAt, now), statusLabel(t.Status))
	}
	_ = tw.Flush()
}

func printTask(w io.Writer, t models.Task) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row := func(k, v string) { _, _ = fmt.Fprintf(tw, "%s\t%s\n", k, v) }
	row("ID", t.ID)
	row("Title", bold(t.Title))
	if t.Description != "" {
		row("Description", t.Description)
	}
	row("Status", statusLabel(t.Status))
	row("Priority", bandLabel(t.PriorityBand, t.CurrentPriority)+" ("+t.PriorityBand+", initial "+strconv.FormatFloat(t.InitialPriority, 'f', 2, 64)+")")
	if t.SourceWindow != nil {
		row("Window", *t.SourceWindow)
	}
	row("Created", t.CreatedAt.Local().Format(time.RFC3339))
	if t.SnoozedUntil != nil {
		row("Snoozed until", t.SnoozedUntil.Local().Format(time.RFC3339))
	}
	_ = tw.Flush()
}
