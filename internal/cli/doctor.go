package cli

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/ankittk/taskwatch/internal/config"
	"github.com/ankittk/taskwatch/internal/credentials"
	"github.com/ankittk/taskwatch/internal/reasoning"
	"github.com/ankittk/taskwatch/pkg/models"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Verify capture, reasoning and notification dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			s, err := config.ReadSettings(config.SettingsPath(home))
			if err != nil {
				return err
			}
			problems, warnings := checkSettings(s, credentials.NewFileStore(config.ProtectedDir(home)), exec.LookPath)

			for _, w := range warnings {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), yellow("warning: ")+w)
			}
			if len(problems) > 0 {
				for _, p := range problems {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), p)
				}
				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	return cmd
}

// checkSettings reports missing tools and keys for s. Problems block watching; warnings
// only degrade it.
func checkSettings(s config.Settings, creds credentials.Store, lookPath func(string) (string, error)) (problems, warnings []string) {
	if s.Capture.Mode == "command" {
		if _, err := lookPath(s.Capture.Command); err != nil {
			problems = append(problems, fmt.Sprintf("missing dependency: capture command %q (not found on PATH)", s.Capture.Command))
		}
	}

	if s.LLM.Enabled {
		switch s.LLM.Provider {
		case models.ProviderClaudeCLI:
			if len(reasoning.DetectCLITools()) == 0 {
				problems = append(problems, "missing dependency: claude (not found on PATH)")
			}
		default:
			if credentials.RequiresKey(s.LLM.Provider) && !creds.Has(s.LLM.Provider) {
				problems = append(problems, fmt.Sprintf("no API key stored for %s (run: taskwatch key set %s)", s.LLM.Provider, s.LLM.Provider))
			}
		}
	} else {
		warnings = append(warnings, "task detection is disabled")
	}

	if s.NotificationsEnabled && s.Notify.Desktop {
		notifier := "notify-send"
		if runtime.GOOS == "darwin" {
			notifier = "osascript"
		}
		if _, err := lookPath(notifier); err != nil {
			warnings = append(warnings, fmt.Sprintf("desktop notifications unavailable: %s not found", notifier))
		}
	}
	return problems, warnings
}
