package cli

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/ankittk/taskwatch/internal/config"
	"github.com/ankittk/taskwatch/internal/daemon"
	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	var (
		foreground bool
		envFile    string
		noBrowser  bool
	)
	var opts daemon.StartOptions

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the taskwatch daemon (HTTP API + watch scheduler)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := loadEnvFile(envFile); err != nil {
					return err
				}
			}
			opts.Home = config.MustHomeFrom(cmd.Context())
			if opts.DBURL == "" {
				opts.DBURL = os.Getenv("DATABASE_URL")
			}

			ui := (&url.URL{Scheme: "http", Host: fmt.Sprintf("localhost:%d", opts.Port), Path: "/tasks/active"}).String()

			if foreground {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Starting taskwatch in foreground on %s\n", ui)
				return daemon.StartForeground(cmd.Context(), opts)
			}

			pid, err := daemon.StartBackground(cmd.Context(), opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "taskwatch started (pid %d)\n", pid)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "API: %s\n", ui)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Log: %s\n", daemon.LogPath(opts.Home))

			if opts.Dev && !noBrowser {
				_ = openBrowser(ui)
			}
			return nil
		},
	}

	addDaemonFlags(cmd, &opts)
	cmd.Flags().BoolVar(&foreground, "foreground", false, "Run in foreground (do not daemonize)")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Load env vars from file (KEY=VALUE per line) before starting")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Do not open the active task list in a browser in dev mode")

	return cmd
}

func loadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.Index(line, "=")
		if i <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		value := strings.TrimSpace(line[i+1:])
		if key != "" {
			_ = os.Setenv(key, value)
		}
	}
	return sc.Err()
}

func openBrowser(u string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", u).Start()
	case "windows":
		return exec.Command("cmd", "/c", "start", u).Start()
	default:
		// Linux and others
		if _, err := exec.LookPath("xdg-open"); err != nil {
			return err
		}
		return exec.Command("xdg-open", u).Start()
	}
}
