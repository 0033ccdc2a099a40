package cli

import (
	"os"

	"github.com/ankittk/taskwatch/internal/config"
	"github.com/ankittk/taskwatch/internal/daemon"
	"github.com/spf13/cobra"
)

func newDaemonCmd() *cobra.Command {
	var opts daemon.StartOptions

	cmd := &cobra.Command{
		Use:    "daemon",
		Short:  "Internal: run daemon process",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Home = config.MustHomeFrom(cmd.Context())
			if opts.DBURL == "" {
				opts.DBURL = os.Getenv("DATABASE_URL")
			}
			return daemon.StartForeground(cmd.Context(), opts)
		},
	}
	addDaemonFlags(cmd, &opts)
	return cmd
}

// addDaemonFlags registers the flags shared by start and the internal daemon command.
func addDaemonFlags(cmd *cobra.Command, opts *daemon.StartOptions) {
	cmd.Flags().IntVar(&opts.Port, "port", daemon.DefaultPort, "Port for the HTTP API")
	cmd.Flags().BoolVar(&opts.Dev, "dev", false, "Enable dev mode (CORS for a dashboard on another origin)")
	cmd.Flags().StringVar(&opts.PprofAddr, "pprof", "", "Enable pprof on address (e.g. 127.0.0.1:6060)")
	cmd.Flags().StringVar(&opts.DBDriver, "db-driver", "sqlite", "Store driver: sqlite or postgres")
	cmd.Flags().StringVar(&opts.DBURL, "db-url", "", "DB connection string (for postgres; or set DATABASE_URL)")
	cmd.Flags().StringVar(&opts.DBPath, "db-path", "", "SQLite database file (default <home>/protected/db.sqlite)")
	cmd.Flags().StringVar(&opts.RedisURL, "redis-url", "", "Cache the active-task view in Redis (or set TASKWATCH_REDIS_URL)")
	cmd.Flags().BoolVar(&opts.EnableOtel, "otel", true, "Enable OpenTelemetry metrics (Prometheus exporter, HTTP/SSE/cycle instrumentation)")
	cmd.Flags().BoolVar(&opts.AutoWatch, "watch", false, "Start watching the screen as soon as the daemon is up")
}
