package cli

import (
	"os"
	"strings"

	"github.com/ankittk/taskwatch/internal/config"
	"github.com/ankittk/taskwatch/internal/daemon"
	"github.com/ankittk/taskwatch/pkg/client"
	"github.com/spf13/cobra"
)

// apiClient connects to --server, TASKWATCH_URL, or the daemon recorded under home.
func apiClient(cmd *cobra.Command) (*client.Client, error) {
	var base string
	if f := cmd.Flag("server"); f != nil {
		base = f.Value.String()
	}
	if base == "" {
		base = os.Getenv("TASKWATCH_URL")
	}
	if base == "" {
		u, err := daemon.BaseURL(cmd.Context(), config.MustHomeFrom(cmd.Context()))
		if err != nil {
			return nil, err
		}
		base = u
	}
	return client.New(strings.TrimRight(base, "/"), os.Getenv("TASKWATCH_API_KEY")), nil
}
