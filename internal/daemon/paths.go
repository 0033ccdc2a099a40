package daemon

import (
	"path/filepath"

	"github.com/ankittk/taskwatch/internal/config"
)

// DefaultPort is the port the daemon listens on when none is given.
const DefaultPort = 3548

func pidPath(home string) string {
	return filepath.Join(config.ProtectedDir(home), "daemon.pid")
}

func lockPath(home string) string {
	return filepath.Join(config.ProtectedDir(home), "daemon.lock")
}

func addrPath(home string) string {
	return filepath.Join(config.ProtectedDir(home), "daemon.addr")
}

// LogPath is where a background daemon writes its stderr.
func LogPath(home string) string {
	return filepath.Join(config.ProtectedDir(home), "daemon.log")
}
