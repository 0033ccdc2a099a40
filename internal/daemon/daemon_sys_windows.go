//go:build windows

package daemon

import (
	"os"
	"os/exec"
)

// No Setsid on Windows; the child shares the console.
func setDaemonSysProcAttr(cmd *exec.Cmd) {}

// Windows has no kill(pid, 0); a stale pid shows up as a refused connection instead.
func processExists(pid int) bool {
	return pid > 0
}

func signalTerm(proc *os.Process) error {
	return proc.Kill()
}
