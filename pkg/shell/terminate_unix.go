//go:build !windows

package shell

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Run the child in its own process group, so that a termination request reaches
// everything it spawns, such as the interpreter behind a shell.
func newSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func terminate(p *os.Process) error {
	if err := unix.Kill(-p.Pid, unix.SIGTERM); err != nil {
		return p.Signal(unix.SIGTERM)
	}
	return nil
}
