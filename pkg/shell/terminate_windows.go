//go:build windows

package shell

import (
	"os"
	"syscall"

	"golang.org/x/sys/windows"
)

// The child gets no console window. Console control events can't reach it, so
// terminate uses TerminateProcess instead.
func newSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NO_WINDOW,
	}
}

// terminate ends the process with TerminateProcess. wsl.exe tears down the Linux side of the
// command when it exits.
func terminate(p *os.Process) error {
	return p.Kill()
}
