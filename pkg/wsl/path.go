// Package wsl translates host paths and builds the command lines that run the
// training process inside the Windows Subsystem for Linux.
package wsl

import (
	"fmt"
	"strings"
)

// FormatError is returned when a host path is not an absolute drive letter path
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("cannot translate '%v' to a sandbox path: %v", e.Path, e.Reason)
}

// ToSandboxPath converts a Windows path such as C:\Users\a\b.txt into its WSL mount
// form /mnt/c/Users/a/b.txt. Only the string is transformed. The path is not made
// absolute, and nothing is checked on disk.
func ToSandboxPath(host string) (string, error) {
	if len(host) < 3 {
		return "", &FormatError{Path: host, Reason: "too short"}
	}
	drive := host[0]
	if !(drive >= 'a' && drive <= 'z' || drive >= 'A' && drive <= 'Z') || host[1] != ':' {
		return "", &FormatError{Path: host, Reason: "no drive letter"}
	}
	if !isSeparator(host[2]) {
		return "", &FormatError{Path: host, Reason: "drive relative paths are not supported"}
	}
	rest := strings.TrimLeft(host[2:], `\/`)
	rest = strings.ReplaceAll(rest, `\`, "/")
	return "/mnt/" + strings.ToLower(string(drive)) + "/" + rest, nil
}

// Identity is a path mapper for a sandbox that shares the host's filesystem layout
func Identity(host string) (string, error) {
	if host == "" {
		return "", &FormatError{Path: host, Reason: "empty path"}
	}
	return host, nil
}

func isSeparator(c byte) bool {
	return c == '\\' || c == '/'
}
