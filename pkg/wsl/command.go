package wsl

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/cyclopcam/yolotrain/pkg/shell"
)

// ErrNoEnvironment is returned when no Python environment base directory has been configured
var ErrNoEnvironment = errors.New("no training environment configured")

// Launcher describes how a training script is started inside the sandbox.
// The script itself is run by a login shell, so that the user's profile is loaded.
type Launcher struct {
	Prefix      []string                          // Argv that runs a shell script, eg [wsl bash -lc]
	EnvName     string                            // Name of the environment under <envBase>/envs
	Interpreter string                            // Executable inside the environment's bin directory
	MapPath     func(host string) (string, error) // Host path to sandbox path
}

// DefaultLauncher runs through wsl.exe with a login bash shell
func DefaultLauncher() *Launcher {
	return &Launcher{
		Prefix:      []string{"wsl", "bash", "-lc"},
		EnvName:     "train",
		Interpreter: "python",
		MapPath:     ToSandboxPath,
	}
}

// NativeLauncher runs the training script directly on a Linux host
func NativeLauncher() *Launcher {
	return &Launcher{
		Prefix:      []string{"bash", "-lc"},
		EnvName:     "train",
		Interpreter: "python",
		MapPath:     Identity,
	}
}

// BuildTrainCommand returns the argv that runs entryPoint on the dataset at datasetRoot.
// exportPath is optional. envBaseDir is the sandbox path of the conda (or similar) installation.
func (l *Launcher) BuildTrainCommand(entryPoint, datasetRoot, exportPath, envBaseDir string) ([]string, error) {
	if strings.TrimSpace(envBaseDir) == "" {
		return nil, ErrNoEnvironment
	}
	entry, err := l.MapPath(entryPoint)
	if err != nil {
		return nil, err
	}
	root, err := l.MapPath(datasetRoot)
	if err != nil {
		return nil, err
	}
	interp := path.Join(envBaseDir, "envs", l.EnvName, "bin", l.Interpreter)
	script := fmt.Sprintf("cd %v && %v %v --dataset %v", quote(path.Dir(entry)), quote(interp), quote(entry), quote(root))
	if exportPath != "" {
		export, err := l.MapPath(exportPath)
		if err != nil {
			return nil, err
		}
		script += " --export_path " + quote(export)
	}
	argv := append([]string{}, l.Prefix...)
	return append(argv, script), nil
}

// CheckInterpreter checks that the environment's interpreter exists inside the sandbox.
// The returned error carries the sandbox's stderr, if any.
func (l *Launcher) CheckInterpreter(envBaseDir string) error {
	if strings.TrimSpace(envBaseDir) == "" {
		return ErrNoEnvironment
	}
	interp := path.Join(envBaseDir, "envs", l.EnvName, "bin", l.Interpreter)
	argv := append(append([]string{}, l.Prefix...), "test -x "+quote(interp)+" || { echo "+quote(interp+" is not executable")+" >&2; exit 1; }")
	if _, err := shell.Output(argv[0], argv[1:]...); err != nil {
		return fmt.Errorf("training environment check failed: %w", err)
	}
	return nil
}

// BuildTrainCommand builds a command line with the default WSL launcher
func BuildTrainCommand(entryPoint, datasetRoot, exportPath, envBaseDir string) ([]string, error) {
	return DefaultLauncher().BuildTrainCommand(entryPoint, datasetRoot, exportPath, envBaseDir)
}

// quote wraps s in single quotes for bash
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
