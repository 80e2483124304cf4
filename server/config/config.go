package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/cyclopcam/yolotrain/pkg/dataset"
	"github.com/cyclopcam/yolotrain/pkg/dbh"
	"github.com/cyclopcam/yolotrain/pkg/storage"
	"github.com/cyclopcam/yolotrain/pkg/wsl"
)

const DefaultFilename = "yolotrain.json"

const (
	SandboxWSL    = "wsl"    // Train inside WSL, from a Windows host
	SandboxNative = "native" // Train directly on a Linux host
)

type Sandbox struct {
	Mode        string `json:"mode"`        // "wsl" or "native"
	EnvBaseDir  string `json:"envBaseDir"`  // Sandbox path of the conda installation, eg /home/me/miniconda3
	EnvName     string `json:"envName"`     // Environment under <envBaseDir>/envs
	Interpreter string `json:"interpreter"` // Executable inside the environment's bin directory
}

type Dataset struct {
	ClassesFile string                  `json:"classesFile"` // One class name per line
	Ratios      dataset.Ratios          `json:"ratios"`      // [train, val, test]
	Seed        uint64                  `json:"seed"`        // Shuffle seed
	OutputDir   string                  `json:"outputDir"`   // If empty, every build goes into a new temporary directory
	OnCollision dataset.CollisionPolicy `json:"onCollision"` // overwrite, fail or skip
}

type HTTP struct {
	Listen string `json:"listen"` // eg ":8090"
}

type Config struct {
	Sandbox    Sandbox        `json:"sandbox"`
	EntryPoint string         `json:"entryPoint"` // Host path of the training script
	ExportPath string         `json:"exportPath"` // Optional host path where the script exports its model
	Dataset    Dataset        `json:"dataset"`
	DB         dbh.DBConfig   `json:"db"`
	Storage    storage.Config `json:"storage"` // Optional. Required to publish datasets.
	HTTP       HTTP           `json:"http"`
}

// Default returns the configuration that is used for anything not specified in the config file
func Default() *Config {
	return &Config{
		Sandbox: Sandbox{
			Mode:        SandboxWSL,
			EnvName:     "train",
			Interpreter: "python",
		},
		Dataset: Dataset{
			Ratios:      dataset.DefaultRatios,
			Seed:        dataset.DefaultSeed,
			OnCollision: dataset.CollisionOverwrite,
		},
		DB:   dbh.MakeSqliteConfig("yolotrain.sqlite"),
		HTTP: HTTP{Listen: ":8090"},
	}
}

// LoadConfig reads filename on top of the defaults. A missing file yields the defaults.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		filename = DefaultFilename
	}
	cfg := Default()
	raw, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	} else if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid config %v: %w", filename, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Sandbox.Mode != SandboxWSL && c.Sandbox.Mode != SandboxNative {
		return fmt.Errorf("%w: unknown sandbox mode '%v' (must be %v or %v)", dataset.ErrConfiguration, c.Sandbox.Mode, SandboxWSL, SandboxNative)
	}
	if c.Sandbox.EnvName == "" || c.Sandbox.Interpreter == "" {
		return fmt.Errorf("%w: sandbox envName and interpreter may not be empty", dataset.ErrConfiguration)
	}
	return c.Dataset.Ratios.Validate()
}

// Launcher returns the command builder for the configured sandbox
func (c *Config) Launcher() *wsl.Launcher {
	var l *wsl.Launcher
	if c.Sandbox.Mode == SandboxNative {
		l = wsl.NativeLauncher()
	} else {
		l = wsl.DefaultLauncher()
	}
	l.EnvName = c.Sandbox.EnvName
	l.Interpreter = c.Sandbox.Interpreter
	return l
}

// BuildOptions returns the dataset build options for sourceDir
func (c *Config) BuildOptions(sourceDir string) dataset.BuildOptions {
	return dataset.BuildOptions{
		SourceDir:   sourceDir,
		ClassesFile: c.Dataset.ClassesFile,
		Ratios:      c.Dataset.Ratios,
		Seed:        c.Dataset.Seed,
		OutputDir:   c.Dataset.OutputDir,
		Collision:   c.Dataset.OnCollision,
	}
}
