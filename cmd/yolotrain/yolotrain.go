package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/yolotrain/pkg/dataset"
	"github.com/cyclopcam/yolotrain/pkg/gen"
	"github.com/cyclopcam/yolotrain/pkg/shell"
	"github.com/cyclopcam/yolotrain/pkg/storage"
	"github.com/cyclopcam/yolotrain/server"
	"github.com/cyclopcam/yolotrain/server/config"
	"github.com/cyclopcam/yolotrain/server/log"
	"github.com/cyclopcam/yolotrain/server/rundb"
	"github.com/cyclopcam/yolotrain/server/train"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("yolotrain", "Build YOLO datasets from annotated images, and train on them")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file", Default: config.DefaultFilename})

	buildCmd := parser.NewCommand("build", "Build a dataset from a directory of annotated images")
	buildSource := buildCmd.String("s", "source", &argparse.Options{Required: true, Help: "Directory of images and their JSON annotations"})
	buildClasses := buildCmd.String("", "classes", &argparse.Options{Help: "Class list file (overrides config)"})
	buildRatios := buildCmd.String("r", "ratios", &argparse.Options{Help: "Split ratios, eg 8,1,1 (overrides config)"})
	buildSeed := buildCmd.Int("", "seed", &argparse.Options{Help: "Shuffle seed (overrides config)", Default: -1})
	buildOutput := buildCmd.String("o", "output", &argparse.Options{Help: "Output directory. A temporary directory is created if neither this nor the config specify one"})
	buildCollision := buildCmd.String("", "on-collision", &argparse.Options{Help: "overwrite, fail or skip (overrides config)"})

	trainCmd := parser.NewCommand("train", "Train on an existing dataset")
	trainDataset := trainCmd.String("d", "dataset", &argparse.Options{Required: true, Help: "Dataset root (the directory containing " + dataset.ManifestFilename + ")"})
	trainExport := trainCmd.String("e", "export", &argparse.Options{Help: "Export path for the trained model (overrides config)"})

	runCmd := parser.NewCommand("run", "Build a dataset, and then train on it")
	runSource := runCmd.String("s", "source", &argparse.Options{Required: true, Help: "Directory of images and their JSON annotations"})
	runExport := runCmd.String("e", "export", &argparse.Options{Help: "Export path for the trained model (overrides config)"})
	runPersist := runCmd.Flag("", "persist", &argparse.Options{Help: "Keep a temporary dataset after training"})

	pathCmd := parser.NewCommand("path", "Print the sandbox equivalent of a host path")
	pathHost := pathCmd.String("p", "path", &argparse.Options{Required: true, Help: "Host path, eg C:\\data\\ds"})

	publishCmd := parser.NewCommand("publish", "Zip a dataset and upload it to the configured storage")
	publishDataset := publishCmd.String("d", "dataset", &argparse.Options{Required: true, Help: "Dataset root"})
	publishName := publishCmd.String("n", "name", &argparse.Options{Help: "Object name. Default is datasets/<dataset dir>.zip"})

	historyCmd := parser.NewCommand("history", "List recent training runs")
	historyLimit := historyCmd.Int("n", "limit", &argparse.Options{Help: "Number of runs", Default: 20})

	checkCmd := parser.NewCommand("check", "Verify that the training interpreter exists inside the sandbox")

	serveCmd := parser.NewCommand("serve", "Run the HTTP API")
	serveListen := serveCmd.String("l", "listen", &argparse.Options{Help: "Listen address (overrides config)"})

	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}

	if pathCmd.Happened() {
		p, err := cfg.Launcher().MapPath(*pathHost)
		if err != nil {
			fmt.Printf("%v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%v\n", p)
		return
	}

	logger, err := log.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if serveCmd.Happened() {
		if *serveListen != "" {
			cfg.HTTP.Listen = *serveListen
		}
		srv, err := server.NewServer(logger, cfg)
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		srv.ListenForKillSignals()
		// Tell systemd that we're alive.
		daemon.SdNotify(false, daemon.SdNotifyReady)
		if err := srv.ListenHTTP(cfg.HTTP.Listen); err != nil {
			logger.Errorf("ListenHTTP returned: %v", err)
			srv.Shutdown()
			os.Exit(1)
		}
		<-srv.ShutdownComplete
		return
	}

	runDB, err := rundb.Open(logger, cfg.DB, 0)
	check(err)

	var store storage.Storage
	if cfg.Storage.IsConfigured() {
		store, err = storage.Open(logger, cfg.Storage)
		check(err)
	}
	trainer := train.NewTrainer(logger, cfg, runDB, store)

	exitCode := 0
	switch {
	case buildCmd.Happened():
		opts := cfg.BuildOptions(*buildSource)
		flags := buildFlags{
			Classes:   *buildClasses,
			Ratios:    *buildRatios,
			Seed:      *buildSeed,
			Output:    *buildOutput,
			Collision: *buildCollision,
		}
		if err := flags.apply(&opts); err != nil {
			fmt.Printf("%v\n", err)
			exitCode = 1
			break
		}
		res, err := trainer.BuildDataset(opts)
		if err != nil {
			fmt.Printf("Build failed: %v\n", err)
			exitCode = 1
		} else {
			fmt.Printf("%v\n", res)
			for _, u := range res.Unmatched {
				fmt.Printf("Unmatched: %v\n", u)
			}
		}
	case trainCmd.Happened():
		exitCode = streamRun(logger, trainer, func() (string, error) {
			return trainer.StartTraining(train.TrainRequest{DatasetRoot: *trainDataset, ExportPath: *trainExport})
		})
	case runCmd.Happened():
		exitCode = streamRun(logger, trainer, func() (string, error) {
			runID, res, err := trainer.RunOneClick(*runSource, *runExport, *runPersist)
			if res != nil {
				fmt.Printf("%v\n", res)
			}
			return runID, err
		})
	case publishCmd.Happened():
		url, err := trainer.Publish(context.Background(), *publishDataset, *publishName)
		if err != nil {
			fmt.Printf("%v\n", err)
			exitCode = 1
		} else if url != "" {
			fmt.Printf("Published to %v\n", url)
		} else {
			fmt.Printf("Published\n")
		}
	case historyCmd.Happened():
		runs, err := trainer.RecentRuns(*historyLimit)
		check(err)
		for _, r := range runs {
			fmt.Printf("%v  %-9v  exit %-3v  %v  %v\n", r.StartedAt.Get().Format(time.DateTime), r.State, r.ExitCode, r.RunID, r.DatasetRoot)
		}
	case checkCmd.Happened():
		if err := trainer.CheckEnvironment(); err != nil {
			fmt.Printf("%v\n", err)
			exitCode = 1
		} else {
			fmt.Printf("OK\n")
		}
	default:
		fmt.Print(parser.Usage(nil))
		exitCode = 1
	}

	runDB.Close()
	logger.Close()
	os.Exit(exitCode)
}

// buildFlags are the "build" command line overrides. Empty strings and a negative seed leave the config value alone.
type buildFlags struct {
	Classes   string
	Ratios    string
	Seed      int
	Output    string
	Collision string
}

func (f *buildFlags) apply(opts *dataset.BuildOptions) error {
	if f.Classes != "" {
		opts.ClassesFile = f.Classes
	}
	if f.Ratios != "" {
		r, err := dataset.ParseRatios(f.Ratios)
		if err != nil {
			return fmt.Errorf("--ratios: %w", err)
		}
		opts.Ratios = r
	}
	if f.Seed >= 0 {
		opts.Seed = uint64(f.Seed)
	}
	if f.Output != "" {
		opts.OutputDir = f.Output
	}
	if f.Collision != "" {
		c, err := dataset.ParseCollisionPolicy(f.Collision)
		if err != nil {
			return fmt.Errorf("--on-collision: %w", err)
		}
		opts.Collision = c
	}
	return nil
}

// streamRun starts a training run, and prints its output until it finishes.
// Ctrl+C stops the run. Returns the process exit code.
func streamRun(logger logs.Log, trainer *train.Trainer, start func() (string, error)) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, lines := trainer.AddWatcher()
	runID, err := start()
	if err != nil {
		trainer.RemoveWatcher(lines)
		fmt.Printf("%v\n", err)
		return 1
	}

	printerDone := make(chan struct{})
	printerStop := make(chan struct{})
	go func() {
		defer close(printerDone)
		for {
			select {
			case line := <-lines:
				fmt.Println(line)
			case <-printerStop:
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		if trainer.Stop() {
			logger.Infof("Interrupted. Stopping training")
		}
	}()

	status, err := trainer.WaitRun(context.Background(), runID)
	trainer.RemoveWatcher(lines)
	close(printerStop)
	<-printerDone
	for _, line := range gen.DrainChannelIntoSlice(lines) {
		fmt.Println(line)
	}
	if err != nil {
		fmt.Printf("%v\n", err)
		return 1
	}
	if status.State == shell.StateCancelled {
		return 130
	}
	if status.Error != "" {
		return 1
	}
	return status.ExitCode
}
