// Package train builds datasets and runs the training process, one job at a time.
package train

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/yolotrain/pkg/dataset"
	"github.com/cyclopcam/yolotrain/pkg/shell"
	"github.com/cyclopcam/yolotrain/pkg/storage"
	"github.com/cyclopcam/yolotrain/pkg/wsl"
	"github.com/cyclopcam/yolotrain/server/config"
	"github.com/cyclopcam/yolotrain/server/log"
	"github.com/cyclopcam/yolotrain/server/rundb"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrBusy is returned when a build or training run is requested while another one is active
var ErrBusy = errors.New("a dataset build or training run is already active")

// ErrUnknownRun is returned by WaitRun for a run that is neither active nor the most recent one
var ErrUnknownRun = errors.New("unknown run")

// RunStatus describes the current or most recent training run
type RunStatus struct {
	RunID       string      `json:"runID"`
	State       shell.State `json:"state"`
	ExitCode    int         `json:"exitCode"`
	DatasetRoot string      `json:"datasetRoot"`
	StartedAt   time.Time   `json:"startedAt"`
	FinishedAt  time.Time   `json:"finishedAt"`
	Error       string      `json:"error,omitempty"`
}

// TrainRequest describes a training run
type TrainRequest struct {
	DatasetRoot string `json:"datasetRoot"` // Host path of a built dataset
	ExportPath  string `json:"exportPath"`  // Optional. Overrides the configured export path.
}

type activeRun struct {
	job    *shell.Job
	done   chan struct{}
	onDone func() // Called after the run has finished, before done is closed
}

// Trainer manages the building of datasets and the training of the model.
// At most one build or training run is active at any time.
type Trainer struct {
	Log      logs.Log
	cfg      *config.Config
	launcher *wsl.Launcher
	runDB    *rundb.RunDB    // May be nil
	store    storage.Storage // May be nil

	lock   sync.Mutex
	busy   bool       // A build or run is active
	active *activeRun // The active run, if any
	status RunStatus  // Current or most recent run

	watchersLock sync.Mutex
	watchers     []chan string
	backlog      []string
}

// NewTrainer creates a trainer. runDB and store are optional.
func NewTrainer(logger logs.Log, cfg *config.Config, runDB *rundb.RunDB, store storage.Storage) *Trainer {
	return &Trainer{
		Log:      log.NewPrefixLogger(logger, "Trainer:"),
		cfg:      cfg,
		launcher: cfg.Launcher(),
		runDB:    runDB,
		store:    store,
		status:   RunStatus{State: shell.StateIdle},
	}
}

func (t *Trainer) acquire() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.busy {
		return ErrBusy
	}
	t.busy = true
	return nil
}

func (t *Trainer) release() {
	t.lock.Lock()
	t.busy = false
	t.lock.Unlock()
}

// BuildDataset materializes a dataset from the annotated images in opts.SourceDir
func (t *Trainer) BuildDataset(opts dataset.BuildOptions) (*dataset.BuildResult, error) {
	if err := t.acquire(); err != nil {
		return nil, err
	}
	defer t.release()
	return t.build(opts)
}

func (t *Trainer) build(opts dataset.BuildOptions) (*dataset.BuildResult, error) {
	res, err := dataset.Build(log.NewPrefixLogger(t.Log, "Build:"), opts)
	if t.runDB != nil {
		rec := &rundb.Build{
			SourceDir: opts.SourceDir,
			Ratios:    opts.Ratios.String(),
			Seed:      int64(opts.Seed),
		}
		if res != nil {
			rec.Root = res.Root
			rec.Train = res.Train
			rec.Val = res.Val
			rec.Test = res.Test
			rec.Skipped = res.Skipped
			rec.Unmatched = len(res.Unmatched)
		}
		var be *dataset.BuildError
		if errors.As(err, &be) {
			rec.Root = be.Root
		}
		if err != nil {
			rec.Error = err.Error()
		}
		if dbErr := t.runDB.AddBuild(rec); dbErr != nil {
			t.Log.Errorf("Failed to record build: %v", dbErr)
		}
	}
	if err != nil {
		t.Log.Errorf("Dataset build failed: %v", err)
	}
	return res, err
}

// StartTraining launches the training process on an existing dataset, and returns the new run ID.
// The process runs in the background. Use AddWatcher to receive its output, and WaitRun to wait for it.
func (t *Trainer) StartTraining(req TrainRequest) (string, error) {
	if err := t.acquire(); err != nil {
		return "", err
	}
	runID, err := t.startTraining(req, nil)
	if err != nil {
		t.release()
		return "", err
	}
	return runID, nil
}

func (t *Trainer) startTraining(req TrainRequest, onDone func()) (string, error) {
	if t.cfg.EntryPoint == "" {
		return "", fmt.Errorf("%w: no training entry point configured", dataset.ErrConfiguration)
	}
	root, err := filepath.Abs(req.DatasetRoot)
	if err != nil {
		return "", err
	}
	manifest, err := dataset.LoadManifest(root)
	if err != nil {
		return "", err
	}
	exportPath := req.ExportPath
	if exportPath == "" {
		exportPath = t.cfg.ExportPath
	}
	argv, err := t.launcher.BuildTrainCommand(t.cfg.EntryPoint, root, exportPath, t.cfg.Sandbox.EnvBaseDir)
	if errors.Is(err, wsl.ErrNoEnvironment) {
		return "", fmt.Errorf("%w: %w (set sandbox.envBaseDir)", dataset.ErrConfiguration, err)
	} else if err != nil {
		return "", fmt.Errorf("%w: %w", dataset.ErrConfiguration, err)
	}
	if sandboxView, err := manifest.Translate(t.launcher.MapPath); err == nil {
		t.Log.Infof("Dataset as seen by the trainer: path=%v names=%v", sandboxView.Path, sandboxView.Names)
	} else {
		t.Log.Warnf("Dataset root %v has no sandbox equivalent: %v", manifest.Path, err)
	}

	runID := uuid.NewString()
	runLog := log.NewPrefixLogger(t.Log, "Run "+runID[:8]+":")
	runLog.Infof("Starting %v", argv)
	started := time.Now()
	if t.runDB != nil {
		if err := t.runDB.StartRun(&rundb.Run{RunID: runID, DatasetRoot: root, Command: argv[len(argv)-1]}); err != nil {
			runLog.Errorf("Failed to record run start: %v", err)
		}
	}

	t.resetBacklog()
	run := &activeRun{
		done:   make(chan struct{}),
		onDone: onDone,
	}
	t.lock.Lock()
	t.status = RunStatus{
		RunID:       runID,
		State:       shell.StateRunning,
		DatasetRoot: root,
		StartedAt:   started,
	}
	t.active = run
	run.job = shell.Start(context.Background(), argv, func(line string) {
		runLog.Debugf("%v", line)
		t.sendToWatchers(line)
	})
	t.lock.Unlock()

	go t.finishRun(runID, run, runLog)
	return runID, nil
}

func (t *Trainer) finishRun(runID string, run *activeRun, runLog logs.Log) {
	status, err := run.job.Wait()
	if err != nil {
		runLog.Errorf("Failed to start training process: %v", err)
		t.sendToWatchers(fmt.Sprintf("training failed to start: %v", err))
	} else {
		t.sendToWatchers("training finished: " + status.String())
		runLog.Infof("Training finished: %v", status)
	}
	if t.runDB != nil {
		if dbErr := t.runDB.FinishRun(runID, status, err); dbErr != nil {
			runLog.Errorf("Failed to record run outcome: %v", dbErr)
		}
	}
	if run.onDone != nil {
		run.onDone()
	}

	t.lock.Lock()
	t.status.State = status.State
	t.status.ExitCode = status.ExitCode
	t.status.FinishedAt = time.Now()
	if err != nil {
		t.status.Error = err.Error()
	}
	t.active = nil
	t.busy = false
	t.lock.Unlock()
	close(run.done)
}

// RunOneClick builds a dataset from sourceDir, and then trains on it.
// If persist is false and the dataset was built into a temporary directory,
// the directory is deleted when the run finishes.
func (t *Trainer) RunOneClick(sourceDir, exportPath string, persist bool) (string, *dataset.BuildResult, error) {
	if err := t.acquire(); err != nil {
		return "", nil, err
	}
	res, err := t.build(t.cfg.BuildOptions(sourceDir))
	if err != nil {
		t.release()
		return "", nil, err
	}
	var onDone func()
	if !persist && res.Temporary {
		onDone = func() {
			t.Log.Infof("Removing temporary dataset %v", res.Root)
			if err := os.RemoveAll(res.Root); err != nil {
				t.Log.Warnf("Failed to remove temporary dataset %v: %v", res.Root, err)
			}
		}
	}
	runID, err := t.startTraining(TrainRequest{DatasetRoot: res.Root, ExportPath: exportPath}, onDone)
	if err != nil {
		if onDone != nil {
			onDone()
		}
		t.release()
		return "", res, err
	}
	return runID, res, nil
}

// Stop asks the active training run to terminate. Returns false if nothing is running.
func (t *Trainer) Stop() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.active == nil {
		return false
	}
	t.Log.Infof("Stop requested for run %v", t.status.RunID)
	t.active.job.Cancel()
	return true
}

// Status returns the state of the current or most recent run
func (t *Trainer) Status() RunStatus {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.status
}

// WaitRun blocks until the given run has finished, or ctx is done
func (t *Trainer) WaitRun(ctx context.Context, runID string) (RunStatus, error) {
	t.lock.Lock()
	if t.status.RunID != runID {
		t.lock.Unlock()
		return RunStatus{}, fmt.Errorf("%w %v", ErrUnknownRun, runID)
	}
	run := t.active
	t.lock.Unlock()
	if run != nil {
		select {
		case <-run.done:
		case <-ctx.Done():
			return RunStatus{}, ctx.Err()
		}
	}
	return t.Status(), nil
}

// RecentRuns returns the run history, newest first
func (t *Trainer) RecentRuns(limit int) ([]rundb.Run, error) {
	if t.runDB == nil {
		return []rundb.Run{}, nil
	}
	return t.runDB.RecentRuns(limit)
}

// CheckEnvironment verifies that the configured interpreter exists inside the sandbox
func (t *Trainer) CheckEnvironment() error {
	return t.launcher.CheckInterpreter(t.cfg.Sandbox.EnvBaseDir)
}

// Publish zips the dataset at root, and uploads it to blob storage under name.
// If name is empty, it is "datasets/<base name of root>.zip".
// Returns the public URL of the upload, if the store has one.
func (t *Trainer) Publish(ctx context.Context, root, name string) (string, error) {
	if t.store == nil {
		return "", storage.ErrNotConfigured
	}
	if name == "" {
		name = "datasets/" + filepath.Base(root) + ".zip"
	}
	t.Log.Infof("Publishing %v as %v", root, name)

	pr, pw := io.Pipe()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := dataset.Archive(root, pw)
		pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		err := storage.WriteFile(ctx, t.store, name, pr)
		pr.CloseWithError(err)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("Failed to publish %v: %w", root, err)
	}
	url, err := t.store.URL(name)
	if errors.Is(err, storage.ErrNoPublicUrl) {
		return "", nil
	}
	return url, err
}
