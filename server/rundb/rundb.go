// Package rundb records the history of dataset builds and training runs.
package rundb

import (
	"fmt"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/yolotrain/pkg/dbh"
	"github.com/cyclopcam/yolotrain/pkg/gen"
	"github.com/cyclopcam/yolotrain/pkg/shell"
	"gorm.io/gorm"
)

// RunStateFailed is the state of a run whose process could not be started
const RunStateFailed = "failed"

// MaxListLimit is the most records that RecentRuns and RecentBuilds will return
const MaxListLimit = 1000

// RunDB is the build and run history database
type RunDB struct {
	log logs.Log
	db  *gorm.DB
}

// Open or create a run DB
func Open(log logs.Log, cfg dbh.DBConfig, flags dbh.DBConnectFlags) (*RunDB, error) {
	log.Infof("Opening run history DB %v", cfg.LogSafeDescription())
	db, err := dbh.OpenDB(log, cfg, Migrations(log), flags)
	if err != nil {
		return nil, fmt.Errorf("Failed to open run history DB %v: %w", cfg.Database, err)
	}
	return &RunDB{
		log: log,
		db:  db,
	}, nil
}

func (r *RunDB) Close() {
	if sqlDB, err := r.db.DB(); err == nil {
		sqlDB.Close()
	}
}

// AddBuild records a dataset build
func (r *RunDB) AddBuild(b *Build) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = dbh.MakeIntTime(time.Now())
	}
	return r.db.Create(b).Error
}

// StartRun records the start of a training run
func (r *RunDB) StartRun(run *Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = dbh.MakeIntTime(time.Now())
	}
	run.State = shell.StateRunning.String()
	return r.db.Create(run).Error
}

// FinishRun records the outcome of a training run.
// runErr is the error that prevented the run from starting, if any.
func (r *RunDB) FinishRun(runID string, status shell.Status, runErr error) error {
	errMsg := ""
	state := status.State.String()
	if runErr != nil {
		errMsg = runErr.Error()
		state = RunStateFailed
	}
	res := r.db.Model(&Run{}).Where("run_id = ?", runID).Updates(map[string]any{
		"finished_at": dbh.MakeIntTime(time.Now()),
		"state":       state,
		"exit_code":   status.ExitCode,
		"error":       errMsg,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("run %v not found", runID)
	}
	return nil
}

// GetRun returns the run with the given ID
func (r *RunDB) GetRun(runID string) (*Run, error) {
	run := &Run{}
	if err := r.db.Where("run_id = ?", runID).First(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// RecentRuns returns the most recent runs, newest first
func (r *RunDB) RecentRuns(limit int) ([]Run, error) {
	runs := []Run{}
	err := r.db.Order("started_at DESC, id DESC").Limit(clampLimit(limit)).Find(&runs).Error
	return runs, err
}

// RecentBuilds returns the most recent builds, newest first
func (r *RunDB) RecentBuilds(limit int) ([]Build, error) {
	builds := []Build{}
	err := r.db.Order("created_at DESC, id DESC").Limit(clampLimit(limit)).Find(&builds).Error
	return builds, err
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return MaxListLimit
	}
	return gen.Clamp(limit, 1, MaxListLimit)
}
