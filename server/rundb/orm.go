package rundb

import (
	"github.com/cyclopcam/yolotrain/pkg/dbh"
)

// BaseModel is our base class for a GORM model.
// The default GORM Model uses int, but we prefer int64
type BaseModel struct {
	ID int64 `gorm:"primaryKey" json:"id"`
}

// Build is a dataset build, successful or not
type Build struct {
	BaseModel
	CreatedAt dbh.IntTime `json:"createdAt"`
	SourceDir string      `json:"sourceDir"`
	Root      string      `json:"root"`   // Empty if the build failed before the root was created
	Ratios    string      `json:"ratios"` // eg "8:1:1"
	Seed      int64       `json:"seed"`   // uint64 seed, stored bit for bit
	Train     int         `json:"train"`
	Val       int         `json:"val"`
	Test      int         `json:"test"`
	Skipped   int         `json:"skipped"`
	Unmatched int         `json:"unmatched"`
	Error     string      `json:"error,omitempty"`
}

// Run is a training run
type Run struct {
	BaseModel
	RunID       string      `json:"runID"`
	DatasetRoot string      `json:"datasetRoot"`
	Command     string      `json:"command"` // The final element of the argv, which is the sandbox script
	StartedAt   dbh.IntTime `json:"startedAt"`
	FinishedAt  dbh.IntTime `json:"finishedAt"` // Zero while running
	State       string      `json:"state"`      // running, completed, cancelled, failed
	ExitCode    int         `json:"exitCode"`
	Error       string      `json:"error,omitempty"`
}
