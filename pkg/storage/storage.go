// Package storage is a blob store for published datasets, backed by a local directory or Google Cloud Storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cyclopcam/logs"
)

var ErrNoPublicUrl = errors.New("blob store has no public URL")
var ErrNotConfigured = errors.New("no blob store configured")

// Storage is an abstraction of a blob store (eg S3)
type Storage interface {
	// When finished, you must close the WriteCloser. The blob is only complete once Close returns nil.
	WriteFile(ctx context.Context, name string) (io.WriteCloser, error)

	// When finished, you must close File.Reader
	ReadFile(ctx context.Context, name string) (*File, error)

	DeleteFile(ctx context.Context, name string) error

	// URL returns a direct link to the blob, or ErrNoPublicUrl
	URL(name string) (string, error)
}

// File is an element in blob storage.
type File struct {
	Reader     io.ReadCloser
	ModifiedAt time.Time
	Size       int64
}

// One of the storage options must be configured (i.e. either 'filesystem' or 'gcs')
type Config struct {
	Filesystem *ConfigFS  `json:"filesystem,omitempty"`
	GCS        *ConfigGCS `json:"gcs,omitempty"`
}

type ConfigFS struct {
	Root string `json:"root"` // Path to the root of the filesystem
}

type ConfigGCS struct {
	Bucket string `json:"bucket"` // Name of the GCS bucket
	Public bool   `json:"public"` // Whether the bucket is public. This allows us to hand out direct URLs into GCS.
}

func (c *Config) IsConfigured() bool {
	return c.Filesystem != nil || c.GCS != nil
}

// Open creates the blob store described by cfg
func Open(log logs.Log, cfg Config) (Storage, error) {
	if cfg.GCS != nil {
		return NewStorageGCS(log, cfg.GCS.Bucket, cfg.GCS.Public)
	} else if cfg.Filesystem != nil {
		return NewStorageFS(log, cfg.Filesystem.Root)
	}
	return nil, fmt.Errorf("%w: one of the storage options must be configured (i.e. either 'filesystem' or 'gcs')", ErrNotConfigured)
}

// WriteFile copies content into the blob called name
func WriteFile(ctx context.Context, s Storage, name string, content io.Reader) error {
	f, err := s.WriteFile(ctx, name)
	if err != nil {
		return err
	}
	if _, err = io.Copy(f, content); err != nil {
		if a, ok := f.(aborter); ok {
			a.Abort()
		} else {
			f.Close()
		}
		return err
	}
	return f.Close()
}

// aborter is implemented by writers that can discard an unfinished blob
type aborter interface {
	Abort() error
}

func ReadFile(ctx context.Context, s Storage, name string) ([]byte, error) {
	f, err := s.ReadFile(ctx, name)
	if err != nil {
		return nil, err
	}
	defer f.Reader.Close()
	return io.ReadAll(f.Reader)
}
