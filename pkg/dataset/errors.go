package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories. Use errors.Is to classify an error returned from this package.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrFormat        = errors.New("format error")
	ErrConsistency   = errors.New("consistency error")
	ErrCollision     = errors.New("output file already exists")
)

// NotFoundError is returned when a required input file or directory is missing
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v not found: %v", e.Path, e.Err)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrConfiguration
}

// FormatError is returned when an annotation document can't be understood
type FormatError struct {
	File   string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v: %v", e.File, e.Reason, e.Err)
	}
	return fmt.Sprintf("%v: %v", e.File, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// LabelNotFoundError is returned when a shape refers to a label that is not in the class list.
// This aborts the entire build.
type LabelNotFoundError struct {
	File  string
	Label string
}

func (e *LabelNotFoundError) Error() string {
	return fmt.Sprintf("%v: label '%v' is not in the class list", e.File, e.Label)
}

func (e *LabelNotFoundError) Is(target error) bool {
	return target == ErrConsistency
}

// BuildError is returned by Build when it fails after it has started writing output.
// Files that were already written are not removed, so Written lists them for the caller.
type BuildError struct {
	Root    string
	Written []string
	Err     error
}

func (e *BuildError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "dataset build in %v failed", e.Root)
	if len(e.Written) != 0 {
		fmt.Fprintf(&b, " after writing %v files", len(e.Written))
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

func configErrorf(format string, a ...any) error {
	return fmt.Errorf("%w: %v", ErrConfiguration, fmt.Sprintf(format, a...))
}
