package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/yolotrain/pkg/iox"
)

// CollisionPolicy decides what happens when an output file already exists
type CollisionPolicy int

const (
	CollisionOverwrite CollisionPolicy = iota // Replace the existing file
	CollisionFail                             // Abort the build with ErrCollision
	CollisionSkip                             // Leave the existing file, and skip the record
)

func (c CollisionPolicy) String() string {
	switch c {
	case CollisionOverwrite:
		return "overwrite"
	case CollisionFail:
		return "fail"
	case CollisionSkip:
		return "skip"
	}
	return fmt.Sprintf("CollisionPolicy(%d)", int(c))
}

// ParseCollisionPolicy parses "overwrite", "fail" or "skip". An empty string is "overwrite".
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "overwrite":
		return CollisionOverwrite, nil
	case "fail":
		return CollisionFail, nil
	case "skip":
		return CollisionSkip, nil
	}
	return 0, configErrorf("unknown collision policy '%v' (must be overwrite, fail or skip)", s)
}

func (c CollisionPolicy) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *CollisionPolicy) UnmarshalText(b []byte) error {
	p, err := ParseCollisionPolicy(string(b))
	if err != nil {
		return err
	}
	*c = p
	return nil
}

// BuildOptions describe a dataset build
type BuildOptions struct {
	SourceDir   string          // Directory tree of images and annotation files
	ClassesFile string          // Class list, one name per line
	Ratios      Ratios          // Relative split sizes
	Seed        uint64          // Shuffle seed
	OutputDir   string          // Dataset root. If empty, a new temporary directory is created.
	Collision   CollisionPolicy // What to do when an output file already exists
}

// BuildResult describes a successfully materialized dataset
type BuildResult struct {
	Root         string    `json:"root"`
	ManifestPath string    `json:"manifestPath"`
	Temporary    bool      `json:"temporary"` // True if Root was created by us as a temp dir. The caller must clean it up.
	Manifest     *Manifest `json:"manifest"`
	Train        int       `json:"train"`
	Val          int       `json:"val"`
	Test         int       `json:"test"`
	Skipped      int       `json:"skipped"`   // Records skipped because of CollisionSkip
	Unmatched    []string  `json:"unmatched"` // Files in SourceDir that could not be paired
}

func (r *BuildResult) String() string {
	j, _ := json.Marshal(r)
	return string(j)
}

// Build materializes a YOLO dataset from the annotated images in opts.SourceDir.
//
// Configuration and format errors are detected before anything is written.
// A label that is missing from the class list aborts the build wherever it is found,
// and the files written up to that point are left on disk (see BuildError).
// The manifest is written last, so a root without a manifest is never a usable dataset.
func Build(log logs.Log, opts BuildOptions) (*BuildResult, error) {
	if err := opts.Ratios.Validate(); err != nil {
		return nil, err
	}
	classes, err := LoadClasses(opts.ClassesFile)
	if err != nil {
		return nil, err
	}
	pairing, err := PairRecords(opts.SourceDir)
	if err != nil {
		return nil, err
	}
	if len(pairing.Unmatched) != 0 {
		log.Warnf("%v files in %v have no image/annotation partner, and will be ignored", len(pairing.Unmatched), opts.SourceDir)
		for _, u := range pairing.Unmatched {
			log.Debugf("Unmatched: %v", u)
		}
	}
	pairs := pairing.Pairs
	if len(pairs) == 0 {
		return nil, configErrorf("no image/annotation pairs found in %v", opts.SourceDir)
	}
	for _, p := range pairs {
		if _, err := LoadAnnotation(p.Annotation); err != nil {
			return nil, err
		}
	}
	assignment, err := Split(len(pairs), opts.Ratios, opts.Seed)
	if err != nil {
		return nil, err
	}

	res := &BuildResult{
		Unmatched: pairing.Unmatched,
		Train:     assignment.Count(SplitTrain),
		Val:       assignment.Count(SplitVal),
		Test:      assignment.Count(SplitTest),
	}
	root := opts.OutputDir
	if root == "" {
		if root, err = os.MkdirTemp("", "yolo_ds_"); err != nil {
			return nil, fmt.Errorf("failed to create temporary dataset directory: %w", err)
		}
		res.Temporary = true
	}
	if root, err = filepath.Abs(root); err != nil {
		return nil, err
	}
	res.Root = root
	log.Infof("Building dataset of %v records (%v) into %v. Split %v/%v/%v", len(pairs), opts.Ratios, root, res.Train, res.Val, res.Test)

	if err := ensureDirs(root); err != nil {
		return nil, &BuildError{Root: root, Err: err}
	}

	written := []string{}
	fail := func(err error) (*BuildResult, error) {
		return nil, &BuildError{Root: root, Written: written, Err: err}
	}

	for i, p := range pairs {
		split := assignment.Of[i]
		lines, err := ToYoloLines(p.Annotation, classes)
		if err != nil {
			return fail(err)
		}
		dstImage := filepath.Join(root, filepath.FromSlash(imageDir(split)), filepath.Base(p.Image))
		dstLabel := filepath.Join(root, filepath.FromSlash(labelDir(split)), p.Stem()+".txt")
		if iox.Exists(dstImage) || iox.Exists(dstLabel) {
			switch opts.Collision {
			case CollisionFail:
				return fail(fmt.Errorf("%w: %v", ErrCollision, dstImage))
			case CollisionSkip:
				log.Debugf("Skipping %v, because output already exists", p.Image)
				res.Skipped++
				continue
			}
		}
		if err := iox.CopyFile(dstImage, p.Image); err != nil {
			return fail(fmt.Errorf("failed to copy %v: %w", p.Image, err))
		}
		written = append(written, dstImage)
		if err := iox.WriteLines(dstLabel, lines); err != nil {
			return fail(fmt.Errorf("failed to write %v: %w", dstLabel, err))
		}
		written = append(written, dstLabel)
	}

	res.Manifest = NewManifest(root, classes)
	if res.ManifestPath, err = WriteManifest(root, res.Manifest); err != nil {
		return fail(err)
	}
	log.Infof("Dataset written to %v", res.ManifestPath)
	return res, nil
}

func ensureDirs(root string) error {
	for _, s := range AllSplits {
		for _, d := range []string{imageDir(s), labelDir(s)} {
			if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(d)), 0755); err != nil {
				return err
			}
		}
	}
	return nil
}
