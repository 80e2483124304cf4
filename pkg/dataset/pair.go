package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ImageExtensions are the (lowercase) file extensions that are recognized as images
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Pair is an image and its annotation document, matched by filename stem
type Pair struct {
	Image      string `json:"image"`
	Annotation string `json:"annotation"`
}

// Stem returns the image filename without its extension
func (p Pair) Stem() string {
	name := filepath.Base(p.Image)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Pairing is the result of PairRecords
type Pairing struct {
	Pairs     []Pair   `json:"pairs"`
	Unmatched []string `json:"unmatched"` // Images without annotations, annotations without images, and duplicate stems
}

type stemGroup struct {
	image      string
	annotation string
}

// PairRecords walks root recursively, and pairs up every image with the .json file of the same
// stem in the same directory. Directories are visited in lexical order, and pairs within
// a directory are sorted by stem, so the result is deterministic for a given tree.
func PairRecords(root string) (*Pairing, error) {
	st, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Path: root, Err: err}
		}
		return nil, err
	}
	if !st.IsDir() {
		return nil, configErrorf("%v is not a directory", root)
	}

	result := &Pairing{
		Pairs:     []Pair{},
		Unmatched: []string{},
	}

	// WalkDir can return to a directory after descending into one of its subdirectories,
	// so groups are kept per directory until the walk is finished.
	dirs := []string{}
	byDir := map[string]map[string]*stemGroup{}
	flush := func(groups map[string]*stemGroup) {
		stems := make([]string, 0, len(groups))
		for stem := range groups {
			stems = append(stems, stem)
		}
		sort.Strings(stems)
		for _, stem := range stems {
			g := groups[stem]
			if g.image != "" && g.annotation != "" {
				result.Pairs = append(result.Pairs, Pair{Image: g.image, Annotation: g.annotation})
			} else if g.image != "" {
				result.Unmatched = append(result.Unmatched, g.image)
			} else {
				result.Unmatched = append(result.Unmatched, g.annotation)
			}
		}
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		dir := filepath.Dir(path)
		groups := byDir[dir]
		if groups == nil {
			groups = map[string]*stemGroup{}
			byDir[dir] = groups
			dirs = append(dirs, dir)
		}
		name := d.Name()
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		ext = strings.ToLower(ext)
		isImage := ImageExtensions[ext]
		isJSON := ext == ".json"
		if !isImage && !isJSON {
			return nil
		}
		g := groups[stem]
		if g == nil {
			g = &stemGroup{}
			groups[stem] = g
		}
		// For duplicates such as a.jpg and a.png, the first in lexical order wins
		if isImage {
			if g.image == "" {
				g.image = path
			} else {
				result.Unmatched = append(result.Unmatched, path)
			}
		} else {
			if g.annotation == "" {
				g.annotation = path
			} else {
				result.Unmatched = append(result.Unmatched, path)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %v: %w", root, err)
	}
	for _, dir := range dirs {
		flush(byDir[dir])
	}
	return result, nil
}
