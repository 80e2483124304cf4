package dataset

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Archive writes the dataset at root into w as a zip file.
// Paths inside the archive are relative to root, with forward slashes.
// The manifest must exist, so that we never publish a half built dataset.
func Archive(root string, w io.Writer) error {
	if _, err := LoadManifest(root); err != nil {
		return err
	}
	zipWriter := zip.NewWriter(w)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		dst, err := zipWriter.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		return copyFile(dst, path)
	})
	if err != nil {
		zipWriter.Close()
		return fmt.Errorf("failed to archive %v: %w", root, err)
	}
	return zipWriter.Close()
}

func copyFile(dst io.Writer, src string) error {
	file, err := os.Open(src)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(dst, file)
	return err
}
