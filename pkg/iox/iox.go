package iox

import (
	"bufio"
	"errors"
	"io"
	"os"
)

// WriteStreamToFile copies src into a new file, removing the partial file on failure
func WriteStreamToFile(dstFilename string, src io.Reader) error {
	dstFile, err := os.Create(dstFilename)
	if err != nil {
		return err
	}
	_, err = io.Copy(dstFile, src)
	errClose := dstFile.Close()
	if err == nil {
		err = errClose
	}
	if err != nil {
		os.Remove(dstFilename)
		return err
	}
	return nil
}

// CopyFile copies the contents of srcFilename byte for byte into dstFilename, replacing dstFilename if it exists
func CopyFile(dstFilename, srcFilename string) error {
	src, err := os.Open(srcFilename)
	if err != nil {
		return err
	}
	defer src.Close()
	return WriteStreamToFile(dstFilename, src)
}

// WriteLines writes each line followed by a newline. An empty list produces an empty file.
func WriteLines(dstFilename string, lines []string) error {
	f, err := os.Create(dstFilename)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, ln := range lines {
		w.WriteString(ln)
		w.WriteByte('\n')
	}
	err = w.Flush()
	errClose := f.Close()
	if err == nil {
		err = errClose
	}
	if err != nil {
		os.Remove(dstFilename)
	}
	return err
}

// Exists returns true if something exists at path
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return !errors.Is(err, os.ErrNotExist)
}
