package dataset

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestFilename is the name of the manifest inside the dataset root.
// The training entry point looks for exactly this name.
const ManifestFilename = "dataset_config.yaml"

// Manifest is the dataset descriptor that is handed to the training process
type Manifest struct {
	Path  string   `yaml:"path" json:"path"`
	Train string   `yaml:"train" json:"train"`
	Val   string   `yaml:"val" json:"val"`
	Test  string   `yaml:"test" json:"test"`
	Names []string `yaml:"names" json:"names"`
}

// NewManifest describes a dataset rooted at root, using our standard images/<split> layout
func NewManifest(root string, classes ClassList) *Manifest {
	return &Manifest{
		Path:  strings.ReplaceAll(root, `\`, "/"),
		Train: imageDir(SplitTrain),
		Val:   imageDir(SplitVal),
		Test:  imageDir(SplitTest),
		Names: append([]string{}, classes...),
	}
}

// Translate returns a copy of the manifest with its root path rewritten by mapPath.
// This is the view of the manifest from inside the sandbox.
func (m *Manifest) Translate(mapPath func(string) (string, error)) (*Manifest, error) {
	p, err := mapPath(m.Path)
	if err != nil {
		return nil, err
	}
	c := *m
	c.Path = p
	c.Names = append([]string{}, m.Names...)
	return &c, nil
}

// WriteManifest writes m into root/ManifestFilename, and returns the filename
func WriteManifest(root string, m *Manifest) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	filename := filepath.Join(root, ManifestFilename)
	if err := os.WriteFile(filename, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	return filename, nil
}

// LoadManifest reads the manifest of the dataset at root
func LoadManifest(root string) (*Manifest, error) {
	filename := filepath.Join(root, ManifestFilename)
	raw, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: filename, Err: err}
		}
		return nil, err
	}
	m := &Manifest{}
	if err := yaml.Unmarshal(raw, m); err != nil {
		return nil, &FormatError{File: filename, Reason: "invalid YAML", Err: err}
	}
	if m.Path == "" || m.Train == "" || len(m.Names) == 0 {
		return nil, &FormatError{File: filename, Reason: "manifest is missing path, train or names"}
	}
	return m, nil
}

func imageDir(s SplitKind) string {
	return "images/" + s.String()
}

func labelDir(s SplitKind) string {
	return "labels/" + s.String()
}
