package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testShape struct {
	Label     string      `json:"label"`
	Points    [][]float64 `json:"points"`
	ShapeType string      `json:"shape_type"`
}

func rect(label string, x0, y0, x1, y1 float64) testShape {
	return testShape{Label: label, Points: [][]float64{{x0, y0}, {x1, y1}}, ShapeType: ShapeRectangle}
}

func writeAnnotation(t *testing.T, filename string, width, height int, shapes ...testShape) {
	doc := map[string]any{
		"version":     "5.2.1",
		"imagePath":   filepath.Base(filename),
		"imageWidth":  width,
		"imageHeight": height,
		"shapes":      shapes,
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filename, raw, 0644))
}

func writeImage(t *testing.T, filename string) []byte {
	content := []byte(fmt.Sprintf("\xff\xd8\xff fake jpeg %v \x00\x01", filepath.Base(filename)))
	require.NoError(t, os.WriteFile(filename, content, 0644))
	return content
}

func writeClasses(t *testing.T, dir string, names ...string) string {
	fn := filepath.Join(dir, "classes.txt")
	s := ""
	for _, n := range names {
		s += n + "\n"
	}
	require.NoError(t, os.WriteFile(fn, []byte(s), 0644))
	return fn
}

// makeSource creates n annotated images named img00.jpg ... in dir
func makeSource(t *testing.T, dir string, n int) {
	require.NoError(t, os.MkdirAll(dir, 0755))
	for i := 0; i < n; i++ {
		stem := fmt.Sprintf("img%02d", i)
		writeImage(t, filepath.Join(dir, stem+".jpg"))
		writeAnnotation(t, filepath.Join(dir, stem+".json"), 200, 100, rect("cat", 0, 0, 100, 50))
	}
}

func countFiles(t *testing.T, dir string) int {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}
