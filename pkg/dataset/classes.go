package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ClassList is the ordered list of class names. A class's index is its position in the list.
type ClassList []string

// Index returns the position of label, or false if label is not a known class
func (c ClassList) Index(label string) (int, bool) {
	for i, name := range c {
		if name == label {
			return i, true
		}
	}
	return -1, false
}

// LoadClasses reads one class name per non-empty line. Surrounding whitespace is trimmed.
func LoadClasses(path string) (ClassList, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("%w: failed to open class list %v: %w", ErrConfiguration, path, err)
	}
	defer f.Close()

	classes := ClassList{}
	seen := map[string]bool{}
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			// Notepad likes to emit a byte order mark
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		if seen[name] {
			return nil, configErrorf("class '%v' appears more than once in %v", name, path)
		}
		seen[name] = true
		classes = append(classes, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read class list %v: %w", path, err)
	}
	if len(classes) == 0 {
		return nil, configErrorf("class list %v is empty", path)
	}
	return classes, nil
}
