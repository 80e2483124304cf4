package nn

import "fmt"

// ObjectLabel is one line of a YOLO label file
type ObjectLabel struct {
	Class int     `json:"class"`
	Box   YOLOBox `json:"box"`
}

// String returns the label in YOLO text format, eg "0 0.250000 0.250000 0.500000 0.500000"
func (l ObjectLabel) String() string {
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", l.Class, l.Box.XC, l.Box.YC, l.Box.Width, l.Box.Height)
}
