package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/cyclopcam/yolotrain/pkg/nn"
)

// ShapeRectangle is the only shape_type that is converted into a box
const ShapeRectangle = "rectangle"

// Annotation is a LabelMe style annotation document for a single image
type Annotation struct {
	ImagePath   string   `json:"imagePath"`
	ImageWidth  *float64 `json:"imageWidth"`
	ImageHeight *float64 `json:"imageHeight"`
	Shapes      []Shape  `json:"shapes"`
}

// Shape is one annotated region of an image
type Shape struct {
	Label     string      `json:"label"`
	Points    [][]float64 `json:"points"`
	ShapeType string      `json:"shape_type"`
}

// LoadAnnotation parses an annotation file and validates the image dimensions and rectangle points.
// Labels are not checked here.
func LoadAnnotation(jsonPath string) (*Annotation, error) {
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read annotation %v: %w", jsonPath, err)
	}
	a := &Annotation{}
	if err := json.Unmarshal(raw, a); err != nil {
		return nil, &FormatError{File: jsonPath, Reason: "invalid JSON", Err: err}
	}
	if err := validDimension(a.ImageWidth); err != nil {
		return nil, &FormatError{File: jsonPath, Reason: "imageWidth " + err.Error()}
	}
	if err := validDimension(a.ImageHeight); err != nil {
		return nil, &FormatError{File: jsonPath, Reason: "imageHeight " + err.Error()}
	}
	for i, s := range a.Shapes {
		if s.ShapeType != ShapeRectangle {
			continue
		}
		if len(s.Points) == 0 {
			return nil, &FormatError{File: jsonPath, Reason: fmt.Sprintf("shape %v has no points", i)}
		}
		for _, p := range s.Points {
			if len(p) < 2 {
				return nil, &FormatError{File: jsonPath, Reason: fmt.Sprintf("shape %v has a point with %v coordinates", i, len(p))}
			}
		}
	}
	return a, nil
}

func validDimension(v *float64) error {
	if v == nil {
		return fmt.Errorf("is missing")
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) || int(*v) <= 0 {
		return fmt.Errorf("is invalid (%v)", *v)
	}
	return nil
}

// Width returns the image width. Only valid after LoadAnnotation has succeeded.
func (a *Annotation) Width() int {
	return int(*a.ImageWidth)
}

// Height returns the image height. Only valid after LoadAnnotation has succeeded.
func (a *Annotation) Height() int {
	return int(*a.ImageHeight)
}

// ObjectLabels converts the rectangle shapes into normalized YOLO boxes.
// Any other shape type is ignored. The first shape with a label that is not
// in classes causes a LabelNotFoundError.
func (a *Annotation) ObjectLabels(file string, classes ClassList) ([]nn.ObjectLabel, error) {
	labels := []nn.ObjectLabel{}
	for _, s := range a.Shapes {
		if s.ShapeType != ShapeRectangle {
			continue
		}
		cls, ok := classes.Index(s.Label)
		if !ok {
			return nil, &LabelNotFoundError{File: file, Label: s.Label}
		}
		points := make([]nn.Point, len(s.Points))
		for i, p := range s.Points {
			points[i] = nn.Point{X: p[0], Y: p[1]}
		}
		rect, err := nn.BoundingRect(points)
		if err != nil {
			return nil, &FormatError{File: file, Reason: "rectangle", Err: err}
		}
		labels = append(labels, nn.ObjectLabel{
			Class: cls,
			Box:   rect.Normalize(a.Width(), a.Height()),
		})
	}
	return labels, nil
}

// ToYoloLines reads an annotation file and returns one YOLO label line per rectangle
func ToYoloLines(jsonPath string, classes ClassList) ([]string, error) {
	a, err := LoadAnnotation(jsonPath)
	if err != nil {
		return nil, err
	}
	labels, err := a.ObjectLabels(jsonPath, classes)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(labels))
	for i, l := range labels {
		lines[i] = l.String()
	}
	return lines, nil
}
