package nn

import (
	"errors"
	"math"
)

var ErrNoPoints = errors.New("no points")

// Point is an annotation vertex, in image pixel coordinates
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis aligned box in pixel coordinates, stored as its two extreme corners
type Rect struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// BoundingRect returns the smallest Rect that contains all of the points.
// A two point rectangle annotation and an arbitrary polygon are treated the same way.
func BoundingRect(points []Point) (Rect, error) {
	if len(points) == 0 {
		return Rect{}, ErrNoPoints
	}
	r := Rect{
		X0: math.Inf(1),
		Y0: math.Inf(1),
		X1: math.Inf(-1),
		Y1: math.Inf(-1),
	}
	for _, p := range points {
		r.X0 = min(r.X0, p.X)
		r.Y0 = min(r.Y0, p.Y)
		r.X1 = max(r.X1, p.X)
		r.Y1 = max(r.Y1, p.Y)
	}
	return r, nil
}

func (r Rect) Width() float64 {
	return r.X1 - r.X0
}

func (r Rect) Height() float64 {
	return r.Y1 - r.Y0
}

func (r Rect) Center() Point {
	return Point{
		X: (r.X0 + r.X1) / 2,
		Y: (r.Y0 + r.Y1) / 2,
	}
}

// YOLOBox is a box in center format, with all values normalized to [0,1] by the image dimensions
type YOLOBox struct {
	XC     float64 `json:"xc"`
	YC     float64 `json:"yc"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Normalize converts the box into center format, relative to an image of the given size.
// Boxes that extend past the image edge are not clipped.
func (r Rect) Normalize(imageWidth, imageHeight int) YOLOBox {
	iw := float64(imageWidth)
	ih := float64(imageHeight)
	c := r.Center()
	return YOLOBox{
		XC:     c.X / iw,
		YC:     c.Y / ih,
		Width:  r.Width() / iw,
		Height: r.Height() / ih,
	}
}
