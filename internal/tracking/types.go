// Package tracking holds the geometry shared by the association and
// lifecycle layers: points, shapes and per-frame detections.
//
// Sub-packages:
//   - distance: dissimilarity between a detection and a track estimate
//   - association: per-frame detection to track matching
//   - tracks: track lifecycle and id allocation
package tracking

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnsupportedMode is returned for a representation mode other than
// centroid or bbox.
var ErrUnsupportedMode = errors.New("unsupported tracking mode")

// Mode selects how detections and tracks are represented for a run.
type Mode string

const (
	ModeCentroid Mode = "centroid" // one point per object
	ModeBBox     Mode = "bbox"     // two corner points per object
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeCentroid:
		return ModeCentroid, nil
	case ModeBBox:
		return ModeBBox, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedMode, s)
}

// PointCount is the number of points a shape carries in this mode.
func (m Mode) PointCount() int {
	if m == ModeBBox {
		return 2
	}
	return 1
}

// Point is a 2D pixel coordinate.
type Point struct {
	X float64
	Y float64
}

// Shape is the geometric representation of a detection or track estimate.
// Centroid mode uses one point; bbox mode uses the top-left and
// bottom-right corners.
type Shape []Point

// Clone returns a copy that shares no storage with s.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

// Finite reports whether every coordinate in the shape is a finite number.
func (s Shape) Finite() bool {
	for _, p := range s {
		if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			return false
		}
	}
	return true
}

// Detection is one observation in one frame.
type Detection struct {
	Shape  Shape
	Scores []float64 // one confidence per point
}

// NewPointDetection builds a centroid-mode detection.
func NewPointDetection(x, y, score float64) Detection {
	return Detection{
		Shape:  Shape{{X: x, Y: y}},
		Scores: []float64{score},
	}
}

// NewBoxDetection builds a bbox-mode detection. The score is recorded
// once per corner.
func NewBoxDetection(x1, y1, x2, y2, score float64) Detection {
	return Detection{
		Shape:  Shape{{X: x1, Y: y1}, {X: x2, Y: y2}},
		Scores: []float64{score, score},
	}
}
