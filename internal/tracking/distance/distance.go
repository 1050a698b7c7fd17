// Package distance scores how dissimilar a detection is from a track's
// current estimate. Smaller is more similar; every function returns a
// finite, non-negative value and never panics on degenerate input.
package distance

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/footfall/internal/tracking"
)

// MaxDistance is the sentinel for pairs that cannot match: boxes with no
// overlap, NaN coordinates or mismatched shapes.
const MaxDistance = 10000.0

// Reference thresholds per mode.
const (
	DefaultCentroidThreshold = 30.0
	DefaultBBoxThreshold     = 3.33
)

// Func scores a detection (first) against a track estimate (second).
type Func func(detection, estimate tracking.Shape) float64

// Euclidean is the straight-line distance between the two shapes treated
// as flat coordinate vectors. In centroid mode that is the pixel distance
// between the two points.
func Euclidean(detection, estimate tracking.Shape) float64 {
	if len(detection) == 0 || len(detection) != len(estimate) {
		return MaxDistance
	}
	if !detection.Finite() || !estimate.Finite() {
		return MaxDistance
	}
	d := floats.Distance(flatten(detection), flatten(estimate), 2)
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return MaxDistance
	}
	return d
}

func flatten(s tracking.Shape) []float64 {
	out := make([]float64, 0, 2*len(s))
	for _, p := range s {
		out = append(out, p.X, p.Y)
	}
	return out
}

// IoU is the intersection-over-union of two axis-aligned boxes given as
// (top-left, bottom-right) corners, using the inclusive pixel convention:
// a box spanning x1..x2 is x2-x1+1 pixels wide. The result is in [0, 1];
// invalid input yields 0.
func IoU(a, b tracking.Shape) float64 {
	if len(a) != 2 || len(b) != 2 || !a.Finite() || !b.Finite() {
		return 0
	}
	areaA := inclusiveArea(a[0].X, a[0].Y, a[1].X, a[1].Y)
	areaB := inclusiveArea(b[0].X, b[0].Y, b[1].X, b[1].Y)
	inter := inclusiveArea(
		math.Max(a[0].X, b[0].X), math.Max(a[0].Y, b[0].Y),
		math.Min(a[1].X, b[1].X), math.Min(a[1].Y, b[1].Y),
	)
	union := areaA + areaB - inter
	if union <= 0 || inter <= 0 {
		return 0
	}
	return math.Min(inter/union, 1)
}

func inclusiveArea(x1, y1, x2, y2 float64) float64 {
	w := math.Max(0, x2-x1+1)
	h := math.Max(0, y2-y1+1)
	return w * h
}

// BoxDistance is 1/IoU for overlapping boxes and MaxDistance otherwise.
// Identical boxes score exactly 1.
func BoxDistance(detection, estimate tracking.Shape) float64 {
	iou := IoU(detection, estimate)
	if iou <= 0 {
		return MaxDistance
	}
	return math.Min(1/iou, MaxDistance)
}

// ByMode returns the distance function for a representation mode.
func ByMode(mode tracking.Mode) (Func, error) {
	switch mode {
	case tracking.ModeCentroid:
		return Euclidean, nil
	case tracking.ModeBBox:
		return BoxDistance, nil
	}
	return nil, fmt.Errorf("distance for %q: %w", mode, tracking.ErrUnsupportedMode)
}

// DefaultThreshold returns the reference association threshold for mode.
func DefaultThreshold(mode tracking.Mode) float64 {
	if mode == tracking.ModeBBox {
		return DefaultBBoxThreshold
	}
	return DefaultCentroidThreshold
}
