// Package detector adapts external object detectors to the tracker's
// Detection type.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/banshee-data/footfall/internal/config"
	"github.com/banshee-data/footfall/internal/tracking"
)

// ErrMalformed marks detector output that cannot be turned into detections.
var ErrMalformed = errors.New("malformed detector output")

// RawDetection is one detector output: a box in cropped-frame pixels
// (x1, y1, x2, y2), a confidence and a class id.
type RawDetection struct {
	Box        [4]float64
	Confidence float64
	Class      int
}

// Params are forwarded to the detector on every call.
type Params struct {
	ConfThreshold float64
	IoUThreshold  float64 // non-maximum suppression overlap
	ImageSize     int
	Classes       []int // nil means every class
}

// ParamsFromConfig builds Params from a loaded TrackingConfig.
func ParamsFromConfig(cfg *config.TrackingConfig) Params {
	return Params{
		ConfThreshold: cfg.GetConfThreshold(),
		IoUThreshold:  cfg.GetIoUThreshold(),
		ImageSize:     cfg.GetImageSize(),
		Classes:       cfg.GetClasses(),
	}
}

// Detector finds objects in one cropped frame. frame is the 1-based index
// of the frame in the source stream.
type Detector interface {
	Detect(ctx context.Context, frame int, img image.Image, p Params) ([]RawDetection, error)
}

// Func adapts a function to the Detector interface.
type Func func(ctx context.Context, frame int, img image.Image, p Params) ([]RawDetection, error)

// Detect calls f.
func (f Func) Detect(ctx context.Context, frame int, img image.Image, p Params) ([]RawDetection, error) {
	return f(ctx, frame, img, p)
}

// Filter drops detections below the confidence threshold or outside the
// class filter. Detectors that already filter server-side are unaffected.
func Filter(raws []RawDetection, p Params) []RawDetection {
	var allowed map[int]bool
	if len(p.Classes) > 0 {
		allowed = make(map[int]bool, len(p.Classes))
		for _, c := range p.Classes {
			allowed[c] = true
		}
	}
	out := raws[:0:0]
	for _, r := range raws {
		if r.Confidence < p.ConfThreshold {
			continue
		}
		if allowed != nil && !allowed[r.Class] {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ToDetections converts raw boxes to tracker detections. Centroid mode
// uses the box centre with its confidence; bbox mode uses both corners
// with the confidence repeated per corner. Any non-finite or inverted box
// fails the whole batch with ErrMalformed.
func ToDetections(raws []RawDetection, mode tracking.Mode) ([]tracking.Detection, error) {
	out := make([]tracking.Detection, 0, len(raws))
	for i, r := range raws {
		x1, y1, x2, y2 := r.Box[0], r.Box[1], r.Box[2], r.Box[3]
		for _, v := range []float64{x1, y1, x2, y2, r.Confidence} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: detection %d has non-finite values", ErrMalformed, i)
			}
		}
		if x2 < x1 || y2 < y1 {
			return nil, fmt.Errorf("%w: detection %d box is inverted", ErrMalformed, i)
		}
		switch mode {
		case tracking.ModeCentroid:
			out = append(out, tracking.NewPointDetection((x1+x2)/2, (y1+y2)/2, r.Confidence))
		case tracking.ModeBBox:
			out = append(out, tracking.NewBoxDetection(x1, y1, x2, y2, r.Confidence))
		default:
			return nil, fmt.Errorf("detections for %q: %w", mode, tracking.ErrUnsupportedMode)
		}
	}
	return out, nil
}
