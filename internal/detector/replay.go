package detector

import (
	"context"
	"fmt"
	"image"

	"github.com/tidwall/gjson"

	"github.com/banshee-data/footfall/internal/fsutil"
)

// ReplayDetector serves detections recorded earlier, one JSON document
// per line keyed by source frame index:
//
//	{"frame": 2, "detections": [{"xyxy": [10, 10, 20, 40], "confidence": 0.8, "class": 0}]}
//
// Frames without a line have no detections. A line with "error" set makes
// Detect fail for that frame.
type ReplayDetector struct {
	frames map[int][]RawDetection
	errs   map[int]string
}

// ParseReplay reads a JSON-lines recording.
func ParseReplay(data []byte) (*ReplayDetector, error) {
	r := &ReplayDetector{
		frames: make(map[int][]RawDetection),
		errs:   make(map[int]string),
	}
	var perr error
	line := 0
	gjson.ForEachLine(string(data), func(doc gjson.Result) bool {
		line++
		if !doc.IsObject() {
			perr = fmt.Errorf("%w: replay line %d is not an object", ErrMalformed, line)
			return false
		}
		frame := doc.Get("frame")
		if frame.Type != gjson.Number || frame.Int() < 1 {
			perr = fmt.Errorf("%w: replay line %d has no valid frame index", ErrMalformed, line)
			return false
		}
		idx := int(frame.Int())
		if msg := doc.Get("error"); msg.Exists() {
			r.errs[idx] = msg.String()
			return true
		}
		dets := doc.Get("detections")
		if !dets.Exists() {
			r.frames[idx] = nil
			return true
		}
		raws, err := parseDetectionArray(dets)
		if err != nil {
			perr = fmt.Errorf("replay line %d: %w", line, err)
			return false
		}
		r.frames[idx] = append(r.frames[idx], raws...)
		return true
	})
	if perr != nil {
		return nil, perr
	}
	return r, nil
}

// LoadReplay reads a recording file through fs.
func LoadReplay(fs fsutil.FileSystem, path string) (*ReplayDetector, error) {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay: %w", err)
	}
	return ParseReplay(data)
}

// Detect returns the recorded detections for frame, filtered by p.
func (r *ReplayDetector) Detect(ctx context.Context, frame int, _ image.Image, p Params) ([]RawDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg, ok := r.errs[frame]; ok {
		return nil, fmt.Errorf("replayed detector error on frame %d: %s", frame, msg)
	}
	raws := r.frames[frame]
	cp := make([]RawDetection, len(raws))
	copy(cp, raws)
	return Filter(cp, p), nil
}

// Frames returns the number of frames with a recorded line.
func (r *ReplayDetector) Frames() int {
	return len(r.frames) + len(r.errs)
}
