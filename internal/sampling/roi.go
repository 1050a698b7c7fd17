// Package sampling decides which frames reach the detector and which part
// of each frame is processed.
package sampling

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	xdraw "golang.org/x/image/draw"

	"github.com/banshee-data/footfall/internal/fsutil"
)

// ErrInvalidROI is returned for an empty, inverted or out-of-frame ROI.
var ErrInvalidROI = errors.New("invalid region of interest")

// ROI is a crop rectangle in frame pixel coordinates. The crop covers
// x1 <= x < x2 and y1 <= y < y2.
type ROI struct {
	X1, Y1, X2, Y2 int
}

// Rect returns the ROI as an image.Rectangle relative to the frame origin.
func (r ROI) Rect() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// Array returns the ROI as (x1, y1, x2, y2).
func (r ROI) Array() [4]int {
	return [4]int{r.X1, r.Y1, r.X2, r.Y2}
}

func (r ROI) String() string {
	return fmt.Sprintf("[%d, %d, %d, %d]", r.X1, r.Y1, r.X2, r.Y2)
}

// Validate checks that the ROI is non-empty and lies inside a frame of the
// given size.
func (r ROI) Validate(width, height int) error {
	if r.X1 >= r.X2 || r.Y1 >= r.Y2 {
		return fmt.Errorf("%w: %s needs x1<x2 and y1<y2", ErrInvalidROI, r)
	}
	if r.X1 < 0 || r.Y1 < 0 || r.X2 > width || r.Y2 > height {
		return fmt.Errorf("%w: %s outside %dx%d frame", ErrInvalidROI, r, width, height)
	}
	return nil
}

// ParseROI parses "x1,y1,x2,y2". Whitespace and surrounding brackets are
// ignored.
func ParseROI(s string) (ROI, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]()")
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return ROI{}, fmt.Errorf("%w: want x1,y1,x2,y2, got %q", ErrInvalidROI, s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return ROI{}, fmt.Errorf("%w: coordinate %d: %v", ErrInvalidROI, i, err)
		}
		v[i] = n
	}
	return ROI{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}, nil
}

// ParseCalibration reads the ROI from a calibration document. The
// calibration tool records every clicked point in "g_points"; the last two
// are the ROI corners. Explicit "x1", "y1", "x2", "y2" keys are accepted
// as well.
func ParseCalibration(data []byte) (ROI, error) {
	if !gjson.ValidBytes(data) {
		return ROI{}, fmt.Errorf("%w: calibration is not valid JSON", ErrInvalidROI)
	}
	doc := gjson.ParseBytes(data)

	if points := doc.Get("g_points"); points.Exists() {
		pts := points.Array()
		if len(pts) < 2 {
			return ROI{}, fmt.Errorf("%w: calibration has %d points, need 2", ErrInvalidROI, len(pts))
		}
		a, b := pts[len(pts)-2], pts[len(pts)-1]
		xy := func(p gjson.Result) (int, int, error) {
			if arr := p.Array(); p.IsArray() && len(arr) == 2 {
				return int(arr[0].Float()), int(arr[1].Float()), nil
			}
			if p.IsObject() && p.Get("x").Exists() && p.Get("y").Exists() {
				return int(p.Get("x").Float()), int(p.Get("y").Float()), nil
			}
			return 0, 0, fmt.Errorf("%w: malformed point %s", ErrInvalidROI, p.Raw)
		}
		x1, y1, err := xy(a)
		if err != nil {
			return ROI{}, err
		}
		x2, y2, err := xy(b)
		if err != nil {
			return ROI{}, err
		}
		return ROI{X1: x1, Y1: y1, X2: x2, Y2: y2}, nil
	}

	keys := gjson.GetManyBytes(data, "x1", "y1", "x2", "y2")
	var v [4]int
	for i, k := range keys {
		if !k.Exists() {
			return ROI{}, fmt.Errorf("%w: calibration has neither g_points nor x1,y1,x2,y2", ErrInvalidROI)
		}
		v[i] = int(k.Int())
	}
	return ROI{X1: v[0], Y1: v[1], X2: v[2], Y2: v[3]}, nil
}

// LoadCalibration reads a calibration file through fs.
func LoadCalibration(fs fsutil.FileSystem, path string) (ROI, error) {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	data, err := fs.ReadFile(path)
	if err != nil {
		return ROI{}, fmt.Errorf("read calibration: %w", err)
	}
	return ParseCalibration(data)
}

// Crop copies the ROI of img into a new image whose origin is (0, 0), so
// detections come back in ROI coordinates. ROI coordinates are relative to
// img.Bounds().Min.
func Crop(img image.Image, roi ROI) (*image.RGBA, error) {
	b := img.Bounds()
	if err := roi.Validate(b.Dx(), b.Dy()); err != nil {
		return nil, err
	}
	src := roi.Rect().Add(b.Min)
	dst := image.NewRGBA(image.Rect(0, 0, src.Dx(), src.Dy()))
	xdraw.Copy(dst, image.Point{}, img, src, xdraw.Src, nil)
	return dst, nil
}
