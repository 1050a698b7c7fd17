// Package testutil provides shared test fixtures: scripted detector
// recordings and temporary output directories.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Walker is a scripted object moving in a straight line. Its box is
// Size pixels square, centred on the position at each frame.
type Walker struct {
	From, To   int     // first and last source frame (inclusive)
	X, Y       float64 // centre at frame From
	DX, DY     float64 // displacement per source frame
	Size       float64
	Confidence float64
}

// Center returns the walker's box centre at frame n.
func (w Walker) Center(n int) (x, y float64) {
	d := float64(n - w.From)
	return w.X + d*w.DX, w.Y + d*w.DY
}

func (w Walker) visible(n int) bool {
	return n >= w.From && n <= w.To
}

func (w Walker) box(n int) [4]float64 {
	x, y := w.Center(n)
	half := w.Size / 2
	return [4]float64{x - half, y - half, x + half, y + half}
}

// ReplayLines renders walkers as a JSON-lines detector recording for
// frames 1..frames, one line per frame with at least one visible walker.
// Frames listed in failing get an error line instead.
func ReplayLines(frames int, walkers []Walker, failing ...int) string {
	fail := make(map[int]bool, len(failing))
	for _, n := range failing {
		fail[n] = true
	}
	var b strings.Builder
	for n := 1; n <= frames; n++ {
		if fail[n] {
			fmt.Fprintf(&b, "{\"frame\": %d, \"error\": \"scripted failure\"}\n", n)
			continue
		}
		var dets []string
		for _, w := range walkers {
			if !w.visible(n) {
				continue
			}
			bx := w.box(n)
			conf := w.Confidence
			if conf == 0 {
				conf = 0.9
			}
			dets = append(dets, fmt.Sprintf(`{"xyxy": [%g, %g, %g, %g], "confidence": %g, "class": 0}`,
				bx[0], bx[1], bx[2], bx[3], conf))
		}
		if len(dets) == 0 {
			continue
		}
		fmt.Fprintf(&b, "{\"frame\": %d, \"detections\": [%s]}\n", n, strings.Join(dets, ", "))
	}
	return b.String()
}

// WriteFile writes data under a fresh temporary directory and returns the
// file's path.
func WriteFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
