package sampling

import (
	"errors"
	"fmt"
	"image"
	"sync"
)

// ErrInvalidFrameSkip is returned for a frame-skip factor below 1.
var ErrInvalidFrameSkip = errors.New("frame skip must be at least 1")

// Sampler forwards every k-th frame. Frames are numbered from 1; frame n
// is forwarded iff n mod k == 0.
type Sampler struct {
	k int

	mu        sync.Mutex
	seen      int
	forwarded int
}

// NewSampler creates a Sampler with skip factor k.
func NewSampler(k int) (*Sampler, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidFrameSkip, k)
	}
	return &Sampler{k: k}, nil
}

// Next counts one incoming frame and reports its number and whether it
// should be processed.
func (s *Sampler) Next() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen++
	forward := s.seen%s.k == 0
	if forward {
		s.forwarded++
	}
	return s.seen, forward
}

// Counts returns frames seen and frames forwarded so far.
func (s *Sampler) Counts() (seen, forwarded int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen, s.forwarded
}

// Controller combines the sampler with a fixed ROI validated against the
// frame size before the first frame is processed.
type Controller struct {
	sampler *Sampler
	roi     ROI
}

// NewController validates k and roi against a width×height frame.
func NewController(k int, roi ROI, width, height int) (*Controller, error) {
	s, err := NewSampler(k)
	if err != nil {
		return nil, err
	}
	if err := roi.Validate(width, height); err != nil {
		return nil, err
	}
	return &Controller{sampler: s, roi: roi}, nil
}

// ROI returns the configured crop rectangle.
func (c *Controller) ROI() ROI { return c.roi }

// Admit counts one frame. For forwarded frames it returns the cropped
// image; skipped frames return a nil image and ok=false.
func (c *Controller) Admit(img image.Image) (n int, cropped *image.RGBA, ok bool, err error) {
	n, forward := c.sampler.Next()
	if !forward {
		return n, nil, false, nil
	}
	cropped, err = Crop(img, c.roi)
	if err != nil {
		return n, nil, false, fmt.Errorf("frame %d: %w", n, err)
	}
	return n, cropped, true, nil
}

// Drop counts a frame that could not be read. It reports the frame's
// number and whether it would have been forwarded, so the caller can age
// tracks for it.
func (c *Controller) Drop() (n int, forwarded bool) {
	return c.sampler.Next()
}

// Counts returns frames seen and frames forwarded so far.
func (c *Controller) Counts() (seen, forwarded int) {
	return c.sampler.Counts()
}
