// Package video provides the frame sources feeding the pipeline: a
// directory of still images and a synthetic blank stream.
package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/footfall/internal/fsutil"
)

// ErrUnsupportedSource is returned for video inputs this build cannot read.
var ErrUnsupportedSource = errors.New("unsupported video source")

// Frame is one decoded image with its 1-based position in the stream.
type Frame struct {
	Index int
	Image image.Image
}

// Source yields frames in order. Next returns io.EOF after the last frame.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	// Size reports the frame dimensions, known before the first Next.
	Size() (width, height int)
	Close() error
}

// Open resolves a video setting to a Source:
//   - a directory: its .png/.jpg/.jpeg files in lexical order
//   - "blank:N:WxH": N black frames of W×H pixels
//
// A camera index such as "0" is rejected with ErrUnsupportedSource.
func Open(fs fsutil.FileSystem, src string) (Source, error) {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if strings.HasPrefix(src, "blank:") {
		return parseBlank(src)
	}
	if _, err := strconv.Atoi(src); err == nil {
		return nil, fmt.Errorf("%w: camera %s (capture a frame directory instead)", ErrUnsupportedSource, src)
	}
	info, err := fs.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("open video %q: %w", src, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a frame directory", ErrUnsupportedSource, src)
	}
	return NewImageDirSource(fs, src)
}

// ImageDirSource reads still images from a directory.
type ImageDirSource struct {
	fs     fsutil.FileSystem
	files  []string
	next   int
	width  int
	height int
}

// NewImageDirSource lists dir and decodes the first frame's header to
// learn the frame size.
func NewImageDirSource(fs fsutil.FileSystem, dir string) (*ImageDirSource, error) {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(path.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no images in %s", ErrUnsupportedSource, dir)
	}
	sort.Strings(files)

	f, err := fs.Open(files[0])
	if err != nil {
		return nil, fmt.Errorf("open first frame: %w", err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("decode first frame %s: %w", files[0], err)
	}
	return &ImageDirSource{fs: fs, files: files, width: cfg.Width, height: cfg.Height}, nil
}

// Next decodes the next image.
func (s *ImageDirSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.next >= len(s.files) {
		return Frame{}, io.EOF
	}
	name := s.files[s.next]
	s.next++

	f, err := s.fs.Open(name)
	if err != nil {
		return Frame{}, fmt.Errorf("open frame %s: %w", name, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return Frame{}, fmt.Errorf("decode frame %s: %w", name, err)
	}
	return Frame{Index: s.next, Image: img}, nil
}

// Size returns the dimensions of the first frame.
func (s *ImageDirSource) Size() (int, int) { return s.width, s.height }

// Len returns the number of frames in the directory.
func (s *ImageDirSource) Len() int { return len(s.files) }

// Close is a no-op; files are closed after each frame.
func (s *ImageDirSource) Close() error { return nil }

// BlankSource yields n black frames. Paired with a replay detector it
// drives the pipeline without any image input.
type BlankSource struct {
	n, next       int
	width, height int
}

// NewBlankSource creates a blank stream of n frames.
func NewBlankSource(n, width, height int) *BlankSource {
	return &BlankSource{n: n, width: width, height: height}
}

func parseBlank(src string) (*BlankSource, error) {
	parts := strings.Split(strings.TrimPrefix(src, "blank:"), ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: want blank:N:WxH, got %q", ErrUnsupportedSource, src)
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: bad frame count in %q", ErrUnsupportedSource, src)
	}
	var w, h int
	if _, err := fmt.Sscanf(parts[1], "%dx%d", &w, &h); err != nil || w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: bad size in %q", ErrUnsupportedSource, src)
	}
	return NewBlankSource(n, w, h), nil
}

// Next returns the next blank frame.
func (s *BlankSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.next >= s.n {
		return Frame{}, io.EOF
	}
	s.next++
	return Frame{Index: s.next, Image: image.NewGray(image.Rect(0, 0, s.width, s.height))}, nil
}

// Size returns the configured frame size.
func (s *BlankSource) Size() (int, int) { return s.width, s.height }

// Close is a no-op.
func (s *BlankSource) Close() error { return nil }
