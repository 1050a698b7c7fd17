package report

import (
	"errors"
	"io"
	"path/filepath"

	"github.com/banshee-data/footfall/internal/fsutil"
	"github.com/banshee-data/footfall/internal/trajectory"
)

const (
	TrajectoryPlotName = "trajectories.png"
	CountsChartName    = "counts.html"
)

// WriteAll writes the trajectory plot and the counts chart into dir and
// returns the paths written. Both are attempted; errors are joined.
func WriteAll(fs fsutil.FileSystem, dir string, records []trajectory.Record, counts []FrameCount) ([]string, error) {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	var (
		written []string
		errs    []error
	)
	plotPath := filepath.Join(dir, TrajectoryPlotName)
	if err := fsutil.WriteFileAtomic(fs, plotPath, func(w io.Writer) error {
		return WriteTrajectoryPNG(w, records)
	}); err != nil {
		errs = append(errs, err)
	} else {
		written = append(written, plotPath)
	}

	chartPath := filepath.Join(dir, CountsChartName)
	if err := fsutil.WriteFileAtomic(fs, chartPath, func(w io.Writer) error {
		return WriteCountsHTML(w, counts)
	}); err != nil {
		errs = append(errs, err)
	} else {
		written = append(written, chartPath)
	}
	return written, errors.Join(errs...)
}
