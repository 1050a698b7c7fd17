// Package report renders end-of-run artifacts from the trajectory log.
package report

import (
	"fmt"
	"image/color"
	"io"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/footfall/internal/trajectory"
)

// maxLegendTracks limits legend entries on busy plots.
const maxLegendTracks = 12

// groupByTrack splits records into per-track polylines ordered by track id.
func groupByTrack(records []trajectory.Record) ([]uint64, map[uint64]plotter.XYs) {
	paths := make(map[uint64]plotter.XYs)
	for _, r := range records {
		paths[r.TrackID] = append(paths[r.TrackID], plotter.XY{X: r.X, Y: r.Y})
	}
	ids := make([]uint64, 0, len(paths))
	for id := range paths {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, paths
}

// TrajectoryPlot draws one line per confirmed track in crop pixel
// coordinates, y pointing down as in the image.
func TrajectoryPlot(records []trajectory.Record) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Confirmed trajectories"
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px)"
	p.Y.Scale = plot.InvertedScale{Normalizer: plot.LinearScale{}}
	p.Add(plotter.NewGrid())

	ids, paths := groupByTrack(records)
	colors := generateColors(len(ids))
	for i, id := range ids {
		line, points, err := plotter.NewLinePoints(paths[id])
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", id, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		points.Color = colors[i]
		points.Radius = vg.Points(1.5)
		p.Add(line, points)
		if len(ids) <= maxLegendTracks {
			p.Legend.Add(fmt.Sprintf("track %d", id), line)
		}
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// WriteTrajectoryPNG renders the trajectory plot as a PNG to w.
func WriteTrajectoryPNG(w io.Writer, records []trajectory.Record) error {
	p, err := TrajectoryPlot(records)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(10*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render trajectory plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// generateColors spreads n hues evenly around the colour wheel.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	rf := hueToRGB(p, q, h+1.0/3.0)
	gf := hueToRGB(p, q, h)
	bf := hueToRGB(p, q, h-1.0/3.0)
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
