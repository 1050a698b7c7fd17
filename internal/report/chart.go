package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// FrameCount is the track population after one processed frame.
type FrameCount struct {
	Frame      int // source frame index
	Confirmed  int // confirmed tracks alive after the frame
	Tentative  int
	Cumulative int // distinct tracks ever confirmed
}

// WriteCountsHTML renders the per-frame track counts as a standalone
// go-echarts line chart.
func WriteCountsHTML(w io.Writer, counts []FrameCount) error {
	x := make([]int, len(counts))
	confirmed := make([]opts.LineData, len(counts))
	tentative := make([]opts.LineData, len(counts))
	cumulative := make([]opts.LineData, len(counts))
	for i, c := range counts {
		x[i] = c.Frame
		confirmed[i] = opts.LineData{Value: c.Confirmed}
		tentative[i] = opts.LineData{Value: c.Tentative}
		cumulative[i] = opts.LineData{Value: c.Cumulative}
	}

	subtitle := "no frames processed"
	if n := len(counts); n > 0 {
		subtitle = fmt.Sprintf("frames=%d counts=%d", n, counts[n-1].Cumulative)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Footfall track counts", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Track counts per frame", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "tracks"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x).
		AddSeries("confirmed", confirmed, charts.WithLineChartOpts(opts.LineChart{Step: "end"})).
		AddSeries("tentative", tentative, charts.WithLineChartOpts(opts.LineChart{Step: "end"})).
		AddSeries("cumulative", cumulative, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	if err := line.Render(w); err != nil {
		return fmt.Errorf("render counts chart: %w", err)
	}
	return nil
}
