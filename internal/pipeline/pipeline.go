// Package pipeline runs one tracking session: frames are read and sampled,
// detected on a bounded worker pool, and applied to the tracker strictly in
// frame order by a single writer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/footfall/internal/config"
	"github.com/banshee-data/footfall/internal/detector"
	"github.com/banshee-data/footfall/internal/fsutil"
	"github.com/banshee-data/footfall/internal/monitoring"
	"github.com/banshee-data/footfall/internal/report"
	"github.com/banshee-data/footfall/internal/runlog"
	"github.com/banshee-data/footfall/internal/sampling"
	"github.com/banshee-data/footfall/internal/timeutil"
	"github.com/banshee-data/footfall/internal/tracking"
	"github.com/banshee-data/footfall/internal/tracking/association"
	"github.com/banshee-data/footfall/internal/tracking/distance"
	"github.com/banshee-data/footfall/internal/tracking/tracks"
	"github.com/banshee-data/footfall/internal/trajectory"
	"github.com/banshee-data/footfall/internal/version"
	"github.com/banshee-data/footfall/internal/video"
)

// Options wires a Pipeline. Config, Source, Detector and Recorder are
// required; FS and Clock default to the OS and wall clock.
type Options struct {
	Config   *config.TrackingConfig
	Source   video.Source
	Detector detector.Detector
	Recorder runlog.Recorder
	ROI      sampling.ROI
	Device   string // resolved compute device, recorded as a parameter
	FS       fsutil.FileSystem
	Clock    timeutil.Clock
}

// Summary describes a finished run.
type Summary struct {
	FramesRead       int
	FramesProcessed  int
	Records          int
	Tracks           tracks.Counts
	DetectorErrors   int
	FrameErrors      int // frames that could not be read or cropped
	SnapshotFailures int
	Elapsed          time.Duration
}

// Pipeline owns the tracker and trajectory log of one run.
type Pipeline struct {
	cfg      *config.TrackingConfig
	src      video.Source
	det      detector.Detector
	rec      runlog.Recorder
	fs       fsutil.FileSystem
	clock    timeutil.Clock
	device   string
	mode     tracking.Mode
	params   detector.Params
	workers  int
	ctrl     *sampling.Controller
	tracker  *tracks.Tracker
	agg      *trajectory.Aggregator
	runParam config.RunParams

	counts         []report.FrameCount
	processed      int
	detectorErrors int
	frameErrors    int // owned by the reader until process returns
}

// maxConsecutiveFrameErrors ends the run when the source keeps failing.
const maxConsecutiveFrameErrors = 25

// New validates the configuration against the source and builds the
// tracking components. Every configuration error is returned here, before
// any frame is read.
func New(opts Options) (*Pipeline, error) {
	if opts.Config == nil || opts.Source == nil || opts.Detector == nil || opts.Recorder == nil {
		return nil, errors.New("pipeline: config, source, detector and recorder are required")
	}
	cfg := opts.Config
	if opts.FS == nil {
		opts.FS = fsutil.OSFileSystem{}
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}

	mode, err := tracking.ParseMode(cfg.GetTrackPoints())
	if err != nil {
		return nil, err
	}
	dist, err := distance.ByMode(mode)
	if err != nil {
		return nil, err
	}
	strategy, err := association.ParseStrategy(cfg.GetAssignment())
	if err != nil {
		return nil, err
	}
	assoc, err := association.New(dist, cfg.GetDistanceThreshold(), strategy)
	if err != nil {
		return nil, err
	}

	width, height := opts.Source.Size()
	ctrl, err := sampling.NewController(cfg.GetFrameRateSkip(), opts.ROI, width, height)
	if err != nil {
		return nil, err
	}

	// field checks not covered above
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := trajectory.NewSnapshotStore(opts.FS, cfg.SnapshotPath())
	agg, err := trajectory.NewAggregator(store, cfg.GetSaveFrameRate())
	if err != nil {
		return nil, err
	}

	workers := cfg.GetDetectorWorkers()
	if workers < 1 {
		workers = 1
	}

	return &Pipeline{
		cfg:      cfg,
		src:      opts.Source,
		det:      opts.Detector,
		rec:      opts.Recorder,
		fs:       opts.FS,
		clock:    opts.Clock,
		device:   opts.Device,
		mode:     mode,
		params:   detector.ParamsFromConfig(cfg),
		workers:  workers,
		ctrl:     ctrl,
		tracker:  tracks.NewTracker(tracks.ConfigFromTracking(cfg), assoc, opts.Clock),
		agg:      agg,
		runParam: config.NewRunParams(cfg, opts.ROI.Array(), opts.Device),
	}, nil
}

// Tracker exposes the live tracker for inspection.
func (p *Pipeline) Tracker() *tracks.Tracker { return p.tracker }

// Aggregator exposes the trajectory log.
func (p *Pipeline) Aggregator() *trajectory.Aggregator { return p.agg }

type job struct {
	seq     int
	frame   int
	img     image.Image
	readErr error // the frame could not be read; tracks are aged instead
}

type result struct {
	job
	raws []detector.RawDetection
	err  error
}

// Run processes the source until it is exhausted or ctx is cancelled, then
// finalizes the run. Cancellation stops reading; frames already read are
// still detected and applied in order. The final snapshot, metrics and
// artifacts are written in every case.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	start := p.clock.Now()
	monitoring.Opsf("tracking %s: mode=%s roi=%s skip=%d workers=%d",
		p.cfg.GetVideo(), p.mode, p.ctrl.ROI(), p.cfg.GetFrameRateSkip(), p.workers)

	readErr := p.process(ctx)
	if readErr != nil {
		monitoring.Opsf("stopped reading frames: %v", readErr)
	}

	sum, err := p.finalize(start, readErr)
	return sum, errors.Join(readErr, err)
}

// process runs the reader, the detector workers and the in-order writer.
// It returns the first source error; context cancellation is not an error.
func (p *Pipeline) process(ctx context.Context) error {
	jobs := make(chan job, p.workers)
	results := make(chan result, p.workers)
	// in-flight detections complete even after ctx is cancelled
	detCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.Go(func() error {
		defer close(jobs)
		return p.read(ctx, jobs)
	})
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for j := range jobs {
				if j.readErr != nil {
					results <- result{job: j}
					continue
				}
				raws, err := p.det.Detect(detCtx, j.frame, j.img, p.params)
				results <- result{job: j, raws: raws, err: err}
			}
			return nil
		})
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Wait()
		close(results)
	}()

	pending := make(map[int]result)
	next := 0
	for res := range results {
		pending[res.seq] = res
		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			p.apply(r)
			next++
		}
	}
	return <-waitErr
}

// read feeds forwarded frames to the workers. A frame that fails to
// decode or crop is logged and counted; if it was due for detection it is
// still queued so the writer ages tracks for it. Only a run of
// maxConsecutiveFrameErrors failures stops reading.
func (p *Pipeline) read(ctx context.Context, jobs chan<- job) error {
	seq := 0
	failing := 0
	for {
		if ctx.Err() != nil {
			monitoring.Opsf("cancelled after %d frame(s)", seq)
			return nil
		}
		f, err := p.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}

		var (
			n       int
			due     bool
			cropped *image.RGBA
		)
		if err != nil {
			n, due = p.ctrl.Drop()
		} else {
			n, cropped, due, err = p.ctrl.Admit(f.Image)
			if err != nil {
				// Admit only crops forwarded frames
				due = true
			}
		}

		if err != nil {
			p.frameErrors++
			failing++
			monitoring.Opsf("frame %d unreadable: %v", n, err)
			if failing >= maxConsecutiveFrameErrors {
				return fmt.Errorf("read frame: %d consecutive failures, last: %w", failing, err)
			}
			if due {
				jobs <- job{seq: seq, frame: n, readErr: err}
				seq++
			}
			continue
		}
		failing = 0

		if !due {
			monitoring.Tracef("frame %d skipped", n)
			continue
		}
		jobs <- job{seq: seq, frame: n, img: cropped}
		seq++
	}
}

// apply is the single writer: it is only called from process, in
// sequence order.
func (p *Pipeline) apply(r result) {
	var fr tracks.FrameResult
	switch dets, err := p.detections(r); {
	case r.readErr != nil:
		monitoring.Diagf("frame %d: ageing tracks for unreadable frame", r.frame)
		fr = p.tracker.AdvanceMisses()
	case err != nil:
		p.detectorErrors++
		monitoring.Opsf("frame %d: %v; ageing tracks", r.frame, err)
		fr = p.tracker.AdvanceMisses()
	default:
		fr = p.tracker.Update(dets)
	}
	p.processed++
	p.agg.Observe(fr.Emitted)

	c := p.tracker.Counts()
	p.counts = append(p.counts, report.FrameCount{
		Frame:      r.frame,
		Confirmed:  c.Confirmed,
		Tentative:  c.Tentative,
		Cumulative: c.EverConfirmed,
	})
	monitoring.Tracef("frame %d: matched=%d created=%d promoted=%d removed=%d live=%d",
		r.frame, len(fr.Association.Matches), len(fr.Created), len(fr.Promoted), len(fr.Removed), c.Live)

	// a failed periodic snapshot is retried at the next interval
	switch wrote, err := p.agg.FrameDone(); {
	case err != nil:
		monitoring.Tracef("frame %d: snapshot failed, previous snapshot kept: %v", r.frame, err)
	case wrote:
		monitoring.Tracef("frame %d: snapshot written", r.frame)
	}
}

func (p *Pipeline) detections(r result) ([]tracking.Detection, error) {
	if r.readErr != nil {
		return nil, nil
	}
	if r.err != nil {
		return nil, fmt.Errorf("detector: %w", r.err)
	}
	return detector.ToDetections(r.raws, p.mode)
}

// finalize writes the final snapshot and reports, then hands parameters,
// metrics and the output directory to the recorder. Every step is
// attempted; failures are joined.
func (p *Pipeline) finalize(start time.Time, runErr error) (Summary, error) {
	var errs []error
	if err := p.agg.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("final snapshot: %w", err))
	}

	outDir := p.cfg.GetOutputDir()
	if _, err := report.WriteAll(p.fs, outDir, p.agg.Records(), p.counts); err != nil {
		monitoring.Opsf("reports: %v", err)
		errs = append(errs, fmt.Errorf("reports: %w", err))
	}

	seen, _ := p.ctrl.Counts()
	stats := p.agg.Stats()
	sum := Summary{
		FramesRead:       seen,
		FramesProcessed:  p.processed,
		Records:          stats.Records,
		Tracks:           p.tracker.Counts(),
		DetectorErrors:   p.detectorErrors,
		FrameErrors:      p.frameErrors,
		SnapshotFailures: stats.SnapshotFailures,
		Elapsed:          p.clock.Since(start),
	}

	for _, kv := range p.runParam.Pairs() {
		if err := p.rec.LogParam(kv.Key, kv.Value); err != nil {
			errs = append(errs, err)
		}
	}
	extra := []config.Param{
		{Key: "total_time", Value: strconv.FormatFloat(sum.Elapsed.Seconds(), 'f', 3, 64)},
		{Key: "version", Value: version.String()},
	}
	for _, kv := range extra {
		if err := p.rec.LogParam(kv.Key, kv.Value); err != nil {
			errs = append(errs, err)
		}
	}

	metrics := []struct {
		key   string
		value int
	}{
		{"counts", p.agg.DistinctTracks()},
		{"frames_read", sum.FramesRead},
		{"frames_processed", sum.FramesProcessed},
		{"trajectory_rows", sum.Records},
		{"detector_errors", sum.DetectorErrors},
		{"frame_errors", sum.FrameErrors},
		{"snapshot_failures", sum.SnapshotFailures},
	}
	for _, m := range metrics {
		if err := p.rec.LogMetric(m.key, float64(m.value)); err != nil {
			errs = append(errs, err)
		}
	}

	if err := p.rec.LogArtifacts(outDir); err != nil {
		errs = append(errs, fmt.Errorf("artifacts: %w", err))
	}

	err := errors.Join(errs...)
	if cerr := p.rec.Close(errors.Join(runErr, err)); cerr != nil {
		err = errors.Join(err, cerr)
	}

	monitoring.Opsf("run complete: frames=%d processed=%d counts=%d rows=%d elapsed=%s",
		sum.FramesRead, sum.FramesProcessed, p.agg.DistinctTracks(), sum.Records, sum.Elapsed)
	return sum, err
}
