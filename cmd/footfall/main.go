// Command footfall tracks pedestrians through a video's frames and writes
// their confirmed trajectories to outputs/output_data.csv.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/banshee-data/footfall/internal/config"
	"github.com/banshee-data/footfall/internal/db"
	"github.com/banshee-data/footfall/internal/detector"
	"github.com/banshee-data/footfall/internal/fsutil"
	"github.com/banshee-data/footfall/internal/monitoring"
	"github.com/banshee-data/footfall/internal/pipeline"
	"github.com/banshee-data/footfall/internal/runlog"
	"github.com/banshee-data/footfall/internal/sampling"
	"github.com/banshee-data/footfall/internal/version"
	"github.com/banshee-data/footfall/internal/video"
)

const healthTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, detector.DeviceProber{})
	stop()
	os.Exit(code)
}

// run executes one tracking session and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, prober detector.DeviceProber) int {
	f := newFlags(stderr)
	if err := f.parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if f.showVersion {
		fmt.Fprintln(stdout, "footfall", version.String())
		return 0
	}

	var trace io.Writer
	if f.trace {
		trace = stderr
	}
	monitoring.SetLogWriters(stderr, stderr, trace)
	defer monitoring.SetLogWriters(os.Stderr, os.Stderr, nil)

	sess, err := setup(f, prober)
	if err != nil {
		monitoring.Opsf("configuration error: %v", err)
		return 1
	}
	defer sess.close()

	sum, err := sess.pipeline.Run(ctx)
	fmt.Fprintf(stdout, "frames read: %d\nframes processed: %d\nframe errors: %d\ncounts: %d\ntrajectory rows: %d\nsnapshot: %s\n",
		sum.FramesRead, sum.FramesProcessed, sum.FrameErrors, sum.Tracks.EverConfirmed, sum.Records, sess.cfg.SnapshotPath())
	if err != nil {
		monitoring.Opsf("run failed: %v", err)
		return 1
	}
	return 0
}

type session struct {
	cfg      *config.TrackingConfig
	pipeline *pipeline.Pipeline
	source   video.Source
	store    *db.DB
}

func (s *session) close() {
	if s.source != nil {
		s.source.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
}

// setup resolves every configuration input and fails before any frame is
// read.
func setup(f *cliFlags, prober detector.DeviceProber) (_ *session, err error) {
	sess := &session{}
	defer func() {
		if err != nil {
			sess.close()
		}
	}()

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	if err := f.apply(cfg); err != nil {
		return nil, err
	}
	sess.cfg = cfg

	device, err := prober.Resolve(cfg.GetDevice())
	if err != nil {
		return nil, err
	}

	src, err := video.Open(nil, cfg.GetVideo())
	if err != nil {
		return nil, err
	}
	sess.source = src

	roi, err := resolveROI(f, src)
	if err != nil {
		return nil, err
	}

	det, err := openDetector(f)
	if err != nil {
		return nil, err
	}

	var rec runlog.Recorder
	if f.dbPath != "" {
		store, err := db.OpenDB(f.dbPath)
		if err != nil {
			return nil, fmt.Errorf("run registry: %w", err)
		}
		sess.store = store
		archiveDir := filepath.Join(filepath.Dir(f.dbPath), "artifacts")
		sqlRec, err := runlog.NewSQLiteRecorder(store, "footfall", archiveDir, nil, nil)
		if err != nil {
			return nil, err
		}
		monitoring.Opsf("run %s registered in %s", sqlRec.RunID(), f.dbPath)
		rec = sqlRec
	} else {
		rec = runlog.NewLogRecorder(nil)
	}

	p, err := pipeline.New(pipeline.Options{
		Config:   cfg,
		Source:   src,
		Detector: det,
		Recorder: rec,
		ROI:      roi,
		Device:   device,
	})
	if err != nil {
		if cerr := rec.Close(err); cerr != nil {
			monitoring.Logf("close run: %v", cerr)
		}
		return nil, err
	}
	sess.pipeline = p
	return sess, nil
}

// loadConfig reads path, or the defaults file when path is empty and the
// file exists, or falls back to the built-in defaults.
func loadConfig(path string) (*config.TrackingConfig, error) {
	if path != "" {
		return config.LoadTrackingConfig(path)
	}
	if (fsutil.OSFileSystem{}).Exists(config.DefaultConfigPath) {
		return config.LoadTrackingConfig(config.DefaultConfigPath)
	}
	return config.DefaultTrackingConfig(), nil
}

func resolveROI(f *cliFlags, src video.Source) (sampling.ROI, error) {
	switch {
	case f.roi != "":
		return sampling.ParseROI(f.roi)
	case f.roiFile != "":
		return sampling.LoadCalibration(nil, f.roiFile)
	}
	w, h := src.Size()
	monitoring.Diagf("no ROI given, using the whole %dx%d frame", w, h)
	return sampling.ROI{X1: 0, Y1: 0, X2: w, Y2: h}, nil
}

func openDetector(f *cliFlags) (detector.Detector, error) {
	switch {
	case f.detections != "" && f.detectorURL != "":
		return nil, errors.New("use either -detections or -detector-url, not both")
	case f.detections != "":
		return detector.LoadReplay(nil, f.detections)
	case f.detectorURL != "":
		d := detector.NewHTTPDetector(f.detectorURL, nil)
		ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
		defer cancel()
		if err := d.CheckHealth(ctx); err != nil {
			return nil, fmt.Errorf("detector at %s: %w", f.detectorURL, err)
		}
		return d, nil
	}
	return nil, errors.New("a detector is required: -detections or -detector-url")
}
