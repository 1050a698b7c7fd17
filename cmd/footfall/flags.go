package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/footfall/internal/config"
)

// cliFlags holds the command line. Tracking settings only override the
// config file when given explicitly.
type cliFlags struct {
	fs *flag.FlagSet

	configPath  string
	roi         string
	roiFile     string
	detections  string
	detectorURL string
	dbPath      string
	trace       bool
	showVersion bool

	detectorPath      string
	imgSize           int
	confThres         float64
	iouThres          float64
	classes           string
	device            string
	workers           int
	trackPoints       string
	distanceThreshold float64
	initDelay         int
	maxAge            int
	assignment        string
	video             string
	frameRateSkip     int
	saveFrameRate     int
	outDir            string
}

func newFlags(output io.Writer) *cliFlags {
	f := &cliFlags{fs: flag.NewFlagSet("footfall", flag.ContinueOnError)}
	f.fs.SetOutput(output)
	d := config.EmptyTrackingConfig()

	f.fs.StringVar(&f.configPath, "config", "", "Tracking config JSON (default "+config.DefaultConfigPath+" when present)")
	f.fs.StringVar(&f.roi, "roi", "", "Region of interest as x1,y1,x2,y2 (default whole frame)")
	f.fs.StringVar(&f.roiFile, "roi-file", "", "Calibration JSON with g_points or x1..y2")
	f.fs.StringVar(&f.detections, "detections", "", "Replay detections from a JSON-lines recording")
	f.fs.StringVar(&f.detectorURL, "detector-url", "", "Inference service base URL")
	f.fs.StringVar(&f.dbPath, "db", "", "SQLite run registry (default: log the run only)")
	f.fs.BoolVar(&f.trace, "trace", false, "Log every frame")
	f.fs.BoolVar(&f.showVersion, "version", false, "Print version and exit")

	f.fs.StringVar(&f.detectorPath, "detector-path", d.GetDetectorPath(), "Detector model path (recorded as a run parameter)")
	f.fs.IntVar(&f.imgSize, "img-size", d.GetImageSize(), "Detector input size")
	f.fs.Float64Var(&f.confThres, "conf-thres", d.GetConfThreshold(), "Detection confidence threshold")
	f.fs.Float64Var(&f.iouThres, "iou-thres", d.GetIoUThreshold(), "Detector NMS IoU threshold")
	f.fs.StringVar(&f.classes, "classes", "", "Comma-separated class ids to keep (default all)")
	f.fs.StringVar(&f.device, "device", d.GetDevice(), "cpu, cuda or cuda:N (default auto)")
	f.fs.IntVar(&f.workers, "workers", d.GetDetectorWorkers(), "Concurrent detector calls")
	f.fs.StringVar(&f.trackPoints, "track-points", d.GetTrackPoints(), "Track representation: centroid or bbox")
	f.fs.Float64Var(&f.distanceThreshold, "distance-threshold", 0, "Association threshold (default by mode: 30 centroid, 3.33 bbox)")
	f.fs.IntVar(&f.initDelay, "init-delay", d.GetInitDelay(), "Matches before a track is confirmed")
	f.fs.IntVar(&f.maxAge, "max-age", d.GetMaxAge(), "Misses a confirmed track survives")
	f.fs.StringVar(&f.assignment, "assignment", d.GetAssignment(), "Association strategy: greedy or optimal")
	f.fs.StringVar(&f.video, "video", d.GetVideo(), "Frame directory or blank:N:WxH")
	f.fs.IntVar(&f.frameRateSkip, "frame-rate-skip", d.GetFrameRateSkip(), "Process every k-th frame")
	f.fs.IntVar(&f.saveFrameRate, "save-frame-rate", d.GetSaveFrameRate(), "Snapshot every n processed frames")
	f.fs.StringVar(&f.outDir, "out", d.GetOutputDir(), "Output directory")
	return f
}

func (f *cliFlags) parse(args []string) error {
	return f.fs.Parse(args)
}

// apply copies explicitly set tracking flags onto cfg.
func (f *cliFlags) apply(cfg *config.TrackingConfig) error {
	var err error
	f.fs.Visit(func(fl *flag.Flag) {
		if err != nil {
			return
		}
		switch fl.Name {
		case "detector-path":
			cfg.DetectorPath = &f.detectorPath
		case "img-size":
			cfg.ImageSize = &f.imgSize
		case "conf-thres":
			cfg.ConfThreshold = &f.confThres
		case "iou-thres":
			cfg.IoUThreshold = &f.iouThres
		case "classes":
			cfg.Classes, err = parseCSVIntSlice(f.classes)
		case "device":
			cfg.Device = &f.device
		case "workers":
			cfg.DetectorWorkers = &f.workers
		case "track-points":
			cfg.TrackPoints = &f.trackPoints
		case "distance-threshold":
			cfg.DistanceThreshold = &f.distanceThreshold
		case "init-delay":
			cfg.InitDelay = &f.initDelay
		case "max-age":
			cfg.MaxAge = &f.maxAge
		case "assignment":
			cfg.Assignment = &f.assignment
		case "video":
			cfg.Video = &f.video
		case "frame-rate-skip":
			cfg.FrameRateSkip = &f.frameRateSkip
		case "save-frame-rate":
			cfg.SaveFrameRate = &f.saveFrameRate
		case "out":
			cfg.OutputDir = &f.outDir
		}
	})
	if err != nil {
		return err
	}
	return cfg.Validate()
}

// parseCSVIntSlice parses a comma-separated list of ints
func parseCSVIntSlice(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid int '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
