package config

import (
	"fmt"
	"strconv"
)

// Param is one named run parameter as it is recorded in the run log.
type Param struct {
	Key   string
	Value string
}

// RunParams is the immutable set of parameters describing a tracking run.
// It is built once at startup and handed to the run recorder; nothing
// mutates it afterwards.
type RunParams struct {
	ROI               [4]int
	DetectorPath      string
	Device            string
	ConfThreshold     float64
	IoUThreshold      float64
	InitDelay         int
	Video             string
	FrameRateSkip     int
	TrackPoints       string
	DistanceThreshold float64
	Assignment        string
}

// NewRunParams snapshots cfg together with the resolved ROI and device.
func NewRunParams(cfg *TrackingConfig, roi [4]int, device string) RunParams {
	return RunParams{
		ROI:               roi,
		DetectorPath:      cfg.GetDetectorPath(),
		Device:            device,
		ConfThreshold:     cfg.GetConfThreshold(),
		IoUThreshold:      cfg.GetIoUThreshold(),
		InitDelay:         cfg.GetInitDelay(),
		Video:             cfg.GetVideo(),
		FrameRateSkip:     cfg.GetFrameRateSkip(),
		TrackPoints:       cfg.GetTrackPoints(),
		DistanceThreshold: cfg.GetDistanceThreshold(),
		Assignment:        cfg.GetAssignment(),
	}
}

// Pairs returns the parameters in a fixed order.
func (p RunParams) Pairs() []Param {
	return []Param{
		{"ROI_dim", fmt.Sprintf("[%d, %d, %d, %d]", p.ROI[0], p.ROI[1], p.ROI[2], p.ROI[3])},
		{"detector_path", p.DetectorPath},
		{"device", p.Device},
		{"conf_threshold", formatFloat(p.ConfThreshold)},
		{"iou_threshold", formatFloat(p.IoUThreshold)},
		{"initialization_delay", strconv.Itoa(p.InitDelay)},
		{"video", p.Video},
		{"frame_rate_skip", strconv.Itoa(p.FrameRateSkip)},
		{"track_points", p.TrackPoints},
		{"distance_threshold", formatFloat(p.DistanceThreshold)},
		{"assignment", p.Assignment},
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
