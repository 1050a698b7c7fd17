package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultConfigPath is the path to the canonical tracking defaults file.
const DefaultConfigPath = "config/tracking.defaults.json"

// Reference thresholds for the two representation modes.
const (
	DefaultCentroidDistanceThreshold = 30.0
	DefaultBBoxDistanceThreshold     = 3.33
)

// TrackingConfig represents the root configuration for a tracking run.
// Every field is optional; the Get* methods supply defaults for fields
// missing from the JSON, so partial configs are safe.
type TrackingConfig struct {
	// Detector params
	DetectorPath    *string  `json:"detector_path,omitempty"`
	ImageSize       *int     `json:"img_size,omitempty"`
	ConfThreshold   *float64 `json:"conf_thres,omitempty"`
	IoUThreshold    *float64 `json:"iou_thresh,omitempty"`
	Classes         []int    `json:"classes,omitempty"`
	Device          *string  `json:"device,omitempty"` // "", "cpu", "cuda", "cuda:N"
	DetectorWorkers *int     `json:"detector_workers,omitempty"`

	// Tracker params
	TrackPoints        *string  `json:"track_points,omitempty"` // "centroid" or "bbox"
	DistanceThreshold  *float64 `json:"distance_threshold,omitempty"`
	InitDelay          *int     `json:"init_delay,omitempty"`
	MaxAge             *int     `json:"max_age,omitempty"`
	MaxMissesTentative *int     `json:"max_misses_tentative,omitempty"`
	StrictTentative    *bool    `json:"strict_tentative,omitempty"`
	Assignment         *string  `json:"assignment,omitempty"` // "greedy" or "optimal"

	// Source and output params
	Video         *string `json:"video,omitempty"`
	FrameRateSkip *int    `json:"frame_rate_skip,omitempty"`
	SaveFrameRate *int    `json:"save_frame_rate,omitempty"`
	OutputDir     *string `json:"output_dir,omitempty"`
	SnapshotName  *string `json:"snapshot_name,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTrackingConfig returns a TrackingConfig with all fields set to nil.
func EmptyTrackingConfig() *TrackingConfig {
	return &TrackingConfig{}
}

// DefaultTrackingConfig returns a TrackingConfig with every field populated
// from the built-in defaults.
func DefaultTrackingConfig() *TrackingConfig {
	empty := EmptyTrackingConfig()
	return &TrackingConfig{
		DetectorPath:       ptrString(empty.GetDetectorPath()),
		ImageSize:          ptrInt(empty.GetImageSize()),
		ConfThreshold:      ptrFloat64(empty.GetConfThreshold()),
		IoUThreshold:       ptrFloat64(empty.GetIoUThreshold()),
		Device:             ptrString(empty.GetDevice()),
		DetectorWorkers:    ptrInt(empty.GetDetectorWorkers()),
		TrackPoints:        ptrString(empty.GetTrackPoints()),
		InitDelay:          ptrInt(empty.GetInitDelay()),
		MaxAge:             ptrInt(empty.GetMaxAge()),
		MaxMissesTentative: ptrInt(empty.GetMaxMissesTentative()),
		StrictTentative:    ptrBool(empty.GetStrictTentative()),
		Assignment:         ptrString(empty.GetAssignment()),
		Video:              ptrString(empty.GetVideo()),
		FrameRateSkip:      ptrInt(empty.GetFrameRateSkip()),
		SaveFrameRate:      ptrInt(empty.GetSaveFrameRate()),
		OutputDir:          ptrString(empty.GetOutputDir()),
		SnapshotName:       ptrString(empty.GetSnapshotName()),
	}
}

// LoadTrackingConfig loads a TrackingConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadTrackingConfig(path string) (*TrackingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTrackingConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TrackingConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/tracking/tracks/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTrackingConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TrackingConfig) Validate() error {
	if c.ImageSize != nil && *c.ImageSize <= 0 {
		return fmt.Errorf("img_size must be positive, got %d", *c.ImageSize)
	}
	if c.ConfThreshold != nil && (*c.ConfThreshold < 0 || *c.ConfThreshold > 1) {
		return fmt.Errorf("conf_thres must be between 0 and 1, got %f", *c.ConfThreshold)
	}
	if c.IoUThreshold != nil && (*c.IoUThreshold < 0 || *c.IoUThreshold > 1) {
		return fmt.Errorf("iou_thresh must be between 0 and 1, got %f", *c.IoUThreshold)
	}
	for _, class := range c.Classes {
		if class < 0 {
			return fmt.Errorf("classes must be non-negative, got %d", class)
		}
	}
	if c.Device != nil {
		if _, err := NormalizeDevice(*c.Device); err != nil {
			return err
		}
	}
	if c.DetectorWorkers != nil && *c.DetectorWorkers < 1 {
		return fmt.Errorf("detector_workers must be at least 1, got %d", *c.DetectorWorkers)
	}
	if c.TrackPoints != nil && *c.TrackPoints != "centroid" && *c.TrackPoints != "bbox" {
		return fmt.Errorf("track_points must be 'centroid' or 'bbox', got %q", *c.TrackPoints)
	}
	if c.DistanceThreshold != nil && *c.DistanceThreshold <= 0 {
		return fmt.Errorf("distance_threshold must be positive, got %f", *c.DistanceThreshold)
	}
	if c.InitDelay != nil && *c.InitDelay < 0 {
		return fmt.Errorf("init_delay must be non-negative, got %d", *c.InitDelay)
	}
	if c.MaxAge != nil && *c.MaxAge < 0 {
		return fmt.Errorf("max_age must be non-negative, got %d", *c.MaxAge)
	}
	if c.MaxMissesTentative != nil && *c.MaxMissesTentative < 0 {
		return fmt.Errorf("max_misses_tentative must be non-negative, got %d", *c.MaxMissesTentative)
	}
	if c.Assignment != nil && *c.Assignment != "greedy" && *c.Assignment != "optimal" {
		return fmt.Errorf("assignment must be 'greedy' or 'optimal', got %q", *c.Assignment)
	}
	if c.FrameRateSkip != nil && *c.FrameRateSkip < 1 {
		return fmt.Errorf("frame_rate_skip must be at least 1, got %d", *c.FrameRateSkip)
	}
	if c.SaveFrameRate != nil && *c.SaveFrameRate < 1 {
		return fmt.Errorf("save_frame_rate must be at least 1, got %d", *c.SaveFrameRate)
	}
	if c.SnapshotName != nil && filepath.Base(*c.SnapshotName) != *c.SnapshotName {
		return fmt.Errorf("snapshot_name must be a bare file name, got %q", *c.SnapshotName)
	}
	return nil
}

// NormalizeDevice lower-cases and checks a compute device string.
// The empty string means "pick automatically".
func NormalizeDevice(device string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(device))
	switch {
	case d == "", d == "cpu", d == "cuda":
		return d, nil
	case strings.HasPrefix(d, "cuda:"):
		if n, err := strconv.Atoi(strings.TrimPrefix(d, "cuda:")); err == nil && n >= 0 {
			return d, nil
		}
	}
	return "", fmt.Errorf("device must be 'cpu', 'cuda' or 'cuda:N', got %q", device)
}

// GetDetectorPath returns the detector_path value or the default.
func (c *TrackingConfig) GetDetectorPath() string {
	if c.DetectorPath == nil {
		return "yolov5m6.pt"
	}
	return *c.DetectorPath
}

// GetImageSize returns the img_size value or the default.
func (c *TrackingConfig) GetImageSize() int {
	if c.ImageSize == nil {
		return 720
	}
	return *c.ImageSize
}

// GetConfThreshold returns the conf_thres value or the default.
func (c *TrackingConfig) GetConfThreshold() float64 {
	if c.ConfThreshold == nil {
		return 0.25
	}
	return *c.ConfThreshold
}

// GetIoUThreshold returns the iou_thresh value or the default.
func (c *TrackingConfig) GetIoUThreshold() float64 {
	if c.IoUThreshold == nil {
		return 0.45
	}
	return *c.IoUThreshold
}

// GetClasses returns a copy of the class filter. Nil means all classes.
func (c *TrackingConfig) GetClasses() []int {
	if len(c.Classes) == 0 {
		return nil
	}
	out := make([]int, len(c.Classes))
	copy(out, c.Classes)
	return out
}

// GetDevice returns the device value or the default (automatic selection).
func (c *TrackingConfig) GetDevice() string {
	if c.Device == nil {
		return ""
	}
	return *c.Device
}

// GetDetectorWorkers returns the detector_workers value or the default.
func (c *TrackingConfig) GetDetectorWorkers() int {
	if c.DetectorWorkers == nil {
		return 1
	}
	return *c.DetectorWorkers
}

// GetTrackPoints returns the track_points value or the default.
func (c *TrackingConfig) GetTrackPoints() string {
	if c.TrackPoints == nil {
		return "centroid"
	}
	return *c.TrackPoints
}

// GetDistanceThreshold returns the distance_threshold value, or the
// reference threshold for the configured representation mode.
func (c *TrackingConfig) GetDistanceThreshold() float64 {
	if c.DistanceThreshold != nil {
		return *c.DistanceThreshold
	}
	if c.GetTrackPoints() == "bbox" {
		return DefaultBBoxDistanceThreshold
	}
	return DefaultCentroidDistanceThreshold
}

// GetInitDelay returns the init_delay value or the default
// (half of the default max_age, rounded down).
func (c *TrackingConfig) GetInitDelay() int {
	if c.InitDelay == nil {
		return 7
	}
	return *c.InitDelay
}

// GetMaxAge returns the max_age value or the default.
func (c *TrackingConfig) GetMaxAge() int {
	if c.MaxAge == nil {
		return 15
	}
	return *c.MaxAge
}

// GetMaxMissesTentative returns the max_misses_tentative value or the default.
func (c *TrackingConfig) GetMaxMissesTentative() int {
	if c.MaxMissesTentative == nil {
		return 0
	}
	return *c.MaxMissesTentative
}

// GetStrictTentative returns the strict_tentative value or the default.
func (c *TrackingConfig) GetStrictTentative() bool {
	if c.StrictTentative == nil {
		return true
	}
	return *c.StrictTentative
}

// GetAssignment returns the assignment value or the default.
func (c *TrackingConfig) GetAssignment() string {
	if c.Assignment == nil {
		return "greedy"
	}
	return *c.Assignment
}

// GetVideo returns the video value or the default ("0", the default camera).
func (c *TrackingConfig) GetVideo() string {
	if c.Video == nil {
		return "0"
	}
	return *c.Video
}

// GetFrameRateSkip returns the frame_rate_skip value or the default.
func (c *TrackingConfig) GetFrameRateSkip() int {
	if c.FrameRateSkip == nil {
		return 2
	}
	return *c.FrameRateSkip
}

// GetSaveFrameRate returns the save_frame_rate value or the default.
func (c *TrackingConfig) GetSaveFrameRate() int {
	if c.SaveFrameRate == nil {
		return 100
	}
	return *c.SaveFrameRate
}

// GetOutputDir returns the output_dir value or the default.
func (c *TrackingConfig) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return "outputs"
	}
	return *c.OutputDir
}

// GetSnapshotName returns the snapshot_name value or the default.
func (c *TrackingConfig) GetSnapshotName() string {
	if c.SnapshotName == nil || *c.SnapshotName == "" {
		return "output_data.csv"
	}
	return *c.SnapshotName
}

// SnapshotPath joins the output directory and snapshot file name.
func (c *TrackingConfig) SnapshotPath() string {
	return filepath.Join(c.GetOutputDir(), c.GetSnapshotName())
}
