package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/footfall/internal/config"
)

func TestFlagDefaultsMatchConfig(t *testing.T) {
	f := newFlags(io.Discard)
	require.NoError(t, f.parse(nil))

	d := config.EmptyTrackingConfig()
	assert.Equal(t, d.GetInitDelay(), f.initDelay)
	assert.Equal(t, d.GetFrameRateSkip(), f.frameRateSkip)
	assert.Equal(t, d.GetSaveFrameRate(), f.saveFrameRate)
	assert.Equal(t, d.GetOutputDir(), f.outDir)
	assert.Equal(t, d.GetTrackPoints(), f.trackPoints)
	assert.Equal(t, d.GetAssignment(), f.assignment)
	assert.Empty(t, f.dbPath)
	assert.False(t, f.trace)
}

func TestApply_OnlyExplicitFlags(t *testing.T) {
	cfg := &config.TrackingConfig{InitDelay: func() *int { v := 4; return &v }()}
	f := newFlags(io.Discard)
	require.NoError(t, f.parse([]string{"-max-age", "9", "-classes", "0, 2", "-track-points", "bbox"}))
	require.NoError(t, f.apply(cfg))

	assert.Equal(t, 4, cfg.GetInitDelay(), "config file value survives")
	assert.Equal(t, 9, cfg.GetMaxAge())
	assert.Equal(t, []int{0, 2}, cfg.GetClasses())
	assert.Equal(t, "bbox", cfg.GetTrackPoints())
	assert.Equal(t, config.DefaultBBoxDistanceThreshold, cfg.GetDistanceThreshold())
	assert.Nil(t, cfg.Video)
}

func TestApply_DistanceThresholdOverride(t *testing.T) {
	cfg := config.EmptyTrackingConfig()
	f := newFlags(io.Discard)
	require.NoError(t, f.parse([]string{"-distance-threshold", "12.5"}))
	require.NoError(t, f.apply(cfg))
	assert.Equal(t, 12.5, cfg.GetDistanceThreshold())
}

func TestApply_Invalid(t *testing.T) {
	tests := [][]string{
		{"-classes", "person"},
		{"-frame-rate-skip", "0"},
		{"-track-points", "keypoints"},
		{"-assignment", "auction"},
		{"-conf-thres", "1.5"},
		{"-device", "tpu"},
	}
	for _, args := range tests {
		f := newFlags(io.Discard)
		require.NoError(t, f.parse(args))
		assert.Error(t, f.apply(config.EmptyTrackingConfig()), "%v", args)
	}
}

func TestParseCSVIntSlice(t *testing.T) {
	got, err := parseCSVIntSlice("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseCSVIntSlice("1,2, 3")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)

	_, err = parseCSVIntSlice("1,x")
	assert.Error(t, err)
}
