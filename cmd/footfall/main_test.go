package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/footfall/internal/db"
	"github.com/banshee-data/footfall/internal/detector"
	"github.com/banshee-data/footfall/internal/runlog"
	"github.com/banshee-data/footfall/internal/testutil"
	"github.com/banshee-data/footfall/internal/trajectory"
)

// lockedBuffer is a bytes.Buffer safe for the pipeline's concurrent loggers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var noGPU = detector.DeviceProber{
	ListGPUs: func() (string, error) { return "", errors.New("nvidia-smi not found") },
	Glob:     func(string) ([]string, error) { return nil, nil },
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr lockedBuffer
	code := run(context.Background(), args, &stdout, &stderr, noGPU)
	return code, stdout.String(), stderr.String()
}

func TestRun_EndToEnd(t *testing.T) {
	walker := testutil.Walker{From: 1, To: 20, X: 60, Y: 80, DX: 2, Size: 24}
	replay := testutil.WriteFile(t, "detections.jsonl", testutil.ReplayLines(20, []testutil.Walker{walker}))
	work := t.TempDir()
	out := filepath.Join(work, "outputs")
	dbPath := filepath.Join(work, "runs.db")
	calib := testutil.WriteFile(t, "calib.json", `{"g_points": [[5, 5], [0, 0], [320, 240]]}`)

	code, stdout, stderr := runCLI(t,
		"-video", "blank:20:320x240",
		"-detections", replay,
		"-roi-file", calib,
		"-out", out,
		"-db", dbPath,
		"-frame-rate-skip", "1",
		"-init-delay", "3",
		"-save-frame-rate", "5",
		"-trace",
	)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "frames processed: 20")
	assert.Contains(t, stdout, "counts: 1")
	assert.Contains(t, stderr, "frame 20:")

	records, err := trajectory.ReadSnapshot(nil, filepath.Join(out, "output_data.csv"))
	require.NoError(t, err)
	assert.Len(t, records, 18)

	store, err := db.OpenDB(dbPath)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, db.RunStatusFinished, runs[0].Status)

	params, err := store.Params(runs[0].ID)
	require.NoError(t, err)
	byKey := make(map[string]string)
	for _, p := range params {
		byKey[p.Key] = p.Value
	}
	assert.Equal(t, "[0, 0, 320, 240]", byKey["ROI_dim"])
	assert.Equal(t, "cpu", byKey["device"])
	assert.Equal(t, "blank:20:320x240", byKey["video"])

	arts, err := store.Artifacts(runs[0].ID)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	f, err := os.Open(arts[0].Path)
	require.NoError(t, err)
	defer f.Close()
	entries, err := runlog.ReadArchive(f)
	require.NoError(t, err)
	assert.Contains(t, entries, "outputs/output_data.csv")
	assert.Contains(t, entries, "outputs/trajectories.png")
	assert.Contains(t, entries, "outputs/counts.html")
}

func TestRun_LogRecorderWhenNoDB(t *testing.T) {
	replay := testutil.WriteFile(t, "detections.jsonl", "")
	out := filepath.Join(t.TempDir(), "outputs")

	code, stdout, stderr := runCLI(t, "-video", "blank:4:64x48", "-detections", replay, "-out", out, "-roi", "0,0,64,48")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "counts: 0")
	assert.Contains(t, stderr, "metric counts=0")
	assert.FileExists(t, filepath.Join(out, "output_data.csv"))
}

func TestRun_ConfigErrors(t *testing.T) {
	replay := testutil.WriteFile(t, "detections.jsonl", "")
	out := filepath.Join(t.TempDir(), "outputs")
	base := []string{"-detections", replay, "-out", out}

	tests := []struct {
		name string
		args []string
	}{
		{"no detector", []string{"-video", "blank:2:64x48", "-out", out}},
		{"both detectors", append([]string{"-video", "blank:2:64x48", "-detector-url", "http://127.0.0.1:1"}, base...)},
		{"roi outside frame", append([]string{"-video", "blank:2:64x48", "-roi", "0,0,100,48"}, base...)},
		{"inverted roi", append([]string{"-video", "blank:2:64x48", "-roi", "50,0,10,48"}, base...)},
		{"camera source", append([]string{"-video", "0"}, base...)},
		{"cuda without gpu", append([]string{"-video", "blank:2:64x48", "-device", "cuda"}, base...)},
		{"frame skip", append([]string{"-video", "blank:2:64x48", "-frame-rate-skip", "0"}, base...)},
		{"missing config", append([]string{"-video", "blank:2:64x48", "-config", "/nonexistent.json"}, base...)},
		{"missing calibration", append([]string{"-video", "blank:2:64x48", "-roi-file", "/nonexistent.json"}, base...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, "configuration error")
		})
	}
}

func TestRun_VersionAndUsage(t *testing.T) {
	code, stdout, _ := runCLI(t, "-version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "footfall dev")

	code, _, _ = runCLI(t, "-no-such-flag")
	assert.Equal(t, 2, code)

	code, _, _ = runCLI(t, "-h")
	assert.Equal(t, 0, code)
}
