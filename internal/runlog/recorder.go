// Package runlog hands run parameters, metrics and output artifacts to a
// run recorder at the end of a tracking run.
package runlog

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/footfall/internal/db"
	"github.com/banshee-data/footfall/internal/fsutil"
	"github.com/banshee-data/footfall/internal/monitoring"
	"github.com/banshee-data/footfall/internal/timeutil"
)

// Recorder receives the results of one run.
type Recorder interface {
	LogParam(key, value string) error
	LogMetric(key string, value float64) error
	// LogArtifacts archives every file under dir.
	LogArtifacts(dir string) error
	// Close ends the run; runErr marks it failed.
	Close(runErr error) error
}

// SQLiteRecorder stores the run in a db.DB registry and archives artifacts
// as <archiveDir>/<run id>.tar.gz.
type SQLiteRecorder struct {
	db         *db.DB
	fs         fsutil.FileSystem
	clock      timeutil.Clock
	archiveDir string
	runID      string

	mu    sync.Mutex
	steps map[string]int64
}

// NewSQLiteRecorder registers a new run named name. fs and clock may be nil.
func NewSQLiteRecorder(store *db.DB, name, archiveDir string, fs fsutil.FileSystem, clock timeutil.Clock) (*SQLiteRecorder, error) {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	r := &SQLiteRecorder{
		db:         store,
		fs:         fs,
		clock:      clock,
		archiveDir: archiveDir,
		runID:      uuid.NewString(),
		steps:      make(map[string]int64),
	}
	if err := store.CreateRun(&db.Run{ID: r.runID, Name: name, StartedAt: clock.Now()}); err != nil {
		return nil, err
	}
	monitoring.Diagf("run %s registered", r.runID)
	return r, nil
}

// RunID returns the registry id of this run.
func (r *SQLiteRecorder) RunID() string { return r.runID }

func (r *SQLiteRecorder) LogParam(key, value string) error {
	return r.db.SetParam(r.runID, key, value)
}

// LogMetric appends value to the metric's history; repeated keys get
// increasing steps starting at 0.
func (r *SQLiteRecorder) LogMetric(key string, value float64) error {
	r.mu.Lock()
	step := r.steps[key]
	r.steps[key] = step + 1
	r.mu.Unlock()

	return r.db.RecordMetric(r.runID, db.RunMetric{
		Key:        key,
		Value:      value,
		Step:       step,
		RecordedAt: r.clock.Now(),
	})
}

func (r *SQLiteRecorder) LogArtifacts(dir string) error {
	dest := filepath.Join(r.archiveDir, r.runID+".tar.gz")
	n, err := ArchiveDir(r.fs, dir, dest)
	if err != nil {
		return err
	}
	info, err := r.fs.Stat(dest)
	if err != nil {
		return err
	}
	monitoring.Diagf("archived %d file(s) from %s to %s", n, dir, dest)
	return r.db.AddArtifact(r.runID, db.RunArtifact{
		Path:       dest,
		SizeBytes:  info.Size(),
		RecordedAt: r.clock.Now(),
	})
}

func (r *SQLiteRecorder) Close(runErr error) error {
	return r.db.FinishRun(r.runID, r.clock.Now(), runErr)
}

// LogRecorder writes the run to the ops log and keeps it in memory. It is
// used when no registry database is configured.
type LogRecorder struct {
	mu       sync.Mutex
	params   map[string]string
	metrics  map[string][]float64
	archives []string
	closed   bool
	clock    timeutil.Clock
	start    time.Time
}

// NewLogRecorder creates a LogRecorder; clock may be nil.
func NewLogRecorder(clock timeutil.Clock) *LogRecorder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &LogRecorder{
		params:  make(map[string]string),
		metrics: make(map[string][]float64),
		clock:   clock,
		start:   clock.Now(),
	}
}

func (l *LogRecorder) LogParam(key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.params[key] = value
	monitoring.Opsf("param %s=%s", key, value)
	return nil
}

func (l *LogRecorder) LogMetric(key string, value float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metrics[key] = append(l.metrics[key], value)
	monitoring.Opsf("metric %s=%s", key, strconv.FormatFloat(value, 'g', -1, 64))
	return nil
}

// LogArtifacts only records the directory; nothing is archived.
func (l *LogRecorder) LogArtifacts(dir string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.archives = append(l.archives, dir)
	monitoring.Opsf("artifacts left in %s", dir)
	return nil
}

func (l *LogRecorder) Close(runErr error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("run already closed")
	}
	l.closed = true
	if runErr != nil {
		monitoring.Opsf("run failed after %s: %v", l.clock.Since(l.start), runErr)
		return nil
	}
	monitoring.Opsf("run finished after %s", l.clock.Since(l.start))
	return nil
}

// Params returns the logged parameters sorted by key.
func (l *LogRecorder) Params() []db.RunParam {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]db.RunParam, 0, len(l.params))
	for k, v := range l.params {
		out = append(out, db.RunParam{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Metric returns the last value logged for key.
func (l *LogRecorder) Metric(key string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	vals := l.metrics[key]
	if len(vals) == 0 {
		return 0, false
	}
	return vals[len(vals)-1], true
}

// ArtifactDirs returns the directories passed to LogArtifacts.
func (l *LogRecorder) ArtifactDirs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.archives...)
}
