// Package trajectory accumulates the positions of confirmed tracks and
// periodically persists them as a snapshot.
package trajectory

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/footfall/internal/monitoring"
	"github.com/banshee-data/footfall/internal/tracking/tracks"
)

// Record is one confirmed-track position. Records are never mutated once
// appended.
type Record struct {
	TrackID uint64
	X       float64
	Y       float64
	Time    time.Time
}

// Stats summarises the aggregator.
type Stats struct {
	Frames           int // processed frames seen by FrameDone
	Records          int
	DistinctTracks   int
	Snapshots        int // successful snapshot writes
	SnapshotFailures int
}

// Aggregator owns the in-memory trajectory log.
type Aggregator struct {
	store    Snapshotter
	interval int

	mu        sync.Mutex
	records   []Record
	seen      map[uint64]struct{}
	frames    int
	snapshots int
	failures  int
}

// NewAggregator creates an aggregator that snapshots to store every
// interval processed frames.
func NewAggregator(store Snapshotter, interval int) (*Aggregator, error) {
	if store == nil {
		return nil, errors.New("trajectory: nil snapshot store")
	}
	if interval < 1 {
		return nil, fmt.Errorf("trajectory: snapshot interval must be at least 1, got %d", interval)
	}
	return &Aggregator{
		store:    store,
		interval: interval,
		seen:     make(map[uint64]struct{}),
	}, nil
}

// Observe appends one record per confirmed track, in the order given.
// Tracks that are not confirmed are ignored.
func (a *Aggregator) Observe(emitted []tracks.Track) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, t := range emitted {
		if t.Status != tracks.StatusConfirmed {
			continue
		}
		pos := t.Position()
		a.records = append(a.records, Record{
			TrackID: t.ID,
			X:       pos.X,
			Y:       pos.Y,
			Time:    t.UpdatedAt,
		})
		a.seen[t.ID] = struct{}{}
	}
}

// FrameDone marks the end of one processed frame and writes a snapshot
// when the interval is reached. A failed write is logged and returned;
// the log itself is kept and the next interval retries.
func (a *Aggregator) FrameDone() (bool, error) {
	a.mu.Lock()
	a.frames++
	due := a.frames%a.interval == 0
	a.mu.Unlock()

	if !due {
		return false, nil
	}
	return true, a.snapshot()
}

// Flush writes the final snapshot unconditionally.
func (a *Aggregator) Flush() error {
	return a.snapshot()
}

func (a *Aggregator) snapshot() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.store.WriteSnapshot(a.records); err != nil {
		a.failures++
		monitoring.Opsf("snapshot failed after %d frames (%d records): %v", a.frames, len(a.records), err)
		return err
	}
	a.snapshots++
	monitoring.Diagf("snapshot written: frames=%d records=%d", a.frames, len(a.records))
	return nil
}

// Records returns a copy of the trajectory log.
func (a *Aggregator) Records() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Record, len(a.records))
	copy(out, a.records)
	return out
}

// DistinctTracks returns the number of track ids with at least one record.
func (a *Aggregator) DistinctTracks() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.seen)
}

// Stats returns the current counters.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		Frames:           a.frames,
		Records:          len(a.records),
		DistinctTracks:   len(a.seen),
		Snapshots:        a.snapshots,
		SnapshotFailures: a.failures,
	}
}
