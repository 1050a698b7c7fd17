// Package tracks owns the live track set and its lifecycle:
// tentative → confirmed → stale → removed.
//
// Dependency rule: tracks may depend on tracking, distance and
// association, never on trajectory or the pipeline.
package tracks

import (
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/footfall/internal/config"
	"github.com/banshee-data/footfall/internal/timeutil"
	"github.com/banshee-data/footfall/internal/tracking"
	"github.com/banshee-data/footfall/internal/tracking/association"
)

// Status represents the lifecycle state of a track.
type Status string

const (
	StatusTentative Status = "tentative" // new track, needs confirmation
	StatusConfirmed Status = "confirmed" // reported to the aggregator
	StatusStale     Status = "stale"     // exceeded max age, removed in the same frame
)

// Config holds the lifecycle parameters.
type Config struct {
	InitDelay          int  // matches needed before a tentative track is confirmed
	MaxAge             int  // consecutive misses a confirmed track survives
	MaxMissesTentative int  // consecutive misses a tentative track survives (non-strict only)
	StrictTentative    bool // discard a tentative track on its first miss
}

// DefaultConfig returns lifecycle configuration loaded from the canonical
// defaults file (config/tracking.defaults.json).
// Panics if the file cannot be found; intended for tests.
func DefaultConfig() Config {
	return ConfigFromTracking(config.MustLoadDefaultConfig())
}

// ConfigFromTracking builds a Config from a loaded TrackingConfig.
func ConfigFromTracking(cfg *config.TrackingConfig) Config {
	return Config{
		InitDelay:          cfg.GetInitDelay(),
		MaxAge:             cfg.GetMaxAge(),
		MaxMissesTentative: cfg.GetMaxMissesTentative(),
		StrictTentative:    cfg.GetStrictTentative(),
	}
}

// Track is a persistent object identity.
type Track struct {
	ID       uint64
	Status   Status
	Estimate tracking.Shape
	Scores   []float64

	// Hits counts consecutive matches once confirmed. While tentative it
	// counts every match since creation, which is the same thing in strict
	// mode.
	Hits   int
	Misses int // consecutive frames without a match
	Age    int // frames seen since creation, including the creation frame

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Position is the point reported for the track: the estimate's first
// point. That is the centroid in centroid mode and the top-left corner in
// bbox mode.
func (t Track) Position() tracking.Point {
	if len(t.Estimate) == 0 {
		return tracking.Point{}
	}
	return t.Estimate[0]
}

func (t *Track) clone() Track {
	c := *t
	c.Estimate = t.Estimate.Clone()
	if t.Scores != nil {
		c.Scores = append([]float64(nil), t.Scores...)
	}
	return c
}

// FrameResult describes what one Update did to the track set.
type FrameResult struct {
	// Emitted holds confirmed tracks that were matched (or created
	// already confirmed) this frame, ascending by id. These are the
	// tracks that produce trajectory records.
	Emitted []Track

	Created   []uint64 // new tentative ids in detection order
	Promoted  []uint64 // tentative → confirmed this frame
	Discarded []uint64 // tentative tracks dropped without confirmation
	Removed   []Track  // confirmed tracks that went stale this frame

	Association association.Result
}

// Counts summarises the tracker state.
type Counts struct {
	Live          int
	Tentative     int
	Confirmed     int
	Created       int // tentative tracks ever created
	EverConfirmed int // distinct ids ever confirmed
	Discarded     int
	Removed       int
}

// Tracker manages the live track set. Update is the single writer; the
// read accessors are safe to call from other goroutines.
type Tracker struct {
	cfg   Config
	assoc *association.Associator
	clock timeutil.Clock

	tracks map[uint64]*Track
	nextID uint64

	created       int
	everConfirmed int
	discarded     int
	removed       int

	mu sync.RWMutex
}

// NewTracker creates a tracker. A nil clock uses wall-clock time.
func NewTracker(cfg Config, assoc *association.Associator, clock timeutil.Clock) *Tracker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Tracker{
		cfg:    cfg,
		assoc:  assoc,
		clock:  clock,
		tracks: make(map[uint64]*Track),
		nextID: 1,
	}
}

// Config returns the lifecycle configuration.
func (t *Tracker) Config() Config { return t.cfg }

// Update processes one frame of detections.
//
// Order: (1) matched tracks take the detection as their estimate, reset
// misses and count a hit; (2) unmatched tracks count a miss and are
// discarded or retired; (3) unmatched detections start tentative tracks
// in detection order.
func (t *Tracker) Update(detections []tracking.Detection) FrameResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	res := FrameResult{}

	res.Association = t.assoc.Associate(detections, t.candidates())

	// Step 1: matched tracks
	for _, m := range res.Association.Matches {
		track := t.tracks[m.TrackID]
		det := detections[m.Detection]
		track.Estimate = det.Shape.Clone()
		track.Scores = append(track.Scores[:0], det.Scores...)
		track.Misses = 0
		track.Hits++
		track.Age++
		track.UpdatedAt = now

		if track.Status == StatusTentative && track.Hits >= t.cfg.InitDelay {
			t.promote(track, &res)
		}
		if track.Status == StatusConfirmed {
			res.Emitted = append(res.Emitted, track.clone())
		}
	}

	// Step 2: unmatched tracks
	for _, id := range res.Association.UnmatchedTracks {
		t.miss(t.tracks[id], &res)
	}

	// Tentative tracks that outlived the confirmation window.
	for _, m := range res.Association.Matches {
		if track, ok := t.tracks[m.TrackID]; ok && t.expired(track) {
			t.discard(track, &res)
		}
	}

	// Step 3: new tentative tracks
	for _, di := range res.Association.UnmatchedDetections {
		track := t.spawn(detections[di], now)
		res.Created = append(res.Created, track.ID)
		if track.Hits >= t.cfg.InitDelay {
			t.promote(track, &res)
			res.Emitted = append(res.Emitted, track.clone())
		}
	}

	sort.Slice(res.Emitted, func(i, j int) bool { return res.Emitted[i].ID < res.Emitted[j].ID })
	return res
}

// AdvanceMisses ages every live track by one frame without detections.
// Used when the detector fails for a frame.
func (t *Tracker) AdvanceMisses() FrameResult {
	return t.Update(nil)
}

// candidates returns the live tracks as association input. Caller holds mu.
func (t *Tracker) candidates() []association.Candidate {
	out := make([]association.Candidate, 0, len(t.tracks))
	for _, track := range t.tracks {
		out = append(out, association.Candidate{ID: track.ID, Estimate: track.Estimate})
	}
	return out
}

func (t *Tracker) promote(track *Track, res *FrameResult) {
	track.Status = StatusConfirmed
	t.everConfirmed++
	res.Promoted = append(res.Promoted, track.ID)
}

// miss applies one unmatched frame to track. The estimate is held.
func (t *Tracker) miss(track *Track, res *FrameResult) {
	track.Misses++
	track.Age++

	switch track.Status {
	case StatusTentative:
		if t.cfg.StrictTentative || track.Misses > t.cfg.MaxMissesTentative || t.expired(track) {
			t.discard(track, res)
		}
	case StatusConfirmed:
		track.Hits = 0
		if track.Misses > t.cfg.MaxAge {
			track.Status = StatusStale
			res.Removed = append(res.Removed, track.clone())
			delete(t.tracks, track.ID)
			t.removed++
		}
	}
}

// expired reports whether a tentative track has used up its confirmation
// window of InitDelay + MaxMissesTentative frames.
func (t *Tracker) expired(track *Track) bool {
	return track.Status == StatusTentative && track.Age >= t.cfg.InitDelay+t.cfg.MaxMissesTentative
}

func (t *Tracker) discard(track *Track, res *FrameResult) {
	res.Discarded = append(res.Discarded, track.ID)
	delete(t.tracks, track.ID)
	t.discarded++
}

// spawn allocates the next id for an unmatched detection.
func (t *Tracker) spawn(det tracking.Detection, now time.Time) *Track {
	track := &Track{
		ID:        t.nextID,
		Status:    StatusTentative,
		Estimate:  det.Shape.Clone(),
		Scores:    append([]float64(nil), det.Scores...),
		Hits:      1,
		Age:       1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.nextID++
	t.tracks[track.ID] = track
	t.created++
	return track
}

// Tracks returns copies of the live tracks, ascending by id.
func (t *Tracker) Tracks() []Track {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Track, 0, len(t.tracks))
	for _, track := range t.tracks {
		out = append(out, track.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ConfirmedTracks returns copies of the confirmed tracks, ascending by id.
func (t *Tracker) ConfirmedTracks() []Track {
	all := t.Tracks()
	out := all[:0]
	for _, track := range all {
		if track.Status == StatusConfirmed {
			out = append(out, track)
		}
	}
	return out
}

// Track returns a copy of the live track with the given id.
func (t *Tracker) Track(id uint64) (Track, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	track, ok := t.tracks[id]
	if !ok {
		return Track{}, false
	}
	return track.clone(), true
}

// Counts returns live and cumulative track counts.
func (t *Tracker) Counts() Counts {
	t.mu.RLock()
	defer t.mu.RUnlock()

	c := Counts{
		Live:          len(t.tracks),
		Created:       t.created,
		EverConfirmed: t.everConfirmed,
		Discarded:     t.discarded,
		Removed:       t.removed,
	}
	for _, track := range t.tracks {
		switch track.Status {
		case StatusTentative:
			c.Tentative++
		case StatusConfirmed:
			c.Confirmed++
		}
	}
	return c
}
