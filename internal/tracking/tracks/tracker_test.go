package tracks

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/footfall/internal/timeutil"
	"github.com/banshee-data/footfall/internal/tracking"
	"github.com/banshee-data/footfall/internal/tracking/association"
	"github.com/banshee-data/footfall/internal/tracking/distance"
)

var epoch = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestTracker(t *testing.T, cfg Config) *Tracker {
	t.Helper()
	assoc, err := association.New(distance.Euclidean, distance.DefaultCentroidThreshold, association.Greedy)
	require.NoError(t, err)
	return NewTracker(cfg, assoc, timeutil.NewSteppingClock(epoch, 40*time.Millisecond))
}

func at(x, y float64) tracking.Detection {
	return tracking.NewPointDetection(x, y, 0.9)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 7, cfg.InitDelay)
	assert.Equal(t, 15, cfg.MaxAge)
	assert.True(t, cfg.StrictTentative)
}

func TestTracker_ConfirmationAfterInitDelay(t *testing.T) {
	tr := newTestTracker(t, Config{InitDelay: 3, MaxAge: 5, StrictTentative: true})

	var emitted [][]Track
	for frame := 1; frame <= 5; frame++ {
		res := tr.Update([]tracking.Detection{at(100, 100)})
		emitted = append(emitted, res.Emitted)

		switch frame {
		case 1:
			assert.Equal(t, []uint64{1}, res.Created)
		case 3:
			assert.Equal(t, []uint64{1}, res.Promoted)
		default:
			assert.Empty(t, res.Promoted, "frame %d", frame)
		}
	}

	assert.Empty(t, emitted[0])
	assert.Empty(t, emitted[1])
	for frame := 3; frame <= 5; frame++ {
		require.Len(t, emitted[frame-1], 1, "frame %d", frame)
		got := emitted[frame-1][0]
		assert.Equal(t, uint64(1), got.ID)
		assert.Equal(t, tracking.Point{X: 100, Y: 100}, got.Position())
		assert.Equal(t, StatusConfirmed, got.Status)
	}

	c := tr.Counts()
	assert.Equal(t, 1, c.EverConfirmed)
	assert.Equal(t, 1, c.Created)
}

func TestTracker_ConfirmedTrackSurvivesMiss(t *testing.T) {
	tr := newTestTracker(t, Config{InitDelay: 1, MaxAge: 5, StrictTentative: true})

	tr.Update([]tracking.Detection{at(50, 60)})
	res := tr.Update(nil)

	assert.Empty(t, res.Emitted, "no record for the missed frame")
	assert.Empty(t, res.Removed)

	track, ok := tr.Track(1)
	require.True(t, ok)
	assert.Equal(t, StatusConfirmed, track.Status)
	assert.Equal(t, 1, track.Misses)
	assert.Equal(t, 0, track.Hits)
	assert.Equal(t, tracking.Point{X: 50, Y: 60}, track.Position(), "estimate is held")
}

func TestTracker_StaleAfterMaxAge(t *testing.T) {
	tr := newTestTracker(t, Config{InitDelay: 1, MaxAge: 2, StrictTentative: true})
	tr.Update([]tracking.Detection{at(10, 10)})

	assert.Empty(t, tr.Update(nil).Removed)
	assert.Empty(t, tr.Update(nil).Removed)
	res := tr.Update(nil)
	require.Len(t, res.Removed, 1)
	assert.Equal(t, StatusStale, res.Removed[0].Status)
	assert.Equal(t, 3, res.Removed[0].Misses)

	_, ok := tr.Track(1)
	assert.False(t, ok)
	assert.Equal(t, 1, tr.Counts().Removed)

	// Reappearing at the same place is a new identity.
	res = tr.Update([]tracking.Detection{at(10, 10)})
	assert.Equal(t, []uint64{2}, res.Created)
}

func TestTracker_StrictTentativeDiscardedOnMiss(t *testing.T) {
	tr := newTestTracker(t, Config{InitDelay: 3, MaxAge: 5, StrictTentative: true})

	tr.Update([]tracking.Detection{at(10, 10)})
	tr.Update([]tracking.Detection{at(10, 10)})
	res := tr.Update(nil)

	assert.Equal(t, []uint64{1}, res.Discarded)
	assert.Empty(t, tr.Tracks())
	assert.Equal(t, 0, tr.Counts().EverConfirmed)
	assert.Equal(t, 1, tr.Counts().Discarded)
}

func TestTracker_LenientTentative(t *testing.T) {
	cfg := Config{InitDelay: 3, MaxAge: 5, MaxMissesTentative: 1, StrictTentative: false}

	t.Run("one miss is tolerated", func(t *testing.T) {
		tr := newTestTracker(t, cfg)
		tr.Update([]tracking.Detection{at(10, 10)})
		res := tr.Update(nil)
		assert.Empty(t, res.Discarded)
		tr.Update([]tracking.Detection{at(10, 10)})
		res = tr.Update([]tracking.Detection{at(10, 10)})
		assert.Equal(t, []uint64{1}, res.Promoted)
	})

	t.Run("two consecutive misses discard", func(t *testing.T) {
		tr := newTestTracker(t, cfg)
		tr.Update([]tracking.Detection{at(10, 10)})
		tr.Update(nil)
		res := tr.Update(nil)
		assert.Equal(t, []uint64{1}, res.Discarded)
	})

	t.Run("window expiry discards", func(t *testing.T) {
		tr := newTestTracker(t, cfg)
		tr.Update([]tracking.Detection{at(10, 10)})
		tr.Update(nil)
		tr.Update([]tracking.Detection{at(10, 10)})
		res := tr.Update(nil)
		assert.Equal(t, []uint64{1}, res.Discarded)
		assert.Equal(t, 0, tr.Counts().EverConfirmed)
	})

	t.Run("window expiry on a matched frame discards", func(t *testing.T) {
		tr := newTestTracker(t, Config{InitDelay: 4, MaxAge: 5, MaxMissesTentative: 1})
		tr.Update([]tracking.Detection{at(10, 10)})
		tr.Update(nil)
		tr.Update([]tracking.Detection{at(10, 10)})
		res := tr.Update(nil)
		assert.Empty(t, res.Discarded)

		res = tr.Update([]tracking.Detection{at(10, 10)})
		assert.Equal(t, []uint64{1}, res.Discarded)
		assert.Empty(t, res.Promoted)
		assert.Empty(t, res.Emitted)
		assert.Zero(t, tr.Counts().Live)
	})
}

func TestTrack_PositionIsFirstPoint(t *testing.T) {
	box := Track{Estimate: tracking.Shape{{X: 10, Y: 20}, {X: 30, Y: 60}}}
	assert.Equal(t, tracking.Point{X: 10, Y: 20}, box.Position())

	point := Track{Estimate: tracking.Shape{{X: 5, Y: 7}}}
	assert.Equal(t, tracking.Point{X: 5, Y: 7}, point.Position())

	assert.Equal(t, tracking.Point{}, Track{}.Position())
}

func TestTracker_ZeroOrOneDelayConfirmsImmediately(t *testing.T) {
	for _, delay := range []int{0, 1} {
		tr := newTestTracker(t, Config{InitDelay: delay, MaxAge: 5, StrictTentative: true})
		res := tr.Update([]tracking.Detection{at(1, 1)})
		assert.Equal(t, []uint64{1}, res.Created, "delay %d", delay)
		assert.Equal(t, []uint64{1}, res.Promoted, "delay %d", delay)
		require.Len(t, res.Emitted, 1)
	}
}

func TestTracker_IDsIncreaseInDetectionOrder(t *testing.T) {
	tr := newTestTracker(t, Config{InitDelay: 2, MaxAge: 5, StrictTentative: true})

	res := tr.Update([]tracking.Detection{at(300, 300), at(0, 0), at(150, 150)})
	assert.Equal(t, []uint64{1, 2, 3}, res.Created)

	first, _ := tr.Track(1)
	assert.Equal(t, tracking.Point{X: 300, Y: 300}, first.Position())

	res = tr.Update([]tracking.Detection{at(0, 1), at(500, 500)})
	assert.Equal(t, []uint64{4}, res.Created)
	assert.Equal(t, []uint64{2}, res.Promoted)
	assert.ElementsMatch(t, []uint64{1, 3}, res.Discarded)
}

func TestTracker_SplitScenario(t *testing.T) {
	tr := newTestTracker(t, Config{InitDelay: 1, MaxAge: 5, StrictTentative: true})
	tr.Update([]tracking.Detection{at(10, 10.5)})

	res := tr.Update([]tracking.Detection{at(10, 10), at(10, 11)})
	require.Len(t, res.Association.Matches, 1)
	assert.Equal(t, 0, res.Association.Matches[0].Detection)
	assert.Equal(t, []uint64{2}, res.Created)

	track, _ := tr.Track(1)
	assert.Equal(t, tracking.Point{X: 10, Y: 10}, track.Position())
}

func TestTracker_TimestampsFromClock(t *testing.T) {
	tr := newTestTracker(t, Config{InitDelay: 1, MaxAge: 5, StrictTentative: true})
	tr.Update([]tracking.Detection{at(1, 1)})
	tr.Update([]tracking.Detection{at(2, 1)})

	track, _ := tr.Track(1)
	assert.Equal(t, epoch, track.CreatedAt)
	assert.Equal(t, epoch.Add(40*time.Millisecond), track.UpdatedAt)
}

func TestTracker_AccessorsReturnCopies(t *testing.T) {
	tr := newTestTracker(t, Config{InitDelay: 1, MaxAge: 5, StrictTentative: true})
	tr.Update([]tracking.Detection{at(5, 5)})

	snap := tr.Tracks()
	snap[0].Estimate[0].X = 999
	track, _ := tr.Track(1)
	assert.Equal(t, 5.0, track.Estimate[0].X)

	assert.Len(t, tr.ConfirmedTracks(), 1)
}

func TestTracker_AdvanceMisses(t *testing.T) {
	tr := newTestTracker(t, Config{InitDelay: 1, MaxAge: 0, StrictTentative: true})
	tr.Update([]tracking.Detection{at(5, 5)})

	res := tr.AdvanceMisses()
	require.Len(t, res.Removed, 1)
	assert.Equal(t, 0, tr.Counts().Live)
}

// replay runs the same detection stream through a fresh tracker and
// returns every emitted (id, position) pair.
func replay(t *testing.T, frames [][]tracking.Detection) []Track {
	tr := newTestTracker(t, Config{InitDelay: 3, MaxAge: 4, StrictTentative: true})
	var out []Track
	for _, dets := range frames {
		out = append(out, tr.Update(dets).Emitted...)
	}
	return out
}

func TestTracker_ReplayIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	walkers := []tracking.Point{{X: 10, Y: 10}, {X: 200, Y: 40}, {X: 90, Y: 300}}

	var frames [][]tracking.Detection
	for f := 0; f < 60; f++ {
		var dets []tracking.Detection
		for i := range walkers {
			walkers[i].X += rng.Float64()*6 - 2
			walkers[i].Y += rng.Float64()*6 - 2
			if rng.Float64() < 0.85 {
				dets = append(dets, at(walkers[i].X, walkers[i].Y))
			}
		}
		if rng.Float64() < 0.2 {
			dets = append(dets, at(rng.Float64()*640, rng.Float64()*480))
		}
		frames = append(frames, dets)
	}

	first := replay(t, frames)
	second := replay(t, frames)
	require.NotEmpty(t, first)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("replay diverged (-first +second):\n%s", diff)
	}

	// No record may precede confirmation and ids appear in creation order.
	var lastNew uint64
	seen := map[uint64]bool{}
	for _, rec := range first {
		assert.Equal(t, StatusConfirmed, rec.Status)
		assert.GreaterOrEqual(t, rec.Age, 3)
		if !seen[rec.ID] {
			assert.Greater(t, rec.ID, lastNew)
			lastNew = rec.ID
			seen[rec.ID] = true
		}
	}
}

func TestTracker_NoDoubleUpdatePerFrame(t *testing.T) {
	tr := newTestTracker(t, Config{InitDelay: 1, MaxAge: 5, StrictTentative: true})
	tr.Update([]tracking.Detection{at(0, 0), at(100, 0)})

	res := tr.Update([]tracking.Detection{at(1, 0), at(2, 0), at(99, 0)})
	seen := map[uint64]int{}
	for _, e := range res.Emitted {
		seen[e.ID]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "track %d emitted %d times", id, n)
	}
	assert.Equal(t, []uint64{3}, res.Created)
}
