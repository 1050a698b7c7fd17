// Package association matches one frame's detections to the live tracks.
//
// The default strategy is greedy nearest-first: the globally smallest
// remaining distance below the threshold is committed, its row and column
// are removed, and the process repeats. Ties go to the lowest detection
// index, then the lowest track id. The optimal strategy instead solves the
// minimum-cost assignment over the same gated cost matrix.
package association

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/footfall/internal/tracking"
	"github.com/banshee-data/footfall/internal/tracking/distance"
)

// Strategy selects how the cost matrix is solved.
type Strategy string

const (
	Greedy  Strategy = "greedy"
	Optimal Strategy = "optimal"
)

// ParseStrategy converts a configuration string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case Greedy, "":
		return Greedy, nil
	case Optimal:
		return Optimal, nil
	}
	return "", fmt.Errorf("unknown assignment strategy %q", s)
}

// Candidate is a live track as seen by the matcher.
type Candidate struct {
	ID       uint64
	Estimate tracking.Shape
}

// Match pairs a detection index with a track id.
type Match struct {
	Detection int
	TrackID   uint64
	Distance  float64
}

// Result partitions one frame's detections and tracks.
// Matches are ordered by detection index; the unmatched lists ascend.
type Result struct {
	Matches             []Match
	UnmatchedDetections []int
	UnmatchedTracks     []uint64
}

// Associator scores and matches detections against tracks.
type Associator struct {
	dist      distance.Func
	threshold float64
	strategy  Strategy
}

// New builds an Associator. Pairs whose distance is not strictly below
// threshold are never matched.
func New(dist distance.Func, threshold float64, strategy Strategy) (*Associator, error) {
	if dist == nil {
		return nil, fmt.Errorf("association: nil distance function")
	}
	if !(threshold > 0) {
		return nil, fmt.Errorf("association: threshold must be positive, got %v", threshold)
	}
	if strategy != Greedy && strategy != Optimal {
		return nil, fmt.Errorf("association: unknown strategy %q", strategy)
	}
	return &Associator{dist: dist, threshold: threshold, strategy: strategy}, nil
}

// Threshold returns the gating threshold.
func (a *Associator) Threshold() float64 { return a.threshold }

// Strategy returns the configured strategy.
func (a *Associator) Strategy() Strategy { return a.strategy }

// Associate partitions detections and candidates for one frame. The input
// slices are not modified.
func (a *Associator) Associate(detections []tracking.Detection, candidates []Candidate) Result {
	tracks := make([]Candidate, len(candidates))
	copy(tracks, candidates)
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].ID < tracks[j].ID })

	if len(detections) == 0 || len(tracks) == 0 {
		return unmatchedAll(len(detections), tracks)
	}

	cost := a.CostMatrix(detections, tracks)

	var assign []int
	switch a.strategy {
	case Optimal:
		assign = hungarianAssign(cost, a.threshold)
	default:
		assign = a.greedyAssign(cost)
	}

	res := Result{}
	trackUsed := make([]bool, len(tracks))
	for di, tj := range assign {
		if tj < 0 {
			res.UnmatchedDetections = append(res.UnmatchedDetections, di)
			continue
		}
		trackUsed[tj] = true
		res.Matches = append(res.Matches, Match{
			Detection: di,
			TrackID:   tracks[tj].ID,
			Distance:  cost.At(di, tj),
		})
	}
	for tj, used := range trackUsed {
		if !used {
			res.UnmatchedTracks = append(res.UnmatchedTracks, tracks[tj].ID)
		}
	}
	return res
}

// CostMatrix returns the detections×tracks distance matrix. Tracks must
// already be in the column order the caller wants. NaN scores are replaced
// with distance.MaxDistance.
func (a *Associator) CostMatrix(detections []tracking.Detection, tracks []Candidate) *mat.Dense {
	cost := mat.NewDense(len(detections), len(tracks), nil)
	for i, det := range detections {
		for j, trk := range tracks {
			d := a.dist(det.Shape, trk.Estimate)
			if math.IsNaN(d) || d < 0 {
				d = distance.MaxDistance
			}
			cost.Set(i, j, d)
		}
	}
	return cost
}

type pair struct {
	det, trk int
	cost     float64
}

// greedyAssign commits pairs in ascending (cost, detection, track) order.
// Columns are already sorted by track id, so the column index breaks ties
// the same way the id would.
func (a *Associator) greedyAssign(cost *mat.Dense) []int {
	n, m := cost.Dims()
	pairs := make([]pair, 0, n*m)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			if c := cost.At(i, j); c < a.threshold {
				pairs = append(pairs, pair{det: i, trk: j, cost: c})
			}
		}
	}
	sort.Slice(pairs, func(x, y int) bool {
		px, py := pairs[x], pairs[y]
		if px.cost != py.cost {
			return px.cost < py.cost
		}
		if px.det != py.det {
			return px.det < py.det
		}
		return px.trk < py.trk
	})

	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	trackTaken := make([]bool, m)
	for _, p := range pairs {
		if assign[p.det] >= 0 || trackTaken[p.trk] {
			continue
		}
		assign[p.det] = p.trk
		trackTaken[p.trk] = true
	}
	return assign
}

func unmatchedAll(nDetections int, tracks []Candidate) Result {
	res := Result{}
	for i := 0; i < nDetections; i++ {
		res.UnmatchedDetections = append(res.UnmatchedDetections, i)
	}
	for _, t := range tracks {
		res.UnmatchedTracks = append(res.UnmatchedTracks, t.ID)
	}
	return res
}
