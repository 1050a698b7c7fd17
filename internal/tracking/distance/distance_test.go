package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/footfall/internal/tracking"
)

func box(x1, y1, x2, y2 float64) tracking.Shape {
	return tracking.Shape{{X: x1, Y: y1}, {X: x2, Y: y2}}
}

func pt(x, y float64) tracking.Shape {
	return tracking.Shape{{X: x, Y: y}}
}

func TestEuclidean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b tracking.Shape
		want float64
	}{
		{"identical", pt(100, 100), pt(100, 100), 0},
		{"3-4-5", pt(0, 0), pt(3, 4), 5},
		{"half pixel", pt(10, 10), pt(10, 10.5), 0.5},
		{"box corners", box(0, 0, 10, 10), box(3, 4, 10, 10), 5},
		{"shape mismatch", pt(0, 0), box(0, 0, 1, 1), MaxDistance},
		{"empty", tracking.Shape{}, tracking.Shape{}, MaxDistance},
		{"nan", pt(math.NaN(), 0), pt(0, 0), MaxDistance},
		{"inf", pt(0, 0), pt(math.Inf(-1), 0), MaxDistance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Euclidean(tt.a, tt.b), 1e-12)
		})
	}
}

func TestEuclidean_OrderIndependent(t *testing.T) {
	a, b := pt(12, -3), pt(-7, 44)
	assert.Equal(t, Euclidean(a, b), Euclidean(b, a))
}

func TestIoU(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b tracking.Shape
		want float64
	}{
		{"identical", box(0, 0, 9, 9), box(0, 0, 9, 9), 1},
		// 10x10 boxes sharing a 5x10 strip: 50 / (100+100-50)
		{"half overlap", box(0, 0, 9, 9), box(5, 0, 14, 9), 50.0 / 150.0},
		{"touching edge pixel", box(0, 0, 9, 9), box(9, 0, 18, 9), 10.0 / 190.0},
		{"disjoint", box(0, 0, 9, 9), box(20, 20, 29, 29), 0},
		{"single pixel boxes", box(4, 4, 4, 4), box(4, 4, 4, 4), 1},
		{"inverted box", box(9, 9, 0, 0), box(0, 0, 9, 9), 0},
		{"nan corner", box(math.NaN(), 0, 9, 9), box(0, 0, 9, 9), 0},
		{"not a box", pt(1, 1), pt(1, 1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IoU(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestBoxDistance(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, BoxDistance(box(10, 10, 50, 90), box(10, 10, 50, 90)))
	assert.Equal(t, MaxDistance, BoxDistance(box(0, 0, 9, 9), box(100, 100, 109, 109)))
	assert.InDelta(t, 3.0, BoxDistance(box(0, 0, 9, 9), box(5, 0, 14, 9)), 1e-12)
	assert.Equal(t, MaxDistance, BoxDistance(box(9, 9, 0, 0), box(9, 9, 0, 0)))
	assert.Equal(t, MaxDistance, BoxDistance(box(math.Inf(1), 0, 1, 1), box(0, 0, 1, 1)))
}

func TestBoxDistance_NonOverlappingAlwaysSentinel(t *testing.T) {
	for dx := 10.0; dx < 200; dx += 17 {
		a := box(0, 0, 9, 9)
		b := box(dx, 0, dx+9, 9)
		assert.Equal(t, MaxDistance, BoxDistance(a, b), "dx=%v", dx)
		assert.Equal(t, BoxDistance(a, b), BoxDistance(b, a))
	}
}

func TestByMode(t *testing.T) {
	fn, err := ByMode(tracking.ModeCentroid)
	require.NoError(t, err)
	assert.Equal(t, 5.0, fn(pt(0, 0), pt(3, 4)))

	fn, err = ByMode(tracking.ModeBBox)
	require.NoError(t, err)
	assert.Equal(t, 1.0, fn(box(0, 0, 4, 4), box(0, 0, 4, 4)))

	_, err = ByMode("keypoints")
	assert.ErrorIs(t, err, tracking.ErrUnsupportedMode)
}

func TestDefaultThreshold(t *testing.T) {
	assert.Equal(t, 30.0, DefaultThreshold(tracking.ModeCentroid))
	assert.Equal(t, 3.33, DefaultThreshold(tracking.ModeBBox))
}
