package testutil

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalker_Center(t *testing.T) {
	w := Walker{From: 3, X: 10, Y: 20, DX: 2, DY: -1}
	x, y := w.Center(5)
	assert.Equal(t, 14.0, x)
	assert.Equal(t, 18.0, y)
}

func TestReplayLines(t *testing.T) {
	doc := ReplayLines(4, []Walker{
		{From: 2, To: 3, X: 50, Y: 50, DX: 1, Size: 10},
	}, 4)
	lines := strings.Split(strings.TrimSpace(doc), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `{"frame": 2, "detections": [{"xyxy": [45, 45, 55, 55], "confidence": 0.9, "class": 0}]}`, lines[0])
	assert.Contains(t, lines[1], `"xyxy": [46, 45, 56, 55]`)
	assert.Equal(t, `{"frame": 4, "error": "scripted failure"}`, lines[2])
}

func TestWriteFile(t *testing.T) {
	path := WriteFile(t, "sub/a.json", "{}")
	data, err := os.ReadFile(path)
	AssertNoError(t, err)
	assert.Equal(t, "{}", string(data))
}
