package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert.Equal(t, "dev (unknown, built unknown)", String())

	old := Version
	Version = "1.2.0"
	defer func() { Version = old }()
	assert.Equal(t, "1.2.0 (unknown, built unknown)", String())
}
