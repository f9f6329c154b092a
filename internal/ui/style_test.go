package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOffset(t *testing.T) {
	assert.Contains(t, Offset(500), "+500ms")
	assert.Contains(t, Offset(-1500), "-1500ms")
	assert.Contains(t, Offset(0), "+0ms")
	assert.Contains(t, Reachable(false), "UNREACHABLE")
}
