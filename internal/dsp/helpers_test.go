package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapNormalizesPhase(t *testing.T) {
	assert.Equal(t, 0.0, wrap(0))
	assert.Equal(t, 0.9, wrap(0.9))
	assert.Equal(t, 0.25, wrap(1.25))
	assert.Equal(t, 0.75, wrap(-0.25))
	assert.Equal(t, 0.5, wrap(-1.5))
}
