package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func constFrame(n int, v int16) []int16 {
	frame := make([]int16, n)
	for i := range frame {
		frame[i] = v
	}
	return frame
}

func TestMeterNormalizesToPercent(t *testing.T) {
	m := newMeter()

	m.feed(constFrame(128, 0))
	assert.Equal(t, 0, m.sample().Value)

	m.feed(constFrame(128, 32767))
	assert.Equal(t, 100, m.sample().Value)

	m.feed(constFrame(128, 16384))
	level := m.sample()
	assert.InDelta(t, 50, level.Value, 1)
}

func TestMeterSpeakingTracksBackgroundRatio(t *testing.T) {
	m := newMeter()

	// Establish a quiet background.
	for i := 0; i < backgroundBufferSize; i++ {
		m.feed(constFrame(128, 100))
	}
	assert.False(t, m.sample().Speaking)

	// A loud frame stands out against the rolling estimate.
	m.feed(constFrame(128, 20000))
	assert.True(t, m.sample().Speaking)
}
