package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsAverage(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.016)
	}
	s := m.Snapshot()
	assert.InDelta(t, 16.0, s.FrameTimeMS, 1e-9)

	// A second window does not accumulate on top of the first.
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.008)
	}
	assert.InDelta(t, 8.0, m.Snapshot().FrameTimeMS, 1e-9)
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.FrameDrawn()
	m.FrameDrawn()
	m.FrameSkipped()
	m.SwapchainRecreated()
	m.UploadCompleted()

	s := m.Snapshot()
	assert.Equal(t, uint64(2), s.FramesDrawn)
	assert.Equal(t, uint64(1), s.FramesSkipped)
	assert.Equal(t, uint64(1), s.Recreations)
	assert.Equal(t, uint64(1), s.Uploads)
}
