package renderer

import (
	"testing"

	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/spaghettifunk/voxen/engine/renderer/hal"
	"github.com/spaghettifunk/voxen/engine/renderer/hal/haltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindMemoryIndex(t *testing.T) {
	a := NewAllocator(haltest.NewDevice())

	tests := []struct {
		name      string
		typeBits  uint32
		required  hal.MemoryProperty
		preferred hal.MemoryProperty
		want      uint32
	}{
		{"device local", 0b111, hal.MemoryPropertyDeviceLocal, 0, 0},
		{"host visible", 0b111, hal.MemoryPropertyHostVisible | hal.MemoryPropertyHostCoherent, 0, 1},
		{"prefers cached", 0b111, hal.MemoryPropertyHostVisible, hal.MemoryPropertyHostCached, 2},
		{"preference dropped when masked", 0b011, hal.MemoryPropertyHostVisible, hal.MemoryPropertyHostCached, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.FindMemoryIndex(tt.typeBits, tt.required, tt.preferred)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := a.FindMemoryIndex(0b001, hal.MemoryPropertyHostVisible, 0)
	assert.ErrorIs(t, err, core.ErrNoMemoryType)
}

func TestAllocatorTracksLiveMemory(t *testing.T) {
	dev := haltest.NewDevice()
	a := NewAllocator(dev)

	gpu, err := a.Allocate(hal.MemoryRequirements{Size: 256, TypeBits: 0b111}, MemoryUsageGpuOnly)
	require.NoError(t, err)
	cpu, err := a.Allocate(hal.MemoryRequirements{Size: 64, TypeBits: 0b111}, MemoryUsageCpuToGpu)
	require.NoError(t, err)

	stats := a.Stats()
	assert.Equal(t, 2, stats.Allocations)
	assert.Equal(t, uint64(256), stats.Bytes[MemoryUsageGpuOnly])
	assert.Equal(t, uint64(64), stats.Bytes[MemoryUsageCpuToGpu])

	_, err = a.Map(gpu)
	assert.Error(t, err)

	a.Free(gpu)
	a.Free(cpu)
	a.Free(cpu)
	assert.Equal(t, 0, a.Stats().Allocations)
	assert.Zero(t, dev.Live())
	assert.Empty(t, dev.Violations())
}
