package hal

import (
	"testing"

	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectQueueFamily(t *testing.T) {
	tests := []struct {
		name     string
		families []QueueFamily
		want     uint32
		ok       bool
	}{
		{"none", nil, 0, false},
		{"graphics only", []QueueFamily{{Graphics: true}}, 0, false},
		{"split families", []QueueFamily{{Graphics: true}, {Present: true}}, 0, false},
		{"second family", []QueueFamily{{Transfer: true}, {Graphics: true, Present: true, Compute: true}}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectQueueFamily(tt.families)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectPhysicalDevicePrefersDiscrete(t *testing.T) {
	family := []QueueFamily{{Graphics: true, Present: true}}
	devices := []PhysicalDeviceInfo{
		{Name: "igpu", Type: PhysicalDeviceTypeIntegrated, QueueFamilies: family, HasExtensions: true, HasSurfaceSupport: true},
		{Name: "dgpu-no-swapchain", Type: PhysicalDeviceTypeDiscrete, QueueFamilies: family, HasExtensions: false, HasSurfaceSupport: true},
		{Name: "dgpu", Type: PhysicalDeviceTypeDiscrete, QueueFamilies: []QueueFamily{{Transfer: true}, {Graphics: true, Present: true}}, HasExtensions: true, HasSurfaceSupport: true},
	}
	dev, fam, err := SelectPhysicalDevice(devices)
	require.NoError(t, err)
	assert.Equal(t, 2, dev)
	assert.Equal(t, uint32(1), fam)

	dev, fam, err = SelectPhysicalDevice(devices[:2])
	require.NoError(t, err)
	assert.Equal(t, 0, dev)
	assert.Equal(t, uint32(0), fam)
}

func TestSelectPhysicalDeviceNone(t *testing.T) {
	_, _, err := SelectPhysicalDevice([]PhysicalDeviceInfo{
		{Name: "no present", QueueFamilies: []QueueFamily{{Graphics: true}}, HasExtensions: true, HasSurfaceSupport: true},
	})
	assert.ErrorIs(t, err, core.ErrNoSuitableDevice)
}
