package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/stretchr/testify/assert"
)

func TestCheckMapsResults(t *testing.T) {
	tests := []struct {
		result vk.Result
		want   error
	}{
		{vk.ErrorDeviceLost, core.ErrDeviceLost},
		{vk.ErrorOutOfDeviceMemory, core.ErrOutOfDeviceMemory},
		{vk.ErrorOutOfHostMemory, core.ErrOutOfDeviceMemory},
		{vk.ErrorOutOfPoolMemory, core.ErrOutOfDeviceMemory},
		{vk.ErrorOutOfDate, core.ErrSwapchainOutOfDate},
	}
	for _, tt := range tests {
		t.Run(VulkanResultString(tt.result), func(t *testing.T) {
			err := check(tt.result, "vkTest")
			assert.True(t, errors.Is(err, tt.want))
			assert.Contains(t, err.Error(), "vkTest")
		})
	}

	assert.NoError(t, check(vk.Success, "vkTest"))
	assert.NoError(t, check(vk.Suboptimal, "vkTest"))

	err := check(vk.ErrorInitializationFailed, "vkTest")
	assert.EqualError(t, err, "vkTest failed with VK_ERROR_INITIALIZATION_FAILED")
}

func TestVulkanSafeStrings(t *testing.T) {
	assert.Equal(t, "\x00", VulkanSafeString(""))
	assert.Equal(t, "main\x00", VulkanSafeString("main"))
	assert.Equal(t, "main\x00", VulkanSafeString("main\x00"))

	in := []string{"a", "b\x00"}
	out := VulkanSafeStrings(in)
	assert.Equal(t, []string{"a\x00", "b\x00"}, out)
	assert.Equal(t, "a", in[0])
}

func TestCString(t *testing.T) {
	var name [16]byte
	copy(name[:], "llvmpipe")
	assert.Equal(t, "llvmpipe", cString(name[:]))
	assert.Equal(t, "abc", cString([]byte("abc")))
}

func TestLockPoolSerializesGroup(t *testing.T) {
	pool := NewVulkanLockPool()
	pool.SetQueueFamily(0)

	done := make(chan struct{})
	counter := 0
	for i := 0; i < 8; i++ {
		go func() {
			_ = pool.SafeCall(ResourceManagement, func() error {
				counter++
				return nil
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	assert.Equal(t, 8, counter)

	err := pool.SafeQueueCall(0, func() error { return core.ErrClosed })
	assert.ErrorIs(t, err, core.ErrClosed)
}
