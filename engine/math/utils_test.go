package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaxMipLevels(t *testing.T) {
	tests := []struct {
		w, h, d uint32
		want    uint32
	}{
		{4096, 512, 1, 13},
		{1, 1, 1, 1},
		{2, 1, 1, 2},
		{3, 1, 1, 2},
		{64, 64, 1024, 11},
		{1440, 810, 1, 11},
		{0, 0, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaxMipLevels(tt.w, tt.h, tt.d), "%dx%dx%d", tt.w, tt.h, tt.d)
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(800), Clamp(uint32(800), 1, 4096))
	assert.Equal(t, uint32(1), Clamp(uint32(0), 1, 4096))
	assert.Equal(t, uint32(4096), Clamp(uint32(5000), 1, 4096))
	assert.Equal(t, float32(0.5), Clamp(float32(0.5), 0, 1))
}

func TestLerp(t *testing.T) {
	assert.Equal(t, float32(5), Lerp(float32(0), 10, 0.5))
	assert.Equal(t, 2.0, Lerp(2.0, 4.0, 0))
}
