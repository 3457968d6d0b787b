package loaders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShaderLoaderDecodesLittleEndianWords(t *testing.T) {
	data := []byte{
		0x03, 0x02, 0x23, 0x07,
		0x00, 0x00, 0x01, 0x00,
		0xff, 0x00, 0x00, 0x00,
	}
	sl := &ShaderLoader{}
	shader, err := sl.Load("assets/shaders/volume.frag.spv", data)
	require.NoError(t, err)
	assert.Equal(t, "volume.frag", shader.Name)
	assert.Equal(t, "assets/shaders/volume.frag.spv", shader.FullPath)
	assert.Equal(t, []uint32{spirvMagic, 0x00010000, 0xff}, shader.Code)
}

func TestShaderLoaderRejectsInvalidModules(t *testing.T) {
	sl := &ShaderLoader{}
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", []byte{0x03, 0x02, 0x23}},
		{"bad magic", []byte{0x07, 0x23, 0x02, 0x03}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sl.Load("broken.spv", tt.data)
			assert.Error(t, err)
		})
	}
}
