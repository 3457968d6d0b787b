package loaders

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// First word of every SPIR-V module.
const spirvMagic uint32 = 0x07230203

// Shader is a decoded SPIR-V module.
type Shader struct {
	Name     string
	FullPath string
	Code     []uint32
}

type ShaderLoader struct{}

// Load decodes a compiled shader read from path. The name is the file name
// without the .spv extension, e.g. "volume.frag".
func (sl *ShaderLoader) Load(path string, data []byte) (*Shader, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, errors.Errorf("shader %s: size %d is not a multiple of 4", path, len(data))
	}
	code := bytesToBytecode(data)
	if code[0] != spirvMagic {
		return nil, errors.Errorf("shader %s: bad SPIR-V magic %#08x", path, code[0])
	}
	return &Shader{
		Name:     strings.TrimSuffix(filepath.Base(path), ".spv"),
		FullPath: path,
		Code:     code,
	}, nil
}

// SPIR-V words are little endian on disk.
func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}
