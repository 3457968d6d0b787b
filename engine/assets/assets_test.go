package assets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/voxen/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var spirvHeader = []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}

func TestFileWorkerReadBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(path, []byte("voxel"), 0o644))

	fw := NewFileWorker(2)
	defer fw.Close()

	data, err := fw.ReadBytes(path).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("voxel"), data)

	_, err = fw.ReadBytes(filepath.Join(dir, "missing.bin")).Await(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileWorkerRejectsAfterClose(t *testing.T) {
	fw := NewFileWorker(1)
	fw.Close()
	fw.Close()

	_, err := fw.ReadBytes("whatever").Await(context.Background())
	assert.ErrorIs(t, err, core.ErrClosed)
}

func TestLoadShader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stencil.comp.spv")
	require.NoError(t, os.WriteFile(path, spirvHeader, 0o644))

	fw := NewFileWorker(1)
	defer fw.Close()

	shader, err := LoadShader(context.Background(), fw, path)
	require.NoError(t, err)
	assert.Equal(t, "stencil.comp", shader.Name)
	assert.Len(t, shader.Code, 2)
}

func TestShaderWatcherCollectsCompiledModules(t *testing.T) {
	dir := t.TempDir()
	bus := core.NewEventBus()
	fired := make(chan struct{}, 8)
	bus.Register(core.EVENT_CODE_SHADER_CHANGED, t, func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		select {
		case fired <- struct{}{}:
		default:
		}
		return false
	})

	sw, err := NewShaderWatcher(dir, bus)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "volume.frag"), []byte("void main() {}"), 0o644))
	spv := filepath.Join(dir, "volume.frag.spv")
	require.NoError(t, os.WriteFile(spv, spirvHeader, 0o644))

	var drained []string
	assert.Eventually(t, func() bool {
		drained = append(drained, sw.Drain()...)
		return len(drained) > 0
	}, 5*time.Second, 10*time.Millisecond)
	for _, p := range drained {
		assert.Equal(t, spv, p)
	}
	assert.NotEmpty(t, fired)

	require.NoError(t, sw.Close())
	assert.Error(t, sw.Close())
}
