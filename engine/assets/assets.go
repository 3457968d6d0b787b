package assets

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/assets/loaders"
	"github.com/spaghettifunk/voxen/engine/core"
)

// LoadShader reads a compiled shader through the file worker and decodes it.
func LoadShader(ctx context.Context, fw *FileWorker, path string) (*loaders.Shader, error) {
	return load[*loaders.Shader](ctx, fw, path, &loaders.ShaderLoader{})
}

func load[T any](ctx context.Context, fw *FileWorker, path string, loader Loader[T]) (T, error) {
	data, err := fw.ReadBytes(path).Await(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return loader.Load(path, data)
}

// ShaderWatcher watches a shader directory and collects the compiled modules
// that changed. The render loop drains them between frames.
type ShaderWatcher struct {
	bus *core.EventBus

	mutex   sync.Mutex
	pending map[string]struct{}

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

// NewShaderWatcher starts watching dir and its sub-directories. bus may be
// nil; otherwise EVENT_CODE_SHADER_CHANGED is fired for every change.
func NewShaderWatcher(dir string, bus *core.EventBus) (*ShaderWatcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	sw := &ShaderWatcher{
		bus:      bus,
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		fsnotify: fsWatch,
	}
	if err := sw.watchRecursive(dir); err != nil {
		fsWatch.Close()
		return nil, err
	}
	go sw.start()

	core.LogInfo("Watching %s for shader changes.", dir)
	return sw, nil
}

// Drain returns the changed shader paths in lexical order and clears them.
func (sw *ShaderWatcher) Drain() []string {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()

	if len(sw.pending) == 0 {
		return nil
	}
	paths := make([]string, 0, len(sw.pending))
	for p := range sw.pending {
		paths = append(paths, p)
	}
	sw.pending = make(map[string]struct{})
	sort.Strings(paths)
	return paths
}

func (sw *ShaderWatcher) Close() error {
	sw.mutex.Lock()
	if sw.isClosed {
		sw.mutex.Unlock()
		return errors.New("shader watcher already closed")
	}
	sw.isClosed = true
	sw.mutex.Unlock()

	close(sw.done)
	<-sw.stopped
	return nil
}

func (sw *ShaderWatcher) start() {
	defer close(sw.stopped)
	for {
		select {
		case e, ok := <-sw.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := sw.watchRecursive(e.Name); err != nil {
						core.LogWarn("failed to watch %s: %s", e.Name, err)
					}
				}
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				sw.handleFileEvent(e.Name)
			}

		case err, ok := <-sw.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-sw.done:
			sw.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list.
func (sw *ShaderWatcher) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return sw.fsnotify.Add(walkPath)
		}
		return nil
	})
}

// Only compiled modules are reloaded, sources are compiled by mage.
func (sw *ShaderWatcher) handleFileEvent(path string) {
	if filepath.Ext(path) != ".spv" {
		return
	}
	sw.mutex.Lock()
	sw.pending[path] = struct{}{}
	sw.mutex.Unlock()

	core.LogDebug("Shader changed: %s", path)
	if sw.bus != nil {
		sw.bus.Fire(core.EVENT_CODE_SHADER_CHANGED, sw, core.EventContext{})
	}
}
