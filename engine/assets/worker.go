package assets

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/spaghettifunk/voxen/engine/core"
)

type readJob struct {
	path   string
	future *core.Future[[]byte]
}

// FileWorker reads files on a fixed set of goroutines so the render thread
// never blocks on disk.
type FileWorker struct {
	jobs chan readJob
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewFileWorker(workers int) *FileWorker {
	if workers < 1 {
		workers = 1
	}
	fw := &FileWorker{
		jobs: make(chan readJob, 64),
	}
	for i := 0; i < workers; i++ {
		fw.wg.Add(1)
		go fw.run()
	}
	core.LogDebug("File worker started with %d goroutine(s).", workers)
	return fw
}

func (fw *FileWorker) run() {
	defer fw.wg.Done()
	for job := range fw.jobs {
		data, err := os.ReadFile(job.path)
		if err != nil {
			job.future.Reject(errors.Wrapf(err, "read %s", job.path))
			continue
		}
		job.future.Resolve(data)
	}
}

// ReadBytes queues a read of path. After Close the future is rejected with
// core.ErrClosed.
func (fw *FileWorker) ReadBytes(path string) *core.Future[[]byte] {
	f := core.NewFuture[[]byte]()

	fw.mu.RLock()
	defer fw.mu.RUnlock()
	if fw.closed {
		f.Reject(errors.Wrapf(core.ErrClosed, "read %s", path))
		return f
	}
	fw.jobs <- readJob{path: path, future: f}
	return f
}

// Close finishes the queued reads and stops the goroutines.
func (fw *FileWorker) Close() {
	fw.mu.Lock()
	if fw.closed {
		fw.mu.Unlock()
		return
	}
	fw.closed = true
	close(fw.jobs)
	fw.mu.Unlock()

	fw.wg.Wait()
}
