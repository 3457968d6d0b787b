package core

import "sync"

const AVG_COUNT uint8 = 30

// Metrics keeps the frame timing average together with the renderer counters.
type Metrics struct {
	mu sync.Mutex

	frameAVGCounter    uint8
	msTimes            [AVG_COUNT]float64
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64

	framesDrawn   uint64
	framesSkipped uint64
	recreations   uint64
	uploads       uint64
}

type MetricsSnapshot struct {
	FPS           float64
	FrameTimeMS   float64
	FramesDrawn   uint64
	FramesSkipped uint64
	Recreations   uint64
	Uploads       uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Update records the duration of one frame in seconds.
func (m *Metrics) Update(frameElapsedTime float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Calculate frame ms average
	frameMS := frameElapsedTime * 1000.0
	m.msTimes[m.frameAVGCounter] = frameMS
	if m.frameAVGCounter == AVG_COUNT-1 {
		m.msAvg = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			m.msAvg += m.msTimes[i]
		}
		m.msAvg /= float64(AVG_COUNT)
	}
	m.frameAVGCounter++
	m.frameAVGCounter %= AVG_COUNT

	// Calculate Frames per second.
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}

	// Count all Frames.
	m.frames++
}

func (m *Metrics) FrameDrawn() {
	m.mu.Lock()
	m.framesDrawn++
	m.mu.Unlock()
}

func (m *Metrics) FrameSkipped() {
	m.mu.Lock()
	m.framesSkipped++
	m.mu.Unlock()
}

func (m *Metrics) SwapchainRecreated() {
	m.mu.Lock()
	m.recreations++
	m.mu.Unlock()
}

func (m *Metrics) UploadCompleted() {
	m.mu.Lock()
	m.uploads++
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		FPS:           m.fps,
		FrameTimeMS:   m.msAvg,
		FramesDrawn:   m.framesDrawn,
		FramesSkipped: m.framesSkipped,
		Recreations:   m.recreations,
		Uploads:       m.uploads,
	}
}
