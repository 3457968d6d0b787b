package engine

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

// Initialize runs once the renderer is ready. Volumes are added here.
type Initialize func(e *Engine) error
type Update func(deltaTime float64) error

// Render returns the push constants for the frame.
type Render func(deltaTime float64) ([]byte, error)
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
