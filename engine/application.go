package engine

import (
	"github.com/spaghettifunk/voxen/engine/core"
)

type ApplicationConfig struct {
	// Window, renderer and asset settings, usually read from config.toml.
	Config *core.Config
}

// NewApplicationConfig loads the configuration at path on top of the
// defaults.
func NewApplicationConfig(path string) (*ApplicationConfig, error) {
	cfg, err := core.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return &ApplicationConfig{Config: cfg}, nil
}
