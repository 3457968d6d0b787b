package core

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type ApplicationSection struct {
	Name   string `toml:"name"`
	PosX   uint32 `toml:"pos_x"`
	PosY   uint32 `toml:"pos_y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type LogSection struct {
	Level  string `toml:"level"`
	Prefix string `toml:"prefix"`
}

type RendererSection struct {
	// Enables VK_LAYER_KHRONOS_validation and the debug report callback.
	Validation bool `toml:"validation"`
	// Interval between two polls of the fence waiter, in microseconds.
	FencePollIntervalUS int64 `toml:"fence_poll_interval_us"`
}

type AssetsSection struct {
	ShaderDir   string `toml:"shader_dir"`
	HotReload   bool   `toml:"hot_reload"`
	FileWorkers int    `toml:"file_workers"`
}

type Config struct {
	Application ApplicationSection `toml:"application"`
	Log         LogSection         `toml:"log"`
	Renderer    RendererSection    `toml:"renderer"`
	Assets      AssetsSection      `toml:"assets"`
}

func DefaultConfig() *Config {
	return &Config{
		Application: ApplicationSection{
			Name:   "Voxen",
			PosX:   100,
			PosY:   100,
			Width:  1440,
			Height: 810,
		},
		Log: LogSection{
			Level:  "debug",
			Prefix: "Voxen 🧊 ",
		},
		Renderer: RendererSection{
			Validation:          true,
			FencePollIntervalUS: 250,
		},
		Assets: AssetsSection{
			ShaderDir:   "assets/shaders",
			HotReload:   true,
			FileWorkers: 1,
		},
	}
}

// LoadConfig reads a TOML file on top of the defaults. A missing file is not
// an error, the defaults are returned as they are.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		LogInfo("config file `%s` not found, using defaults", path)
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("failed to decode config `%s`: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(c)
}

func (c *Config) Validate() error {
	if c.Application.Width == 0 || c.Application.Height == 0 {
		return fmt.Errorf("window extent must be non-zero, got %dx%d", c.Application.Width, c.Application.Height)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("unknown log level `%s`", c.Log.Level)
	}
	if c.Renderer.FencePollIntervalUS <= 0 {
		return fmt.Errorf("fence poll interval must be positive, got %d", c.Renderer.FencePollIntervalUS)
	}
	if c.Assets.FileWorkers <= 0 {
		return fmt.Errorf("file workers must be positive, got %d", c.Assets.FileWorkers)
	}
	return nil
}

func (c *Config) FencePollInterval() time.Duration {
	return time.Duration(c.Renderer.FencePollIntervalUS) * time.Microsecond
}
