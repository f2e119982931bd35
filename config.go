package cloudfx

import (
	"errors"
	"fmt"
	"runtime"
)

var ErrInvalidConfig = errors.New("cloudfx: invalid config")

// Config drives the viewer and the cloud module.
type Config struct {
	Width  int
	Height int
	Title  string

	// VolumePath is the .cvdb file to render. Empty uses a procedural
	// cloud generated at startup.
	VolumePath string
	// PresetPath is an optional JSON settings preset.
	PresetPath string

	// Workers bounds concurrent volume decodes.
	Workers int
	Debug   bool
}

func DefaultConfig() Config {
	return Config{
		Width:   1280,
		Height:  720,
		Title:   "Volumetric Clouds",
		Workers: max(1, runtime.NumCPU()/2),
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Width <= 0 {
		c.Width = def.Width
	}
	if c.Height <= 0 {
		c.Height = def.Height
	}
	if c.Title == "" {
		c.Title = def.Title
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	return c
}

func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: window size %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	if c.Width > 16384 || c.Height > 16384 {
		return fmt.Errorf("%w: window size %dx%d exceeds 16384", ErrInvalidConfig, c.Width, c.Height)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be > 0, got %d", ErrInvalidConfig, c.Workers)
	}
	return nil
}
