// Package config loads the application configuration from the environment and optional
// .env files.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gobuffalo/envy"
	log "github.com/sirupsen/logrus"
)

const (
	KeyTitle          = "SQUARE_TITLE"
	KeyWidth          = "SQUARE_WIDTH"
	KeyHeight         = "SQUARE_HEIGHT"
	KeyFramesInFlight = "SQUARE_FRAMES_IN_FLIGHT"
	KeyFenceTimeout   = "SQUARE_FENCE_TIMEOUT"
	KeyShaderDir      = "SQUARE_SHADER_DIR"
	KeyMesh           = "SQUARE_MESH"
	KeyValidation     = "SQUARE_VALIDATION"
	KeyPresentMode    = "SQUARE_PRESENT_MODE"
	KeyLogLevel       = "SQUARE_LOG_LEVEL"
	KeyStatsInterval  = "SQUARE_STATS_INTERVAL"
)

// PresentMode selects the swapchain presentation mode. Mailbox falls back to FIFO when the
// surface does not offer it.
type PresentMode string

const (
	PresentModeFIFO    PresentMode = "fifo"
	PresentModeMailbox PresentMode = "mailbox"
)

// Configuration defines the whole application configuration
type Configuration struct {
	Window   WindowConfiguration
	Renderer RendererConfiguration
	LogLevel log.Level
}

// WindowConfiguration is used to configure the SDL window
type WindowConfiguration struct {
	Title  string
	Width  int
	Height int
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	// FramesInFlight caps how many frames the CPU may record ahead of the GPU.
	FramesInFlight int
	// FenceTimeout is the slice length of a frame fence wait. The wait repeats until the
	// fence signals, so this only bounds how often cancellation is checked.
	FenceTimeout time.Duration

	ShaderDirectory string
	// MeshFile is an optional OBJ file drawn instead of the built-in square.
	MeshFile string

	PresentMode PresentMode
	Validation  bool

	// StatsInterval is the number of presented frames between timing reports. 0 disables them.
	StatsInterval int
}

// Default returns the configuration used when no variable is set.
func Default() Configuration {
	return Configuration{
		Window: WindowConfiguration{
			Title:  "Vulkan Square",
			Width:  800,
			Height: 600,
		},
		Renderer: RendererConfiguration{
			FramesInFlight:  2,
			FenceTimeout:    100 * time.Millisecond,
			ShaderDirectory: "shaders",
			PresentMode:     PresentModeMailbox,
			StatsInterval:   600,
		},
		LogLevel: log.InfoLevel,
	}
}

// Load reads the given .env files on top of the environment and builds the configuration.
// envy already picks up ./.env on start, so files is usually empty.
func Load(files ...string) (Configuration, error) {
	if len(files) > 0 {
		if err := envy.Load(files...); err != nil {
			return Configuration{}, errors.Wrapf(err, "config: loading %s", strings.Join(files, ", "))
		}
	}

	return FromEnv()
}

// FromEnv builds the configuration from the variables currently known to envy.
func FromEnv() (Configuration, error) {
	cfg := Default()
	var err error

	cfg.Window.Title = envy.Get(KeyTitle, cfg.Window.Title)
	if cfg.Window.Width, err = intVar(KeyWidth, cfg.Window.Width); err != nil {
		return cfg, err
	}
	if cfg.Window.Height, err = intVar(KeyHeight, cfg.Window.Height); err != nil {
		return cfg, err
	}

	if cfg.Renderer.FramesInFlight, err = intVar(KeyFramesInFlight, cfg.Renderer.FramesInFlight); err != nil {
		return cfg, err
	}
	if cfg.Renderer.FenceTimeout, err = durationVar(KeyFenceTimeout, cfg.Renderer.FenceTimeout); err != nil {
		return cfg, err
	}
	cfg.Renderer.ShaderDirectory = envy.Get(KeyShaderDir, cfg.Renderer.ShaderDirectory)
	cfg.Renderer.MeshFile = envy.Get(KeyMesh, cfg.Renderer.MeshFile)
	cfg.Renderer.PresentMode = PresentMode(strings.ToLower(envy.Get(KeyPresentMode, string(cfg.Renderer.PresentMode))))
	if cfg.Renderer.Validation, err = boolVar(KeyValidation, cfg.Renderer.Validation); err != nil {
		return cfg, err
	}
	if cfg.Renderer.StatsInterval, err = intVar(KeyStatsInterval, cfg.Renderer.StatsInterval); err != nil {
		return cfg, err
	}

	if raw := envy.Get(KeyLogLevel, ""); raw != "" {
		if cfg.LogLevel, err = log.ParseLevel(raw); err != nil {
			return cfg, errors.Wrapf(err, "config: %s", KeyLogLevel)
		}
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration for values the renderer cannot work with.
func (c Configuration) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Newf("config: window size must be positive, got %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Renderer.FramesInFlight < 1 {
		return errors.Newf("config: %s must be at least 1, got %d", KeyFramesInFlight, c.Renderer.FramesInFlight)
	}
	if c.Renderer.FenceTimeout <= 0 {
		return errors.Newf("config: %s must be positive, got %s", KeyFenceTimeout, c.Renderer.FenceTimeout)
	}
	if c.Renderer.StatsInterval < 0 {
		return errors.Newf("config: %s must not be negative", KeyStatsInterval)
	}
	switch c.Renderer.PresentMode {
	case PresentModeFIFO, PresentModeMailbox:
	default:
		return errors.Newf("config: unknown present mode %q", c.Renderer.PresentMode)
	}
	return nil
}

func intVar(key string, def int) (int, error) {
	raw := envy.Get(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def, errors.Wrapf(err, "config: %s", key)
	}
	return v, nil
}

func boolVar(key string, def bool) (bool, error) {
	raw := envy.Get(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, errors.Wrapf(err, "config: %s", key)
	}
	return v, nil
}

func durationVar(key string, def time.Duration) (time.Duration, error) {
	raw := envy.Get(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return def, errors.Wrapf(err, "config: %s", key)
	}
	return v, nil
}
