package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

type DepthPolicy string

const (
	// One depth buffer for every view, sized to the last (re)initialized one.
	DepthPolicyShared DepthPolicy = "shared"
	// One depth buffer per view, sized to that view.
	DepthPolicyPerView DepthPolicy = "per_view"
)

type Config struct {
	AppName    string `toml:"app_name"`
	EngineName string `toml:"engine_name"`
	Backend    string `toml:"backend"`
	LogLevel   string `toml:"log_level"`
	FrameDepth uint32 `toml:"frame_depth"`
	Debug      bool   `toml:"debug"`

	Swapchain SwapchainConfig `toml:"swapchain"`
	Depth     DepthConfig     `toml:"depth"`
	Shaders   ShaderConfig    `toml:"shaders"`
	Console   ConsoleConfig   `toml:"console"`
	Windows   WindowsConfig   `toml:"windows"`
}

type SwapchainConfig struct {
	Format      string `toml:"format"`
	BufferCount uint32 `toml:"buffer_count"`
	Buffering   string `toml:"buffering"`
}

type DepthConfig struct {
	Format string      `toml:"format"`
	Policy DepthPolicy `toml:"policy"`
}

type ShaderConfig struct {
	Dir   string `toml:"dir"`
	Watch bool   `toml:"watch"`

	// Workers compiling programs concurrently.
	Workers int `toml:"workers"`

	// CompilerOverride forces a compiler family ("naga" or "dxc").
	CompilerOverride string `toml:"compiler_override"`
}

type ConsoleConfig struct {
	Capacity int `toml:"capacity"`
}

type WindowConfig struct {
	Title  string `toml:"title"`
	X      uint32 `toml:"x"`
	Y      uint32 `toml:"y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type WindowsConfig struct {
	Game WindowConfig `toml:"game"`
	Edit WindowConfig `toml:"edit"`
}

func Default() *Config {
	return &Config{
		AppName:    "Anima Editor",
		EngineName: "Anima Engine",
		Backend:    metadata.GraphicsAPIVulkan.String(),
		LogLevel:   core.DebugLevel.String(),
		FrameDepth: 3,
		Swapchain: SwapchainConfig{
			Format:      metadata.ResourceFormatR8G8B8A8Unorm.String(),
			BufferCount: 3,
			Buffering:   metadata.FrameBufferingTriple.String(),
		},
		Depth: DepthConfig{
			Format: metadata.ResourceFormatD32Float.String(),
			Policy: DepthPolicyShared,
		},
		Shaders: ShaderConfig{
			Dir:     "assets/shaders",
			Watch:   true,
			Workers: 2,
		},
		Console: ConsoleConfig{
			Capacity: core.DefaultConsoleCapacity,
		},
		Windows: WindowsConfig{
			Game: WindowConfig{Title: "Game", X: 100, Y: 100, Width: 800, Height: 600},
			Edit: WindowConfig{Title: "Edit", X: 920, Y: 100, Width: 800, Height: 600},
		},
	}
}

// Load overlays the TOML file at path on top of Default. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			core.LogWarn("config file '%s' not found, using defaults", path)
			return cfg, nil
		}
		return nil, err
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("config '%s': %w", path, err)
	}
	return cfg, nil
}

func Parse(data []byte, cfg *Config) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return err
	}
	return cfg.Validate()
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := c.API(); err != nil {
		errs = append(errs, err)
	}
	if _, ok := core.ParseLogLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("unknown log_level `%s`", c.LogLevel))
	}
	if c.FrameDepth < 2 || c.FrameDepth > 3 {
		errs = append(errs, fmt.Errorf("frame_depth must be 2 or 3, got %d", c.FrameDepth))
	}
	if c.Swapchain.BufferCount == 0 {
		errs = append(errs, errors.New("swapchain.buffer_count must be at least 1"))
	}
	if f, err := c.SwapchainFormat(); err != nil {
		errs = append(errs, err)
	} else if f.IsDepth() {
		errs = append(errs, fmt.Errorf("swapchain.format %s is a depth format", f))
	}
	if _, err := c.FrameBuffering(); err != nil {
		errs = append(errs, err)
	}
	if f, err := c.DepthFormat(); err != nil {
		errs = append(errs, err)
	} else if !f.IsDepth() {
		errs = append(errs, fmt.Errorf("depth.format %s is not a depth format", f))
	}
	if c.Depth.Policy != DepthPolicyShared && c.Depth.Policy != DepthPolicyPerView {
		errs = append(errs, fmt.Errorf("unknown depth.policy `%s`", c.Depth.Policy))
	}
	if c.Shaders.Workers < 1 {
		errs = append(errs, errors.New("shaders.workers must be at least 1"))
	}
	switch c.Shaders.CompilerOverride {
	case "", "naga", "dxc":
	default:
		errs = append(errs, fmt.Errorf("unknown shaders.compiler_override `%s`", c.Shaders.CompilerOverride))
	}
	return errors.Join(errs...)
}

func (c *Config) API() (metadata.GraphicsAPI, error) {
	return metadata.ParseGraphicsAPI(c.Backend)
}

func (c *Config) Level() core.LogLevel {
	l, _ := core.ParseLogLevel(c.LogLevel)
	return l
}

func (c *Config) SwapchainFormat() (metadata.ResourceFormat, error) {
	return metadata.ParseResourceFormat(c.Swapchain.Format)
}

func (c *Config) FrameBuffering() (metadata.FrameBuffering, error) {
	return metadata.ParseFrameBuffering(c.Swapchain.Buffering)
}

func (c *Config) DepthFormat() (metadata.ResourceFormat, error) {
	return metadata.ParseResourceFormat(c.Depth.Format)
}
