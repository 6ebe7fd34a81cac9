package engine

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/spaghettifunk/scenebake/engine/core"
	"github.com/spaghettifunk/scenebake/engine/math"
	"github.com/spaghettifunk/scenebake/engine/renderer"
)

const maxPoolLanes = 16

type PoolConfig struct {
	// Enabled lets models that ask for workers use the shared transform pool.
	Enabled bool `toml:"enabled" yaml:"enabled"`
	// Lanes is the number of transform lanes. 0 picks one per CPU.
	Lanes             int  `toml:"lanes" yaml:"lanes"`
	BalanceByVertices bool `toml:"balance_by_vertices" yaml:"balance_by_vertices"`
}

type TexturesConfig struct {
	DecodeConcurrency int `toml:"decode_concurrency" yaml:"decode_concurrency"`
}

type TestbedConfig struct {
	// Model is the locator loaded by the testbed.
	Model      string `toml:"model" yaml:"model"`
	Instances  int    `toml:"instances" yaml:"instances"`
	UseWorkers bool   `toml:"use_workers" yaml:"use_workers"`
	// Frames stops the testbed after this many frames. 0 runs until interrupted.
	Frames int `toml:"frames" yaml:"frames"`
}

type ApplicationConfig struct {
	// The application name used in logs.
	Name     string        `toml:"name" yaml:"name"`
	LogLevel core.LogLevel `toml:"log_level" yaml:"log_level"`
	// AssetsDir is the directory relative locators are resolved against.
	AssetsDir   string                `toml:"assets_dir" yaml:"assets_dir"`
	FrameRate   int                   `toml:"frame_rate" yaml:"frame_rate"`
	Renderer    renderer.RendererType `toml:"renderer" yaml:"renderer"`
	LoadWorkers int                   `toml:"load_workers" yaml:"load_workers"`

	Pool     PoolConfig     `toml:"pool" yaml:"pool"`
	Textures TexturesConfig `toml:"textures" yaml:"textures"`
	Testbed  TestbedConfig  `toml:"testbed" yaml:"testbed"`
}

func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Name:        "Scenebake",
		LogLevel:    core.InfoLevel,
		AssetsDir:   "assets",
		FrameRate:   60,
		Renderer:    renderer.Headless,
		LoadWorkers: 2,
		Pool: PoolConfig{
			Enabled: true,
		},
		Textures: TexturesConfig{
			DecodeConcurrency: 4,
		},
		Testbed: TestbedConfig{
			Instances:  1,
			UseWorkers: true,
		},
	}
}

/**
 * @brief Reads the configuration at path on top of the defaults. The format is
 * picked from the extension: .toml, .yaml or .yml.
 */
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultApplicationConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(config)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(config)
	default:
		err = fmt.Errorf("unknown configuration format '%s'", filepath.Ext(path))
	}
	if err != nil {
		err = fmt.Errorf("reading %s: %w: %s", path, core.ErrInvalidConfig, err)
		core.LogError(err.Error())
		return nil, err
	}

	if err := config.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return config, nil
}

func (c *ApplicationConfig) Validate() error {
	switch {
	case c.FrameRate <= 0:
		return fmt.Errorf("frame_rate must be positive, got %d: %w", c.FrameRate, core.ErrInvalidConfig)
	case c.Pool.Lanes < 0:
		return fmt.Errorf("pool.lanes must not be negative, got %d: %w", c.Pool.Lanes, core.ErrInvalidConfig)
	case c.Textures.DecodeConcurrency < 1:
		return fmt.Errorf("textures.decode_concurrency must be at least 1, got %d: %w", c.Textures.DecodeConcurrency, core.ErrInvalidConfig)
	case c.LoadWorkers < 1:
		return fmt.Errorf("load_workers must be at least 1, got %d: %w", c.LoadWorkers, core.ErrInvalidConfig)
	case c.Testbed.Instances < 0 || c.Testbed.Frames < 0:
		return fmt.Errorf("testbed instances and frames must not be negative: %w", core.ErrInvalidConfig)
	}
	return nil
}

/** @brief The configured lane count, or one lane per CPU clamped to [1, 16]. */
func (c *ApplicationConfig) LaneCount() int {
	if c.Pool.Lanes > 0 {
		return c.Pool.Lanes
	}
	return math.Clamp(runtime.NumCPU(), 1, maxPoolLanes)
}
