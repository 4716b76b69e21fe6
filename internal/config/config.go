package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDataDir    = ".femstage"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "console"
	DefaultFPS        = 20
	DefaultPlotWidth  = 60
	DefaultPlotHeight = 12
	DefaultDebounce   = 300 * time.Millisecond
)

// Config is the CLI configuration. Project settings live in the project
// parameter files, not here.
type Config struct {
	DataDir string      `yaml:"data_dir"`
	Log     LogConfig   `yaml:"log"`
	Live    LiveConfig  `yaml:"live"`
	Watch   WatchConfig `yaml:"watch"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type LiveConfig struct {
	FPS        int `yaml:"fps"`
	PlotWidth  int `yaml:"plot_width"`
	PlotHeight int `yaml:"plot_height"`
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Live: LiveConfig{
			FPS:        DefaultFPS,
			PlotWidth:  DefaultPlotWidth,
			PlotHeight: DefaultPlotHeight,
		},
		Watch: WatchConfig{
			Debounce: DefaultDebounce,
		},
	}
}

// Load decodes the file at path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, with the defaults when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is empty")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	if c.Live.FPS <= 0 {
		return fmt.Errorf("live.fps must be positive, got %d", c.Live.FPS)
	}
	if c.Live.PlotWidth <= 0 || c.Live.PlotHeight <= 0 {
		return fmt.Errorf("live plot size must be positive, got %dx%d", c.Live.PlotWidth, c.Live.PlotHeight)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	return nil
}

// RunsDir is where stored runs are kept.
func (c *Config) RunsDir() string { return filepath.Join(c.DataDir, "runs") }

// FrameInterval is the redraw period of the live view.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.Live.FPS)
}
