// Package config loads the application settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SIGNA_CAMERA_DEVICE.
const EnvPrefix = "SIGNA"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Camera   CameraConfig   `mapstructure:"camera"`
	Detector DetectorConfig `mapstructure:"detector"`
	Model    ModelConfig    `mapstructure:"model"`
	Word     WordConfig     `mapstructure:"word"`
	UI       UIConfig       `mapstructure:"ui"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	Mode      string `mapstructure:"mode"`
	StaticDir string `mapstructure:"static_dir"`
}

type CameraConfig struct {
	Device       int           `mapstructure:"device"`
	Width        int           `mapstructure:"width"`
	Height       int           `mapstructure:"height"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
}

type DetectorConfig struct {
	Script        string  `mapstructure:"script"`
	Python        string  `mapstructure:"python"`
	MinConfidence float64 `mapstructure:"min_confidence"`
}

type ModelConfig struct {
	DB   string `mapstructure:"db"`
	Name string `mapstructure:"name"`
}

type WordConfig struct {
	MinConfidence float64 `mapstructure:"min_confidence"`
	StableFrames  int     `mapstructure:"stable_frames"`
}

type UIConfig struct {
	// Mode is one of "window", "tray" or "headless".
	Mode string `mapstructure:"mode"`
}

type LogConfig struct {
	Mode string `mapstructure:"mode"`
}

// UI modes.
const (
	UIWindow   = "window"
	UITray     = "tray"
	UIHeadless = "headless"
)

// Load reads the YAML file at configPath on top of the defaults. An empty
// path loads the defaults and environment overrides only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.UI.Mode {
	case UIWindow, UITray, UIHeadless:
	default:
		return fmt.Errorf("invalid ui.mode %q", c.UI.Mode)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("invalid camera resolution %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.TickInterval <= 0 {
		return fmt.Errorf("invalid camera.tick_interval %v", c.Camera.TickInterval)
	}
	if c.Word.MinConfidence < 0 || c.Word.MinConfidence > 100 {
		return fmt.Errorf("word.min_confidence must be within [0, 100], got %v", c.Word.MinConfidence)
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}
	return nil
}

// DataDir returns the per-user directory holding the model database,
// scripts and web assets.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".signa"
	}
	return filepath.Join(home, ".signa")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.static_dir", "")

	v.SetDefault("camera.device", 0)
	v.SetDefault("camera.width", 640)
	v.SetDefault("camera.height", 480)
	v.SetDefault("camera.tick_interval", 33*time.Millisecond)
	v.SetDefault("camera.read_timeout", 2*time.Second)

	v.SetDefault("detector.script", "")
	v.SetDefault("detector.python", "")
	v.SetDefault("detector.min_confidence", 0.5)

	v.SetDefault("model.db", filepath.Join(DataDir(), "signa.db"))
	v.SetDefault("model.name", "default")

	v.SetDefault("word.min_confidence", 0.0)
	v.SetDefault("word.stable_frames", 1)

	v.SetDefault("ui.mode", UIWindow)

	v.SetDefault("log.mode", "debug")
}
