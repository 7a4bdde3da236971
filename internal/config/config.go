// Package config provides configuration management for the talking-head core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// CameraView selects the framing preset for the avatar camera.
type CameraView string

const (
	ViewUpper CameraView = "upper" // head and shoulders
	ViewFull  CameraView = "full"  // full body
)

// Config holds all core configuration
type Config struct {
	Avatar  AvatarConfig  `mapstructure:"avatar"`
	Audio   AudioConfig   `mapstructure:"audio"`
	Ingress IngressConfig `mapstructure:"ingress"`
	Window  WindowConfig  `mapstructure:"window"`
	Log     LogConfig     `mapstructure:"log"`
}

// AvatarConfig configures lip-sync and procedural motion
type AvatarConfig struct {
	LipsyncLang        string     `mapstructure:"lipsync_lang"` // phoneme mapper language, e.g. "en"
	CameraView         CameraView `mapstructure:"camera_view"`
	ModelRoot          string     `mapstructure:"model_root"` // armature node name to locate
	IdleEyeContact     float32    `mapstructure:"idle_eye_contact"`
	SpeakingEyeContact float32    `mapstructure:"speaking_eye_contact"`
	IdleHeadMove       float32    `mapstructure:"idle_head_move"`
	SpeakingHeadMove   float32    `mapstructure:"speaking_head_move"`
}

// AudioConfig configures playback
type AudioConfig struct {
	SampleRate int `mapstructure:"sample_rate"`
	// LatencyCompensation is the scheduling delay added to viseme timing to
	// match output buffering latency.
	LatencyCompensation time.Duration `mapstructure:"latency_compensation"`
}

// IngressConfig configures the websocket speech ingress
type IngressConfig struct {
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
}

// WindowConfig configures the render surface
type WindowConfig struct {
	Title  string `mapstructure:"title"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
	VSync  bool   `mapstructure:"vsync"`
	MSAA   int    `mapstructure:"msaa"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"` // log file directory, empty for console only
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Avatar: AvatarConfig{
			LipsyncLang:        "en",
			CameraView:         ViewUpper,
			ModelRoot:          "Armature",
			IdleEyeContact:     0.2,
			SpeakingEyeContact: 0.5,
			IdleHeadMove:       0.3,
			SpeakingHeadMove:   1.0,
		},
		Audio: AudioConfig{
			SampleRate:          22050,
			LatencyCompensation: 100 * time.Millisecond,
		},
		Ingress: IngressConfig{
			URL:            "",
			ReconnectDelay: 5 * time.Second,
			MaxReconnects:  10,
		},
		Window: WindowConfig{
			Title:  "Talking Head",
			Width:  800,
			Height: 600,
			VSync:  true,
			MSAA:   4,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks for unusable values and fills gaps with defaults.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("config: sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Avatar.CameraView != ViewUpper && c.Avatar.CameraView != ViewFull {
		return fmt.Errorf("config: camera_view must be %q or %q, got %q", ViewUpper, ViewFull, c.Avatar.CameraView)
	}
	if c.Avatar.LipsyncLang == "" {
		c.Avatar.LipsyncLang = "en"
	}
	if c.Avatar.ModelRoot == "" {
		c.Avatar.ModelRoot = "Armature"
	}
	return nil
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configDir, err := GetConfigDir()
	if err != nil {
		return cfg, err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("TALKINGHEAD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LoadFile reads configuration from an explicit path, with defaults applied.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("avatar", cfg.Avatar)
	viper.Set("audio", cfg.Audio)
	viper.Set("ingress", cfg.Ingress)
	viper.Set("window", cfg.Window)
	viper.Set("log", cfg.Log)

	return viper.WriteConfigAs(filepath.Join(configDir, "config.yaml"))
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".talkinghead"), nil
}
