package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	LogLevel   string         `json:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	ListenAddr string         `json:"listen_addr"`
	Audio      AudioConfig    `json:"audio"`
	Analysis   AnalysisConfig `json:"analysis"`
}

type AudioConfig struct {
	// DeviceName selects the input device; empty means the default device.
	DeviceName string `json:"device_name"`
}

type AnalysisConfig struct {
	SampleRate      int     `json:"sample_rate" validate:"gt=0"`
	Channels        int     `json:"channels" validate:"oneof=1 2"`
	BufferSize      int     `json:"buffer_size" validate:"gte=64,lte=8192"`
	FFTSize         int     `json:"fft_size" validate:"gte=64,lte=16384"`
	DownsampleBins  int     `json:"downsample_bins" validate:"gte=0,lte=8192"`
	RefreshRateHz   int     `json:"refresh_rate_hz" validate:"gte=1,lte=120"`
	IncludeTimeData bool    `json:"include_time_data"`
	Smoothing       bool    `json:"smoothing"`
	SmoothingFactor float64 `json:"smoothing_factor" validate:"gte=0,lte=1"`
}

var validate = validator.New()

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		LogLevel:   "info",
		ListenAddr: "127.0.0.1:8787",
		Audio: AudioConfig{
			DeviceName: "",
		},
		Analysis: AnalysisConfig{
			SampleRate:      48000,
			Channels:        1,
			BufferSize:      1024,
			FFTSize:         1024,
			DownsampleBins:  256,
			RefreshRateHz:   30,
			IncludeTimeData: false,
			Smoothing:       true,
			SmoothingFactor: 0.4,
		},
	}
}

// Validate checks the struct tags.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// Load reads the config from disk, or returns defaults when absent.
func Load() (*Config, error) {
	return loadFrom(configPath())
}

func loadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		// Only a missing file falls back to defaults; an unreadable one is
		// an error the caller must see.
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	path := configPath()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// configPath returns the platform-specific config file path.
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "audioscope", "config.json")
}
