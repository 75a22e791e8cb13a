// Package config loads kiln's process configuration from the environment
// (optionally seeded from a .env file). Every value is fixed at start; there
// is no hot reconfiguration.
package config

import (
	"errors"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrInvalidSampleRate = errors.New("sample_rate must be positive")
	ErrInvalidBlockSize  = errors.New("block_size must be positive")
	ErrInvalidMaxSignals = errors.New("max_signals must be positive")
	ErrInvalidSlabSize   = errors.New("slots_per_signal must be positive")
	ErrInvalidPoolSlots  = errors.New("pool_slots must be positive")
	ErrInvalidBackend    = errors.New("backend must be 'portaudio' or 'sdl2'")
	ErrInvalidLogFormat  = errors.New("log_format must be 'json' or 'console'")
	ErrInvalidLogLevel   = errors.New("log_level must be debug, info, warn, or error")
)

// Config is read from KILN_* environment variables.
type Config struct {
	SampleRate     float64 `envconfig:"SAMPLE_RATE" default:"48000"`
	BlockSize      int     `envconfig:"BLOCK_SIZE" default:"256"`
	MaxSignals     int     `envconfig:"MAX_SIGNALS" default:"64"`
	SlotsPerSignal int     `envconfig:"SLOTS_PER_SIGNAL" default:"16"`
	PoolSlots      int     `envconfig:"POOL_SLOTS" default:"1048576"`

	Backend     string `envconfig:"BACKEND" default:"portaudio"`
	ControlAddr string `envconfig:"CONTROL_ADDR" default:"127.0.0.1:7770"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:""`
	PresetPath  string `envconfig:"PRESETS" default:""`

	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads .env if present, then the environment, then validates.
func Load() (Config, error) {
	_ = godotenv.Load() // missing .env is fine
	var cfg Config
	if err := envconfig.Process("kiln", &cfg); err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

// Validate checks a configuration without loading it.
func Validate(cfg Config) error {
	switch {
	case cfg.SampleRate <= 0:
		return ErrInvalidSampleRate
	case cfg.BlockSize < 1:
		return ErrInvalidBlockSize
	case cfg.MaxSignals < 1:
		return ErrInvalidMaxSignals
	case cfg.SlotsPerSignal < 1:
		return ErrInvalidSlabSize
	case cfg.PoolSlots < 1:
		return ErrInvalidPoolSlots
	}
	if cfg.Backend != "portaudio" && cfg.Backend != "sdl2" {
		return ErrInvalidBackend
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return ErrInvalidLogFormat
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	return nil
}
