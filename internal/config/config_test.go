package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiln/internal/config"
)

func valid() config.Config {
	return config.Config{
		SampleRate:     48000,
		BlockSize:      256,
		MaxSignals:     64,
		SlotsPerSignal: 16,
		PoolSlots:      1 << 20,
		Backend:        "portaudio",
		LogFormat:      "console",
		LogLevel:       "info",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   error
	}{
		{"defaults", func(*config.Config) {}, nil},
		{"zero sample rate", func(c *config.Config) { c.SampleRate = 0 }, config.ErrInvalidSampleRate},
		{"negative block", func(c *config.Config) { c.BlockSize = -1 }, config.ErrInvalidBlockSize},
		{"no signals", func(c *config.Config) { c.MaxSignals = 0 }, config.ErrInvalidMaxSignals},
		{"no slots", func(c *config.Config) { c.SlotsPerSignal = 0 }, config.ErrInvalidSlabSize},
		{"no pool", func(c *config.Config) { c.PoolSlots = 0 }, config.ErrInvalidPoolSlots},
		{"bad backend", func(c *config.Config) { c.Backend = "jack" }, config.ErrInvalidBackend},
		{"bad format", func(c *config.Config) { c.LogFormat = "yaml" }, config.ErrInvalidLogFormat},
		{"bad level", func(c *config.Config) { c.LogLevel = "loud" }, config.ErrInvalidLogLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := config.Validate(cfg)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("KILN_SAMPLE_RATE", "44100")
	t.Setenv("KILN_BLOCK_SIZE", "128")
	t.Setenv("KILN_BACKEND", "sdl2")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 44100.0, cfg.SampleRate)
	assert.Equal(t, 128, cfg.BlockSize)
	assert.Equal(t, "sdl2", cfg.Backend)
	assert.Equal(t, 64, cfg.MaxSignals, "untouched values keep their defaults")
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("KILN_BLOCK_SIZE", "0")
	_, err := config.Load()
	assert.ErrorIs(t, err, config.ErrInvalidBlockSize)
}
