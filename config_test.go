package voicecore

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)
	require.NoError(t, ValidateConfig(cfg))

	assert.Equal(t, "spectral", cfg.NoiseSuppression.Model)
	assert.Equal(t, 1.0, cfg.NoiseSuppression.Strength)
	assert.Equal(t, 48000, cfg.Audio.SampleRate)
	assert.Equal(t, 480, cfg.Audio.BlockSize)
	assert.Equal(t, uint32(64000), cfg.Bitrate.Start)
	assert.Equal(t, uint32(32000), cfg.Bitrate.Min)
	assert.Equal(t, 2*time.Second, cfg.Bitrate.PollInterval)
}

func TestLoadConfigFromReader(t *testing.T) {
	yaml := `
noise_suppression:
  model: spectral-frame
  strength: 0.75
audio:
  pre_gain: 1.5
bitrate:
  start: 48000
  ceiling: 96000
`
	cfg, err := LoadConfigFromReader(strings.NewReader(yaml))
	require.NoError(t, err)

	// Explicit values stick.
	assert.Equal(t, "spectral-frame", cfg.NoiseSuppression.Model)
	assert.Equal(t, 0.75, cfg.NoiseSuppression.Strength)
	assert.Equal(t, 1.5, cfg.Audio.PreGain)
	assert.Equal(t, uint32(48000), cfg.Bitrate.Start)
	assert.Equal(t, uint32(96000), cfg.Bitrate.Ceiling)

	// Absent fields keep defaults.
	assert.Equal(t, 48000, cfg.Audio.SampleRate)
	assert.Equal(t, 480, cfg.Audio.BlockSize)
	assert.Equal(t, 2*time.Second, cfg.Bitrate.PollInterval)
}

func TestLoadConfigFromReaderEmptyInput(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFromReaderZeroCeilingDefaultsToStart(t *testing.T) {
	yaml := `
bitrate:
  start: 80000
`
	cfg, err := LoadConfigFromReader(strings.NewReader(yaml))
	require.NoError(t, err)
	assert.Equal(t, uint32(80000), cfg.Bitrate.Ceiling)
}

func TestLoadConfigFromReaderRejectsUnknownFields(t *testing.T) {
	yaml := `
noise_supression:
  model: spectral
`
	_, err := LoadConfigFromReader(strings.NewReader(yaml))
	assert.Error(t, err, "misspelled section must be rejected, not silently ignored")
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{"negative pre-gain", func(c *Config) { c.Audio.PreGain = -0.1 }, "pre_gain"},
		{"zero block size", func(c *Config) { c.Audio.BlockSize = 0 }, "block_size"},
		{"strength above one", func(c *Config) { c.NoiseSuppression.Strength = 1.5 }, "strength"},
		{"zero start bitrate", func(c *Config) { c.Bitrate.Start = 0 }, "bitrate.start"},
		{"ceiling below start", func(c *Config) { c.Bitrate.Ceiling = 1000 }, "ceiling"},
		{"min above start", func(c *Config) { c.Bitrate.Min = 999999 }, "min"},
		{"zero poll interval", func(c *Config) { c.Bitrate.PollInterval = 0 }, "poll_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := ValidateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.substr)
		})
	}
}

func TestValidateConfigJoinsAllFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audio.PreGain = -1
	cfg.Bitrate.Start = 0

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pre_gain")
	assert.Contains(t, err.Error(), "bitrate.start")
}
