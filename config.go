package voicecore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries the user-facing settings the media core consumes. These
// values are owned by external preference storage; the core only reads them.
type Config struct {
	NoiseSuppression NoiseSuppressionConfig `yaml:"noise_suppression"`
	Audio            AudioConfig            `yaml:"audio"`
	Bitrate          BitrateSettings        `yaml:"bitrate"`
}

// NoiseSuppressionConfig selects and tunes the noise-suppression processor.
type NoiseSuppressionConfig struct {
	// Model is the registered processor identifier, e.g. "spectral" or
	// "spectral-frame". Empty disables noise suppression entirely.
	Model string `yaml:"model"`

	// Strength is the dry/wet blend in [0, 1]: 0 passes the original signal,
	// 1 outputs only the processed signal.
	Strength float64 `yaml:"strength"`

	// ModelBaseURL optionally points model asset fetches at a remote CDN
	// instead of the local bundle.
	ModelBaseURL string `yaml:"model_base_url"`
}

// AudioConfig describes the host engine's fixed processing format and the
// user gain settings applied before and after processing.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"` // default: 48000
	BlockSize  int `yaml:"block_size"`  // host callback block, default: 480

	// PreGain scales the input before both the dry and wet paths. Must be
	// non-negative; 1.0 is unity.
	PreGain float64 `yaml:"pre_gain"`

	// MasterVolume scales the mixed output. 1.0 is unity.
	MasterVolume float64 `yaml:"master_volume"`
}

// BitrateSettings configures the adaptive bitrate controller.
type BitrateSettings struct {
	Start   uint32 `yaml:"start"`   // starting bitrate in bps, default: 64000
	Ceiling uint32 `yaml:"ceiling"` // negotiated maximum in bps; 0 means Start
	Min     uint32 `yaml:"min"`     // hard floor in bps, default: 32000

	// PollInterval is the stats poll period driving adaptation.
	PollInterval time.Duration `yaml:"poll_interval"` // default: 2s
}

// DefaultConfig returns the reference configuration: 48 kHz, 480-sample
// blocks, spectral noise suppression at full strength, 64 kbps starting
// bitrate with a 32 kbps floor.
func DefaultConfig() *Config {
	return &Config{
		NoiseSuppression: NoiseSuppressionConfig{
			Model:    "spectral",
			Strength: 1.0,
		},
		Audio: AudioConfig{
			SampleRate:   48000,
			BlockSize:    480,
			PreGain:      1.0,
			MasterVolume: 1.0,
		},
		Bitrate: BitrateSettings{
			Start:        64000,
			Ceiling:      64000,
			Min:          32000,
			PollInterval: 2 * time.Second,
		},
	}
}

// LoadConfig reads the YAML configuration file at path and returns a
// validated Config. Missing fields fall back to DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadConfigFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadConfigFromReader decodes a YAML config from r, applies defaults for
// absent fields, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if cfg.Bitrate.Ceiling == 0 {
		cfg.Bitrate.Ceiling = cfg.Bitrate.Start
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateConfig checks that cfg contains a coherent set of values and
// returns a joined error listing every failure found.
func ValidateConfig(cfg *Config) error {
	var errs []error

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.block_size must be positive, got %d", cfg.Audio.BlockSize))
	}
	if cfg.Audio.PreGain < 0 {
		errs = append(errs, fmt.Errorf("audio.pre_gain must be non-negative, got %f", cfg.Audio.PreGain))
	}
	if cfg.Audio.MasterVolume < 0 {
		errs = append(errs, fmt.Errorf("audio.master_volume must be non-negative, got %f", cfg.Audio.MasterVolume))
	}
	if cfg.NoiseSuppression.Strength < 0 || cfg.NoiseSuppression.Strength > 1 {
		errs = append(errs, fmt.Errorf("noise_suppression.strength must be in [0, 1], got %f", cfg.NoiseSuppression.Strength))
	}
	if cfg.Bitrate.Start == 0 {
		errs = append(errs, fmt.Errorf("bitrate.start must be positive"))
	}
	if cfg.Bitrate.Ceiling < cfg.Bitrate.Start {
		errs = append(errs, fmt.Errorf("bitrate.ceiling %d below bitrate.start %d", cfg.Bitrate.Ceiling, cfg.Bitrate.Start))
	}
	if cfg.Bitrate.Min > cfg.Bitrate.Start {
		errs = append(errs, fmt.Errorf("bitrate.min %d above bitrate.start %d", cfg.Bitrate.Min, cfg.Bitrate.Start))
	}
	if cfg.Bitrate.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("bitrate.poll_interval must be positive, got %s", cfg.Bitrate.PollInterval))
	}

	return errors.Join(errs...)
}
