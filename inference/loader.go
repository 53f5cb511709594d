package inference

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultLoadTimeout bounds model loading end to end, including asset
// download. A session whose model cannot load within this window fails
// initialization rather than starting half-configured.
const DefaultLoadTimeout = 30 * time.Second

var (
	// ErrInitializationTimeout indicates the model did not finish loading
	// within the deadline.
	ErrInitializationTimeout = errors.New("inference: initialization timed out")

	// ErrModelLoad indicates the requested model could not be constructed.
	ErrModelLoad = errors.New("inference: model load failed")
)

// Built-in model identifiers.
const (
	// ModelSpectral is the self-contained spectral gate; it learns its
	// noise floor from the stream and needs no assets.
	ModelSpectral = "spectral"

	// ModelSpectralProfile is the spectral gate seeded with a pre-recorded
	// noise profile fetched from the asset source.
	ModelSpectralProfile = "spectral-profile"
)

// noiseProfileAsset is the asset name for ModelSpectralProfile.
const noiseProfileAsset = "noise-profile.bin"

// AssetSource fetches named model assets. Fetch must honour ctx
// cancellation.
type AssetSource interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// DirAssetSource serves assets from a local directory.
type DirAssetSource struct {
	Dir string
}

// Fetch reads the named file from the directory. Path separators in name
// are rejected so a model identifier cannot escape the asset directory.
func (s DirAssetSource) Fetch(_ context.Context, name string) ([]byte, error) {
	if filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid asset name %q", name)
	}
	return os.ReadFile(filepath.Join(s.Dir, name))
}

// HTTPAssetSource fetches assets from a base URL, typically the model CDN.
type HTTPAssetSource struct {
	BaseURL string
	Client  *http.Client
}

// Fetch downloads BaseURL/name.
func (s HTTPAssetSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	u, err := url.JoinPath(s.BaseURL, name)
	if err != nil {
		return nil, fmt.Errorf("building asset URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building asset request: %w", err)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching asset %q: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching asset %q: unexpected status %s", name, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// LoadConfig configures LoadRuntime.
type LoadConfig struct {
	// Strength is the suppression strength handed to the runtime, in [0, 1].
	Strength float64

	// Assets supplies model assets; required only for models that use them.
	Assets AssetSource

	// Timeout overrides DefaultLoadTimeout when positive.
	Timeout time.Duration
}

// LoadRuntime constructs the runtime for modelID under the load deadline.
// Timeouts surface as ErrInitializationTimeout, every other failure as
// ErrModelLoad; both leave no runtime behind.
func LoadRuntime(ctx context.Context, modelID string, cfg LoadConfig) (Runtime, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultLoadTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	rt, err := loadRuntime(ctx, modelID, cfg)
	if err != nil {
		if ctx.Err() != nil {
			logrus.WithFields(logrus.Fields{
				"function": "LoadRuntime",
				"model":    modelID,
				"timeout":  timeout.String(),
			}).Error("Model load timed out")
			return nil, fmt.Errorf("%w: model %q after %s", ErrInitializationTimeout, modelID, timeout)
		}
		return nil, fmt.Errorf("%w: model %q: %v", ErrModelLoad, modelID, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "LoadRuntime",
		"model":    modelID,
		"elapsed":  time.Since(start).String(),
	}).Info("Model runtime loaded")
	return rt, nil
}

func loadRuntime(ctx context.Context, modelID string, cfg LoadConfig) (Runtime, error) {
	switch modelID {
	case ModelSpectral:
		return NewSpectralGateRuntime(cfg.Strength, nil)

	case ModelSpectralProfile:
		if cfg.Assets == nil {
			return nil, fmt.Errorf("model %q requires an asset source", modelID)
		}
		raw, err := cfg.Assets.Fetch(ctx, noiseProfileAsset)
		if err != nil {
			return nil, fmt.Errorf("fetching noise profile: %w", err)
		}
		profile, err := parseNoiseProfile(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing noise profile: %w", err)
		}
		return NewSpectralGateRuntime(cfg.Strength, profile)

	default:
		return nil, fmt.Errorf("unknown model identifier %q", modelID)
	}
}

// parseNoiseProfile decodes a profile asset: little-endian float64
// magnitudes, one per frequency bin.
func parseNoiseProfile(raw []byte) ([]float64, error) {
	if len(raw) == 0 || len(raw)%8 != 0 {
		return nil, fmt.Errorf("profile length %d is not a multiple of 8", len(raw))
	}
	profile := make([]float64, len(raw)/8)
	for i := range profile {
		bits := binary.LittleEndian.Uint64(raw[i*8:])
		v := math.Float64frombits(bits)
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, fmt.Errorf("profile bin %d is not a valid magnitude", i)
		}
		profile[i] = v
	}
	return profile, nil
}
