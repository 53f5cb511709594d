package inference

import (
	"context"
	"encoding/binary"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeProfile(magnitudes []float64) []byte {
	raw := make([]byte, len(magnitudes)*8)
	for i, v := range magnitudes {
		binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(v))
	}
	return raw
}

// slowAssetSource blocks until the context is cancelled.
type slowAssetSource struct{}

func (slowAssetSource) Fetch(ctx context.Context, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestLoadRuntimeBuiltinSpectral(t *testing.T) {
	rt, err := LoadRuntime(context.Background(), ModelSpectral, LoadConfig{Strength: 0.8})
	require.NoError(t, err)
	defer rt.Close()

	_, ok := rt.(*SpectralGateRuntime)
	assert.True(t, ok)
}

func TestLoadRuntimeUnknownModel(t *testing.T) {
	_, err := LoadRuntime(context.Background(), "rnnoise-v9", LoadConfig{})
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestLoadRuntimeProfileRequiresAssets(t *testing.T) {
	_, err := LoadRuntime(context.Background(), ModelSpectralProfile, LoadConfig{Strength: 1})
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestLoadRuntimeProfileFromDir(t *testing.T) {
	dir := t.TempDir()
	profile := []float64{0.05, 0.1, 0.2}
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, noiseProfileAsset), encodeProfile(profile), 0o644))

	rt, err := LoadRuntime(context.Background(), ModelSpectralProfile, LoadConfig{
		Strength: 1,
		Assets:   DirAssetSource{Dir: dir},
	})
	require.NoError(t, err)
	defer rt.Close()

	gate, ok := rt.(*SpectralGateRuntime)
	require.True(t, ok)
	assert.True(t, gate.Learned(), "a profile-seeded gate skips the learning phase")
}

func TestLoadRuntimeCorruptProfile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, noiseProfileAsset), []byte{1, 2, 3}, 0o644))

	_, err := LoadRuntime(context.Background(), ModelSpectralProfile, LoadConfig{
		Strength: 1,
		Assets:   DirAssetSource{Dir: dir},
	})
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestLoadRuntimeTimeout(t *testing.T) {
	start := time.Now()
	_, err := LoadRuntime(context.Background(), ModelSpectralProfile, LoadConfig{
		Strength: 1,
		Assets:   slowAssetSource{},
		Timeout:  50 * time.Millisecond,
	})
	assert.ErrorIs(t, err, ErrInitializationTimeout)
	assert.Less(t, time.Since(start), 5*time.Second, "load must give up at the deadline")
}

func TestDirAssetSourceRejectsPathTraversal(t *testing.T) {
	src := DirAssetSource{Dir: t.TempDir()}
	_, err := src.Fetch(context.Background(), "../../etc/passwd")
	assert.Error(t, err)
}

func TestHTTPAssetSourceFetch(t *testing.T) {
	payload := encodeProfile([]float64{0.1, 0.2})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+noiseProfileAsset {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	src := HTTPAssetSource{BaseURL: srv.URL}
	raw, err := src.Fetch(context.Background(), noiseProfileAsset)
	require.NoError(t, err)
	assert.Equal(t, payload, raw)

	_, err = src.Fetch(context.Background(), "missing.bin")
	assert.Error(t, err)
}

func TestParseNoiseProfile(t *testing.T) {
	tests := []struct {
		name    string
		raw     []byte
		wantErr bool
	}{
		{"valid", encodeProfile([]float64{0.1, 0.2}), false},
		{"empty", nil, true},
		{"truncated", encodeProfile([]float64{0.1})[:5], true},
		{"nan magnitude", encodeProfile([]float64{math.NaN()}), true},
		{"negative magnitude", encodeProfile([]float64{-0.5}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := parseNoiseProfile(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []float64{0.1, 0.2}, profile)
		})
	}
}
