package audio

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityMask(feature []float64) ([]float64, error) {
	mask := make([]float64, len(feature))
	for i := range mask {
		mask[i] = 1
	}
	return mask, nil
}

func TestNewDenoiserValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  DenoiserConfig
		wantErr bool
	}{
		{"defaults", DenoiserConfig{}, false},
		{"explicit reference geometry", DenoiserConfig{WindowLength: 960, HopLength: 480}, false},
		{"non power of two size", DenoiserConfig{WindowLength: 900, HopLength: 450}, false},
		{"window smaller than hop", DenoiserConfig{WindowLength: 100, HopLength: 200}, true},
		{"window not hop multiple", DenoiserConfig{WindowLength: 500, HopLength: 480}, true},
		{"negative hop", DenoiserConfig{WindowLength: 960, HopLength: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDenoiser(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, d.WindowLength()/2+1, d.Bins())
		})
	}
}

func TestDenoiserSilenceInSilenceOut(t *testing.T) {
	d, err := NewDenoiser(DenoiserConfig{})
	require.NoError(t, err)

	hop := make([]float64, d.HopLength())
	out := make([]float64, d.HopLength())

	// Whatever the mask does, zero spectrum times any gain stays zero.
	aggressive := func(feature []float64) ([]float64, error) {
		mask := make([]float64, len(feature))
		for i := range mask {
			mask[i] = 0.001
		}
		return mask, nil
	}

	for step := 0; step < 5; step++ {
		d.ProcessHop(hop, out, aggressive)
		for i, v := range out {
			assert.InDelta(t, 0.0, v, 1e-12, "step %d sample %d", step, i)
		}
	}
}

func TestDenoiserIdentityMaskReconstruction(t *testing.T) {
	d, err := NewDenoiser(DenoiserConfig{WindowLength: 960, HopLength: 480})
	require.NoError(t, err)

	hopLen := d.HopLength()
	signal := make([]float64, hopLen*6)
	for i := range signal {
		// A sum of tones exercises many bins at once.
		ti := float64(i)
		signal[i] = 0.4*math.Sin(2*math.Pi*440*ti/48000) +
			0.2*math.Sin(2*math.Pi*1330*ti/48000)
	}

	out := make([]float64, hopLen)
	for step := 0; step < 6; step++ {
		d.ProcessHop(signal[step*hopLen:(step+1)*hopLen], out, identityMask)

		// The square-root window pair overlap-adds to unity, so with a
		// unity mask each output hop reproduces the previous input hop.
		// The first two hops carry the warmup transient.
		if step < 2 {
			continue
		}
		expected := signal[(step-1)*hopLen : step*hopLen]
		for i := range out {
			assert.InDelta(t, expected[i], out[i], 1e-6, "step %d sample %d", step, i)
		}
	}
}

func TestDenoiserInferenceFailureYieldsSilentHop(t *testing.T) {
	d, err := NewDenoiser(DenoiserConfig{WindowLength: 960, HopLength: 480})
	require.NoError(t, err)

	hopLen := d.HopLength()
	hop := make([]float64, hopLen)
	for i := range hop {
		hop[i] = 0.5 * math.Sin(2*math.Pi*float64(i)/96)
	}
	out := make([]float64, hopLen)

	failing := func([]float64) ([]float64, error) {
		return nil, errors.New("model unavailable")
	}

	// Warm up with working inference.
	d.ProcessHop(hop, out, identityMask)
	d.ProcessHop(hop, out, identityMask)

	// A failing call produces exactly one silent hop.
	d.ProcessHop(hop, out, failing)
	for i, v := range out {
		assert.Zero(t, v, "sample %d", i)
	}

	// The engine keeps running afterwards; output returns within a couple
	// of hops once inference recovers.
	d.ProcessHop(hop, out, identityMask)
	d.ProcessHop(hop, out, identityMask)
	var energy float64
	for _, v := range out {
		energy += v * v
	}
	assert.Greater(t, energy, 0.0)
}

func TestDenoiserMalformedMaskYieldsSilentHop(t *testing.T) {
	d, err := NewDenoiser(DenoiserConfig{})
	require.NoError(t, err)

	hop := make([]float64, d.HopLength())
	for i := range hop {
		hop[i] = 0.3
	}
	out := make([]float64, d.HopLength())

	short := func(feature []float64) ([]float64, error) {
		return make([]float64, len(feature)-1), nil
	}

	d.ProcessHop(hop, out, short)
	for i, v := range out {
		assert.Zero(t, v, "sample %d", i)
	}
}

func TestDenoiserMaskClamping(t *testing.T) {
	d, err := NewDenoiser(DenoiserConfig{WindowLength: 960, HopLength: 480})
	require.NoError(t, err)

	hopLen := d.HopLength()
	hop := make([]float64, hopLen)
	for i := range hop {
		hop[i] = 0.4 * math.Sin(2*math.Pi*float64(i)/48)
	}
	out := make([]float64, hopLen)

	// Gains above one are clamped to one, so a wildly amplifying mask
	// behaves exactly like the identity mask.
	amplifying := func(feature []float64) ([]float64, error) {
		mask := make([]float64, len(feature))
		for i := range mask {
			mask[i] = 100
		}
		return mask, nil
	}

	reference, err := NewDenoiser(DenoiserConfig{WindowLength: 960, HopLength: 480})
	require.NoError(t, err)
	refOut := make([]float64, hopLen)

	for step := 0; step < 4; step++ {
		d.ProcessHop(hop, out, amplifying)
		reference.ProcessHop(hop, refOut, identityMask)
	}
	for i := range out {
		assert.InDelta(t, refOut[i], out[i], 1e-9, "sample %d", i)
	}
}

func TestDenoiserReset(t *testing.T) {
	d, err := NewDenoiser(DenoiserConfig{})
	require.NoError(t, err)

	hop := make([]float64, d.HopLength())
	for i := range hop {
		hop[i] = 0.7
	}
	out := make([]float64, d.HopLength())

	d.ProcessHop(hop, out, identityMask)
	d.ProcessHop(hop, out, identityMask)

	d.Reset()

	// After Reset, silence in produces silence out immediately: no residue
	// from the previous stream leaks through the overlap-add state.
	silent := make([]float64, d.HopLength())
	d.ProcessHop(silent, out, identityMask)
	for i, v := range out {
		assert.InDelta(t, 0.0, v, 1e-12, "sample %d", i)
	}
}

func TestDenoiserFeatureIsLogPower(t *testing.T) {
	d, err := NewDenoiser(DenoiserConfig{WindowLength: 960, HopLength: 480})
	require.NoError(t, err)

	hopLen := d.HopLength()
	hop := make([]float64, hopLen)
	out := make([]float64, hopLen)

	var captured []float64
	capture := func(feature []float64) ([]float64, error) {
		captured = make([]float64, len(feature))
		copy(captured, feature)
		return identityMask(feature)
	}

	// Silence first: every bin sits at the log of the power floor.
	d.ProcessHop(hop, out, capture)
	require.Len(t, captured, d.Bins())
	for i, v := range captured {
		assert.InDelta(t, -12.0, v, 1e-9, "bin %d", i)
	}

	// A loud tone lifts its bin well above the floor.
	for i := range hop {
		hop[i] = 0.8 * math.Sin(2*math.Pi*100*float64(i)/float64(hopLen))
	}
	d.ProcessHop(hop, out, capture)
	max := captured[0]
	for _, v := range captured {
		if v > max {
			max = v
		}
	}
	assert.Greater(t, max, 0.0)
}
