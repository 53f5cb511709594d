// Package audio spectral denoising engine.
//
// The engine implements classic short-time spectral gating driven by an
// external mask model: window the recent input history, transform to the
// frequency domain, hand a log-power feature vector to an inference
// function, multiply the spectrum by the returned per-bin gain mask, and
// reconstruct the time signal by overlap-add.
//
// Design decisions:
//   - Square-root-Hann analysis and synthesis windows, so the window pair is
//     unitary under 50% overlap-add and an all-ones mask reconstructs the
//     input exactly (after the initial transient).
//   - Direct DFT summation with precomputed trigonometric tables. The
//     transform size follows the model's hop configuration and need not be a
//     power of two, which rules out radix-2 FFTs; at these sizes the O(bins
//     × size) summation fits comfortably inside one hop period.
//   - Inference failures yield a zero-filled hop: silence for one step is
//     inaudible, a crash or a stall in the render path is not.
package audio

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Reference configuration: 20 ms windows with 10 ms hops at 48 kHz.
const (
	// DefaultWindowLength is the analysis window length in samples.
	DefaultWindowLength = 960
	// DefaultHopLength is the step between successive windows (50% overlap).
	DefaultHopLength = 480
)

// maskFloorDB bounds how far any single bin may be attenuated. The floor
// keeps quantisation and model noise from punching audible holes in the
// spectrum.
const maskFloorDB = -80.0

// powerFloor keeps log10 away from zero power.
const powerFloor = 1e-12

// InferenceFunc produces a per-bin gain mask from a log-power feature
// vector. It runs on the inference worker goroutine, never in the real-time
// callback, and may therefore block or allocate. The returned mask must have
// exactly len(feature) entries.
type InferenceFunc func(feature []float64) ([]float64, error)

// DenoiserConfig sizes the spectral engine.
type DenoiserConfig struct {
	WindowLength int // analysis window in samples; 0 means DefaultWindowLength
	HopLength    int // hop in samples; 0 means DefaultHopLength
}

// Denoiser is the spectral denoising engine for one audio stream.
//
// All state (input history, overlap-add accumulator, scratch spectra) lives
// in the instance, so concurrent sessions cannot alias each other. A
// Denoiser is confined to the inference worker goroutine; it is not safe for
// concurrent use.
type Denoiser struct {
	windowLen int
	hopLen    int
	size      int // transform size, equals windowLen
	bins      int // size/2 + 1

	window  []float64 // sqrt-Hann, shared by analysis and synthesis
	history []float64 // last windowLen input samples
	olaAcc  []float64 // overlap-add accumulator

	// Precomputed cos/sin of 2π·m/size for m in [0, size). Direct DFT
	// indexes these with m = (k·n) mod size.
	cosTab []float64
	sinTab []float64

	// Scratch buffers reused across hops.
	frame   []float64 // windowed input
	re, im  []float64 // forward spectrum, bins entries
	feature []float64
	synth   []float64 // inverse-transformed, synthesis-windowed output

	maskFloor float64
}

// NewDenoiser creates a spectral engine for the given geometry. The window
// must be an exact multiple of the hop so overlap-add tiles the output; the
// reference configuration uses 50% overlap.
func NewDenoiser(cfg DenoiserConfig) (*Denoiser, error) {
	windowLen := cfg.WindowLength
	if windowLen == 0 {
		windowLen = DefaultWindowLength
	}
	hopLen := cfg.HopLength
	if hopLen == 0 {
		hopLen = DefaultHopLength
	}

	if hopLen <= 0 || windowLen < hopLen {
		return nil, fmt.Errorf("invalid geometry: window %d, hop %d", windowLen, hopLen)
	}
	if windowLen%hopLen != 0 {
		return nil, fmt.Errorf("window %d must be a multiple of hop %d", windowLen, hopLen)
	}

	size := windowLen
	bins := size/2 + 1

	d := &Denoiser{
		windowLen: windowLen,
		hopLen:    hopLen,
		size:      size,
		bins:      bins,
		window:    make([]float64, windowLen),
		history:   make([]float64, windowLen),
		olaAcc:    make([]float64, windowLen),
		cosTab:    make([]float64, size),
		sinTab:    make([]float64, size),
		frame:     make([]float64, windowLen),
		re:        make([]float64, bins),
		im:        make([]float64, bins),
		feature:   make([]float64, bins),
		synth:     make([]float64, windowLen),
		maskFloor: math.Pow(10, maskFloorDB/20),
	}

	// Periodic Hann satisfies the constant-overlap-add condition exactly at
	// 50% overlap; the square root splits it between analysis and synthesis.
	for i := 0; i < windowLen; i++ {
		hann := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(windowLen)))
		d.window[i] = math.Sqrt(hann)
	}
	for m := 0; m < size; m++ {
		angle := 2 * math.Pi * float64(m) / float64(size)
		d.cosTab[m] = math.Cos(angle)
		d.sinTab[m] = math.Sin(angle)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewDenoiser",
		"window_len": windowLen,
		"hop_len":    hopLen,
		"bins":       bins,
	}).Debug("Spectral denoiser created")

	return d, nil
}

// Bins returns the number of frequency bins in the feature/mask vectors.
func (d *Denoiser) Bins() int { return d.bins }

// HopLength returns the configured hop size in samples.
func (d *Denoiser) HopLength() int { return d.hopLen }

// WindowLength returns the configured window size in samples.
func (d *Denoiser) WindowLength() int { return d.windowLen }

// ProcessHop consumes one hop of input and writes one hop of denoised output
// to out. len(hop) and len(out) must equal HopLength.
//
// If infer fails or returns a malformed mask, out is zero-filled for this
// step and the engine's timing state still advances, so a transient model
// error costs one hop of silence and nothing else.
func (d *Denoiser) ProcessHop(hop, out []float64, infer InferenceFunc) {
	// Slide the hop into the input history: newest hop replaces the oldest.
	copy(d.history, d.history[d.hopLen:])
	copy(d.history[d.windowLen-d.hopLen:], hop)

	for i := 0; i < d.windowLen; i++ {
		d.frame[i] = d.history[i] * d.window[i]
	}

	d.forward()

	for k := 0; k < d.bins; k++ {
		power := d.re[k]*d.re[k] + d.im[k]*d.im[k]
		if power < powerFloor {
			power = powerFloor
		}
		d.feature[k] = math.Log10(power)
	}

	mask, err := infer(d.feature)
	if err != nil || len(mask) != d.bins {
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "ProcessHop",
				"error":    err.Error(),
			}).Debug("Inference failed, substituting silence for this hop")
		} else {
			logrus.WithFields(logrus.Fields{
				"function":  "ProcessHop",
				"mask_len":  len(mask),
				"want_bins": d.bins,
			}).Debug("Malformed mask, substituting silence for this hop")
		}
		d.advanceSilent(out)
		return
	}

	for k := 0; k < d.bins; k++ {
		g := mask[k]
		if g < d.maskFloor {
			g = d.maskFloor
		} else if g > 1 {
			g = 1
		}
		d.re[k] *= g
		d.im[k] *= g
	}

	d.inverse()

	for i := 0; i < d.windowLen; i++ {
		d.synth[i] *= d.window[i]
	}

	// Overlap-add: fold the synthesis frame into the accumulator, emit the
	// first hop, then shift the accumulator left by one hop.
	for i := 0; i < d.windowLen; i++ {
		d.olaAcc[i] += d.synth[i]
	}
	copy(out, d.olaAcc[:d.hopLen])
	copy(d.olaAcc, d.olaAcc[d.hopLen:])
	tail := d.olaAcc[d.windowLen-d.hopLen:]
	for i := range tail {
		tail[i] = 0
	}
}

// advanceSilent emits a zero hop while keeping the overlap-add accumulator
// moving, as if the synthesis frame had been silence.
func (d *Denoiser) advanceSilent(out []float64) {
	for i := range out {
		out[i] = 0
	}
	copy(d.olaAcc, d.olaAcc[d.hopLen:])
	tail := d.olaAcc[d.windowLen-d.hopLen:]
	for i := range tail {
		tail[i] = 0
	}
}

// forward computes the real-input DFT of d.frame into d.re/d.im for bins
// [0, size/2]. Direct summation with table lookup; the transform size is not
// restricted to powers of two.
func (d *Denoiser) forward() {
	n := d.size
	for k := 0; k < d.bins; k++ {
		var sumRe, sumIm float64
		idx := 0
		for t := 0; t < n; t++ {
			sumRe += d.frame[t] * d.cosTab[idx]
			sumIm -= d.frame[t] * d.sinTab[idx]
			idx += k
			if idx >= n {
				idx -= n
			}
		}
		d.re[k] = sumRe
		d.im[k] = sumIm
	}
}

// inverse reconstructs the time-domain frame from the half spectrum into
// d.synth, using Hermitian symmetry (bin k mirrors bin size-k with negated
// imaginary part) and normalising by the transform size.
func (d *Denoiser) inverse() {
	n := d.size
	for t := 0; t < n; t++ {
		// k = 0 and, for even sizes, k = n/2 appear once; every other bin
		// contributes twice via its conjugate mirror.
		sum := d.re[0]
		idx := 0
		for k := 1; k < d.bins-1; k++ {
			idx += t
			if idx >= n {
				idx -= n
			}
			sum += 2 * (d.re[k]*d.cosTab[idx] - d.im[k]*d.sinTab[idx])
		}
		last := d.bins - 1
		m := (last * t) % n
		if n%2 == 0 {
			sum += d.re[last]*d.cosTab[m] - d.im[last]*d.sinTab[m]
		} else {
			sum += 2 * (d.re[last]*d.cosTab[m] - d.im[last]*d.sinTab[m])
		}
		d.synth[t] = sum / float64(n)
	}
}

// Reset clears the input history and overlap-add state, as after a model
// switch or stream restart.
func (d *Denoiser) Reset() {
	for i := range d.history {
		d.history[i] = 0
	}
	for i := range d.olaAcc {
		d.olaAcc[i] = 0
	}
}
