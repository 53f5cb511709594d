package audio

import (
	"context"

	"github.com/sirupsen/logrus"
)

// BlockProcessor is a node in the block-processing graph. Init and Restart
// run outside the real-time domain and may allocate; ProcessBlock runs in
// the real-time callback and must not.
type BlockProcessor interface {
	// Init prepares the processor for streaming.
	Init(ctx context.Context) error
	// ProcessBlock processes len(in) samples into out. in and out are the
	// same length and may alias.
	ProcessBlock(in, out []float64)
	// Restart tears down and reinitialises streaming state.
	Restart(ctx context.Context) error
	// Destroy releases resources. It must be safe to call more than once.
	Destroy() error
}

// MixGraph routes input through an inner processor and blends the result
// with the unprocessed signal:
//
//	out = preGain·in·(1−strength) + processed(preGain·in)·strength
//
// Strength 0 bypasses the inner processor's output entirely (it still runs,
// keeping its internal state warm); strength 1 is fully wet. Parameter
// updates take effect on the next block with no smoothing ramp: a mid-block
// step in gain or strength is audible by design, matching the behaviour of
// the control surface this graph serves.
type MixGraph struct {
	inner BlockProcessor

	preGain  float64
	strength float64

	dry []float64
	wet []float64

	blockSize int
	destroyed bool
}

// NewMixGraph creates a graph around inner with unity pre-gain and the given
// initial dry/wet strength. blockSize bounds the largest block ProcessBlock
// will see.
func NewMixGraph(inner BlockProcessor, strength float64, blockSize int) *MixGraph {
	return &MixGraph{
		inner:     inner,
		preGain:   1.0,
		strength:  clampUnit(strength),
		dry:       make([]float64, blockSize),
		wet:       make([]float64, blockSize),
		blockSize: blockSize,
	}
}

// Init initialises the graph front to back: the pre-gain stage has no state,
// then the inner processor, then the blend taps. An inner failure leaves the
// graph uninitialised.
func (g *MixGraph) Init(ctx context.Context) error {
	if err := g.inner.Init(ctx); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "MixGraph.Init",
			"error":    err.Error(),
		}).Error("Inner processor initialization failed")
		return err
	}
	g.destroyed = false

	logrus.WithFields(logrus.Fields{
		"function":   "MixGraph.Init",
		"strength":   g.strength,
		"pre_gain":   g.preGain,
		"block_size": g.blockSize,
	}).Info("Mix graph initialized")
	return nil
}

// ProcessBlock applies pre-gain, runs the inner processor, and blends dry
// against wet by the current strength. Real-time safe.
func (g *MixGraph) ProcessBlock(in, out []float64) {
	n := len(in)
	dry := g.dry[:n]
	wet := g.wet[:n]

	gain := g.preGain
	for i := 0; i < n; i++ {
		dry[i] = in[i] * gain
	}

	g.inner.ProcessBlock(dry, wet)

	s := g.strength
	for i := 0; i < n; i++ {
		out[i] = dry[i]*(1-s) + wet[i]*s
	}
}

// Restart restarts the inner processor.
func (g *MixGraph) Restart(ctx context.Context) error {
	return g.inner.Restart(ctx)
}

// Destroy tears the graph down leaf-first. Errors from the inner processor
// are logged and swallowed so teardown always completes; calling Destroy
// again is a no-op.
func (g *MixGraph) Destroy() error {
	if g.destroyed {
		return nil
	}
	g.destroyed = true

	if err := g.inner.Destroy(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "MixGraph.Destroy",
			"error":    err.Error(),
		}).Warn("Inner processor teardown reported error")
	}
	return nil
}

// SetPreGain sets the linear gain applied before the processor. Takes effect
// on the next block.
func (g *MixGraph) SetPreGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	g.preGain = gain
}

// PreGain returns the current pre-processing gain.
func (g *MixGraph) PreGain() float64 { return g.preGain }

// SetStrength sets the dry/wet blend in [0, 1]. Takes effect on the next
// block.
func (g *MixGraph) SetStrength(strength float64) {
	g.strength = clampUnit(strength)
}

// Strength returns the current dry/wet blend.
func (g *MixGraph) Strength() float64 { return g.strength }

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
