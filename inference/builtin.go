package inference

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

const (
	// noiseLearnFrames is how many initial hops feed the noise-floor
	// estimate before the gate starts attenuating.
	noiseLearnFrames = 10

	// noiseFloorAlpha smooths the running noise-floor estimate during the
	// learning phase.
	noiseFloorAlpha = 0.8

	// overSubtraction compensates for the noise estimate being an average:
	// instantaneous noise frequently exceeds it.
	overSubtraction = 2.0

	// gateGainFloor is the lowest gain the gate produces. Leaving a little
	// residual avoids the fluttering "musical noise" of hard gating.
	gateGainFloor = 0.1
)

// SpectralGateRuntime is the built-in noise model: spectral subtraction
// against a noise floor learned from the first hops of the stream. It needs
// no external assets, which makes it the fallback when a downloaded model is
// unavailable.
type SpectralGateRuntime struct {
	strength   float64
	noiseFloor []float64 // per-bin magnitude estimate
	mask       []float64
	frameCount int
	learned    bool
	closed     bool
}

// NewSpectralGateRuntime creates the gate with the given suppression
// strength in [0, 1]. An optional pre-recorded noise profile skips the
// learning phase; pass nil to learn from the stream.
func NewSpectralGateRuntime(strength float64, profile []float64) (*SpectralGateRuntime, error) {
	if strength < 0 || strength > 1 {
		return nil, fmt.Errorf("suppression strength must be between 0.0 and 1.0: %f", strength)
	}

	r := &SpectralGateRuntime{strength: strength}
	if len(profile) > 0 {
		r.noiseFloor = make([]float64, len(profile))
		copy(r.noiseFloor, profile)
		r.learned = true
		r.frameCount = noiseLearnFrames
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewSpectralGateRuntime",
		"strength":    strength,
		"has_profile": len(profile) > 0,
	}).Info("Spectral gate runtime created")

	return r, nil
}

// Infer converts the log-power feature to per-bin magnitudes, updates the
// noise-floor estimate while still learning, and returns the subtraction
// gain mask. During the learning phase the mask is all ones (passthrough).
func (r *SpectralGateRuntime) Infer(feature []float64) ([]float64, error) {
	if r.closed {
		return nil, fmt.Errorf("runtime is closed")
	}

	bins := len(feature)
	if r.noiseFloor == nil {
		r.noiseFloor = make([]float64, bins)
	}
	if len(r.noiseFloor) != bins {
		return nil, fmt.Errorf("feature length %d does not match profile length %d", bins, len(r.noiseFloor))
	}
	if cap(r.mask) < bins {
		r.mask = make([]float64, bins)
	}
	mask := r.mask[:bins]

	if !r.learned {
		for i, logPower := range feature {
			mag := math.Sqrt(math.Pow(10, logPower))
			if r.frameCount == 0 {
				r.noiseFloor[i] = mag
			} else {
				r.noiseFloor[i] = noiseFloorAlpha*r.noiseFloor[i] + (1-noiseFloorAlpha)*mag
			}
			mask[i] = 1
		}
		r.frameCount++
		if r.frameCount >= noiseLearnFrames {
			r.learned = true
			logrus.WithFields(logrus.Fields{
				"function": "SpectralGateRuntime.Infer",
				"frames":   r.frameCount,
			}).Info("Noise floor estimation completed")
		}
		return mask, nil
	}

	for i, logPower := range feature {
		mag := math.Sqrt(math.Pow(10, logPower))
		if mag <= 0 {
			mask[i] = gateGainFloor
			continue
		}
		subtracted := mag - overSubtraction*r.strength*r.noiseFloor[i]
		gain := subtracted / mag
		if gain < gateGainFloor {
			gain = gateGainFloor
		} else if gain > 1 {
			gain = 1
		}
		mask[i] = gain
	}
	return mask, nil
}

// Close releases the runtime. Subsequent Infer calls fail.
func (r *SpectralGateRuntime) Close() error {
	r.closed = true
	return nil
}

// Learned reports whether the noise-floor estimate is complete.
func (r *SpectralGateRuntime) Learned() bool { return r.learned }
