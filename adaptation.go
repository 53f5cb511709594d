// Package voicecore provides adaptive bitrate management for voice sessions.
//
// This module implements automatic outbound bitrate adaptation based on
// observed packet loss using the AIMD algorithm (additive increase,
// multiplicative decrease): grow slowly while the network is healthy, shrink
// sharply when loss appears. The controller is deliberately simple — a
// handful of loss thresholds and fixed multipliers — because simple feedback
// loops converge predictably and are easy to reason about under churn.
package voicecore

import (
	"math"
	"sync"

	"github.com/sirupsen/logrus"
)

// BitrateConfig defines the AIMD adaptation parameters.
//
// The defaults are tuned for VoIP: react within one poll to heavy loss,
// require several consecutive clean polls before probing upward.
type BitrateConfig struct {
	// Loss thresholds in percent.
	HighLossThreshold float64 // above this, hard decrease (default: 5.0)
	MedLossThreshold  float64 // above this, soft decrease (default: 2.0)
	LowLossThreshold  float64 // below this, counts as a good poll (default: 1.0)

	// Multipliers applied to the current bitrate.
	HardDecreaseFactor float64 // default: 0.80
	SoftDecreaseFactor float64 // default: 0.90
	IncreaseFactor     float64 // default: 1.10

	// GoodPollsNeeded is the number of consecutive good polls required
	// before a single increase is applied (default: 3).
	GoodPollsNeeded int

	// MinBitRate is the hard floor in bits per second (default: 32000).
	MinBitRate uint32
}

// DefaultBitrateConfig returns the reference adaptation parameters.
func DefaultBitrateConfig() *BitrateConfig {
	return &BitrateConfig{
		HighLossThreshold:  5.0,
		MedLossThreshold:   2.0,
		LowLossThreshold:   1.0,
		HardDecreaseFactor: 0.80,
		SoftDecreaseFactor: 0.90,
		IncreaseFactor:     1.10,
		GoodPollsNeeded:    3,
		MinBitRate:         32000,
	}
}

// BitrateController adjusts the outbound encoder bitrate from periodic loss
// observations.
//
// The controller holds no timers of its own; the session's control loop calls
// Observe once per poll. The ceiling is fixed at initialization (the
// initially negotiated maximum) and is never exceeded no matter how long the
// good-poll streak runs. The apply callback is invoked only when the computed
// bitrate actually differs from the previous value.
type BitrateController struct {
	mu     sync.Mutex
	config *BitrateConfig

	current     uint32
	ceiling     uint32
	goodPolls   int
	initialized bool

	apply func(bitrate uint32)
}

// NewBitrateController creates a controller with the given configuration.
// A nil config uses DefaultBitrateConfig. No polling takes effect until
// Initialize is called with a starting bitrate.
func NewBitrateController(config *BitrateConfig) *BitrateController {
	if config == nil {
		config = DefaultBitrateConfig()
	}

	logrus.WithFields(logrus.Fields{
		"function":          "NewBitrateController",
		"min_bitrate":       config.MinBitRate,
		"good_polls_needed": config.GoodPollsNeeded,
	}).Debug("Bitrate controller created")

	return &BitrateController{config: config}
}

// Initialize arms the controller with a starting bitrate and an apply
// callback, using the starting bitrate itself as the ceiling.
func (bc *BitrateController) Initialize(start uint32, apply func(bitrate uint32)) error {
	return bc.InitializeWithCeiling(start, start, apply)
}

// InitializeWithCeiling arms the controller with a starting bitrate, an
// explicit ceiling (the initially negotiated maximum, never exceeded
// afterwards), and an apply callback invoked on every effective change.
func (bc *BitrateController) InitializeWithCeiling(start, ceiling uint32, apply func(bitrate uint32)) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if start == 0 || ceiling < start {
		logrus.WithFields(logrus.Fields{
			"function": "InitializeWithCeiling",
			"start":    start,
			"ceiling":  ceiling,
		}).Error("Bitrate validation failed")
		return ErrInvalidBitRate
	}

	bc.current = start
	bc.ceiling = ceiling
	bc.goodPolls = 0
	bc.apply = apply
	bc.initialized = true

	logrus.WithFields(logrus.Fields{
		"function": "InitializeWithCeiling",
		"start":    start,
		"ceiling":  ceiling,
		"min":      bc.config.MinBitRate,
	}).Info("Bitrate controller initialized")

	return nil
}

// Observe feeds one loss observation (in percent) into the controller and
// adjusts the current bitrate per the AIMD rules:
//
//   - loss > HighLossThreshold: current *= HardDecreaseFactor
//   - loss > MedLossThreshold:  current *= SoftDecreaseFactor
//   - loss < LowLossThreshold:  after GoodPollsNeeded consecutive such polls,
//     current *= IncreaseFactor (once, then the streak restarts)
//   - otherwise: hold steady, streak resets
//
// The result is rounded to the nearest integer and clamped to
// [MinBitRate, ceiling] after every adjustment. The apply callback fires only
// if the clamped value differs from the previous bitrate.
func (bc *BitrateController) Observe(lossPercent float64) error {
	bc.mu.Lock()

	if !bc.initialized {
		bc.mu.Unlock()
		return ErrControllerNotInitialized
	}

	previous := bc.current

	switch {
	case lossPercent > bc.config.HighLossThreshold:
		bc.current = bc.scale(bc.config.HardDecreaseFactor)
		bc.goodPolls = 0
	case lossPercent > bc.config.MedLossThreshold:
		bc.current = bc.scale(bc.config.SoftDecreaseFactor)
		bc.goodPolls = 0
	case lossPercent < bc.config.LowLossThreshold:
		bc.goodPolls++
		if bc.goodPolls >= bc.config.GoodPollsNeeded {
			bc.current = bc.scale(bc.config.IncreaseFactor)
			bc.goodPolls = 0
		}
	default:
		// Loss is between the low and medium thresholds: hold steady.
		bc.goodPolls = 0
	}

	bc.clamp()

	changed := bc.current != previous
	current := bc.current
	apply := bc.apply
	bc.mu.Unlock()

	if changed {
		logrus.WithFields(logrus.Fields{
			"function":     "Observe",
			"loss_percent": lossPercent,
			"old_bitrate":  previous,
			"new_bitrate":  current,
		}).Info("Bitrate adapted")

		if apply != nil {
			apply(current)
		}
	}

	return nil
}

// scale multiplies the current bitrate by factor, rounding to nearest.
// Caller must hold bc.mu.
func (bc *BitrateController) scale(factor float64) uint32 {
	return uint32(math.Round(float64(bc.current) * factor))
}

// clamp bounds current to [MinBitRate, ceiling]. Caller must hold bc.mu.
func (bc *BitrateController) clamp() {
	if bc.current < bc.config.MinBitRate {
		bc.current = bc.config.MinBitRate
	}
	if bc.current > bc.ceiling {
		bc.current = bc.ceiling
	}
}

// Current returns the current target bitrate in bits per second.
func (bc *BitrateController) Current() uint32 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.current
}

// Ceiling returns the bitrate ceiling fixed at initialization.
func (bc *BitrateController) Ceiling() uint32 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.ceiling
}

// Initialized reports whether the controller has been given a starting
// bitrate and is processing observations.
func (bc *BitrateController) Initialized() bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.initialized
}

// Reset clears all controller state and detaches the apply callback.
// Subsequent Observe calls return ErrControllerNotInitialized until the
// controller is initialized again.
func (bc *BitrateController) Reset() {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	bc.current = 0
	bc.ceiling = 0
	bc.goodPolls = 0
	bc.apply = nil
	bc.initialized = false

	logrus.WithFields(logrus.Fields{
		"function": "Reset",
	}).Debug("Bitrate controller reset")
}
