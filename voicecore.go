package voicecore

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/voicecore/audio"
	"github.com/opd-ai/voicecore/inference"
)

// Session lifecycle states.
type sessionState int

const (
	stateNew sessionState = iota
	stateInitialized
	stateRunning
	stateDestroyed
)

// SessionConfig bundles everything a Session needs at construction.
type SessionConfig struct {
	// Config holds the user-facing settings; nil uses DefaultConfig.
	Config *Config

	// Transport provides stream statistics and the bitrate setter. Required.
	Transport Transport

	// Assets supplies model assets. Nil falls back to the HTTP source built
	// from Config.NoiseSuppression.ModelBaseURL, or no source at all for
	// models that need none.
	Assets inference.AssetSource

	// MeterProvider receives pipeline metrics; nil uses the global provider.
	MeterProvider metric.MeterProvider

	// TimeProvider drives the control loop; nil uses the system clock.
	TimeProvider TimeProvider
}

// Session is the per-call media core: it owns the noise-suppression
// pipeline, the mixing graph, the stats collector, and the adaptive bitrate
// control loop.
//
// ProcessBlock is called from the host's real-time audio callback; every
// other method belongs to the control domain. A Session is single-use:
// after Destroy it cannot be reinitialized, create a new one instead.
type Session struct {
	mu    sync.Mutex
	state sessionState

	config    *Config
	transport Transport
	assets    inference.AssetSource
	metrics   *Metrics
	tp        TimeProvider

	// mixer and masterVolume are read by the real-time callback while the
	// control domain mutates them, so both are atomics rather than guarded
	// by s.mu: ProcessBlock must never take a lock.
	mixer        atomic.Pointer[audio.MixGraph]
	masterVolume atomic.Uint64 // float64 bits

	controller  *BitrateController
	stats       *StatsCollector
	lastBitrate uint32

	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewSession creates a session around the given transport and settings. No
// resources are acquired until Init.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("session requires a transport")
	}

	conf := cfg.Config
	if conf == nil {
		conf = DefaultConfig()
	}
	if err := ValidateConfig(conf); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}

	metrics := DefaultMetrics()
	if cfg.MeterProvider != nil {
		var err error
		metrics, err = NewMetrics(cfg.MeterProvider)
		if err != nil {
			return nil, fmt.Errorf("creating metrics: %w", err)
		}
	}

	tp := cfg.TimeProvider
	if tp == nil {
		tp = RealTimeProvider{}
	}

	assets := cfg.Assets
	if assets == nil && conf.NoiseSuppression.ModelBaseURL != "" {
		assets = inference.HTTPAssetSource{BaseURL: conf.NoiseSuppression.ModelBaseURL}
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewSession",
		"model":       conf.NoiseSuppression.Model,
		"sample_rate": conf.Audio.SampleRate,
		"block_size":  conf.Audio.BlockSize,
	}).Info("Creating new voice session")

	adaptCfg := DefaultBitrateConfig()
	adaptCfg.MinBitRate = conf.Bitrate.Min

	s := &Session{
		config:     conf,
		transport:  cfg.Transport,
		assets:     assets,
		metrics:    metrics,
		tp:         tp,
		controller: NewBitrateController(adaptCfg),
		stats:      NewStatsCollector(cfg.Transport),
	}
	s.masterVolume.Store(math.Float64bits(conf.Audio.MasterVolume))
	return s, nil
}

// Init loads the noise model (bounded by the model load timeout), assembles
// the processing graph, and arms the bitrate controller. On any failure the
// session stays uninitialized with no resources held.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateDestroyed {
		return fmt.Errorf("session is destroyed")
	}
	if s.state != stateNew {
		return nil // already initialized
	}

	inner, err := s.buildProcessor(ctx)
	if err != nil {
		return err
	}

	mixer := audio.NewMixGraph(inner, s.config.NoiseSuppression.Strength, s.config.Audio.BlockSize)
	mixer.SetPreGain(s.config.Audio.PreGain)
	if err := mixer.Init(ctx); err != nil {
		_ = mixer.Destroy()
		return fmt.Errorf("initializing mix graph: %w", err)
	}

	if err := s.controller.InitializeWithCeiling(
		s.config.Bitrate.Start, s.config.Bitrate.Ceiling, s.applyBitrate,
	); err != nil {
		_ = mixer.Destroy()
		return err
	}
	s.lastBitrate = s.config.Bitrate.Start

	s.stats.SetTimeProvider(s.tp)
	s.mixer.Store(mixer)
	s.state = stateInitialized

	logrus.WithFields(logrus.Fields{
		"function":      "Session.Init",
		"model":         s.config.NoiseSuppression.Model,
		"start_bitrate": s.config.Bitrate.Start,
		"ceiling":       s.config.Bitrate.Ceiling,
	}).Info("Session initialized")
	return nil
}

// buildProcessor loads the model runtime and constructs the registered
// processor for it. An empty model identifier yields a passthrough stage.
// Caller must hold s.mu.
func (s *Session) buildProcessor(ctx context.Context) (audio.BlockProcessor, error) {
	model := s.config.NoiseSuppression.Model
	if model == "" {
		return passthroughProcessor{}, nil
	}

	runtime, err := inference.LoadRuntime(ctx, inferenceModelID(model), inference.LoadConfig{
		Strength: s.config.NoiseSuppression.Strength,
		Assets:   s.assets,
	})
	if err != nil {
		return nil, err
	}

	proc, err := NewProcessor(model, ProcessorDeps{
		Runtime:   runtime,
		Metrics:   s.metrics,
		BlockSize: s.config.Audio.BlockSize,
	})
	if err != nil {
		_ = runtime.Close()
		return nil, err
	}
	return proc, nil
}

// inferenceModelID maps a processor name to the model the loader should
// fetch. Both registered processors run the spectral gate.
func inferenceModelID(processorName string) string {
	switch processorName {
	case "spectral", "spectral-frame":
		return inference.ModelSpectral
	default:
		return processorName
	}
}

// Start launches the control loop: every poll interval, collect stream
// stats, feed outbound audio loss to the bitrate controller, and push
// effective changes to the transport.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateNew, stateDestroyed:
		return ErrSessionNotInitialized
	case stateRunning:
		return ErrSessionRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	s.group = group
	s.cancel = cancel
	s.state = stateRunning

	interval := s.config.Bitrate.PollInterval
	group.Go(func() error {
		ticker := s.tp.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.pollOnce()
			}
		}
	})

	logrus.WithFields(logrus.Fields{
		"function":      "Session.Start",
		"poll_interval": interval.String(),
	}).Info("Session control loop started")
	return nil
}

// pollOnce runs one control-loop iteration.
func (s *Session) pollOnce() {
	reports := s.stats.Poll()

	for _, report := range reports {
		if report.Kind != StreamAudioSend {
			continue
		}
		if err := s.controller.Observe(report.PacketLossPercent); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "pollOnce",
				"error":    err.Error(),
			}).Warn("Bitrate observation rejected")
		}
		break
	}
}

// applyBitrate pushes an effective bitrate change to the transport. Runs on
// the control loop goroutine via the controller's apply callback.
func (s *Session) applyBitrate(bitrate uint32) {
	s.mu.Lock()
	up := bitrate > s.lastBitrate
	s.lastBitrate = bitrate
	s.mu.Unlock()

	if err := s.transport.SetAudioBitrate(bitrate); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "applyBitrate",
			"bitrate":  bitrate,
			"error":    err.Error(),
		}).Warn("Transport rejected bitrate update")
		return
	}
	s.metrics.addAdaptation(up)
}

// ProcessBlock runs one host block through the pipeline: pre-gain, noise
// suppression, dry/wet blend, then master volume. in and out are the same
// length. Before Init completes the input is copied through unmodified.
//
// Real-time safe once the session is initialized.
func (s *Session) ProcessBlock(in, out []float64) {
	mixer := s.mixer.Load()
	if mixer == nil {
		copy(out, in)
		return
	}

	mixer.ProcessBlock(in, out)

	if vol := math.Float64frombits(s.masterVolume.Load()); vol != 1.0 {
		for i := range out {
			out[i] *= vol
		}
	}
}

// Stop halts the control loop. The processing graph stays initialized and
// ProcessBlock keeps working; Start may be called again.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	group := s.group
	s.state = stateInitialized
	s.cancel = nil
	s.group = nil
	s.mu.Unlock()

	cancel()
	err := group.Wait()

	logrus.WithFields(logrus.Fields{
		"function": "Session.Stop",
	}).Info("Session control loop stopped")
	return err
}

// Restart tears down and reinitialises the streaming pipeline in place,
// clearing stats baselines so counter resets on the transport side cannot
// produce nonsense rates. The control loop keeps running if it was running.
func (s *Session) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateInitialized && s.state != stateRunning {
		return ErrSessionNotInitialized
	}

	if err := s.mixer.Load().Restart(ctx); err != nil {
		return fmt.Errorf("restarting mix graph: %w", err)
	}
	s.stats.Reset()

	logrus.WithFields(logrus.Fields{
		"function": "Session.Restart",
	}).Info("Session pipeline restarted")
	return nil
}

// Destroy stops the control loop and releases the pipeline in dependency
// order: loop first, then the mixing graph (which closes the processor and
// its model runtime), then the controller. Safe to call more than once.
func (s *Session) Destroy() error {
	if err := s.Stop(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Session.Destroy",
			"error":    err.Error(),
		}).Warn("Control loop shutdown reported error")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateDestroyed {
		return nil
	}

	if mixer := s.mixer.Swap(nil); mixer != nil {
		if err := mixer.Destroy(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Session.Destroy",
				"error":    err.Error(),
			}).Warn("Mix graph teardown reported error")
		}
	}
	s.controller.Reset()
	s.stats.Reset()
	s.state = stateDestroyed

	logrus.WithFields(logrus.Fields{
		"function": "Session.Destroy",
	}).Info("Session destroyed")
	return nil
}

// SetPreGain updates the input gain applied before the dry/wet split.
// Effective on the next block.
func (s *Session) SetPreGain(gain float64) {
	if m := s.mixer.Load(); m != nil {
		m.SetPreGain(gain)
	}
}

// SetStrength updates the dry/wet blend of the noise suppressor. Effective
// on the next block.
func (s *Session) SetStrength(strength float64) {
	if m := s.mixer.Load(); m != nil {
		m.SetStrength(strength)
	}
}

// SetMasterVolume updates the output volume. Effective on the next block.
func (s *Session) SetMasterVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	s.masterVolume.Store(math.Float64bits(volume))
}

// Controller exposes the bitrate controller, mainly for status display.
func (s *Session) Controller() *BitrateController { return s.controller }

// Stats exposes the stats collector for UI-level quality reporting.
func (s *Session) Stats() *StatsCollector { return s.stats }

// passthroughProcessor is the no-op stage used when noise suppression is
// disabled in configuration.
type passthroughProcessor struct{}

func (passthroughProcessor) Init(context.Context) error    { return nil }
func (passthroughProcessor) ProcessBlock(in, out []float64) { copy(out, in) }
func (passthroughProcessor) Restart(context.Context) error { return nil }
func (passthroughProcessor) Destroy() error                { return nil }
