package voicecore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/voicecore/audio"
	"github.com/opd-ai/voicecore/inference"
)

// ProcessorDeps carries everything a processor factory needs to assemble a
// noise-suppression pipeline.
type ProcessorDeps struct {
	// Runtime is the loaded noise model. The processor takes ownership and
	// closes it on Destroy.
	Runtime inference.Runtime
	// Metrics receives pipeline instrumentation; nil disables it.
	Metrics *Metrics
	// BlockSize is the largest host block ProcessBlock will see.
	BlockSize int
}

// ProcessorFactory builds a noise-suppression processor around a loaded
// runtime.
type ProcessorFactory func(deps ProcessorDeps) (audio.BlockProcessor, error)

var (
	processorsMu sync.RWMutex
	processors   = make(map[string]ProcessorFactory)
)

// RegisterProcessor makes a processor available under name. Registering a
// duplicate name panics, as that is a wiring error caught at startup.
func RegisterProcessor(name string, factory ProcessorFactory) {
	processorsMu.Lock()
	defer processorsMu.Unlock()
	if _, dup := processors[name]; dup {
		panic(fmt.Sprintf("voicecore: processor %q registered twice", name))
	}
	processors[name] = factory
}

// NewProcessor instantiates the named processor.
func NewProcessor(name string, deps ProcessorDeps) (audio.BlockProcessor, error) {
	processorsMu.RLock()
	factory, ok := processors[name]
	processorsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProcessor, name)
	}
	return factory(deps)
}

func init() {
	RegisterProcessor("spectral", newHopProcessor)
	RegisterProcessor("spectral-frame", newFrameProcessor)
}

// outputQueueHops sizes the hop processor's output ring: enough slack to
// absorb inference jitter without adding noticeable latency.
const outputQueueHops = 10

// hopProcessor is the hop-granular pipeline: host blocks are regrouped into
// hops, each hop runs through the spectral engine on the inference worker,
// and finished audio drains through a ring queue back to the callback.
//
// Hops that would exceed the in-flight bound are dropped; output underruns
// become silence. Hop buffers travel through a freelist channel so the
// callback and the worker never share a buffer.
type hopProcessor struct {
	deps ProcessorDeps

	accumulator *audio.FrameAccumulator
	denoiser    *audio.Denoiser
	pending     *audio.PendingCounter
	queue       *audio.RingQueue
	worker      *inference.Worker

	freelist chan []float64
	outHop   []float64 // worker-side scratch

	lastOverflow int64
	running      bool
}

func newHopProcessor(deps ProcessorDeps) (audio.BlockProcessor, error) {
	denoiser, err := audio.NewDenoiser(audio.DenoiserConfig{})
	if err != nil {
		return nil, err
	}
	hop := denoiser.HopLength()

	accumulator, err := audio.NewFrameAccumulator(hop)
	if err != nil {
		return nil, err
	}
	queue, err := audio.NewRingQueue(outputQueueHops * hop)
	if err != nil {
		return nil, err
	}

	p := &hopProcessor{
		deps:        deps,
		accumulator: accumulator,
		denoiser:    denoiser,
		pending:     audio.NewPendingCounter(audio.DefaultMaxPending),
		queue:       queue,
		worker:      inference.NewWorker(audio.DefaultMaxPending),
		freelist:    make(chan []float64, audio.DefaultMaxPending),
		outHop:      make([]float64, hop),
	}
	for i := 0; i < audio.DefaultMaxPending; i++ {
		p.freelist <- make([]float64, hop)
	}
	return p, nil
}

// Init starts the inference worker. ctx scopes the worker's lifetime, so
// callers pass the session context rather than an init-only one.
func (p *hopProcessor) Init(ctx context.Context) error {
	if err := p.worker.Start(ctx); err != nil {
		return err
	}
	p.running = true
	return nil
}

func (p *hopProcessor) ProcessBlock(in, out []float64) {
	p.accumulator.Push(in, p.submitHop)

	if !p.queue.Read(out) {
		// Warmup or a stalled model: emit silence rather than stale audio.
		for i := range out {
			out[i] = 0
		}
		p.deps.Metrics.addUnderrun()
	}

	if over := p.queue.Overflowed(); over != p.lastOverflow {
		p.deps.Metrics.addOverflow(over - p.lastOverflow)
		p.lastOverflow = over
	}
}

// submitHop hands one hop to the worker, dropping it when the in-flight
// bound or the worker queue is full.
func (p *hopProcessor) submitHop(hop []float64) {
	if !p.pending.TryAcquire() {
		p.deps.Metrics.addDropped()
		return
	}

	var buf []float64
	select {
	case buf = <-p.freelist:
	default:
		p.pending.Release()
		p.deps.Metrics.addDropped()
		return
	}
	copy(buf, hop)

	ok := p.worker.TrySubmit(func() {
		start := time.Now()
		p.denoiser.ProcessHop(buf, p.outHop, p.deps.Runtime.Infer)
		p.queue.Write(p.outHop)
		p.deps.Metrics.recordInference(time.Since(start))

		p.freelist <- buf
		p.pending.Release()
	})
	if !ok {
		p.freelist <- buf
		p.pending.Release()
		p.deps.Metrics.addDropped()
	}
}

// Restart drains the pipeline and resets the spectral engine's history.
func (p *hopProcessor) Restart(ctx context.Context) error {
	if p.running {
		if err := p.worker.Close(); err != nil {
			return err
		}
		p.running = false
	}
	p.worker = inference.NewWorker(audio.DefaultMaxPending)
	p.accumulator.Reset()
	p.queue.Reset()
	p.denoiser.Reset()
	return p.Init(ctx)
}

func (p *hopProcessor) Destroy() error {
	if p.running {
		if err := p.worker.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "hopProcessor.Destroy",
				"error":    err.Error(),
			}).Warn("Worker close reported error")
		}
		p.running = false
	}
	return p.deps.Runtime.Close()
}

// frameProcessor is the frame-granular pipeline for models that consume and
// produce whole frames. At most one frame is in flight; results land in a
// double buffer that the callback drains, replaying the previous frame when
// the model falls behind and passing input through until the first result
// arrives.
type frameProcessor struct {
	deps ProcessorDeps

	accumulator *audio.FrameAccumulator
	denoiser    *audio.Denoiser
	exchange    *audio.FrameExchange
	worker      *inference.Worker

	freelist chan []float64
	outFrame []float64 // worker-side scratch

	running bool
}

func newFrameProcessor(deps ProcessorDeps) (audio.BlockProcessor, error) {
	denoiser, err := audio.NewDenoiser(audio.DenoiserConfig{})
	if err != nil {
		return nil, err
	}
	frameLen := denoiser.WindowLength()

	accumulator, err := audio.NewFrameAccumulator(frameLen)
	if err != nil {
		return nil, err
	}
	exchange, err := audio.NewFrameExchange(frameLen)
	if err != nil {
		return nil, err
	}

	p := &frameProcessor{
		deps:        deps,
		accumulator: accumulator,
		denoiser:    denoiser,
		exchange:    exchange,
		worker:      inference.NewWorker(1),
		freelist:    make(chan []float64, 2),
		outFrame:    make([]float64, frameLen),
	}
	for i := 0; i < 2; i++ {
		p.freelist <- make([]float64, frameLen)
	}
	return p, nil
}

func (p *frameProcessor) Init(ctx context.Context) error {
	if err := p.worker.Start(ctx); err != nil {
		return err
	}
	p.running = true
	return nil
}

func (p *frameProcessor) ProcessBlock(in, out []float64) {
	p.accumulator.Push(in, p.submitFrame)

	if !p.exchange.ReadBlock(out) {
		// No model output yet: pass the live signal through.
		copy(out, in)
	}
}

func (p *frameProcessor) submitFrame(frame []float64) {
	if !p.exchange.TrySubmit() {
		p.deps.Metrics.addDropped()
		return
	}

	var buf []float64
	select {
	case buf = <-p.freelist:
	default:
		p.exchange.Cancel()
		p.deps.Metrics.addDropped()
		return
	}
	copy(buf, frame)

	ok := p.worker.TrySubmit(func() {
		start := time.Now()
		// The frame spans two hops; run both through the spectral engine
		// so overlap-add state carries across frame boundaries.
		hop := p.denoiser.HopLength()
		for off := 0; off < len(buf); off += hop {
			p.denoiser.ProcessHop(buf[off:off+hop], p.outFrame[off:off+hop], p.deps.Runtime.Infer)
		}
		p.deps.Metrics.recordInference(time.Since(start))

		p.exchange.Complete(p.outFrame)
		p.freelist <- buf
	})
	if !ok {
		p.freelist <- buf
		p.exchange.Cancel()
		p.deps.Metrics.addDropped()
	}
}

func (p *frameProcessor) Restart(ctx context.Context) error {
	if p.running {
		if err := p.worker.Close(); err != nil {
			return err
		}
		p.running = false
	}
	p.worker = inference.NewWorker(1)
	p.accumulator.Reset()
	p.exchange.Reset()
	p.denoiser.Reset()
	return p.Init(ctx)
}

func (p *frameProcessor) Destroy() error {
	if p.running {
		if err := p.worker.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "frameProcessor.Destroy",
				"error":    err.Error(),
			}).Warn("Worker close reported error")
		}
		p.running = false
	}
	return p.deps.Runtime.Close()
}
