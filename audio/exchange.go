package audio

import (
	"fmt"
	"sync/atomic"
)

// FrameExchange is a double-buffered handoff between the asynchronous
// inference domain and the real-time callback, used when the noise model
// consumes and produces whole frames rather than hops.
//
// One buffer is active (being read by the callback), the other is filling
// (receiving the next completed inference result). At most one inference
// request is outstanding at a time; input frames arriving while a request is
// in flight are dropped, not queued.
//
// The roles swap when the read cursor reaches the end of the active buffer —
// purely on the cursor boundary, independent of whether a fresh result has
// actually arrived. If inference is slower than playback the previous frame
// is replayed. That replay is intentional: it keeps the output cadence
// steady without ever blocking the callback.
//
// Concurrency discipline: the real-time callback is the only reader and the
// only caller of TrySubmit and ReadBlock; the inference completion handler
// is the only caller of Complete and only writes the inactive buffer. Under
// that single-producer/single-consumer discipline the atomics below are
// sufficient and no lock is needed.
type FrameExchange struct {
	frameLen int
	bufs     [2][]float64

	active      atomic.Int32 // index of the buffer being read
	hasOutput   atomic.Bool  // false until the first inference completes
	outstanding atomic.Bool  // one in-flight inference request at most

	readPos int // owned by the real-time domain
}

// NewFrameExchange creates an exchange for frames of frameLen samples.
func NewFrameExchange(frameLen int) (*FrameExchange, error) {
	if frameLen <= 0 {
		return nil, fmt.Errorf("frame length must be positive, got %d", frameLen)
	}
	fe := &FrameExchange{frameLen: frameLen}
	fe.bufs[0] = make([]float64, frameLen)
	fe.bufs[1] = make([]float64, frameLen)
	return fe, nil
}

// TrySubmit attempts to claim the single outstanding-inference slot. It
// returns true when the caller should submit the accumulated frame to the
// inference worker, false when a request is already in flight and the frame
// must be dropped.
func (fe *FrameExchange) TrySubmit() bool {
	return fe.outstanding.CompareAndSwap(false, true)
}

// Cancel releases the outstanding-inference slot without delivering a
// result, for when the claimed submission could not be handed to the worker
// after all.
func (fe *FrameExchange) Cancel() {
	fe.outstanding.Store(false)
}

// Complete delivers a finished inference result. The frame is copied into
// the buffer not currently being read; on the very first completion that
// buffer is promoted to active immediately so the callback switches from
// passthrough to processed output.
func (fe *FrameExchange) Complete(frame []float64) {
	inactive := 1 - fe.active.Load()
	copy(fe.bufs[inactive], frame)

	if !fe.hasOutput.Load() {
		fe.active.Store(inactive)
		fe.hasOutput.Store(true)
	}
	fe.outstanding.Store(false)
}

// ReadBlock copies the next len(out) samples of processed output from the
// active buffer. It returns false while no inference has completed yet, in
// which case the caller should pass the live input through unmodified.
//
// When the read cursor reaches the frame boundary the active and filling
// buffers swap and the cursor resets; the block may straddle the boundary.
func (fe *FrameExchange) ReadBlock(out []float64) bool {
	if !fe.hasOutput.Load() {
		return false
	}

	filled := 0
	for filled < len(out) {
		active := fe.active.Load()
		n := copy(out[filled:], fe.bufs[active][fe.readPos:])
		filled += n
		fe.readPos += n

		if fe.readPos == fe.frameLen {
			fe.active.Store(1 - active)
			fe.readPos = 0
		}
	}
	return true
}

// Reset returns the exchange to its initial state: no output delivered, no
// request outstanding, both buffers zeroed. Only safe while neither domain
// is actively calling the exchange.
func (fe *FrameExchange) Reset() {
	fe.hasOutput.Store(false)
	fe.outstanding.Store(false)
	fe.active.Store(0)
	fe.readPos = 0
	for i := range fe.bufs {
		for j := range fe.bufs[i] {
			fe.bufs[i][j] = 0
		}
	}
}

// HasOutput reports whether at least one inference result has been
// delivered.
func (fe *FrameExchange) HasOutput() bool { return fe.hasOutput.Load() }

// Outstanding reports whether an inference request is currently in flight.
func (fe *FrameExchange) Outstanding() bool { return fe.outstanding.Load() }

// FrameLength returns the configured frame length.
func (fe *FrameExchange) FrameLength() int { return fe.frameLen }
