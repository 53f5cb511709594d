package audio

import "fmt"

// FrameAccumulator reassembles variable-size host audio blocks into
// fixed-size processing frames. Host engines deliver whatever block size
// they were configured with; the pipeline needs exact frame/hop multiples.
//
// The accumulator never drops or duplicates samples: every pushed sample is
// emitted in exactly one frame, and any remainder is carried into the next
// push. It is purely deterministic and owned by the real-time domain, so no
// synchronisation is needed.
type FrameAccumulator struct {
	frameSize int
	buf       []float64
	fill      int
}

// NewFrameAccumulator creates an accumulator emitting frames of frameSize
// samples.
func NewFrameAccumulator(frameSize int) (*FrameAccumulator, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}
	return &FrameAccumulator{
		frameSize: frameSize,
		buf:       make([]float64, frameSize),
	}, nil
}

// Push appends a host block and invokes emit once per completed frame.
// Blocks may be smaller or larger than the frame size and need not divide
// it evenly. The slice passed to emit is the accumulator's internal buffer
// and is only valid for the duration of the call; emit must copy it if the
// samples leave the real-time domain.
func (fa *FrameAccumulator) Push(block []float64, emit func(frame []float64)) {
	for len(block) > 0 {
		n := copy(fa.buf[fa.fill:], block)
		fa.fill += n
		block = block[n:]

		if fa.fill == fa.frameSize {
			emit(fa.buf)
			fa.fill = 0
		}
	}
}

// Fill returns the number of samples currently buffered toward the next
// frame.
func (fa *FrameAccumulator) Fill() int { return fa.fill }

// FrameSize returns the configured frame size.
func (fa *FrameAccumulator) FrameSize() int { return fa.frameSize }

// Reset discards any partially accumulated frame.
func (fa *FrameAccumulator) Reset() { fa.fill = 0 }
