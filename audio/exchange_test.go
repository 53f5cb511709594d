package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantFrame(value float64, n int) []float64 {
	frame := make([]float64, n)
	for i := range frame {
		frame[i] = value
	}
	return frame
}

func TestNewFrameExchangeValidation(t *testing.T) {
	_, err := NewFrameExchange(0)
	assert.Error(t, err)

	fe, err := NewFrameExchange(960)
	require.NoError(t, err)
	assert.Equal(t, 960, fe.FrameLength())
}

func TestFrameExchangePassthroughBeforeFirstResult(t *testing.T) {
	fe, err := NewFrameExchange(8)
	require.NoError(t, err)

	out := make([]float64, 4)
	assert.False(t, fe.ReadBlock(out), "no output before the first completion")
	assert.False(t, fe.HasOutput())
}

func TestFrameExchangeSingleOutstandingRequest(t *testing.T) {
	fe, err := NewFrameExchange(8)
	require.NoError(t, err)

	assert.True(t, fe.TrySubmit())
	assert.True(t, fe.Outstanding())

	// A second submission while one is in flight is refused.
	assert.False(t, fe.TrySubmit())

	fe.Complete(constantFrame(1, 8))
	assert.False(t, fe.Outstanding())

	// The slot reopens after completion.
	assert.True(t, fe.TrySubmit())
}

func TestFrameExchangeCancelReopensSlot(t *testing.T) {
	fe, err := NewFrameExchange(8)
	require.NoError(t, err)

	require.True(t, fe.TrySubmit())
	fe.Cancel()
	assert.False(t, fe.Outstanding())
	assert.True(t, fe.TrySubmit())

	// Cancel delivered nothing: still in passthrough.
	assert.False(t, fe.HasOutput())
}

func TestFrameExchangeFirstCompletionPromotes(t *testing.T) {
	fe, err := NewFrameExchange(4)
	require.NoError(t, err)

	require.True(t, fe.TrySubmit())
	fe.Complete([]float64{1, 2, 3, 4})
	assert.True(t, fe.HasOutput())

	out := make([]float64, 4)
	require.True(t, fe.ReadBlock(out))
	assert.Equal(t, []float64{1, 2, 3, 4}, out)
}

func TestFrameExchangeSwapOnFrameBoundary(t *testing.T) {
	fe, err := NewFrameExchange(4)
	require.NoError(t, err)

	require.True(t, fe.TrySubmit())
	fe.Complete(constantFrame(1, 4))

	out := make([]float64, 2)

	// First half of frame one.
	require.True(t, fe.ReadBlock(out))
	assert.Equal(t, []float64{1, 1}, out)

	// A fresh result lands in the filling buffer mid-frame.
	require.True(t, fe.TrySubmit())
	fe.Complete(constantFrame(2, 4))

	// Second half of frame one still comes from the active buffer; the
	// swap happens only at the boundary.
	require.True(t, fe.ReadBlock(out))
	assert.Equal(t, []float64{1, 1}, out)

	// Past the boundary the fresh frame plays.
	require.True(t, fe.ReadBlock(out))
	assert.Equal(t, []float64{2, 2}, out)
}

func TestFrameExchangeStaleFrameReplay(t *testing.T) {
	fe, err := NewFrameExchange(4)
	require.NoError(t, err)

	require.True(t, fe.TrySubmit())
	fe.Complete([]float64{1, 2, 3, 4})

	out := make([]float64, 4)

	// No new result arrives. The cursor wraps and the buffers swap anyway,
	// replaying the previous frame instead of stalling.
	require.True(t, fe.ReadBlock(out))
	assert.Equal(t, []float64{1, 2, 3, 4}, out)

	require.True(t, fe.ReadBlock(out))
	// The swapped-in buffer was never written: on the very first cycle it
	// holds silence, the stale-replay behaviour of a freshly started
	// stream.
	assert.Equal(t, []float64{0, 0, 0, 0}, out)
}

func TestFrameExchangeReset(t *testing.T) {
	fe, err := NewFrameExchange(4)
	require.NoError(t, err)

	require.True(t, fe.TrySubmit())
	fe.Complete(constantFrame(1, 4))

	// Leave the cursor mid-frame with a request in flight.
	out := make([]float64, 2)
	require.True(t, fe.ReadBlock(out))
	require.True(t, fe.TrySubmit())

	fe.Reset()

	// Back to the initial state: passthrough, slot open.
	assert.False(t, fe.HasOutput())
	assert.False(t, fe.Outstanding())
	assert.False(t, fe.ReadBlock(out))
	assert.True(t, fe.TrySubmit())

	// Pre-reset buffer contents never leak into later frames: the cursor
	// starts at zero and the first completion plays back in full.
	fe.Complete(constantFrame(2, 4))
	full := make([]float64, 4)
	require.True(t, fe.ReadBlock(full))
	assert.Equal(t, []float64{2, 2, 2, 2}, full)
}

func TestFrameExchangeBlockStraddlesBoundary(t *testing.T) {
	fe, err := NewFrameExchange(4)
	require.NoError(t, err)

	require.True(t, fe.TrySubmit())
	fe.Complete(constantFrame(1, 4))

	out := make([]float64, 3)
	require.True(t, fe.ReadBlock(out))
	assert.Equal(t, []float64{1, 1, 1}, out)

	require.True(t, fe.TrySubmit())
	fe.Complete(constantFrame(2, 4))

	// The next read takes the last sample of frame one and continues into
	// frame two without a seam.
	require.True(t, fe.ReadBlock(out))
	assert.Equal(t, []float64{1, 2, 2}, out)
}
