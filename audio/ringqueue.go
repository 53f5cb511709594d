package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// RingQueue is the fixed-capacity output queue between the inference worker
// and the real-time callback for hop-granular noise models. The worker
// writes completed hops; the callback reads one block per invocation.
//
// Overflow discards the oldest unread audio (the read cursor jumps forward)
// so the queue always holds the freshest samples. Underrun returns false and
// the callback emits silence for that block. Neither side ever blocks; the
// mutex guards only a few index updates and a bounded copy.
type RingQueue struct {
	mu        sync.Mutex
	buf       []float64
	capacity  int
	readPos   int
	writePos  int
	available int

	overflowed atomic.Int64 // total samples discarded by overflow
}

// NewRingQueue creates a queue holding up to capacity samples.
func NewRingQueue(capacity int) (*RingQueue, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", capacity)
	}
	return &RingQueue{
		buf:      make([]float64, capacity),
		capacity: capacity,
	}, nil
}

// Write appends samples at the write cursor with wraparound. If the queue
// would exceed capacity, the read cursor advances past the oldest samples
// and available is clamped to capacity. Writes larger than the whole
// capacity keep only the trailing samples.
func (rq *RingQueue) Write(samples []float64) {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if len(samples) > rq.capacity {
		rq.overflowed.Add(int64(len(samples) - rq.capacity))
		samples = samples[len(samples)-rq.capacity:]
	}

	for _, s := range samples {
		rq.buf[rq.writePos] = s
		rq.writePos++
		if rq.writePos == rq.capacity {
			rq.writePos = 0
		}
	}

	rq.available += len(samples)
	if rq.available > rq.capacity {
		excess := rq.available - rq.capacity
		rq.readPos = (rq.readPos + excess) % rq.capacity
		rq.available = rq.capacity
		rq.overflowed.Add(int64(excess))
	}
}

// Read copies len(out) samples into out and advances the read cursor. It
// returns false without touching out when fewer than len(out) samples are
// available; the caller emits silence for that callback.
func (rq *RingQueue) Read(out []float64) bool {
	rq.mu.Lock()
	defer rq.mu.Unlock()

	if rq.available < len(out) {
		return false
	}

	for i := range out {
		out[i] = rq.buf[rq.readPos]
		rq.readPos++
		if rq.readPos == rq.capacity {
			rq.readPos = 0
		}
	}
	rq.available -= len(out)
	return true
}

// Available returns the number of unread samples, always in [0, capacity].
func (rq *RingQueue) Available() int {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.available
}

// Capacity returns the fixed queue capacity.
func (rq *RingQueue) Capacity() int { return rq.capacity }

// Overflowed returns the total number of samples discarded by the overflow
// policy since creation.
func (rq *RingQueue) Overflowed() int64 { return rq.overflowed.Load() }

// Reset empties the queue.
func (rq *RingQueue) Reset() {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	rq.readPos = 0
	rq.writePos = 0
	rq.available = 0
}

// PendingCounter bounds the number of in-flight asynchronous inference
// requests. Hops arriving while the counter is at its maximum are dropped
// rather than queued — lossy backpressure keeps worst-case latency flat.
type PendingCounter struct {
	count atomic.Int32
	max   int32
}

// DefaultMaxPending is the reference bound on in-flight inference requests.
const DefaultMaxPending = 8

// NewPendingCounter creates a counter admitting up to max in-flight
// requests. A non-positive max uses DefaultMaxPending.
func NewPendingCounter(max int) *PendingCounter {
	if max <= 0 {
		max = DefaultMaxPending
	}
	return &PendingCounter{max: int32(max)}
}

// TryAcquire claims one in-flight slot, returning false at capacity.
func (pc *PendingCounter) TryAcquire() bool {
	for {
		n := pc.count.Load()
		if n >= pc.max {
			return false
		}
		if pc.count.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release returns one in-flight slot. Releasing below zero panics, as that
// indicates a bookkeeping bug rather than a runtime condition.
func (pc *PendingCounter) Release() {
	if pc.count.Add(-1) < 0 {
		panic("audio: PendingCounter released below zero")
	}
}

// Count returns the current number of in-flight requests.
func (pc *PendingCounter) Count() int { return int(pc.count.Load()) }

// Max returns the configured bound.
func (pc *PendingCounter) Max() int { return int(pc.max) }
