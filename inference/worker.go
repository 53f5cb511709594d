package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultQueueDepth is the default bound on queued worker tasks.
const DefaultQueueDepth = 8

// readyTimeout bounds how long Start waits for the worker goroutine to come
// up before reporting failure.
const readyTimeout = 5 * time.Second

// ErrWorkerClosed is returned by Close when the worker was never started or
// was already shut down.
var ErrWorkerClosed = errors.New("inference: worker is closed")

// Worker is the single goroutine that executes model inference and the
// processing that surrounds it. Tasks are submitted without blocking; when
// the queue is full the task is dropped and TrySubmit returns false, so a
// slow model degrades quality instead of stalling the audio callback.
//
// All model state touched by submitted tasks is confined to this goroutine.
type Worker struct {
	tasks chan func()

	mu      sync.Mutex
	started bool
	closed  bool
	done    chan struct{}
}

// NewWorker creates a worker with the given task queue depth. A
// non-positive depth uses DefaultQueueDepth.
func NewWorker(queueDepth int) *Worker {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &Worker{
		tasks: make(chan func(), queueDepth),
		done:  make(chan struct{}),
	}
}

// Start launches the worker goroutine and waits for it to signal readiness.
// The context cancels the goroutine; queued tasks still drain on Close.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started || w.closed {
		w.mu.Unlock()
		return fmt.Errorf("worker already started or closed")
	}
	w.started = true
	w.mu.Unlock()

	ready := make(chan struct{})
	go w.run(ctx, ready)

	select {
	case <-ready:
	case <-time.After(readyTimeout):
		return fmt.Errorf("%w: worker did not start within %s", ErrInitializationTimeout, readyTimeout)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Worker.Start",
		"queue_depth": cap(w.tasks),
	}).Info("Inference worker started")
	return nil
}

func (w *Worker) run(ctx context.Context, ready chan<- struct{}) {
	defer close(w.done)
	close(ready)

	for {
		select {
		case task, ok := <-w.tasks:
			if !ok {
				return
			}
			task()
		case <-ctx.Done():
			// Drain whatever is already queued so in-flight buffers are
			// returned to their freelists, then exit.
			for {
				select {
				case task, ok := <-w.tasks:
					if !ok {
						return
					}
					task()
				default:
					return
				}
			}
		}
	}
}

// TrySubmit enqueues a task without blocking. It returns false when the
// queue is full or the worker is shut down; the caller is responsible for
// releasing any resources the dropped task carried.
func (w *Worker) TrySubmit(task func()) bool {
	// The lock covers the send so a concurrent Close cannot close the
	// channel between the state check and the enqueue. The send never
	// blocks, so the critical section stays bounded.
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started || w.closed {
		return false
	}

	select {
	case w.tasks <- task:
		return true
	default:
		return false
	}
}

// Close stops accepting tasks, waits for queued tasks to finish, and
// returns once the goroutine has exited.
func (w *Worker) Close() error {
	w.mu.Lock()
	if !w.started || w.closed {
		w.mu.Unlock()
		return ErrWorkerClosed
	}
	w.closed = true
	w.mu.Unlock()

	close(w.tasks)
	<-w.done

	logrus.WithFields(logrus.Fields{
		"function": "Worker.Close",
	}).Info("Inference worker stopped")
	return nil
}
