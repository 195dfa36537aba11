package bus

import (
	"context"
	"sync"
)

// DefaultFIFOCapacity is the default bounded capacity for data-plane FIFO
// channels (§4.4, §5).
const DefaultFIFOCapacity = 2048

// FIFO is a point-to-point, single-consumer, bounded channel. Producers
// suspend when full (backpressure); ordering is preserved per producer.
type FIFO[T any] struct {
	ch chan T

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFIFO creates a FIFO with the given bounded capacity.
func NewFIFO[T any](capacity int) *FIFO[T] {
	if capacity <= 0 {
		capacity = DefaultFIFOCapacity
	}
	return &FIFO[T]{
		ch:     make(chan T, capacity),
		closed: make(chan struct{}),
	}
}

// Send enqueues v, blocking (suspending the calling task) while the channel
// is full. It returns ErrChannelClosed if the FIFO has been closed (no
// receiver remains), and ctx.Err() if ctx is cancelled first.
func (f *FIFO[T]) Send(ctx context.Context, v T) error {
	select {
	case <-f.closed:
		return ErrChannelClosed
	default:
	}

	select {
	case f.ch <- v:
		return nil
	case <-f.closed:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv dequeues the next value, blocking until one is available, the FIFO is
// closed with an empty buffer (ok=false), or ctx is cancelled.
func (f *FIFO[T]) Recv(ctx context.Context) (v T, ok bool) {
	for {
		select {
		case v, ok = <-f.ch:
			if ok {
				return v, true
			}
		default:
		}

		select {
		case v, ok = <-f.ch:
			return v, ok
		case <-f.closed:
			select {
			case v, ok = <-f.ch:
				return v, ok
			default:
				var zero T
				return zero, false
			}
		case <-ctx.Done():
			var zero T
			return zero, false
		}
	}
}

// Close marks the FIFO closed: future Sends fail with ErrChannelClosed, and
// Recv drains any buffered values before reporting ok=false.
func (f *FIFO[T]) Close() {
	f.closeOnce.Do(func() {
		close(f.closed)
	})
}
