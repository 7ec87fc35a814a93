// Package stream acquires audio from an external decoder process and hands
// it to the segmentation engine through a bounded transport queue.
package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/user/stream-transcriber/internal/audio"
)

// ErrTransportFull is returned by TrySend when the queue is at capacity.
// For a live source this condition is fatal to the whole pipeline: the
// consumer is permanently behind real time, and failing loudly beats
// silently dropping or endlessly buffering audio.
var ErrTransportFull = errors.New("transport full")

// ErrTransportClosed is returned when sending on a closed transport.
var ErrTransportClosed = errors.New("transport closed")

// Transport is a bounded FIFO of segments between exactly one producer (the
// supervisor or the HTTP ingestion handler) and one consumer (the
// segmentation engine). A nil segment is the end-of-stream sentinel;
// closing the transport without a sentinel terminates the consumer too.
//
// Closure is signalled through a separate done channel rather than by
// closing the segment channel, so a sender blocked on a full queue is
// released with ErrTransportClosed instead of panicking on a send to a
// closed channel. That makes Close safe to call from a shutdown path while
// a producer is still mid-Send.
type Transport struct {
	ch   chan *audio.Segment
	done chan struct{}

	closeOnce sync.Once
}

// NewTransport creates a transport holding up to capacity segments.
func NewTransport(capacity int) *Transport {
	return &Transport{
		ch:   make(chan *audio.Segment, capacity),
		done: make(chan struct{}),
	}
}

// TransportCapacity returns the queue capacity used for a one-minute audio
// bound at the given rate and chunk size.
func TransportCapacity(sampleRate, chunkSamples int) int {
	return sampleRate * 60 / chunkSamples
}

// Send enqueues a segment, blocking while the queue is full. This is the
// finite-source policy: the producer is slowed to the consumer's pace.
func (t *Transport) Send(ctx context.Context, seg *audio.Segment) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}

	select {
	case t.ch <- seg:
		return nil
	case <-t.done:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend enqueues a segment or fails immediately with ErrTransportFull.
// This is the live-source policy: the caller treats a full queue as fatal.
func (t *Transport) TrySend(seg *audio.Segment) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}

	select {
	case t.ch <- seg:
		return nil
	default:
		return ErrTransportFull
	}
}

// Receive blocks until a segment is available. ok is false once the
// transport has been closed and drained; a nil segment with ok=true is the
// end-of-stream sentinel.
func (t *Transport) Receive(ctx context.Context) (seg *audio.Segment, ok bool, err error) {
	select {
	case seg = <-t.ch:
		return seg, true, nil
	case <-t.done:
		// Closed, but segments queued before the close still drain in order.
		select {
		case seg = <-t.ch:
			return seg, true, nil
		default:
			return nil, false, nil
		}
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Close terminates the consumer once the queue drains and releases blocked
// or subsequent sends with ErrTransportClosed. Safe to call more than once
// and with producers still in flight.
func (t *Transport) Close() {
	t.closeOnce.Do(func() { close(t.done) })
}

// Len reports the number of queued segments.
func (t *Transport) Len() int { return len(t.ch) }

// Cap reports the queue capacity.
func (t *Transport) Cap() int { return cap(t.ch) }
