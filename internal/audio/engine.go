package audio

import (
	"sync"
	"time"
)

// Engine is the realtime audio output device boundary. It receives sample
// buffers by message passing and reports a monotonic clock reading; it never
// shares memory with the animation state.
type Engine interface {
	// Open starts the output stream. Called once, before any Write.
	Open(sampleRate int) error
	// Write enqueues samples for playback without blocking the caller.
	Write(samples []int16) error
	// Now returns the engine clock reading.
	Now() time.Duration
	// Close stops the stream and releases the device.
	Close() error
}

// PacingEngine is an Engine that consumes its queue at the configured sample
// rate on a background goroutine. It stands in for a platform audio device:
// same clock behavior, same queueing contract, no hardware. Buffering is
// unbounded; there is no backpressure to the producer.
type PacingEngine struct {
	mu         sync.Mutex
	sampleRate int
	buffered   int
	consumed   int64
	started    time.Time
	open       bool
	closed     bool
	done       chan struct{}
}

// NewPacingEngine creates an unopened pacing engine.
func NewPacingEngine() *PacingEngine {
	return &PacingEngine{}
}

// Open starts the consumption goroutine and anchors the engine clock.
func (e *PacingEngine) Open(sampleRate int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if e.open {
		return nil
	}

	e.sampleRate = sampleRate
	e.started = time.Now()
	e.open = true
	e.done = make(chan struct{})

	go e.consume()

	return nil
}

// Write enqueues samples. Never blocks.
func (e *PacingEngine) Write(samples []int16) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if !e.open {
		return ErrNotReady
	}

	e.buffered += len(samples)
	return nil
}

// Now returns time elapsed since Open.
func (e *PacingEngine) Now() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.open {
		return 0
	}
	return time.Since(e.started)
}

// Buffered returns the number of samples queued but not yet consumed.
func (e *PacingEngine) Buffered() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffered
}

// Consumed returns the total number of samples drained since Open.
func (e *PacingEngine) Consumed() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.consumed
}

// Close stops consumption. Safe to call on an unopened engine.
func (e *PacingEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	if e.open {
		close(e.done)
		e.open = false
	}
	return nil
}

// consume drains the queue at the sample rate.
func (e *PacingEngine) consume() {
	const interval = 10 * time.Millisecond

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.mu.Lock()
			want := int(float64(e.sampleRate) * interval.Seconds())
			if want > e.buffered {
				want = e.buffered
			}
			e.buffered -= want
			e.consumed += int64(want)
			e.mu.Unlock()
		}
	}
}
