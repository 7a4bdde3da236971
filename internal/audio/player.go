package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/visagelab/talkinghead/internal/bus"
)

// Player is the playback bridge: it owns the output engine and the reference
// clock anchor that viseme scheduling offsets are computed against.
//
// The anchor is captured once, the first time the engine comes up; all
// scheduling is relative to Elapsed() = Now() - anchor. ResetAnchor rebases
// it so offsets restart from zero after a forced stop.
type Player struct {
	mu       sync.Mutex
	engine   Engine
	eventBus *bus.EventBus
	logger   zerolog.Logger

	ready  bool
	closed bool
	anchor time.Duration

	// Samples fed before the engine was ready; flushed on EnsureReady.
	preroll [][]int16
}

// NewPlayer creates a player over the given engine. eventBus may be nil.
func NewPlayer(engine Engine, eventBus *bus.EventBus, logger zerolog.Logger) *Player {
	return &Player{
		engine:   engine,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "audio").Logger(),
	}
}

// EnsureReady lazily starts the output engine on first use and captures the
// clock anchor. Engine start failure is fatal to the caller; there is no
// silent fallback.
func (p *Player) EnsureReady(sampleRate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrEngineClosed
	}
	if p.ready {
		return nil
	}

	if err := p.engine.Open(sampleRate); err != nil {
		return fmt.Errorf("audio output init: %w", err)
	}

	p.ready = true
	p.anchor = p.engine.Now()

	for _, samples := range p.preroll {
		if err := p.engine.Write(samples); err != nil {
			p.logger.Warn().Err(err).Msg("Dropped pre-roll samples")
		}
	}
	p.preroll = nil

	p.logger.Info().Int("sample_rate", sampleRate).Msg("Audio output ready")
	p.publish(bus.EventTypeAudioReady, map[string]any{"sample_rate": sampleRate})

	return nil
}

// Feed enqueues raw samples for playback. It never blocks and never fails:
// samples fed before EnsureReady are held in a pre-roll queue, samples fed
// after Close are dropped with a warning.
func (p *Player) Feed(samples []int16) {
	if len(samples) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.logger.Warn().Int("samples", len(samples)).Msg("Feed after close, dropping")
		return
	}

	if !p.ready {
		p.preroll = append(p.preroll, samples)
		return
	}

	if err := p.engine.Write(samples); err != nil {
		p.logger.Warn().Err(err).Msg("Engine write failed, samples dropped")
		return
	}

	p.publish(bus.EventTypeAudioFed, map[string]any{"samples": len(samples)})
}

// Now returns the engine clock reading.
func (p *Player) Now() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		return 0
	}
	return p.engine.Now()
}

// Elapsed returns engine time since the anchor, in seconds. This is the
// value viseme offsets are scheduled against.
func (p *Player) Elapsed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		return 0
	}
	return (p.engine.Now() - p.anchor).Seconds()
}

// ResetAnchor rebases the clock anchor to the current engine time, so
// subsequent scheduling offsets restart from zero.
func (p *Player) ResetAnchor() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		return
	}
	p.anchor = p.engine.Now()
	p.publish(bus.EventTypeClockReset, nil)
}

// Ready reports whether the engine has been started.
func (p *Player) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Close shuts the engine down. Safe to call more than once.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.ready = false
	p.preroll = nil

	return p.engine.Close()
}

func (p *Player) publish(t bus.EventType, data map[string]any) {
	if p.eventBus != nil {
		p.eventBus.Publish(bus.Event{Type: t, Data: data})
	}
}
