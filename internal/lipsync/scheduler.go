package lipsync

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/visagelab/talkinghead/internal/bus"
)

// Renderer is the morph-target surface the scheduler drives. Implementations
// must tolerate calls before an avatar mesh is resolved (no-op, no error).
type Renderer interface {
	Apply(v Viseme)
	ApplySilence()
}

// Scheduler turns a Timeline into a cancellable set of deferred renderer
// calls anchored to the playback clock.
//
// Cancellation policy: starting a new Schedule always cancels every event
// still pending from the previous one. Letting both run was observed to
// leave stale visemes applied after the next utterance began, so overlap is
// treated as a defect, not an option. A generation counter makes this a hard
// barrier: a timer that already fired but has not been serviced yet sees a
// newer generation and does nothing.
type Scheduler struct {
	mu       sync.Mutex
	timers   TimerSet
	renderer Renderer
	eventBus *bus.EventBus
	logger   zerolog.Logger

	generation uint64
	pending    map[TaskHandle]struct{}
	speaking   bool
}

type taskRef struct {
	handle TaskHandle
}

// NewScheduler creates a scheduler over the given timer set. eventBus may be
// nil.
func NewScheduler(renderer Renderer, timers TimerSet, eventBus *bus.EventBus, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		timers:   timers,
		renderer: renderer,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		pending:  make(map[TaskHandle]struct{}),
	}
}

// Schedule registers the timeline's events to fire offsetSeconds from now.
// All previously pending events are cancelled first. An empty timeline
// performs no scheduling and leaves the speaking state unchanged.
//
// offsetSeconds may be negative when perceived latency is smaller than the
// minimum compensation delay; fire times that land in the past are clamped
// to fire immediately rather than being dropped.
func (s *Scheduler) Schedule(tl *Timeline, offsetSeconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()

	if tl.Empty() {
		return
	}

	wasSpeaking := s.speaking
	s.speaking = true
	gen := s.generation

	for _, ev := range tl.Events {
		s.scheduleLocked(gen, ev.Offset+offsetSeconds, ev.Viseme, false)
	}
	s.scheduleLocked(gen, tl.Duration+offsetSeconds, VisemeSil, true)

	s.logger.Debug().
		Int("events", len(tl.Events)).
		Float64("duration", tl.Duration).
		Float64("offset", offsetSeconds).
		Msg("Timeline scheduled")

	if !wasSpeaking {
		s.publish(bus.EventTypeSpeakingStarted, nil)
	}
}

// scheduleLocked registers one deferred event. Caller holds s.mu.
func (s *Scheduler) scheduleLocked(gen uint64, atSeconds float64, v Viseme, terminal bool) {
	d := time.Duration(atSeconds * float64(time.Second))
	if d < 0 {
		d = 0
	}

	ref := &taskRef{}
	ref.handle = s.timers.Schedule(d, func() {
		s.fire(gen, ref, v, terminal)
	})
	s.pending[ref.handle] = struct{}{}
}

// fire services one due event. Events belonging to a cancelled generation
// are discarded so a stale callback can never flip state back.
func (s *Scheduler) fire(gen uint64, ref *taskRef, v Viseme, terminal bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return
	}
	delete(s.pending, ref.handle)

	if terminal {
		s.renderer.ApplySilence()
		s.speaking = false
		s.publish(bus.EventTypeSpeakingStopped, nil)
		return
	}

	s.renderer.Apply(v)
	s.publish(bus.EventTypeVisemeApplied, map[string]any{"viseme": string(v)})
}

// CancelAll cancels every outstanding deferred event and empties the pending
// set. Idempotent. The speaking flag is left as is; use StopSpeaking to
// force silence.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

// StopSpeaking is the single cancellation point: it cancels every pending
// event, applies silence, and clears the speaking flag before returning. No
// previously scheduled callback can mutate state afterwards.
func (s *Scheduler) StopSpeaking() {
	s.mu.Lock()
	wasSpeaking := s.speaking
	s.cancelLocked()
	s.renderer.ApplySilence()
	s.speaking = false
	if wasSpeaking {
		s.publish(bus.EventTypeSpeakingStopped, nil)
	}
	s.mu.Unlock()
}

func (s *Scheduler) cancelLocked() {
	s.generation++
	s.timers.CancelAll()
	if len(s.pending) > 0 {
		s.pending = make(map[TaskHandle]struct{})
	}
}

// IsSpeaking reports whether a timeline is currently active.
func (s *Scheduler) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// PendingCount returns the number of outstanding scheduled events.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) publish(t bus.EventType, data map[string]any) {
	if s.eventBus != nil {
		s.eventBus.Publish(bus.Event{Type: t, Data: data})
	}
}
