// Package session owns the lifecycle of one talking avatar: attach a render
// surface and assets, stream speech chunks in, dispose. It wires the audio
// playback clock, the viseme scheduler, the morph renderer, and the render
// loop together.
package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/visagelab/talkinghead/internal/anim"
	"github.com/visagelab/talkinghead/internal/audio"
	"github.com/visagelab/talkinghead/internal/bus"
	"github.com/visagelab/talkinghead/internal/config"
	"github.com/visagelab/talkinghead/internal/lipsync"
	"github.com/visagelab/talkinghead/internal/scene"
)

// Common errors
var (
	ErrDisposed    = errors.New("session disposed")
	ErrNotAttached = errors.New("session not attached")
)

// SpeechChunk is one unit of inbound speech: raw audio plus the word timing
// needed to lip-sync it. Word times are seconds relative to the start of the
// utterance's audio.
type SpeechChunk struct {
	Samples        []byte
	Encoding       audio.Encoding
	Words          []string
	WordStartTimes []float64
	WordDurations  []float64
	Mood           string
}

// Session is one avatar instance. All methods are safe for concurrent use;
// StreamAudio never blocks on playback or rendering.
type Session struct {
	id       string
	cfg      *config.Config
	eventBus *bus.EventBus
	logger   zerolog.Logger

	renderer  *anim.MorphRenderer
	scheduler *lipsync.Scheduler
	player    *audio.Player
	mapper    lipsync.Mapper
	secondary anim.SecondaryMotion
	mixers    []anim.Mixer

	mu       sync.Mutex
	surface  scene.Surface
	loop     *anim.Loop
	attached bool
	disposed bool

	disposeOnce sync.Once
}

// New builds a detached session from configuration. The audio engine is not
// opened until the first chunk arrives.
func New(cfg *config.Config, engine audio.Engine, eventBus *bus.EventBus, logger zerolog.Logger) *Session {
	id := uuid.New().String()
	log := logger.With().Str("component", "session").Str("session_id", id).Logger()

	renderer := anim.NewMorphRenderer(log)
	scheduler := lipsync.NewScheduler(renderer, lipsync.NewWallTimers(), eventBus, log)

	return &Session{
		id:        id,
		cfg:       cfg,
		eventBus:  eventBus,
		logger:    log,
		renderer:  renderer,
		scheduler: scheduler,
		player:    audio.NewPlayer(engine, eventBus, log),
		mapper:    lipsync.MapperFor(cfg.Avatar.LipsyncLang),
		secondary: anim.NopSecondaryMotion{},
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// SetSecondaryMotion replaces the dynamic-bones collaborator. Must be called
// before Attach.
func (s *Session) SetSecondaryMotion(sm anim.SecondaryMotion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sm == nil {
		sm = anim.NopSecondaryMotion{}
	}
	s.secondary = sm
}

// SetMixers installs skeletal animation mixers, advanced by the render loop
// each tick. Must be called before Attach.
func (s *Session) SetMixers(mixers ...anim.Mixer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mixers = mixers
}

// Attach binds the session to a render surface and loaded assets and prepares
// the render loop. A nil assets is tolerated: the session stays usable (audio
// plays, events fire) with rendering reduced to empty frames.
//
// Attach does not start ticking; call Run (blocking, for thread-bound
// surfaces) or Start afterwards.
func (s *Session) Attach(surface scene.Surface, assets *scene.Assets) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrDisposed
	}
	if s.attached {
		return errors.New("session already attached")
	}

	var rig scene.Rig
	rootBone := s.cfg.Avatar.ModelRoot
	mixers := append([]anim.Mixer(nil), s.mixers...)
	if assets != nil && assets.Rig != nil {
		rig = assets.Rig
		if assets.RootBone != "" {
			rootBone = assets.RootBone
		}
		if assets.Mixer != nil {
			mixers = append(mixers, assets.Mixer)
		}
		s.renderer.BindRig(rig)
		if err := s.secondary.Setup(rig, rootBone, nil); err != nil {
			s.logger.Warn().Err(err).Msg("Secondary motion setup failed, continuing without")
			s.secondary = anim.NopSecondaryMotion{}
		}
	} else {
		s.logger.Warn().Msg("No avatar assets, rendering empty frames")
	}

	motion := anim.NewProceduralMotion(anim.MotionConfig{
		IdleHeadMove:       s.cfg.Avatar.IdleHeadMove,
		SpeakingHeadMove:   s.cfg.Avatar.SpeakingHeadMove,
		IdleEyeContact:     s.cfg.Avatar.IdleEyeContact,
		SpeakingEyeContact: s.cfg.Avatar.SpeakingEyeContact,
	})

	s.surface = surface
	s.loop = anim.NewLoop(anim.LoopOptions{
		Surface:   surface,
		Rig:       rig,
		RootBone:  rootBone,
		Mixers:    mixers,
		Motion:    motion,
		Secondary: s.secondary,
		Speaking:  s.scheduler.IsSpeaking,
		EventBus:  s.eventBus,
	}, s.logger)
	s.attached = true

	s.logger.Info().Msg("Session attached")
	s.publish(bus.EventTypeAttached, nil)

	return nil
}

// Run drives the render loop on the calling goroutine until Dispose or Stop.
// GL surfaces must be driven from the thread that created them, so this is
// the main-thread entry point.
func (s *Session) Run(fps int) error {
	s.mu.Lock()
	loop := s.loop
	s.mu.Unlock()

	if loop == nil {
		return ErrNotAttached
	}
	loop.Run(fps)
	return nil
}

// Start runs the render loop on a background goroutine. For headless use.
func (s *Session) Start(fps int) error {
	s.mu.Lock()
	loop := s.loop
	s.mu.Unlock()

	if loop == nil {
		return ErrNotAttached
	}
	loop.Start(fps)
	return nil
}

// StreamAudio accepts one speech chunk: the samples are queued for playback
// and the word timing is scheduled as viseme events against the playback
// clock. Returns quickly; the actual animation happens on timers.
//
// Scheduling a chunk cancels any viseme events still pending from a previous
// one, so callers streaming sentence by sentence get a clean transition.
func (s *Session) StreamAudio(chunk SpeechChunk) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	s.mu.Unlock()

	samples, err := audio.DecodeSamples(chunk.Samples, chunk.Encoding)
	if err != nil {
		return err
	}

	if err := s.player.EnsureReady(s.cfg.Audio.SampleRate); err != nil {
		// No silent fallback: an avatar animating against a dead clock would
		// drift arbitrarily.
		return err
	}

	if len(samples) > 0 {
		s.player.Feed(samples)
	}

	s.publish(bus.EventTypeChunkReceived, map[string]any{
		"samples": len(samples),
		"words":   len(chunk.Words),
	})

	if chunk.Mood != "" {
		s.applyMood(chunk.Mood)
	}

	if len(chunk.Words) == 0 {
		return nil
	}

	s.mu.Lock()
	mapper := s.mapper
	s.mu.Unlock()

	tl := lipsync.ComputeTimeline(mapper, chunk.Words, chunk.WordStartTimes, chunk.WordDurations)
	offset := s.cfg.Audio.LatencyCompensation.Seconds() - s.player.Elapsed()
	s.scheduler.Schedule(tl, offset)

	return nil
}

// SetMood adjusts the avatar's mood morph channels. Unknown moods no-op.
func (s *Session) SetMood(name string) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.applyMood(name)
}

func (s *Session) applyMood(name string) {
	s.renderer.ApplyMood(name)
	s.publish(bus.EventTypeMoodChanged, map[string]any{"mood": name})
}

// ApplyAvatarConfig applies reloadable avatar settings to a live session:
// motion scales and the lip-sync language. Structural settings take effect on
// the next attach.
func (s *Session) ApplyAvatarConfig(av config.AvatarConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mapper = lipsync.MapperFor(av.LipsyncLang)
	if s.loop != nil {
		s.loop.Motion().SetConfig(anim.MotionConfig{
			IdleHeadMove:       av.IdleHeadMove,
			SpeakingHeadMove:   av.SpeakingHeadMove,
			IdleEyeContact:     av.IdleEyeContact,
			SpeakingEyeContact: av.SpeakingEyeContact,
		})
	}
	s.logger.Debug().Str("lang", av.LipsyncLang).Msg("Avatar config applied")
}

// StopSpeaking cancels all pending viseme events, forces silence, and rebases
// the playback clock so the next utterance schedules from zero.
func (s *Session) StopSpeaking() {
	s.scheduler.StopSpeaking()
	s.player.ResetAnchor()
}

// IsSpeaking reports whether a viseme timeline is active.
func (s *Session) IsSpeaking() bool {
	return s.scheduler.IsSpeaking()
}

// Player exposes the playback bridge, mainly for clock inspection.
func (s *Session) Player() *audio.Player {
	return s.player
}

// Scheduler exposes the viseme scheduler, mainly for state inspection.
func (s *Session) Scheduler() *lipsync.Scheduler {
	return s.scheduler
}

// Dispose tears the session down: pending visemes are cancelled, the loop
// stops, the surface and audio engine are released. Safe to call more than
// once; only the first call does work.
func (s *Session) Dispose() {
	s.disposeOnce.Do(func() {
		s.mu.Lock()
		s.disposed = true
		loop := s.loop
		surface := s.surface
		s.loop = nil
		s.surface = nil
		s.attached = false
		s.mu.Unlock()

		s.scheduler.StopSpeaking()
		if loop != nil {
			loop.Stop()
		}
		s.secondary.Dispose()
		if err := s.player.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Audio engine close failed")
		}
		if surface != nil {
			surface.Release()
		}

		s.logger.Info().Msg("Session disposed")
		s.publish(bus.EventTypeDisposed, nil)
	})
}

func (s *Session) publish(t bus.EventType, data map[string]any) {
	if s.eventBus != nil {
		s.eventBus.Publish(bus.Event{Type: t, Data: data})
	}
}
