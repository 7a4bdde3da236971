package anim

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"

	"github.com/visagelab/talkinghead/internal/bus"
	"github.com/visagelab/talkinghead/internal/scene"
)

// Loop is the per-frame render driver. It has exactly one state, Running,
// entered on Start and left only on Stop; every tick advances skeletal
// mixers, layers procedural motion onto the avatar root, steps the
// secondary-motion simulation, and submits one frame.
//
// A failure in any animation stage is contained and logged; the frame still
// submits and the next tick still runs.
type Loop struct {
	surface   scene.Surface
	rig       scene.Rig
	rootBone  scene.BoneHandle
	hasRoot   bool
	mixers    []Mixer
	motion    *ProceduralMotion
	secondary SecondaryMotion
	speaking  func() bool
	eventBus  *bus.EventBus
	logger    zerolog.Logger

	mu       sync.Mutex
	running  bool
	done     chan struct{}
	finished chan struct{}

	lastTick time.Time
	elapsed  float64
}

// LoopOptions wires the loop's collaborators. Surface is required; every
// other field may be nil/empty.
type LoopOptions struct {
	Surface   scene.Surface
	Rig       scene.Rig
	RootBone  string
	Mixers    []Mixer
	Motion    *ProceduralMotion
	Secondary SecondaryMotion
	Speaking  func() bool
	EventBus  *bus.EventBus
}

// NewLoop creates a stopped loop.
func NewLoop(opts LoopOptions, logger zerolog.Logger) *Loop {
	l := &Loop{
		surface:   opts.Surface,
		rig:       opts.Rig,
		mixers:    opts.Mixers,
		motion:    opts.Motion,
		secondary: opts.Secondary,
		speaking:  opts.Speaking,
		eventBus:  opts.EventBus,
		logger:    logger.With().Str("component", "loop").Logger(),
	}
	if l.motion == nil {
		l.motion = NewProceduralMotion(DefaultMotionConfig())
	}
	if l.speaking == nil {
		l.speaking = func() bool { return false }
	}
	if opts.Rig != nil && opts.RootBone != "" {
		l.rootBone, l.hasRoot = opts.Rig.ResolveBone(opts.RootBone)
	}
	return l
}

// Motion returns the procedural motion so callers can reconfigure it live.
func (l *Loop) Motion() *ProceduralMotion {
	return l.motion
}

// Start runs the loop on a background goroutine at the given frame rate.
// Rendering backends bound to the calling thread should use Run instead.
func (l *Loop) Start(fps int) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.done = make(chan struct{})
	l.finished = make(chan struct{})
	l.lastTick = time.Now()
	l.mu.Unlock()

	go l.run(fps)
}

// Run drives the loop on the calling goroutine until Stop. Required for GL
// surfaces, which are bound to their creating thread.
func (l *Loop) Run(fps int) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.done = make(chan struct{})
	l.finished = make(chan struct{})
	l.lastTick = time.Now()
	l.mu.Unlock()

	l.run(fps)
}

func (l *Loop) run(fps int) {
	defer close(l.finished)

	if fps <= 0 {
		fps = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Stop exits the loop and waits for the final tick to finish. Idempotent.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.done)
	finished := l.finished
	l.mu.Unlock()

	<-finished
}

// Running reports whether the loop is ticking.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Tick runs one full frame: delta, mixers, procedural motion, secondary
// motion, submit.
func (l *Loop) Tick() {
	now := time.Now()
	dt := now.Sub(l.lastTick).Seconds()
	l.lastTick = now

	// A stall (debugger, suspended laptop) would otherwise slam the
	// animation forward.
	if dt > 0.1 {
		dt = 0.1
	}
	l.elapsed += dt

	l.stage("mixers", func() {
		for _, m := range l.mixers {
			m.Advance(dt)
		}
	})

	l.stage("motion", func() {
		if l.rig == nil || !l.hasRoot {
			return
		}
		current := l.rig.BoneRotation(l.rootBone)
		delta := l.motion.Step(l.elapsed, dt, current, l.speaking())
		l.rig.RotateBone(l.rootBone, delta)
	})

	l.stage("secondary", func() {
		if l.secondary != nil {
			l.secondary.Update(dt * 1000)
		}
	})

	// The submit always runs, even when an animation stage blew up.
	l.stage("submit", func() {
		l.surface.Submit(scene.Frame{Model: l.modelMatrix()})
	})
}

// stage runs one tick stage with panic containment.
func (l *Loop) stage(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Str("stage", name).Interface("panic", r).Msg("Tick stage failed")
			if l.eventBus != nil {
				l.eventBus.Publish(bus.Event{
					Type: bus.EventTypeTickError,
					Data: map[string]any{"stage": name},
				})
			}
		}
	}()
	fn()
}

func (l *Loop) modelMatrix() mgl32.Mat4 {
	if l.rig == nil || !l.hasRoot {
		return mgl32.Ident4()
	}
	rot := l.rig.BoneRotation(l.rootBone)
	m := mgl32.HomogRotate3DX(rot[0])
	m = m.Mul4(mgl32.HomogRotate3DY(rot[1]))
	m = m.Mul4(mgl32.HomogRotate3DZ(rot[2]))
	return m
}
