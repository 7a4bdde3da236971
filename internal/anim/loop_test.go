package anim

import (
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rs/zerolog"

	"github.com/visagelab/talkinghead/internal/scene"
)

// fakeSurface counts submitted frames.
type fakeSurface struct {
	mu       sync.Mutex
	submits  int
	released bool
}

func (f *fakeSurface) Size() (int, int)            { return 640, 480 }
func (f *fakeSurface) OnResize(func(int, int))     {}
func (f *fakeSurface) ShouldClose() bool           { return false }
func (f *fakeSurface) Release()                    { f.mu.Lock(); f.released = true; f.mu.Unlock() }
func (f *fakeSurface) Submit(scene.Frame) {
	f.mu.Lock()
	f.submits++
	f.mu.Unlock()
}

func (f *fakeSurface) Submits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

// panickingMixer always panics on Advance.
type panickingMixer struct{}

func (panickingMixer) Advance(float64) { panic("mixer exploded") }

func TestLoop_TickSubmitsFrame(t *testing.T) {
	surface := &fakeSurface{}
	l := NewLoop(LoopOptions{Surface: surface}, zerolog.Nop())

	l.Tick()
	l.Tick()

	if got := surface.Submits(); got != 2 {
		t.Errorf("expected 2 submits, got %d", got)
	}
}

func TestLoop_PanickingStageDoesNotStopSubmission(t *testing.T) {
	surface := &fakeSurface{}
	l := NewLoop(LoopOptions{
		Surface: surface,
		Mixers:  []Mixer{panickingMixer{}},
	}, zerolog.Nop())

	// The mixer panics every tick; frames must still submit and the loop
	// must keep ticking.
	l.Tick()
	l.Tick()
	l.Tick()

	if got := surface.Submits(); got != 3 {
		t.Errorf("expected 3 submits despite panics, got %d", got)
	}
}

func TestLoop_MotionRotatesRootBone(t *testing.T) {
	rig := scene.NewMeshRig(nil, []string{"Armature"})
	surface := &fakeSurface{}
	l := NewLoop(LoopOptions{
		Surface:  surface,
		Rig:      rig,
		RootBone: "Armature",
	}, zerolog.Nop())

	// Force a nonzero dt so the recentering rate is nonzero.
	l.lastTick = time.Now().Add(-16 * time.Millisecond)
	l.Tick()

	h, _ := rig.ResolveBone("Armature")
	if rot := rig.BoneRotation(h); rot == (mgl32.Vec3{}) {
		t.Error("expected procedural motion to rotate the root bone")
	}
}

func TestLoop_StartAndStop(t *testing.T) {
	surface := &fakeSurface{}
	l := NewLoop(LoopOptions{Surface: surface}, zerolog.Nop())

	l.Start(200)
	if !l.Running() {
		t.Fatal("loop should be running after Start")
	}

	deadline := time.After(time.Second)
	for surface.Submits() == 0 {
		select {
		case <-deadline:
			t.Fatal("loop never submitted a frame")
		case <-time.After(5 * time.Millisecond):
		}
	}

	l.Stop()
	if l.Running() {
		t.Error("loop should not be running after Stop")
	}

	// Idempotent.
	l.Stop()

	count := surface.Submits()
	time.Sleep(50 * time.Millisecond)
	if surface.Submits() != count {
		t.Error("loop kept submitting after Stop returned")
	}
}

func TestLoop_DoubleStartIgnored(t *testing.T) {
	surface := &fakeSurface{}
	l := NewLoop(LoopOptions{Surface: surface}, zerolog.Nop())

	l.Start(100)
	l.Start(100)
	l.Stop()
}

func TestLoop_SpeakingCallbackUsed(t *testing.T) {
	rig := scene.NewMeshRig(nil, []string{"Armature"})
	surface := &fakeSurface{}

	var asked bool
	l := NewLoop(LoopOptions{
		Surface:  surface,
		Rig:      rig,
		RootBone: "Armature",
		Speaking: func() bool { asked = true; return true },
	}, zerolog.Nop())

	l.lastTick = time.Now().Add(-16 * time.Millisecond)
	l.Tick()

	if !asked {
		t.Error("tick should consult the speaking callback")
	}
}
