package anim

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// MotionConfig scales procedural head motion and gaze behavior for the idle
// and speaking states.
type MotionConfig struct {
	IdleHeadMove       float32
	SpeakingHeadMove   float32
	IdleEyeContact     float32
	SpeakingEyeContact float32
}

// DefaultMotionConfig returns the stock motion scales.
func DefaultMotionConfig() MotionConfig {
	return MotionConfig{
		IdleHeadMove:       0.3,
		SpeakingHeadMove:   1.0,
		IdleEyeContact:     0.2,
		SpeakingEyeContact: 0.5,
	}
}

// Oscillator frequencies (Hz) and base amplitudes (radians) for the three
// head axes. Deliberately non-harmonic so the motion never visibly loops.
const (
	freqPitch = 0.22
	freqYaw   = 0.13
	freqRoll  = 0.17

	ampPitch = 0.012
	ampYaw   = 0.018
	ampRoll  = 0.006
)

// ProceduralMotion produces the breathing/sway head motion layered onto the
// avatar root each frame. It is a pure function of total elapsed time, the
// current accumulated rotation, and configuration, which keeps it trivially
// testable in isolation.
type ProceduralMotion struct {
	mu  sync.RWMutex
	cfg MotionConfig
}

// NewProceduralMotion creates procedural motion with the given scales.
func NewProceduralMotion(cfg MotionConfig) *ProceduralMotion {
	return &ProceduralMotion{cfg: cfg}
}

// SetConfig swaps the motion scales (live config reload).
func (pm *ProceduralMotion) SetConfig(cfg MotionConfig) {
	pm.mu.Lock()
	pm.cfg = cfg
	pm.mu.Unlock()
}

// Step computes the incremental root rotation for one frame.
//
// elapsed is total time since the loop started, dt the frame delta, both in
// seconds. current is the root's accumulated rotation. The oscillators are
// functions of elapsed time scaled by the speaking or idle head-move
// multiplier; the eye-contact scale pulls the head back toward facing the
// viewer, stronger contact meaning a steadier head.
func (pm *ProceduralMotion) Step(elapsed, dt float64, current mgl32.Vec3, speaking bool) mgl32.Vec3 {
	pm.mu.RLock()
	cfg := pm.cfg
	pm.mu.RUnlock()

	headMove := cfg.IdleHeadMove
	eyeContact := cfg.IdleEyeContact
	if speaking {
		headMove = cfg.SpeakingHeadMove
		eyeContact = cfg.SpeakingEyeContact
	}

	target := mgl32.Vec3{
		ampPitch * headMove * osc(elapsed, freqPitch, 0.0),
		ampYaw * headMove * osc(elapsed, freqYaw, 1.7),
		ampRoll * headMove * osc(elapsed, freqRoll, 3.9),
	}

	// Recenter toward the oscillator target; the eye-contact scale tightens
	// the pull so a high-contact avatar holds its gaze.
	rate := float32(dt) * (2.0 + 6.0*eyeContact)
	if rate > 1 {
		rate = 1
	}

	return target.Sub(current).Mul(rate)
}

// osc is a layered sine: a base wave with two quieter detuned harmonics,
// normalized to [-1, 1].
func osc(t, freq, phase float64) float32 {
	w := 2 * math.Pi * freq * t
	n := math.Sin(w+phase) + 0.5*math.Sin(w*2.3+phase+1.7) + 0.25*math.Sin(w*4.1+phase+3.2)
	return float32(n / 1.75)
}
