package anim

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestProceduralMotion_Deterministic(t *testing.T) {
	pm := NewProceduralMotion(DefaultMotionConfig())

	a := pm.Step(2.5, 0.016, mgl32.Vec3{}, false)
	b := pm.Step(2.5, 0.016, mgl32.Vec3{}, false)

	if a != b {
		t.Errorf("same inputs produced different deltas: %v vs %v", a, b)
	}
}

func TestProceduralMotion_SpeakingMovesMore(t *testing.T) {
	pm := NewProceduralMotion(DefaultMotionConfig())

	var idleSum, speakSum float64
	for i := 0; i < 200; i++ {
		elapsed := float64(i) * 0.05
		idle := pm.Step(elapsed, 0.016, mgl32.Vec3{}, false)
		speak := pm.Step(elapsed, 0.016, mgl32.Vec3{}, true)
		idleSum += float64(idle.Len())
		speakSum += float64(speak.Len())
	}

	if speakSum <= idleSum {
		t.Errorf("speaking motion should exceed idle motion: %f vs %f", speakSum, idleSum)
	}
}

func TestProceduralMotion_AmplitudeBounded(t *testing.T) {
	pm := NewProceduralMotion(DefaultMotionConfig())

	// Walk the oscillators; the accumulated rotation must stay within the
	// configured amplitudes (plus a small overshoot margin).
	current := mgl32.Vec3{}
	for i := 0; i < 10000; i++ {
		elapsed := float64(i) * 0.016
		delta := pm.Step(elapsed, 0.016, current, true)
		current = current.Add(delta)
	}

	limits := mgl32.Vec3{ampPitch, ampYaw, ampRoll}
	for axis := 0; axis < 3; axis++ {
		if math.Abs(float64(current[axis])) > float64(limits[axis])*1.5 {
			t.Errorf("axis %d drifted to %f, limit %f", axis, current[axis], limits[axis])
		}
	}
}

func TestProceduralMotion_RecentersTowardTarget(t *testing.T) {
	pm := NewProceduralMotion(DefaultMotionConfig())

	// From a large displacement the delta must point back toward the
	// oscillator target, which is tiny by comparison.
	far := mgl32.Vec3{0.5, 0.5, 0.5}
	delta := pm.Step(0, 0.016, far, false)

	for axis := 0; axis < 3; axis++ {
		if delta[axis] >= 0 {
			t.Errorf("axis %d should pull back toward center, got delta %f", axis, delta[axis])
		}
	}
}

func TestProceduralMotion_RateCapped(t *testing.T) {
	pm := NewProceduralMotion(MotionConfig{
		IdleHeadMove:   1,
		IdleEyeContact: 1,
	})

	// A huge dt must not overshoot the target.
	far := mgl32.Vec3{0.2, 0, 0}
	delta := pm.Step(0, 10.0, far, false)
	after := far.Add(delta)

	target := pm.Step(0, 10.0, mgl32.Vec3{}, false) // rate capped at 1 → delta == target
	if math.Abs(float64(after[0]-target[0])) > 1e-6 {
		t.Errorf("capped rate should land exactly on target: %f vs %f", after[0], target[0])
	}
}

func TestOsc_Normalized(t *testing.T) {
	for i := 0; i < 1000; i++ {
		v := osc(float64(i)*0.173, 0.22, 1.1)
		if v < -1.001 || v > 1.001 {
			t.Fatalf("oscillator escaped [-1,1]: %f", v)
		}
	}
}
