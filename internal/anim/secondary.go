package anim

import (
	"github.com/visagelab/talkinghead/internal/scene"
)

// SecondaryMotion is the call contract for the dynamic-bones collaborator
// that simulates follow-through motion (hair, soft tissue). The simulation
// itself lives outside this module.
type SecondaryMotion interface {
	// Setup binds the simulation to the rig's armature root.
	Setup(rig scene.Rig, rootBone string, boneConfig map[string]float32) error
	// Update advances the simulation by the frame delta in milliseconds.
	Update(deltaMilliseconds float64)
	// Dispose stops the simulation and releases its state.
	Dispose()
}

// Mixer advances externally owned skeletal animation clips. The asset
// resolver hands one back alongside the mesh.
type Mixer = scene.Mixer

// NopSecondaryMotion satisfies SecondaryMotion for avatars without dynamic
// bones.
type NopSecondaryMotion struct{}

func (NopSecondaryMotion) Setup(scene.Rig, string, map[string]float32) error { return nil }
func (NopSecondaryMotion) Update(float64)                                   {}
func (NopSecondaryMotion) Dispose()                                         {}
