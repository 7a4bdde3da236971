// Package scene defines the minimal capability surface the animation core
// needs from a scene graph: named morph channels with weighted influences,
// named bones with rotations, and a render surface to submit frames to.
// Everything above this package is testable without a real renderer.
package scene

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// MorphHandle identifies a resolved morph channel on a rig.
type MorphHandle int

// BoneHandle identifies a resolved bone on a rig.
type BoneHandle int

// Rig is the capability interface the renderer and animation loop mutate.
// Resolution returns false for channels the loaded avatar lacks; callers
// treat that as a silent no-op, not an error.
type Rig interface {
	ResolveMorphChannel(name string) (MorphHandle, bool)
	SetInfluence(h MorphHandle, value float32)
	Influence(h MorphHandle) float32
	ResolveBone(name string) (BoneHandle, bool)
	RotateBone(h BoneHandle, delta mgl32.Vec3)
	BoneRotation(h BoneHandle) mgl32.Vec3
}

// MeshRig is an in-memory Rig over a named morph-channel table and bone set.
// It backs both the glTF-loaded avatar and headless tests.
type MeshRig struct {
	mu sync.RWMutex

	channelNames []string
	channelIndex map[string]MorphHandle
	influences   []float32

	boneNames []string
	boneIndex map[string]BoneHandle
	rotations []mgl32.Vec3

	mesh *MorphMesh // nil for headless rigs

	dirty bool
}

// NewMeshRig builds a rig from channel and bone name tables.
func NewMeshRig(channels, bones []string) *MeshRig {
	r := &MeshRig{
		channelNames: append([]string(nil), channels...),
		channelIndex: make(map[string]MorphHandle, len(channels)),
		influences:   make([]float32, len(channels)),
		boneNames:    append([]string(nil), bones...),
		boneIndex:    make(map[string]BoneHandle, len(bones)),
		rotations:    make([]mgl32.Vec3, len(bones)),
	}
	for i, name := range channels {
		r.channelIndex[name] = MorphHandle(i)
	}
	for i, name := range bones {
		r.boneIndex[name] = BoneHandle(i)
	}
	return r
}

// ResolveMorphChannel looks up a channel by name.
func (r *MeshRig) ResolveMorphChannel(name string) (MorphHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.channelIndex[name]
	return h, ok
}

// SetInfluence sets a channel weight, clamped to [0,1].
func (r *MeshRig) SetInfluence(h MorphHandle, value float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(h) < 0 || int(h) >= len(r.influences) {
		return
	}
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	if r.influences[h] != value {
		r.influences[h] = value
		r.dirty = true
	}
}

// Influence returns the current weight of a channel.
func (r *MeshRig) Influence(h MorphHandle) float32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(h) < 0 || int(h) >= len(r.influences) {
		return 0
	}
	return r.influences[h]
}

// Influences returns a copy of all channel weights in channel order.
func (r *MeshRig) Influences() []float32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]float32, len(r.influences))
	copy(out, r.influences)
	return out
}

// ChannelNames returns the channel name table in handle order.
func (r *MeshRig) ChannelNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.channelNames...)
}

// ResolveBone looks up a bone by name.
func (r *MeshRig) ResolveBone(name string) (BoneHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.boneIndex[name]
	return h, ok
}

// RotateBone applies an incremental Euler rotation to a bone.
func (r *MeshRig) RotateBone(h BoneHandle, delta mgl32.Vec3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(h) < 0 || int(h) >= len(r.rotations) {
		return
	}
	r.rotations[h] = r.rotations[h].Add(delta)
	r.dirty = true
}

// BoneRotation returns a bone's accumulated Euler rotation.
func (r *MeshRig) BoneRotation(h BoneHandle) mgl32.Vec3 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(h) < 0 || int(h) >= len(r.rotations) {
		return mgl32.Vec3{}
	}
	return r.rotations[h]
}

// SetBoneRotation overwrites a bone's rotation. Used on reset.
func (r *MeshRig) SetBoneRotation(h BoneHandle, rot mgl32.Vec3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(h) < 0 || int(h) >= len(r.rotations) {
		return
	}
	r.rotations[h] = rot
	r.dirty = true
}

// Mesh returns the morph mesh backing this rig, or nil for headless rigs.
func (r *MeshRig) Mesh() *MorphMesh {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mesh
}

// TakeDirty reports and clears the dirty flag. The surface uses it to skip
// re-uploading unchanged vertex data.
func (r *MeshRig) TakeDirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.dirty
	r.dirty = false
	return d
}

// MorphedPositions blends the base positions with every active morph target
// delta, weighted by the current influences.
func (r *MeshRig) MorphedPositions() []mgl32.Vec3 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.mesh == nil {
		return nil
	}

	out := make([]mgl32.Vec3, len(r.mesh.Positions))
	copy(out, r.mesh.Positions)

	for ti, target := range r.mesh.Targets {
		if ti >= len(r.influences) {
			break
		}
		w := r.influences[ti]
		if w <= 0 {
			continue
		}
		for vi := range target.PositionDeltas {
			if vi >= len(out) {
				break
			}
			out[vi] = out[vi].Add(target.PositionDeltas[vi].Mul(w))
		}
	}

	return out
}
