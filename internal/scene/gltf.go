package scene

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
)

// MorphTarget holds per-vertex deltas for one named blend channel.
type MorphTarget struct {
	Name           string
	PositionDeltas []mgl32.Vec3
	NormalDeltas   []mgl32.Vec3
}

// MorphMesh is the CPU-side geometry of the avatar head: base vertices plus
// one morph target per blend channel.
type MorphMesh struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	Indices   []uint32
	Targets   []MorphTarget
}

// Mixer advances a skeletal animation clip player by a frame delta. Models
// without baked animation clips yield none.
type Mixer interface {
	Advance(dtSeconds float64)
}

// Assets is the result of resolving an avatar model file.
type Assets struct {
	Rig      *MeshRig
	RootBone string // armature root node name, "" when absent
	Mixer    Mixer  // animation clip mixer, nil when the model has no clips
}

// LoadAssets reads a .glb/.gltf file and resolves it into a rig whose morph
// channels are named after the mesh's morph targets. rootName selects the
// armature node to expose as the avatar root; a model without that node
// still loads, with no bones.
func LoadAssets(path, rootName string) (*Assets, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}

	if len(doc.Meshes) == 0 {
		return nil, fmt.Errorf("model %s: no meshes", path)
	}

	gltfMesh := doc.Meshes[0]
	if len(gltfMesh.Primitives) == 0 {
		return nil, fmt.Errorf("model %s: mesh has no primitives", path)
	}
	prim := gltfMesh.Primitives[0]

	mesh := &MorphMesh{}

	posAcc, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return nil, fmt.Errorf("model %s: primitive has no positions", path)
	}
	mesh.Positions, err = readAccessorVec3(doc, uint32(posAcc))
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	if normAcc, ok := prim.Attributes[gltf.NORMAL]; ok {
		mesh.Normals, err = readAccessorVec3(doc, uint32(normAcc))
		if err != nil {
			mesh.Normals = make([]mgl32.Vec3, len(mesh.Positions))
		}
	} else {
		mesh.Normals = make([]mgl32.Vec3, len(mesh.Positions))
	}

	if prim.Indices != nil {
		mesh.Indices, err = readAccessorIndices(doc, uint32(*prim.Indices))
		if err != nil {
			return nil, fmt.Errorf("read indices: %w", err)
		}
	}

	for i, target := range prim.Targets {
		mt := MorphTarget{Name: fmt.Sprintf("target_%d", i)}
		if posIdx, ok := target[gltf.POSITION]; ok {
			mt.PositionDeltas, _ = readAccessorVec3(doc, uint32(posIdx))
		}
		if normIdx, ok := target[gltf.NORMAL]; ok {
			mt.NormalDeltas, _ = readAccessorVec3(doc, uint32(normIdx))
		}
		mesh.Targets = append(mesh.Targets, mt)
	}

	// Morph target names live in mesh extras, not in the targets themselves.
	if extras, ok := gltfMesh.Extras.(map[string]interface{}); ok {
		if targetNames, ok := extras["targetNames"].([]interface{}); ok {
			for i, name := range targetNames {
				if i >= len(mesh.Targets) {
					break
				}
				if s, ok := name.(string); ok {
					mesh.Targets[i].Name = s
				}
			}
		}
	}

	channels := make([]string, len(mesh.Targets))
	for i, t := range mesh.Targets {
		channels[i] = t.Name
	}

	var bones []string
	rootBone := ""
	for _, node := range doc.Nodes {
		if node.Name == rootName {
			rootBone = node.Name
			bones = append(bones, node.Name)
			break
		}
	}

	rig := NewMeshRig(channels, bones)
	rig.mesh = mesh
	rig.dirty = true

	return &Assets{Rig: rig, RootBone: rootBone}, nil
}

func readAccessorVec3(doc *gltf.Document, accessorIdx uint32) ([]mgl32.Vec3, error) {
	data, count, err := accessorBytes(doc, accessorIdx, gltf.AccessorVec3, 12)
	if err != nil {
		return nil, err
	}
	out := make([]mgl32.Vec3, count)
	for i := 0; i < count; i++ {
		base := i * 12
		out[i] = mgl32.Vec3{
			float32FromBits(data[base:]),
			float32FromBits(data[base+4:]),
			float32FromBits(data[base+8:]),
		}
	}
	return out, nil
}

func readAccessorIndices(doc *gltf.Document, accessorIdx uint32) ([]uint32, error) {
	if int(accessorIdx) >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	acc := doc.Accessors[accessorIdx]
	count := int(acc.Count)

	var stride int
	switch acc.ComponentType {
	case gltf.ComponentUbyte:
		stride = 1
	case gltf.ComponentUshort:
		stride = 2
	case gltf.ComponentUint:
		stride = 4
	default:
		return nil, fmt.Errorf("unsupported index component type %v", acc.ComponentType)
	}

	data, err := rawAccessorBytes(doc, acc, count*stride)
	if err != nil {
		return nil, err
	}

	out := make([]uint32, count)
	for i := 0; i < count; i++ {
		switch stride {
		case 1:
			out[i] = uint32(data[i])
		case 2:
			out[i] = uint32(binary.LittleEndian.Uint16(data[i*2:]))
		case 4:
			out[i] = binary.LittleEndian.Uint32(data[i*4:])
		}
	}
	return out, nil
}

func accessorBytes(doc *gltf.Document, accessorIdx uint32, wantType gltf.AccessorType, elemSize int) ([]byte, int, error) {
	if int(accessorIdx) >= len(doc.Accessors) {
		return nil, 0, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	acc := doc.Accessors[accessorIdx]
	if acc.Type != wantType || acc.ComponentType != gltf.ComponentFloat {
		return nil, 0, fmt.Errorf("accessor %d: unexpected type %v/%v", accessorIdx, acc.Type, acc.ComponentType)
	}
	count := int(acc.Count)
	data, err := rawAccessorBytes(doc, acc, count*elemSize)
	if err != nil {
		return nil, 0, err
	}
	return data, count, nil
}

func rawAccessorBytes(doc *gltf.Document, acc *gltf.Accessor, byteLen int) ([]byte, error) {
	if acc.BufferView == nil {
		return nil, fmt.Errorf("accessor has no buffer view")
	}
	bv := doc.BufferViews[*acc.BufferView]
	buf := doc.Buffers[bv.Buffer]

	offset := int(bv.ByteOffset) + int(acc.ByteOffset)
	if offset+byteLen > len(buf.Data) {
		return nil, fmt.Errorf("accessor data out of buffer bounds")
	}
	return buf.Data[offset : offset+byteLen], nil
}

func float32FromBits(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
