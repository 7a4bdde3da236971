package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Camera is a perspective camera with cached matrices.
type Camera struct {
	Position mgl32.Vec3
	Target   mgl32.Vec3
	Up       mgl32.Vec3

	FOV         float32
	AspectRatio float32
	NearPlane   float32
	FarPlane    float32

	viewMatrix       mgl32.Mat4
	projectionMatrix mgl32.Mat4
	dirty            bool
}

// NewCamera creates a camera from explicit parameters.
func NewCamera(position, target, up mgl32.Vec3, fov, aspect, near, far float32) *Camera {
	c := &Camera{
		Position:    position,
		Target:      target,
		Up:          up,
		FOV:         fov,
		AspectRatio: aspect,
		NearPlane:   near,
		FarPlane:    far,
		dirty:       true,
	}
	c.updateMatrices()
	return c
}

// NewFramingCamera creates a camera for one of the configured framing
// presets. "upper" frames head and shoulders with a portrait lens; "full"
// pulls back to show the whole figure.
func NewFramingCamera(view string, aspect float32) *Camera {
	switch view {
	case "full":
		return NewCamera(
			mgl32.Vec3{0, 0.9, 3.2},
			mgl32.Vec3{0, 0.9, 0},
			mgl32.Vec3{0, 1, 0},
			35.0,
			aspect,
			0.1, 20.0,
		)
	default: // upper
		return NewCamera(
			mgl32.Vec3{0, 1.5, 1.2},
			mgl32.Vec3{0, 1.5, 0},
			mgl32.Vec3{0, 1, 0},
			24.0,
			aspect,
			0.1, 10.0,
		)
	}
}

// ViewMatrix returns the view matrix
func (c *Camera) ViewMatrix() mgl32.Mat4 {
	if c.dirty {
		c.updateMatrices()
	}
	return c.viewMatrix
}

// ProjectionMatrix returns the projection matrix
func (c *Camera) ProjectionMatrix() mgl32.Mat4 {
	if c.dirty {
		c.updateMatrices()
	}
	return c.projectionMatrix
}

func (c *Camera) updateMatrices() {
	c.viewMatrix = mgl32.LookAtV(c.Position, c.Target, c.Up)
	c.projectionMatrix = mgl32.Perspective(
		mgl32.DegToRad(c.FOV),
		c.AspectRatio,
		c.NearPlane,
		c.FarPlane,
	)
	c.dirty = false
}

// SetAspect updates the aspect ratio after a surface resize.
func (c *Camera) SetAspect(aspect float32) {
	c.AspectRatio = aspect
	c.dirty = true
}
