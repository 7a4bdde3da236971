package scene

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

// Frame is one render submission from the animation loop.
type Frame struct {
	Model mgl32.Mat4
}

// Surface is the output target the animation loop submits frames to.
type Surface interface {
	Size() (width, height int)
	OnResize(fn func(width, height int))
	Submit(frame Frame)
	ShouldClose() bool
	Release()
}

// SurfaceConfig configures a GL window surface.
type SurfaceConfig struct {
	Width  int
	Height int
	Title  string
	VSync  bool
	MSAA   int
	View   string // camera framing preset: "upper" or "full"
}

// GLSurface renders the rigged head mesh into a glfw window.
// The caller must run it on a locked OS thread; glfw.Init/Terminate are the
// caller's responsibility.
type GLSurface struct {
	window *glfw.Window
	camera *Camera
	rig    *MeshRig

	program uint32
	vao     uint32
	vbo     uint32
	ebo     uint32

	vertexCount int32
	indexCount  int32

	onResize func(int, int)

	fbWidth  int
	fbHeight int
}

const vertexShaderSrc = `#version 410 core
layout (location = 0) in vec3 aPos;
uniform mat4 uModel;
uniform mat4 uView;
uniform mat4 uProjection;
out vec3 vWorldPos;
void main() {
    vec4 world = uModel * vec4(aPos, 1.0);
    vWorldPos = world.xyz;
    gl_Position = uProjection * uView * world;
}
` + "\x00"

const fragmentShaderSrc = `#version 410 core
in vec3 vWorldPos;
out vec4 FragColor;
void main() {
    vec3 lightDir = normalize(vec3(0.4, 0.8, 1.0));
    vec3 n = normalize(cross(dFdx(vWorldPos), dFdy(vWorldPos)));
    float diff = max(dot(n, lightDir), 0.0);
    vec3 base = vec3(0.85, 0.72, 0.65);
    FragColor = vec4(base * (0.35 + 0.65 * diff), 1.0);
}
` + "\x00"

// NewGLSurface creates a window surface bound to the given rig.
func NewGLSurface(cfg SurfaceConfig, rig *MeshRig) (*GLSurface, error) {
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	if cfg.MSAA > 0 {
		glfw.WindowHint(glfw.Samples, cfg.MSAA)
	}

	window, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}
	window.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("gl init: %w", err)
	}

	if cfg.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	s := &GLSurface{
		window: window,
		rig:    rig,
	}

	s.fbWidth, s.fbHeight = window.GetFramebufferSize()
	aspect := float32(s.fbWidth) / float32(s.fbHeight)
	s.camera = NewFramingCamera(cfg.View, aspect)

	if err := s.initProgram(); err != nil {
		return nil, err
	}
	s.initBuffers()

	window.SetFramebufferSizeCallback(func(_ *glfw.Window, w, h int) {
		s.fbWidth, s.fbHeight = w, h
		if h > 0 {
			s.camera.SetAspect(float32(w) / float32(h))
		}
		gl.Viewport(0, 0, int32(w), int32(h))
		if s.onResize != nil {
			s.onResize(w, h)
		}
	})

	gl.Enable(gl.DEPTH_TEST)

	return s, nil
}

// Size returns the framebuffer size.
func (s *GLSurface) Size() (int, int) {
	return s.fbWidth, s.fbHeight
}

// OnResize registers a resize callback.
func (s *GLSurface) OnResize(fn func(int, int)) {
	s.onResize = fn
}

// ShouldClose reports whether the window was asked to close.
func (s *GLSurface) ShouldClose() bool {
	return s.window.ShouldClose()
}

// Submit renders one frame of the current rig state.
func (s *GLSurface) Submit(frame Frame) {
	glfw.PollEvents()

	gl.ClearColor(0.07, 0.07, 0.09, 1.0)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	if s.rig != nil && s.vertexCount > 0 {
		if s.rig.TakeDirty() {
			s.uploadPositions()
		}

		gl.UseProgram(s.program)
		s.setMat4("uModel", frame.Model)
		s.setMat4("uView", s.camera.ViewMatrix())
		s.setMat4("uProjection", s.camera.ProjectionMatrix())

		gl.BindVertexArray(s.vao)
		if s.indexCount > 0 {
			gl.DrawElements(gl.TRIANGLES, s.indexCount, gl.UNSIGNED_INT, nil)
		} else {
			gl.DrawArrays(gl.TRIANGLES, 0, s.vertexCount)
		}
		gl.BindVertexArray(0)
	}

	s.window.SwapBuffers()
}

// Release destroys GL resources and the window.
func (s *GLSurface) Release() {
	if s.vao != 0 {
		gl.DeleteVertexArrays(1, &s.vao)
		gl.DeleteBuffers(1, &s.vbo)
		if s.ebo != 0 {
			gl.DeleteBuffers(1, &s.ebo)
		}
	}
	if s.program != 0 {
		gl.DeleteProgram(s.program)
	}
	if s.window != nil {
		s.window.Destroy()
		s.window = nil
	}
}

func (s *GLSurface) initProgram() error {
	vert, err := compileShader(vertexShaderSrc, gl.VERTEX_SHADER)
	if err != nil {
		return fmt.Errorf("vertex shader: %w", err)
	}
	frag, err := compileShader(fragmentShaderSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		return fmt.Errorf("fragment shader: %w", err)
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, vert)
	gl.AttachShader(program, frag)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetProgramInfoLog(program, logLen, nil, gl.Str(log))
		return fmt.Errorf("link program: %v", log)
	}

	gl.DeleteShader(vert)
	gl.DeleteShader(frag)

	s.program = program
	return nil
}

func (s *GLSurface) initBuffers() {
	mesh := s.rig.Mesh()
	if mesh == nil || len(mesh.Positions) == 0 {
		return
	}

	gl.GenVertexArrays(1, &s.vao)
	gl.BindVertexArray(s.vao)

	gl.GenBuffers(1, &s.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, s.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(mesh.Positions)*12, gl.Ptr(mesh.Positions), gl.DYNAMIC_DRAW)

	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, 12, 0)

	s.vertexCount = int32(len(mesh.Positions))

	if len(mesh.Indices) > 0 {
		gl.GenBuffers(1, &s.ebo)
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, s.ebo)
		gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(mesh.Indices)*4, gl.Ptr(mesh.Indices), gl.STATIC_DRAW)
		s.indexCount = int32(len(mesh.Indices))
	}

	gl.BindVertexArray(0)
}

func (s *GLSurface) uploadPositions() {
	positions := s.rig.MorphedPositions()
	if len(positions) == 0 {
		return
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, s.vbo)
	gl.BufferSubData(gl.ARRAY_BUFFER, 0, len(positions)*12, gl.Ptr(positions))
}

func (s *GLSurface) setMat4(name string, m mgl32.Mat4) {
	loc := gl.GetUniformLocation(s.program, gl.Str(name+"\x00"))
	if loc >= 0 {
		gl.UniformMatrix4fv(loc, 1, false, (*float32)(unsafe.Pointer(&m[0])))
	}
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csources, free := gl.Strs(source)
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetShaderInfoLog(shader, logLen, nil, gl.Str(log))
		return 0, fmt.Errorf("compile: %v", log)
	}

	return shader, nil
}
