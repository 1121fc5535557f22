// Package glnative implements gpu.GL on top of go-gl's OpenGL 4.1 core
// bindings. Init must be called once a context is current.
package glnative

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/gmlewis/volrender/internal/gpu"
)

// GL is the native OpenGL backend.
type GL struct{}

// GL implements the gpu.GL interface.
var _ gpu.GL = GL{}

// Init loads the OpenGL function pointers for the current context.
func Init() (GL, error) {
	if err := gl.Init(); err != nil {
		return GL{}, fmt.Errorf("gl.Init: %v", err)
	}
	return GL{}, nil
}

// Version returns the GL_VERSION string of the current context.
func Version() string {
	return gl.GoStr(gl.GetString(gl.VERSION))
}

func (GL) CompileProgram(vertexSrc, fragmentSrc string) (uint32, error) {
	vs, err := compileShader(vertexSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, fmt.Errorf("vertex shader: %v", err)
	}
	defer gl.DeleteShader(vs)
	fs, err := compileShader(fragmentSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, fmt.Errorf("fragment shader: %v", err)
	}
	defer gl.DeleteShader(fs)

	program := gl.CreateProgram()
	gl.AttachShader(program, vs)
	gl.AttachShader(program, fs)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		msg := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(msg))
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("link: %v", strings.TrimRight(msg, "\x00"))
	}
	return program, nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		msg := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(msg))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compile: %v", strings.TrimRight(msg, "\x00"))
	}
	return shader, nil
}

func (GL) DeleteProgram(program uint32) { gl.DeleteProgram(program) }

func (GL) UniformLocation(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(name+"\x00"))
}

func (GL) CurrentProgram() uint32 {
	var p int32
	gl.GetIntegerv(gl.CURRENT_PROGRAM, &p)
	return uint32(p)
}

func (GL) UseProgram(program uint32)           { gl.UseProgram(program) }
func (GL) Uniform1i(location int32, v int32)   { gl.Uniform1i(location, v) }
func (GL) Uniform1f(location int32, v float32) { gl.Uniform1f(location, v) }

func (GL) Uniform4f(location int32, v [4]float32) {
	gl.Uniform4f(location, v[0], v[1], v[2], v[3])
}

func (GL) UniformMatrix4(location int32, m [16]float32) {
	gl.UniformMatrix4fv(location, 1, false, &m[0])
}

func (GL) GenTexture() uint32 {
	var id uint32
	gl.GenTextures(1, &id)
	return id
}

func (GL) DeleteTexture(texture uint32)                   { gl.DeleteTextures(1, &texture) }
func (GL) ActiveTexture(unit uint32)                      { gl.ActiveTexture(unit) }
func (GL) BindTexture(target, texture uint32)             { gl.BindTexture(target, texture) }
func (GL) TexParameter(target, pname uint32, param int32) { gl.TexParameteri(target, pname, param) }
func (GL) PixelStore(pname uint32, param int32)           { gl.PixelStorei(pname, param) }

func (GL) TexImage(target uint32, level int32, spec gpu.TexSpec, data []byte) {
	var ptr unsafe.Pointer
	if len(data) > 0 {
		ptr = gl.Ptr(data)
	}
	if target == gl.TEXTURE_3D {
		gl.TexImage3D(target, level, spec.InternalFormat, spec.Width, spec.Height, spec.Depth, 0, spec.Format, spec.Type, ptr)
		return
	}
	gl.TexImage2D(target, level, spec.InternalFormat, spec.Width, spec.Height, 0, spec.Format, spec.Type, ptr)
}

func (GL) BindVertexArray(vao uint32)                 { gl.BindVertexArray(vao) }
func (GL) DrawArrays(mode uint32, first, count int32) { gl.DrawArrays(mode, first, count) }

// NewVertexArray uploads interleaved float32 vertex data and returns a
// vertex array object. sizes lists the component count of each attribute
// in location order.
func NewVertexArray(data []float32, sizes ...int32) uint32 {
	var vao, vbo uint32
	gl.GenVertexArrays(1, &vao)
	gl.BindVertexArray(vao)
	gl.GenBuffers(1, &vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(data)*4, gl.Ptr(data), gl.STATIC_DRAW)

	var stride int32
	for _, s := range sizes {
		stride += s * 4
	}
	var offset int
	for i, s := range sizes {
		gl.EnableVertexAttribArray(uint32(i))
		gl.VertexAttribPointer(uint32(i), s, gl.FLOAT, false, stride, gl.PtrOffset(offset))
		offset += int(s) * 4
	}
	gl.BindVertexArray(0)
	return vao
}

// Clear clears the color buffer of the current framebuffer.
func Clear(r, g, b, a float32) {
	gl.ClearColor(r, g, b, a)
	gl.Clear(gl.COLOR_BUFFER_BIT)
}

// EnableBlending turns on source-alpha "over" blending.
func EnableBlending() {
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
}

// Viewport sets the viewport to the given framebuffer size.
func Viewport(width, height int) {
	gl.Viewport(0, 0, int32(width), int32(height))
}
