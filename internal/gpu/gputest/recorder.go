// Package gputest provides a fake gpu.GL that records every call.
package gputest

import (
	"errors"
	"fmt"

	"github.com/gmlewis/volrender/internal/gpu"
)

// Call is one recorded GL call.
type Call struct {
	Name string
	Args []interface{}
}

func (c Call) String() string {
	return fmt.Sprintf("%v%v", c.Name, c.Args)
}

// Recorder implements gpu.GL without a GPU. Programs it compiles expose
// exactly the uniforms passed to NewRecorder.
type Recorder struct {
	Calls []Call

	// FailCompile makes CompileProgram return an error.
	FailCompile bool

	uniforms    map[string]int32
	names       map[int32]string
	current     uint32
	nextProgram uint32
	nextTexture uint32
	textures    map[uint32]bool
	bound       uint32
	pixels      map[uint32]map[int32][]byte
}

// Recorder implements the gpu.GL interface.
var _ gpu.GL = &Recorder{}

// NewRecorder returns a Recorder whose programs have the given uniforms,
// located at 0, 1, 2, ... in argument order.
func NewRecorder(uniforms ...string) *Recorder {
	r := &Recorder{
		uniforms: map[string]int32{},
		names:    map[int32]string{},
		textures: map[uint32]bool{},
		pixels:   map[uint32]map[int32][]byte{},
	}
	for i, name := range uniforms {
		r.uniforms[name] = int32(i)
		r.names[int32(i)] = name
	}
	return r
}

func (r *Recorder) record(name string, args ...interface{}) {
	r.Calls = append(r.Calls, Call{Name: name, Args: args})
}

// Reset forgets all recorded calls.
func (r *Recorder) Reset() {
	r.Calls = nil
}

// Named returns the recorded calls with the given name, in order.
func (r *Recorder) Named(name string) []Call {
	var out []Call
	for _, c := range r.Calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// UniformName returns the uniform name bound to a location.
func (r *Recorder) UniformName(location int32) string {
	return r.names[location]
}

// Pushes returns the names of all uniforms written, in push order.
func (r *Recorder) Pushes() []string {
	var out []string
	for _, c := range r.Calls {
		switch c.Name {
		case "Uniform1i", "Uniform1f", "Uniform4f", "UniformMatrix4":
			out = append(out, r.names[c.Args[0].(int32)])
		}
	}
	return out
}

// Value returns the last value pushed to the named uniform.
func (r *Recorder) Value(name string) (interface{}, bool) {
	loc, ok := r.uniforms[name]
	if !ok {
		return nil, false
	}
	for i := len(r.Calls) - 1; i >= 0; i-- {
		c := r.Calls[i]
		switch c.Name {
		case "Uniform1i", "Uniform1f", "Uniform4f", "UniformMatrix4":
			if c.Args[0].(int32) == loc {
				return c.Args[1], true
			}
		}
	}
	return nil, false
}

// LiveTextures returns the number of generated but not deleted textures.
func (r *Recorder) LiveTextures() int {
	return len(r.textures)
}

// Pixels returns a copy of the data last uploaded to level of texture.
func (r *Recorder) Pixels(texture uint32, level int32) []byte {
	return r.pixels[texture][level]
}

func (r *Recorder) CompileProgram(vertexSrc, fragmentSrc string) (uint32, error) {
	r.record("CompileProgram")
	if r.FailCompile {
		return 0, errors.New("gputest: compile failed")
	}
	r.nextProgram++
	return r.nextProgram, nil
}

func (r *Recorder) DeleteProgram(program uint32) {
	r.record("DeleteProgram", program)
}

func (r *Recorder) UniformLocation(program uint32, name string) int32 {
	if loc, ok := r.uniforms[name]; ok {
		return loc
	}
	return -1
}

func (r *Recorder) CurrentProgram() uint32 {
	return r.current
}

// SetCurrentProgram simulates a program bound by other code.
func (r *Recorder) SetCurrentProgram(program uint32) {
	r.current = program
}

func (r *Recorder) UseProgram(program uint32) {
	r.record("UseProgram", program)
	r.current = program
}

func (r *Recorder) Uniform1i(location int32, v int32) {
	r.record("Uniform1i", location, v)
}

func (r *Recorder) Uniform1f(location int32, v float32) {
	r.record("Uniform1f", location, v)
}

func (r *Recorder) Uniform4f(location int32, v [4]float32) {
	r.record("Uniform4f", location, v)
}

func (r *Recorder) UniformMatrix4(location int32, m [16]float32) {
	r.record("UniformMatrix4", location, m)
}

func (r *Recorder) GenTexture() uint32 {
	r.nextTexture++
	r.textures[r.nextTexture] = true
	r.record("GenTexture", r.nextTexture)
	return r.nextTexture
}

func (r *Recorder) DeleteTexture(texture uint32) {
	delete(r.textures, texture)
	delete(r.pixels, texture)
	r.record("DeleteTexture", texture)
}

func (r *Recorder) ActiveTexture(unit uint32) {
	r.record("ActiveTexture", unit)
}

func (r *Recorder) BindTexture(target, texture uint32) {
	r.record("BindTexture", target, texture)
	r.bound = texture
}

func (r *Recorder) TexParameter(target, pname uint32, param int32) {
	r.record("TexParameter", target, pname, param)
}

func (r *Recorder) PixelStore(pname uint32, param int32) {
	r.record("PixelStore", pname, param)
}

func (r *Recorder) TexImage(target uint32, level int32, spec gpu.TexSpec, data []byte) {
	r.record("TexImage", target, level, spec, len(data))
	if r.pixels[r.bound] == nil {
		r.pixels[r.bound] = map[int32][]byte{}
	}
	r.pixels[r.bound][level] = append([]byte(nil), data...)
}

func (r *Recorder) BindVertexArray(vao uint32) {
	r.record("BindVertexArray", vao)
}

func (r *Recorder) DrawArrays(mode uint32, first, count int32) {
	r.record("DrawArrays", mode, first, count)
}
