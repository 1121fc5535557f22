// Package shader binds textures and parameters to the GLSL programs that
// draw volumes and overlays.
//
// Every uniform a program needs is resolved once when the program is
// linked. A program missing any of them fails to link with ErrLink, so a
// mismatch between the GLSL sources and this package is caught before the
// first frame instead of rendering with stale uniform state.
package shader

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/gmlewis/volrender/internal/gpu"
)

var (
	// ErrLink is returned when a program fails to compile or lacks a
	// required uniform.
	ErrLink = errors.New("shader: link failed")

	// ErrState is returned when Load/Unload are misused or the textures
	// bound for a draw are inconsistent.
	ErrState = errors.New("shader: invalid state")
)

// LinkError describes a required uniform missing from a linked program.
type LinkError struct {
	Program string
	Uniform string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("shader: program %q has no uniform %q", e.Program, e.Uniform)
}

func (e *LinkError) Unwrap() error { return ErrLink }

// Program is a linked GL program plus its uniform handle cache.
type Program struct {
	gl       gpu.GL
	name     string
	id       uint32
	uniforms map[string]int32

	loaded bool
	saved  uint32
}

// Link compiles a program and resolves every named uniform.
func Link(g gpu.GL, name, vertexSrc, fragmentSrc string, uniforms ...string) (*Program, error) {
	id, err := g.CompileProgram(vertexSrc, fragmentSrc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %v", ErrLink, name, err)
	}

	p := &Program{gl: g, name: name, id: id, uniforms: make(map[string]int32, len(uniforms))}
	for _, u := range uniforms {
		loc := g.UniformLocation(id, u)
		if loc < 0 {
			g.DeleteProgram(id)
			return nil, &LinkError{Program: name, Uniform: u}
		}
		p.uniforms[u] = loc
	}
	log.Debugf("shader: linked %v (program %v, %v uniforms)", name, id, len(uniforms))
	return p, nil
}

// Name returns the name the program was linked with.
func (p *Program) Name() string { return p.name }

// ID returns the GL program handle.
func (p *Program) ID() uint32 { return p.id }

// Loaded reports whether the program is between Use and Restore.
func (p *Program) Loaded() bool { return p.loaded }

// Location returns the cached location of a uniform, or -1.
func (p *Program) Location(uniform string) int32 {
	if loc, ok := p.uniforms[uniform]; ok {
		return loc
	}
	return -1
}

// Use remembers the currently bound program and binds p.
func (p *Program) Use() error {
	if p.loaded {
		return fmt.Errorf("%w: %v already loaded", ErrState, p.name)
	}
	p.saved = p.gl.CurrentProgram()
	p.gl.UseProgram(p.id)
	p.loaded = true
	return nil
}

// Restore rebinds the program that was current when Use was called.
func (p *Program) Restore() error {
	if !p.loaded {
		return fmt.Errorf("%w: %v not loaded", ErrState, p.name)
	}
	p.gl.UseProgram(p.saved)
	p.loaded = false
	return nil
}

// Delete frees the GL program.
func (p *Program) Delete() {
	if p.id == 0 {
		return
	}
	p.gl.DeleteProgram(p.id)
	p.id = 0
}

func (p *Program) setInt(uniform string, v int32) {
	p.gl.Uniform1i(p.uniforms[uniform], v)
}

func (p *Program) setBool(uniform string, v bool) {
	var i int32
	if v {
		i = 1
	}
	p.setInt(uniform, i)
}

func (p *Program) setFloat(uniform string, v float32) {
	p.gl.Uniform1f(p.uniforms[uniform], v)
}

func (p *Program) setVec4(uniform string, v [4]float32) {
	p.gl.Uniform4f(p.uniforms[uniform], v)
}

func (p *Program) setMat4(uniform string, m [16]float32) {
	p.gl.UniformMatrix4(p.uniforms[uniform], m)
}
