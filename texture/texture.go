// Package texture owns the lifecycle of the GPU textures used by the
// volume compositing shader.
package texture

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/gmlewis/volrender/internal/gpu"
	"github.com/gmlewis/volrender/ktx"
)

// ErrState is returned when the upload/bind/release lifecycle is misused.
var ErrState = errors.New("texture: invalid lifecycle state")

// Role identifies what a texture holds in the compositing shader.
type Role int

const (
	Signal Role = iota
	Mask
	ColorMap
)

// Unit returns the default texture unit offset for the role.
func (r Role) Unit() uint32 {
	return uint32(r)
}

// SamplerName returns the shader sampler uniform bound to the role.
func (r Role) SamplerName() string {
	switch r {
	case Signal:
		return "signalTexture"
	case Mask:
		return "maskingTexture"
	case ColorMap:
		return "colorMapTexture"
	}
	return ""
}

func (r Role) String() string {
	switch r {
	case Signal:
		return "signal"
	case Mask:
		return "mask"
	case ColorMap:
		return "colormap"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Mediator owns exactly one GPU texture. It must only be used on the
// rendering thread.
type Mediator struct {
	gl     gpu.GL
	role   Role
	unit   uint32
	target uint32
	id     uint32
	levels int
	spec   gpu.TexSpec
}

// New returns a mediator for role on the role's default texture unit.
func New(g gpu.GL, role Role) *Mediator {
	return NewWithUnit(g, role, role.Unit())
}

// NewWithUnit returns a mediator for role bound to an explicit texture
// unit offset. Callers are responsible for keeping units unique within a
// draw call.
func NewWithUnit(g gpu.GL, role Role, unit uint32) *Mediator {
	return &Mediator{gl: g, role: role, unit: unit}
}

func (m *Mediator) Role() Role          { return m.role }
func (m *Mediator) Unit() uint32        { return m.unit }
func (m *Mediator) Uploaded() bool      { return m.id != 0 }
func (m *Mediator) ID() uint32          { return m.id }
func (m *Mediator) Spec() gpu.TexSpec   { return m.spec }
func (m *Mediator) LevelCount() int     { return m.levels }
func (m *Mediator) SamplerName() string { return m.role.SamplerName() }

// UploadVolume uploads every mipmap level of a decoded container as a 3D
// texture. Mask volumes are stored as unsigned integer textures so the
// shader can fetch exact structure indices.
func (m *Mediator) UploadVolume(h *ktx.Header, levels []ktx.Level) error {
	if m.Uploaded() {
		return fmt.Errorf("%w: %v texture %v already uploaded", ErrState, m.role, m.id)
	}
	if len(levels) == 0 {
		return fmt.Errorf("texture: %v volume has no levels", m.role)
	}
	base, err := volumeSpec(m.role, h)
	if err != nil {
		return err
	}

	specs := make([]gpu.TexSpec, len(levels))
	for i, level := range levels {
		w, ht, d := h.LevelDims(i)
		spec := base
		spec.Width, spec.Height, spec.Depth = int32(w), int32(ht), int32(d)
		if want := expectedBytes(spec, h.GLTypeSize); want > 0 && want != len(level.Data) {
			return fmt.Errorf("texture: %v level %v is %v bytes, want %v for %vx%vx%v", m.role, i, len(level.Data), want, w, ht, d)
		}
		specs[i] = spec
	}

	m.target = gpu.Texture3D
	m.begin()
	filter := int32(gpu.Linear)
	minFilter := int32(gpu.Linear)
	if m.role == Mask {
		filter, minFilter = gpu.Nearest, gpu.Nearest
	} else if len(levels) > 1 {
		minFilter = gpu.LinearMipmapLinear
	}
	m.parameters(minFilter, filter, len(levels))
	for i, level := range levels {
		m.gl.TexImage(m.target, int32(i), specs[i], level.Data)
	}
	m.end()

	m.levels = len(levels)
	m.spec = specs[0]
	log.Debugf("texture: uploaded %v volume %vx%vx%v, %v levels, unit %v", m.role, m.spec.Width, m.spec.Height, m.spec.Depth, m.levels, m.unit)
	return nil
}

// UploadColorMap uploads RGBA8 color lookup rows laid out width texels
// wide.
func (m *Mediator) UploadColorMap(rgba []byte, width int) error {
	return m.UploadImage(rgba, width, 4)
}

// UploadImage uploads a 2D image of 1 (R8) or 4 (RGBA8) channels per
// texel, laid out width texels wide.
func (m *Mediator) UploadImage(pix []byte, width, channels int) error {
	if m.Uploaded() {
		return fmt.Errorf("%w: %v texture %v already uploaded", ErrState, m.role, m.id)
	}
	spec := gpu.TexSpec{Depth: 1, Type: gpu.UnsignedByte}
	switch channels {
	case 1:
		spec.InternalFormat, spec.Format = gpu.R8, gpu.Red
	case 4:
		spec.InternalFormat, spec.Format = gpu.RGBA8, gpu.RGBA
	default:
		return fmt.Errorf("texture: unsupported image channel count %v", channels)
	}
	rowBytes := channels * width
	if width <= 0 || len(pix) == 0 || len(pix)%rowBytes != 0 {
		return fmt.Errorf("texture: image of %v bytes is not a whole number of %v-texel rows", len(pix), width)
	}
	spec.Width = int32(width)
	spec.Height = int32(len(pix) / rowBytes)

	m.target = gpu.Texture2D
	m.begin()
	m.parameters(gpu.Nearest, gpu.Nearest, 1)
	m.gl.TexImage(m.target, 0, spec, pix)
	m.end()

	m.levels = 1
	m.spec = spec
	return nil
}

// Bind makes the texture current on its unit.
func (m *Mediator) Bind() error {
	if !m.Uploaded() {
		return fmt.Errorf("%w: %v texture bound before upload", ErrState, m.role)
	}
	m.gl.ActiveTexture(gpu.Texture0 + m.unit)
	m.gl.BindTexture(m.target, m.id)
	return nil
}

// Unbind clears the texture's unit.
func (m *Mediator) Unbind() {
	if !m.Uploaded() {
		return
	}
	m.gl.ActiveTexture(gpu.Texture0 + m.unit)
	m.gl.BindTexture(m.target, 0)
}

// Release deletes the GPU texture. A released mediator may be uploaded
// again.
func (m *Mediator) Release() {
	if !m.Uploaded() {
		return
	}
	m.gl.DeleteTexture(m.id)
	m.id = 0
	m.levels = 0
	m.spec = gpu.TexSpec{}
}

func (m *Mediator) begin() {
	m.id = m.gl.GenTexture()
	m.gl.ActiveTexture(gpu.Texture0 + m.unit)
	m.gl.BindTexture(m.target, m.id)
	m.gl.PixelStore(gpu.UnpackAlignment, 1)
}

func (m *Mediator) end() {
	m.gl.BindTexture(m.target, 0)
}

func (m *Mediator) parameters(minFilter, magFilter int32, levels int) {
	m.gl.TexParameter(m.target, gpu.TextureMinFilter, minFilter)
	m.gl.TexParameter(m.target, gpu.TextureMagFilter, magFilter)
	m.gl.TexParameter(m.target, gpu.TextureWrapS, gpu.ClampToEdge)
	m.gl.TexParameter(m.target, gpu.TextureWrapT, gpu.ClampToEdge)
	if m.target == gpu.Texture3D {
		m.gl.TexParameter(m.target, gpu.TextureWrapR, gpu.ClampToEdge)
	}
	m.gl.TexParameter(m.target, gpu.TextureBaseLevel, 0)
	m.gl.TexParameter(m.target, gpu.TextureMaxLevel, int32(levels-1))
}

// volumeSpec derives the upload formats for a role from a container header.
func volumeSpec(role Role, h *ktx.Header) (gpu.TexSpec, error) {
	spec := gpu.TexSpec{
		InternalFormat: int32(h.GLInternalFormat),
		Format:         h.GLFormat,
		Type:           h.GLType,
	}
	if role != Mask {
		return spec, nil
	}
	switch h.GLType {
	case gpu.UnsignedByte:
		spec.InternalFormat = gpu.R8UI
	case gpu.UnsignedShort:
		spec.InternalFormat = gpu.R16UI
	default:
		return spec, fmt.Errorf("texture: mask volume type 0x%X is not an unsigned byte or short", h.GLType)
	}
	switch h.GLFormat {
	case gpu.Red, gpu.RedInteger:
		spec.Format = gpu.RedInteger
	default:
		return spec, fmt.Errorf("texture: mask volume format 0x%X is not single channel", h.GLFormat)
	}
	return spec, nil
}

// expectedBytes returns the byte length of a tightly packed image, or 0 if
// the format is not one this package knows how to size.
func expectedBytes(spec gpu.TexSpec, typeSize uint32) int {
	var components int
	switch spec.Format {
	case gpu.Red, gpu.RedInteger:
		components = 1
	case gpu.RG:
		components = 2
	case gpu.RGB:
		components = 3
	case gpu.RGBA:
		components = 4
	default:
		return 0
	}
	if typeSize == 0 {
		return 0
	}
	return int(spec.Width) * int(spec.Height) * int(spec.Depth) * components * int(typeSize)
}
