package shader

import (
	_ "embed"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gmlewis/volrender/crop"
	"github.com/gmlewis/volrender/internal/gpu"
	"github.com/gmlewis/volrender/texture"
)

// Uniform names shared with glsl/volume.{vert,frag}.
const (
	UniformMVP3D           = "mvp3d"
	UniformTextureMVP3D    = "textureMvp3d"
	UniformHasMasking      = "hasMaskingTexture"
	UniformGamma           = "gammaAdjustment"
	UniformWhiteBackground = "whiteBackground"
	UniformStartCropX      = "startCropX"
	UniformEndCropX        = "endCropX"
	UniformStartCropY      = "startCropY"
	UniformEndCropY        = "endCropY"
	UniformStartCropZ      = "startCropZ"
	UniformEndCropZ        = "endCropZ"
	UniformCropOutLevel    = "cropOutLevel"
	UniformSignalTexture   = "signalTexture"
	UniformMaskingTexture  = "maskingTexture"
	UniformColorMapTexture = "colorMapTexture"
)

// cropUniforms are in the order of crop.Coords.Uniforms.
var cropUniforms = [6]string{
	UniformStartCropX, UniformEndCropX,
	UniformStartCropY, UniformEndCropY,
	UniformStartCropZ, UniformEndCropZ,
}

// VolumeUniforms lists every uniform the volume program must expose.
var VolumeUniforms = []string{
	UniformMVP3D, UniformTextureMVP3D,
	UniformHasMasking, UniformGamma, UniformWhiteBackground,
	UniformStartCropX, UniformEndCropX,
	UniformStartCropY, UniformEndCropY,
	UniformStartCropZ, UniformEndCropZ,
	UniformCropOutLevel,
	UniformSignalTexture, UniformMaskingTexture, UniformColorMapTexture,
}

var (
	//go:embed glsl/volume.vert
	volumeVert string
	//go:embed glsl/volume.frag
	volumeFrag string
)

// VolumeComposite draws a signal volume, optionally colored by a mask
// volume and its color lookup table, with cropping, gamma, and background
// parameters. It must only be used on the rendering thread.
//
// Set the exported fields, then call Render (or Load, draw, Unload) once
// per frame.
type VolumeComposite struct {
	prog *Program

	MVP        mgl32.Mat4
	TextureMVP mgl32.Mat4

	// Gamma raises the composited color to this power. Must not be negative.
	Gamma           float32
	WhiteBackground bool
	// Crop may be nil for no cropping.
	Crop *crop.Set

	Signal *texture.Mediator
	// Mask and ColorMap are used only when both are uploaded.
	Mask     *texture.Mediator
	ColorMap *texture.Mediator

	bound []*texture.Mediator
}

// NewVolumeComposite links the embedded volume program.
func NewVolumeComposite(g gpu.GL) (*VolumeComposite, error) {
	return LinkVolumeComposite(g, volumeVert, volumeFrag)
}

// LinkVolumeComposite links a volume program from custom GLSL sources
// that expose VolumeUniforms.
func LinkVolumeComposite(g gpu.GL, vertexSrc, fragmentSrc string) (*VolumeComposite, error) {
	prog, err := Link(g, "volume", vertexSrc, fragmentSrc, VolumeUniforms...)
	if err != nil {
		return nil, err
	}
	return &VolumeComposite{
		prog:       prog,
		MVP:        mgl32.Ident4(),
		TextureMVP: mgl32.Ident4(),
		Gamma:      1,
	}, nil
}

// Program returns the underlying program.
func (v *VolumeComposite) Program() *Program { return v.prog }

// Masking reports whether the mask and color lookup textures will be
// bound by the next Load.
func (v *VolumeComposite) Masking() bool {
	return v.Mask != nil && v.Mask.Uploaded() && v.ColorMap != nil && v.ColorMap.Uploaded()
}

// samplerUnit returns the unit of m, or the default unit of role when m
// is not set.
func samplerUnit(m *texture.Mediator, role texture.Role) uint32 {
	if m != nil {
		return m.Unit()
	}
	return role.Unit()
}

// textures returns the textures to bind and the unit of every sampler,
// in the order signal, mask, colormap. All three units must differ since
// the samplers have different types.
func (v *VolumeComposite) textures() ([]*texture.Mediator, [3]uint32, error) {
	var units [3]uint32
	if v.Signal == nil || !v.Signal.Uploaded() {
		return nil, units, fmt.Errorf("%w: no signal texture uploaded", ErrState)
	}
	units = [3]uint32{
		v.Signal.Unit(),
		samplerUnit(v.Mask, texture.Mask),
		samplerUnit(v.ColorMap, texture.ColorMap),
	}
	roles := [3]texture.Role{texture.Signal, texture.Mask, texture.ColorMap}
	seen := map[uint32]texture.Role{}
	for i, u := range units {
		if other, ok := seen[u]; ok {
			return nil, units, fmt.Errorf("%w: %v and %v samplers share unit %v", ErrState, other, roles[i], u)
		}
		seen[u] = roles[i]
	}

	out := []*texture.Mediator{v.Signal}
	if v.Masking() {
		out = append(out, v.Mask, v.ColorMap)
	}
	return out, units, nil
}

// Load binds the program, pushes every uniform, and binds the textures.
// All three samplers are pushed even when masking is off, so that no two
// samplers default to the same unit. The previously bound program is
// restored by Unload.
func (v *VolumeComposite) Load() error {
	if v.prog.Loaded() {
		return fmt.Errorf("%w: volume program already loaded", ErrState)
	}
	textures, units, err := v.textures()
	if err != nil {
		return err
	}
	masking := len(textures) > 1

	if err := v.prog.Use(); err != nil {
		return err
	}
	p := v.prog
	p.setMat4(UniformMVP3D, v.MVP)
	p.setMat4(UniformTextureMVP3D, v.TextureMVP)
	p.setBool(UniformHasMasking, masking)
	p.setFloat(UniformGamma, v.Gamma)
	p.setBool(UniformWhiteBackground, v.WhiteBackground)
	v.pushCrop()

	p.setInt(UniformSignalTexture, int32(units[0]))
	p.setInt(UniformMaskingTexture, int32(units[1]))
	p.setInt(UniformColorMapTexture, int32(units[2]))
	for _, t := range textures {
		if err := t.Bind(); err != nil {
			v.Unload()
			return err
		}
		v.bound = append(v.bound, t)
	}
	return nil
}

// pushCrop always writes all six bounds, as -1 when no crop is active, and
// writes cropOutLevel only for an active crop.
func (v *VolumeComposite) pushCrop() {
	coords := crop.None()
	if v.Crop != nil {
		coords = v.Crop.Coords()
	}
	for i, f := range coords.Uniforms() {
		v.prog.setFloat(cropUniforms[i], f)
	}
	if coords.Active() {
		v.prog.setFloat(UniformCropOutLevel, v.Crop.OutLevel())
	}
}

// Unload unbinds the textures and restores the previous program.
func (v *VolumeComposite) Unload() error {
	if !v.prog.Loaded() {
		return fmt.Errorf("%w: volume program not loaded", ErrState)
	}
	for _, t := range v.bound {
		t.Unbind()
	}
	v.bound = v.bound[:0]
	return v.prog.Restore()
}

// Render loads the program, draws count vertices of vao, and unloads.
func (v *VolumeComposite) Render(vao, mode uint32, count int32) error {
	if err := v.Load(); err != nil {
		return err
	}
	g := v.prog.gl
	g.BindVertexArray(vao)
	g.DrawArrays(mode, 0, count)
	g.BindVertexArray(0)
	return v.Unload()
}

// Delete frees the program.
func (v *VolumeComposite) Delete() {
	v.prog.Delete()
}
