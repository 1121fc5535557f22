package shader

import (
	_ "embed"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gmlewis/volrender/internal/gpu"
	"github.com/gmlewis/volrender/texture"
)

// Uniform names shared with glsl/overlay.{vert,frag}.
const (
	UniformMVP            = "mvp"
	UniformMVP2D          = "mvp2d"
	UniformColor0         = "color0"
	UniformColor1         = "color1"
	UniformPickID         = "pickId"
	UniformTwoDimensional = "twoDimensional"
	UniformApplyImageRGBA = "applyImageRGBATexture"
	UniformApplyImageR8   = "applyImageR8Texture"
)

// overlayImageUnit is the unit the overlay's image sampler reads, which is
// the GL default for a sampler that is never assigned.
const overlayImageUnit = 0

// OverlayUniforms lists every uniform the overlay program must expose.
var OverlayUniforms = []string{
	UniformMVP, UniformMVP2D,
	UniformColor0, UniformColor1,
	UniformPickID, UniformTwoDimensional,
	UniformApplyImageRGBA, UniformApplyImageR8,
}

var (
	//go:embed glsl/overlay.vert
	overlayVert string
	//go:embed glsl/overlay.frag
	overlayFrag string
)

// Overlay draws flat-colored lines and quads (bounding boxes, crop
// outlines, slice images) on top of the volume, in either scene space or
// 2D screen space. A nonzero PickID replaces the color with the encoded
// id for picking passes.
type Overlay struct {
	prog *Program

	MVP   mgl32.Mat4
	MVP2D mgl32.Mat4
	// Color0 and Color1 are blended by the per-vertex weight attribute.
	Color0, Color1 mgl32.Vec4
	PickID         int32
	TwoDimensional bool
	// Image, if uploaded, is sampled over the quad. It must live on
	// texture unit 0.
	Image *texture.Mediator

	boundImage bool
}

// NewOverlay links the embedded overlay program.
func NewOverlay(g gpu.GL) (*Overlay, error) {
	return LinkOverlay(g, overlayVert, overlayFrag)
}

// LinkOverlay links an overlay program from custom GLSL sources that
// expose OverlayUniforms.
func LinkOverlay(g gpu.GL, vertexSrc, fragmentSrc string) (*Overlay, error) {
	prog, err := Link(g, "overlay", vertexSrc, fragmentSrc, OverlayUniforms...)
	if err != nil {
		return nil, err
	}
	return &Overlay{
		prog:   prog,
		MVP:    mgl32.Ident4(),
		MVP2D:  mgl32.Ident4(),
		Color0: mgl32.Vec4{1, 1, 1, 1},
		Color1: mgl32.Vec4{1, 1, 1, 1},
	}, nil
}

// Program returns the underlying program.
func (o *Overlay) Program() *Program { return o.prog }

// Load binds the program, pushes every uniform, and binds the image.
func (o *Overlay) Load() error {
	if o.prog.Loaded() {
		return fmt.Errorf("%w: overlay program already loaded", ErrState)
	}
	image := o.Image != nil && o.Image.Uploaded()
	var rgba, r8 bool
	if image {
		if u := o.Image.Unit(); u != overlayImageUnit {
			return fmt.Errorf("%w: overlay image must be on unit %v, not %v", ErrState, overlayImageUnit, u)
		}
		switch f := o.Image.Spec().Format; f {
		case gpu.RGBA:
			rgba = true
		case gpu.Red:
			r8 = true
		default:
			return fmt.Errorf("%w: overlay image format 0x%X", ErrState, f)
		}
	}

	if err := o.prog.Use(); err != nil {
		return err
	}
	p := o.prog
	p.setMat4(UniformMVP, o.MVP)
	p.setMat4(UniformMVP2D, o.MVP2D)
	p.setVec4(UniformColor0, o.Color0)
	p.setVec4(UniformColor1, o.Color1)
	p.setInt(UniformPickID, o.PickID)
	p.setBool(UniformTwoDimensional, o.TwoDimensional)
	p.setBool(UniformApplyImageRGBA, rgba)
	p.setBool(UniformApplyImageR8, r8)

	if image {
		if err := o.Image.Bind(); err != nil {
			o.prog.Restore()
			return err
		}
		o.boundImage = true
	}
	return nil
}

// Unload unbinds the image and restores the previous program.
func (o *Overlay) Unload() error {
	if !o.prog.Loaded() {
		return fmt.Errorf("%w: overlay program not loaded", ErrState)
	}
	if o.boundImage {
		o.Image.Unbind()
		o.boundImage = false
	}
	return o.prog.Restore()
}

// Render loads the program, draws count vertices of vao, and unloads.
func (o *Overlay) Render(vao, mode uint32, count int32) error {
	if err := o.Load(); err != nil {
		return err
	}
	g := o.prog.gl
	g.BindVertexArray(vao)
	g.DrawArrays(mode, 0, count)
	g.BindVertexArray(0)
	return o.Unload()
}

// Delete frees the program.
func (o *Overlay) Delete() {
	o.prog.Delete()
}
