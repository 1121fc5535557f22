// Package voxels converts the voxels of a mask structure to STL.
package voxels

import (
	"fmt"
	"image"

	"github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"

	"github.com/gmlewis/volrender/slicer"
	"github.com/gmlewis/volrender/stl"
)

// Slicer represents a mask volume that provides binary Z slices of a
// structure.
type Slicer interface {
	NumXSlices() int
	NumYSlices() int
	NumZSlices() int

	RenderMaskZSlices(index uint32, sp slicer.ZSliceProcessor, order slicer.Order) error
}

// Slice writes the surface of structure index to an STL file.
func Slice(filename string, s Slicer, index uint32) error {
	w, err := stl.New(filename, fmt.Sprintf("volrender structure %v", index))
	if err != nil {
		return fmt.Errorf("stl.New: %w", err)
	}

	n, err := WriteSurface(w, s, index)
	if cerr := w.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("Close: %w", cerr)
	}
	if err != nil {
		return err
	}
	log.Infof("Wrote %v triangles to %v", n, filename)
	return nil
}

// TriWriter is a writer that accepts STL triangles.
type TriWriter interface {
	Write(t *stl.Tri) error
}

// WriteSurface writes two triangles for every voxel face of structure index
// that borders a voxel outside the structure, and returns the triangle
// count. The result is a closed, outward facing surface in base level
// voxel units.
func WriteSurface(w TriWriter, s Slicer, index uint32) (int, error) {
	c := &client{w: w}
	if err := s.RenderMaskZSlices(index, c, slicer.MinToMax); err != nil {
		return c.tris, fmt.Errorf("RenderMaskZSlices: %w", err)
	}
	// The top faces of the last slice have no slice above them.
	if err := c.flushTop(nil); err != nil {
		return c.tris, err
	}
	return c.tris, nil
}

// client represents a voxels-to-STL converter.
type client struct {
	w    TriWriter
	tris int

	// Last slice
	lastSlice *uvSlice
}

// client implements the ZSliceProcessor interface.
var _ slicer.ZSliceProcessor = &client{}

// uvSlice represents a slice of voxels indexed by uv (integer) coordinates
// where z0 and z1 are the bottom and top of the slice.
type uvSlice struct {
	uSize, vSize int
	z0, z1       float32
	size         float32 // voxel edge length

	p []bool
}

func (s *uvSlice) has(u, v int) bool {
	if s == nil || u < 0 || v < 0 || u >= s.uSize || v >= s.vSize {
		return false
	}
	return s.p[v*s.uSize+u]
}

func newSlice(img image.Image, z, voxelRadius float32) *uvSlice {
	b := img.Bounds()
	s := &uvSlice{
		uSize: b.Dx(),
		vSize: b.Dy(),
		z0:    z - voxelRadius,
		z1:    z + voxelRadius,
		size:  2 * voxelRadius,
	}
	s.p = make([]bool, s.uSize*s.vSize)
	for v := 0; v < s.vSize; v++ {
		for u := 0; u < s.uSize; u++ {
			if r, _, _, _ := img.At(b.Min.X+u, b.Min.Y+v).RGBA(); r != 0 {
				s.p[v*s.uSize+u] = true
			}
		}
	}
	return s
}

func (c *client) ProcessZSlice(sliceNum int, z, voxelRadius float32, img image.Image) error {
	cur := newSlice(img, z, voxelRadius)
	if err := c.flushTop(cur); err != nil {
		return err
	}

	for v := 0; v < cur.vSize; v++ {
		for u := 0; u < cur.uSize; u++ {
			if !cur.has(u, v) {
				continue
			}
			x0, y0 := float32(u)*cur.size, float32(v)*cur.size
			x1, y1 := x0+cur.size, y0+cur.size
			z0, z1 := cur.z0, cur.z1

			if !c.lastSlice.has(u, v) { // -Z
				if err := c.quad(vec(x0, y0, z0), vec(x0, y1, z0), vec(x1, y1, z0), vec(x1, y0, z0)); err != nil {
					return err
				}
			}
			if !cur.has(u-1, v) { // -X
				if err := c.quad(vec(x0, y0, z0), vec(x0, y0, z1), vec(x0, y1, z1), vec(x0, y1, z0)); err != nil {
					return err
				}
			}
			if !cur.has(u+1, v) { // +X
				if err := c.quad(vec(x1, y0, z0), vec(x1, y1, z0), vec(x1, y1, z1), vec(x1, y0, z1)); err != nil {
					return err
				}
			}
			if !cur.has(u, v-1) { // -Y
				if err := c.quad(vec(x0, y0, z0), vec(x1, y0, z0), vec(x1, y0, z1), vec(x0, y0, z1)); err != nil {
					return err
				}
			}
			if !cur.has(u, v+1) { // +Y
				if err := c.quad(vec(x0, y1, z0), vec(x0, y1, z1), vec(x1, y1, z1), vec(x1, y1, z0)); err != nil {
					return err
				}
			}
		}
	}

	c.lastSlice = cur
	return nil
}

// flushTop writes the +Z faces of the last slice that next does not cover.
func (c *client) flushTop(next *uvSlice) error {
	last := c.lastSlice
	if last == nil {
		return nil
	}
	for v := 0; v < last.vSize; v++ {
		for u := 0; u < last.uSize; u++ {
			if !last.has(u, v) || next.has(u, v) {
				continue
			}
			x0, y0 := float32(u)*last.size, float32(v)*last.size
			x1, y1 := x0+last.size, y0+last.size
			z := last.z1
			if err := c.quad(vec(x0, y0, z), vec(x1, y0, z), vec(x1, y1, z), vec(x0, y1, z)); err != nil {
				return err
			}
		}
	}
	return nil
}

// quad writes the counter-clockwise quad a,b,c,d as two triangles.
func (c *client) quad(a, b, cc, d mgl32.Vec3) error {
	if err := c.w.Write(stl.NewTri(a, b, cc)); err != nil {
		return err
	}
	if err := c.w.Write(stl.NewTri(a, cc, d)); err != nil {
		return err
	}
	c.tris += 2
	return nil
}

func vec(x, y, z float32) mgl32.Vec3 { return mgl32.Vec3{x, y, z} }
