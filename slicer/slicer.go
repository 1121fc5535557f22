// Package slicer walks one mipmap level of a decoded volume as a stack of
// Z slices, for exporters that write images or voxel files.
package slicer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sort"

	"github.com/gmlewis/volrender/ktx"
)

// Order represents the order of slice processing.
type Order byte

const (
	MinToMax Order = iota
	MaxToMin
)

// ZSliceProcessor processes a Z slice.
type ZSliceProcessor interface {
	ProcessZSlice(sliceNum int, z, voxelRadius float32, img image.Image) error
}

const glFloat = 0x1406

// ErrFormat is returned for levels whose voxel layout cannot be sliced.
var ErrFormat = errors.New("slicer: unsupported voxel format")

// Volume is one mipmap level of a container, addressed in voxels.
type Volume struct {
	Header *ktx.Header
	Level  int

	nx, ny, nz int
	bpv        int
	data       []byte
}

// New returns the given level of a decoded container.
func New(h *ktx.Header, levels []ktx.Level, level int) (*Volume, error) {
	if level < 0 || level >= len(levels) {
		return nil, fmt.Errorf("slicer: level %v out of range [0,%v)", level, len(levels))
	}
	if h.GLType == glFloat {
		return nil, fmt.Errorf("%w: floating point voxels", ErrFormat)
	}
	bpv := h.BytesPerVoxel()
	switch bpv {
	case 1, 2, 4:
	default:
		return nil, fmt.Errorf("%w: %v bytes per voxel", ErrFormat, bpv)
	}
	nx, ny, nz := h.LevelDims(level)
	if want := nx * ny * nz * bpv; len(levels[level].Data) != want {
		return nil, fmt.Errorf("%w: level %v has %v bytes, want %v", ErrFormat, level, len(levels[level].Data), want)
	}
	return &Volume{Header: h, Level: level, nx: nx, ny: ny, nz: nz, bpv: bpv, data: levels[level].Data}, nil
}

func (v *Volume) NumXSlices() int { return v.nx }
func (v *Volume) NumYSlices() int { return v.ny }
func (v *Volume) NumZSlices() int { return v.nz }

// MBB returns the minimum bounding box in voxel units of the base level,
// so every level of a container shares one coordinate frame.
func (v *Volume) MBB() (min, max [3]float32) {
	depth := v.Header.PixelDepth
	if depth == 0 {
		depth = 1
	}
	return min, [3]float32{float32(v.Header.PixelWidth), float32(v.Header.PixelHeight), float32(depth)}
}

// VoxelRadius returns half the edge length of one voxel of this level, in
// base level voxel units.
func (v *Volume) VoxelRadius() float32 {
	return float32(int(1)<<v.Level) / 2
}

func (v *Volume) order() binary.ByteOrder {
	if v.Header.ByteOrder != nil {
		return v.Header.ByteOrder
	}
	return binary.LittleEndian
}

// At returns the raw value of a voxel. Multi-channel voxels return their
// first channel.
func (v *Volume) At(x, y, z int) uint32 {
	off := ((z*v.ny+y)*v.nx + x) * v.bpv
	switch v.Header.GLTypeSize {
	case 2:
		return uint32(v.order().Uint16(v.data[off:]))
	case 4:
		return v.order().Uint32(v.data[off:])
	}
	return uint32(v.data[off])
}

// ZSlice returns slice z as a grayscale image: Gray for 8-bit data, Gray16
// for 16-bit data, and RGBA for four 8-bit channels.
func (v *Volume) ZSlice(z int) image.Image {
	r := image.Rect(0, 0, v.nx, v.ny)
	switch {
	case v.bpv == 4 && v.Header.GLTypeSize == 1:
		img := image.NewRGBA(r)
		copy(img.Pix, v.data[z*v.nx*v.ny*4:(z+1)*v.nx*v.ny*4])
		return img
	case v.bpv == 2 && v.Header.GLTypeSize == 2:
		img := image.NewGray16(r)
		for y := 0; y < v.ny; y++ {
			for x := 0; x < v.nx; x++ {
				img.SetGray16(x, y, color.Gray16{Y: uint16(v.At(x, y, z))})
			}
		}
		return img
	}
	img := image.NewGray(r)
	for y := 0; y < v.ny; y++ {
		for x := 0; x < v.nx; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(v.At(x, y, z))})
		}
	}
	return img
}

// MaskZSlice returns slice z of a mask volume as a binary image that is
// white where the voxel belongs to structure index.
func (v *Volume) MaskZSlice(z int, index uint32) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, v.nx, v.ny))
	for y := 0; y < v.ny; y++ {
		for x := 0; x < v.nx; x++ {
			if v.At(x, y, z) == index {
				img.Pix[y*img.Stride+x] = 255
			}
		}
	}
	return img
}

// Indices returns the distinct nonzero values of a mask volume in
// ascending order.
func (v *Volume) Indices() []uint32 {
	seen := map[uint32]bool{}
	for z := 0; z < v.nz; z++ {
		for y := 0; y < v.ny; y++ {
			for x := 0; x < v.nx; x++ {
				if i := v.At(x, y, z); i != 0 {
					seen[i] = true
				}
			}
		}
	}
	out := make([]uint32, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RenderZSlices sends every Z slice to sp in the given order.
func (v *Volume) RenderZSlices(sp ZSliceProcessor, order Order) error {
	return v.render(sp, order, v.ZSlice)
}

// RenderMaskZSlices sends the binary Z slices of one mask structure to sp.
func (v *Volume) RenderMaskZSlices(index uint32, sp ZSliceProcessor, order Order) error {
	return v.render(sp, order, func(z int) image.Image { return v.MaskZSlice(z, index) })
}

func (v *Volume) render(sp ZSliceProcessor, order Order, slice func(z int) image.Image) error {
	vr := v.VoxelRadius()
	for n := 0; n < v.nz; n++ {
		z := n
		if order == MaxToMin {
			z = v.nz - n - 1
		}
		// Slice centers, in base level voxel units.
		zc := (2*float32(z) + 1) * vr
		if err := sp.ProcessZSlice(z, zc, vr, slice(z)); err != nil {
			return fmt.Errorf("slice %v: %w", z, err)
		}
	}
	return nil
}
