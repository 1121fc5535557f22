// Package binvox writes one mask structure of a volume as a binvox file.
package binvox

import (
	"fmt"
	"image"

	log "github.com/sirupsen/logrus"

	"github.com/gmlewis/stldice/v4/binvox"

	"github.com/gmlewis/volrender/slicer"
)

// Slicer represents a mask volume that provides binary Z slices of a
// structure.
type Slicer interface {
	MBB() (min, max [3]float32) // in base level voxels
	NumXSlices() int
	NumYSlices() int
	NumZSlices() int

	RenderMaskZSlices(index uint32, sp slicer.ZSliceProcessor, order slicer.Order) error
}

// Slice writes the voxels of structure index to filename.
func Slice(filename string, s Slicer, index uint32) error {
	b, err := Voxelize(s, index)
	if err != nil {
		return err
	}
	log.Infof("Writing: %v", filename)
	if err := b.Write(filename, 0, 0, 0, b.NX, b.NY, b.NZ); err != nil {
		return fmt.Errorf("Write: %w", err)
	}
	return nil
}

// Voxelize returns the voxels of structure index in a binvox model whose
// translation and scale map voxels back into base level coordinates.
func Voxelize(s Slicer, index uint32) (*binvox.BinVOX, error) {
	min, max := s.MBB()
	scale := float64(max[0] - min[0])
	if d := float64(max[1] - min[1]); d > scale {
		scale = d
	}
	if d := float64(max[2] - min[2]); d > scale {
		scale = d
	}
	b := binvox.New(
		s.NumXSlices(),
		s.NumYSlices(),
		s.NumZSlices(),
		float64(min[0]),
		float64(min[1]),
		float64(min[2]),
		scale,
		false,
	)

	c := &client{b: b}
	if err := s.RenderMaskZSlices(index, c, slicer.MinToMax); err != nil {
		return nil, fmt.Errorf("RenderMaskZSlices: %w", err)
	}
	log.Debugf("binvox: structure %v has %v voxels", index, c.count)
	if c.count == 0 {
		return nil, fmt.Errorf("binvox: structure %v has no voxels", index)
	}
	return b, nil
}

// client represents a mask-to-binvox converter.
type client struct {
	b     *binvox.BinVOX
	count int
}

// client implements the ZSliceProcessor interface.
var _ slicer.ZSliceProcessor = &client{}

func (c *client) ProcessZSlice(sliceNum int, z, voxelRadius float32, img image.Image) error {
	b := img.Bounds()
	for v := b.Min.Y; v < b.Max.Y; v++ {
		for u := b.Min.X; u < b.Max.X; u++ {
			if r, _, _, _ := img.At(u, v).RGBA(); r == 0 {
				continue
			}
			c.b.Add(u, v, sliceNum)
			c.count++
		}
	}
	return nil
}
