// Package photon writes one mask structure of a volume as a ChiTuBox .cbddlp
// file (the same layout as an AnyCubic .photon file) for resin printing.
//
// Layers are streamed to the output file as they are sliced; the layer
// table is rewritten once every layer size is known.
//
// The file layout follows github.com/Andoryuuta/photon (Apache-2.0).
package photon

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/gmlewis/volrender/slicer"
)

// Slicer represents a mask volume that provides binary Z slices of a
// structure.
type Slicer interface {
	NumXSlices() int
	NumYSlices() int
	NumZSlices() int

	MaskZSlice(z int, index uint32) *image.Gray
	RenderMaskZSlices(index uint32, sp slicer.ZSliceProcessor, order slicer.Order) error
}

// ErrTooLarge is returned when a slice does not fit on the printer screen.
var ErrTooLarge = errors.New("photon: slice is larger than the printer screen")

// Settings are the printer parameters stored in the file header.
type Settings struct {
	LayerThickness float32 // millimeters
	NormalExposure float32 // seconds
	BottomExposure float32 // seconds
	OffTime        float32 // seconds
	BottomLayers   int
}

// DefaultSettings returns the ChiTuBox defaults for the given layer
// thickness in millimeters.
func DefaultSettings(layerThickness float32) Settings {
	return Settings{
		LayerThickness: layerThickness,
		NormalExposure: 6,
		BottomExposure: 50,
		BottomLayers:   8,
	}
}

// Slice writes structure index of s to filename.
func Slice(filename string, s Slicer, index uint32, settings Settings) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	log.Infof("Writing: %v", filename)
	if err := Write(f, s, index, settings); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Write streams structure index of s to w, one layer per Z slice.
func Write(w io.WriteSeeker, s Slicer, index uint32, settings Settings) error {
	nx, ny, nz := s.NumXSlices(), s.NumYSlices(), s.NumZSlices()
	if nx > screenWidth || ny > screenHeight {
		return fmt.Errorf("%w: %vx%v does not fit %vx%v", ErrTooLarge, nx, ny, screenWidth, screenHeight)
	}

	preview, count := silhouette(s, index)
	if count == 0 {
		return fmt.Errorf("photon: structure %v has no voxels", index)
	}
	log.Debugf("photon: structure %v covers %v pixels of the build plate", index, count)

	e, err := writeHeader(w, preview, nz, settings)
	if err != nil {
		return err
	}
	if err := s.RenderMaskZSlices(index, e, slicer.MinToMax); err != nil {
		return fmt.Errorf("RenderMaskZSlices: %w", err)
	}

	if _, err := w.Seek(e.tableOffset, io.SeekStart); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	return writeLE(w, e.layers)
}

// silhouette returns the union of all Z slices of a structure and the
// number of pixels it covers.
func silhouette(s Slicer, index uint32) (*image.Gray, int) {
	out := image.NewGray(image.Rect(0, 0, s.NumXSlices(), s.NumYSlices()))
	var count int
	for z := 0; z < s.NumZSlices(); z++ {
		img := s.MaskZSlice(z, index)
		for i, v := range img.Pix {
			if v != 0 && out.Pix[i] == 0 {
				out.Pix[i] = 0xff
				count++
			}
		}
	}
	return out, count
}
