// Package zipper is a ZSliceProcessor that writes the slices of a volume
// level as PNG images into a ZIP file.
package zipper

import (
	"archive/zip"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gmlewis/volrender/slicer"
)

// Slicer represents a volume that provides Z slices.
type Slicer interface {
	MBB() (min, max [3]float32) // in base level voxels
	NumXSlices() int
	NumYSlices() int
	NumZSlices() int

	RenderZSlices(sp slicer.ZSliceProcessor, order slicer.Order) error
	RenderMaskZSlices(index uint32, sp slicer.ZSliceProcessor, order slicer.Order) error
}

// Slice writes every Z slice of the volume to zipName as outNNNN.png.
func Slice(zipName string, s Slicer) error {
	return create(zipName, func(w io.Writer) error {
		return Write(w, s)
	})
}

// SliceMask writes the binary Z slices of one mask structure to zipName.
func SliceMask(zipName string, s Slicer, index uint32) error {
	return create(zipName, func(w io.Writer) error {
		return WriteMask(w, s, index)
	})
}

// Write writes every Z slice of the volume as a ZIP archive to w.
func Write(w io.Writer, s Slicer) error {
	zp := &zipper{w: zip.NewWriter(w), fmtStr: "out%04d.png"}
	if err := s.RenderZSlices(zp, slicer.MinToMax); err != nil {
		return err
	}
	return zp.close()
}

// WriteMask writes the binary Z slices of one mask structure as a ZIP
// archive to w.
func WriteMask(w io.Writer, s Slicer, index uint32) error {
	zp := &zipper{w: zip.NewWriter(w), fmtStr: "out%04d.png"}
	if err := s.RenderMaskZSlices(index, zp, slicer.MinToMax); err != nil {
		return err
	}
	return zp.close()
}

func create(name string, write func(w io.Writer) error) error {
	zf, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	if err := write(zf); err != nil {
		zf.Close()
		return err
	}
	if err := zf.Close(); err != nil {
		return fmt.Errorf("Unable to close ZIP file: %w", err)
	}
	log.Infof("Wrote %v", name)
	return nil
}

// zipper represents a SliceProcessor that writes its results to a ZIP file.
type zipper struct {
	w      *zip.Writer
	fmtStr string
	count  int
}

// zipper implements the ZSliceProcessor interface.
var _ slicer.ZSliceProcessor = &zipper{}

func (zp *zipper) ProcessZSlice(n int, z, voxelRadius float32, img image.Image) error {
	filename := fmt.Sprintf(zp.fmtStr, n)
	fh := &zip.FileHeader{
		Name:     filename,
		Comment:  fmt.Sprintf("z=%0.2f", z),
		Method:   zip.Deflate,
		Modified: time.Now(),
	}
	f, err := zp.w.CreateHeader(fh)
	if err != nil {
		return fmt.Errorf("Unable to create ZIP file %q: %w", filename, err)
	}
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("PNG encode: %w", err)
	}
	zp.count++
	return nil
}

func (zp *zipper) close() error {
	if err := zp.w.Close(); err != nil {
		return fmt.Errorf("Unable to close ZIP writer: %w", err)
	}
	log.Debugf("zipper: wrote %v slices", zp.count)
	return nil
}
