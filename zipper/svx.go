package zipper

import (
	"archive/zip"
	"fmt"
	"io"
	"time"

	"github.com/gmlewis/volrender/slicer"
)

// Metadata is recorded in the SVX manifest.
type Metadata struct {
	Author string
	Date   string
	// VoxelSize is the edge length of one base level voxel in meters.
	VoxelSize float64
}

// SVXSlice writes one mask structure as an SVX (simple voxels) file: a ZIP
// of density slices plus a manifest.
func SVXSlice(svxName string, s Slicer, index uint32, md Metadata) error {
	return create(svxName, func(w io.Writer) error {
		return WriteSVX(w, s, index, md)
	})
}

// WriteSVX writes one mask structure in SVX format to w.
func WriteSVX(w io.Writer, s Slicer, index uint32, md Metadata) error {
	zp := &zipper{w: zip.NewWriter(w), fmtStr: "density/slice%04d.png"}
	if err := zp.writeManifest(s, md); err != nil {
		return err
	}
	if err := s.RenderMaskZSlices(index, zp, slicer.MinToMax); err != nil {
		return err
	}
	return zp.close()
}

func (zp *zipper) writeManifest(s Slicer, md Metadata) error {
	fh := &zip.FileHeader{
		Name:     "manifest.xml",
		Modified: time.Now(),
	}
	f, err := zp.w.CreateHeader(fh)
	if err != nil {
		return fmt.Errorf("Unable to create ZIP file %q: %w", fh.Name, err)
	}

	min, max := s.MBB()
	voxelSize := md.VoxelSize
	if voxelSize == 0 {
		voxelSize = 1e-6
	}
	// Coarser levels have proportionally larger voxels.
	voxelSize *= float64(max[2]-min[2]) / float64(s.NumZSlices())

	_, err = fmt.Fprintf(f, manifestFmt,
		s.NumXSlices(),
		s.NumYSlices(),
		s.NumZSlices(),
		voxelSize,
		md.Author,
		md.Date)
	return err
}

var manifestFmt = `<?xml version="1.0"?>

<grid version="1.0" gridSizeX="%v" gridSizeY="%v" gridSizeZ="%v"
   voxelSize="%v" subvoxelBits="8" slicesOrientation="Z" >

    <channels>
        <channel type="DENSITY" bits="8" slices="density/slice%%04d.png" />
    </channels>

    <materials>
        <material id="1" urn="urn:shapeways:materials/1" />
    </materials>

    <metadata>
        <entry key="author" value=%q />
        <entry key="creationDate" value=%q />
    </metadata>
</grid>`
