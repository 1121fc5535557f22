package photon

import (
	"bytes"
	"encoding/binary"
	"image"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/gmlewis/volrender/slicer"
)

// ChiTuBox defaults.
const (
	magic   = 0x12fd0019
	version = 1

	bedX = 68.04
	bedY = 120.96
	bedZ = 150

	screenWidth  = 0xa00
	screenHeight = 0x5a0

	previewWidth    = 0x190
	previewHeight   = 0x12c
	thumbnailWidth  = 0xc8
	thumbnailHeight = 0x7d

	projectionType = 1
)

const (
	litFlag     = 0x80
	maxLayerRun = 0x7d

	fillBit       = 0x20
	runMarker     = 0x3000
	maxPreviewRun = 0x1000
)

type fileHeader struct {
	Magic           uint32
	Version         uint32
	BedX            float32
	BedY            float32
	BedZ            float32
	_               [3]uint32
	LayerThickness  float32
	NormalExposure  float32
	BottomExposure  float32
	OffTime         float32
	BottomLayers    uint32
	ResolutionY     uint32
	ResolutionX     uint32
	PreviewOffset   uint32
	LayersOffset    uint32
	NumLayers       uint32
	ThumbnailOffset uint32
	_               uint32
	ProjectionType  uint32
	_               [6]uint32
}

type previewHeader struct {
	Width      uint32
	Height     uint32
	DataOffset uint32
	DataSize   uint32
	_          [4]uint32
}

type layerHeader struct {
	Height     float32 // millimeters above the build plate
	Exposure   float32
	OffTime    float32
	DataOffset uint32
	DataSize   uint32
	_          [4]uint32
}

// encoder is a ZSliceProcessor that appends encoded layers.
type encoder struct {
	w           io.Writer
	tableOffset int64
	layers      []layerHeader
	next        uint32 // file offset of the next layer's data
}

// encoder implements the ZSliceProcessor interface.
var _ slicer.ZSliceProcessor = &encoder{}

// writeHeader writes everything that precedes the layer data, leaving the
// data offsets and sizes of the layer table to be filled in later.
func writeHeader(w io.Writer, preview image.Image, numLayers int, settings Settings) (*encoder, error) {
	previewData := encodePreview(preview, previewWidth, previewHeight)
	thumbnailData := encodePreview(preview, thumbnailWidth, thumbnailHeight)

	previewOffset := binary.Size(fileHeader{})
	thumbnailOffset := previewOffset + binary.Size(previewHeader{}) + len(previewData)
	tableOffset := thumbnailOffset + binary.Size(previewHeader{}) + len(thumbnailData)
	dataOffset := tableOffset + numLayers*binary.Size(layerHeader{})

	h := fileHeader{
		Magic:           magic,
		Version:         version,
		BedX:            bedX,
		BedY:            bedY,
		BedZ:            bedZ,
		LayerThickness:  settings.LayerThickness,
		NormalExposure:  settings.NormalExposure,
		BottomExposure:  settings.BottomExposure,
		OffTime:         settings.OffTime,
		BottomLayers:    uint32(settings.BottomLayers),
		ResolutionY:     screenHeight,
		ResolutionX:     screenWidth,
		PreviewOffset:   uint32(previewOffset),
		LayersOffset:    uint32(tableOffset),
		NumLayers:       uint32(numLayers),
		ThumbnailOffset: uint32(thumbnailOffset),
		ProjectionType:  projectionType,
	}

	e := &encoder{w: w, tableOffset: int64(tableOffset), next: uint32(dataOffset)}
	for i := 0; i < numLayers; i++ {
		exposure := settings.NormalExposure
		if i < settings.BottomLayers {
			exposure = settings.BottomExposure
		}
		e.layers = append(e.layers, layerHeader{
			Height:   float32(i) * settings.LayerThickness,
			Exposure: exposure,
			OffTime:  settings.OffTime,
		})
	}

	var buf bytes.Buffer
	buf.Grow(dataOffset)
	for _, v := range []interface{}{
		h,
		previewHeader{
			Width:      previewWidth,
			Height:     previewHeight,
			DataOffset: uint32(previewOffset + binary.Size(previewHeader{})),
			DataSize:   uint32(len(previewData)),
		},
		previewData,
		previewHeader{
			Width:      thumbnailWidth,
			Height:     thumbnailHeight,
			DataOffset: uint32(thumbnailOffset + binary.Size(previewHeader{})),
			DataSize:   uint32(len(thumbnailData)),
		},
		thumbnailData,
		e.layers,
	} {
		if err := writeLE(&buf, v); err != nil {
			return nil, err
		}
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *encoder) ProcessZSlice(n int, z, voxelRadius float32, img image.Image) error {
	data := encodeLayer(img)
	log.Debugf("photon: layer %v is %v bytes", n, len(data))

	l := &e.layers[n]
	l.DataOffset = e.next
	l.DataSize = uint32(len(data))
	e.next += l.DataSize

	_, err := e.w.Write(data)
	return err
}

func writeLE(w io.Writer, v interface{}) error {
	return binary.Write(w, binary.LittleEndian, v)
}

// encodeLayer run-length encodes a binary slice centered on the screen.
// Pixels are visited column by column; each byte holds a run length in
// its low 7 bits and litFlag for runs of set pixels.
func encodeLayer(img image.Image) []byte {
	b := img.Bounds()
	x0 := (screenWidth - b.Dx()) / 2
	y0 := (screenHeight - b.Dy()) / 2

	isSet := func(x, y int) bool {
		if g, ok := img.(*image.Gray); ok {
			return g.GrayAt(x, y).Y != 0
		}
		r, _, _, _ := img.At(x, y).RGBA()
		return r != 0
	}

	var out []byte
	var lit bool
	var run byte
	flush := func() {
		if run == 0 {
			return
		}
		if lit {
			run |= litFlag
		}
		out = append(out, run)
		run = 0
	}

	for x := 0; x < screenWidth; x++ {
		for y := 0; y < screenHeight; y++ {
			ix, iy := x-x0, y-y0
			set := ix >= 0 && ix < b.Dx() && iy >= 0 && iy < b.Dy() && isSet(b.Min.X+ix, b.Min.Y+iy)
			if set != lit {
				flush()
				lit = set
			}
			run++
			if run == maxLayerRun {
				flush()
			}
		}
	}
	flush()
	return out
}

// encodePreview scales img to width x height and encodes it as 15-bit
// color. Repeated colors are written once with fillBit set, followed by a
// run count.
func encodePreview(img image.Image, width, height int) []byte {
	b := img.Bounds()
	at := func(i int) uint16 {
		x := b.Min.X + (i%width)*b.Dx()/width
		y := b.Min.Y + (i/width)*b.Dy()/height
		r, g, bl, _ := img.At(x, y).RGBA()
		return rgb15(r>>8, g>>8, bl>>8)
	}

	var out []byte
	n := width * height
	for i := 0; i < n; {
		c := at(i)
		run := 1
		for i+run < n && run < maxPreviewRun && at(i+run) == c {
			run++
		}
		if run == 1 {
			out = binary.LittleEndian.AppendUint16(out, c)
		} else {
			out = binary.LittleEndian.AppendUint16(out, c|fillBit)
			out = binary.LittleEndian.AppendUint16(out, uint16(run-1)|runMarker)
		}
		i += run
	}
	return out
}

// rgb15 packs 8-bit channels as 5 bits each: red in bits 0-4, green in
// 6-10, and blue in 11-15. Bit 5 is fillBit.
func rgb15(r, g, b uint32) uint16 {
	scale := func(v uint32) uint16 { return uint16((v*31 + 127) / 255) }
	return scale(r) | scale(g)<<6 | scale(b)<<11
}
