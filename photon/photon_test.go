package photon

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmlewis/volrender/ktx"
	"github.com/gmlewis/volrender/slicer"
)

func testVolume(t *testing.T, width uint32) *slicer.Volume {
	t.Helper()
	h := &ktx.Header{GLType: 0x1401, GLTypeSize: 1, GLFormat: 0x1903, PixelWidth: width, PixelHeight: 3, PixelDepth: 2, NumberOfMipmapLevels: 1}
	data := make([]byte, width*3*2)
	data[0], data[3] = 1, 1
	pz := int(width * 3)
	data[pz+int(width)], data[pz+int(width)+1], data[pz+int(width)+2] = 7, 7, 7
	v, err := slicer.New(h, []ktx.Level{ktx.NewLevel(data)}, 0)
	require.NoError(t, err)
	return v
}

// decodeLayer returns the number of pixels covered by a layer and how many
// of them are set.
func decodeLayer(data []byte) (total, set int) {
	for _, b := range data {
		n := int(b &^ litFlag)
		total += n
		if b&litFlag != 0 {
			set += n
		}
	}
	return total, set
}

func TestSlice(t *testing.T) {
	name := filepath.Join(t.TempDir(), "structure.cbddlp")
	require.NoError(t, Slice(name, testVolume(t, 4), 7, DefaultSettings(0.05)))

	buf, err := os.ReadFile(name)
	require.NoError(t, err)
	r := bytes.NewReader(buf)

	var h fileHeader
	require.NoError(t, binary.Read(r, binary.LittleEndian, &h))
	assert.Equal(t, uint32(magic), h.Magic)
	assert.Equal(t, uint32(2), h.NumLayers)
	assert.Equal(t, uint32(screenWidth), h.ResolutionX)
	assert.Equal(t, uint32(screenHeight), h.ResolutionY)
	assert.Equal(t, float32(0.05), h.LayerThickness)

	var preview previewHeader
	_, err = r.Seek(int64(h.PreviewOffset), io.SeekStart)
	require.NoError(t, err)
	require.NoError(t, binary.Read(r, binary.LittleEndian, &preview))
	assert.Equal(t, uint32(previewWidth), preview.Width)
	assert.Equal(t, h.PreviewOffset+uint32(binary.Size(previewHeader{})), preview.DataOffset)

	layers := make([]layerHeader, h.NumLayers)
	_, err = r.Seek(int64(h.LayersOffset), io.SeekStart)
	require.NoError(t, err)
	require.NoError(t, binary.Read(r, binary.LittleEndian, layers))

	assert.Equal(t, float32(50), layers[0].Exposure)
	assert.Equal(t, float32(0.05), layers[1].Height)
	assert.Equal(t, layers[0].DataOffset+layers[0].DataSize, layers[1].DataOffset)
	assert.Equal(t, len(buf), int(layers[1].DataOffset+layers[1].DataSize))

	for i, want := range []int{0, 3} {
		l := layers[i]
		total, set := decodeLayer(buf[l.DataOffset : l.DataOffset+l.DataSize])
		assert.Equal(t, screenWidth*screenHeight, total, "layer %v", i)
		assert.Equal(t, want, set, "layer %v", i)
	}
}

func TestWriteErrors(t *testing.T) {
	tests := []struct {
		name  string
		width uint32
		index uint32
		want  error
	}{
		{name: "absent structure", width: 4, index: 9},
		{name: "too wide", width: screenWidth + 1, index: 1, want: ErrTooLarge},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("test #%v: %v", i, tt.name), func(t *testing.T) {
			f, err := os.Create(filepath.Join(t.TempDir(), "out.cbddlp"))
			require.NoError(t, err)
			defer f.Close()

			err = Write(f, testVolume(t, tt.width), tt.index, DefaultSettings(0.05))
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestEncodePreview(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.SetGray(1, 1, color.Gray{Y: 255})

	got := encodePreview(img, 2, 2)
	want := []byte{
		0x20, 0x00, 0x02, 0x30, // black, repeated 3 times
		0xdf, 0xff, // white
	}
	assert.Equal(t, want, got)
}

func TestRGB15(t *testing.T) {
	tests := []struct {
		r, g, b uint32
		want    uint16
	}{
		{0, 0, 0, 0},
		{255, 0, 0, 0x001f},
		{0, 255, 0, 0x07c0},
		{0, 0, 255, 0xf800},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("test #%v: %v,%v,%v", i, tt.r, tt.g, tt.b), func(t *testing.T) {
			assert.Equal(t, tt.want, rgb15(tt.r, tt.g, tt.b))
		})
	}
}
