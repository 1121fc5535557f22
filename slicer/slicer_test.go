package slicer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmlewis/volrender/ktx"
)

const (
	glUnsignedByte  = 0x1401
	glUnsignedShort = 0x1403
	glRed           = 0x1903
	glRGBA          = 0x1908
)

// maskVolume is 4x3x2 with structure 1 in slice 0 and structure 7 in
// slice 1.
func maskVolume(t *testing.T) *Volume {
	t.Helper()
	h := &ktx.Header{
		ByteOrder:            binary.LittleEndian,
		GLType:               glUnsignedByte,
		GLTypeSize:           1,
		GLFormat:             glRed,
		PixelWidth:           4,
		PixelHeight:          3,
		PixelDepth:           2,
		NumberOfMipmapLevels: 1,
	}
	data := []byte{
		0, 1, 1, 0,
		0, 1, 0, 0,
		0, 0, 0, 0,

		0, 0, 0, 0,
		7, 7, 7, 0,
		0, 0, 0, 7,
	}
	v, err := New(h, []ktx.Level{ktx.NewLevel(data)}, 0)
	require.NoError(t, err)
	return v
}

type recorder struct {
	slices []int
	zs     []float32
	imgs   []image.Image
	failAt int
}

func (r *recorder) ProcessZSlice(sliceNum int, z, voxelRadius float32, img image.Image) error {
	if r.failAt > 0 && len(r.slices)+1 == r.failAt {
		return errors.New("boom")
	}
	r.slices = append(r.slices, sliceNum)
	r.zs = append(r.zs, z)
	r.imgs = append(r.imgs, img)
	return nil
}

func TestNew(t *testing.T) {
	h := &ktx.Header{GLType: glUnsignedByte, GLTypeSize: 1, GLFormat: glRed, PixelWidth: 2, PixelHeight: 2, PixelDepth: 2, NumberOfMipmapLevels: 2}
	levels := []ktx.Level{ktx.NewLevel(make([]byte, 8)), ktx.NewLevel(make([]byte, 1))}

	tests := []struct {
		name    string
		header  *ktx.Header
		level   int
		wantErr bool
	}{
		{name: "base level", header: h},
		{name: "second level", header: h, level: 1},
		{name: "missing level", header: h, level: 2, wantErr: true},
		{name: "float voxels", header: &ktx.Header{GLType: 0x1406, GLTypeSize: 4, GLFormat: glRed, PixelWidth: 2, PixelHeight: 2, PixelDepth: 2}, wantErr: true},
		{name: "wrong size", header: &ktx.Header{GLType: glUnsignedShort, GLTypeSize: 2, GLFormat: glRed, PixelWidth: 2, PixelHeight: 2, PixelDepth: 2}, wantErr: true},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("test #%v: %v", i, tt.name), func(t *testing.T) {
			v, err := New(tt.header, levels, tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, float32(int(1)<<tt.level)/2, v.VoxelRadius())
		})
	}
}

func TestMask(t *testing.T) {
	v := maskVolume(t)
	assert.Equal(t, []uint32{1, 7}, v.Indices())
	assert.Equal(t, uint32(7), v.At(3, 2, 1))

	img := v.MaskZSlice(1, 7)
	assert.Equal(t, []uint8{
		0, 0, 0, 0,
		255, 255, 255, 0,
		0, 0, 0, 255,
	}, img.Pix)

	rec := &recorder{}
	require.NoError(t, v.RenderMaskZSlices(1, rec, MaxToMin))
	assert.Equal(t, []int{1, 0}, rec.slices)
	assert.Equal(t, []float32{1.5, 0.5}, rec.zs)
	assert.Equal(t, uint8(0), rec.imgs[0].(*image.Gray).GrayAt(1, 0).Y)
	assert.Equal(t, uint8(255), rec.imgs[1].(*image.Gray).GrayAt(1, 0).Y)

	min, max := v.MBB()
	assert.Equal(t, [3]float32{0, 0, 0}, min)
	assert.Equal(t, [3]float32{4, 3, 2}, max)
}

func TestZSliceFormats(t *testing.T) {
	t.Run("16-bit big endian", func(t *testing.T) {
		h := &ktx.Header{ByteOrder: binary.BigEndian, GLType: glUnsignedShort, GLTypeSize: 2, GLFormat: glRed, PixelWidth: 2, PixelHeight: 1, PixelDepth: 1}
		v, err := New(h, []ktx.Level{ktx.NewLevel([]byte{0x12, 0x34, 0xFF, 0x00})}, 0)
		require.NoError(t, err)
		img, ok := v.ZSlice(0).(*image.Gray16)
		require.True(t, ok)
		assert.Equal(t, uint16(0x1234), img.Gray16At(0, 0).Y)
		assert.Equal(t, uint16(0xFF00), img.Gray16At(1, 0).Y)
	})

	t.Run("rgba", func(t *testing.T) {
		h := &ktx.Header{GLType: glUnsignedByte, GLTypeSize: 1, GLFormat: glRGBA, PixelWidth: 1, PixelHeight: 1, PixelDepth: 2}
		v, err := New(h, []ktx.Level{ktx.NewLevel([]byte{1, 2, 3, 4, 5, 6, 7, 8})}, 0)
		require.NoError(t, err)
		img, ok := v.ZSlice(1).(*image.RGBA)
		require.True(t, ok)
		assert.Equal(t, []uint8{5, 6, 7, 8}, img.Pix)
	})
}

func TestRenderStopsOnError(t *testing.T) {
	v := maskVolume(t)
	rec := &recorder{failAt: 2}
	err := v.RenderZSlices(rec, MinToMax)
	assert.Error(t, err)
	assert.Equal(t, []int{0}, rec.slices)
}
