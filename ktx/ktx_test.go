package ktx

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildContainer assembles a container by hand so the decoder is not only
// checked against Encode.
func buildContainer(order binary.ByteOrder, fields headerFields, kv []byte, levels [][]byte) []byte {
	var buf bytes.Buffer
	buf.Write(Identifier[:])
	if order == binary.LittleEndian {
		buf.Write(littleSentinel[:])
	} else {
		buf.Write(bigSentinel[:])
	}
	fields.BytesOfKeyValueData = uint32(len(kv))
	binary.Write(&buf, order, &fields)
	buf.Write(kv)
	for _, l := range levels {
		binary.Write(&buf, order, uint32(len(l)))
		buf.Write(l)
		buf.Write(make([]byte, Padding(uint32(len(l)))))
	}
	return buf.Bytes()
}

func generatorKV(order binary.ByteOrder) []byte {
	var buf bytes.Buffer
	record := []byte("generator\x00test")
	binary.Write(&buf, order, uint32(len(record)))
	buf.Write(record)
	buf.Write(make([]byte, Padding(uint32(len(record)))))
	return buf.Bytes()
}

func TestDecodeTwoLevelScenario(t *testing.T) {
	fields := headerFields{
		GLType:               0x1401, // GL_UNSIGNED_BYTE
		GLTypeSize:           1,
		GLFormat:             0x1903, // GL_RED
		GLInternalFormat:     0x8229, // GL_R8
		GLBaseInternalFormat: 0x1903,
		PixelWidth:           64,
		PixelHeight:          64,
		PixelDepth:           1,
		NumberOfFaces:        1,
		NumberOfMipmapLevels: 2,
	}
	level0 := bytes.Repeat([]byte{7}, 64*64)
	level1 := bytes.Repeat([]byte{9}, 32*32)
	data := buildContainer(binary.LittleEndian, fields, generatorKV(binary.LittleEndian), [][]byte{level0, level1})

	h, levels, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, binary.LittleEndian, h.ByteOrder)
	assert.Equal(t, uint32(64), h.PixelWidth)
	assert.Equal(t, uint32(64), h.PixelHeight)
	assert.Equal(t, uint32(2), h.NumberOfMipmapLevels)
	assert.Equal(t, []KeyValue{{Key: "generator", Value: []byte("test")}}, h.KeyValues)
	got, ok := h.String("generator")
	assert.True(t, ok)
	assert.Equal(t, "test", got)

	require.Len(t, levels, 2)
	for i, l := range levels {
		assert.Equal(t, int(l.Size), len(l.Data), "level %v", i)
	}
	assert.Equal(t, level0, levels[0].Data)
	assert.Equal(t, level1, levels[1].Data)
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		order  binary.ByteOrder
		kvs    []KeyValue
		levels [][]byte
	}{
		{
			name:   "little endian, no metadata",
			order:  binary.LittleEndian,
			levels: [][]byte{{1, 2, 3, 4, 5, 6, 7, 8}},
		},
		{
			name:  "big endian, ordered metadata",
			order: binary.BigEndian,
			kvs: []KeyValue{
				{Key: "zeta", Value: []byte("last\x00")},
				{Key: "alpha", Value: []byte{}},
				{Key: "KTXorientation", Value: []byte("S=r,T=d,R=i\x00")},
			},
			levels: [][]byte{make([]byte, 27), {1, 2, 3}, {4}},
		},
		{
			name:   "odd sized levels need every padding width",
			order:  binary.LittleEndian,
			kvs:    []KeyValue{{Key: "k", Value: []byte("v")}},
			levels: [][]byte{make([]byte, 5), make([]byte, 6), make([]byte, 7), make([]byte, 8)},
		},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("test #%v: %v", i, tt.name), func(t *testing.T) {
			h := &Header{
				ByteOrder:            tt.order,
				GLType:               0x1403,
				GLTypeSize:           2,
				PixelWidth:           3,
				PixelHeight:          2,
				PixelDepth:           2,
				NumberOfFaces:        1,
				NumberOfMipmapLevels: uint32(len(tt.levels)),
				KeyValues:            tt.kvs,
			}
			var levels []Level
			for _, l := range tt.levels {
				levels = append(levels, NewLevel(l))
			}

			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, h, levels))
			assert.Zero(t, buf.Len()%4, "container length is 4-byte aligned")

			gotH, gotLevels, err := Decode(&buf)
			require.NoError(t, err)
			assert.Equal(t, h, gotH)
			assert.Equal(t, levels, gotLevels)
		})
	}
}

func TestPadding(t *testing.T) {
	for n := uint32(0); n < 64; n++ {
		pad := Padding(n)
		assert.True(t, pad >= 0 && pad <= 3, "size %v", n)
		assert.Zero(t, (n+uint32(pad))%4, "size %v", n)
	}
}

func TestDecodeErrors(t *testing.T) {
	fields := headerFields{PixelWidth: 4, PixelHeight: 1, PixelDepth: 1, NumberOfMipmapLevels: 1}
	valid := buildContainer(binary.LittleEndian, fields, nil, [][]byte{{1, 2, 3, 4}})

	badMagic := append([]byte{}, valid...)
	badMagic[1] = 'X'

	badSentinel := append([]byte{}, valid...)
	copy(badSentinel[12:16], []byte{1, 1, 1, 1})

	badKV := buildContainer(binary.LittleEndian, fields, []byte{4, 0, 0, 0, 'a', 'b', 'c', 'd'}, [][]byte{{1, 2, 3, 4}})

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "empty", data: nil, want: ErrIO},
		{name: "bad magic", data: badMagic, want: ErrFormat},
		{name: "bad sentinel", data: badSentinel, want: ErrFormat},
		{name: "truncated header", data: valid[:30], want: ErrIO},
		{name: "truncated level", data: valid[:len(valid)-2], want: ErrIO},
		{name: "key without terminator", data: badKV, want: ErrFormat},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("test #%v: %v", i, tt.name), func(t *testing.T) {
			h, levels, err := Decode(bytes.NewReader(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			if tt.want == ErrIO {
				assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
			}
			assert.Nil(t, h)
			assert.Nil(t, levels)
		})
	}
}

func TestDecodeHugeDeclaredLevel(t *testing.T) {
	fields := headerFields{PixelWidth: 4, PixelHeight: 1, PixelDepth: 1, NumberOfMipmapLevels: 1}
	data := buildContainer(binary.LittleEndian, fields, nil, [][]byte{{1, 2, 3, 4}})
	// Declare a 1 GiB level in front of the 4 bytes that follow.
	binary.LittleEndian.PutUint32(data[len(data)-8:], 1<<30)

	tests := []struct {
		name string
		r    io.Reader
	}{
		{name: "sized reader", r: bytes.NewReader(data)},
		{name: "plain reader", r: struct{ io.Reader }{bytes.NewReader(data)}},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("test #%v: %v", i, tt.name), func(t *testing.T) {
			var before, after runtime.MemStats
			runtime.ReadMemStats(&before)
			_, _, err := Decode(tt.r)
			runtime.ReadMemStats(&after)

			assert.ErrorIs(t, err, ErrIO)
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
			assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(64<<20))
		})
	}
}

// cancelingReader cancels its context once limit bytes have been read.
type cancelingReader struct {
	r      io.Reader
	read   int
	limit  int
	cancel context.CancelFunc
}

func (c *cancelingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += n
	if c.read >= c.limit {
		c.cancel()
	}
	return n, err
}

func TestDecodeContextCancel(t *testing.T) {
	fields := headerFields{PixelWidth: 8, PixelHeight: 1, PixelDepth: 1, NumberOfMipmapLevels: 4}
	levels := [][]byte{make([]byte, 8), make([]byte, 4), make([]byte, 2), make([]byte, 1)}
	data := buildContainer(binary.LittleEndian, fields, nil, levels)

	t.Run("before first level", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, got, err := DecodeContext(ctx, bytes.NewReader(data))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, got)
	})

	t.Run("after last level", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		r := &cancelingReader{r: bytes.NewReader(data), limit: len(data), cancel: cancel}
		_, got, err := DecodeContext(ctx, r)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, got, "no partial levels are exposed")
	})

	t.Run("not canceled", func(t *testing.T) {
		_, got, err := DecodeContext(context.Background(), bytes.NewReader(data))
		require.NoError(t, err)
		assert.Len(t, got, 4)
	})
}

func TestLevelDims(t *testing.T) {
	h := &Header{PixelWidth: 64, PixelHeight: 16, PixelDepth: 0}
	w, ht, d := h.LevelDims(0)
	assert.Equal(t, []int{64, 16, 1}, []int{w, ht, d})
	w, ht, d = h.LevelDims(5)
	assert.Equal(t, []int{2, 1, 1}, []int{w, ht, d})
}

func TestEncodeRejectsMismatchedLevels(t *testing.T) {
	h := &Header{NumberOfMipmapLevels: 2}
	err := Encode(io.Discard, h, []Level{NewLevel([]byte{1})})
	assert.Error(t, err)

	h.NumberOfMipmapLevels = 1
	err = Encode(io.Discard, h, []Level{{Size: 3, Data: []byte{1}}})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrFormat))
}

func TestBytesPerVoxel(t *testing.T) {
	tests := []struct {
		name     string
		format   uint32
		typeSize uint32
		want     int
	}{
		{name: "red 16-bit", format: 0x1903, typeSize: 2, want: 2},
		{name: "rgba 8-bit", format: 0x1908, typeSize: 1, want: 4},
		{name: "rgb float", format: 0x1907, typeSize: 4, want: 12},
		{name: "compressed", format: 0, typeSize: 1, want: 0},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("test #%v: %v", i, tt.name), func(t *testing.T) {
			h := &Header{GLFormat: tt.format, GLTypeSize: tt.typeSize}
			assert.Equal(t, tt.want, h.BytesPerVoxel())
		})
	}
}
