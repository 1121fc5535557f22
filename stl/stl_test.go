package stl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	tri := NewTri(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0})
	tests := []struct {
		name string
		tris []*Tri
	}{
		{
			name: "no triangles",
		},
		{
			name: "two triangles",
			tris: []*Tri{tri, tri},
		},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("test #%v: %v", i, tt.name), func(t *testing.T) {
			out := &fakeFile{}
			c, err := NewWriter(out, "volrender test")
			require.NoError(t, err)

			for i, tri := range tt.tris {
				if err := c.Write(tri); err != nil {
					t.Fatalf("c.Write: i=%v, %v", i, err)
				}
			}
			require.NoError(t, c.Close())

			assert.Equal(t, 1, out.closes)
			assert.Equal(t, len(tt.tris), c.Count())
			require.Len(t, out.buf, 84+50*len(tt.tris))
			assert.Equal(t, "volrender test", string(out.buf[:14]))
			assert.Equal(t, uint32(len(tt.tris)), binary.LittleEndian.Uint32(out.buf[80:]))
			if len(tt.tris) > 0 {
				nz := math.Float32frombits(binary.LittleEndian.Uint32(out.buf[84+8:]))
				assert.Equal(t, float32(1), nz)
			}
		})
	}
}

func TestNewTriNormal(t *testing.T) {
	tri := NewTri(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 2, 0}, mgl32.Vec3{2, 0, 0})
	assert.Equal(t, [3]float32{0, 0, -1}, tri.N)

	degenerate := NewTri(mgl32.Vec3{1, 1, 1}, mgl32.Vec3{1, 1, 1}, mgl32.Vec3{1, 1, 1})
	assert.Equal(t, [3]float32{}, degenerate.N)
}

func TestWriteError(t *testing.T) {
	out := &fakeFile{failAfter: 1}
	c, err := NewWriter(out, "")
	require.NoError(t, err)
	tri := NewTri(mgl32.Vec3{}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0})
	for i := 0; i < 3; i++ {
		c.Write(tri)
	}
	assert.Error(t, c.Close())
	assert.Equal(t, 1, out.closes, "file closed even on error")
}

func TestNew(t *testing.T) {
	name := filepath.Join(t.TempDir(), "out.stl")
	c, err := New(name, "file")
	require.NoError(t, err)
	require.NoError(t, c.Write(NewTri(mgl32.Vec3{}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0})))
	require.NoError(t, c.Close())

	fi, err := os.Stat(name)
	require.NoError(t, err)
	assert.Equal(t, int64(134), fi.Size())
}

// fakeFile is an in-memory io.WriteSeeker that can fail after a number of
// successful writes.
type fakeFile struct {
	buf       []byte
	pos       int
	writes    int
	failAfter int
	closes    int
}

func (f *fakeFile) Close() error {
	f.closes++
	return nil
}

func (f *fakeFile) Seek(offset int64, whence int) (int64, error) {
	if whence != io.SeekStart {
		return 0, errors.New("unsupported whence")
	}
	f.pos = int(offset)
	return offset, nil
}

func (f *fakeFile) Write(p []byte) (n int, err error) {
	f.writes++
	if f.failAfter > 0 && f.writes > f.failAfter+1 { // +1 for the header
		return 0, errors.New("disk full")
	}
	if end := f.pos + len(p); end > len(f.buf) {
		f.buf = append(f.buf, make([]byte, end-len(f.buf))...)
	}
	copy(f.buf[f.pos:], p)
	f.pos += len(p)
	return len(p), nil
}
