package voxels

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmlewis/volrender/ktx"
	"github.com/gmlewis/volrender/slicer"
	"github.com/gmlewis/volrender/stl"
)

// volume builds an 8-bit mask of nx*ny*nz voxels from z-major data.
func volume(t *testing.T, nx, ny, nz int, data []byte) *slicer.Volume {
	t.Helper()
	h := &ktx.Header{GLType: 0x1401, GLTypeSize: 1, GLFormat: 0x1903, PixelWidth: uint32(nx), PixelHeight: uint32(ny), PixelDepth: uint32(nz), NumberOfMipmapLevels: 1}
	v, err := slicer.New(h, []ktx.Level{ktx.NewLevel(data)}, 0)
	require.NoError(t, err)
	return v
}

type triRecorder struct {
	tris []*stl.Tri
	fail bool
}

func (r *triRecorder) Write(t *stl.Tri) error {
	if r.fail {
		return errors.New("write failed")
	}
	r.tris = append(r.tris, t)
	return nil
}

func TestWriteSurface(t *testing.T) {
	tests := []struct {
		name       string
		nx, ny, nz int
		data       []byte
		want       int
	}{
		{name: "single voxel", nx: 1, ny: 1, nz: 1, data: []byte{1}, want: 12},
		{name: "two voxels along x", nx: 2, ny: 1, nz: 1, data: []byte{1, 1}, want: 20},
		{name: "two voxels along z", nx: 1, ny: 1, nz: 2, data: []byte{1, 1}, want: 20},
		{name: "other structure ignored", nx: 2, ny: 1, nz: 1, data: []byte{1, 2}, want: 12},
		{name: "empty", nx: 2, ny: 2, nz: 1, data: []byte{0, 0, 0, 2}, want: 0},
		{name: "2x2x2 cube", nx: 2, ny: 2, nz: 2, data: []byte{1, 1, 1, 1, 1, 1, 1, 1}, want: 48},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("test #%v: %v", i, tt.name), func(t *testing.T) {
			rec := &triRecorder{}
			n, err := WriteSurface(rec, volume(t, tt.nx, tt.ny, tt.nz, tt.data), 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
			assert.Len(t, rec.tris, tt.want)

			// A closed surface has normals (weighted by area) summing to zero.
			var sum [3]float32
			for _, tri := range rec.tris {
				for k := 0; k < 3; k++ {
					sum[k] += tri.N[k]
				}
			}
			assert.Equal(t, [3]float32{}, sum)
		})
	}
}

func TestSurfaceBounds(t *testing.T) {
	rec := &triRecorder{}
	_, err := WriteSurface(rec, volume(t, 1, 1, 2, []byte{0, 1}), 1)
	require.NoError(t, err)

	var lo, hi [3]float32
	lo = [3]float32{100, 100, 100}
	for _, tri := range rec.tris {
		for _, v := range [][3]float32{tri.V1, tri.V2, tri.V3} {
			for k := 0; k < 3; k++ {
				lo[k] = min(lo[k], v[k])
				hi[k] = max(hi[k], v[k])
			}
		}
	}
	assert.Equal(t, [3]float32{0, 0, 1}, lo)
	assert.Equal(t, [3]float32{1, 1, 2}, hi)
}

func TestWriteSurfaceError(t *testing.T) {
	_, err := WriteSurface(&triRecorder{fail: true}, volume(t, 1, 1, 1, []byte{1}), 1)
	assert.Error(t, err)
}

func TestSlice(t *testing.T) {
	name := filepath.Join(t.TempDir(), "structure.stl")
	require.NoError(t, Slice(name, volume(t, 1, 1, 1, []byte{3}), 3))
	fi, err := os.Stat(name)
	require.NoError(t, err)
	assert.Equal(t, int64(84+12*50), fi.Size())
}

func TestComponents(t *testing.T) {
	tests := []struct {
		name       string
		nx, ny, nz int
		data       []byte
		want       int
	}{
		{name: "none", nx: 2, ny: 1, nz: 1, data: []byte{0, 0}},
		{name: "one voxel", nx: 1, ny: 1, nz: 1, data: []byte{1}, want: 1},
		{name: "diagonal voxels are separate", nx: 2, ny: 2, nz: 1, data: []byte{1, 0, 0, 1}, want: 2},
		{
			name: "joined in a later slice",
			nx:   3, ny: 1, nz: 2,
			data: []byte{
				1, 0, 1,
				1, 1, 1,
			},
			want: 1,
		},
		{
			name: "u shape within a slice",
			nx:   3, ny: 2, nz: 1,
			data: []byte{
				1, 0, 1,
				1, 1, 1,
			},
			want: 1,
		},
		{
			name: "stacked islands",
			nx:   3, ny: 1, nz: 3,
			data: []byte{
				1, 0, 1,
				1, 0, 0,
				0, 0, 1,
			},
			want: 3,
		},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("test #%v: %v", i, tt.name), func(t *testing.T) {
			got, err := Components(volume(t, tt.nx, tt.ny, tt.nz, tt.data), 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
