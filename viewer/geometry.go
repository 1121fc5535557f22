package viewer

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

var sqrt3 = float32(math.Sqrt(3))

// Camera orbits the volume, which sits at the origin.
type Camera struct {
	Yaw, Pitch float32 // radians
	Distance   float32
	FovY       float32 // radians
	Aspect     float32
}

// NewCamera returns a camera looking down -Z at the whole volume.
func NewCamera(aspect float32) *Camera {
	return &Camera{Distance: 4, FovY: mgl32.DegToRad(45), Aspect: aspect}
}

// Rotate turns the volume by the given angles, clamping pitch so the view
// never flips over the pole.
func (c *Camera) Rotate(dYaw, dPitch float32) {
	c.Yaw += dYaw
	c.Pitch = mgl32.Clamp(c.Pitch+dPitch, -math.Pi/2, math.Pi/2)
}

// Rotation returns the model rotation of the volume.
func (c *Camera) Rotation() mgl32.Mat4 {
	return mgl32.HomogRotate3DX(c.Pitch).Mul4(mgl32.HomogRotate3DY(c.Yaw))
}

// ViewProjection returns the projection times the view matrix.
func (c *Camera) ViewProjection() mgl32.Mat4 {
	proj := mgl32.Perspective(c.FovY, c.Aspect, 0.1, 100)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, c.Distance}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	return proj.Mul4(view)
}

// SliceMVP scales the view-aligned slice stack so that it covers the
// bounding sphere of the volume in every orientation.
func (c *Camera) SliceMVP() mgl32.Mat4 {
	return c.ViewProjection().Mul4(mgl32.Scale3D(sqrt3, sqrt3, sqrt3))
}

// TextureMVP maps slice stack positions to texture coordinates of a volume
// with the given half extents. Positions outside the volume map outside
// [0,1] and are discarded by the shader.
func (c *Camera) TextureMVP(extent mgl32.Vec3) mgl32.Mat4 {
	return mgl32.Translate3D(0.5, 0.5, 0.5).
		Mul4(mgl32.Scale3D(0.5/extent[0], 0.5/extent[1], 0.5/extent[2])).
		Mul4(c.Rotation().Transpose()).
		Mul4(mgl32.Scale3D(sqrt3, sqrt3, sqrt3))
}

// BoxMVP places the unit cube of BoxLines around a volume with the given
// half extents.
func (c *Camera) BoxMVP(extent mgl32.Vec3) mgl32.Mat4 {
	return c.ViewProjection().Mul4(c.Rotation()).Mul4(mgl32.Scale3D(extent[0], extent[1], extent[2]))
}

// Extent returns the half extents of a volume of the given voxel size,
// normalized so the longest axis spans [-1,1].
func Extent(width, height, depth int) mgl32.Vec3 {
	if depth < 1 {
		depth = 1
	}
	m := float32(width)
	if h := float32(height); h > m {
		m = h
	}
	if d := float32(depth); d > m {
		m = d
	}
	if m == 0 {
		return mgl32.Vec3{1, 1, 1}
	}
	return mgl32.Vec3{float32(width) / m, float32(height) / m, float32(depth) / m}
}

// SliceStack returns n quads spanning [-1,1] in X and Y, ordered back to
// front along Z. Each vertex is a position followed by an identical
// texture coordinate input, matching the volume program's attributes.
func SliceStack(n int) []float32 {
	out := make([]float32, 0, n*6*6)
	corners := [6][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, -1}, {1, 1}, {-1, 1}}
	for i := 0; i < n; i++ {
		z := -1 + float32(2*i+1)/float32(n)
		for _, c := range corners {
			out = append(out, c[0], c[1], z, c[0], c[1], z)
		}
	}
	return out
}

// SliceStackSizes are the attribute sizes of SliceStack vertices.
var SliceStackSizes = []int32{3, 3}

// BoxLines returns the 12 edges of the [-1,1] cube as line segments. Each
// vertex is a position, a color weight (1 on the +Z face), and an unused
// texture coordinate, matching the overlay program's attributes.
func BoxLines() []float32 {
	var out []float32
	vertex := func(x, y, z float32) {
		var w float32
		if z > 0 {
			w = 1
		}
		out = append(out, x, y, z, w, 0, 0)
	}
	for _, a := range []float32{-1, 1} {
		for _, b := range []float32{-1, 1} {
			vertex(-1, a, b)
			vertex(1, a, b)
			vertex(a, -1, b)
			vertex(a, 1, b)
			vertex(a, b, -1)
			vertex(a, b, 1)
		}
	}
	return out
}

// BoxLinesSizes are the attribute sizes of BoxLines vertices.
var BoxLinesSizes = []int32{3, 1, 2}

// vertexCount returns the number of vertices in data given its attribute
// sizes.
func vertexCount(data []float32, sizes []int32) int32 {
	var stride int32
	for _, s := range sizes {
		stride += s
	}
	return int32(len(data)) / stride
}
