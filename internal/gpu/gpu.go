// Package gpu defines the narrow slice of OpenGL that the texture and shader
// packages drive. The native implementation lives in glnative; tests use
// gputest.Recorder.
//
// Every method must be called from the single rendering thread that owns
// the current GL context.
package gpu

// OpenGL enum values used by this module. They match the GL headers so the
// native backend can pass them straight through.
const (
	Points        = 0x0000
	Lines         = 0x0001
	Triangles     = 0x0004
	TriangleStrip = 0x0005

	Texture0  = 0x84C0
	Texture2D = 0x0DE1
	Texture3D = 0x806F

	TextureMinFilter = 0x2801
	TextureMagFilter = 0x2800
	TextureWrapS     = 0x2802
	TextureWrapT     = 0x2803
	TextureWrapR     = 0x8072
	TextureBaseLevel = 0x813C
	TextureMaxLevel  = 0x813D

	Nearest            = 0x2600
	Linear             = 0x2601
	LinearMipmapLinear = 0x2703
	ClampToEdge        = 0x812F

	UnpackAlignment = 0x0CF5

	UnsignedByte  = 0x1401
	UnsignedShort = 0x1403
	Float         = 0x1406

	Red        = 0x1903
	RG         = 0x8227
	RGB        = 0x1907
	RGBA       = 0x1908
	RedInteger = 0x8D94

	R8    = 0x8229
	R16   = 0x822A
	RGB8  = 0x8051
	RGBA8 = 0x8058
	R8UI  = 0x8232
	R16UI = 0x8234
)

// TexSpec describes the storage of one texture image.
type TexSpec struct {
	InternalFormat int32
	Width          int32
	Height         int32
	Depth          int32 // 1 for 2D textures
	Format         uint32
	Type           uint32
}

// GL is the subset of OpenGL used for texture upload, uniform push and draw.
type GL interface {
	// CompileProgram compiles and links a vertex/fragment shader pair.
	CompileProgram(vertexSrc, fragmentSrc string) (uint32, error)
	DeleteProgram(program uint32)
	// UniformLocation returns -1 if the linked program has no active
	// uniform with that name.
	UniformLocation(program uint32, name string) int32
	CurrentProgram() uint32
	UseProgram(program uint32)

	Uniform1i(location int32, v int32)
	Uniform1f(location int32, v float32)
	Uniform4f(location int32, v [4]float32)
	UniformMatrix4(location int32, m [16]float32)

	GenTexture() uint32
	DeleteTexture(texture uint32)
	ActiveTexture(unit uint32)
	BindTexture(target, texture uint32)
	TexParameter(target, pname uint32, param int32)
	PixelStore(pname uint32, param int32)
	TexImage(target uint32, level int32, spec TexSpec, data []byte)

	BindVertexArray(vao uint32)
	DrawArrays(mode uint32, first, count int32)
}
