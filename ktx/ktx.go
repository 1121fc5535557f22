// Package ktx reads and writes KTX (version 1.1) multi-resolution texture
// containers as used for tiled microscopy volumes.
//
// A container is a fixed 64-byte header, a block of ordered key/value
// metadata, and one length-prefixed payload per mipmap level. All integers
// are stored in the byte order announced by the endianness sentinel that
// follows the 12-byte identifier.
package ktx

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrFormat is returned when the container is malformed (bad identifier,
	// unknown byte order, corrupt metadata).
	ErrFormat = errors.New("ktx: invalid container format")

	// ErrIO is returned when fewer bytes are available than the container
	// declares. The underlying read error is wrapped alongside it.
	ErrIO = errors.New("ktx: short read")
)

// Identifier is the 12-byte magic that starts every container.
var Identifier = [12]byte{0xAB, 0x4B, 0x54, 0x58, 0x20, 0x31, 0x31, 0xBB, 0x0D, 0x0A, 0x1A, 0x0A}

var (
	littleSentinel = [4]byte{0x01, 0x02, 0x03, 0x04}
	bigSentinel    = [4]byte{0x04, 0x03, 0x02, 0x01}
)

// cancelCheckedLevels is the number of leading (largest) levels that get a
// cancellation check before they are read.
const cancelCheckedLevels = 3

const (
	// directReadLimit is the largest block allocated up front.
	directReadLimit = 16 << 20

	maxPreallocLevels = 32
)

// Header represents a decoded container header.
type Header struct {
	ByteOrder binary.ByteOrder

	GLType                uint32
	GLTypeSize            uint32
	GLFormat              uint32
	GLInternalFormat      uint32
	GLBaseInternalFormat  uint32
	PixelWidth            uint32
	PixelHeight           uint32
	PixelDepth            uint32
	NumberOfArrayElements uint32
	NumberOfFaces         uint32
	NumberOfMipmapLevels  uint32

	// KeyValues preserves the order in which the pairs appear in the file.
	KeyValues []KeyValue
}

// KeyValue is one metadata record. Value holds the raw bytes that follow
// the NUL terminating the key.
type KeyValue struct {
	Key   string
	Value []byte
}

// Level is one mipmap level payload.
type Level struct {
	Size uint32 // as declared in the container
	Data []byte
}

// headerFields mirrors the twelve consecutive uint32 values of the header.
type headerFields struct {
	GLType                uint32
	GLTypeSize            uint32
	GLFormat              uint32
	GLInternalFormat      uint32
	GLBaseInternalFormat  uint32
	PixelWidth            uint32
	PixelHeight           uint32
	PixelDepth            uint32
	NumberOfArrayElements uint32
	NumberOfFaces         uint32
	NumberOfMipmapLevels  uint32
	BytesOfKeyValueData   uint32
}

// Value returns the raw value stored for key.
func (h *Header) Value(key string) ([]byte, bool) {
	for _, kv := range h.KeyValues {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// String returns the value stored for key with any trailing NUL removed.
func (h *Header) String(key string) (string, bool) {
	v, ok := h.Value(key)
	if !ok {
		return "", false
	}
	return string(bytes.TrimRight(v, "\x00")), true
}

// LevelCount returns the number of level payloads stored in the container.
// A declared count of zero still stores a single level.
func (h *Header) LevelCount() int {
	if h.NumberOfMipmapLevels == 0 {
		return 1
	}
	return int(h.NumberOfMipmapLevels)
}

// LevelDims returns the voxel dimensions of the given mipmap level.
func (h *Header) LevelDims(level int) (width, height, depth int) {
	dim := func(base uint32) int {
		v := int(base) >> level
		if v < 1 {
			return 1
		}
		return v
	}
	return dim(h.PixelWidth), dim(h.PixelHeight), dim(h.PixelDepth)
}

// BytesPerVoxel returns the size of one voxel of the base level, or 0 if
// the pixel format is not a plain uncompressed one.
func (h *Header) BytesPerVoxel() int {
	var components int
	switch h.GLFormat {
	case 0x1903, 0x1909, 0x8D94: // RED, LUMINANCE, RED_INTEGER
		components = 1
	case 0x8227, 0x190A: // RG, LUMINANCE_ALPHA
		components = 2
	case 0x1907: // RGB
		components = 3
	case 0x1908: // RGBA
		components = 4
	default:
		return 0
	}
	return components * int(h.GLTypeSize)
}

// Padding returns the number of bytes (0-3) that follow a block of the
// given length to bring it to a 4-byte boundary.
func Padding(length uint32) int {
	return int(3 - ((length + 3) % 4))
}

// Decode reads a complete container from r.
func Decode(r io.Reader) (*Header, []Level, error) {
	return DecodeContext(context.Background(), r)
}

// DecodeContext reads a complete container from r, checking ctx before
// each of the first three levels and once after the last one. On
// cancellation no levels are returned.
func DecodeContext(ctx context.Context, r io.Reader) (*Header, []Level, error) {
	h, err := decodeHeader(r)
	if err != nil {
		return nil, nil, err
	}

	n := h.LevelCount()
	levels := make([]Level, 0, min(n, maxPreallocLevels))
	for i := 0; i < n; i++ {
		if i < cancelCheckedLevels {
			if err := ctx.Err(); err != nil {
				return nil, nil, fmt.Errorf("ktx: canceled before level %v: %w", i, err)
			}
		}
		level, err := readLevel(r, h.ByteOrder)
		if err != nil {
			return nil, nil, fmt.Errorf("level %v: %w", i, err)
		}
		log.Debugf("ktx: level %v is %v bytes", i, level.Size)
		levels = append(levels, level)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("ktx: canceled after %v levels: %w", n, err)
	}

	return h, levels, nil
}

func decodeHeader(r io.Reader) (*Header, error) {
	var ident [12]byte
	if err := readFull(r, ident[:]); err != nil {
		return nil, fmt.Errorf("identifier: %w", err)
	}
	if ident != Identifier {
		return nil, fmt.Errorf("%w: identifier % X does not match", ErrFormat, ident[:])
	}

	var sentinel [4]byte
	if err := readFull(r, sentinel[:]); err != nil {
		return nil, fmt.Errorf("endianness: %w", err)
	}
	var order binary.ByteOrder
	switch sentinel {
	case littleSentinel:
		order = binary.LittleEndian
	case bigSentinel:
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: endianness sentinel % X", ErrFormat, sentinel[:])
	}

	var f headerFields
	if err := binary.Read(r, order, &f); err != nil {
		return nil, fmt.Errorf("header fields: %w", ioErr(err))
	}

	h := &Header{
		ByteOrder:             order,
		GLType:                f.GLType,
		GLTypeSize:            f.GLTypeSize,
		GLFormat:              f.GLFormat,
		GLInternalFormat:      f.GLInternalFormat,
		GLBaseInternalFormat:  f.GLBaseInternalFormat,
		PixelWidth:            f.PixelWidth,
		PixelHeight:           f.PixelHeight,
		PixelDepth:            f.PixelDepth,
		NumberOfArrayElements: f.NumberOfArrayElements,
		NumberOfFaces:         f.NumberOfFaces,
		NumberOfMipmapLevels:  f.NumberOfMipmapLevels,
	}

	kvData, err := readBlock(r, f.BytesOfKeyValueData)
	if err != nil {
		return nil, fmt.Errorf("key/value data: %w", err)
	}
	kvs, err := parseKeyValues(kvData, order)
	if err != nil {
		return nil, err
	}
	h.KeyValues = kvs

	log.Debugf("ktx: %vx%vx%v, %v levels, %v key/value pairs", h.PixelWidth, h.PixelHeight, h.PixelDepth, h.NumberOfMipmapLevels, len(kvs))
	return h, nil
}

func parseKeyValues(data []byte, order binary.ByteOrder) ([]KeyValue, error) {
	var kvs []KeyValue
	for pos := 0; pos < len(data); {
		if len(data)-pos < 4 {
			return nil, fmt.Errorf("%w: truncated key/value length at offset %v", ErrFormat, pos)
		}
		size := order.Uint32(data[pos:])
		pos += 4
		if uint64(size) > uint64(len(data)-pos) {
			return nil, fmt.Errorf("%w: key/value record of %v bytes overruns block", ErrFormat, size)
		}
		record := data[pos : pos+int(size)]
		nul := bytes.IndexByte(record, 0)
		if nul < 0 {
			return nil, fmt.Errorf("%w: key/value record at offset %v has no key terminator", ErrFormat, pos-4)
		}
		value := make([]byte, len(record)-nul-1)
		copy(value, record[nul+1:])
		kvs = append(kvs, KeyValue{Key: string(record[:nul]), Value: value})

		pos += int(size) + Padding(size)
		if pos > len(data) {
			return nil, fmt.Errorf("%w: key/value padding overruns block", ErrFormat)
		}
	}
	return kvs, nil
}

func readLevel(r io.Reader, order binary.ByteOrder) (Level, error) {
	var size uint32
	if err := binary.Read(r, order, &size); err != nil {
		return Level{}, fmt.Errorf("image size: %w", ioErr(err))
	}
	data, err := readBlock(r, size)
	if err != nil {
		return Level{}, fmt.Errorf("image data (%v bytes): %w", size, err)
	}
	if pad := Padding(size); pad > 0 {
		var scratch [3]byte
		if err := readFull(r, scratch[:pad]); err != nil {
			return Level{}, fmt.Errorf("mip padding: %w", err)
		}
	}
	return Level{Size: size, Data: data}, nil
}

// readBlock reads size bytes. Declared sizes come from the file, so large
// blocks are only allocated as their bytes arrive.
func readBlock(r io.Reader, size uint32) ([]byte, error) {
	if lr, ok := r.(interface{ Len() int }); ok && uint64(size) > uint64(lr.Len()) {
		return nil, fmt.Errorf("%w: %w: %v bytes declared, %v remain", ErrIO, io.ErrUnexpectedEOF, size, lr.Len())
	}
	if size <= directReadLimit {
		data := make([]byte, size)
		if err := readFull(r, data); err != nil {
			return nil, err
		}
		return data, nil
	}
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r, int64(size)); err != nil {
		return nil, ioErr(err)
	}
	return buf.Bytes(), nil
}

func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		return ioErr(err)
	}
	return nil
}

// ioErr tags a read failure with ErrIO. A clean EOF on a required read is
// still a short read.
func ioErr(err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}
