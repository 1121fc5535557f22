package ktx

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Encode writes h and levels to w in h.ByteOrder (little-endian if unset).
func Encode(w io.Writer, h *Header, levels []Level) error {
	if len(levels) != h.LevelCount() {
		return fmt.Errorf("ktx: header declares %v levels, got %v", h.LevelCount(), len(levels))
	}
	order := h.ByteOrder
	if order == nil {
		order = binary.LittleEndian
	}

	kvData, err := encodeKeyValues(h.KeyValues, order)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(Identifier[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, order, uint32(0x04030201)); err != nil {
		return err
	}

	f := headerFields{
		GLType:                h.GLType,
		GLTypeSize:            h.GLTypeSize,
		GLFormat:              h.GLFormat,
		GLInternalFormat:      h.GLInternalFormat,
		GLBaseInternalFormat:  h.GLBaseInternalFormat,
		PixelWidth:            h.PixelWidth,
		PixelHeight:           h.PixelHeight,
		PixelDepth:            h.PixelDepth,
		NumberOfArrayElements: h.NumberOfArrayElements,
		NumberOfFaces:         h.NumberOfFaces,
		NumberOfMipmapLevels:  h.NumberOfMipmapLevels,
		BytesOfKeyValueData:   uint32(len(kvData)),
	}
	if err := binary.Write(bw, order, &f); err != nil {
		return err
	}
	if _, err := bw.Write(kvData); err != nil {
		return err
	}

	var zeros [3]byte
	for i, level := range levels {
		if int(level.Size) != len(level.Data) {
			return fmt.Errorf("ktx: level %v declares %v bytes but holds %v", i, level.Size, len(level.Data))
		}
		if err := binary.Write(bw, order, level.Size); err != nil {
			return err
		}
		if _, err := bw.Write(level.Data); err != nil {
			return err
		}
		if _, err := bw.Write(zeros[:Padding(level.Size)]); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func encodeKeyValues(kvs []KeyValue, order binary.ByteOrder) ([]byte, error) {
	var out []byte
	var zeros [3]byte
	for _, kv := range kvs {
		for i := 0; i < len(kv.Key); i++ {
			if kv.Key[i] == 0 {
				return nil, fmt.Errorf("ktx: key %q contains NUL", kv.Key)
			}
		}
		size := uint32(len(kv.Key) + 1 + len(kv.Value))
		var prefix [4]byte
		order.PutUint32(prefix[:], size)
		out = append(out, prefix[:]...)
		out = append(out, kv.Key...)
		out = append(out, 0)
		out = append(out, kv.Value...)
		out = append(out, zeros[:Padding(size)]...)
	}
	return out, nil
}

// NewLevel wraps data as a level whose declared size matches its length.
func NewLevel(data []byte) Level {
	return Level{Size: uint32(len(data)), Data: data}
}
