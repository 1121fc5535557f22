package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// Expansion bounds the output of a decompressor whose output size is not
// known up front. The destination buffer starts at Factor times the
// compressed length and is doubled up to Retries times before giving up
// with ErrOverflow.
type Expansion struct {
	Factor  int
	Retries int
}

// DefaultExpansion is a 3x bound with two doublings (3x, 6x, 12x).
var DefaultExpansion = Expansion{Factor: 3, Retries: 2}

// errTooSmall is returned by a bounded decode when the output would not fit.
var errTooSmall = errors.New("destination too small")

// run calls decode with growing limits until it succeeds, fails for a
// reason other than size, or runs out of retries.
func (e Expansion) run(src []byte, decode func(limit int) ([]byte, error)) ([]byte, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrCompression)
	}
	factor := e.Factor
	if factor < 1 {
		factor = 1
	}
	for attempt := 0; ; attempt++ {
		limit := len(src) * factor
		out, err := decode(limit)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, errTooSmall) {
			return nil, fmt.Errorf("%w: %w", ErrCompression, err)
		}
		if attempt >= e.Retries {
			return nil, fmt.Errorf("%w: more than %v bytes (%vx of %v): %w", ErrOverflow, limit, factor, len(src), err)
		}
		factor *= 2
	}
}

// readBounded reads r to EOF, failing with errTooSmall if it yields more
// than limit bytes.
func readBounded(r io.Reader, limit int) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if n > int64(limit) {
		return nil, errTooSmall
	}
	return buf.Bytes(), nil
}

// Block is the block-compressed (LZ4) algorithm. It accepts both the LZ4
// frame format and bare LZ4 blocks; neither records the decompressed size
// in a way the reader can trust, so output is bounded by Expansion.
type Block struct {
	ext       string
	expansion Expansion
}

// NewBlock returns an LZ4 algorithm claiming files ending in ext.
func NewBlock(ext string, e Expansion) *Block {
	return &Block{ext: ext, expansion: e}
}

func (b *Block) Name() string      { return "lz4" }
func (b *Block) Extension() string { return b.ext }

func (b *Block) CanUncompress(name string, head []byte) bool {
	return hasSuffixFold(name, b.ext) || bytes.HasPrefix(head, lz4FrameMagic)
}

func (b *Block) Uncompress(src []byte) ([]byte, error) {
	if bytes.HasPrefix(src, lz4FrameMagic) {
		return b.expansion.run(src, func(limit int) ([]byte, error) {
			return readBounded(lz4.NewReader(bytes.NewReader(src)), limit)
		})
	}
	size, err := rawBlockSize(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompression, err)
	}
	return b.expansion.run(src, func(limit int) ([]byte, error) {
		if size > limit {
			return nil, fmt.Errorf("%w: block decodes to %v bytes", errTooSmall, size)
		}
		dst := make([]byte, size)
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return nil, err
		}
		return dst[:n], nil
	})
}

// errCorrupt is returned for raw blocks whose sequences do not parse.
var errCorrupt = errors.New("corrupt lz4 block")

// rawBlockSize walks the sequences of a raw LZ4 block and returns its
// decompressed size without decoding it.
func rawBlockSize(src []byte) (int, error) {
	var n, i int
	// length reads the 255-continued extension of a 4-bit length field.
	length := func(v int) (int, error) {
		if v != 15 {
			return v, nil
		}
		for {
			if i >= len(src) {
				return 0, fmt.Errorf("%w: truncated length", errCorrupt)
			}
			b := src[i]
			i++
			v += int(b)
			if b != 255 {
				return v, nil
			}
		}
	}

	for {
		if i >= len(src) {
			return 0, fmt.Errorf("%w: missing token at %v", errCorrupt, i)
		}
		token := src[i]
		i++
		lit, err := length(int(token >> 4))
		if err != nil {
			return 0, err
		}
		if lit > len(src)-i {
			return 0, fmt.Errorf("%w: %v literals overrun input at %v", errCorrupt, lit, i)
		}
		i += lit
		n += lit
		if i == len(src) {
			return n, nil
		}

		if len(src)-i < 2 {
			return 0, fmt.Errorf("%w: truncated match offset", errCorrupt)
		}
		offset := int(src[i]) | int(src[i+1])<<8
		i += 2
		if offset == 0 || offset > n {
			return 0, fmt.Errorf("%w: match offset %v at output %v", errCorrupt, offset, n)
		}
		m, err := length(int(token & 15))
		if err != nil {
			return 0, err
		}
		n += m + 4
	}
}
