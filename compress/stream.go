package compress

import (
	"bytes"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Zstd uncompresses Zstandard files (".zst", ".zstd", or the zstd frame
// magic).
type Zstd struct {
	expansion Expansion
}

// NewZstd returns a Zstandard algorithm bounded by e.
func NewZstd(e Expansion) *Zstd {
	return &Zstd{expansion: e}
}

func (z *Zstd) Name() string      { return "zstd" }
func (z *Zstd) Extension() string { return ".zst" }

func (z *Zstd) Aliases() []string { return []string{".zstd"} }

func (z *Zstd) CanUncompress(name string, head []byte) bool {
	return hasSuffixFold(name, ".zst") || hasSuffixFold(name, ".zstd") || bytes.HasPrefix(head, zstdMagic)
}

func (z *Zstd) Uncompress(src []byte) ([]byte, error) {
	return z.expansion.run(src, func(limit int) ([]byte, error) {
		dec, err := zstd.NewReader(bytes.NewReader(src), zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return readBounded(dec, limit)
	})
}

// Gzip uncompresses gzip files (".gz" or the gzip deflate magic).
type Gzip struct {
	expansion Expansion
}

// NewGzip returns a gzip algorithm bounded by e.
func NewGzip(e Expansion) *Gzip {
	return &Gzip{expansion: e}
}

func (g *Gzip) Name() string      { return "gzip" }
func (g *Gzip) Extension() string { return ".gz" }

func (g *Gzip) CanUncompress(name string, head []byte) bool {
	return hasSuffixFold(name, ".gz") || bytes.HasPrefix(head, gzipMagic)
}

func (g *Gzip) Uncompress(src []byte) ([]byte, error) {
	return g.expansion.run(src, func(limit int) ([]byte, error) {
		zr, err := gzip.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return readBounded(zr, limit)
	})
}
