// Package compress transparently uncompresses on-disk volume blocks.
//
// A Resolver holds an ordered chain of Algorithms. For each file the first
// Algorithm (in registration order) whose predicate claims the file is the
// one that uncompresses it; this ordering is part of the Resolver contract.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrCompression is returned for any failure to uncompress a file.
	ErrCompression = errors.New("compress: decompression failed")

	// ErrOverflow is returned when the decompressed output does not fit in
	// the bounded destination buffer. It also matches ErrCompression.
	ErrOverflow = fmt.Errorf("%w: decompressed size exceeds bound", ErrCompression)

	// ErrNoAlgorithm is returned by ResolveStrict when nothing in the chain
	// claims the file. It also matches ErrCompression.
	ErrNoAlgorithm = fmt.Errorf("%w: no algorithm accepts file", ErrCompression)
)

// sniffLen is the number of leading bytes passed to CanUncompress.
const sniffLen = 8

// Algorithm is one link in the resolver chain.
type Algorithm interface {
	// Name is a short human readable identifier ("lz4", "identity", ...).
	Name() string
	// Extension is the file suffix (including the dot) this algorithm
	// produces, or "" if it never changes file names.
	Extension() string
	// CanUncompress reports whether the algorithm claims a file given its
	// name and up to its first 8 bytes.
	CanUncompress(name string, head []byte) bool
	// Uncompress returns the decompressed form of src.
	Uncompress(src []byte) ([]byte, error)
}

// Resolver is an immutable, ordered chain of algorithms. It is safe for
// concurrent use.
type Resolver struct {
	algorithms []Algorithm
}

// NewResolver returns a resolver that consults algs in the given order.
// A Trivial in the chain also declines files carrying the extension of any
// other algorithm in the chain, wherever it is registered.
func NewResolver(algs ...Algorithm) *Resolver {
	var claimed []string
	for _, a := range algs {
		claimed = append(claimed, extensions(a)...)
	}
	out := make([]Algorithm, len(algs))
	for i, a := range algs {
		if _, ok := a.(Trivial); ok {
			a = Trivial{claimed: claimed}
		}
		out[i] = a
	}
	return &Resolver{algorithms: out}
}

// aliased is implemented by algorithms that also recognize file suffixes
// other than Extension.
type aliased interface {
	Aliases() []string
}

// extensions returns every suffix a claims by name.
func extensions(a Algorithm) []string {
	var out []string
	if ext := a.Extension(); ext != "" {
		out = append(out, ext)
	}
	if al, ok := a.(aliased); ok {
		out = append(out, al.Aliases()...)
	}
	return out
}

// DefaultResolver returns the standard chain: lz4, zstd, gzip, and the
// identity fallback last.
func DefaultResolver() *Resolver {
	return NewResolver(NewBlock(".lz4", DefaultExpansion), NewZstd(DefaultExpansion), NewGzip(DefaultExpansion), Trivial{})
}

// Algorithms returns a copy of the chain in resolution order.
func (r *Resolver) Algorithms() []Algorithm {
	return append([]Algorithm(nil), r.algorithms...)
}

// Algorithm returns the first algorithm in the chain that claims the file,
// or nil if none does.
func (r *Resolver) Algorithm(name string, head []byte) Algorithm {
	for _, a := range r.algorithms {
		if a.CanUncompress(name, head) {
			return a
		}
	}
	return nil
}

// ResolveFile reads and uncompresses the file at path. Files that nothing
// in the chain claims are returned unchanged.
func (r *Resolver) ResolveFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompression, err)
	}
	defer f.Close()
	return r.Resolve(filepath.Base(path), f)
}

// Resolve uncompresses the contents of src, identified by name. Files that
// nothing in the chain claims are returned unchanged.
func (r *Resolver) Resolve(name string, src io.Reader) ([]byte, error) {
	return r.resolve(name, src, false)
}

// ResolveStrict is like Resolve but fails with ErrNoAlgorithm when nothing
// in the chain claims the file.
func (r *Resolver) ResolveStrict(name string, src io.Reader) ([]byte, error) {
	return r.resolve(name, src, true)
}

func (r *Resolver) resolve(name string, src io.Reader, strict bool) ([]byte, error) {
	buf, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %v: %w", ErrCompression, name, err)
	}

	head := buf
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	a := r.Algorithm(name, head)
	if a == nil {
		if strict {
			return nil, fmt.Errorf("%w: %v (chain: %v)", ErrNoAlgorithm, name, r)
		}
		log.Debugf("compress: no algorithm claims %v, passing %v bytes through", name, len(buf))
		return buf, nil
	}

	out, err := a.Uncompress(buf)
	if err != nil {
		return nil, fmt.Errorf("%v: %v: %w", a.Name(), name, err)
	}
	log.Debugf("compress: %v expanded %v from %v to %v bytes", a.Name(), name, len(buf), len(out))
	return out, nil
}

// CompressedNameFor returns the name the preferred (first) compressing
// algorithm in the chain would give name.
func (r *Resolver) CompressedNameFor(name string) string {
	for _, a := range r.algorithms {
		if ext := a.Extension(); ext != "" {
			if hasSuffixFold(name, ext) {
				return name
			}
			return name + ext
		}
	}
	return name
}

// DecompressedNameFor strips the extension (or alias) of the first
// algorithm in the chain whose suffix name carries.
func (r *Resolver) DecompressedNameFor(name string) string {
	for _, a := range r.algorithms {
		for _, ext := range extensions(a) {
			if hasSuffixFold(name, ext) {
				return name[:len(name)-len(ext)]
			}
		}
	}
	return name
}

// String lists the chain, e.g. "[lz4 zstd gzip identity]".
func (r *Resolver) String() string {
	names := make([]string, 0, len(r.algorithms))
	for _, a := range r.algorithms {
		names = append(names, a.Name())
	}
	return "[" + strings.Join(names, " ") + "]"
}

func hasSuffixFold(name, ext string) bool {
	return len(name) >= len(ext) && strings.EqualFold(name[len(name)-len(ext):], ext)
}

var (
	lz4FrameMagic = []byte{0x04, 0x22, 0x4D, 0x18}
	zstdMagic     = []byte{0x28, 0xB5, 0x2F, 0xFD}
	gzipMagic     = []byte{0x1F, 0x8B, 0x08}
)

// Trivial is the identity algorithm. It claims every file that does not
// carry a well-known compressed extension or signature, so it is safe to
// register anywhere in a chain. NewResolver adds the extensions of the
// rest of the chain to the ones it declines.
type Trivial struct {
	claimed []string
}

var knownCompressed = []string{".lz4", ".zst", ".zstd", ".gz", ".bz2", ".xz", ".sz"}

func (Trivial) Name() string      { return "identity" }
func (Trivial) Extension() string { return "" }

func (t Trivial) CanUncompress(name string, head []byte) bool {
	for _, ext := range append(knownCompressed[:len(knownCompressed):len(knownCompressed)], t.claimed...) {
		if hasSuffixFold(name, ext) {
			return false
		}
	}
	for _, magic := range [][]byte{lz4FrameMagic, zstdMagic, gzipMagic} {
		if bytes.HasPrefix(head, magic) {
			return false
		}
	}
	return true
}

func (Trivial) Uncompress(src []byte) ([]byte, error) {
	return src, nil
}
