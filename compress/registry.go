package compress

import "fmt"

// FromNames builds a resolver from algorithm names in chain order.
// Known names are "lz4", "zstd", "gzip" and "identity".
func FromNames(names []string, e Expansion) (*Resolver, error) {
	algs := make([]Algorithm, 0, len(names))
	for _, name := range names {
		switch name {
		case "lz4":
			algs = append(algs, NewBlock(".lz4", e))
		case "zstd":
			algs = append(algs, NewZstd(e))
		case "gzip":
			algs = append(algs, NewGzip(e))
		case "identity", "trivial":
			algs = append(algs, Trivial{})
		default:
			return nil, fmt.Errorf("compress: unknown algorithm %q", name)
		}
	}
	return NewResolver(algs...), nil
}
