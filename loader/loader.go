// Package loader fetches, uncompresses, and decodes volume containers off
// the rendering thread.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gmlewis/volrender/compress"
	"github.com/gmlewis/volrender/ktx"
)

// ErrNotFound is returned by a FileSource for an unknown id.
var ErrNotFound = errors.New("loader: volume not found")

// FileSource maps a logical volume id to a readable byte source. The
// returned name is what the compression chain matches against.
type FileSource interface {
	Open(ctx context.Context, id string) (name string, rc io.ReadCloser, err error)
}

// LocalFiles serves ids as paths relative to Root. An empty Root uses ids
// as given.
type LocalFiles struct {
	Root string
}

func (l LocalFiles) Open(ctx context.Context, id string) (string, io.ReadCloser, error) {
	p := id
	if l.Root != "" && !filepath.IsAbs(id) {
		p = filepath.Join(l.Root, id)
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return "", nil, fmt.Errorf("%w: %v", ErrNotFound, p)
	}
	if err != nil {
		return "", nil, err
	}
	return filepath.Base(p), f, nil
}

// HTTPFiles serves ids as paths below BaseURL.
type HTTPFiles struct {
	BaseURL string
	// Client defaults to http.DefaultClient.
	Client *http.Client
}

func (h HTTPFiles) Open(ctx context.Context, id string) (string, io.ReadCloser, error) {
	u, err := url.Parse(h.BaseURL)
	if err != nil {
		return "", nil, fmt.Errorf("loader: base url: %w", err)
	}
	u = u.JoinPath(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}
	cl := h.Client
	if cl == nil {
		cl = http.DefaultClient
	}
	resp, err := cl.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to download: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		resp.Body.Close()
		return "", nil, fmt.Errorf("%w: %v", ErrNotFound, u)
	default:
		resp.Body.Close()
		return "", nil, fmt.Errorf("loader: GET %v: %v", u, resp.Status)
	}
	return path.Base(u.Path), resp.Body, nil
}

// Volume is one fully decoded container.
type Volume struct {
	ID     string
	Header *ktx.Header
	Levels []ktx.Level
}

// Loader resolves and decodes volumes. It is safe for concurrent use.
type Loader struct {
	Resolver *compress.Resolver
	Files    FileSource
	// Concurrency bounds LoadAll; values below 1 mean unbounded.
	Concurrency int
}

// New returns a loader over files using the default compression chain.
func New(files FileSource) *Loader {
	return &Loader{Resolver: compress.DefaultResolver(), Files: files}
}

// Load fetches, uncompresses, and decodes one volume. Errors are reported
// as "id: cause" and no partial volume is ever returned.
func (l *Loader) Load(ctx context.Context, id string) (*Volume, error) {
	logger := log.WithFields(log.Fields{"job": uuid.NewString(), "volume": id})

	name, rc, err := l.Files.Open(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", id, err)
	}
	defer rc.Close()

	r := l.Resolver
	if r == nil {
		r = compress.DefaultResolver()
	}
	buf, err := r.Resolve(name, rc)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", id, err)
	}
	logger.Debugf("uncompressed to %v bytes", len(buf))
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%v: %w", id, err)
	}

	h, levels, err := ktx.DecodeContext(ctx, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%v: %w", id, err)
	}
	logger.Debugf("decoded %vx%vx%v, %v levels", h.PixelWidth, h.PixelHeight, h.PixelDepth, len(levels))
	return &Volume{ID: id, Header: h, Levels: levels}, nil
}

// LoadAll loads every id concurrently. It returns the volumes in id order,
// or the first error, in which case the remaining loads are canceled and
// nothing is returned.
func (l *Loader) LoadAll(ctx context.Context, ids ...string) ([]*Volume, error) {
	out := make([]*Volume, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	if l.Concurrency > 0 {
		g.SetLimit(l.Concurrency)
	}
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			v, err := l.Load(ctx, id)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Result is the outcome of a background load.
type Result struct {
	Volumes []*Volume
	Err     error
}

// Start runs LoadAll in the background and delivers its result on the
// returned channel, so a render loop can poll without blocking.
func (l *Loader) Start(ctx context.Context, ids ...string) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		vs, err := l.LoadAll(ctx, ids...)
		ch <- Result{Volumes: vs, Err: err}
	}()
	return ch
}
