// Package stl provides a streaming binary STL file writer.
package stl

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	headerSize = 80
	bufSize    = 10000
)

// Client is a streaming binary STL file writer client. Triangles are
// encoded on a background goroutine; the triangle count in the header is
// filled in by Close.
type Client struct {
	wg sync.WaitGroup // ensures file is closed
	ch chan Tri

	mu    sync.RWMutex
	err   error
	count uint32
}

// Tri represents an STL triangle.
type Tri struct {
	// Normal plus three vertex triplets: [3]float{x,y,z}
	N, V1, V2, V3 [3]float32
	_             uint16 // unused attribute byte count
}

// NewTri returns the triangle v1,v2,v3 (counter-clockwise seen from
// outside) with its unit normal.
func NewTri(v1, v2, v3 mgl32.Vec3) *Tri {
	n := v2.Sub(v1).Cross(v3.Sub(v1))
	if n.Len() > 0 {
		n = n.Normalize()
	}
	return &Tri{N: n, V1: v1, V2: v2, V3: v3}
}

// New creates a new streaming binary STL file writer. The header carries
// title, truncated to 80 bytes.
func New(filename, title string) (*Client, error) {
	out, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	c, err := NewWriter(out, title)
	if err != nil {
		out.Close()
		return nil, err
	}
	return c, nil
}

// NewWriter starts a streaming writer on out, which is closed by Close.
func NewWriter(out io.WriteSeeker, title string) (*Client, error) {
	header := struct {
		Title [headerSize]uint8
		_     uint32 // count will be overwritten on channel close.
	}{}
	copy(header.Title[:], title)
	if err := binary.Write(out, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}

	c := &Client{ch: make(chan Tri, bufSize)}
	c.start(out)
	return c, nil
}

func (c *Client) start(out io.WriteSeeker) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		count, err := writer(out, c.ch)
		if closer, ok := out.(io.Closer); ok {
			if cerr := closer.Close(); err == nil {
				err = cerr
			}
		}
		c.mu.Lock()
		c.err, c.count = err, count
		c.mu.Unlock()
	}()
}

// Write writes a triangle to the STL file. It reports the error of an
// earlier failed write, if any.
func (c *Client) Write(t *Tri) error {
	c.ch <- *t
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Close finalizes the STL file.
func (c *Client) Close() error {
	close(c.ch)
	c.wg.Wait()
	return c.err
}

// Count returns the number of triangles written. It is valid after Close.
func (c *Client) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int(c.count)
}

func writer(out io.WriteSeeker, ch <-chan Tri) (uint32, error) {
	var count uint32
	var err error
	for t := range ch {
		if err != nil {
			continue // drain
		}
		if werr := binary.Write(out, binary.LittleEndian, &t); werr != nil {
			err = fmt.Errorf("write triangle %#v: %w", t, werr)
			continue
		}
		count++
	}
	if err != nil {
		return count, err
	}

	if _, err := out.Seek(headerSize, io.SeekStart); err != nil {
		return count, fmt.Errorf("seek: %w", err)
	}
	if err := binary.Write(out, binary.LittleEndian, &count); err != nil {
		return count, fmt.Errorf("write count %v: %w", count, err)
	}
	return count, nil
}
