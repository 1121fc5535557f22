package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmlewis/volrender/compress"
	"github.com/gmlewis/volrender/ktx"
)

// container returns an encoded 4x4x2 single-level volume filled with fill.
func container(t *testing.T, fill byte) []byte {
	t.Helper()
	h := &ktx.Header{
		GLType:               0x1401,
		GLTypeSize:           1,
		GLFormat:             0x1903,
		GLInternalFormat:     0x8229,
		GLBaseInternalFormat: 0x1903,
		PixelWidth:           4,
		PixelHeight:          4,
		PixelDepth:           2,
		NumberOfFaces:        1,
		NumberOfMipmapLevels: 1,
		KeyValues:            []ktx.KeyValue{{Key: "generator", Value: []byte("loader test")}},
	}
	var buf bytes.Buffer
	require.NoError(t, ktx.Encode(&buf, h, []ktx.Level{ktx.NewLevel(bytes.Repeat([]byte{fill}, 32))}))
	return buf.Bytes()
}

func lz4Frame(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func writeFiles(t *testing.T, files map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
	}
	return dir
}

func TestLoadLocal(t *testing.T) {
	dir := writeFiles(t, map[string][]byte{
		"raw.ktx":       container(t, 1),
		"block.ktx.lz4": lz4Frame(t, container(t, 2)),
		"stream.ktx.gz": gzipped(t, container(t, 3)),
		"junk.ktx":      []byte("definitely not a container"),
	})
	l := New(LocalFiles{Root: dir})

	tests := []struct {
		name    string
		id      string
		fill    byte
		wantErr error
	}{
		{name: "uncompressed", id: "raw.ktx", fill: 1},
		{name: "lz4", id: "block.ktx.lz4", fill: 2},
		{name: "gzip", id: "stream.ktx.gz", fill: 3},
		{name: "missing", id: "nope.ktx", wantErr: ErrNotFound},
		{name: "not a container", id: "junk.ktx", wantErr: ktx.ErrFormat},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("test #%v: %v", i, tt.name), func(t *testing.T) {
			v, err := l.Load(context.Background(), tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Contains(t, err.Error(), tt.id)
				assert.Nil(t, v)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, v.ID)
			assert.Equal(t, uint32(4), v.Header.PixelWidth)
			gen, ok := v.Header.String("generator")
			assert.True(t, ok)
			assert.Equal(t, "loader test", gen)
			require.Len(t, v.Levels, 1)
			assert.Equal(t, bytes.Repeat([]byte{tt.fill}, 32), v.Levels[0].Data)
		})
	}
}

func TestLoadUnclaimedPassesThrough(t *testing.T) {
	dir := writeFiles(t, map[string][]byte{"raw.ktx": container(t, 1)})
	l := &Loader{
		Resolver: compress.NewResolver(compress.NewBlock(".lz4", compress.DefaultExpansion)),
		Files:    LocalFiles{Root: dir},
	}
	// Nothing claims the file, so the bytes pass through unchanged.
	_, err := l.Load(context.Background(), "raw.ktx")
	require.NoError(t, err)
}

func TestLoadCanceled(t *testing.T) {
	dir := writeFiles(t, map[string][]byte{"raw.ktx": container(t, 1)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v, err := New(LocalFiles{Root: dir}).Load(ctx, "raw.ktx")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, v)
}

func TestLoadHTTP(t *testing.T) {
	files := map[string][]byte{
		"/volumes/a.ktx.lz4": lz4Frame(t, container(t, 5)),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	defer srv.Close()

	l := New(HTTPFiles{BaseURL: srv.URL + "/volumes", Client: srv.Client()})
	v, err := l.Load(context.Background(), "a.ktx.lz4")
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{5}, 32), v.Levels[0].Data)

	_, err = l.Load(context.Background(), "b.ktx")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadAll(t *testing.T) {
	dir := writeFiles(t, map[string][]byte{
		"a.ktx": container(t, 1),
		"b.ktx": container(t, 2),
		"c.ktx": container(t, 3),
	})
	l := New(LocalFiles{Root: dir})
	l.Concurrency = 2

	vs, err := l.LoadAll(context.Background(), "a.ktx", "b.ktx", "c.ktx")
	require.NoError(t, err)
	require.Len(t, vs, 3)
	for i, v := range vs {
		assert.Equal(t, byte(i+1), v.Levels[0].Data[0])
	}

	vs, err = l.LoadAll(context.Background(), "a.ktx", "missing.ktx", "c.ktx")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Nil(t, vs)
}

func TestStart(t *testing.T) {
	dir := writeFiles(t, map[string][]byte{"a.ktx": container(t, 1)})
	res := <-New(LocalFiles{Root: dir}).Start(context.Background(), "a.ktx")
	require.NoError(t, res.Err)
	require.Len(t, res.Volumes, 1)
	assert.Equal(t, "a.ktx", res.Volumes[0].ID)
}
