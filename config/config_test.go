package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, []string{"lz4", "zstd", "gzip", "identity"}, cfg.Compression.Chain)
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "volrender.yaml")
	cfg := DefaultConfig()
	cfg.Compression.Chain = []string{"zstd", "identity"}
	cfg.Render.Gamma = 2.2
	cfg.Render.WhiteBackground = true
	cfg.Log.File = "/tmp/volrender.log"
	require.NoError(t, SaveConfig(cfg, path))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		check   func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name: "partial file keeps defaults",
			yaml: "render:\n  gamma: 0.5\n",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, float32(0.5), cfg.Render.Gamma)
				assert.Equal(t, 3, cfg.Compression.ExpansionFactor)
				assert.Equal(t, 256, cfg.Render.MaskEntries)
			},
		},
		{
			name: "zero concurrency becomes one",
			yaml: "loader:\n  concurrency: 0\n",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 1, cfg.Loader.Concurrency)
			},
		},
		{name: "bad yaml", yaml: "render: [", wantErr: true},
		{name: "empty chain", yaml: "compression:\n  chain: []\n", wantErr: true},
		{name: "crop level out of range", yaml: "render:\n  cropOutLevel: 1.5\n", wantErr: true},
		{name: "negative gamma", yaml: "render:\n  gamma: -1\n", wantErr: true},
		{name: "tiny mask table", yaml: "render:\n  maskEntries: 1\n", wantErr: true},
	}

	for i, tt := range tests {
		t.Run(fmt.Sprintf("test #%v: %v", i, tt.name), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cfg.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0644))
			cfg, err := LoadConfig(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestResolver(t *testing.T) {
	cfg := DefaultConfig()
	r, err := cfg.Resolver()
	require.NoError(t, err)
	assert.Equal(t, "[lz4 zstd gzip identity]", r.String())

	cfg.Compression.Chain = []string{"lz4", "brotli"}
	_, err = cfg.Resolver()
	assert.Error(t, err)

	assert.Equal(t, 255, cfg.NewTracker().Capacity())
}
