package engine

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spaghettifunk/scenebake/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadApplicationConfigTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
name = "bench"
log_level = "debug"
frame_rate = 30

[pool]
lanes = 3
balance_by_vertices = true

[testbed]
model = "models/duck.gltf"
instances = 12
`)
	config, err := LoadApplicationConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "bench", config.Name)
	assert.Equal(t, core.DebugLevel, config.LogLevel)
	assert.Equal(t, 30, config.FrameRate)
	assert.Equal(t, 3, config.LaneCount())
	assert.True(t, config.Pool.BalanceByVertices)
	// untouched keys keep their defaults
	assert.True(t, config.Pool.Enabled)
	assert.Equal(t, "assets", config.AssetsDir)
	assert.Equal(t, 4, config.Textures.DecodeConcurrency)
	assert.Equal(t, "models/duck.gltf", config.Testbed.Model)
	assert.Equal(t, 12, config.Testbed.Instances)
	assert.True(t, config.Testbed.UseWorkers)
}

func TestLoadApplicationConfigYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
name: bench
pool:
  enabled: false
textures:
  decode_concurrency: 1
`)
	config, err := LoadApplicationConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "bench", config.Name)
	assert.False(t, config.Pool.Enabled)
	assert.Equal(t, 1, config.Textures.DecodeConcurrency)
	assert.Equal(t, 60, config.FrameRate)
}

func TestLoadApplicationConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown extension", "config.ini", "name = x"},
		{"unknown key", "config.toml", "lanes = 4"},
		{"malformed", "config.yaml", "pool: [1, 2"},
		{"zero frame rate", "config.toml", "frame_rate = 0"},
		{"negative lanes", "config.yaml", "pool:\n  lanes: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadApplicationConfig(writeConfig(t, tt.file, tt.content))
			assert.ErrorIs(t, err, core.ErrInvalidConfig)
		})
	}

	_, err := LoadApplicationConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLaneCountDefaultsToCPUs(t *testing.T) {
	config := DefaultApplicationConfig()
	want := runtime.NumCPU()
	if want > maxPoolLanes {
		want = maxPoolLanes
	}
	assert.Equal(t, want, config.LaneCount())
}
