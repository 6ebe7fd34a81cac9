package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/scenebake/engine/math"
	"github.com/spaghettifunk/scenebake/engine/renderer"
	"github.com/spaghettifunk/scenebake/engine/renderer/headless"
	"github.com/spaghettifunk/scenebake/engine/systems"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const triangleGLTF = `{
  "asset": {"version": "2.0"},
  "scenes": [{"nodes": [0]}],
  "nodes": [{"mesh": 0, "translation": [0, 0, -5]}],
  "meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}],
  "accessors": [{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3", "min": [0, 0, 0], "max": [1, 1, 0]}],
  "bufferViews": [{"buffer": 0, "byteLength": 36}],
  "buffers": [{"byteLength": 36, "uri": "data:application/octet-stream;base64,AAAAAAAAAAAAAAAAAACAPwAAAAAAAAAAAAAAAAAAgD8AAAAA"}]
}`

func newTestConfig(t *testing.T) *ApplicationConfig {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "models"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "models", "tri.gltf"), []byte(triangleGLTF), 0o644))

	config := DefaultApplicationConfig()
	config.AssetsDir = dir
	config.FrameRate = 500
	config.Pool.Lanes = 2
	return config
}

func TestEngineRunsFrames(t *testing.T) {
	var (
		model   *systems.Model
		loadErr error
		angle   float32
		frames  int
	)
	g := &Game{ApplicationConfig: newTestConfig(t)}
	g.FnInitialize = func() error {
		return g.SystemManager.LoadModelAsync("models/tri.gltf", systems.LoadOptions{UseWorkers: true}, func(m *systems.Model, err error) {
			model, loadErr = m, err
		})
	}
	g.FnUpdate = func(delta float64) error {
		if loadErr != nil {
			return loadErr
		}
		if model == nil {
			return nil
		}
		frames++
		if frames > 5 {
			return ErrQuit
		}
		angle += 0.1
		model.UpdateTransform(math.NewQuatFromAxisAngle(math.NewVec3(0, 1, 0), angle, true).ToMat4())
		return nil
	}
	g.FnRender = func(backend renderer.Backend, delta float64) error {
		if model != nil {
			model.Draw(backend)
		}
		return nil
	}
	g.FnShutdown = func() error {
		if model != nil {
			model.Release(g.SystemManager.Backend())
		}
		return nil
	}

	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	assert.Equal(t, EngineStageInitialized, e.Stage())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	require.NoError(t, ctx.Err(), "the game never quit")

	require.NotNil(t, model)
	assert.True(t, model.UsingPool())
	assert.Equal(t, 6, frames)

	// the last rotation was flushed at the end of its frame
	rot := math.NewQuatFromAxisAngle(math.NewVec3(0, 1, 0), angle, true).ToMat4()
	want := math.NewVec3(1, 0, -5).Transform(rot)
	got := model.Meshes()[0].Data.Positions[3:6]
	assert.InDelta(t, want.X, got[0], 1e-5)
	assert.InDelta(t, want.Y, got[1], 1e-5)
	assert.InDelta(t, want.Z, got[2], 1e-5)

	backend := e.Backend().(*headless.Backend)
	assert.Positive(t, backend.Stats().DrawCalls)

	require.NoError(t, e.Shutdown())
	require.NoError(t, e.Shutdown())
	assert.Equal(t, EngineStageShutdown, e.Stage())
	assert.Equal(t, 0, backend.Stats().LiveMeshes)
	assert.Equal(t, 0, g.SystemManager.SharedPool().RefCount())
}

func TestEngineStopsOnContext(t *testing.T) {
	g := &Game{
		ApplicationConfig: newTestConfig(t),
		FnUpdate:          func(float64) error { return nil },
	}
	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	require.NoError(t, e.Shutdown())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	config := DefaultApplicationConfig()
	config.FrameRate = 0
	_, err := New(&Game{ApplicationConfig: config})
	assert.Error(t, err)

	config = DefaultApplicationConfig()
	config.Renderer = "vulkan"
	_, err = New(&Game{ApplicationConfig: config})
	assert.Error(t, err)
}
