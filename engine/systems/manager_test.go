package systems

import (
	"context"
	"testing"

	"github.com/spaghettifunk/scenebake/engine/core"
	"github.com/spaghettifunk/scenebake/engine/math"
	"github.com/spaghettifunk/scenebake/engine/renderer/headless"
	"github.com/spaghettifunk/scenebake/engine/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemManagerLoadModelAsync(t *testing.T) {
	backend := headless.New()
	parser := &fakeParser{docs: map[string]resources.Document{"scene.gltf": newTexturedDocument()}}
	sm, err := NewSystemManager(&SystemManagerConfig{
		Pool:        TransformPoolConfig{LaneCount: 2},
		Loader:      ModelLoaderConfig{DecodeConcurrency: 1, PoolingEnabled: true},
		LoadWorkers: 2,
	}, newCountingFetcher(), parser, backend)
	require.NoError(t, err)

	var loaded []*Model
	var failures []error
	onLoaded := func(m *Model, err error) {
		if err != nil {
			failures = append(failures, err)
			return
		}
		loaded = append(loaded, m)
	}
	require.NoError(t, sm.LoadModelAsync("scene.gltf", LoadOptions{UseWorkers: true}, onLoaded))
	require.NoError(t, sm.LoadModelAsync("missing.gltf", LoadOptions{}, onLoaded))

	require.Eventually(t, func() bool {
		sm.Update()
		return len(loaded)+len(failures) == 2
	}, waitTimeout, waitTick)
	require.Len(t, loaded, 1)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], core.ErrDocumentInvalid)

	model := loaded[0]
	model.UpdateTransform(math.NewMat4Translation(math.NewVec3(0, 0, 1)))
	require.NoError(t, sm.EndFrame(context.Background()))
	assert.Equal(t, float32(1), model.Meshes()[0].Data.Positions[2])

	model.Release(sm.Backend())
	require.NoError(t, sm.Shutdown())
	assert.Equal(t, CacheStats{}, sm.ModelCache().Stats())
	assert.Equal(t, 0, sm.SharedPool().RefCount())
}

func TestSystemManagerShutdownReleasesUndeliveredModels(t *testing.T) {
	backend := headless.New()
	parser := &fakeParser{docs: map[string]resources.Document{"scene.gltf": newTexturedDocument()}}
	sm, err := NewSystemManager(&SystemManagerConfig{
		Pool:        TransformPoolConfig{LaneCount: 2},
		Loader:      ModelLoaderConfig{DecodeConcurrency: 1, PoolingEnabled: true},
		LoadWorkers: 1,
	}, newCountingFetcher(), parser, backend)
	require.NoError(t, err)

	delivered := 0
	require.NoError(t, sm.LoadModelAsync("scene.gltf", LoadOptions{UseWorkers: true}, func(*Model, error) {
		delivered++
	}))

	// loaded and holding the shared pool, but Update never ran
	require.Eventually(t, func() bool {
		return sm.SharedPool().RefCount() == 1
	}, waitTimeout, waitTick)

	require.NoError(t, sm.Shutdown())
	assert.Zero(t, delivered)
	assert.Equal(t, 0, sm.SharedPool().RefCount())
	assert.Equal(t, CacheStats{}, sm.ModelCache().Stats())
	stats := backend.Stats()
	assert.Equal(t, 0, stats.LiveMeshes)
	assert.Equal(t, 0, stats.LiveTextures)
}
