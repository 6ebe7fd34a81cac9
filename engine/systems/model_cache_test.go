package systems

import (
	"context"
	"errors"
	"testing"

	"github.com/spaghettifunk/scenebake/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelCacheRefCounting(t *testing.T) {
	mc := NewModelCache()
	shared := &metadata.Texture{ID: 1}
	res := &CachedResource{
		Locator: "duck.gltf",
		Textures: map[int]*metadata.Texture{
			0: shared,
			1: {ID: 2},
			// two document textures may end up with the same upload
			2: shared,
		},
	}

	mc.SetInFlight("duck.gltf", newPendingLoad())
	mc.Commit("duck.gltf", res)
	assert.Equal(t, 1, res.RefCount)
	_, inFlight := mc.GetInFlight("duck.gltf")
	assert.False(t, inFlight)

	for i := 0; i < 2; i++ {
		_, ok := mc.Acquire("duck.gltf")
		require.True(t, ok)
	}
	assert.Equal(t, CacheStats{Entries: 1, References: 3}, mc.Stats())

	deleted := map[uint32]int{}
	deleter := func(tex *metadata.Texture) { deleted[tex.ID]++ }

	mc.Release("duck.gltf", deleter)
	mc.Release("duck.gltf", deleter)
	assert.Empty(t, deleted)
	_, ok := mc.Get("duck.gltf")
	assert.True(t, ok)

	mc.Release("duck.gltf", deleter)
	assert.Equal(t, map[uint32]int{1: 1, 2: 1}, deleted)
	_, ok = mc.Get("duck.gltf")
	assert.False(t, ok)
	assert.Nil(t, res.Textures)

	// unknown locators are ignored
	mc.Release("duck.gltf", deleter)
	assert.Equal(t, map[uint32]int{1: 1, 2: 1}, deleted)
}

func TestModelCacheAcquireMissing(t *testing.T) {
	mc := NewModelCache()
	_, ok := mc.Acquire("nothing.gltf")
	assert.False(t, ok)
}

func TestModelCacheLookupOrReserve(t *testing.T) {
	mc := NewModelCache()

	res, pending, owner := mc.lookupOrReserve("box.gltf")
	assert.Nil(t, res)
	require.NotNil(t, pending)
	assert.True(t, owner)

	res, joined, owner := mc.lookupOrReserve("box.gltf")
	assert.Nil(t, res)
	assert.Same(t, pending, joined)
	assert.False(t, owner)
	assert.Equal(t, 1, mc.Stats().InFlight)

	committed := &CachedResource{Locator: "box.gltf"}
	mc.Commit("box.gltf", committed)

	// the owner and the joiner each hold a reference
	assert.Equal(t, 2, committed.RefCount)

	got, err := joined.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, committed, got)

	res, pending, owner = mc.lookupOrReserve("box.gltf")
	assert.Same(t, committed, res)
	assert.Nil(t, pending)
	assert.False(t, owner)
	assert.Equal(t, 3, committed.RefCount)
}

func TestModelCacheCommitSurvivesOwnerRelease(t *testing.T) {
	mc := NewModelCache()
	_, _, owner := mc.lookupOrReserve("box.gltf")
	require.True(t, owner)
	_, joined, _ := mc.lookupOrReserve("box.gltf")

	mc.Commit("box.gltf", &CachedResource{Locator: "box.gltf"})
	mc.Release("box.gltf", nil)

	// the joiner's reference keeps the entry alive
	got, err := joined.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, got.RefCount)
	assert.Equal(t, 1, mc.Stats().Entries)

	mc.Release("box.gltf", nil)
	assert.Equal(t, CacheStats{}, mc.Stats())
}

func TestModelCacheLeave(t *testing.T) {
	mc := NewModelCache()
	_, _, owner := mc.lookupOrReserve("box.gltf")
	require.True(t, owner)

	// a joiner leaving before the commit is not counted
	_, early, _ := mc.lookupOrReserve("box.gltf")
	mc.leave("box.gltf", early, nil)

	// a joiner leaving after the commit gives its reference back
	_, late, _ := mc.lookupOrReserve("box.gltf")
	committed := &CachedResource{Locator: "box.gltf"}
	mc.Commit("box.gltf", committed)
	assert.Equal(t, 2, committed.RefCount)
	mc.leave("box.gltf", late, nil)
	assert.Equal(t, 1, committed.RefCount)

	mc.Release("box.gltf", nil)
	assert.Equal(t, CacheStats{}, mc.Stats())
}

func TestModelCacheClearInFlight(t *testing.T) {
	mc := NewModelCache()
	_, pending, owner := mc.lookupOrReserve("bad.gltf")
	require.True(t, owner)

	boom := errors.New("boom")
	mc.ClearInFlight("bad.gltf", boom)

	_, err := pending.Wait(context.Background())
	assert.ErrorIs(t, err, boom)

	// the next caller may retry
	_, _, owner = mc.lookupOrReserve("bad.gltf")
	assert.True(t, owner)
}

func TestPendingLoadWaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newPendingLoad().Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
