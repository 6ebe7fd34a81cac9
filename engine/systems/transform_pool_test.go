package systems

import (
	"context"
	"sync"
	"testing"

	"github.com/spaghettifunk/scenebake/engine/core"
	"github.com/spaghettifunk/scenebake/engine/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, lanes int) *TransformPool {
	t.Helper()
	pool, err := NewTransformPool(&TransformPoolConfig{LaneCount: lanes})
	require.NoError(t, err)
	t.Cleanup(pool.Dispose)
	return pool
}

// collector records the last positions delivered to every mesh.
type collector struct {
	mu      sync.Mutex
	results map[uint32][]float32
	calls   map[uint32]int
}

func newCollector() *collector {
	return &collector{results: make(map[uint32][]float32), calls: make(map[uint32]int)}
}

func (c *collector) callback(id uint32) ResultCallback {
	return func(positions []float32) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.results[id] = append([]float32(nil), positions...)
		c.calls[id]++
	}
}

func translation(x, y, z float32) [16]float32 {
	return math.NewMat4Translation(math.NewVec3(x, y, z)).Data
}

func TestNewTransformPoolNoLanes(t *testing.T) {
	_, err := NewTransformPool(&TransformPoolConfig{LaneCount: 0})
	assert.ErrorIs(t, err, ErrNoLanes)
	_, err = NewTransformPool(nil)
	assert.ErrorIs(t, err, ErrNoLanes)
}

func TestLaneTransformPacking(t *testing.T) {
	lane := newTransformLane(0)
	lane.meshes[1] = []float32{1, 1, 1}
	lane.meshes[2] = []float32{1, 1, 1, 2, 2, 2}
	lane.meshes[3] = []float32{1, 1, 1, 2, 2, 2, 3, 3, 3}

	identity := math.NewMat4Identity().Data
	results := lane.transform([]PendingRequest{
		{MeshID: 1, Matrix: identity},
		{MeshID: 99, Matrix: identity},
		{MeshID: 2, Matrix: identity},
		{MeshID: 3, Matrix: translation(1, 0, 0)},
	})

	assert.Equal(t, []uint32{1, 2, 3}, results.MeshIDs)
	assert.Equal(t, []uint32{0, 3, 9, 18}, results.Offsets)
	require.Len(t, results.Positions, 18)
	assert.Equal(t, []float32{2, 1, 1, 3, 2, 2, 4, 3, 3}, results.Positions[9:18])
}

func TestLaneTransformEmptyBatch(t *testing.T) {
	lane := newTransformLane(0)
	results := lane.transform([]PendingRequest{{MeshID: 7, Matrix: math.NewMat4Identity().Data}})
	assert.Empty(t, results.MeshIDs)
	assert.Equal(t, []uint32{0}, results.Offsets)
	assert.Empty(t, results.Positions)
}

func TestTransformPoolFlushDeliversResults(t *testing.T) {
	pool := newTestPool(t, 2)
	c := newCollector()

	require.NoError(t, pool.Register(1, []float32{1, 0, 0}, c.callback(1)))
	require.NoError(t, pool.Register(2, []float32{1, 1, 1, 0, 0, 0}, c.callback(2)))
	require.NoError(t, pool.Register(3, []float32{0, 0, 1}, c.callback(3)))

	scale := math.NewMat4Scale(math.NewVec3(2, 2, 2))
	pool.Queue(1, scale.Data)
	pool.Queue(2, math.NewMat4Translation(math.NewVec3(5, 10, 15)).Mul(scale).Data)
	assert.Equal(t, 2, pool.PendingCount())

	require.NoError(t, pool.Flush(context.Background()))
	assert.Equal(t, 0, pool.PendingCount())

	assert.Equal(t, []float32{2, 0, 0}, c.results[1])
	assert.Equal(t, []float32{7, 12, 17, 5, 10, 15}, c.results[2])
	assert.NotContains(t, c.results, uint32(3))
}

func TestTransformPoolFlushWithoutWork(t *testing.T) {
	pool := newTestPool(t, 4)
	require.NoError(t, pool.Flush(context.Background()))
}

func TestTransformPoolQueueUnknownMesh(t *testing.T) {
	pool := newTestPool(t, 1)
	pool.Queue(42, math.NewMat4Identity().Data)
	assert.Equal(t, 0, pool.PendingCount())
}

func TestTransformPoolFlushSnapshot(t *testing.T) {
	pool := newTestPool(t, 1)
	c := newCollector()

	// the first delivery queues another transform; it belongs to the next flush
	requeued := false
	require.NoError(t, pool.Register(1, []float32{1, 2, 3}, func(positions []float32) {
		c.callback(1)(positions)
		if !requeued {
			requeued = true
			pool.Queue(1, translation(0, 0, 100))
		}
	}))

	pool.Queue(1, translation(1, 0, 0))
	require.NoError(t, pool.Flush(context.Background()))
	assert.Equal(t, 1, c.calls[1])
	assert.Equal(t, []float32{2, 2, 3}, c.results[1])
	assert.Equal(t, 1, pool.PendingCount())

	require.NoError(t, pool.Flush(context.Background()))
	assert.Equal(t, 2, c.calls[1])
	assert.Equal(t, []float32{1, 2, 103}, c.results[1])
}

func TestTransformPoolFlushCancelledKeepsRequests(t *testing.T) {
	pool := newTestPool(t, 1)
	c := newCollector()
	require.NoError(t, pool.Register(1, []float32{1, 1, 1}, c.callback(1)))
	pool.Queue(1, translation(5, 0, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pool.Flush(ctx), context.Canceled)
	assert.Equal(t, 1, pool.PendingCount())
	assert.Empty(t, c.results)

	require.NoError(t, pool.Flush(context.Background()))
	assert.Equal(t, []float32{6, 1, 1}, c.results[1])
}

func TestTransformPoolRequeueKeepsOrder(t *testing.T) {
	pool := newTestPool(t, 2)
	c := newCollector()
	require.NoError(t, pool.Register(1, []float32{1, 1, 1}, c.callback(1)))
	require.NoError(t, pool.Register(2, []float32{2, 2, 2}, c.callback(2)))
	require.NoError(t, pool.Register(3, []float32{3, 3, 3}, c.callback(3)))
	pool.Unregister(3)

	// queued while an interrupted flush was waiting on lane 0
	pool.Queue(1, translation(0, 0, 9))
	pool.requeue(map[int][]PendingRequest{
		0: {{MeshID: 1, Matrix: translation(1, 0, 0)}, {MeshID: 3, Matrix: translation(1, 0, 0)}},
		1: {{MeshID: 2, Matrix: translation(0, 1, 0)}},
	})
	assert.Equal(t, 3, pool.PendingCount())

	require.NoError(t, pool.Flush(context.Background()))
	assert.Equal(t, []float32{1, 1, 10}, c.results[1])
	assert.Equal(t, 2, c.calls[1])
	assert.Equal(t, []float32{2, 3, 2}, c.results[2])
	assert.NotContains(t, c.results, uint32(3))
}

func TestTransformPoolUnregister(t *testing.T) {
	pool := newTestPool(t, 1)
	c := newCollector()
	require.NoError(t, pool.Register(1, []float32{1, 2, 3}, c.callback(1)))

	pool.Queue(1, translation(1, 0, 0))
	pool.Unregister(1)
	pool.Unregister(1)
	require.NoError(t, pool.Flush(context.Background()))

	assert.Zero(t, c.calls[1])
	assert.Equal(t, []int{0}, pool.LaneLoads())
}

func TestTransformPoolRoundRobin(t *testing.T) {
	pool := newTestPool(t, 3)
	for id := uint32(1); id <= 4; id++ {
		require.NoError(t, pool.Register(id, make([]float32, 3*int(id)), nil))
	}
	// lanes get meshes 1+4, 2 and 3
	assert.Equal(t, []int{5, 2, 3}, pool.LaneLoads())
}

func TestTransformPoolBalanceByVertices(t *testing.T) {
	pool, err := NewTransformPool(&TransformPoolConfig{LaneCount: 2, BalanceByVertices: true})
	require.NoError(t, err)
	defer pool.Dispose()

	require.NoError(t, pool.Register(1, make([]float32, 3*100), nil))
	require.NoError(t, pool.Register(2, make([]float32, 3*10), nil))
	require.NoError(t, pool.Register(3, make([]float32, 3*10), nil))
	require.NoError(t, pool.Register(4, make([]float32, 3*10), nil))
	assert.Equal(t, []int{100, 30}, pool.LaneLoads())
}

func TestTransformPoolDispose(t *testing.T) {
	pool, err := NewTransformPool(&TransformPoolConfig{LaneCount: 2})
	require.NoError(t, err)
	require.NoError(t, pool.Register(1, []float32{1, 2, 3}, nil))

	pool.Dispose()
	pool.Dispose()

	assert.ErrorIs(t, pool.Register(2, []float32{1, 2, 3}, nil), core.ErrPoolDisposed)
	assert.ErrorIs(t, pool.Flush(context.Background()), core.ErrPoolDisposed)
	pool.Queue(1, math.NewMat4Identity().Data)
	assert.Equal(t, 0, pool.PendingCount())
}

func TestTransformPoolConcurrentQueue(t *testing.T) {
	pool := newTestPool(t, 4)
	c := newCollector()
	const meshes = 64
	for id := uint32(1); id <= meshes; id++ {
		require.NoError(t, pool.Register(id, []float32{float32(id), 0, 0}, c.callback(id)))
	}

	var wg sync.WaitGroup
	for id := uint32(1); id <= meshes; id++ {
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			pool.Queue(id, translation(0, 1, 0))
		}(id)
	}
	wg.Wait()

	require.NoError(t, pool.Flush(context.Background()))
	for id := uint32(1); id <= meshes; id++ {
		assert.Equal(t, []float32{float32(id), 1, 0}, c.results[id])
	}
}
