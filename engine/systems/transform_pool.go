package systems

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/scenebake/engine/containers"
	"github.com/spaghettifunk/scenebake/engine/core"
)

var ErrNoLanes = errors.New("attempting to create transform pool with less than 1 lane")

type TransformPoolConfig struct {
	LaneCount int
	// BalanceByVertices assigns new meshes to the lane holding the fewest
	// vertices instead of round-robin.
	BalanceByVertices bool
}

type poolEntry struct {
	lane        int
	vertexCount int
	callback    ResultCallback
}

/**
 * @brief Batches per-vertex transforms of many meshes over a fixed set of lanes.
 * Every lane is a goroutine holding its own copy of the original positions of
 * the meshes assigned to it. Requests are queued per lane and sent as one batch
 * per lane on Flush.
 */
type TransformPool struct {
	config *TransformPoolConfig

	mu          sync.Mutex
	lanes       []*transformLane
	pending     []*containers.Queue[PendingRequest]
	registry    map[uint32]poolEntry
	vertexLoads []int
	nextLane    int
	disposed    bool

	wg sync.WaitGroup
}

/**
 * @brief Creates a pool and starts its lanes.
 * @param config The pool configuration. LaneCount must be at least 1.
 */
func NewTransformPool(config *TransformPoolConfig) (*TransformPool, error) {
	if config == nil || config.LaneCount <= 0 {
		return nil, ErrNoLanes
	}

	tp := &TransformPool{
		config:      config,
		lanes:       make([]*transformLane, config.LaneCount),
		pending:     make([]*containers.Queue[PendingRequest], config.LaneCount),
		registry:    make(map[uint32]poolEntry),
		vertexLoads: make([]int, config.LaneCount),
	}
	for i := range tp.lanes {
		tp.lanes[i] = newTransformLane(i)
		tp.pending[i] = containers.NewQueue[PendingRequest](64)
	}

	tp.start()

	core.LogDebug("transform pool started with %d lanes", config.LaneCount)
	return tp, nil
}

func (tp *TransformPool) start() {
	for _, lane := range tp.lanes {
		tp.wg.Add(1)
		go func(l *transformLane) {
			defer tp.wg.Done()
			l.run()
		}(lane)
	}
}

/**
 * @brief Assigns a mesh to a lane and hands the lane its original positions.
 * Ownership of positions moves to the pool; callers must not touch it afterwards.
 * Registering a known id replaces its positions and callback on the same lane.
 *
 * @param meshID The mesh identifier.
 * @param positions xyz triples in the mesh baseline space.
 * @param cb Invoked from Flush with the transformed positions.
 */
func (tp *TransformPool) Register(meshID uint32, positions []float32, cb ResultCallback) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if tp.disposed {
		return core.ErrPoolDisposed
	}

	vertexCount := len(positions) / 3
	entry, exists := tp.registry[meshID]
	if exists {
		tp.vertexLoads[entry.lane] -= entry.vertexCount
	} else {
		entry.lane = tp.pickLane()
	}
	entry.vertexCount = vertexCount
	entry.callback = cb
	tp.registry[meshID] = entry
	tp.vertexLoads[entry.lane] += vertexCount

	tp.lanes[entry.lane].inbox <- registerMessage{MeshID: meshID, Positions: positions}
	return nil
}

func (tp *TransformPool) pickLane() int {
	if tp.config.BalanceByVertices {
		best := 0
		for i, load := range tp.vertexLoads {
			if load < tp.vertexLoads[best] {
				best = i
			}
		}
		return best
	}
	lane := tp.nextLane
	tp.nextLane = (tp.nextLane + 1) % len(tp.lanes)
	return lane
}

/** @brief Removes a mesh from its lane. Unknown ids are ignored. */
func (tp *TransformPool) Unregister(meshID uint32) {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	entry, ok := tp.registry[meshID]
	if !ok || tp.disposed {
		return
	}
	delete(tp.registry, meshID)
	tp.vertexLoads[entry.lane] -= entry.vertexCount
	tp.lanes[entry.lane].inbox <- unregisterMessage{MeshID: meshID}
}

/**
 * @brief Queues a transform of a registered mesh for the next flush.
 * Requests for unknown meshes are dropped.
 *
 * @param meshID The mesh identifier.
 * @param m Column-major matrix, copied.
 */
func (tp *TransformPool) Queue(meshID uint32, m [16]float32) {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	entry, ok := tp.registry[meshID]
	if !ok {
		core.LogWarn("transform requested for unregistered mesh %d, dropping", meshID)
		return
	}
	tp.pending[entry.lane].Enqueue(PendingRequest{MeshID: meshID, Matrix: m})
}

/**
 * @brief Sends every queued request to its lane, waits for all replies and
 * delivers the results to the registered callbacks. Requests queued after Flush
 * was called are left for the next flush. Callbacks run on the calling goroutine.
 * When ctx ends first, the requests of lanes that have not replied are queued
 * again ahead of newer ones.
 */
func (tp *TransformPool) Flush(ctx context.Context) error {
	tp.mu.Lock()
	if tp.disposed {
		tp.mu.Unlock()
		return core.ErrPoolDisposed
	}
	if err := ctx.Err(); err != nil {
		tp.mu.Unlock()
		return fmt.Errorf("flushing transform pool: %w", err)
	}

	reply := make(chan laneReply, len(tp.lanes))
	outstanding := make(map[int][]PendingRequest)
	for i, queue := range tp.pending {
		if queue.IsEmpty() {
			continue
		}
		requests := queue.Drain()
		tp.lanes[i].inbox <- transformBatchMessage{Requests: requests, Reply: reply}
		outstanding[i] = requests
	}
	tp.mu.Unlock()

	if len(outstanding) == 0 {
		return nil
	}

	for len(outstanding) > 0 {
		select {
		case r := <-reply:
			delete(outstanding, r.Lane)
			tp.deliver(r.Results)
		case <-ctx.Done():
			tp.requeue(outstanding)
			return fmt.Errorf("waiting for transform lanes: %w", ctx.Err())
		}
	}
	core.MetricsFlush()
	return nil
}

// requeue puts undelivered requests back in front of whatever was queued while
// the flush was waiting. Requests of meshes unregistered since are dropped.
func (tp *TransformPool) requeue(outstanding map[int][]PendingRequest) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if tp.disposed {
		return
	}

	for lane, requests := range outstanding {
		newer := tp.pending[lane].Drain()
		queue := containers.NewQueue[PendingRequest](len(requests) + len(newer))
		for _, req := range requests {
			if _, ok := tp.registry[req.MeshID]; ok {
				queue.Enqueue(req)
			}
		}
		for _, req := range newer {
			queue.Enqueue(req)
		}
		tp.pending[lane] = queue
	}
}

func (tp *TransformPool) deliver(results TransformResults) {
	callbacks := make([]ResultCallback, len(results.MeshIDs))
	tp.mu.Lock()
	for i, id := range results.MeshIDs {
		if entry, ok := tp.registry[id]; ok {
			callbacks[i] = entry.callback
		}
	}
	tp.mu.Unlock()

	for i, cb := range callbacks {
		if cb == nil {
			continue
		}
		cb(results.Positions[results.Offsets[i]:results.Offsets[i+1]])
	}
}

/** @brief Returns the number of requests waiting for the next flush. */
func (tp *TransformPool) PendingCount() int {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	count := 0
	for _, queue := range tp.pending {
		count += queue.Len()
	}
	return count
}

/** @brief Returns the number of registered vertices held by every lane. */
func (tp *TransformPool) LaneLoads() []int {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return append([]int(nil), tp.vertexLoads...)
}

func (tp *TransformPool) LaneCount() int {
	return len(tp.lanes)
}

/** @brief Clears and stops every lane. Safe to call more than once. */
func (tp *TransformPool) Dispose() {
	tp.mu.Lock()
	if tp.disposed {
		tp.mu.Unlock()
		return
	}
	tp.disposed = true
	for i, lane := range tp.lanes {
		lane.inbox <- clearMessage{}
		close(lane.inbox)
		tp.pending[i] = containers.NewQueue[PendingRequest](1)
		tp.vertexLoads[i] = 0
	}
	clear(tp.registry)
	tp.mu.Unlock()

	tp.wg.Wait()
	core.LogDebug("transform pool disposed")
}
