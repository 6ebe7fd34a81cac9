package systems

import (
	"context"
	"errors"
	"sync"

	"github.com/spaghettifunk/scenebake/engine/core"
)

/**
 * @brief Shares one TransformPool between every model of the engine. The pool is
 * created by the first Acquire and disposed when the last handle is released.
 * Flush requests made during a frame are coalesced into one flush at EndFrame.
 */
type SharedPool struct {
	config *TransformPoolConfig

	mu       sync.Mutex
	pool     *TransformPool
	refCount int
	armed    bool
}

func NewSharedPool(config *TransformPoolConfig) *SharedPool {
	return &SharedPool{config: config}
}

/** @brief Keeps the shared pool alive until Release is called. */
type PoolHandle struct {
	owner *SharedPool
	pool  *TransformPool
	once  sync.Once
}

/** @brief Returns a handle to the shared pool, creating the pool if needed. */
func (sp *SharedPool) Acquire() (*PoolHandle, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.pool == nil {
		pool, err := NewTransformPool(sp.config)
		if err != nil {
			core.LogError("failed to create shared transform pool: %s", err)
			return nil, err
		}
		sp.pool = pool
	}
	sp.refCount++
	return &PoolHandle{owner: sp, pool: sp.pool}, nil
}

/** @brief The pool this handle keeps alive. */
func (h *PoolHandle) Pool() *TransformPool {
	return h.pool
}

/** @brief Drops this handle's reference. Safe to call more than once. */
func (h *PoolHandle) Release() {
	h.once.Do(func() {
		h.owner.release(h.pool)
	})
}

func (sp *SharedPool) release(pool *TransformPool) {
	sp.mu.Lock()
	if sp.pool != pool || sp.refCount == 0 {
		sp.mu.Unlock()
		return
	}
	sp.refCount--
	if sp.refCount > 0 {
		sp.mu.Unlock()
		return
	}
	sp.pool = nil
	sp.armed = false
	sp.mu.Unlock()

	pool.Dispose()
}

/** @brief Requests a flush at the end of the current frame. */
func (sp *SharedPool) ScheduleFlush() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.pool != nil {
		sp.armed = true
	}
}

/**
 * @brief Flushes the shared pool if a flush was scheduled since the last call.
 * The engine calls this once per frame after the game update.
 */
func (sp *SharedPool) EndFrame(ctx context.Context) error {
	sp.mu.Lock()
	if !sp.armed || sp.pool == nil {
		sp.mu.Unlock()
		return nil
	}
	sp.armed = false
	pool := sp.pool
	sp.mu.Unlock()

	// the last handle may have been released since the flag was read
	if err := pool.Flush(ctx); err != nil && !errors.Is(err, core.ErrPoolDisposed) {
		core.LogError("end of frame flush failed: %s", err)
		sp.mu.Lock()
		if sp.pool == pool {
			sp.armed = true
		}
		sp.mu.Unlock()
		return err
	}
	return nil
}

/** @brief The number of live handles. */
func (sp *SharedPool) RefCount() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.refCount
}

func (sp *SharedPool) FlushScheduled() bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.armed
}
