package systems

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/scenebake/engine/core"
	"github.com/spaghettifunk/scenebake/engine/renderer/metadata"
	"github.com/spaghettifunk/scenebake/engine/resources"
)

/**
 * @brief The document and uploaded textures of one locator, shared by every
 * model loaded from it. Immutable once committed except for RefCount.
 */
type CachedResource struct {
	Locator  string
	Document resources.Document
	/** @brief Document texture index to uploaded texture. */
	Textures map[int]*metadata.Texture
	RefCount int
}

// pendingLoad marks a fetch in progress. done is closed once resource or err is set.
// joiners and resolved are guarded by the ModelCache mutex.
type pendingLoad struct {
	done     chan struct{}
	resource *CachedResource
	err      error
	waiters  atomic.Int32
	joiners  int
	resolved bool
}

func newPendingLoad() *pendingLoad {
	return &pendingLoad{done: make(chan struct{})}
}

// Wait blocks until the load resolves or ctx is done.
func (p *pendingLoad) Wait(ctx context.Context) (*CachedResource, error) {
	p.waiters.Add(1)
	select {
	case <-p.done:
		return p.resource, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type CacheStats struct {
	Entries    int
	InFlight   int
	References int
}

/**
 * @brief Maps locators to reference counted resources and deduplicates
 * concurrent loads of the same locator.
 */
type ModelCache struct {
	mu       sync.Mutex
	entries  map[string]*CachedResource
	inFlight map[string]*pendingLoad
}

func NewModelCache() *ModelCache {
	return &ModelCache{
		entries:  make(map[string]*CachedResource),
		inFlight: make(map[string]*pendingLoad),
	}
}

func (mc *ModelCache) Get(locator string) (*CachedResource, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	res, ok := mc.entries[locator]
	return res, ok
}

func (mc *ModelCache) GetInFlight(locator string) (*pendingLoad, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	p, ok := mc.inFlight[locator]
	return p, ok
}

func (mc *ModelCache) SetInFlight(locator string, pending *pendingLoad) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.inFlight[locator] = pending
}

/**
 * @brief Stores a freshly loaded resource and wakes every caller waiting on it.
 * The owner and each joiner of the pending load get one reference, taken before
 * anyone is woken so an early release cannot evict the entry under a joiner.
 */
func (mc *ModelCache) Commit(locator string, resource *CachedResource) {
	mc.mu.Lock()
	resource.RefCount = 1
	mc.entries[locator] = resource
	pending := mc.inFlight[locator]
	delete(mc.inFlight, locator)
	if pending != nil {
		resource.RefCount += pending.joiners
		pending.resource = resource
		pending.resolved = true
	}
	mc.mu.Unlock()

	if pending != nil {
		close(pending.done)
	}
}

/** @brief Drops the in-flight marker of a failed load and hands err to every waiter. */
func (mc *ModelCache) ClearInFlight(locator string, err error) {
	mc.mu.Lock()
	pending := mc.inFlight[locator]
	delete(mc.inFlight, locator)
	if pending != nil {
		pending.err = err
		pending.resolved = true
	}
	mc.mu.Unlock()

	if pending != nil {
		close(pending.done)
	}
}

// leave withdraws a joiner that stopped waiting on pending. A reference Commit
// already took on its behalf is released.
func (mc *ModelCache) leave(locator string, pending *pendingLoad, deleter func(*metadata.Texture)) {
	mc.mu.Lock()
	if !pending.resolved {
		pending.joiners--
		mc.mu.Unlock()
		return
	}
	res := pending.resource
	mc.mu.Unlock()

	if res != nil {
		mc.Release(locator, deleter)
	}
}

/** @brief Takes a reference to a cached resource. */
func (mc *ModelCache) Acquire(locator string) (*CachedResource, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	res, ok := mc.entries[locator]
	if !ok {
		return nil, false
	}
	res.RefCount++
	return res, true
}

/**
 * @brief Drops a reference. The last release evicts the entry and passes every
 * texture it owns to deleter exactly once.
 */
func (mc *ModelCache) Release(locator string, deleter func(*metadata.Texture)) {
	mc.mu.Lock()
	res, ok := mc.entries[locator]
	if !ok {
		mc.mu.Unlock()
		core.LogWarn("release of uncached resource '%s' ignored", locator)
		return
	}
	res.RefCount--
	if res.RefCount > 0 {
		mc.mu.Unlock()
		return
	}
	delete(mc.entries, locator)
	textures := res.Textures
	res.Textures = nil
	mc.mu.Unlock()

	deleted := make(map[*metadata.Texture]struct{}, len(textures))
	for _, tex := range textures {
		if tex == nil {
			continue
		}
		if _, seen := deleted[tex]; seen {
			continue
		}
		deleted[tex] = struct{}{}
		if deleter != nil {
			deleter(tex)
		}
	}
	core.LogDebug("evicted '%s' from the model cache (%d textures)", locator, len(deleted))
}

// lookupOrReserve resolves a locator in one critical section. It returns the
// acquired resource on a hit, the pending load to join when a fetch is in
// flight, or a fresh pending load with owner set when the caller must fetch.
// A joiner is counted so Commit can reference the resource on its behalf; it
// must either receive the result from Wait or call leave.
func (mc *ModelCache) lookupOrReserve(locator string) (res *CachedResource, pending *pendingLoad, owner bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if res, ok := mc.entries[locator]; ok {
		res.RefCount++
		return res, nil, false
	}
	if p, ok := mc.inFlight[locator]; ok {
		p.joiners++
		return nil, p, false
	}
	p := newPendingLoad()
	mc.inFlight[locator] = p
	return nil, p, true
}

func (mc *ModelCache) Stats() CacheStats {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	stats := CacheStats{Entries: len(mc.entries), InFlight: len(mc.inFlight)}
	for _, res := range mc.entries {
		stats.References += res.RefCount
	}
	return stats
}
