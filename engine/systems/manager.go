package systems

import (
	"context"

	"github.com/spaghettifunk/scenebake/engine/assets"
	"github.com/spaghettifunk/scenebake/engine/core"
	"github.com/spaghettifunk/scenebake/engine/renderer"
)

type SystemManagerConfig struct {
	Pool   TransformPoolConfig
	Loader ModelLoaderConfig
	// LoadWorkers is the number of goroutines running asynchronous loads.
	LoadWorkers int
}

type SystemManager struct {
	jobSystem   *JobSystem
	modelCache  *ModelCache
	sharedPool  *SharedPool
	modelLoader *ModelLoader
	backend     renderer.Backend
}

func NewSystemManager(config *SystemManagerConfig, fetcher assets.Fetcher, parser DocumentParser, backend renderer.Backend) (*SystemManager, error) {
	js, err := NewJobSystem(max(config.LoadWorkers, 1), 64)
	if err != nil {
		return nil, err
	}

	mc := NewModelCache()
	sp := NewSharedPool(&config.Pool)
	ml := NewModelLoader(&config.Loader, mc, sp, fetcher, parser, backend)

	return &SystemManager{
		jobSystem:   js,
		modelCache:  mc,
		sharedPool:  sp,
		modelLoader: ml,
		backend:     backend,
	}, nil
}

func (sm *SystemManager) ModelLoader() *ModelLoader {
	return sm.modelLoader
}

func (sm *SystemManager) ModelCache() *ModelCache {
	return sm.modelCache
}

func (sm *SystemManager) SharedPool() *SharedPool {
	return sm.sharedPool
}

func (sm *SystemManager) Backend() renderer.Backend {
	return sm.backend
}

/**
 * @brief Loads a model on a job worker. onLoaded runs during a later Update with
 * either the model or the load error. A model loaded but not yet delivered when
 * the manager shuts down is released instead.
 */
func (sm *SystemManager) LoadModelAsync(locator string, opts LoadOptions, onLoaded func(*Model, error)) error {
	model := NewModel(locator)
	return sm.jobSystem.Submit(JobTask{
		Name: "load " + locator,
		Run: func(ctx context.Context) error {
			return sm.modelLoader.LoadInto(ctx, model, opts)
		},
		OnComplete: func() {
			onLoaded(model, nil)
		},
		OnFailure: func(err error) {
			onLoaded(nil, err)
		},
		OnDiscard: func() {
			model.Release(sm.backend)
		},
	})
}

/** @brief Delivers finished asynchronous loads. Called once per frame before the game update. */
func (sm *SystemManager) Update() {
	sm.jobSystem.Update()
}

/** @brief Runs the work scheduled during the frame. Called once per frame after the game update. */
func (sm *SystemManager) EndFrame(ctx context.Context) error {
	return sm.sharedPool.EndFrame(ctx)
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.jobSystem.Shutdown(); err != nil {
		return err
	}
	if stats := sm.modelCache.Stats(); stats.Entries > 0 {
		core.LogWarn("shutting down with %d cached documents still referenced (%d references)", stats.Entries, stats.References)
	}
	return nil
}
