package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spaghettifunk/scenebake/engine/assets"
	"github.com/spaghettifunk/scenebake/engine/assets/loaders"
	"github.com/spaghettifunk/scenebake/engine/core"
	"github.com/spaghettifunk/scenebake/engine/renderer"
	"github.com/spaghettifunk/scenebake/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released every system
	EngineStageShutdown
)

type Engine struct {
	mu           sync.Mutex
	currentStage Stage

	gameInstance  *Game
	config        *ApplicationConfig
	assetManager  *assets.AssetManager
	backend       renderer.Backend
	systemManager *systems.SystemManager
	clock         *core.Clock
	lastTime      float64
	frameCount    uint64
}

func New(g *Game) (*Engine, error) {
	config := g.ApplicationConfig
	if config == nil {
		config = DefaultApplicationConfig()
		g.ApplicationConfig = config
	}
	if err := config.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.SetLogLevel(config.LogLevel)

	backend, err := renderer.New(config.Renderer)
	if err != nil {
		return nil, err
	}

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	sm, err := systems.NewSystemManager(&systems.SystemManagerConfig{
		Pool: systems.TransformPoolConfig{
			LaneCount:         config.LaneCount(),
			BalanceByVertices: config.Pool.BalanceByVertices,
		},
		Loader: systems.ModelLoaderConfig{
			DecodeConcurrency: config.Textures.DecodeConcurrency,
			PoolingEnabled:    config.Pool.Enabled,
		},
		LoadWorkers: config.LoadWorkers,
	}, am, loaders.NewDocumentLoader(am), backend)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	g.SystemManager = sm

	return &Engine{
		currentStage:  EngineStageUninitialized,
		gameInstance:  g,
		config:        config,
		assetManager:  am,
		backend:       backend,
		systemManager: sm,
		clock:         core.NewClock(),
	}, nil
}

func (e *Engine) Initialize() error {
	e.setStage(EngineStageInitializing)

	if err := core.MetricsInitialize(); err != nil {
		return err
	}

	// initialize subsystems
	if err := e.assetManager.Initialize(e.config.AssetsDir); err != nil {
		core.LogError("failed to index assets in '%s': %s", e.config.AssetsDir, err)
		return err
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return err
		}
	}

	e.setStage(EngineStageInitialized)
	core.LogInfo("%s initialized (%d transform lanes, pooling: %t)", e.config.Name, e.config.LaneCount(), e.config.Pool.Enabled)
	return nil
}

/**
 * @brief Runs the frame loop until ctx is done or the game asks to quit.
 * Every frame delivers finished loads, updates the game, flushes the transforms
 * scheduled during the update and renders.
 */
func (e *Engine) Run(ctx context.Context) error {
	e.setStage(EngineStageRunning)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	ticker := time.NewTicker(time.Second / time.Duration(e.config.FrameRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			core.LogInfo("frame loop stopped after %d frames", e.frameCount)
			return nil
		case <-ticker.C:
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStart := time.Now()

		if err := e.frame(ctx, delta); err != nil {
			if errors.Is(err, ErrQuit) {
				core.LogInfo("quit requested after %d frames", e.frameCount)
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			core.LogError("frame %d failed, shutting down: %s", e.frameCount, err)
			return err
		}

		core.MetricsUpdate(time.Since(frameStart).Seconds())
		e.frameCount++
		e.lastTime = currentTime
	}
}

func (e *Engine) frame(ctx context.Context, delta float64) error {
	e.systemManager.Update()

	if err := e.gameInstance.FnUpdate(delta); err != nil {
		return err
	}

	if err := e.systemManager.EndFrame(ctx); err != nil {
		return err
	}

	if e.gameInstance.FnRender != nil {
		if err := e.gameInstance.FnRender(e.backend, delta); err != nil {
			return err
		}
	}
	return nil
}

/** @brief Shuts the game and every system down. Safe to call more than once. */
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	if e.currentStage >= EngineStageShuttingDown {
		e.mu.Unlock()
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.mu.Unlock()

	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			core.LogError("game shutdown failed: %s", err)
		}
	}
	if err := e.systemManager.Shutdown(); err != nil {
		return err
	}
	if err := e.assetManager.Shutdown(); err != nil {
		return err
	}

	e.setStage(EngineStageShutdown)
	return nil
}

func (e *Engine) Stage() Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentStage
}

func (e *Engine) FrameCount() uint64 {
	return e.frameCount
}

func (e *Engine) Backend() renderer.Backend {
	return e.backend
}

func (e *Engine) setStage(stage Stage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentStage = stage
}
