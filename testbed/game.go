package testbed

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/spaghettifunk/scenebake/engine"
	"github.com/spaghettifunk/scenebake/engine/core"
	"github.com/spaghettifunk/scenebake/engine/math"
	"github.com/spaghettifunk/scenebake/engine/renderer"
	"github.com/spaghettifunk/scenebake/engine/systems"
)

const statsIntervalSeconds = 1.0

type TestGame struct {
	*engine.Game
}

type instance struct {
	model     *systems.Model
	transform *math.Transform
	spin      float32
}

type gameState struct {
	rng       *rand.Rand
	instances []*instance
	failures  int
	frames    int

	statsTimer float64
}

func NewTestGame(config *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State: &gameState{
				rng: rand.New(rand.NewSource(42)),
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize() error {
	core.LogInfo("initializing testbed...")

	config := g.ApplicationConfig.Testbed
	if config.Model == "" {
		err := fmt.Errorf("testbed.model is not set: %w", core.ErrInvalidConfig)
		core.LogError(err.Error())
		return err
	}

	for i := 0; i < config.Instances; i++ {
		if err := g.SystemManager.LoadModelAsync(config.Model, systems.LoadOptions{UseWorkers: config.UseWorkers}, g.onModelLoaded); err != nil {
			return err
		}
	}
	return nil
}

func (g *TestGame) onModelLoaded(model *systems.Model, err error) {
	state := g.state()
	if err != nil {
		state.failures++
		core.LogWarn("testbed instance failed to load, drawing nothing for it: %s", err)
		return
	}

	// scatter instances on a grid around the origin
	idx := len(state.instances)
	side := 8
	pos := math.NewVec3(float32(idx%side-side/2)*3, 0, float32(idx/side)*-3)
	spin := 0.25 + state.rng.Float32()

	state.instances = append(state.instances, &instance{
		model:     model,
		transform: math.TransformFromPosition(pos),
		spin:      spin,
	})
	stats := model.Stats()
	core.LogDebug("instance %d (%s) ready: %d meshes, %d vertices", idx, model.ID, stats.MeshCount, stats.TotalVertices)
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.state()
	state.frames++
	if frames := g.ApplicationConfig.Testbed.Frames; frames > 0 && state.frames >= frames {
		return engine.ErrQuit
	}

	for _, inst := range state.instances {
		rotation := math.NewQuatFromAxisAngle(math.NewVec3(0, 1, 0), inst.spin*float32(deltaTime), true)
		inst.transform.Rotate(rotation)
		inst.model.UpdateTransform(inst.transform.GetWorld())
	}

	state.statsTimer += deltaTime
	if state.statsTimer >= statsIntervalSeconds {
		state.statsTimer = 0
		g.logStats()
	}
	return nil
}

func (g *TestGame) Render(backend renderer.Backend, deltaTime float64) error {
	for _, inst := range g.state().instances {
		if !inst.model.IsLoaded() {
			continue
		}
		inst.model.Draw(backend)
	}
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.state()
	g.logStats()
	for _, inst := range state.instances {
		inst.model.Release(g.SystemManager.Backend())
	}
	state.instances = nil
	core.LogInfo("testbed shut down after %d frames", state.frames)
	return nil
}

func (g *TestGame) logStats() {
	state := g.state()
	fps, frameMS, flushes := core.MetricsFrame()
	cache := g.SystemManager.ModelCache().Stats()

	vertices := 0
	for _, inst := range state.instances {
		vertices += inst.model.Stats().TotalVertices
	}
	core.LogInfo("fps %.0f | frame %.2fms | flushes/s %.0f | instances %d (%d failed) | vertices %d | cached documents %d (%d refs)",
		fps, frameMS, flushes, len(state.instances), state.failures, vertices, cache.Entries, cache.References)
}
