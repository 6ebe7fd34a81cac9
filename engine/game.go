package engine

import (
	"errors"

	"github.com/spaghettifunk/scenebake/engine/renderer"
	"github.com/spaghettifunk/scenebake/engine/systems"
)

// ErrQuit is returned by a game update to stop the engine cleanly.
var ErrQuit = errors.New("quit requested")

type Game struct {
	ApplicationConfig *ApplicationConfig
	SystemManager     *systems.SystemManager
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnShutdown        Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error
type Render func(backend renderer.Backend, deltaTime float64) error
type Shutdown func() error
