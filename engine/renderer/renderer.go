package renderer

import (
	"fmt"

	"github.com/spaghettifunk/scenebake/engine/core"
	"github.com/spaghettifunk/scenebake/engine/renderer/headless"
)

type RendererType string

const (
	Headless RendererType = "headless"
)

// New returns the backend registered for the given type.
func New(rendererType RendererType) (Backend, error) {
	switch rendererType {
	case Headless, "":
		return headless.New(), nil
	default:
		err := fmt.Errorf("renderer type '%s' is not supported: %w", rendererType, core.ErrInvalidConfig)
		core.LogError(err.Error())
		return nil, err
	}
}
