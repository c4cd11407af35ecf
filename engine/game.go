package engine

import (
	"github.com/spaghettifunk/foveal/engine/assets"
	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/platform"
	"github.com/spaghettifunk/foveal/engine/renderer"
	"github.com/spaghettifunk/foveal/engine/renderer/vulkan"
	"github.com/spaghettifunk/foveal/engine/systems"
)

// Systems is what the engine hands to the game once everything is up.
type Systems struct {
	Config   *core.Config
	Platform *platform.Platform
	Backend  *vulkan.VulkanRenderer
	Renderer *renderer.Renderer
	Assets   *assets.AssetManager
	Jobs     *systems.JobSystem
	Events   *core.EventQueue
	Input    *core.Input
}

type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnOnEvent         OnEvent
	FnOnResize        OnResize
	FnStatus          Status
	FnShutdown        Shutdown
}

// Initialize builds the passes and sets the render graph.
type Initialize func(sys *Systems) error
type Update func(deltaTime float64) error

// OnEvent sees every drained event before the engine does. Returning true
// consumes it.
type OnEvent func(e core.Event) bool
type OnResize func(width uint32, height uint32) error

// Status is appended to the window title once per second.
type Status func() string
type Shutdown func() error
