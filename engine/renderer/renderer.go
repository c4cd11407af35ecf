package renderer

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

// Releaser is implemented by swapchain dependents that also own resources
// living across generations, such as textures or descriptor pools.
type Releaser interface {
	Release() error
}

// Renderer wires the frame loop components together. It owns all of them
// and is the only thing the engine talks to.
type Renderer struct {
	backend RendererBackend
	window  Window
	config  core.RendererSection

	surface      *PresentationSurface
	tracker      *FrameSyncTracker
	commands     *CommandStreamManager
	recreation   *RecreationCoordinator
	orchestrator *Orchestrator
	dependents   []SwapchainDependent
}

func New(backend RendererBackend, window Window, config core.RendererSection) *Renderer {
	surface := NewPresentationSurface(backend, config.SRGB, config.PresentModes, config.PresentableImages)
	return &Renderer{
		backend:    backend,
		window:     window,
		config:     config,
		surface:    surface,
		recreation: NewRecreationCoordinator(backend, surface, window),
	}
}

// Initialize creates the first swapchain, the frame slots and the command
// stream manager. Frame slots default to one per presentable image.
func (r *Renderer) Initialize() error {
	if err := r.recreation.Initialize(); err != nil {
		return err
	}

	concurrency := r.config.ConcurrentFrames
	if concurrency == 0 {
		concurrency = r.surface.State().ImageCount
	}
	tracker, err := NewFrameSyncTracker(r.backend, concurrency, r.config.ExtraRenderFinishedSemaphores)
	if err != nil {
		return err
	}
	r.tracker = tracker
	r.commands = NewCommandStreamManager(r.backend, concurrency, r.config.DebugChecks)

	core.LogInfo("renderer initialized: %d frames in flight over %d swapchain images", concurrency, r.surface.State().ImageCount)
	return nil
}

// RegisterDependent creates the resource for the live swapchain and
// recreates it on every swapchain generation from now on.
func (r *Renderer) RegisterDependent(dep SwapchainDependent) error {
	if err := r.recreation.Register(dep); err != nil {
		return err
	}
	r.dependents = append(r.dependents, dep)
	return nil
}

// SetRenderGraph installs the primary node and everything it depends on.
func (r *Renderer) SetRenderGraph(primary *RenderNode) error {
	if r.tracker == nil {
		return core.Errorf("renderer must be initialized before the render graph is set")
	}
	if r.orchestrator != nil {
		if err := r.backend.WaitIdle(); err != nil {
			return err
		}
		r.orchestrator.Destroy()
	}
	o, err := NewOrchestrator(r.surface, r.tracker, r.commands, r.recreation, r.backend, primary, r.config.Handoff)
	if err != nil {
		return err
	}
	r.orchestrator = o
	return nil
}

func (r *Renderer) DrawFrame(deltaTime float64) error {
	if r.orchestrator == nil {
		return core.Errorf("no render graph set")
	}
	if err := r.orchestrator.RenderFrame(deltaTime); err != nil {
		if !errors.Is(err, core.ErrWindowClosed) {
			core.LogError("%s", err)
		}
		return err
	}
	return nil
}

// FenceWait reports how long the last frame waited on its slot fence.
func (r *Renderer) FenceWait() time.Duration {
	if r.orchestrator == nil {
		return 0
	}
	return r.orchestrator.FenceWait()
}

// OnResize schedules a swapchain recreation before the next acquire.
func (r *Renderer) OnResize(width, height uint32) {
	core.LogDebug("framebuffer resized to %dx%d", width, height)
	if r.orchestrator != nil {
		r.orchestrator.RequestRecreation()
	}
}

// RequestRecreation is used when a setting that lives in the swapchain
// changed, such as the present mode.
func (r *Renderer) RequestRecreation() {
	if r.orchestrator != nil {
		r.orchestrator.RequestRecreation()
	}
}

// SetSwapchainPreferences applies new sRGB, present mode and image count
// settings to the next swapchain generation.
func (r *Renderer) SetSwapchainPreferences(srgb bool, modes []metadata.PresentMode, presentableImages uint32) {
	r.config.SRGB = srgb
	r.config.PresentModes = modes
	r.config.PresentableImages = presentableImages
	r.surface.SetPreferences(srgb, modes, presentableImages)
	r.RequestRecreation()
}

// CyclePresentMode switches the live window to the next present mode the
// surface supports, e.g. from triple buffering to vsync. Fifo stays as the
// fallback.
func (r *Renderer) CyclePresentMode() metadata.PresentMode {
	state := r.surface.State()
	if state == nil {
		return 0
	}
	next := r.surface.NextPresentMode(state.PresentMode)
	modes := []metadata.PresentMode{next}
	if next != metadata.PresentModeFifo {
		modes = append(modes, metadata.PresentModeFifo)
	}
	core.LogInfo("present mode %s requested, was %s", next, state.PresentMode)
	r.SetSwapchainPreferences(r.config.SRGB, modes, r.config.PresentableImages)
	return next
}

func (r *Renderer) Swapchain() *metadata.SwapchainState {
	return r.surface.State()
}

func (r *Renderer) Surface() *PresentationSurface {
	return r.surface
}

func (r *Renderer) Commands() *CommandStreamManager {
	return r.commands
}

func (r *Renderer) Tracker() *FrameSyncTracker {
	return r.tracker
}

func (r *Renderer) Orchestrator() *Orchestrator {
	return r.orchestrator
}

func (r *Renderer) Concurrency() uint32 {
	if r.tracker == nil {
		return 0
	}
	return r.tracker.Concurrency()
}

// Shutdown drains the device and destroys everything in reverse creation
// order.
func (r *Renderer) Shutdown() error {
	if err := r.recreation.Shutdown(); err != nil {
		return err
	}
	var errs error
	for i := len(r.dependents) - 1; i >= 0; i-- {
		if rel, ok := r.dependents[i].(Releaser); ok {
			if err := rel.Release(); err != nil {
				errs = errors.CombineErrors(errs, err)
			}
		}
	}
	if r.orchestrator != nil {
		r.orchestrator.Destroy()
		r.orchestrator = nil
	}
	if r.commands != nil {
		r.commands.Destroy()
	}
	if r.tracker != nil {
		r.tracker.Destroy()
	}
	return errs
}
