package renderer

import (
	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

// SwapchainDependent is a resource whose lifetime is exactly one swapchain
// generation: attachments, render passes, framebuffers, pipelines.
type SwapchainDependent interface {
	Create(state *metadata.SwapchainState) error
	Destroy() error
}

type RecreationState int

const (
	RECREATION_STATE_STABLE RecreationState = iota
	RECREATION_STATE_DRAINING
	RECREATION_STATE_DESTROYING
	RECREATION_STATE_RECREATING
)

func (s RecreationState) String() string {
	switch s {
	case RECREATION_STATE_STABLE:
		return "stable"
	case RECREATION_STATE_DRAINING:
		return "draining"
	case RECREATION_STATE_DESTROYING:
		return "destroying"
	case RECREATION_STATE_RECREATING:
		return "recreating"
	}
	return "unknown"
}

// RecreationCoordinator tears down and rebuilds the swapchain together with
// everything that depends on it. Dependents are created in registration
// order and destroyed in reverse.
type RecreationCoordinator struct {
	device  DeviceBackend
	surface *PresentationSurface
	window  Window

	dependents []SwapchainDependent
	created    int
	state      RecreationState
}

func NewRecreationCoordinator(device DeviceBackend, surface *PresentationSurface, window Window) *RecreationCoordinator {
	return &RecreationCoordinator{
		device:  device,
		surface: surface,
		window:  window,
		state:   RECREATION_STATE_STABLE,
	}
}

func (r *RecreationCoordinator) State() RecreationState {
	return r.state
}

// Register adds a dependent. When a swapchain is already live the
// dependent is created for it immediately.
func (r *RecreationCoordinator) Register(dep SwapchainDependent) error {
	r.dependents = append(r.dependents, dep)
	if state := r.surface.State(); state != nil && r.created == len(r.dependents)-1 {
		if err := dep.Create(state); err != nil {
			return err
		}
		r.created++
	}
	return nil
}

// Initialize creates the first swapchain and the dependents registered so
// far.
func (r *RecreationCoordinator) Initialize() error {
	r.state = RECREATION_STATE_RECREATING
	if err := r.recreate(); err != nil {
		return err
	}
	r.state = RECREATION_STATE_STABLE
	return nil
}

// Recreate drains the device, destroys every dependent and the swapchain,
// then builds them again for the current window extent.
func (r *RecreationCoordinator) Recreate() error {
	r.state = RECREATION_STATE_DRAINING
	if err := r.device.WaitIdle(); err != nil {
		return err
	}

	r.state = RECREATION_STATE_DESTROYING
	if err := r.destroy(); err != nil {
		return err
	}

	r.state = RECREATION_STATE_RECREATING
	if err := r.recreate(); err != nil {
		return err
	}

	r.state = RECREATION_STATE_STABLE
	return nil
}

// Shutdown drains the device and destroys the dependents and the swapchain.
func (r *RecreationCoordinator) Shutdown() error {
	r.state = RECREATION_STATE_DRAINING
	if err := r.device.WaitIdle(); err != nil {
		return err
	}
	r.state = RECREATION_STATE_DESTROYING
	if err := r.destroy(); err != nil {
		return err
	}
	r.state = RECREATION_STATE_STABLE
	return nil
}

func (r *RecreationCoordinator) destroy() error {
	for i := r.created - 1; i >= 0; i-- {
		if err := r.dependents[i].Destroy(); err != nil {
			return err
		}
		r.created = i
	}
	return r.surface.Destroy()
}

func (r *RecreationCoordinator) recreate() error {
	extent, err := r.waitForExtent()
	if err != nil {
		return err
	}
	state, err := r.surface.Create(extent)
	if err != nil {
		return err
	}
	for r.created < len(r.dependents) {
		if err := r.dependents[r.created].Create(state); err != nil {
			return err
		}
		r.created++
	}
	return nil
}

// waitForExtent blocks while the window is minimized.
func (r *RecreationCoordinator) waitForExtent() (metadata.Extent, error) {
	extent := r.window.FramebufferExtent()
	if extent.IsZero() {
		core.LogDebug("window minimized, waiting for a non zero framebuffer")
	}
	for extent.IsZero() {
		if r.window.ShouldClose() {
			return extent, core.ErrWindowClosed
		}
		r.window.WaitEvents()
		extent = r.window.FramebufferExtent()
	}
	return extent, nil
}
