package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

func TestRecreationOrder(t *testing.T) {
	rig := newTestRig(t, 2, 3, core.HandoffSemaphore)
	attachments := &mockDependent{name: "attachments", backend: rig.backend}
	pipelines := &mockDependent{name: "pipelines", backend: rig.backend}
	require.NoError(t, rig.renderer.RegisterDependent(attachments))
	require.NoError(t, rig.renderer.RegisterDependent(pipelines))

	rig.backend.timeline = nil
	rig.renderer.OnResize(1024, 768)
	rig.window.extent = metadata.Extent{Width: 1024, Height: 768}
	require.NoError(t, rig.renderer.DrawFrame(0))

	assert.Equal(t, []string{
		"wait_idle",
		"destroy pipelines",
		"destroy attachments",
		"destroy_swapchain 1",
		"create_swapchain 1024x768",
		"create attachments",
		"create pipelines",
	}, rig.backend.events("wait_idle", "destroy", "create"))
	assert.Equal(t, metadata.Extent{Width: 1024, Height: 768}, pipelines.extents[1])
	assert.Equal(t, RECREATION_STATE_STABLE, rig.renderer.recreation.State())
}

func TestRecreationIsIdempotent(t *testing.T) {
	backend := newMockBackend()
	window := &mockWindow{extent: metadata.Extent{Width: 800, Height: 600}}
	surface := NewPresentationSurface(backend, true, nil, 0)
	rc := NewRecreationCoordinator(backend, surface, window)
	require.NoError(t, rc.Initialize())

	require.NoError(t, rc.Recreate())
	first := *surface.State()
	require.NoError(t, rc.Recreate())
	second := *surface.State()

	assert.Equal(t, first.Format, second.Format)
	assert.Equal(t, first.PresentMode, second.PresentMode)
	assert.Equal(t, first.ImageCount, second.ImageCount)
	assert.Equal(t, first.Extent, second.Extent)
	assert.Equal(t, first.Generation+1, second.Generation)
}

func TestMinimizedWindowIsPolled(t *testing.T) {
	rig := newTestRig(t, 2, 3, core.HandoffSemaphore)
	rig.window.extent = metadata.Extent{}
	rig.window.pending = []metadata.Extent{
		{Width: 0, Height: 0},
		{Width: 640, Height: 0},
		{Width: 640, Height: 480},
	}
	rig.renderer.RequestRecreation()

	require.NoError(t, rig.renderer.DrawFrame(0))
	assert.Equal(t, 3, rig.window.waits)
	assert.Equal(t, []string{"create_swapchain 800x600", "create_swapchain 640x480"}, rig.backend.events("create_swapchain"))
	assert.Equal(t, uint64(1), rig.renderer.Orchestrator().CurrentFrame())
}

func TestWindowClosedWhileMinimized(t *testing.T) {
	rig := newTestRig(t, 2, 3, core.HandoffSemaphore)
	rig.window.extent = metadata.Extent{}
	rig.window.shouldClose = true
	rig.renderer.RequestRecreation()

	err := rig.renderer.DrawFrame(0)
	assert.ErrorIs(t, err, core.ErrWindowClosed)
	assert.False(t, core.IsFatal(err))
	assert.Equal(t, 1, rig.backend.swapchainsCreated)
}

func TestRegisterBeforeInitialize(t *testing.T) {
	backend := newMockBackend()
	window := &mockWindow{extent: metadata.Extent{Width: 320, Height: 240}}
	surface := NewPresentationSurface(backend, true, nil, 0)
	rc := NewRecreationCoordinator(backend, surface, window)

	dep := &mockDependent{name: "images", backend: backend}
	require.NoError(t, rc.Register(dep))
	assert.False(t, dep.live, "nothing to depend on yet")

	require.NoError(t, rc.Initialize())
	assert.True(t, dep.live)

	require.NoError(t, rc.Shutdown())
	assert.False(t, dep.live)
	assert.Nil(t, surface.State())
	assert.Equal(t, 1, backend.swapchainsDestroyed)
}

func TestShutdownReleasesEverything(t *testing.T) {
	rig := newTestRig(t, 2, 3, core.HandoffSemaphore)
	for i := 0; i < 4; i++ {
		require.NoError(t, rig.renderer.DrawFrame(0))
	}
	require.NoError(t, rig.renderer.Shutdown())

	assert.Equal(t, 0, rig.backend.liveFences)
	assert.Equal(t, 0, rig.backend.liveSemaphores)
	assert.Equal(t, 0, rig.backend.livePools)
	assert.Equal(t, 0, rig.backend.liveBuffers)
	assert.Equal(t, rig.backend.swapchainsCreated, rig.backend.swapchainsDestroyed)
	assert.Equal(t, 1, rig.backend.waitIdleCalls)
}

func TestSwapchainPreferencesApplyToNextGeneration(t *testing.T) {
	rig := newTestRig(t, 2, 3, core.HandoffSemaphore)
	require.NoError(t, rig.renderer.DrawFrame(0.016))
	first := *rig.renderer.Swapchain()
	require.True(t, first.Format.Format.IsSRGB())
	require.Equal(t, uint32(3), first.ImageCount)

	rig.renderer.SetSwapchainPreferences(false, []metadata.PresentMode{metadata.PresentModeFifo}, 5)
	assert.True(t, rig.renderer.Orchestrator().RecreationPending())
	assert.Equal(t, first.Generation, rig.renderer.Swapchain().Generation, "nothing changes before the next frame")

	require.NoError(t, rig.renderer.DrawFrame(0.016))
	second := rig.renderer.Swapchain()
	assert.Equal(t, first.Generation+1, second.Generation)
	assert.Equal(t, metadata.PresentModeFifo, second.PresentMode)
	assert.False(t, second.Format.Format.IsSRGB())
	assert.Equal(t, uint32(5), second.ImageCount)
	assert.False(t, rig.renderer.Orchestrator().RecreationPending())

	// Later generations keep the new preferences.
	rig.renderer.RequestRecreation()
	require.NoError(t, rig.renderer.DrawFrame(0.016))
	assert.Equal(t, metadata.PresentModeFifo, rig.renderer.Swapchain().PresentMode)
	assert.Equal(t, uint32(5), rig.renderer.Swapchain().ImageCount)
}
