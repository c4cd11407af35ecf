package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

func TestChooseSurfaceFormat(t *testing.T) {
	unorm := metadata.SurfaceFormat{Format: metadata.FormatB8G8R8A8Unorm}
	srgb := metadata.SurfaceFormat{Format: metadata.FormatB8G8R8A8Srgb}

	got, err := ChooseSurfaceFormat([]metadata.SurfaceFormat{unorm, srgb}, true)
	require.NoError(t, err)
	assert.Equal(t, srgb, got)

	got, err = ChooseSurfaceFormat([]metadata.SurfaceFormat{srgb, unorm}, false)
	require.NoError(t, err)
	assert.Equal(t, unorm, got)

	// Nothing matches, first one wins.
	got, err = ChooseSurfaceFormat([]metadata.SurfaceFormat{unorm}, true)
	require.NoError(t, err)
	assert.Equal(t, unorm, got)

	got, err = ChooseSurfaceFormat([]metadata.SurfaceFormat{{Format: metadata.FormatUndefined}}, true)
	require.NoError(t, err)
	assert.Equal(t, metadata.FormatB8G8R8A8Unorm, got.Format)
	assert.Equal(t, metadata.ColorSpaceSrgbNonlinear, got.ColorSpace)

	_, err = ChooseSurfaceFormat(nil, true)
	assert.ErrorIs(t, err, core.ErrNoSurfaceFormat)
	assert.True(t, core.IsFatal(err))
}

func TestChoosePresentMode(t *testing.T) {
	supported := []metadata.PresentMode{metadata.PresentModeFifo, metadata.PresentModeImmediate}

	got, err := ChoosePresentMode(supported, DefaultPresentModes)
	require.NoError(t, err)
	assert.Equal(t, metadata.PresentModeFifo, got)

	got, err = ChoosePresentMode(supported, []metadata.PresentMode{metadata.PresentModeImmediate})
	require.NoError(t, err)
	assert.Equal(t, metadata.PresentModeImmediate, got)

	got, err = ChoosePresentMode(supported, []metadata.PresentMode{metadata.PresentModeMailbox})
	require.NoError(t, err)
	assert.Equal(t, metadata.PresentModeFifo, got, "falls back to the first supported mode")

	_, err = ChoosePresentMode(nil, DefaultPresentModes)
	assert.ErrorIs(t, err, core.ErrNoPresentMode)
	assert.True(t, core.IsFatal(err))
}

func TestChooseExtent(t *testing.T) {
	caps := metadata.SurfaceCapabilities{
		CurrentExtent:  metadata.Extent{Width: metadata.UndefinedExtent, Height: metadata.UndefinedExtent},
		MinImageExtent: metadata.Extent{Width: 100, Height: 100},
		MaxImageExtent: metadata.Extent{Width: 1000, Height: 800},
	}
	assert.Equal(t, metadata.Extent{Width: 1000, Height: 100}, ChooseExtent(caps, metadata.Extent{Width: 5000, Height: 50}))
	assert.Equal(t, metadata.Extent{Width: 640, Height: 480}, ChooseExtent(caps, metadata.Extent{Width: 640, Height: 480}))

	caps.CurrentExtent = metadata.Extent{Width: 300, Height: 200}
	assert.Equal(t, metadata.Extent{Width: 300, Height: 200}, ChooseExtent(caps, metadata.Extent{Width: 640, Height: 480}))
}

func TestChooseImageCount(t *testing.T) {
	caps := metadata.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 4}
	assert.Equal(t, uint32(3), ChooseImageCount(caps, 0))
	assert.Equal(t, uint32(3), ChooseImageCount(caps, 1))
	assert.Equal(t, uint32(4), ChooseImageCount(caps, 4))
	assert.Equal(t, uint32(4), ChooseImageCount(caps, 9))

	caps.MaxImageCount = 0
	assert.Equal(t, uint32(9), ChooseImageCount(caps, 9), "zero max is unbounded")

	caps = metadata.SurfaceCapabilities{MinImageCount: 3, MaxImageCount: 3}
	assert.Equal(t, uint32(3), ChooseImageCount(caps, 0))
}

func TestPresentationSurfaceLifecycle(t *testing.T) {
	backend := newMockBackend()
	s := NewPresentationSurface(backend, true, nil, 3)

	state, err := s.Create(metadata.Extent{Width: 640, Height: 480})
	require.NoError(t, err)
	assert.Equal(t, metadata.FormatB8G8R8A8Srgb, state.Format.Format)
	assert.Equal(t, metadata.PresentModeMailbox, state.PresentMode)
	assert.Equal(t, uint32(3), state.ImageCount)
	assert.Len(t, state.ImageViews, 3)
	assert.Equal(t, uint64(1), state.Generation)

	_, err = s.Create(metadata.Extent{Width: 640, Height: 480})
	assert.Error(t, err, "a live swapchain must be destroyed first")

	require.NoError(t, s.Destroy())
	assert.Nil(t, s.State())
	require.NoError(t, s.Destroy(), "destroying twice is a no-op")
	assert.Equal(t, 1, backend.swapchainsDestroyed)

	state, err = s.Create(metadata.Extent{Width: 640, Height: 480})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), state.Generation)

	minimized := newMockBackend()
	minimized.support.Capabilities.CurrentExtent = metadata.Extent{}
	_, err = NewPresentationSurface(minimized, true, nil, 0).Create(metadata.Extent{})
	assert.Error(t, err)
	assert.Equal(t, 0, minimized.swapchainsCreated)
}

func TestAcquireRejectsOutOfRangeIndex(t *testing.T) {
	backend := newMockBackend()
	s := NewPresentationSurface(backend, false, nil, 3)
	_, err := s.Create(metadata.Extent{Width: 640, Height: 480})
	require.NoError(t, err)

	backend.acquireScript = []acquireResult{{index: 7, status: metadata.StatusSuccess}}
	_, _, err = s.AcquireNextImage(&metadata.Semaphore{})
	assert.True(t, core.IsFatal(err))
}

func TestImageIndexForFrame(t *testing.T) {
	backend := newMockBackend()
	s := NewPresentationSurface(backend, false, nil, 3)
	_, err := s.Create(metadata.Extent{Width: 640, Height: 480})
	require.NoError(t, err)

	for frame := uint64(0); frame < 20; frame++ {
		idx := s.ImageIndexForFrame(frame, 0)
		assert.Less(t, idx, uint32(3))
		assert.Equal(t, uint32(frame%3), idx)
	}
	assert.Equal(t, uint32(2), s.ImageIndexForFrame(0, -1))
	assert.Equal(t, uint32(1), s.ImageIndexForFrame(5, 2))
}

func TestCyclePresentModeSkipsUnsupportedModes(t *testing.T) {
	// The mock surface supports fifo and mailbox only.
	rig := newTestRig(t, 2, 3, core.HandoffSemaphore)
	require.NoError(t, rig.renderer.DrawFrame(0.016))
	require.Equal(t, metadata.PresentModeMailbox, rig.renderer.Swapchain().PresentMode)

	assert.Equal(t, metadata.PresentModeFifo, rig.renderer.CyclePresentMode())
	require.NoError(t, rig.renderer.DrawFrame(0.016))
	assert.Equal(t, metadata.PresentModeFifo, rig.renderer.Swapchain().PresentMode)
	assert.Equal(t, uint32(3), rig.renderer.Swapchain().ImageCount)

	assert.Equal(t, metadata.PresentModeMailbox, rig.renderer.CyclePresentMode())
	require.NoError(t, rig.renderer.DrawFrame(0.016))
	assert.Equal(t, metadata.PresentModeMailbox, rig.renderer.Swapchain().PresentMode)
}
