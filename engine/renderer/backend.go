package renderer

import "github.com/spaghettifunk/foveal/engine/renderer/metadata"

// SwapchainBackend creates and drives the presentation swapchain.
type SwapchainBackend interface {
	QuerySurfaceSupport() (*metadata.SurfaceSupport, error)
	CreateSwapchain(config metadata.SwapchainConfig) (*metadata.SwapchainState, error)
	DestroySwapchain(state *metadata.SwapchainState) error
	AcquireNextImage(state *metadata.SwapchainState, signal *metadata.Semaphore) (uint32, metadata.Status, error)
	Present(state *metadata.SwapchainState, imageIndex uint32, wait []*metadata.Semaphore) (metadata.Status, error)
}

type SyncBackend interface {
	CreateFence(name string, signaled bool) (*metadata.Fence, error)
	// WaitForFence blocks until the fence is signaled or the timeout, in
	// nanoseconds, expires.
	WaitForFence(fence *metadata.Fence, timeout uint64) error
	ResetFence(fence *metadata.Fence) error
	DestroyFence(fence *metadata.Fence)
	CreateSemaphore(name string) (*metadata.Semaphore, error)
	DestroySemaphore(semaphore *metadata.Semaphore)
}

type CommandBackend interface {
	CreateCommandPool(name string, queue metadata.QueueKind, usage metadata.CommandPoolUsage) (*metadata.CommandPool, error)
	DestroyCommandPool(pool *metadata.CommandPool)
	AllocateCommandBuffers(pool *metadata.CommandPool, count uint32) ([]*metadata.CommandBuffer, error)
	FreeCommandBuffers(pool *metadata.CommandPool, buffers []*metadata.CommandBuffer)
	BeginCommandBuffer(buffer *metadata.CommandBuffer, singleUse bool) error
	EndCommandBuffer(buffer *metadata.CommandBuffer) error
	ResetCommandBuffer(buffer *metadata.CommandBuffer) error
	Submit(info *metadata.SubmitInfo) error
	QueueWaitIdle(queue metadata.QueueKind) error
}

type DeviceBackend interface {
	// WaitIdle blocks until every queue of the device is idle.
	WaitIdle() error
}

// RendererBackend is everything the frame loop needs from a graphics API.
type RendererBackend interface {
	SwapchainBackend
	SyncBackend
	CommandBackend
	DeviceBackend
}

// Window is the part of the platform layer the renderer talks to.
type Window interface {
	FramebufferExtent() metadata.Extent
	ShouldClose() bool
	// WaitEvents sleeps until the platform has something to report.
	WaitEvents()
}
