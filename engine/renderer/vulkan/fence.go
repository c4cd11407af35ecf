package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

func fenceHandle(fence *metadata.Fence) vk.Fence {
	if fence == nil {
		return vk.NullFence
	}
	h, _ := fence.InternalData.(vk.Fence)
	return h
}

func semaphoreHandle(semaphore *metadata.Semaphore) vk.Semaphore {
	h, _ := semaphore.InternalData.(vk.Semaphore)
	return h
}

func (vr *VulkanRenderer) CreateFence(name string, signaled bool) (*metadata.Fence, error) {
	fence := &metadata.Fence{
		Name: name,
		// Make sure to signal the fence if required.
		IsSignaled: signaled,
	}

	createInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		createInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var handle vk.Fence
	if res := vk.CreateFence(vr.context.Device.LogicalDevice, &createInfo, vr.context.Allocator, &handle); res != vk.Success {
		return nil, vulkanError("vkCreateFence", res)
	}
	fence.InternalData = handle
	return fence, nil
}

func (vr *VulkanRenderer) WaitForFence(fence *metadata.Fence, timeout uint64) error {
	// If already signaled, do not wait.
	if fence.IsSignaled {
		return nil
	}
	res := vk.WaitForFences(vr.context.Device.LogicalDevice, 1, []vk.Fence{fenceHandle(fence)}, vk.True, timeout)
	switch res {
	case vk.Success:
		fence.IsSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("vkWaitForFences on %s timed out", fence.Name)
	}
	return vulkanError("vkWaitForFences", res)
}

func (vr *VulkanRenderer) ResetFence(fence *metadata.Fence) error {
	if res := vk.ResetFences(vr.context.Device.LogicalDevice, 1, []vk.Fence{fenceHandle(fence)}); res != vk.Success {
		return vulkanError("vkResetFences", res)
	}
	fence.IsSignaled = false
	return nil
}

func (vr *VulkanRenderer) DestroyFence(fence *metadata.Fence) {
	if h := fenceHandle(fence); h != vk.NullFence {
		vk.DestroyFence(vr.context.Device.LogicalDevice, h, vr.context.Allocator)
	}
	fence.InternalData = nil
	fence.IsSignaled = false
}

func (vr *VulkanRenderer) CreateSemaphore(name string) (*metadata.Semaphore, error) {
	createInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var handle vk.Semaphore
	if res := vk.CreateSemaphore(vr.context.Device.LogicalDevice, &createInfo, vr.context.Allocator, &handle); res != vk.Success {
		return nil, vulkanError("vkCreateSemaphore", res)
	}
	return &metadata.Semaphore{Name: name, InternalData: handle}, nil
}

func (vr *VulkanRenderer) DestroySemaphore(semaphore *metadata.Semaphore) {
	if h := semaphoreHandle(semaphore); h != vk.NullSemaphore {
		vk.DestroySemaphore(vr.context.Device.LogicalDevice, h, vr.context.Allocator)
	}
	semaphore.InternalData = nil
}
