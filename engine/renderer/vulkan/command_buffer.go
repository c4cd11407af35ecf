package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

func poolHandle(pool *metadata.CommandPool) vk.CommandPool {
	h, _ := pool.InternalData.(vk.CommandPool)
	return h
}

func commandHandle(buffer *metadata.CommandBuffer) vk.CommandBuffer {
	h, _ := buffer.InternalData.(vk.CommandBuffer)
	return h
}

func (vr *VulkanRenderer) CreateCommandPool(name string, queue metadata.QueueKind, usage metadata.CommandPoolUsage) (*metadata.CommandPool, error) {
	createInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: vr.context.Device.Queue(queue).Family,
	}
	switch usage {
	case metadata.COMMAND_POOL_USAGE_TRANSIENT:
		createInfo.Flags = vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit)
	default:
		createInfo.Flags = vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit)
	}

	var handle vk.CommandPool
	err := vr.context.locks.SafeCall(CommandPoolManagement, func() error {
		if res := vk.CreateCommandPool(vr.context.Device.LogicalDevice, &createInfo, vr.context.Allocator, &handle); res != vk.Success {
			return vulkanError("vkCreateCommandPool", res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &metadata.CommandPool{
		Name:         name,
		Queue:        queue,
		Usage:        usage,
		InternalData: handle,
	}, nil
}

func (vr *VulkanRenderer) DestroyCommandPool(pool *metadata.CommandPool) {
	_ = vr.context.locks.SafeCall(CommandPoolManagement, func() error {
		if h := poolHandle(pool); h != vk.NullCommandPool {
			vk.DestroyCommandPool(vr.context.Device.LogicalDevice, h, vr.context.Allocator)
		}
		pool.InternalData = nil
		return nil
	})
}

func (vr *VulkanRenderer) AllocateCommandBuffers(pool *metadata.CommandPool, count uint32) ([]*metadata.CommandBuffer, error) {
	handles := make([]vk.CommandBuffer, count)
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        poolHandle(pool),
		CommandBufferCount: count,
		Level:              vk.CommandBufferLevelPrimary,
	}
	err := vr.context.locks.SafeCall(CommandPoolManagement, func() error {
		if res := vk.AllocateCommandBuffers(vr.context.Device.LogicalDevice, &allocateInfo, handles); res != vk.Success {
			return vulkanError("vkAllocateCommandBuffers", res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]*metadata.CommandBuffer, count)
	for i := range handles {
		out[i] = &metadata.CommandBuffer{
			State:        metadata.COMMAND_BUFFER_STATE_READY,
			Pool:         pool,
			InternalData: handles[i],
		}
	}
	return out, nil
}

func (vr *VulkanRenderer) FreeCommandBuffers(pool *metadata.CommandPool, buffers []*metadata.CommandBuffer) {
	if len(buffers) == 0 {
		return
	}
	handles := make([]vk.CommandBuffer, 0, len(buffers))
	for _, b := range buffers {
		handles = append(handles, commandHandle(b))
		b.InternalData = nil
	}
	_ = vr.context.locks.SafeCall(CommandPoolManagement, func() error {
		vk.FreeCommandBuffers(vr.context.Device.LogicalDevice, poolHandle(pool), uint32(len(handles)), handles)
		return nil
	})
}

func (vr *VulkanRenderer) BeginCommandBuffer(buffer *metadata.CommandBuffer, singleUse bool) error {
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if singleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if res := vk.BeginCommandBuffer(commandHandle(buffer), beginInfo); res != vk.Success {
		return vulkanError("vkBeginCommandBuffer", res)
	}
	buffer.State = metadata.COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (vr *VulkanRenderer) EndCommandBuffer(buffer *metadata.CommandBuffer) error {
	if res := vk.EndCommandBuffer(commandHandle(buffer)); res != vk.Success {
		return vulkanError("vkEndCommandBuffer", res)
	}
	buffer.State = metadata.COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (vr *VulkanRenderer) ResetCommandBuffer(buffer *metadata.CommandBuffer) error {
	if res := vk.ResetCommandBuffer(commandHandle(buffer), 0); res != vk.Success {
		return vulkanError("vkResetCommandBuffer", res)
	}
	buffer.State = metadata.COMMAND_BUFFER_STATE_READY
	return nil
}

// Submit hands the buffers to the queue of the submission. A submission
// without command buffers only waits and signals.
func (vr *VulkanRenderer) Submit(info *metadata.SubmitInfo) error {
	submitInfo := vk.SubmitInfo{
		SType: vk.StructureTypeSubmitInfo,
	}

	if len(info.CommandBuffers) > 0 {
		buffers := make([]vk.CommandBuffer, 0, len(info.CommandBuffers))
		for _, b := range info.CommandBuffers {
			buffers = append(buffers, commandHandle(b))
		}
		submitInfo.CommandBufferCount = uint32(len(buffers))
		submitInfo.PCommandBuffers = buffers
	}

	if len(info.Waits) > 0 {
		waits := make([]vk.Semaphore, 0, len(info.Waits))
		stages := make([]vk.PipelineStageFlags, 0, len(info.Waits))
		for _, w := range info.Waits {
			waits = append(waits, semaphoreHandle(w.Semaphore))
			stages = append(stages, vk.PipelineStageFlags(w.Stage))
		}
		submitInfo.WaitSemaphoreCount = uint32(len(waits))
		submitInfo.PWaitSemaphores = waits
		submitInfo.PWaitDstStageMask = stages
	}

	if len(info.Signals) > 0 {
		signals := make([]vk.Semaphore, 0, len(info.Signals))
		for _, s := range info.Signals {
			signals = append(signals, semaphoreHandle(s))
		}
		submitInfo.SignalSemaphoreCount = uint32(len(signals))
		submitInfo.PSignalSemaphores = signals
	}

	queue := vr.context.Device.Queue(info.Queue)
	return vr.context.locks.SafeQueueCall(queue.Family, func() error {
		if res := vk.QueueSubmit(queue.Handle, 1, []vk.SubmitInfo{submitInfo}, fenceHandle(info.Fence)); res != vk.Success {
			return vulkanError("vkQueueSubmit", res)
		}
		if info.Fence != nil {
			info.Fence.IsSignaled = false
		}
		return nil
	})
}

func (vr *VulkanRenderer) QueueWaitIdle(kind metadata.QueueKind) error {
	queue := vr.context.Device.Queue(kind)
	return vr.context.locks.SafeQueueCall(queue.Family, func() error {
		if res := vk.QueueWaitIdle(queue.Handle); res != vk.Success {
			return vulkanError("vkQueueWaitIdle", res)
		}
		return nil
	})
}
