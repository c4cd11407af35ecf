package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/foveal/engine/core"
)

type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
}

func BufferCreate(context *VulkanContext, size uint64, usage vk.BufferUsageFlagBits, memoryFlags vk.MemoryPropertyFlagBits) (*VulkanBuffer, error) {
	buffer := &VulkanBuffer{Size: size}
	device := context.Device.LogicalDevice

	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if res := vk.CreateBuffer(device, &createInfo, context.Allocator, &handle); res != vk.Success {
		return nil, vulkanError("vkCreateBuffer", res)
	}
	buffer.Handle = handle

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(device, handle, &requirements)
	memory, err := context.allocateMemory(requirements, memoryFlags)
	if err != nil {
		buffer.Destroy(context)
		return nil, err
	}
	buffer.Memory = memory

	if res := vk.BindBufferMemory(device, handle, memory, 0); res != vk.Success {
		buffer.Destroy(context)
		return nil, vulkanError("vkBindBufferMemory", res)
	}
	return buffer, nil
}

// LoadData copies data into host visible buffer memory.
func (vb *VulkanBuffer) LoadData(context *VulkanContext, data []byte) error {
	if uint64(len(data)) > vb.Size {
		err := core.Errorf("buffer of %d bytes cannot hold %d bytes", vb.Size, len(data))
		core.LogError("%s", err)
		return err
	}
	var ptr unsafe.Pointer
	if res := vk.MapMemory(context.Device.LogicalDevice, vb.Memory, 0, vk.DeviceSize(len(data)), 0, &ptr); res != vk.Success {
		return vulkanError("vkMapMemory", res)
	}
	n := vk.Memcopy(ptr, data)
	vk.UnmapMemory(context.Device.LogicalDevice, vb.Memory)
	if n != len(data) {
		err := core.Errorf("copied %d of %d bytes into buffer", n, len(data))
		core.LogError("%s", err)
		return err
	}
	return nil
}

func (vb *VulkanBuffer) Destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	if vb.Handle != vk.NullBuffer {
		vk.DestroyBuffer(device, vb.Handle, context.Allocator)
		vb.Handle = vk.NullBuffer
	}
	if vb.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, vb.Memory, context.Allocator)
		vb.Memory = vk.NullDeviceMemory
	}
}
