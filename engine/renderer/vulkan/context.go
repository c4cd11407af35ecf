package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/foveal/engine/core"
)

// VulkanContext holds the objects every other Vulkan wrapper needs. It is
// built once by VulkanRenderer.Initialize and passed down explicitly.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugCallback vk.DebugReportCallback

	Device *VulkanDevice

	locks *VulkanLockPool
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	memoryProperties := vc.Device.Memory
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memoryProperties.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

// allocateMemory allocates and returns device memory matching the
// requirements and the property flags.
func (vc *VulkanContext) allocateMemory(requirements vk.MemoryRequirements, flags vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	requirements.Deref()
	index := vc.FindMemoryIndex(requirements.MemoryTypeBits, uint32(flags))
	if index == -1 {
		err := core.NewFatalError("vkAllocateMemory", "required memory type not found")
		core.LogError("%s", err)
		return vk.NullDeviceMemory, err
	}
	var memory vk.DeviceMemory
	err := vc.locks.SafeCall(MemoryManagement, func() error {
		res := vk.AllocateMemory(vc.Device.LogicalDevice, &vk.MemoryAllocateInfo{
			SType:           vk.StructureTypeMemoryAllocateInfo,
			AllocationSize:  requirements.Size,
			MemoryTypeIndex: uint32(index),
		}, vc.Allocator, &memory)
		if res != vk.Success {
			return vulkanError("vkAllocateMemory", res)
		}
		return nil
	})
	return memory, err
}
