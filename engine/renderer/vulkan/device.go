package vulkan

import (
	"fmt"
	"runtime"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

type VulkanQueue struct {
	Family uint32
	Handle vk.Queue
}

type VulkanDevice struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device

	GraphicsQueue VulkanQueue
	PresentQueue  VulkanQueue
	ComputeQueue  VulkanQueue
	TransferQueue VulkanQueue

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format
}

// Queue returns the queue serving the given kind of work.
func (d *VulkanDevice) Queue(kind metadata.QueueKind) VulkanQueue {
	switch kind {
	case metadata.QUEUE_KIND_COMPUTE:
		return d.ComputeQueue
	case metadata.QUEUE_KIND_TRANSFER:
		return d.TransferQueue
	}
	return d.GraphicsQueue
}

// QueueFamilies lists the distinct families in use, graphics first.
func (d *VulkanDevice) QueueFamilies() []uint32 {
	families := []uint32{d.GraphicsQueue.Family}
	for _, f := range []uint32{d.PresentQueue.Family, d.ComputeQueue.Family, d.TransferQueue.Family} {
		found := false
		for _, have := range families {
			if have == f {
				found = true
				break
			}
		}
		if !found {
			families = append(families, f)
		}
	}
	return families
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	Compute              bool
	Transfer             bool
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
	DiscreteGPU          bool
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
	ComputeFamilyIndex  int32
	TransferFamilyIndex int32
}

func DeviceCreate(context *VulkanContext) error {
	if err := SelectPhysicalDevice(context); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")

	// NOTE: Do not create additional queues for shared indices.
	families := context.Device.QueueFamilies()
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, family := range families {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: vk.True,
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	available, err := deviceExtensions(context.Device.PhysicalDevice)
	if err != nil {
		return err
	}
	if _, ok := available["VK_KHR_portability_subset"]; ok {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var device vk.Device
	if res := vk.CreateDevice(context.Device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device); res != vk.Success {
		return vulkanError("vkCreateDevice", res)
	}
	context.Device.LogicalDevice = device
	core.LogInfo("Logical device created.")

	for _, q := range []*VulkanQueue{
		&context.Device.GraphicsQueue,
		&context.Device.PresentQueue,
		&context.Device.ComputeQueue,
		&context.Device.TransferQueue,
	} {
		var handle vk.Queue
		vk.GetDeviceQueue(device, q.Family, 0, &handle)
		q.Handle = handle
	}
	core.LogInfo("Queues obtained.")

	if !DeviceDetectDepthFormat(context.Device) {
		err := core.NewFatalError("depth format detection", "no supported depth format")
		core.LogError("%s", err)
		return err
	}
	return nil
}

func DeviceDestroy(context *VulkanContext) {
	context.Device.GraphicsQueue.Handle = nil
	context.Device.PresentQueue.Handle = nil
	context.Device.ComputeQueue.Handle = nil
	context.Device.TransferQueue.Handle = nil

	core.LogInfo("Destroying logical device...")
	if context.Device.LogicalDevice != nil {
		vk.DestroyDevice(context.Device.LogicalDevice, context.Allocator)
		context.Device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	context.Device.PhysicalDevice = nil
}

// DeviceQuerySwapchainSupport reads the surface capabilities, formats and
// present modes of a physical device.
func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface) (*metadata.SurfaceSupport, error) {
	var capabilities vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &capabilities); res != vk.Success {
		return nil, vulkanError("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", res)
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()

	support := &metadata.SurfaceSupport{
		Capabilities: metadata.SurfaceCapabilities{
			MinImageCount:  capabilities.MinImageCount,
			MaxImageCount:  capabilities.MaxImageCount,
			CurrentExtent:  metadata.Extent{Width: capabilities.CurrentExtent.Width, Height: capabilities.CurrentExtent.Height},
			MinImageExtent: metadata.Extent{Width: capabilities.MinImageExtent.Width, Height: capabilities.MinImageExtent.Height},
			MaxImageExtent: metadata.Extent{Width: capabilities.MaxImageExtent.Width, Height: capabilities.MaxImageExtent.Height},
		},
	}

	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil); res != vk.Success {
		return nil, vulkanError("vkGetPhysicalDeviceSurfaceFormatsKHR", res)
	}
	if formatCount != 0 {
		formats := make([]vk.SurfaceFormat, formatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, formats); res != vk.Success {
			return nil, vulkanError("vkGetPhysicalDeviceSurfaceFormatsKHR", res)
		}
		for _, f := range formats[:formatCount] {
			f.Deref()
			support.Formats = append(support.Formats, metadata.SurfaceFormat{
				Format:     metadata.ImageFormat(f.Format),
				ColorSpace: metadata.ColorSpace(f.ColorSpace),
			})
		}
	}

	var modeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, nil); res != vk.Success {
		return nil, vulkanError("vkGetPhysicalDeviceSurfacePresentModesKHR", res)
	}
	if modeCount != 0 {
		modes := make([]vk.PresentMode, modeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &modeCount, modes); res != vk.Success {
			return nil, vulkanError("vkGetPhysicalDeviceSurfacePresentModesKHR", res)
		}
		for _, m := range modes[:modeCount] {
			support.PresentModes = append(support.PresentModes, metadata.PresentMode(m))
		}
	}
	return support, nil
}

func DeviceDetectDepthFormat(device *VulkanDevice) bool {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(device.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if properties.LinearTilingFeatures&flags == flags || properties.OptimalTilingFeatures&flags == flags {
			device.DepthFormat = candidate
			return true
		}
	}
	device.DepthFormat = vk.FormatUndefined
	return false
}

func SelectPhysicalDevice(context *VulkanContext) error {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return vulkanError("vkEnumeratePhysicalDevices", res)
	}
	if physicalDeviceCount == 0 {
		err := core.NewFatalError("physical device selection", "no devices which support Vulkan were found")
		core.LogError("%s", err)
		return err
	}

	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return vulkanError("vkEnumeratePhysicalDevices", res)
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		Compute:              true,
		Transfer:             true,
		SamplerAnisotropy:    true,
		DiscreteGPU:          false,
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}

	// Prefer a discrete GPU, but take whatever meets the requirements otherwise.
	passes := []bool{true, false}
	if runtime.GOOS == "darwin" {
		passes = []bool{false}
	}
	for _, discrete := range passes {
		requirements.DiscreteGPU = discrete
		for _, candidate := range physicalDevices {
			var properties vk.PhysicalDeviceProperties
			vk.GetPhysicalDeviceProperties(candidate, &properties)
			properties.Deref()

			var features vk.PhysicalDeviceFeatures
			vk.GetPhysicalDeviceFeatures(candidate, &features)
			features.Deref()

			var memory vk.PhysicalDeviceMemoryProperties
			vk.GetPhysicalDeviceMemoryProperties(candidate, &memory)
			memory.Deref()

			queueInfo, ok := PhysicalDeviceMeetsRequirements(candidate, context.Surface, &properties, &features, &requirements)
			if !ok {
				continue
			}

			logDevice(&properties, &memory)
			context.Device.PhysicalDevice = candidate
			context.Device.GraphicsQueue.Family = uint32(queueInfo.GraphicsFamilyIndex)
			context.Device.PresentQueue.Family = uint32(queueInfo.PresentFamilyIndex)
			context.Device.ComputeQueue.Family = uint32(queueInfo.ComputeFamilyIndex)
			context.Device.TransferQueue.Family = uint32(queueInfo.TransferFamilyIndex)
			context.Device.Properties = properties
			context.Device.Features = features
			context.Device.Memory = memory
			core.LogInfo("Physical device selected.")
			return nil
		}
	}

	err := core.NewFatalError("physical device selection", "no physical devices were found which meet the requirements")
	core.LogError("%s", err)
	return err
}

func logDevice(properties *vk.PhysicalDeviceProperties, memory *vk.PhysicalDeviceMemoryProperties) {
	core.LogInfo("Selected device: '%s'.", vulkanString(properties.DeviceName[:]))
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}

	core.LogInfo(
		"GPU Driver version: %d.%d.%d",
		vk.Version(properties.DriverVersion).Major(),
		vk.Version(properties.DriverVersion).Minor(),
		vk.Version(properties.DriverVersion).Patch(),
	)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch(),
	)

	for j := uint32(0); j < memory.MemoryHeapCount; j++ {
		heap := memory.MemoryHeaps[j]
		heap.Deref()
		sizeGib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", sizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", sizeGib)
		}
	}
}

func deviceExtensions(device vk.PhysicalDevice) (map[string]struct{}, error) {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success {
		return nil, vulkanError("vkEnumerateDeviceExtensionProperties", res)
	}
	out := make(map[string]struct{}, count)
	if count == 0 {
		return out, nil
	}
	extensions := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, extensions); res != vk.Success {
		return nil, vulkanError("vkEnumerateDeviceExtensionProperties", res)
	}
	for _, e := range extensions[:count] {
		e.Deref()
		out[vulkanString(e.ExtensionName[:])] = struct{}{}
	}
	return out, nil
}

func PhysicalDeviceMeetsRequirements(
	device vk.PhysicalDevice,
	surface vk.Surface,
	properties *vk.PhysicalDeviceProperties,
	features *vk.PhysicalDeviceFeatures,
	requirements *VulkanPhysicalDeviceRequirements,
) (VulkanPhysicalDeviceQueueFamilyInfo, bool) {
	info := VulkanPhysicalDeviceQueueFamilyInfo{
		GraphicsFamilyIndex: -1,
		PresentFamilyIndex:  -1,
		ComputeFamilyIndex:  -1,
		TransferFamilyIndex: -1,
	}
	name := vulkanString(properties.DeviceName[:])

	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogInfo("Device '%s' is not a discrete GPU, and one is required. Skipping.", name)
		return info, false
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	minTransferScore := 255
	for i := uint32(0); i < queueFamilyCount; i++ {
		queueFamilies[i].Deref()
		flags := vk.QueueFlagBits(queueFamilies[i].QueueFlags)
		score := 0

		if flags&vk.QueueGraphicsBit != 0 {
			if info.GraphicsFamilyIndex == -1 {
				info.GraphicsFamilyIndex = int32(i)
			}
			score++
		}

		// A compute family without graphics runs alongside the graphics queue.
		if flags&vk.QueueComputeBit != 0 {
			if info.ComputeFamilyIndex == -1 || flags&vk.QueueGraphicsBit == 0 {
				info.ComputeFamilyIndex = int32(i)
			}
			score++
		}

		// Take the index if it is the current lowest. This increases the
		// likelihood that it is a dedicated transfer queue.
		if flags&vk.QueueTransferBit != 0 && score <= minTransferScore {
			minTransferScore = score
			info.TransferFamilyIndex = int32(i)
		}

		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, i, surface, &supportsPresent); res != vk.Success {
			return info, false
		}
		if supportsPresent == vk.True && (info.PresentFamilyIndex == -1 || int32(i) == info.GraphicsFamilyIndex) {
			info.PresentFamilyIndex = int32(i)
		}
	}

	core.LogInfo("Graphics | Present | Compute | Transfer | Name")
	core.LogInfo("%8d | %7d | %7d | %8d | %s",
		info.GraphicsFamilyIndex,
		info.PresentFamilyIndex,
		info.ComputeFamilyIndex,
		info.TransferFamilyIndex,
		name)

	if (requirements.Graphics && info.GraphicsFamilyIndex == -1) ||
		(requirements.Present && info.PresentFamilyIndex == -1) ||
		(requirements.Compute && info.ComputeFamilyIndex == -1) ||
		(requirements.Transfer && info.TransferFamilyIndex == -1) {
		core.LogInfo("Device '%s' does not meet queue requirements, skipping.", name)
		return info, false
	}

	support, err := DeviceQuerySwapchainSupport(device, surface)
	if err != nil || len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		core.LogInfo("Required swapchain support not present, skipping device.")
		return info, false
	}

	if len(requirements.DeviceExtensionNames) > 0 {
		available, err := deviceExtensions(device)
		if err != nil {
			return info, false
		}
		for _, required := range requirements.DeviceExtensionNames {
			if _, ok := available[required]; !ok {
				core.LogInfo("Required extension not found: '%s', skipping device.", required)
				return info, false
			}
		}
	}

	if requirements.SamplerAnisotropy && features.SamplerAnisotropy == vk.False {
		core.LogInfo("Device does not support samplerAnisotropy, skipping.")
		return info, false
	}

	core.LogDebug("Device meets all requirements: %s", fmt.Sprintf("%+v", info))
	return info, true
}
