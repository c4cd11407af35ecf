package vulkan

import (
	stdmath "math"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

// VulkanSwapchain is the backend data behind a metadata.SwapchainState.
type VulkanSwapchain struct {
	Handle vk.Swapchain
	Format vk.SurfaceFormat
	Extent vk.Extent2D
	Images []vk.Image
	Views  []vk.ImageView
}

func swapchainData(state *metadata.SwapchainState) *VulkanSwapchain {
	if state == nil {
		return nil
	}
	sc, _ := state.InternalData.(*VulkanSwapchain)
	return sc
}

func (vr *VulkanRenderer) QuerySurfaceSupport() (*metadata.SurfaceSupport, error) {
	return DeviceQuerySwapchainSupport(vr.context.Device.PhysicalDevice, vr.context.Surface)
}

func (vr *VulkanRenderer) CreateSwapchain(config metadata.SwapchainConfig) (*metadata.SwapchainState, error) {
	context := vr.context
	device := context.Device

	var capabilities vk.SurfaceCapabilities
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(device.PhysicalDevice, context.Surface, &capabilities); res != vk.Success {
		return nil, vulkanError("vkGetPhysicalDeviceSurfaceCapabilitiesKHR", res)
	}
	capabilities.Deref()

	swapchain := &VulkanSwapchain{
		Format: vk.SurfaceFormat{
			Format:     vk.Format(config.Format.Format),
			ColorSpace: vk.ColorSpace(config.Format.ColorSpace),
		},
		Extent: vk.Extent2D{
			Width:  config.Extent.Width,
			Height: config.Extent.Height,
		},
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    config.ImageCount,
		ImageFormat:      swapchain.Format.Format,
		ImageColorSpace:  swapchain.Format.ColorSpace,
		ImageExtent:      swapchain.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vk.PresentMode(config.PresentMode),
		Clipped:          vk.True,
	}

	// Setup the queue family indices
	if device.GraphicsQueue.Family != device.PresentQueue.Family {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{
			device.GraphicsQueue.Family,
			device.PresentQueue.Family,
		}
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	err := context.locks.SafeCall(SwapchainManagement, func() error {
		var handle vk.Swapchain
		if res := vk.CreateSwapchain(device.LogicalDevice, &createInfo, context.Allocator, &handle); res != vk.Success {
			return vulkanError("vkCreateSwapchainKHR", res)
		}
		swapchain.Handle = handle

		var imageCount uint32
		if res := vk.GetSwapchainImages(device.LogicalDevice, handle, &imageCount, nil); res != vk.Success {
			return vulkanError("vkGetSwapchainImagesKHR", res)
		}
		swapchain.Images = make([]vk.Image, imageCount)
		if res := vk.GetSwapchainImages(device.LogicalDevice, handle, &imageCount, swapchain.Images); res != vk.Success {
			return vulkanError("vkGetSwapchainImagesKHR", res)
		}
		return nil
	})
	if err != nil {
		vr.destroySwapchain(swapchain)
		return nil, err
	}

	swapchain.Views = make([]vk.ImageView, 0, len(swapchain.Images))
	for _, image := range swapchain.Images {
		view, err := createImageView(context, image, swapchain.Format.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if err != nil {
			vr.destroySwapchain(swapchain)
			return nil, err
		}
		swapchain.Views = append(swapchain.Views, view)
	}

	state := &metadata.SwapchainState{
		Format:       config.Format,
		PresentMode:  config.PresentMode,
		Extent:       config.Extent,
		ImageCount:   uint32(len(swapchain.Images)),
		InternalData: swapchain,
	}
	for i := range swapchain.Images {
		state.Images = append(state.Images, swapchain.Images[i])
		state.ImageViews = append(state.ImageViews, swapchain.Views[i])
	}

	core.LogDebug("Swapchain created: %s, %d images.", config.Extent, state.ImageCount)
	return state, nil
}

// DestroySwapchain releases the image views first and the swapchain last.
// The images themselves are owned by the swapchain.
func (vr *VulkanRenderer) DestroySwapchain(state *metadata.SwapchainState) error {
	sc := swapchainData(state)
	if sc == nil {
		return nil
	}
	vr.destroySwapchain(sc)
	state.InternalData = nil
	state.Images = nil
	state.ImageViews = nil
	return nil
}

func (vr *VulkanRenderer) destroySwapchain(sc *VulkanSwapchain) {
	device := vr.context.Device.LogicalDevice
	_ = vr.context.locks.SafeCall(SwapchainManagement, func() error {
		for _, view := range sc.Views {
			vk.DestroyImageView(device, view, vr.context.Allocator)
		}
		sc.Views = nil
		if sc.Handle != vk.NullSwapchain {
			vk.DestroySwapchain(device, sc.Handle, vr.context.Allocator)
			sc.Handle = vk.NullSwapchain
		}
		sc.Images = nil
		return nil
	})
}

func (vr *VulkanRenderer) AcquireNextImage(state *metadata.SwapchainState, signal *metadata.Semaphore) (uint32, metadata.Status, error) {
	sc := swapchainData(state)
	if sc == nil {
		return 0, metadata.StatusOutOfDate, nil
	}
	semaphore := vk.NullSemaphore
	if signal != nil {
		semaphore = semaphoreHandle(signal)
	}

	var index uint32
	res := vk.AcquireNextImage(vr.context.Device.LogicalDevice, sc.Handle, stdmath.MaxUint64, semaphore, vk.NullFence, &index)
	switch res {
	case vk.Success:
		return index, metadata.StatusSuccess, nil
	case vk.Suboptimal:
		core.LogDebug("vkAcquireNextImageKHR returned VK_SUBOPTIMAL_KHR")
		return index, metadata.StatusSuboptimal, nil
	case vk.ErrorOutOfDate:
		core.LogDebug("vkAcquireNextImageKHR returned VK_ERROR_OUT_OF_DATE_KHR")
		return 0, metadata.StatusOutOfDate, nil
	}
	return 0, metadata.StatusOutOfDate, vulkanError("vkAcquireNextImageKHR", res)
}

func (vr *VulkanRenderer) Present(state *metadata.SwapchainState, imageIndex uint32, wait []*metadata.Semaphore) (metadata.Status, error) {
	sc := swapchainData(state)
	if sc == nil {
		return metadata.StatusOutOfDate, nil
	}
	waits := make([]vk.Semaphore, 0, len(wait))
	for _, s := range wait {
		waits = append(waits, semaphoreHandle(s))
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waits)),
		PWaitSemaphores:    waits,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.Handle},
		PImageIndices:      []uint32{imageIndex},
	}

	queue := vr.context.Device.PresentQueue
	var res vk.Result
	_ = vr.context.locks.SafeQueueCall(queue.Family, func() error {
		res = vk.QueuePresent(queue.Handle, &presentInfo)
		return nil
	})
	switch res {
	case vk.Success:
		return metadata.StatusSuccess, nil
	case vk.Suboptimal:
		return metadata.StatusSuboptimal, nil
	case vk.ErrorOutOfDate:
		return metadata.StatusOutOfDate, nil
	}
	return metadata.StatusOutOfDate, vulkanError("vkQueuePresentKHR", res)
}
