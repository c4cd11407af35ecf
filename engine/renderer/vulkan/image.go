package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/foveal/engine/core"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Format vk.Format
	Aspect vk.ImageAspectFlags
	Width  uint32
	Height uint32
}

type VulkanImageConfig struct {
	Width, Height uint32
	Format        vk.Format
	Tiling        vk.ImageTiling
	Usage         vk.ImageUsageFlags
	MemoryFlags   vk.MemoryPropertyFlagBits
	Aspect        vk.ImageAspectFlags
	CreateView    bool
	// QueueFamilies shares the image concurrently between the families when
	// more than one distinct family is given.
	QueueFamilies []uint32
}

func ImageCreate(context *VulkanContext, config VulkanImageConfig) (*VulkanImage, error) {
	image := &VulkanImage{
		Format: config.Format,
		Aspect: config.Aspect,
		Width:  config.Width,
		Height: config.Height,
	}

	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  config.Width,
			Height: config.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        config.Format,
		Tiling:        config.Tiling,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         config.Usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}
	if len(config.QueueFamilies) > 1 {
		createInfo.SharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = uint32(len(config.QueueFamilies))
		createInfo.PQueueFamilyIndices = config.QueueFamilies
	}

	device := context.Device.LogicalDevice
	err := context.locks.SafeCall(ImageManagement, func() error {
		var handle vk.Image
		if res := vk.CreateImage(device, &createInfo, context.Allocator, &handle); res != vk.Success {
			return vulkanError("vkCreateImage", res)
		}
		image.Handle = handle
		return nil
	})
	if err != nil {
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(device, image.Handle, &requirements)
	memory, err := context.allocateMemory(requirements, config.MemoryFlags)
	if err != nil {
		image.Destroy(context)
		return nil, err
	}
	image.Memory = memory

	if res := vk.BindImageMemory(device, image.Handle, image.Memory, 0); res != vk.Success {
		image.Destroy(context)
		return nil, vulkanError("vkBindImageMemory", res)
	}

	if config.CreateView {
		view, err := createImageView(context, image.Handle, config.Format, config.Aspect)
		if err != nil {
			image.Destroy(context)
			return nil, err
		}
		image.View = view
	}
	return image, nil
}

func createImageView(context *VulkanContext, image vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(context.Device.LogicalDevice, &viewInfo, context.Allocator, &view); res != vk.Success {
		return vk.NullImageView, vulkanError("vkCreateImageView", res)
	}
	return view, nil
}

// Destroy releases the view, the image and its memory. Safe to call on a
// partially created image.
func (vi *VulkanImage) Destroy(context *VulkanContext) {
	device := context.Device.LogicalDevice
	_ = context.locks.SafeCall(ImageManagement, func() error {
		if vi.View != vk.NullImageView {
			vk.DestroyImageView(device, vi.View, context.Allocator)
			vi.View = vk.NullImageView
		}
		if vi.Handle != vk.NullImage {
			vk.DestroyImage(device, vi.Handle, context.Allocator)
			vi.Handle = vk.NullImage
		}
		if vi.Memory != vk.NullDeviceMemory {
			vk.FreeMemory(device, vi.Memory, context.Allocator)
			vi.Memory = vk.NullDeviceMemory
		}
		return nil
	})
}

type layoutTransition struct {
	srcAccess vk.AccessFlagBits
	dstAccess vk.AccessFlagBits
	srcStage  vk.PipelineStageFlagBits
	dstStage  vk.PipelineStageFlagBits
}

var layoutTransitions = map[[2]vk.ImageLayout]layoutTransition{
	{vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal}: {
		dstAccess: vk.AccessTransferWriteBit,
		srcStage:  vk.PipelineStageTopOfPipeBit,
		dstStage:  vk.PipelineStageTransferBit,
	},
	{vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal}: {
		srcAccess: vk.AccessTransferWriteBit,
		dstAccess: vk.AccessShaderReadBit,
		srcStage:  vk.PipelineStageTransferBit,
		dstStage:  vk.PipelineStageFragmentShaderBit,
	},
	{vk.ImageLayoutUndefined, vk.ImageLayoutGeneral}: {
		dstAccess: vk.AccessShaderWriteBit | vk.AccessShaderReadBit,
		srcStage:  vk.PipelineStageTopOfPipeBit,
		dstStage:  vk.PipelineStageComputeShaderBit,
	},
}

// TransitionLayout records a layout transition barrier for the image.
func (vi *VulkanImage) TransitionLayout(cmd vk.CommandBuffer, oldLayout, newLayout vk.ImageLayout) error {
	t, ok := layoutTransitions[[2]vk.ImageLayout{oldLayout, newLayout}]
	if !ok {
		err := core.Errorf("unsupported layout transition %d -> %d", oldLayout, newLayout)
		core.LogError("%s", err)
		return err
	}
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(t.srcStage),
		vk.PipelineStageFlags(t.dstStage),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(t.srcAccess),
			DstAccessMask:       vk.AccessFlags(t.dstAccess),
			OldLayout:           oldLayout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               vi.Handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vi.Aspect,
				LevelCount: 1,
				LayerCount: 1,
			},
		}})
	return nil
}

// CopyFromBuffer records a copy of the whole buffer into the image, which
// must be in the transfer destination layout.
func (vi *VulkanImage) CopyFromBuffer(cmd vk.CommandBuffer, buffer vk.Buffer) {
	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{
			Width:  vi.Width,
			Height: vi.Height,
			Depth:  1,
		},
	}
	vk.CmdCopyBufferToImage(cmd, buffer, vi.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}
