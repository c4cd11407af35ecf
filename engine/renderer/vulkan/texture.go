package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

// VulkanTexture is a sampled RGBA8 image.
type VulkanTexture struct {
	Name    string
	Image   *VulkanImage
	Sampler vk.Sampler
}

// UploadTexture copies the pixels into a device local image through a
// staging buffer. The copy runs on the transfer queue, the final transition
// to the shader read layout on the graphics queue.
func UploadTexture(context *VulkanContext, commands *renderer.CommandStreamManager, data *metadata.TextureData) (*VulkanTexture, error) {
	size := uint64(data.Width) * uint64(data.Height) * 4
	if data.Width == 0 || data.Height == 0 || uint64(len(data.Pixels)) != size {
		err := core.Errorf("texture '%s': %d bytes of pixels for %dx%d", data.Name, len(data.Pixels), data.Width, data.Height)
		core.LogError("%s", err)
		return nil, err
	}

	staging, err := BufferCreate(context, size,
		vk.BufferUsageTransferSrcBit,
		vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy(context)
	if err := staging.LoadData(context, data.Pixels); err != nil {
		return nil, err
	}

	image, err := ImageCreate(context, VulkanImageConfig{
		Width:         data.Width,
		Height:        data.Height,
		Format:        vk.FormatR8g8b8a8Unorm,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit),
		MemoryFlags:   vk.MemoryPropertyDeviceLocalBit,
		Aspect:        vk.ImageAspectFlags(vk.ImageAspectColorBit),
		CreateView:    true,
		QueueFamilies: context.Device.QueueFamilies(),
	})
	if err != nil {
		return nil, err
	}

	err = commands.SubmitOneShot(metadata.QUEUE_KIND_TRANSFER, func(buffer *metadata.CommandBuffer) error {
		cmd := commandHandle(buffer)
		if err := image.TransitionLayout(cmd, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal); err != nil {
			return err
		}
		image.CopyFromBuffer(cmd, staging.Handle)
		return nil
	})
	if err == nil {
		err = commands.SubmitOneShot(metadata.QUEUE_KIND_GRAPHICS, func(buffer *metadata.CommandBuffer) error {
			return image.TransitionLayout(commandHandle(buffer), vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
		})
	}
	if err != nil {
		image.Destroy(context)
		return nil, err
	}

	sampler, err := createSampler(context)
	if err != nil {
		image.Destroy(context)
		return nil, err
	}

	core.LogDebug("texture '%s' uploaded (%dx%d)", data.Name, data.Width, data.Height)
	return &VulkanTexture{
		Name:    data.Name,
		Image:   image,
		Sampler: sampler,
	}, nil
}

func createSampler(context *VulkanContext) (vk.Sampler, error) {
	props := context.Device.Properties
	props.Deref()
	props.Limits.Deref()

	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.True,
		MaxAnisotropy:           props.Limits.MaxSamplerAnisotropy,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
	}
	var sampler vk.Sampler
	if res := vk.CreateSampler(context.Device.LogicalDevice, &samplerInfo, context.Allocator, &sampler); res != vk.Success {
		return vk.NullSampler, vulkanError("vkCreateSampler", res)
	}
	return sampler, nil
}

func (t *VulkanTexture) Destroy(context *VulkanContext) {
	if t.Sampler != vk.NullSampler {
		vk.DestroySampler(context.Device.LogicalDevice, t.Sampler, context.Allocator)
		t.Sampler = vk.NullSampler
	}
	if t.Image != nil {
		t.Image.Destroy(context)
		t.Image = nil
	}
}
