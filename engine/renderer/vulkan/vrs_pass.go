package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/math"
	"github.com/spaghettifunk/foveal/engine/renderer"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

// ShaderLibrary hands out SPIR-V words by shader name, e.g. "forward.vert".
type ShaderLibrary interface {
	Shader(name string) ([]uint32, error)
}

const (
	vrsShaderName = "vrs_img.comp"
	// Must match local_size_x/y in the compute shader.
	vrsWorkgroupSize = 8
)

type vrsPushConstants struct {
	Gaze   [2]float32
	Extent [2]float32
	Radius float32
	Aspect float32
}

type VRSComputePassConfig struct {
	// Compute in semaphore hand-off mode, graphics when relying on queue order.
	Queue       metadata.QueueKind
	Concurrency uint32
	TexelWidth  uint32
	TexelHeight uint32
	// Radius of the full rate region, as a fraction of the window height.
	FovealRadius float32
	Gaze         core.GazeProvider
	Shaders      ShaderLibrary
}

// VRSComputePass writes one shading rate image per frame slot from the
// current gaze point. The images live in the general layout and are shared
// with the graphics queue.
type VRSComputePass struct {
	context  *VulkanContext
	commands *renderer.CommandStreamManager
	config   VRSComputePassConfig

	images      []*VulkanImage
	descriptors *VulkanDescriptorSets
	pipeline    *VulkanPipeline
	width       uint32
	height      uint32
	aspect      float32

	lastGaze metadata.EyeTrackingData
}

func NewVRSComputePass(context *VulkanContext, commands *renderer.CommandStreamManager, config VRSComputePassConfig) *VRSComputePass {
	return &VRSComputePass{
		context:  context,
		commands: commands,
		config:   config,
	}
}

func (p *VRSComputePass) Name() string {
	return "vrs_compute"
}

func (p *VRSComputePass) Queue() metadata.QueueKind {
	return p.config.Queue
}

// Image returns the rate image written for the slot.
func (p *VRSComputePass) Image(slot uint32) *VulkanImage {
	return p.images[slot]
}

func (p *VRSComputePass) TexelSize() (uint32, uint32) {
	return p.config.TexelWidth, p.config.TexelHeight
}

// LastGaze is the gaze point used by the most recent dispatch.
func (p *VRSComputePass) LastGaze() metadata.EyeTrackingData {
	return p.lastGaze
}

// RateImageExtent is the swapchain extent divided by the texel size,
// rounded up.
func RateImageExtent(extent metadata.Extent, texelWidth, texelHeight uint32) (uint32, uint32) {
	return math.DivCeil(extent.Width, texelWidth), math.DivCeil(extent.Height, texelHeight)
}

func (p *VRSComputePass) Create(state *metadata.SwapchainState) error {
	p.width, p.height = RateImageExtent(state.Extent, p.config.TexelWidth, p.config.TexelHeight)
	p.aspect = float32(state.Extent.Width) / float32(state.Extent.Height)

	families := []uint32{p.context.Device.Queue(metadata.QUEUE_KIND_GRAPHICS).Family}
	if f := p.context.Device.Queue(p.config.Queue).Family; f != families[0] {
		families = append(families, f)
	}

	p.images = make([]*VulkanImage, 0, p.config.Concurrency)
	for i := uint32(0); i < p.config.Concurrency; i++ {
		image, err := ImageCreate(p.context, VulkanImageConfig{
			Width:         p.width,
			Height:        p.height,
			Format:        vk.FormatR8Uint,
			Tiling:        vk.ImageTilingOptimal,
			Usage:         vk.ImageUsageFlags(vk.ImageUsageStorageBit),
			MemoryFlags:   vk.MemoryPropertyDeviceLocalBit,
			Aspect:        vk.ImageAspectFlags(vk.ImageAspectColorBit),
			CreateView:    true,
			QueueFamilies: families,
		})
		if err != nil {
			return err
		}
		p.images = append(p.images, image)
	}

	err := p.commands.SubmitOneShot(p.config.Queue, func(buffer *metadata.CommandBuffer) error {
		for _, image := range p.images {
			if err := image.TransitionLayout(commandHandle(buffer), vk.ImageLayoutUndefined, vk.ImageLayoutGeneral); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	descriptors, err := DescriptorSetsCreate(p.context, []vk.DescriptorSetLayoutBinding{{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeStorageImage,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
	}}, p.config.Concurrency)
	if err != nil {
		return err
	}
	p.descriptors = descriptors
	for i, image := range p.images {
		descriptors.WriteImage(p.context, uint32(i), 0, vk.DescriptorTypeStorageImage, image.View, vk.NullSampler, vk.ImageLayoutGeneral)
	}

	code, err := p.config.Shaders.Shader(vrsShaderName)
	if err != nil {
		return err
	}
	stage, err := NewShaderStage(p.context, vrsShaderName, code, vk.ShaderStageComputeBit)
	if err != nil {
		return err
	}
	defer stage.Destroy(p.context)

	pipeline, err := NewComputePipeline(p.context, stage.ShaderStageCreateInfo,
		[]vk.DescriptorSetLayout{descriptors.Layout},
		[]PushConstantRange{{
			Stages: vk.ShaderStageComputeBit,
			Size:   uint32(unsafe.Sizeof(vrsPushConstants{})),
		}})
	if err != nil {
		return err
	}
	p.pipeline = pipeline

	core.LogDebug("vrs images %dx%d (texel %dx%d) for generation %d", p.width, p.height, p.config.TexelWidth, p.config.TexelHeight, state.Generation)
	return nil
}

func (p *VRSComputePass) Record(ctx *renderer.FrameContext, buffer *metadata.CommandBuffer) error {
	p.lastGaze = p.config.Gaze.Gaze()
	constants := vrsPushConstants{
		Gaze:   [2]float32{p.lastGaze.PositionX, p.lastGaze.PositionY},
		Extent: [2]float32{float32(p.width), float32(p.height)},
		Radius: p.config.FovealRadius,
		Aspect: p.aspect,
	}

	cmd := commandHandle(buffer)
	p.pipeline.Bind(buffer)
	p.pipeline.BindDescriptorSet(buffer, p.descriptors.Sets[ctx.Slot])
	vk.CmdPushConstants(cmd, p.pipeline.PipelineLayout, vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		0, uint32(unsafe.Sizeof(constants)), unsafe.Pointer(&constants))
	vk.CmdDispatch(cmd, math.DivCeil(p.width, vrsWorkgroupSize), math.DivCeil(p.height, vrsWorkgroupSize), 1)
	return nil
}

func (p *VRSComputePass) Destroy() error {
	if p.pipeline != nil {
		p.pipeline.Destroy(p.context)
		p.pipeline = nil
	}
	if p.descriptors != nil {
		p.descriptors.Destroy(p.context)
		p.descriptors = nil
	}
	for _, image := range p.images {
		image.Destroy(p.context)
	}
	p.images = nil
	return nil
}
