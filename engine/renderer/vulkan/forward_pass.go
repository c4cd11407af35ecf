package vulkan

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/renderer"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

type forwardPushConstants struct {
	Transform mgl32.Mat4
	TexelSize [2]float32
	Time      float32
	Overlay   float32
}

type ForwardPassConfig struct {
	VertexShader   string
	FragmentShader string
	// Vertices are generated in the vertex shader from gl_VertexIndex.
	VertexCount uint32
	ClearColor  [4]float32
	Concurrency uint32
	// Binds a sampled texture at binding 0.
	Textured bool
	// Binds the rate image of the slot at binding 1, nil renders at full rate.
	VRS     *VRSComputePass
	Overlay bool
	// Transform returns the matrix pushed to the vertex shader.
	Transform func(ctx *renderer.FrameContext, aspect float32) mgl32.Mat4
	Shaders   ShaderLibrary
}

// ForwardPass is the primary pass: a single color and depth render pass
// drawn into the acquired swapchain image.
type ForwardPass struct {
	context  *VulkanContext
	commands *renderer.CommandStreamManager
	config   ForwardPassConfig

	renderpass   *VulkanRenderpass
	depth        *VulkanImage
	framebuffers []*VulkanFramebuffer
	descriptors  *VulkanDescriptorSets
	pipeline     *VulkanPipeline
	extent       metadata.Extent

	// Outlives swapchain generations.
	texture        *VulkanTexture
	pendingTexture *metadata.TextureData
	elapsed        float64
}

func NewForwardPass(context *VulkanContext, commands *renderer.CommandStreamManager, config ForwardPassConfig) *ForwardPass {
	p := &ForwardPass{
		context:  context,
		commands: commands,
		config:   config,
	}
	if config.Textured {
		p.pendingTexture = metadata.DefaultTextureData()
	}
	return p
}

func (p *ForwardPass) Name() string {
	return "forward"
}

func (p *ForwardPass) Queue() metadata.QueueKind {
	return metadata.QUEUE_KIND_GRAPHICS
}

// HandoffWaitStage lets the vertex stage start before the rate image is
// ready.
func (p *ForwardPass) HandoffWaitStage() metadata.PipelineStage {
	return metadata.PIPELINE_STAGE_FRAGMENT_SHADER
}

// SetTexture replaces the texture on the next swapchain generation.
func (p *ForwardPass) SetTexture(data *metadata.TextureData) {
	if p.config.Textured {
		p.pendingTexture = data
	}
}

// SetOverlay toggles the shading rate tint from the next recorded frame.
func (p *ForwardPass) SetOverlay(enabled bool) {
	p.config.Overlay = enabled
}

func (p *ForwardPass) Overlay() bool {
	return p.config.Overlay
}

func (p *ForwardPass) descriptorBindings() []vk.DescriptorSetLayoutBinding {
	var bindings []vk.DescriptorSetLayoutBinding
	if p.config.Textured {
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		})
	}
	if p.config.VRS != nil {
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:         1,
			DescriptorType:  vk.DescriptorTypeStorageImage,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		})
	}
	return bindings
}

func (p *ForwardPass) Create(state *metadata.SwapchainState) error {
	p.extent = state.Extent
	width, height := state.Extent.Width, state.Extent.Height

	if p.pendingTexture != nil {
		texture, err := UploadTexture(p.context, p.commands, p.pendingTexture)
		if err != nil {
			return err
		}
		if p.texture != nil {
			p.texture.Destroy(p.context)
		}
		p.texture = texture
		p.pendingTexture = nil
	}

	renderpass, err := RenderpassCreate(p.context, vk.Format(state.Format.Format), float32(width), float32(height), p.config.ClearColor)
	if err != nil {
		return err
	}
	p.renderpass = renderpass

	depth, err := ImageCreate(p.context, VulkanImageConfig{
		Width:       width,
		Height:      height,
		Format:      p.context.Device.DepthFormat,
		Tiling:      vk.ImageTilingOptimal,
		Usage:       vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		MemoryFlags: vk.MemoryPropertyDeviceLocalBit,
		Aspect:      vk.ImageAspectFlags(vk.ImageAspectDepthBit),
		CreateView:  true,
	})
	if err != nil {
		return err
	}
	p.depth = depth

	p.framebuffers = make([]*VulkanFramebuffer, 0, len(state.ImageViews))
	for _, v := range state.ImageViews {
		view, _ := v.(vk.ImageView)
		fb, err := FramebufferCreate(p.context, renderpass, width, height, []vk.ImageView{view, depth.View})
		if err != nil {
			return err
		}
		p.framebuffers = append(p.framebuffers, fb)
	}

	var setLayouts []vk.DescriptorSetLayout
	if bindings := p.descriptorBindings(); len(bindings) > 0 {
		descriptors, err := DescriptorSetsCreate(p.context, bindings, p.config.Concurrency)
		if err != nil {
			return err
		}
		p.descriptors = descriptors
		setLayouts = []vk.DescriptorSetLayout{descriptors.Layout}
		for slot := uint32(0); slot < p.config.Concurrency; slot++ {
			if p.config.Textured {
				descriptors.WriteImage(p.context, slot, 0, vk.DescriptorTypeCombinedImageSampler,
					p.texture.Image.View, p.texture.Sampler, vk.ImageLayoutShaderReadOnlyOptimal)
			}
			if p.config.VRS != nil {
				descriptors.WriteImage(p.context, slot, 1, vk.DescriptorTypeStorageImage,
					p.config.VRS.Image(slot).View, vk.NullSampler, vk.ImageLayoutGeneral)
			}
		}
	}

	if err := p.createPipeline(setLayouts); err != nil {
		return err
	}

	core.LogDebug("forward pass created for %dx%d, %d framebuffers", width, height, len(p.framebuffers))
	return nil
}

func (p *ForwardPass) createPipeline(setLayouts []vk.DescriptorSetLayout) error {
	stages := make([]*VulkanShaderStage, 0, 2)
	defer func() {
		for _, s := range stages {
			s.Destroy(p.context)
		}
	}()
	for _, s := range []struct {
		name  string
		stage vk.ShaderStageFlagBits
	}{
		{p.config.VertexShader, vk.ShaderStageVertexBit},
		{p.config.FragmentShader, vk.ShaderStageFragmentBit},
	} {
		code, err := p.config.Shaders.Shader(s.name)
		if err != nil {
			return err
		}
		stage, err := NewShaderStage(p.context, s.name, code, s.stage)
		if err != nil {
			return err
		}
		stages = append(stages, stage)
	}

	createInfos := make([]vk.PipelineShaderStageCreateInfo, 0, len(stages))
	for _, s := range stages {
		createInfos = append(createInfos, s.ShaderStageCreateInfo)
	}

	w, h := float32(p.extent.Width), float32(p.extent.Height)
	pipeline, err := NewGraphicsPipeline(p.context, &VulkanPipelineConfig{
		Renderpass:           p.renderpass,
		DescriptorSetLayouts: setLayouts,
		Stages:               createInfos,
		Viewport:             vk.Viewport{Width: w, Height: h, MinDepth: 0, MaxDepth: 1},
		Scissor:              vk.Rect2D{Extent: vk.Extent2D{Width: p.extent.Width, Height: p.extent.Height}},
		CullMode:             vk.CullModeNone,
		DepthTest:            true,
		DepthWrite:           true,
		PushConstantRanges: []PushConstantRange{{
			Stages: vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit,
			Size:   uint32(unsafe.Sizeof(forwardPushConstants{})),
		}},
	})
	if err != nil {
		return err
	}
	p.pipeline = pipeline
	return nil
}

func (p *ForwardPass) Record(ctx *renderer.FrameContext, buffer *metadata.CommandBuffer) error {
	if int(ctx.ImageIndex) >= len(p.framebuffers) {
		err := core.Errorf("image index %d out of range, %d framebuffers", ctx.ImageIndex, len(p.framebuffers))
		core.LogError("%s", err)
		return err
	}
	p.elapsed += ctx.DeltaTime
	cmd := commandHandle(buffer)

	constants := forwardPushConstants{
		Transform: mgl32.Ident4(),
		Time:      float32(p.elapsed),
	}
	if p.config.Transform != nil {
		constants.Transform = p.config.Transform(ctx, float32(p.extent.Width)/float32(p.extent.Height))
	}

	if p.config.VRS != nil {
		p.rateImageBarrier(cmd, p.config.VRS.Image(ctx.Slot))
		tw, th := p.config.VRS.TexelSize()
		constants.TexelSize = [2]float32{float32(tw), float32(th)}
		if p.config.Overlay {
			constants.Overlay = 1
		}
	}

	p.renderpass.RenderpassBegin(buffer, p.framebuffers[ctx.ImageIndex].Handle)

	vk.CmdSetViewport(cmd, 0, 1, []vk.Viewport{{
		Width:    float32(p.extent.Width),
		Height:   float32(p.extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}})
	vk.CmdSetScissor(cmd, 0, 1, []vk.Rect2D{{
		Extent: vk.Extent2D{Width: p.extent.Width, Height: p.extent.Height},
	}})
	vk.CmdSetLineWidth(cmd, 1.0)

	p.pipeline.Bind(buffer)
	if p.descriptors != nil {
		p.pipeline.BindDescriptorSet(buffer, p.descriptors.Sets[ctx.Slot])
	}
	vk.CmdPushConstants(cmd, p.pipeline.PipelineLayout,
		vk.ShaderStageFlags(vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit),
		0, uint32(unsafe.Sizeof(constants)), unsafe.Pointer(&constants))
	vk.CmdDraw(cmd, p.config.VertexCount, 1, 0, 0)

	p.renderpass.RenderpassEnd(buffer)
	return nil
}

// rateImageBarrier makes the compute writes visible to the fragment shader.
// Needed when both passes share the graphics queue.
func (p *ForwardPass) rateImageBarrier(cmd vk.CommandBuffer, image *VulkanImage) {
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(vk.AccessShaderWriteBit),
			DstAccessMask:       vk.AccessFlags(vk.AccessShaderReadBit),
			OldLayout:           vk.ImageLayoutGeneral,
			NewLayout:           vk.ImageLayoutGeneral,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               image.Handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: image.Aspect,
				LevelCount: 1,
				LayerCount: 1,
			},
		}})
}

func (p *ForwardPass) Destroy() error {
	if p.pipeline != nil {
		p.pipeline.Destroy(p.context)
		p.pipeline = nil
	}
	if p.descriptors != nil {
		p.descriptors.Destroy(p.context)
		p.descriptors = nil
	}
	for _, fb := range p.framebuffers {
		fb.Destroy(p.context)
	}
	p.framebuffers = nil
	if p.depth != nil {
		p.depth.Destroy(p.context)
		p.depth = nil
	}
	if p.renderpass != nil {
		p.renderpass.RenderpassDestroy(p.context)
		p.renderpass = nil
	}
	return nil
}

// Release destroys the texture. Called once at shutdown, after Destroy.
func (p *ForwardPass) Release() error {
	if p.texture != nil {
		p.texture.Destroy(p.context)
		p.texture = nil
	}
	return nil
}
