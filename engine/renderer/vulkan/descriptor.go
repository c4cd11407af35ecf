package vulkan

import vk "github.com/goki/vulkan"

/**
 * @brief A descriptor set layout with the pool its sets are allocated
 * from. One set per frame slot.
 */
type VulkanDescriptorSets struct {
	Layout vk.DescriptorSetLayout
	Pool   vk.DescriptorPool
	Sets   []vk.DescriptorSet
}

// DescriptorSetsCreate creates the layout from the bindings, a pool sized
// for count sets and allocates the sets.
func DescriptorSetsCreate(context *VulkanContext, bindings []vk.DescriptorSetLayoutBinding, count uint32) (*VulkanDescriptorSets, error) {
	out := &VulkanDescriptorSets{}
	device := context.Device.LogicalDevice

	err := context.locks.SafeCall(DescriptorManagement, func() error {
		layoutInfo := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(bindings)),
			PBindings:    bindings,
		}
		var layout vk.DescriptorSetLayout
		if res := vk.CreateDescriptorSetLayout(device, &layoutInfo, context.Allocator, &layout); res != vk.Success {
			return vulkanError("vkCreateDescriptorSetLayout", res)
		}
		out.Layout = layout

		poolSizes := make([]vk.DescriptorPoolSize, 0, len(bindings))
		for _, b := range bindings {
			poolSizes = append(poolSizes, vk.DescriptorPoolSize{
				Type:            b.DescriptorType,
				DescriptorCount: b.DescriptorCount * count,
			})
		}
		poolInfo := vk.DescriptorPoolCreateInfo{
			SType:         vk.StructureTypeDescriptorPoolCreateInfo,
			MaxSets:       count,
			PoolSizeCount: uint32(len(poolSizes)),
			PPoolSizes:    poolSizes,
		}
		var pool vk.DescriptorPool
		if res := vk.CreateDescriptorPool(device, &poolInfo, context.Allocator, &pool); res != vk.Success {
			return vulkanError("vkCreateDescriptorPool", res)
		}
		out.Pool = pool

		layouts := make([]vk.DescriptorSetLayout, count)
		for i := range layouts {
			layouts[i] = layout
		}
		out.Sets = make([]vk.DescriptorSet, count)
		allocInfo := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     pool,
			DescriptorSetCount: count,
			PSetLayouts:        layouts,
		}
		if res := vk.AllocateDescriptorSets(device, &allocInfo, &out.Sets[0]); res != vk.Success {
			return vulkanError("vkAllocateDescriptorSets", res)
		}
		return nil
	})
	if err != nil {
		out.Destroy(context)
		return nil, err
	}
	return out, nil
}

// WriteImage points a binding of the set at an image view. Sampler may be
// null for storage images.
func (ds *VulkanDescriptorSets) WriteImage(context *VulkanContext, set uint32, binding uint32, descriptorType vk.DescriptorType, view vk.ImageView, sampler vk.Sampler, layout vk.ImageLayout) {
	_ = context.locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(context.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          ds.Sets[set],
			DstBinding:      binding,
			DescriptorCount: 1,
			DescriptorType:  descriptorType,
			PImageInfo: []vk.DescriptorImageInfo{{
				Sampler:     sampler,
				ImageView:   view,
				ImageLayout: layout,
			}},
		}}, 0, nil)
		return nil
	})
}

// Destroy frees the pool, which releases every set, and the layout.
func (ds *VulkanDescriptorSets) Destroy(context *VulkanContext) {
	_ = context.locks.SafeCall(DescriptorManagement, func() error {
		if ds.Pool != vk.NullDescriptorPool {
			vk.DestroyDescriptorPool(context.Device.LogicalDevice, ds.Pool, context.Allocator)
			ds.Pool = vk.NullDescriptorPool
		}
		if ds.Layout != vk.NullDescriptorSetLayout {
			vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, ds.Layout, context.Allocator)
			ds.Layout = vk.NullDescriptorSetLayout
		}
		ds.Sets = nil
		return nil
	})
}
