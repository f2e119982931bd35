package gpu

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/cloudfx/cloudrt/rt/core"
)

// Binding slots of the cloud bind group. Must match clouds.wgsl.
const (
	BindingView          = 0
	BindingLight         = 1
	BindingScreenTexture = 2
	BindingScreenSampler = 3
	BindingVolume        = 4
	BindingVolumeSampler = 5
	BindingSettings      = 6
)

// CloudBindGroupLayoutEntries returns the fixed layout of group 0.
func CloudBindGroupLayoutEntries() []wgpu.BindGroupLayoutEntry {
	return []wgpu.BindGroupLayoutEntry{
		{
			Binding:    BindingView,
			Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
			Buffer: wgpu.BufferBindingLayout{
				Type:             wgpu.BufferBindingTypeUniform,
				HasDynamicOffset: true,
				MinBindingSize:   core.ViewUniformSize,
			},
		},
		{
			Binding:    BindingLight,
			Visibility: wgpu.ShaderStageFragment,
			Buffer: wgpu.BufferBindingLayout{
				Type:             wgpu.BufferBindingTypeUniform,
				HasDynamicOffset: true,
				MinBindingSize:   core.LightUniformSize,
			},
		},
		{
			Binding:    BindingScreenTexture,
			Visibility: wgpu.ShaderStageFragment,
			Texture: wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeFloat,
				ViewDimension: wgpu.TextureViewDimension2D,
				Multisampled:  false,
			},
		},
		{
			Binding:    BindingScreenSampler,
			Visibility: wgpu.ShaderStageFragment,
			Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
		},
		{
			Binding:    BindingVolume,
			Visibility: wgpu.ShaderStageFragment,
			Texture: wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeFloat,
				ViewDimension: wgpu.TextureViewDimension3D,
				Multisampled:  false,
			},
		},
		{
			Binding:    BindingVolumeSampler,
			Visibility: wgpu.ShaderStageFragment,
			Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
		},
		{
			Binding:    BindingSettings,
			Visibility: wgpu.ShaderStageFragment,
			Buffer: wgpu.BufferBindingLayout{
				Type:             wgpu.BufferBindingTypeUniform,
				HasDynamicOffset: false,
				MinBindingSize:   core.CloudSettingsSize,
			},
		},
	}
}
