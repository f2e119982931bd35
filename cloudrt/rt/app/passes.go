package app

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/cloudfx/cloudrt/rt/core"
	"github.com/gekko3d/cloudfx/cloudrt/rt/gpu"
	"github.com/gekko3d/cloudfx/cloudrt/rt/shaders"
)

// Node labels of the viewer's own passes.
const (
	MainPassName = "main_pass"
	PresentName  = "present"
)

// fullscreenPass is a compiled full-screen triangle pipeline with its
// group 0 layout.
type fullscreenPass struct {
	Pipeline *wgpu.RenderPipeline
	Layout   *wgpu.BindGroupLayout
}

func buildFullscreenPass(dev gpu.PipelineDevice, label, fragment, entry string, format wgpu.TextureFormat, entries []wgpu.BindGroupLayoutEntry) (*fullscreenPass, error) {
	bgl, err := dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   label + "_layout",
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %s bind group layout: %w", label, err)
	}
	module, err := dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.WithFullscreen(fragment)},
	})
	if err != nil {
		return nil, fmt.Errorf("app: %s shader: %w", label, err)
	}
	layout, err := dev.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label + "_pipeline_layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{bgl},
	})
	if err != nil {
		return nil, fmt.Errorf("app: %s pipeline layout: %w", label, err)
	}
	pipeline, err := dev.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  label + "_pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: shaders.FullscreenVertex,
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: entry,
			Targets: []wgpu.ColorTargetState{{
				Format:    format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("app: %s pipeline: %w", label, err)
	}
	return &fullscreenPass{Pipeline: pipeline, Layout: bgl}, nil
}

func skyLayoutEntries() []wgpu.BindGroupLayoutEntry {
	return []wgpu.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: wgpu.ShaderStageFragment,
			Buffer: wgpu.BufferBindingLayout{
				Type:             wgpu.BufferBindingTypeUniform,
				HasDynamicOffset: true,
				MinBindingSize:   core.ViewUniformSize,
			},
		},
		{
			Binding:    1,
			Visibility: wgpu.ShaderStageFragment,
			Buffer: wgpu.BufferBindingLayout{
				Type:             wgpu.BufferBindingTypeUniform,
				HasDynamicOffset: true,
				MinBindingSize:   core.LightUniformSize,
			},
		},
	}
}

func presentLayoutEntries() []wgpu.BindGroupLayoutEntry {
	return []wgpu.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: wgpu.ShaderStageFragment,
			Texture: wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeFloat,
				ViewDimension: wgpu.TextureViewDimension2D,
			},
		},
		{
			Binding:    1,
			Visibility: wgpu.ShaderStageFragment,
			Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeFiltering},
		},
	}
}

// SkyNode clears the view's main texture and draws the sky and ground.
type SkyNode struct {
	pass *fullscreenPass
}

func (n *SkyNode) Name() string { return MainPassName }

func (n *SkyNode) Precondition(fc *gpu.FrameContext, view *gpu.View) bool {
	if n.pass == nil || view.Target == nil {
		return false
	}
	if fc.ViewUniforms == nil || fc.LightUniforms == nil {
		return false
	}
	_, okView := fc.ViewUniforms.Binding()
	_, okLight := fc.LightUniforms.Binding()
	return okView && okLight
}

func (n *SkyNode) Execute(fc *gpu.FrameContext, view *gpu.View) error {
	viewBuf, _ := fc.ViewUniforms.Binding()
	lightBuf, _ := fc.LightUniforms.Binding()
	bg, err := fc.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "sky_bind_group",
		Layout: n.pass.Layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: viewBuf, Size: core.ViewUniformSize},
			{Binding: 1, Buffer: lightBuf, Size: core.LightUniformSize},
		},
	})
	if err != nil {
		return fmt.Errorf("app: sky bind group: %w", err)
	}
	fc.Track(bg)

	pass := fc.Encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "sky_pass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view.Target.Main(),
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{0, 0, 0, 1},
		}},
	})
	defer pass.Release()
	pass.SetPipeline(n.pass.Pipeline)
	pass.SetBindGroup(0, bg, []uint32{view.ViewOffset, view.LightOffset})
	pass.Draw(3, 1, 0, 0)
	return pass.End()
}

// PresentNode tonemaps the view's main texture onto the swapchain image
// set in Surface for the current frame.
type PresentNode struct {
	pass    *fullscreenPass
	sampler *wgpu.Sampler

	Surface *wgpu.TextureView
}

func (n *PresentNode) Name() string { return PresentName }

func (n *PresentNode) Precondition(fc *gpu.FrameContext, view *gpu.View) bool {
	return n.pass != nil && n.Surface != nil && view.Target != nil
}

func (n *PresentNode) Execute(fc *gpu.FrameContext, view *gpu.View) error {
	bg, err := fc.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "present_bind_group",
		Layout: n.pass.Layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: view.Target.Main()},
			{Binding: 1, Sampler: n.sampler},
		},
	})
	if err != nil {
		return fmt.Errorf("app: present bind group: %w", err)
	}
	fc.Track(bg)

	pass := fc.Encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "present_pass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       n.Surface,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{0, 0, 0, 1},
		}},
	})
	defer pass.Release()
	pass.SetPipeline(n.pass.Pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Draw(3, 1, 0, 0)
	return pass.End()
}
