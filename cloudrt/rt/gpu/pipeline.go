package gpu

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/cloudfx/cloudrt/rt/shaders"
)

var ErrShaderCompile = errors.New("gpu: cloud shader failed to compile")

type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// PipelineDevice is the part of *wgpu.Device the pipeline builder uses.
type PipelineDevice interface {
	CreateShaderModule(desc *wgpu.ShaderModuleDescriptor) (*wgpu.ShaderModule, error)
	CreateBindGroupLayout(desc *wgpu.BindGroupLayoutDescriptor) (*wgpu.BindGroupLayout, error)
	CreatePipelineLayout(desc *wgpu.PipelineLayoutDescriptor) (*wgpu.PipelineLayout, error)
	CreateRenderPipeline(desc *wgpu.RenderPipelineDescriptor) (*wgpu.RenderPipeline, error)
	CreateSampler(desc *wgpu.SamplerDescriptor) (*wgpu.Sampler, error)
}

// CloudPipeline owns the process-wide cloud render pipeline. It is built
// once; a failed build is final.
type CloudPipeline struct {
	log    Logger
	format wgpu.TextureFormat

	built    bool
	err      error
	pipeline *wgpu.RenderPipeline

	Layout  *wgpu.BindGroupLayout
	Sampler *wgpu.Sampler
}

// NewCloudPipeline prepares a pipeline that renders into targets of the
// given format.
func NewCloudPipeline(log Logger, format wgpu.TextureFormat) *CloudPipeline {
	return &CloudPipeline{log: log, format: format}
}

// Build compiles the pipeline. Calling it again returns the first outcome
// without touching the device.
func (p *CloudPipeline) Build(dev PipelineDevice) error {
	if p.built {
		return p.err
	}
	p.built = true

	var err error
	p.Layout, err = dev.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   "cloud_bind_group_layout",
		Entries: CloudBindGroupLayoutEntries(),
	})
	if err != nil {
		return p.fail(fmt.Errorf("gpu: cloud bind group layout: %w", err))
	}

	p.Sampler, err = dev.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "cloud_linear_sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return p.fail(fmt.Errorf("gpu: cloud sampler: %w", err))
	}

	module, err := dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "clouds.wgsl",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.WithFullscreen(shaders.CloudsWGSL)},
	})
	if err != nil {
		return p.fail(fmt.Errorf("%w: %v", ErrShaderCompile, err))
	}

	layout, err := dev.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "cloud_pipeline_layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{p.Layout},
	})
	if err != nil {
		return p.fail(fmt.Errorf("gpu: cloud pipeline layout: %w", err))
	}

	p.pipeline, err = dev.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "cloud_pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: shaders.FullscreenVertex,
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: shaders.CloudsFragment,
			Targets: []wgpu.ColorTargetState{{
				Format:    p.format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		DepthStencil: nil,
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		p.pipeline = nil
		return p.fail(fmt.Errorf("%w: %v", ErrShaderCompile, err))
	}
	p.log.Infof("cloud pipeline compiled (target %v)", p.format)
	return nil
}

func (p *CloudPipeline) fail(err error) error {
	p.err = err
	p.log.Errorf("cloud pipeline unavailable: %v", err)
	return err
}

// Pipeline returns the compiled pipeline, or false while it is not ready.
func (p *CloudPipeline) Pipeline() (*wgpu.RenderPipeline, bool) {
	if p.pipeline == nil {
		return nil, false
	}
	return p.pipeline, true
}

func (p *CloudPipeline) Err() error {
	return p.err
}
