package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/cloudfx/cloudrt/rt/asset"
	"github.com/gekko3d/cloudfx/cloudrt/rt/core"
)

// CloudNodeName is the render graph label of the cloud composite.
const CloudNodeName = "volumetric_clouds"

// BindGroupFactory is the part of *wgpu.Device the node needs each frame.
type BindGroupFactory interface {
	CreateBindGroup(desc *wgpu.BindGroupDescriptor) (*wgpu.BindGroup, error)
}

// PassEncoder is satisfied by *wgpu.RenderPassEncoder.
type PassEncoder interface {
	SetPipeline(pipeline *wgpu.RenderPipeline)
	SetBindGroup(groupIndex uint32, group *wgpu.BindGroup, dynamicOffsets []uint32)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	End() error
	Release()
}

type CommandRecorder interface {
	BeginRenderPass(desc *wgpu.RenderPassDescriptor) PassEncoder
}

// EncoderRecorder adapts a command encoder to CommandRecorder.
type EncoderRecorder struct {
	*wgpu.CommandEncoder
}

func (e EncoderRecorder) BeginRenderPass(desc *wgpu.RenderPassDescriptor) PassEncoder {
	return e.CommandEncoder.BeginRenderPass(desc)
}

type releaser interface {
	Release()
}

// FrameContext carries the per-frame state shared by all views.
type FrameContext struct {
	Device  BindGroupFactory
	Encoder CommandRecorder

	// Shared dynamic uniform buffers. Each view records its offsets.
	ViewUniforms  *UniformBuffer
	LightUniforms *UniformBuffer

	garbage []releaser
}

// Track schedules r for release once the frame has been submitted.
func (fc *FrameContext) Track(r releaser) {
	fc.garbage = append(fc.garbage, r)
}

// ReleaseTracked frees everything passed to Track.
func (fc *FrameContext) ReleaseTracked() {
	for _, r := range fc.garbage {
		r.Release()
	}
	fc.garbage = fc.garbage[:0]
}

// View is one camera using the cloud effect.
type View struct {
	Name     string
	Settings core.CloudSettings
	Volume   asset.Handle
	Target   *ViewTarget

	SettingsUniform UniformBuffer

	// Dynamic offsets into FrameContext.ViewUniforms / LightUniforms.
	ViewOffset  uint32
	LightOffset uint32

	// SettingsErr is the outcome of the last settings upload.
	SettingsErr error
}

func NewView(name string, settings core.CloudSettings, vol asset.Handle, target *ViewTarget) *View {
	return &View{
		Name:            name,
		Settings:        settings,
		Volume:          vol,
		Target:          target,
		SettingsUniform: UniformBuffer{Label: name + "_cloud_settings"},
	}
}

// CloudNode composites the cloud volume over a view's scene color.
type CloudNode struct {
	pipeline *CloudPipeline
	volumes  *VolumeTextures
}

func NewCloudNode(pipeline *CloudPipeline, volumes *VolumeTextures) *CloudNode {
	return &CloudNode{pipeline: pipeline, volumes: volumes}
}

func (n *CloudNode) Name() string {
	return CloudNodeName
}

// Precondition holds when the pipeline, both dynamic uniform buffers, the
// view's volume texture and its settings uniform are all available.
func (n *CloudNode) Precondition(fc *FrameContext, view *View) bool {
	if _, ok := n.pipeline.Pipeline(); !ok {
		return false
	}
	if fc.ViewUniforms == nil || fc.LightUniforms == nil {
		return false
	}
	if _, ok := fc.ViewUniforms.Binding(); !ok {
		return false
	}
	if _, ok := fc.LightUniforms.Binding(); !ok {
		return false
	}
	if _, ok := n.volumes.Get(view.Volume); !ok {
		return false
	}
	if _, ok := view.SettingsUniform.Binding(); !ok {
		return false
	}
	return view.Target != nil
}

// Execute records one full-screen draw that reads the view's main texture
// and writes the other half of its ping-pong pair.
func (n *CloudNode) Execute(fc *FrameContext, view *View) error {
	pipeline, _ := n.pipeline.Pipeline()
	viewBuf, _ := fc.ViewUniforms.Binding()
	lightBuf, _ := fc.LightUniforms.Binding()
	settingsBuf, _ := view.SettingsUniform.Binding()
	vol, _ := n.volumes.Get(view.Volume)

	post := view.Target.PostProcessWrite()

	// The source flips every frame, so the bind group cannot be cached.
	bindGroup, err := fc.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "cloud_bind_group",
		Layout: n.pipeline.Layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: BindingView, Buffer: viewBuf, Offset: 0, Size: core.ViewUniformSize},
			{Binding: BindingLight, Buffer: lightBuf, Offset: 0, Size: core.LightUniformSize},
			{Binding: BindingScreenTexture, TextureView: post.Source},
			{Binding: BindingScreenSampler, Sampler: n.pipeline.Sampler},
			{Binding: BindingVolume, TextureView: vol.View},
			{Binding: BindingVolumeSampler, Sampler: n.pipeline.Sampler},
			{Binding: BindingSettings, Buffer: settingsBuf, Offset: 0, Size: core.CloudSettingsSize},
		},
	})
	if err != nil {
		return fmt.Errorf("gpu: cloud bind group for view %s: %w", view.Name, err)
	}
	fc.Track(bindGroup)

	pass := fc.Encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "cloud_pass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:    post.Destination,
			LoadOp:  wgpu.LoadOpLoad,
			StoreOp: wgpu.StoreOpStore,
		}},
	})
	defer pass.Release()

	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, []uint32{view.ViewOffset, view.LightOffset})
	pass.Draw(3, 1, 0, 0)
	if err := pass.End(); err != nil {
		return fmt.Errorf("gpu: cloud pass for view %s: %w", view.Name, err)
	}
	return nil
}
