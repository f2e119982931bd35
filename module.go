package cloudfx

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/cloudfx/cloudrt/rt/asset"
	"github.com/gekko3d/cloudfx/cloudrt/rt/core"
	"github.com/gekko3d/cloudfx/cloudrt/rt/gpu"
	"github.com/gekko3d/cloudfx/cloudrt/rt/graph"
)

// RenderGraph is the per-view graph the cloud node runs in.
type RenderGraph = graph.Graph[*gpu.FrameContext, *gpu.View]

// RenderNode is a stage of RenderGraph.
type RenderNode = graph.Node[*gpu.FrameContext, *gpu.View]

// Label returns an ordering-only node.
func Label(name string) RenderNode {
	return graph.EmptyNode[*gpu.FrameContext, *gpu.View]{Label: name}
}

// CloudModule owns the process-wide pieces of the effect: the async volume
// loader, the compiled pipeline, the uploaded volume textures and the
// render graph with the cloud node placed after the main pass and before
// bloom.
type CloudModule struct {
	Log      Logger
	Loader   *asset.VolumeLoader
	Pipeline *gpu.CloudPipeline
	Volumes  *gpu.VolumeTextures
	Node     *gpu.CloudNode
	Graph    *RenderGraph

	// Shared dynamic uniforms, refilled every frame.
	ViewData      core.DynamicUniforms
	LightData     core.DynamicUniforms
	ViewUniforms  gpu.UniformBuffer
	LightUniforms gpu.UniformBuffer

	device *wgpu.Device
	queue  *wgpu.Queue
}

// NewCloudModule builds the module on an existing device. extra nodes are
// added to the graph before it is built; they order themselves with
// extraEdges (each a chain of node names).
func NewCloudModule(cfg Config, log Logger, dev *wgpu.Device, queue *wgpu.Queue, extra []RenderNode, extraEdges ...[]string) (*CloudModule, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = orNop(log)

	m := &CloudModule{
		Log:           log,
		Loader:        asset.NewVolumeLoader(log, cfg.Workers),
		Pipeline:      gpu.NewCloudPipeline(log, gpu.HDRFormat),
		Volumes:       gpu.NewVolumeTextures(log, dev, queue),
		ViewUniforms:  gpu.UniformBuffer{Label: "cloud_view_uniforms"},
		LightUniforms: gpu.UniformBuffer{Label: "cloud_light_uniforms"},
		device:        dev,
		queue:         queue,
	}
	m.Node = gpu.NewCloudNode(m.Pipeline, m.Volumes)

	// A compile failure is logged by the pipeline and leaves the node
	// skipping every frame; the host keeps running.
	_ = m.Pipeline.Build(dev)

	m.Graph = graph.New[*gpu.FrameContext, *gpu.View](log)
	m.Graph.AddNode(Label(graph.EndMainPass))
	m.Graph.AddNode(m.Node)
	m.Graph.AddNode(Label(graph.Bloom))
	for _, n := range extra {
		m.Graph.AddNode(n)
	}
	m.Graph.AddEdges(graph.EndMainPass, gpu.CloudNodeName, graph.Bloom)
	for _, chain := range extraEdges {
		m.Graph.AddEdges(chain...)
	}
	if err := m.Graph.Build(); err != nil {
		return nil, fmt.Errorf("cloudfx: render graph: %w", err)
	}
	log.Debugf("render graph order: %v", m.Graph.Order())
	return m, nil
}

// BeginFrame resets the shared uniform arenas.
func (m *CloudModule) BeginFrame() {
	m.ViewData.Reset()
	m.LightData.Reset()
}

// PushView records the view and light uniforms for v and its settings.
// A view whose settings stop validating is reported once, not per frame.
func (m *CloudModule) PushView(v *gpu.View, vu core.ViewUniform, lu core.LightUniform) {
	v.ViewOffset = m.ViewData.Push(vu.Bytes())
	v.LightOffset = m.LightData.Push(lu.Bytes())
	err := v.SettingsUniform.UploadSettings(m.device, m.queue, v.Settings)
	switch {
	case err != nil && v.SettingsErr == nil:
		m.Log.Warnf("view %s: clouds disabled: %v", v.Name, err)
	case err == nil && v.SettingsErr != nil:
		m.Log.Infof("view %s: clouds enabled", v.Name)
	}
	v.SettingsErr = err
}

// Prepare uploads frame data and any newly decoded volumes. It must run on
// the render thread before Render.
func (m *CloudModule) Prepare() {
	upload := func(name string, buf *gpu.UniformBuffer, data *core.DynamicUniforms) {
		if data.Len() == 0 {
			buf.Unbind()
			return
		}
		if err := buf.Upload(m.device, m.queue, data.Bytes()); err != nil {
			m.Log.Errorf("%s uniforms: %v", name, err)
		}
	}
	upload("view", &m.ViewUniforms, &m.ViewData)
	upload("light", &m.LightUniforms, &m.LightData)
	m.Volumes.Prepare(m.Loader)
}

// Render runs the graph for every view into encoder.
func (m *CloudModule) Render(encoder *wgpu.CommandEncoder, views []*gpu.View) *gpu.FrameContext {
	fc := &gpu.FrameContext{
		Device:        m.device,
		Encoder:       gpu.EncoderRecorder{CommandEncoder: encoder},
		ViewUniforms:  &m.ViewUniforms,
		LightUniforms: &m.LightUniforms,
	}
	if err := m.Graph.Run(fc, views); err != nil {
		m.Log.Errorf("render graph: %v", err)
	}
	return fc
}

func (m *CloudModule) Release() {
	m.Volumes.Release()
	m.ViewUniforms.Release()
	m.LightUniforms.Release()
}
