package gpu

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/cloudfx/cloudrt/rt/asset"
	"github.com/gekko3d/cloudfx/cloudrt/rt/core"
	"github.com/gekko3d/cloudfx/cloudrt/rt/graph"
	"github.com/gekko3d/cloudfx/cloudrt/rt/shaders"
	"github.com/gekko3d/cloudfx/cloudrt/rt/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Test buffers are not backed by a device.
	releaseBuffer = func(*wgpu.Buffer) {}
}

type testLogger struct {
	errors []string
}

func (l *testLogger) Debugf(string, ...any) {}
func (l *testLogger) Infof(string, ...any)  {}
func (l *testLogger) Warnf(string, ...any)  {}
func (l *testLogger) Errorf(format string, args ...any) {
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

type fakeDevice struct {
	compileErr   error
	bindGroupErr error

	shaderModules int
	pipelines     int
	bindGroups    []*wgpu.BindGroupDescriptor
	buffers       []*wgpu.BufferDescriptor
}

func (d *fakeDevice) CreateShaderModule(desc *wgpu.ShaderModuleDescriptor) (*wgpu.ShaderModule, error) {
	d.shaderModules++
	return &wgpu.ShaderModule{}, nil
}

func (d *fakeDevice) CreateBindGroupLayout(*wgpu.BindGroupLayoutDescriptor) (*wgpu.BindGroupLayout, error) {
	return &wgpu.BindGroupLayout{}, nil
}

func (d *fakeDevice) CreatePipelineLayout(*wgpu.PipelineLayoutDescriptor) (*wgpu.PipelineLayout, error) {
	return &wgpu.PipelineLayout{}, nil
}

func (d *fakeDevice) CreateRenderPipeline(*wgpu.RenderPipelineDescriptor) (*wgpu.RenderPipeline, error) {
	d.pipelines++
	if d.compileErr != nil {
		return nil, d.compileErr
	}
	return &wgpu.RenderPipeline{}, nil
}

func (d *fakeDevice) CreateSampler(*wgpu.SamplerDescriptor) (*wgpu.Sampler, error) {
	return &wgpu.Sampler{}, nil
}

func (d *fakeDevice) CreateBindGroup(desc *wgpu.BindGroupDescriptor) (*wgpu.BindGroup, error) {
	if d.bindGroupErr != nil {
		return nil, d.bindGroupErr
	}
	d.bindGroups = append(d.bindGroups, desc)
	return &wgpu.BindGroup{}, nil
}

func (d *fakeDevice) CreateBuffer(desc *wgpu.BufferDescriptor) (*wgpu.Buffer, error) {
	d.buffers = append(d.buffers, desc)
	return &wgpu.Buffer{}, nil
}

type fakeQueue struct {
	writes int
	err    error
}

func (q *fakeQueue) WriteBuffer(*wgpu.Buffer, uint64, []byte) error {
	q.writes++
	return q.err
}

type recordedPass struct {
	desc      *wgpu.RenderPassDescriptor
	pipeline  *wgpu.RenderPipeline
	bindGroup *wgpu.BindGroup
	offsets   []uint32
	draws     [][4]uint32
	ended     bool
	released  bool
}

func (p *recordedPass) SetPipeline(pl *wgpu.RenderPipeline) { p.pipeline = pl }
func (p *recordedPass) SetBindGroup(_ uint32, bg *wgpu.BindGroup, offsets []uint32) {
	p.bindGroup = bg
	p.offsets = offsets
}
func (p *recordedPass) Draw(v, i, fv, fi uint32) { p.draws = append(p.draws, [4]uint32{v, i, fv, fi}) }
func (p *recordedPass) End() error               { p.ended = true; return nil }
func (p *recordedPass) Release()                 { p.released = true }

type fakeRecorder struct {
	passes []*recordedPass
}

func (r *fakeRecorder) BeginRenderPass(desc *wgpu.RenderPassDescriptor) PassEncoder {
	p := &recordedPass{desc: desc}
	r.passes = append(r.passes, p)
	return p
}

type fakeSource struct {
	vols map[asset.Handle]*volume.DenseVolume
}

func (s *fakeSource) Handles() []asset.Handle {
	out := make([]asset.Handle, 0, len(s.vols))
	for h := range s.vols {
		out = append(out, h)
	}
	return out
}

func (s *fakeSource) Get(h asset.Handle) (*volume.DenseVolume, bool) {
	v, ok := s.vols[h]
	return v, ok && v != nil
}

// harness wires a node with every precondition satisfied.
type harness struct {
	dev      *fakeDevice
	queue    *fakeQueue
	rec      *fakeRecorder
	log      *testLogger
	pipeline *CloudPipeline
	volumes  *VolumeTextures
	node     *CloudNode
	fc       *FrameContext
	view     *View
	a, b     *wgpu.TextureView
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		dev:   &fakeDevice{},
		queue: &fakeQueue{},
		rec:   &fakeRecorder{},
		log:   &testLogger{},
		a:     &wgpu.TextureView{},
		b:     &wgpu.TextureView{},
	}
	h.pipeline = NewCloudPipeline(h.log, HDRFormat)
	require.NoError(t, h.pipeline.Build(h.dev))

	h.volumes = newVolumeTextures(h.log)
	h.volumes.upload = func(vol *volume.DenseVolume) (*GpuVolume, error) {
		return &GpuVolume{View: &wgpu.TextureView{}, Extent: vol.Extent}, nil
	}
	handle := asset.NewHandle()
	dense, err := volume.BuildDense(singleVoxel())
	require.NoError(t, err)
	require.Equal(t, 1, h.volumes.Prepare(&fakeSource{vols: map[asset.Handle]*volume.DenseVolume{handle: dense}}))

	h.node = NewCloudNode(h.pipeline, h.volumes)
	h.fc = &FrameContext{
		Device:        h.dev,
		Encoder:       h.rec,
		ViewUniforms:  &UniformBuffer{Label: "views"},
		LightUniforms: &UniformBuffer{Label: "lights"},
	}
	var views, lights core.DynamicUniforms
	views.Push(make([]byte, core.ViewUniformSize))
	vOff := views.Push(make([]byte, core.ViewUniformSize))
	lOff := lights.Push(core.DefaultLight().Bytes())
	require.NoError(t, h.fc.ViewUniforms.Upload(h.dev, h.queue, views.Bytes()))
	require.NoError(t, h.fc.LightUniforms.Upload(h.dev, h.queue, lights.Bytes()))

	h.view = NewView("main", core.DefaultCloudSettings(), handle, NewViewTarget(h.a, h.b))
	h.view.ViewOffset = vOff
	h.view.LightOffset = lOff
	require.NoError(t, h.view.SettingsUniform.UploadSettings(h.dev, h.queue, h.view.Settings))
	return h
}

func singleVoxel() *volume.Grid {
	g := volume.NewGrid("density", volume.ValueHalf)
	g.Set(volume.Coord{}, 1)
	return g
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	g := graph.New[*FrameContext, *View](h.log)
	g.AddNode(graph.EmptyNode[*FrameContext, *View]{Label: graph.EndMainPass})
	g.AddNode(h.node)
	g.AddNode(graph.EmptyNode[*FrameContext, *View]{Label: graph.Bloom})
	g.AddEdges(graph.EndMainPass, CloudNodeName, graph.Bloom)
	require.NoError(t, g.Build())
	require.NoError(t, g.Run(h.fc, []*View{h.view}))
}

func TestLayoutEntries(t *testing.T) {
	entries := CloudBindGroupLayoutEntries()
	require.Len(t, entries, 7)
	for i, e := range entries {
		assert.Equal(t, uint32(i), e.Binding)
	}
	assert.True(t, entries[0].Buffer.HasDynamicOffset)
	assert.Equal(t, wgpu.ShaderStageVertex|wgpu.ShaderStageFragment, entries[0].Visibility)
	assert.True(t, entries[1].Buffer.HasDynamicOffset)
	assert.Equal(t, wgpu.ShaderStageFragment, entries[1].Visibility)
	assert.Equal(t, wgpu.TextureViewDimension2D, entries[2].Texture.ViewDimension)
	assert.Equal(t, wgpu.SamplerBindingTypeFiltering, entries[3].Sampler.Type)
	assert.Equal(t, wgpu.TextureViewDimension3D, entries[4].Texture.ViewDimension)
	assert.Equal(t, wgpu.SamplerBindingTypeFiltering, entries[5].Sampler.Type)
	assert.False(t, entries[6].Buffer.HasDynamicOffset)
	assert.Equal(t, uint64(core.CloudSettingsSize), entries[6].Buffer.MinBindingSize)
}

func TestShaderMatchesLayout(t *testing.T) {
	for i := 0; i < 7; i++ {
		assert.Contains(t, shaders.CloudsWGSL, fmt.Sprintf("@group(0) @binding(%d)", i))
	}

	// members of the settings struct in declaration order
	body := regexp.MustCompile(`(?s)struct CloudSettings \{(.*?)\};`).FindStringSubmatch(shaders.CloudsWGSL)
	require.Len(t, body, 2)
	var members []string
	for _, line := range strings.Split(body[1], "\n") {
		if name, _, ok := strings.Cut(strings.TrimSpace(line), ":"); ok {
			members = append(members, name)
		}
	}
	var schema []string
	for _, f := range core.DefaultCloudSettings().Schema() {
		schema = append(schema, f.Name)
	}
	assert.Equal(t, schema, members)
}

func TestPipelineBuildIsCached(t *testing.T) {
	dev := &fakeDevice{}
	p := NewCloudPipeline(&testLogger{}, HDRFormat)
	_, ok := p.Pipeline()
	assert.False(t, ok)

	require.NoError(t, p.Build(dev))
	require.NoError(t, p.Build(dev))
	assert.Equal(t, 1, dev.shaderModules)
	assert.Equal(t, 1, dev.pipelines)
	_, ok = p.Pipeline()
	assert.True(t, ok)
	assert.NotNil(t, p.Layout)
	assert.NotNil(t, p.Sampler)
}

func TestPipelineCompileFailureIsFinal(t *testing.T) {
	dev := &fakeDevice{compileErr: errors.New("line 12: unknown identifier")}
	log := &testLogger{}
	p := NewCloudPipeline(log, HDRFormat)

	err := p.Build(dev)
	assert.ErrorIs(t, err, ErrShaderCompile)
	dev.compileErr = nil
	assert.ErrorIs(t, p.Build(dev), ErrShaderCompile)

	assert.Equal(t, 1, dev.pipelines, "no retry")
	assert.Len(t, log.errors, 1, "logged once")
	_, ok := p.Pipeline()
	assert.False(t, ok)
	assert.ErrorIs(t, p.Err(), ErrShaderCompile)
}

func TestNodeExecutes(t *testing.T) {
	h := newHarness(t)
	h.run(t)

	require.Len(t, h.rec.passes, 1)
	pass := h.rec.passes[0]
	require.Len(t, pass.desc.ColorAttachments, 1)
	att := pass.desc.ColorAttachments[0]
	assert.Same(t, h.b, att.View, "draws into the non-main texture")
	assert.Equal(t, wgpu.LoadOpLoad, att.LoadOp)
	assert.Equal(t, wgpu.StoreOpStore, att.StoreOp)
	assert.Nil(t, pass.desc.DepthStencilAttachment)

	rp, _ := h.pipeline.Pipeline()
	assert.Same(t, rp, pass.pipeline)
	assert.Equal(t, [][4]uint32{{3, 1, 0, 0}}, pass.draws)
	assert.Equal(t, []uint32{h.view.ViewOffset, h.view.LightOffset}, pass.offsets)
	assert.Equal(t, []uint32{256, 0}, pass.offsets)
	assert.True(t, pass.ended)
	assert.True(t, pass.released)

	require.Len(t, h.dev.bindGroups, 1)
	bg := h.dev.bindGroups[0]
	require.Len(t, bg.Entries, 7)
	for i, e := range bg.Entries {
		assert.Equal(t, uint32(i), e.Binding)
	}
	assert.Same(t, h.a, bg.Entries[BindingScreenTexture].TextureView)
	vol, _ := h.volumes.Get(h.view.Volume)
	assert.Same(t, vol.View, bg.Entries[BindingVolume].TextureView)
	assert.Same(t, h.pipeline.Layout, bg.Layout)

	assert.Same(t, h.b, h.view.Target.Main(), "destination becomes main")
	assert.Empty(t, h.log.errors)
}

func TestNodeSkipsWhenAnyResourceMissing(t *testing.T) {
	cases := map[string]func(h *harness){
		"pipeline": func(h *harness) {
			h.pipeline = NewCloudPipeline(h.log, HDRFormat)
			h.node = NewCloudNode(h.pipeline, h.volumes)
		},
		"view uniform":  func(h *harness) { h.fc.ViewUniforms.Unbind() },
		"light uniform": func(h *harness) { h.fc.LightUniforms = &UniformBuffer{} },
		"volume":        func(h *harness) { h.view.Volume = asset.NewHandle() },
		"settings":      func(h *harness) { h.view.SettingsUniform.Unbind() },
	}
	for name, remove := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			remove(h)
			main := h.view.Target.Main()

			h.run(t)

			assert.Empty(t, h.rec.passes, "no render pass")
			assert.Empty(t, h.dev.bindGroups, "no bind group")
			assert.Empty(t, h.log.errors)
			assert.Same(t, main, h.view.Target.Main(), "ping-pong untouched")
		})
	}
}

func TestPingPongNeverAliases(t *testing.T) {
	h := newHarness(t)
	for frame := 0; frame < 16; frame++ {
		h.run(t)
	}
	require.Len(t, h.rec.passes, 16)
	for i, pass := range h.rec.passes {
		src := h.dev.bindGroups[i].Entries[BindingScreenTexture].TextureView
		dst := pass.desc.ColorAttachments[0].View
		assert.NotSame(t, src, dst, "frame %d", i)
		if i > 0 {
			prevDst := h.rec.passes[i-1].desc.ColorAttachments[0].View
			assert.Same(t, prevDst, src, "frame %d reads what frame %d wrote", i, i-1)
		}
	}
}

func TestStepsZeroSkipsView(t *testing.T) {
	h := newHarness(t)
	h.view.Settings.Steps = 0
	err := h.view.SettingsUniform.UploadSettings(h.dev, h.queue, h.view.Settings)
	assert.ErrorIs(t, err, core.ErrInvalidSettings)
	h.run(t)
	assert.Empty(t, h.rec.passes)

	h.view.Settings.Steps = 64
	require.NoError(t, h.view.SettingsUniform.UploadSettings(h.dev, h.queue, h.view.Settings))
	h.run(t)
	assert.Len(t, h.rec.passes, 1)
}

func TestBindGroupErrorIsLogged(t *testing.T) {
	h := newHarness(t)
	h.dev.bindGroupErr = errors.New("validation error")
	h.run(t)
	assert.Empty(t, h.rec.passes)
	require.Len(t, h.log.errors, 1)
	assert.Contains(t, h.log.errors[0], CloudNodeName)
}

func TestUniformBufferGrows(t *testing.T) {
	dev := &fakeDevice{}
	q := &fakeQueue{}
	var u UniformBuffer
	_, ok := u.Binding()
	assert.False(t, ok)

	require.NoError(t, u.Upload(dev, q, make([]byte, 160)))
	assert.Equal(t, uint64(256), u.Size())
	require.NoError(t, u.Upload(dev, q, make([]byte, 200)))
	assert.Len(t, dev.buffers, 1, "reused")
	require.NoError(t, u.Upload(dev, q, make([]byte, 700)))
	assert.Equal(t, uint64(1024), u.Size())
	assert.Len(t, dev.buffers, 2)
	_, ok = u.Binding()
	assert.True(t, ok)

	q.err = errors.New("lost device")
	assert.Error(t, u.Upload(dev, q, make([]byte, 16)))
	_, ok = u.Binding()
	assert.False(t, ok)
}

func TestVolumeTexturesUploadOnce(t *testing.T) {
	log := &testLogger{}
	vt := newVolumeTextures(log)
	uploads := 0
	vt.upload = func(vol *volume.DenseVolume) (*GpuVolume, error) {
		uploads++
		if vol.Extent[0] > 1 {
			return nil, errors.New("out of memory")
		}
		return &GpuVolume{Extent: vol.Extent}, nil
	}

	good, bad, pending := asset.NewHandle(), asset.NewHandle(), asset.NewHandle()
	wide := volume.NewGrid("density", volume.ValueHalf)
	wide.Set(volume.Coord{}, 1)
	wide.Set(volume.Coord{X: 3}, 1)
	small, err := volume.BuildDense(singleVoxel())
	require.NoError(t, err)
	large, err := volume.BuildDense(wide)
	require.NoError(t, err)

	src := &fakeSource{vols: map[asset.Handle]*volume.DenseVolume{good: small, bad: large, pending: nil}}
	assert.Equal(t, 1, vt.Prepare(src))
	assert.Equal(t, 0, vt.Prepare(src))
	assert.Equal(t, 2, uploads, "neither success nor failure is retried")
	assert.Len(t, log.errors, 1)

	_, ok := vt.Get(good)
	assert.True(t, ok)
	_, ok = vt.Get(bad)
	assert.False(t, ok)
	_, ok = vt.Get(pending)
	assert.False(t, ok)

	vt.Release()
	_, ok = vt.Get(good)
	assert.False(t, ok)
}

func TestViewTargetRejectsAliasing(t *testing.T) {
	v := &wgpu.TextureView{}
	assert.Panics(t, func() { NewViewTarget(v, v) })
}
