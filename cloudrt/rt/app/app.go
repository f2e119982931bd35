package app

import (
	"bytes"
	"fmt"
	"time"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/klauspost/compress/zlib"

	"github.com/gekko3d/cloudfx"
	"github.com/gekko3d/cloudfx/cloudrt/rt/asset"
	"github.com/gekko3d/cloudfx/cloudrt/rt/core"
	"github.com/gekko3d/cloudfx/cloudrt/rt/gpu"
	"github.com/gekko3d/cloudfx/cloudrt/rt/graph"
	"github.com/gekko3d/cloudfx/cloudrt/rt/shaders"
	"github.com/gekko3d/cloudfx/cloudrt/rt/volume"
)

// DefaultPresetFile is where the viewer saves settings when no preset
// path was given.
const DefaultPresetFile = "clouds_preset.json"

type App struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	Cfg      cloudfx.Config
	Log      cloudfx.Logger
	Clouds   *cloudfx.CloudModule
	Target   *gpu.ViewTarget
	View     *gpu.View
	Camera   *OrbitCamera
	Light    core.LightUniform
	Profiler *Profiler

	sky     *SkyNode
	present *PresentNode
	sampler *wgpu.Sampler

	LastTime float64
	dragging bool
	lastX    float64
	lastY    float64
}

func NewApp(window *glfw.Window, cfg cloudfx.Config, log cloudfx.Logger) *App {
	if log == nil {
		log = cloudfx.NewNopLogger()
	}
	return &App{
		Window:   window,
		Cfg:      cfg.WithDefaults(),
		Log:      log,
		Camera:   NewOrbitCamera(),
		Light:    core.DefaultLight(),
		Profiler: NewProfiler(),
		sky:      &SkyNode{},
		present:  &PresentNode{},
	}
}

func (a *App) Init() error {
	a.Instance = wgpu.CreateInstance(nil)
	a.Surface = a.Instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(a.Window))

	adapter, err := a.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: a.Surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return err
	}
	a.Adapter = adapter

	a.Device, err = adapter.RequestDevice(nil)
	if err != nil {
		return err
	}
	a.Queue = a.Device.GetQueue()

	width, height := a.Window.GetFramebufferSize()
	caps := a.Surface.GetCapabilities(adapter)
	a.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	a.Surface.Configure(adapter, a.Device, a.Config)

	a.sky.pass, err = buildFullscreenPass(a.Device, "sky.wgsl", shaders.SkyWGSL, shaders.SkyFragment, gpu.HDRFormat, skyLayoutEntries())
	if err != nil {
		return err
	}
	a.present.pass, err = buildFullscreenPass(a.Device, "present.wgsl", shaders.PresentWGSL, shaders.PresentFragment, a.Config.Format, presentLayoutEntries())
	if err != nil {
		return err
	}
	a.sampler, err = a.Device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "present_sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return err
	}
	a.present.sampler = a.sampler

	a.Clouds, err = cloudfx.NewCloudModule(a.Cfg, a.Log, a.Device, a.Queue,
		[]cloudfx.RenderNode{a.sky, a.present},
		[]string{MainPassName, graph.EndMainPass},
		[]string{graph.Bloom, PresentName},
	)
	if err != nil {
		return err
	}

	a.Target, err = gpu.CreateViewTarget(a.Device, uint32(width), uint32(height))
	if err != nil {
		return fmt.Errorf("app: view target: %w", err)
	}

	settings, volumePath, err := a.initialSettings()
	if err != nil {
		return err
	}
	handle, err := a.loadVolume(volumePath)
	if err != nil {
		return err
	}
	a.View = gpu.NewView("main", settings, handle, a.Target)

	a.LastTime = glfw.GetTime()
	return nil
}

// initialSettings applies the preset file when one is configured. A
// -volume flag wins over the preset's volume.
func (a *App) initialSettings() (core.CloudSettings, string, error) {
	if a.Cfg.PresetPath == "" {
		return core.DefaultCloudSettings(), a.Cfg.VolumePath, nil
	}
	preset, err := cloudfx.LoadSettingsPreset(a.Cfg.PresetPath)
	if err != nil {
		return core.CloudSettings{}, "", err
	}
	a.Log.Infof("loaded preset %q from %s", preset.Name, a.Cfg.PresetPath)
	path := a.Cfg.VolumePath
	if path == "" {
		path = preset.Volume
	}
	return preset.Settings, path, nil
}

func (a *App) loadVolume(path string) (asset.Handle, error) {
	if path != "" {
		a.Log.Infof("loading volume %s", path)
		return a.Clouds.Loader.Load(path), nil
	}
	data, err := ProceduralVolume(64, uint32(time.Now().UnixNano()))
	if err != nil {
		return "", err
	}
	a.Log.Infof("no volume given, generated a procedural cloud (%d bytes)", len(data))
	return a.Clouds.Loader.LoadBytes("procedural", data), nil
}

// ProceduralVolume encodes a generated cloud of size³ voxels as a
// zlib-compressed volume file.
func ProceduralVolume(size int, seed uint32) ([]byte, error) {
	var buf bytes.Buffer
	w := volume.NewWriter(&buf, volume.WithZlib(zlib.BestSpeed))
	if err := w.Write(volume.GenerateCloud(volume.DefaultCloudParams(size, seed))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *App) Resize(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	a.Config.Width = uint32(w)
	a.Config.Height = uint32(h)
	a.Surface.Configure(a.Adapter, a.Device, a.Config)

	target, err := gpu.CreateViewTarget(a.Device, uint32(w), uint32(h))
	if err != nil {
		a.Log.Errorf("resize to %dx%d: %v", w, h, err)
		return
	}
	a.Target.Release()
	a.Target = target
	a.View.Target = target
}

func (a *App) Update() {
	now := glfw.GetTime()
	dt := now - a.LastTime
	a.LastTime = now
	if a.Profiler.Frame(time.Duration(dt * float64(time.Second))) {
		a.Window.SetTitle(fmt.Sprintf("%s | %s", a.Cfg.Title, a.Profiler.String()))
	}

	a.Profiler.BeginScope("update")
	if !a.dragging {
		a.Camera.Update(float32(dt))
	}
	w, h := int(a.Config.Width), int(a.Config.Height)
	vu := core.NewViewUniform(a.Camera.ViewMatrix(), a.Camera.ProjMatrix(w, h), a.Camera.Eye(), w, h)

	a.Clouds.BeginFrame()
	a.Clouds.PushView(a.View, vu, a.Light)
	a.Clouds.Prepare()
	a.Profiler.EndScope("update")
}

func (a *App) Render() {
	a.Profiler.BeginScope("render")
	defer a.Profiler.EndScope("render")

	next, err := a.Surface.GetCurrentTexture()
	if err != nil {
		a.Log.Errorf("GetCurrentTexture failed: %v", err)
		return
	}
	defer next.Release()

	surfaceView, err := next.CreateView(nil)
	if err != nil {
		a.Log.Errorf("CreateView failed: %v", err)
		return
	}
	defer surfaceView.Release()

	encoder, err := a.Device.CreateCommandEncoder(nil)
	if err != nil {
		a.Log.Errorf("CreateCommandEncoder failed: %v", err)
		return
	}
	defer encoder.Release()

	a.present.Surface = surfaceView
	fc := a.Clouds.Render(encoder, []*gpu.View{a.View})
	a.present.Surface = nil
	defer fc.ReleaseTracked()

	cmd, err := encoder.Finish(nil)
	if err != nil {
		a.Log.Errorf("encoder Finish failed: %v", err)
		return
	}
	defer cmd.Release()
	a.Queue.Submit(cmd)
	a.Surface.Present()
}

func (a *App) HandleMouseButton(button glfw.MouseButton, action glfw.Action) {
	if button != glfw.MouseButtonLeft {
		return
	}
	a.dragging = action == glfw.Press
	if a.dragging {
		a.lastX, a.lastY = a.Window.GetCursorPos()
	}
}

func (a *App) HandleCursor(x, y float64) {
	if a.dragging {
		a.Camera.Drag(float32(x-a.lastX), float32(y-a.lastY))
	}
	a.lastX, a.lastY = x, y
}

func (a *App) HandleScroll(yoff float64) {
	a.Camera.Zoom(float32(yoff))
}

// HandleKey reports whether the key was consumed.
//
//	Space  toggle auto-rotation
//	Up/Dn  scale light absorption (cloud density)
//	[ / ]  halve or double primary steps
//	P      save the current settings as a preset
//	F1     toggle debug logging
func (a *App) HandleKey(key glfw.Key, action glfw.Action) bool {
	if action != glfw.Press && action != glfw.Repeat {
		return false
	}
	s := a.View.Settings
	switch key {
	case glfw.KeySpace:
		a.Camera.AutoRotate = !a.Camera.AutoRotate
		return true
	case glfw.KeyUp:
		s.LightAbsorption *= 1.1
	case glfw.KeyDown:
		s.LightAbsorption /= 1.1
	case glfw.KeyRightBracket:
		s.Steps = min(s.Steps*2, 1024)
	case glfw.KeyLeftBracket:
		s.Steps = max(s.Steps/2, 1)
	case glfw.KeyP:
		a.savePreset()
		return true
	case glfw.KeyF1:
		a.Log.SetDebug(!a.Log.DebugEnabled())
		return true
	default:
		return false
	}
	a.View.Settings = s
	a.Log.Debugf("settings: steps=%d absorption=%.2f", s.Steps, s.LightAbsorption)
	return true
}

func (a *App) savePreset() {
	path := a.Cfg.PresetPath
	if path == "" {
		path = DefaultPresetFile
	}
	preset := cloudfx.SettingsPreset{Name: a.View.Name, Volume: a.Cfg.VolumePath, Settings: a.View.Settings}
	if err := cloudfx.SaveSettingsPreset(path, preset); err != nil {
		a.Log.Errorf("save preset: %v", err)
		return
	}
	a.Log.Infof("saved preset to %s", path)
}

func (a *App) Release() {
	if a.Clouds != nil {
		a.Clouds.Release()
	}
	if a.Target != nil {
		a.Target.Release()
	}
	if a.sampler != nil {
		a.sampler.Release()
	}
}
