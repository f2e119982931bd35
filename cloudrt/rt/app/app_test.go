package app

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/cloudfx"
	"github.com/gekko3d/cloudfx/cloudrt/rt/core"
	"github.com/gekko3d/cloudfx/cloudrt/rt/gpu"
	"github.com/gekko3d/cloudfx/cloudrt/rt/volume"
)

func TestOrbitCameraEyeDistance(t *testing.T) {
	c := NewOrbitCamera()
	c.Target = mgl32.Vec3{1, 2, 3}
	for _, yaw := range []float32{0, 1, 2.5, -4} {
		c.Yaw = yaw
		d := c.Eye().Sub(c.Target).Len()
		assert.InDelta(t, c.Distance, d, 1e-4)
	}
}

func TestOrbitCameraPitchClamped(t *testing.T) {
	c := NewOrbitCamera()
	c.Drag(0, 1e6)
	assert.Less(t, c.Pitch, float32(math.Pi/2))
	c.Drag(0, -1e7)
	assert.Greater(t, c.Pitch, float32(-math.Pi/2))
}

func TestOrbitCameraZoomBounds(t *testing.T) {
	c := NewOrbitCamera()
	c.Zoom(1000)
	assert.Equal(t, float32(0.5), c.Distance)
	c.Zoom(-1000)
	assert.Equal(t, float32(50), c.Distance)
}

func TestOrbitCameraAutoRotate(t *testing.T) {
	c := NewOrbitCamera()
	yaw := c.Yaw
	c.Update(1)
	assert.InDelta(t, yaw+c.RotateSpeed, c.Yaw, 1e-6)

	c.AutoRotate = false
	c.Update(1)
	assert.InDelta(t, yaw+c.RotateSpeed, c.Yaw, 1e-6)
}

func TestOrbitCameraProjectionHandlesZeroHeight(t *testing.T) {
	c := NewOrbitCamera()
	m := c.ProjMatrix(800, 0)
	for _, v := range m {
		assert.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0))
	}
}

func TestProfilerFPS(t *testing.T) {
	p := NewProfiler()
	for i := 0; i < 59; i++ {
		assert.False(t, p.Frame(time.Second/60))
	}
	assert.True(t, p.Frame(time.Second/60+time.Millisecond))
	assert.InDelta(t, 60, p.FPS, 0.1)

	p.BeginScope("update")
	p.EndScope("update")
	p.BeginScope("render")
	p.EndScope("render")
	assert.Equal(t, []string{"update", "render"}, p.Order)
	assert.Contains(t, p.String(), "update")
}

func TestProceduralVolumeDecodes(t *testing.T) {
	data, err := ProceduralVolume(24, 3)
	require.NoError(t, err)

	dense, err := volume.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, [3]int{24, 24, 24}, dense.Extent)
	assert.Equal(t, volume.Coord{}, dense.Min)
}

func newKeyApp(t *testing.T) *App {
	t.Helper()
	a := NewApp(nil, cloudfx.Config{PresetPath: filepath.Join(t.TempDir(), "p.json")}, nil)
	a.View = gpu.NewView("main", core.DefaultCloudSettings(), "", nil)
	return a
}

func TestHandleKeyAdjustsSettings(t *testing.T) {
	a := newKeyApp(t)
	steps := a.View.Settings.Steps

	assert.True(t, a.HandleKey(glfw.KeyRightBracket, glfw.Press))
	assert.Equal(t, steps*2, a.View.Settings.Steps)

	for i := 0; i < 20; i++ {
		a.HandleKey(glfw.KeyLeftBracket, glfw.Repeat)
	}
	assert.Equal(t, uint32(1), a.View.Settings.Steps)
	assert.NoError(t, a.View.Settings.Validate())

	abs := a.View.Settings.LightAbsorption
	a.HandleKey(glfw.KeyUp, glfw.Press)
	assert.Greater(t, a.View.Settings.LightAbsorption, abs)

	assert.False(t, a.HandleKey(glfw.KeyUp, glfw.Release))
	assert.False(t, a.HandleKey(glfw.KeyQ, glfw.Press))
}

func TestHandleKeySavesPreset(t *testing.T) {
	a := newKeyApp(t)
	a.HandleKey(glfw.KeyDown, glfw.Press)
	require.True(t, a.HandleKey(glfw.KeyP, glfw.Press))

	preset, err := cloudfx.LoadSettingsPreset(a.Cfg.PresetPath)
	require.NoError(t, err)
	assert.Equal(t, "main", preset.Name)
	assert.Equal(t, a.View.Settings, preset.Settings)
}

func TestViewerNodesSkipWithoutResources(t *testing.T) {
	fc := &gpu.FrameContext{}
	view := gpu.NewView("main", core.DefaultCloudSettings(), "", nil)

	assert.False(t, (&SkyNode{}).Precondition(fc, view))
	assert.False(t, (&PresentNode{}).Precondition(fc, view))
	assert.Equal(t, MainPassName, (&SkyNode{}).Name())
	assert.Equal(t, PresentName, (&PresentNode{}).Name())
}
