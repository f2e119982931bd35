package cloudfx

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/gekko3d/cloudfx/cloudrt/rt/core"
	"github.com/gekko3d/cloudfx/cloudrt/rt/gpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storm.json")
	s := core.DefaultCloudSettings()
	s.BoundsMin = mgl32.Vec3{-4, 0, -4}
	s.BoundsMax = mgl32.Vec3{4, 2, 4}
	s.Steps = 96
	s.LightAbsorption = 40

	require.NoError(t, SaveSettingsPreset(path, SettingsPreset{Name: "storm", Volume: "storm.cvdb", Settings: s}))

	got, err := LoadSettingsPreset(path)
	require.NoError(t, err)
	assert.Equal(t, "storm", got.Name)
	assert.Equal(t, "storm.cvdb", got.Volume)
	assert.Equal(t, s, got.Settings)
}

func TestPresetPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"settings": {"steps": 32}}`), 0644))

	got, err := LoadSettingsPreset(path)
	require.NoError(t, err)
	want := core.DefaultCloudSettings()
	want.Steps = 32
	assert.Equal(t, want, got.Settings)
}

func TestPresetRejectsInvalidSettings(t *testing.T) {
	dir := t.TempDir()
	bad := core.DefaultCloudSettings()
	bad.Steps = 0
	assert.ErrorIs(t, SaveSettingsPreset(filepath.Join(dir, "a.json"), SettingsPreset{Settings: bad}), core.ErrInvalidSettings)

	path := filepath.Join(dir, "b.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"settings": {"steps": 0}}`), 0644))
	_, err := LoadSettingsPreset(path)
	assert.ErrorIs(t, err, core.ErrInvalidSettings)

	require.NoError(t, os.WriteFile(path, []byte(`{"settings": [`), 0644))
	_, err = LoadSettingsPreset(path)
	assert.Error(t, err)

	_, err = LoadSettingsPreset(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Positive(t, cfg.Workers)

	filled := Config{VolumePath: "x.cvdb"}.WithDefaults()
	assert.Equal(t, 1280, filled.Width)
	assert.Equal(t, "x.cvdb", filled.VolumePath)
	assert.NoError(t, filled.Validate())

	assert.ErrorIs(t, Config{Width: 0, Height: 10, Workers: 1}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{Width: 10, Height: 10}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{Width: 20000, Height: 10, Workers: 1}.Validate(), ErrInvalidConfig)
}

func TestLoggers(t *testing.T) {
	l := NewDefaultLogger("clouds", false)
	assert.False(t, l.DebugEnabled())
	l.SetDebug(true)
	assert.True(t, l.DebugEnabled())
	assert.Equal(t, "[clouds] WARN: 3 views", l.format(levelWarn, "%d views", 3))

	var out, errOut bytes.Buffer
	quiet := newLogger("", false, &out, &errOut)
	quiet.Debugf("hidden")
	quiet.Infof("loaded %s", "a.cvdb")
	quiet.Errorf("failed")
	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "INFO: loaded a.cvdb")
	assert.Contains(t, errOut.String(), "ERROR: failed")
	assert.NotContains(t, out.String(), "ERROR")

	n := orNop(nil)
	assert.False(t, n.DebugEnabled())
	n.Errorf("ignored %d", 1)
}

type recordingLogger struct {
	nopLogger
	warns []string
}

func (r *recordingLogger) Warnf(format string, args ...any) {
	r.warns = append(r.warns, fmt.Sprintf(format, args...))
}

func TestPushViewReportsInvalidSettingsOnce(t *testing.T) {
	log := &recordingLogger{}
	m := &CloudModule{Log: log}
	bad := core.DefaultCloudSettings()
	bad.Steps = 0
	v := gpu.NewView("main", bad, "", nil)

	for frame := 0; frame < 60; frame++ {
		m.BeginFrame()
		m.PushView(v, core.ViewUniform{}, core.DefaultLight())
	}

	require.Len(t, log.warns, 1)
	assert.Contains(t, log.warns[0], "view main")
	assert.ErrorIs(t, v.SettingsErr, core.ErrInvalidSettings)
	_, bound := v.SettingsUniform.Binding()
	assert.False(t, bound)
	assert.Equal(t, core.UniformStride, m.ViewData.Len())
}
