package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

var ErrInvalidSettings = errors.New("core: invalid cloud settings")

// CloudSettingsSize is the size of the settings uniform as laid out in
// clouds.wgsl.
const CloudSettingsSize = 80

// CloudSettings are the per-view raymarch tunables.
type CloudSettings struct {
	BoundsMin mgl32.Vec3 `json:"bounds_min"`
	BoundsMax mgl32.Vec3 `json:"bounds_max"`
	// Primary ray samples. Zero is rejected by Validate.
	Steps      uint32 `json:"steps"`
	LightSteps uint32 `json:"light_steps"`

	LightScattering   float32 `json:"light_scattering"`
	LightAbsorption   float32 `json:"light_absorption"`
	DarknessThreshold float32 `json:"darkness_threshold"`
	RayOffsetStrength float32 `json:"ray_offset_strength"`

	// Phase function
	BaseBrightness    float32 `json:"base_brightness"`
	PhaseFactor       float32 `json:"phase_factor"`
	ForwardScattering float32 `json:"forward_scattering"`
	BackScattering    float32 `json:"back_scattering"`
}

func DefaultCloudSettings() CloudSettings {
	return CloudSettings{
		BoundsMin:         mgl32.Vec3{-1, -1, -1},
		BoundsMax:         mgl32.Vec3{1, 1, 1},
		Steps:             250,
		LightSteps:        20,
		LightScattering:   0.5,
		LightAbsorption:   25,
		DarknessThreshold: 0.16,
		RayOffsetStrength: 0.015,
		BaseBrightness:    0.05,
		PhaseFactor:       0.55,
		ForwardScattering: 0.83,
		BackScattering:    0.3,
	}
}

func (s CloudSettings) Validate() error {
	if s.Steps == 0 {
		return fmt.Errorf("%w: steps must be > 0", ErrInvalidSettings)
	}
	for i := 0; i < 3; i++ {
		lo, hi := s.BoundsMin[i], s.BoundsMax[i]
		if isBad(lo) || isBad(hi) || lo > hi {
			return fmt.Errorf("%w: bounds %v..%v inverted or not finite on axis %d", ErrInvalidSettings, s.BoundsMin, s.BoundsMax, i)
		}
	}
	coeffs := []struct {
		name string
		v    float32
	}{
		{"light_scattering", s.LightScattering},
		{"light_absorption", s.LightAbsorption},
		{"darkness_threshold", s.DarknessThreshold},
		{"ray_offset_strength", s.RayOffsetStrength},
		{"base_brightness", s.BaseBrightness},
		{"phase_factor", s.PhaseFactor},
		{"forward_scattering", s.ForwardScattering},
		{"back_scattering", s.BackScattering},
	}
	for _, c := range coeffs {
		if isBad(c.v) || c.v < 0 {
			return fmt.Errorf("%w: %s = %v", ErrInvalidSettings, c.name, c.v)
		}
	}
	return nil
}

func isBad(v float32) bool {
	f := float64(v)
	return math.IsNaN(f) || math.IsInf(f, 0)
}

// Bytes packs the settings into the uniform layout:
//
//	bounds_min         vec3f @0
//	bounds_max         vec3f @16
//	steps              u32   @28
//	light_steps        u32   @32
//	light_scattering   f32   @36
//	light_absorption   f32   @40
//	darkness_threshold f32   @44
//	ray_offset_strength f32  @48
//	base_brightness    f32   @52
//	phase_factor       f32   @56
//	forward_scattering f32   @60
//	back_scattering    f32   @64
//	(padding to 80)
func (s CloudSettings) Bytes() []byte {
	buf := make([]byte, CloudSettingsSize)
	for _, f := range s.Schema() {
		switch v := f.Value.(type) {
		case mgl32.Vec3:
			putVec3(buf[f.Offset:], v)
		case uint32:
			binary.LittleEndian.PutUint32(buf[f.Offset:], v)
		case float32:
			putF32(buf[f.Offset:], v)
		}
	}
	return buf
}

// SchemaField describes one member of the settings uniform.
type SchemaField struct {
	Name   string
	Type   string // WGSL type
	Offset int
	Value  any
}

// Schema lists the uniform members in declaration order with their
// current values.
func (s CloudSettings) Schema() []SchemaField {
	return []SchemaField{
		{"bounds_min", "vec3<f32>", 0, s.BoundsMin},
		{"bounds_max", "vec3<f32>", 16, s.BoundsMax},
		{"steps", "u32", 28, s.Steps},
		{"light_steps", "u32", 32, s.LightSteps},
		{"light_scattering", "f32", 36, s.LightScattering},
		{"light_absorption", "f32", 40, s.LightAbsorption},
		{"darkness_threshold", "f32", 44, s.DarknessThreshold},
		{"ray_offset_strength", "f32", 48, s.RayOffsetStrength},
		{"base_brightness", "f32", 52, s.BaseBrightness},
		{"phase_factor", "f32", 56, s.PhaseFactor},
		{"forward_scattering", "f32", 60, s.ForwardScattering},
		{"back_scattering", "f32", 64, s.BackScattering},
	}
}

func putF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func putVec3(b []byte, v mgl32.Vec3) {
	putF32(b[0:], v[0])
	putF32(b[4:], v[1])
	putF32(b[8:], v[2])
}

func putMat4(b []byte, m mgl32.Mat4) {
	for i, v := range m {
		putF32(b[i*4:], v)
	}
}
