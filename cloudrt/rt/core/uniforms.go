package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

const (
	ViewUniformSize  = 160
	LightUniformSize = 48

	// UniformStride is the dynamic offset alignment required by WebGPU
	// (minUniformBufferOffsetAlignment).
	UniformStride = 256
)

// ViewUniform mirrors struct View in clouds.wgsl:
//
//	view_proj      mat4x4<f32> @0
//	inv_view_proj  mat4x4<f32> @64
//	world_position vec3<f32>   @128
//	viewport       vec4<f32>   @144 (x, y, width, height)
type ViewUniform struct {
	ViewProj      mgl32.Mat4
	InvViewProj   mgl32.Mat4
	WorldPosition mgl32.Vec3
	Viewport      mgl32.Vec4
}

// NewViewUniform derives the inverse matrix from view and projection.
func NewViewUniform(view, proj mgl32.Mat4, eye mgl32.Vec3, width, height int) ViewUniform {
	vp := proj.Mul4(view)
	return ViewUniform{
		ViewProj:      vp,
		InvViewProj:   vp.Inv(),
		WorldPosition: eye,
		Viewport:      mgl32.Vec4{0, 0, float32(width), float32(height)},
	}
}

func (u ViewUniform) Bytes() []byte {
	buf := make([]byte, ViewUniformSize)
	putMat4(buf[0:], u.ViewProj)
	putMat4(buf[64:], u.InvViewProj)
	putVec3(buf[128:], u.WorldPosition)
	for i, v := range u.Viewport {
		putF32(buf[144+i*4:], v)
	}
	return buf
}

// LightUniform mirrors struct Light in clouds.wgsl:
//
//	direction         vec3<f32> @0 (towards the light)
//	intensity         f32       @12
//	color             vec3<f32> @16
//	ambient_intensity f32       @28
//	ambient_color     vec3<f32> @32
type LightUniform struct {
	Direction        mgl32.Vec3
	Intensity        float32
	Color            mgl32.Vec3
	AmbientIntensity float32
	AmbientColor     mgl32.Vec3
}

func DefaultLight() LightUniform {
	return LightUniform{
		Direction:        mgl32.Vec3{1, 1, -0.3}.Normalize(),
		Intensity:        1,
		Color:            mgl32.Vec3{1, 0.96, 0.9},
		AmbientIntensity: 0,
		AmbientColor:     mgl32.Vec3{0.5, 0.6, 0.8},
	}
}

func (u LightUniform) Bytes() []byte {
	buf := make([]byte, LightUniformSize)
	putVec3(buf[0:], u.Direction)
	putF32(buf[12:], u.Intensity)
	putVec3(buf[16:], u.Color)
	putF32(buf[28:], u.AmbientIntensity)
	putVec3(buf[32:], u.AmbientColor)
	return buf
}

// DynamicUniforms packs several uniform records into one buffer at
// UniformStride boundaries. It is reset each frame.
type DynamicUniforms struct {
	data []byte
}

func (d *DynamicUniforms) Reset() {
	d.data = d.data[:0]
}

// Push appends payload and returns its dynamic offset.
func (d *DynamicUniforms) Push(payload []byte) uint32 {
	off := len(d.data)
	slots := (len(payload) + UniformStride - 1) / UniformStride
	if slots == 0 {
		slots = 1
	}
	d.data = append(d.data, make([]byte, slots*UniformStride)...)
	copy(d.data[off:], payload)
	return uint32(off)
}

func (d *DynamicUniforms) Bytes() []byte {
	return d.data
}

func (d *DynamicUniforms) Len() int {
	return len(d.data)
}
