package app

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// OrbitCamera circles a target point. It turns slowly on its own unless
// the user is dragging.
type OrbitCamera struct {
	Target   mgl32.Vec3
	Distance float32
	Yaw      float32
	Pitch    float32
	FovY     float32

	AutoRotate  bool
	RotateSpeed float32 // radians per second
	Sensitivity float32
}

func NewOrbitCamera() *OrbitCamera {
	return &OrbitCamera{
		Target:      mgl32.Vec3{0, 0, 0},
		Distance:    3.2,
		Yaw:         -0.35,
		Pitch:       0.3,
		FovY:        mgl32.DegToRad(55),
		AutoRotate:  true,
		RotateSpeed: 0.6,
		Sensitivity: 0.005,
	}
}

func (c *OrbitCamera) Update(dt float32) {
	if c.AutoRotate {
		c.Yaw += c.RotateSpeed * dt
	}
}

// Drag applies a mouse delta in pixels.
func (c *OrbitCamera) Drag(dx, dy float32) {
	c.Yaw += dx * c.Sensitivity
	c.Pitch += dy * c.Sensitivity
	const limit = math.Pi/2 - 0.05
	c.Pitch = mgl32.Clamp(c.Pitch, -limit, limit)
}

func (c *OrbitCamera) Zoom(steps float32) {
	c.Distance = mgl32.Clamp(c.Distance*float32(math.Pow(0.9, float64(steps))), 0.5, 50)
}

func (c *OrbitCamera) Eye() mgl32.Vec3 {
	cp := float32(math.Cos(float64(c.Pitch)))
	return c.Target.Add(mgl32.Vec3{
		c.Distance * cp * float32(math.Sin(float64(c.Yaw))),
		c.Distance * float32(math.Sin(float64(c.Pitch))),
		c.Distance * cp * float32(math.Cos(float64(c.Yaw))),
	})
}

func (c *OrbitCamera) ViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(c.Eye(), c.Target, mgl32.Vec3{0, 1, 0})
}

func (c *OrbitCamera) ProjMatrix(width, height int) mgl32.Mat4 {
	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	return mgl32.Perspective(c.FovY, aspect, 0.05, 200)
}
