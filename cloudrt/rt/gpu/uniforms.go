package gpu

import (
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/cloudfx/cloudrt/rt/core"
)

type BufferDevice interface {
	CreateBuffer(desc *wgpu.BufferDescriptor) (*wgpu.Buffer, error)
}

type BufferQueue interface {
	WriteBuffer(buffer *wgpu.Buffer, offset uint64, data []byte) error
}

var releaseBuffer = func(b *wgpu.Buffer) { b.Release() }

// UniformBuffer is a GPU uniform buffer that grows on demand. It counts as
// bound only after a successful upload.
type UniformBuffer struct {
	Label string

	buf   *wgpu.Buffer
	size  uint64
	bound bool
}

// Upload writes data, reallocating the buffer when it is too small.
func (u *UniformBuffer) Upload(dev BufferDevice, queue BufferQueue, data []byte) error {
	if err := u.ensure(dev, uint64(len(data))); err != nil {
		u.bound = false
		return err
	}
	if err := queue.WriteBuffer(u.buf, 0, data); err != nil {
		u.bound = false
		return err
	}
	u.bound = true
	return nil
}

func (u *UniformBuffer) ensure(dev BufferDevice, need uint64) error {
	if u.buf != nil && u.size >= need {
		return nil
	}
	size := uint64(core.UniformStride)
	for size < need {
		size *= 2
	}
	buf, err := dev.CreateBuffer(&wgpu.BufferDescriptor{
		Label: u.Label,
		Size:  size,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	if u.buf != nil {
		releaseBuffer(u.buf)
	}
	u.buf = buf
	u.size = size
	return nil
}

// Binding returns the buffer if it holds valid data.
func (u *UniformBuffer) Binding() (*wgpu.Buffer, bool) {
	if !u.bound || u.buf == nil {
		return nil, false
	}
	return u.buf, true
}

// Unbind keeps the allocation but stops exposing it.
func (u *UniformBuffer) Unbind() {
	u.bound = false
}

func (u *UniformBuffer) Size() uint64 {
	return u.size
}

func (u *UniformBuffer) Release() {
	if u.buf != nil {
		releaseBuffer(u.buf)
	}
	u.buf = nil
	u.size = 0
	u.bound = false
}

// UploadSettings validates s and uploads it. Invalid settings leave the
// buffer unbound so the cloud node skips the view.
func (u *UniformBuffer) UploadSettings(dev BufferDevice, queue BufferQueue, s core.CloudSettings) error {
	if err := s.Validate(); err != nil {
		u.bound = false
		return err
	}
	return u.Upload(dev, queue, s.Bytes())
}
