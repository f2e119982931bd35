package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/cloudfx/cloudrt/rt/asset"
	"github.com/gekko3d/cloudfx/cloudrt/rt/volume"
)

// VolumeFormat is the texel format of density volumes.
const VolumeFormat = wgpu.TextureFormatR16Float

// GpuVolume is a density volume resident on the GPU.
type GpuVolume struct {
	Texture *wgpu.Texture
	View    *wgpu.TextureView
	Extent  [3]int
}

// VolumeSource yields decoded volumes as they become ready.
type VolumeSource interface {
	Handles() []asset.Handle
	Get(h asset.Handle) (*volume.DenseVolume, bool)
}

// VolumeTextures uploads decoded volumes on the render thread. Each handle
// is uploaded at most once.
type VolumeTextures struct {
	log    Logger
	upload func(vol *volume.DenseVolume) (*GpuVolume, error)
	ready  map[asset.Handle]*GpuVolume
	failed map[asset.Handle]bool
}

func NewVolumeTextures(log Logger, dev *wgpu.Device, queue *wgpu.Queue) *VolumeTextures {
	t := newVolumeTextures(log)
	t.upload = func(vol *volume.DenseVolume) (*GpuVolume, error) {
		return uploadVolume(dev, queue, vol)
	}
	return t
}

func newVolumeTextures(log Logger) *VolumeTextures {
	return &VolumeTextures{
		log:    log,
		ready:  make(map[asset.Handle]*GpuVolume),
		failed: make(map[asset.Handle]bool),
	}
}

// Prepare uploads every volume that finished decoding since the last call.
// It returns the number of new textures.
func (t *VolumeTextures) Prepare(src VolumeSource) int {
	n := 0
	for _, h := range src.Handles() {
		if _, ok := t.ready[h]; ok || t.failed[h] {
			continue
		}
		vol, ok := src.Get(h)
		if !ok {
			continue
		}
		gv, err := t.upload(vol)
		if err != nil {
			t.failed[h] = true
			t.log.Errorf("volume %s: upload failed: %v", h, err)
			continue
		}
		t.ready[h] = gv
		t.log.Debugf("volume %s: uploaded %v texture", h, gv.Extent)
		n++
	}
	return n
}

func (t *VolumeTextures) Get(h asset.Handle) (*GpuVolume, bool) {
	gv, ok := t.ready[h]
	return gv, ok
}

func (t *VolumeTextures) Release() {
	for h, gv := range t.ready {
		if gv.View != nil {
			gv.View.Release()
		}
		if gv.Texture != nil {
			gv.Texture.Release()
		}
		delete(t.ready, h)
	}
}

func uploadVolume(dev *wgpu.Device, queue *wgpu.Queue, vol *volume.DenseVolume) (*GpuVolume, error) {
	if want := vol.Voxels() * 2; len(vol.Data) != want {
		return nil, fmt.Errorf("gpu: volume data is %d bytes, extent %v needs %d", len(vol.Data), vol.Extent, want)
	}
	extent := wgpu.Extent3D{
		Width:              uint32(vol.Extent[0]),
		Height:             uint32(vol.Extent[1]),
		DepthOrArrayLayers: uint32(vol.Extent[2]),
	}
	tex, err := dev.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "cloud_volume",
		Size:          extent,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension3D,
		Format:        VolumeFormat,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	err = queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		vol.Data,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(vol.BytesPerRow()),
			RowsPerImage: uint32(vol.Extent[1]),
		},
		&extent,
	)
	if err != nil {
		tex.Release()
		return nil, err
	}
	view, err := tex.CreateView(&wgpu.TextureViewDescriptor{
		Label:           "cloud_volume_view",
		Format:          VolumeFormat,
		Dimension:       wgpu.TextureViewDimension3D,
		BaseMipLevel:    0,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: 1,
	})
	if err != nil {
		tex.Release()
		return nil, err
	}
	return &GpuVolume{Texture: tex, View: view, Extent: vol.Extent}, nil
}
