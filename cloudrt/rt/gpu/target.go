package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// HDRFormat is the format of view targets.
const HDRFormat = wgpu.TextureFormatRGBA16Float

// PostProcessWrite pairs the texture to sample with the texture to render
// into. The two are always distinct.
type PostProcessWrite struct {
	Source      *wgpu.TextureView
	Destination *wgpu.TextureView
}

// ViewTarget is a ping-pong pair of color targets. The main texture holds
// the latest scene color.
type ViewTarget struct {
	Width, Height uint32

	views    [2]*wgpu.TextureView
	textures [2]*wgpu.Texture
	main     int
	owned    bool
}

// NewViewTarget wraps two existing views. a starts as the main texture.
func NewViewTarget(a, b *wgpu.TextureView) *ViewTarget {
	if a == b {
		panic("gpu: view target needs two distinct textures")
	}
	return &ViewTarget{views: [2]*wgpu.TextureView{a, b}}
}

type TextureDevice interface {
	CreateTexture(desc *wgpu.TextureDescriptor) (*wgpu.Texture, error)
}

// CreateViewTarget allocates both halves of the pair.
func CreateViewTarget(dev TextureDevice, width, height uint32) (*ViewTarget, error) {
	t := &ViewTarget{Width: width, Height: height, owned: true}
	for i := range t.textures {
		tex, err := dev.CreateTexture(&wgpu.TextureDescriptor{
			Label:         fmt.Sprintf("view_target_%d", i),
			Size:          wgpu.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     wgpu.TextureDimension2D,
			Format:        HDRFormat,
			Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding,
		})
		if err != nil {
			t.Release()
			return nil, err
		}
		t.textures[i] = tex
		t.views[i], err = tex.CreateView(nil)
		if err != nil {
			t.Release()
			return nil, err
		}
	}
	return t, nil
}

// Main is the texture holding the current scene color.
func (t *ViewTarget) Main() *wgpu.TextureView {
	return t.views[t.main]
}

// PostProcessWrite hands out the current main texture as Source and the
// other as Destination, then makes Destination the new main texture.
func (t *ViewTarget) PostProcessWrite() PostProcessWrite {
	src := t.main
	t.main ^= 1
	return PostProcessWrite{Source: t.views[src], Destination: t.views[t.main]}
}

// Release frees textures created by CreateViewTarget. Wrapped views are
// left to their owner.
func (t *ViewTarget) Release() {
	if !t.owned {
		return
	}
	for i := range t.views {
		if t.views[i] != nil {
			t.views[i].Release()
		}
		if t.textures[i] != nil {
			t.textures[i].Release()
		}
		t.views[i] = nil
		t.textures[i] = nil
	}
}
