// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wg

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gviegas/rhi/driver"
)

// image implements driver.Image.
type image struct {
	g    *GPU
	tex  hal.Texture
	desc driver.ImageDesc
	// Swapchain images are owned by the surface.
	// tex changes on every acquisition.
	sc *swapchain
}

// NewImage creates a new image.
func (g *GPU) NewImage(desc *driver.ImageDesc) (driver.Image, error) {
	d := *desc
	d.Layers = max(d.Layers, 1)
	d.Levels = max(d.Levels, 1)
	d.Samples = max(d.Samples, 1)
	f := convPixelFmt(d.Format)
	if f == gputypes.TextureFormatUndefined {
		return nil, fmt.Errorf("%w: pixel format %v", driver.ErrUnsupported, d.Format)
	}
	if d.Size.Width <= 0 || d.Size.Height <= 0 {
		return nil, errors.New("wg: invalid image size")
	}
	dim := gputypes.TextureDimension2D
	depth := uint32(d.Layers)
	if d.Size.Depth > 1 {
		if d.Layers > 1 {
			return nil, errors.New("wg: 3D image with multiple layers")
		}
		dim = gputypes.TextureDimension3D
		depth = uint32(d.Size.Depth)
	}
	tex, err := g.dev.CreateTexture(&hal.TextureDescriptor{
		Size: hal.Extent3D{
			Width:              uint32(d.Size.Width),
			Height:             uint32(d.Size.Height),
			DepthOrArrayLayers: depth,
		},
		MipLevelCount: uint32(d.Levels),
		SampleCount:   uint32(d.Samples),
		Dimension:     dim,
		Format:        f,
		// Copies are always allowed, since ClearImage and
		// staging rely on them.
		Usage: convImgUsage(d.Usage | driver.UCopySrc | driver.UCopyDst),
	})
	if err != nil {
		return nil, errors.Join(driver.ErrNoDeviceMemory, err)
	}
	return &image{g: g, tex: tex, desc: d}, nil
}

// Desc returns the description used to create the image.
func (m *image) Desc() driver.ImageDesc { return m.desc }

// is3D returns whether m is a 3D texture.
func (m *image) is3D() bool { return m.desc.Size.Depth > 1 }

// Destroy destroys the image.
func (m *image) Destroy() {
	if m == nil || m.sc != nil {
		// Owned by the swapchain.
		return
	}
	if m.g != nil {
		m.g.dev.DestroyTexture(m.tex)
	}
	*m = image{}
}

// imageView implements driver.ImageView.
type imageView struct {
	img    *image
	view   hal.TextureView
	typ    driver.ViewType
	layer  int
	layers int
	level  int
	levels int
}

// NewView creates a new image view.
func (m *image) NewView(typ driver.ViewType, layer, layers, level, levels int) (driver.ImageView, error) {
	if m.sc != nil {
		return nil, errors.New("wg: NewView: swapchain images only have the views given by Swapchain.Views")
	}
	if layer < 0 || layers < 1 || layer+layers > m.desc.Layers {
		return nil, errors.New("wg: image view layer range out of bounds")
	}
	if level < 0 || levels < 1 || level+levels > m.desc.Levels {
		return nil, errors.New("wg: image view level range out of bounds")
	}
	switch typ {
	case driver.IView1D, driver.IView1DArray:
		return nil, fmt.Errorf("%w: 1D image views", driver.ErrUnsupported)
	case driver.IView3D:
		if !m.is3D() {
			return nil, errors.New("wg: 3D view of non-3D image")
		}
	case driver.IViewCube, driver.IViewCubeArray:
		if layers%6 != 0 {
			return nil, errors.New("wg: cube view layer count not a multiple of 6")
		}
	case driver.IView2DMS, driver.IView2DMSArray:
		if m.desc.Samples == 1 {
			return nil, errors.New("wg: multisample view of single-sample image")
		}
	}
	iv := &imageView{
		img:    m,
		typ:    typ,
		layer:  layer,
		layers: layers,
		level:  level,
		levels: levels,
	}
	var err error
	if iv.view, err = iv.create(m.tex); err != nil {
		return nil, err
	}
	return iv, nil
}

// create creates the HAL view of tex that iv describes.
func (v *imageView) create(tex hal.Texture) (hal.TextureView, error) {
	return v.img.g.dev.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Format:          convPixelFmt(v.img.desc.Format),
		Dimension:       convViewType(v.typ),
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    uint32(v.level),
		MipLevelCount:   uint32(v.levels),
		BaseArrayLayer:  uint32(v.layer),
		ArrayLayerCount: uint32(v.layers),
	})
}

// Image returns the viewed image.
func (v *imageView) Image() driver.Image { return v.img }

// destroyView releases the HAL view only.
func (v *imageView) destroyView() {
	if v.view != nil {
		v.img.g.dev.DestroyTextureView(v.view)
		v.view = nil
	}
}

// Destroy destroys the image view.
// Render passes that use the view are evicted from the
// GPU's cache.
func (v *imageView) Destroy() {
	if v == nil {
		return
	}
	if v.img != nil && v.img.sc != nil {
		// Owned by the swapchain.
		return
	}
	if v.img != nil && v.img.g != nil {
		g := v.img.g
		g.evictView(v)
		v.destroyView()
	}
	*v = imageView{}
}

// sampler implements driver.Sampler.
type sampler struct {
	g    *GPU
	splr hal.Sampler
}

// NewSampler creates a new sampler.
func (g *GPU) NewSampler(spln *driver.Sampling) (driver.Sampler, error) {
	desc := hal.SamplerDescriptor{
		AddressModeU: convAddrMode(spln.AddrU),
		AddressModeV: convAddrMode(spln.AddrV),
		AddressModeW: convAddrMode(spln.AddrW),
		MagFilter:    convFilter(spln.Mag),
		MinFilter:    convFilter(spln.Min),
		LodMinClamp:  spln.MinLOD,
		LodMaxClamp:  spln.MaxLOD,
		Anisotropy:   uint16(max(min(spln.MaxAniso, 16), 1)),
	}
	if spln.Mipmap == driver.FNoMipmap {
		desc.MipmapFilter = gputypes.FilterModeNearest
		desc.LodMinClamp = 0
		desc.LodMaxClamp = 0.25
	} else {
		desc.MipmapFilter = convFilter(spln.Mipmap)
	}
	if desc.LodMaxClamp < desc.LodMinClamp {
		desc.LodMaxClamp = desc.LodMinClamp
	}
	if spln.Compare {
		desc.Compare = convCmpFunc(spln.Cmp)
	}
	s, err := g.dev.CreateSampler(&desc)
	if err != nil {
		return nil, err
	}
	return &sampler{g: g, splr: s}, nil
}

// Destroy destroys the sampler.
func (s *sampler) Destroy() {
	if s == nil {
		return
	}
	if s.g != nil {
		s.g.dev.DestroySampler(s.splr)
	}
	*s = sampler{}
}
