// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

// image implements driver.Image.
type image struct {
	g    *GPU
	img  vk.Image
	m    *memory
	typ  vk.ImageType
	desc driver.ImageDesc
	// Swapchain images are owned by the swapchain.
	sc *swapchain
}

// NewImage creates a new image.
// Images whose height and depth are 1 and that are not
// render targets are one-dimensional.
func (g *GPU) NewImage(desc *driver.ImageDesc) (driver.Image, error) {
	d := *desc
	d.Layers = max(d.Layers, 1)
	d.Levels = max(d.Levels, 1)
	d.Samples = max(d.Samples, 1)
	f := convPixelFmt(d.Format)
	if f == vk.FormatUndefined {
		return nil, fmt.Errorf("%w: pixel format %v", driver.ErrUnsupported, d.Format)
	}
	if d.Size.Width <= 0 || d.Size.Height <= 0 {
		return nil, errors.New("vk: invalid image size")
	}
	typ := vk.ImageType2d
	switch {
	case d.Size.Depth > 1:
		if d.Layers > 1 {
			return nil, errors.New("vk: 3D image with multiple layers")
		}
		typ = vk.ImageType3d
	case d.Size.Height == 1 && d.Usage&driver.URenderTarget == 0:
		typ = vk.ImageType1d
	}
	var flags vk.ImageCreateFlagBits
	if typ == vk.ImageType2d && d.Layers >= 6 && d.Size.Width == d.Size.Height && d.Samples == 1 {
		flags |= vk.ImageCreateCubeCompatibleBit
	}
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     vk.ImageCreateFlags(flags),
		ImageType: typ,
		Format:    f,
		Extent: vk.Extent3D{
			Width:  uint32(d.Size.Width),
			Height: uint32(d.Size.Height),
			Depth:  uint32(max(d.Size.Depth, 1)),
		},
		MipLevels:   uint32(d.Levels),
		ArrayLayers: uint32(d.Layers),
		Samples:     convSamples(d.Samples),
		Tiling:      vk.ImageTilingOptimal,
		// Copies are always allowed, since ClearImage and
		// staging rely on them.
		Usage:         convImgUsage(d.Usage|driver.UCopySrc|driver.UCopyDst, d.Format),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var img vk.Image
	if err := checkResult(vk.CreateImage(g.dev, &info, nil, &img)); err != nil {
		return nil, err
	}
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(g.dev, img, &req)
	req.Deref()
	m, err := g.alloc(req, driver.MemGPUOnly, true)
	if err != nil {
		vk.DestroyImage(g.dev, img, nil)
		return nil, err
	}
	if err := checkResult(vk.BindImageMemory(g.dev, img, m.b.mem, vk.DeviceSize(m.off))); err != nil {
		g.freeMem(m)
		vk.DestroyImage(g.dev, img, nil)
		return nil, err
	}
	return &image{g: g, img: img, m: m, typ: typ, desc: d}, nil
}

// Desc returns the description used to create the image.
func (m *image) Desc() driver.ImageDesc { return m.desc }

// Destroy destroys the image.
func (m *image) Destroy() {
	if m == nil || m.sc != nil {
		// Owned by the swapchain.
		return
	}
	if m.g != nil {
		vk.DestroyImage(m.g.dev, m.img, nil)
		m.g.freeMem(m.m)
	}
	*m = image{}
}

// subresources returns the range covering every
// subresource of m.
func (m *image) subresources() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask: fullAspect(m.desc.Format),
		LevelCount: uint32(m.desc.Levels),
		LayerCount: uint32(m.desc.Layers),
	}
}

// imageView implements driver.ImageView.
type imageView struct {
	img    *image
	view   vk.ImageView
	typ    driver.ViewType
	layer  int
	layers int
	level  int
	levels int
}

// NewView creates a new image view.
func (m *image) NewView(typ driver.ViewType, layer, layers, level, levels int) (driver.ImageView, error) {
	if m.sc != nil {
		return nil, errors.New("vk: NewView: swapchain images only have the views given by Swapchain.Views")
	}
	if layer < 0 || layers < 1 || layer+layers > m.desc.Layers {
		return nil, errors.New("vk: image view layer range out of bounds")
	}
	if level < 0 || levels < 1 || level+levels > m.desc.Levels {
		return nil, errors.New("vk: image view level range out of bounds")
	}
	switch typ {
	case driver.IView1D, driver.IView1DArray:
		if m.typ != vk.ImageType1d {
			return nil, errors.New("vk: 1D view of non-1D image")
		}
	case driver.IView3D:
		if m.typ != vk.ImageType3d {
			return nil, errors.New("vk: 3D view of non-3D image")
		}
	case driver.IViewCube, driver.IViewCubeArray:
		if layers%6 != 0 {
			return nil, errors.New("vk: cube view layer count not a multiple of 6")
		}
		if m.desc.Size.Width != m.desc.Size.Height {
			return nil, errors.New("vk: cube view of non-square image")
		}
	case driver.IView2DMS, driver.IView2DMSArray:
		if m.desc.Samples == 1 {
			return nil, errors.New("vk: multisample view of single-sample image")
		}
	default:
		if m.typ != vk.ImageType2d {
			return nil, errors.New("vk: 2D view of non-2D image")
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
	if iv.view, err = iv.create(m.img); err != nil {
		return nil, err
	}
	return iv, nil
}

// create creates the Vulkan view of img that v describes.
func (v *imageView) create(img vk.Image) (vk.ImageView, error) {
	f := v.img.desc.Format
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img,
		ViewType: convViewType(v.typ),
		Format:   convPixelFmt(f),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     fullAspect(f),
			BaseMipLevel:   uint32(v.level),
			LevelCount:     uint32(v.levels),
			BaseArrayLayer: uint32(v.layer),
			LayerCount:     uint32(v.layers),
		},
	}
	var view vk.ImageView
	if err := checkResult(vk.CreateImageView(v.img.g.dev, &info, nil, &view)); err != nil {
		return vk.ImageView(vk.NullHandle), err
	}
	return view, nil
}

// Image returns the viewed image.
func (v *imageView) Image() driver.Image { return v.img }

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
		vk.DestroyImageView(g.dev, v.view, nil)
	}
	*v = imageView{}
}

// sampler implements driver.Sampler.
type sampler struct {
	g    *GPU
	splr vk.Sampler
}

// NewSampler creates a new sampler.
func (g *GPU) NewSampler(spln *driver.Sampling) (driver.Sampler, error) {
	info := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    convFilter(spln.Mag),
		MinFilter:    convFilter(spln.Min),
		MipmapMode:   convMipmap(spln.Mipmap),
		AddressModeU: convAddrMode(spln.AddrU),
		AddressModeV: convAddrMode(spln.AddrV),
		AddressModeW: convAddrMode(spln.AddrW),
		MinLod:       spln.MinLOD,
		MaxLod:       spln.MaxLOD,
		BorderColor:  vk.BorderColorFloatTransparentBlack,
	}
	if spln.Mipmap == driver.FNoMipmap {
		info.MinLod = 0
		info.MaxLod = 0.25
	}
	if info.MaxLod < info.MinLod {
		info.MaxLod = info.MinLod
	}
	if spln.MaxAniso > 1 && g.feat.SamplerAnisotropy == vk.True {
		info.AnisotropyEnable = vk.True
		info.MaxAnisotropy = min(float32(spln.MaxAniso), g.limits.MaxSamplerAnisotropy)
	}
	if spln.Compare {
		info.CompareEnable = vk.True
		info.CompareOp = convCmpFunc(spln.Cmp)
	}
	var s vk.Sampler
	if err := checkResult(vk.CreateSampler(g.dev, &info, nil, &s)); err != nil {
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
		vk.DestroySampler(s.g.dev, s.splr, nil)
	}
	*s = sampler{}
}
