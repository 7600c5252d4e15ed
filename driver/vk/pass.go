// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vk "github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

// renderPass implements driver.RenderPass.
type renderPass struct {
	pass    vk.RenderPass
	colors  []driver.PixelFmt
	ds      driver.PixelFmt
	samples int
	// Number of attachments, including resolve targets.
	natt int
}

// Samples returns the attachments' sample count.
func (p *renderPass) Samples() int { return p.samples }

// ColorFormats returns the color attachment formats.
func (p *renderPass) ColorFormats() []driver.PixelFmt { return p.colors }

// DSFormat returns the depth/stencil attachment format.
func (p *renderPass) DSFormat() driver.PixelFmt { return p.ds }

// framebuf implements driver.Framebuf.
type framebuf struct {
	fb     vk.Framebuffer
	width  int
	height int
}

// Size returns the framebuffer size.
func (f *framebuf) Size() (width, height int) { return f.width, f.height }

// passEntry is a value in the GPU's pass cache.
type passEntry struct {
	rp *renderPass
	fb *framebuf
}

func (e *passEntry) destroy(g *GPU) {
	if e.fb != nil {
		vk.DestroyFramebuffer(g.dev, e.fb.fb, nil)
	}
	if e.rp != nil {
		vk.DestroyRenderPass(g.dev, e.rp.pass, nil)
	}
}

// Pass returns the render pass and framebuffer that match
// desc.
func (g *GPU) Pass(desc *driver.PassDesc) (driver.RenderPass, driver.Framebuf, error) {
	e, err := g.pass(desc)
	if err != nil {
		return nil, nil, err
	}
	return e.rp, e.fb, nil
}

func (g *GPU) pass(desc *driver.PassDesc) (*passEntry, error) {
	k := driver.PassKeyOf(desc)
	g.mu.Lock()
	defer g.mu.Unlock()
	e, built, err := g.passes.Get(k, func() (*passEntry, error) { return g.newPass(desc) })
	if built {
		driver.Logger().Debug("vk: render pass created", "colors", len(desc.Color), "ds", desc.DS != nil, "cached", g.passes.Len())
	}
	return e, err
}

// finalLayout returns the layout of an attachment that
// leaves the render pass in state after.
// dflt is used when after does not define a layout.
func finalLayout(after driver.ResourceState, dflt vk.ImageLayout) vk.ImageLayout {
	if l := driver.LayoutOf(after); l != driver.LUndefined {
		return convLayout(l)
	}
	return dflt
}

// newPass creates the render pass and framebuffer of desc.
func (g *GPU) newPass(desc *driver.PassDesc) (*passEntry, error) {
	rp := &renderPass{ds: driver.FInvalid, samples: 1}
	var (
		atts    []vk.AttachmentDescription
		views   []vk.ImageView
		colors  []vk.AttachmentReference
		resolve []vk.AttachmentReference
		dsRef   *vk.AttachmentReference
	)
	hasResolve := false
	for _, c := range desc.Color {
		if c.Resolve != nil {
			hasResolve = true
		}
	}
	for _, c := range desc.Color {
		d := c.View.Image().Desc()
		rp.colors = append(rp.colors, d.Format)
		rp.samples = max(d.Samples, 1)
		final := finalLayout(c.After, vk.ImageLayoutColorAttachmentOptimal)
		colors = append(colors, vk.AttachmentReference{
			Attachment: uint32(len(atts)),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
		atts = append(atts, vk.AttachmentDescription{
			Format:         convPixelFmt(d.Format),
			Samples:        convSamples(d.Samples),
			LoadOp:         convLoadOp(driver.LoadOpOf(c.Before, c.Clear)),
			StoreOp:        convStoreOp(driver.StoreOpOf(c.After)),
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  convLayout(driver.LayoutOf(c.Before)),
			FinalLayout:    final,
		})
		views = append(views, c.View.(*imageView).view)
		if !hasResolve {
			continue
		}
		if c.Resolve == nil {
			resolve = append(resolve, vk.AttachmentReference{Attachment: vk.AttachmentUnused})
			continue
		}
		rd := c.Resolve.Image().Desc()
		resolve = append(resolve, vk.AttachmentReference{
			Attachment: uint32(len(atts)),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
		atts = append(atts, vk.AttachmentDescription{
			Format:         convPixelFmt(rd.Format),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpDontCare,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    final,
		})
		views = append(views, c.Resolve.(*imageView).view)
	}
	if ds := desc.DS; ds != nil {
		d := ds.View.Image().Desc()
		rp.ds = d.Format
		rp.samples = max(d.Samples, 1)
		dsRef = &vk.AttachmentReference{
			Attachment: uint32(len(atts)),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		load := convLoadOp(driver.LoadOpOf(ds.Before, ds.Clear))
		store := convStoreOp(driver.StoreOpOf(ds.After))
		a := vk.AttachmentDescription{
			Format:         convPixelFmt(d.Format),
			Samples:        convSamples(d.Samples),
			LoadOp:         vk.AttachmentLoadOpDontCare,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  convLayout(driver.LayoutOf(ds.Before)),
			FinalLayout:    finalLayout(ds.After, vk.ImageLayoutDepthStencilAttachmentOptimal),
		}
		if d.Format.HasDepth() {
			a.LoadOp, a.StoreOp = load, store
		}
		if d.Format.HasStencil() {
			a.StencilLoadOp, a.StencilStoreOp = load, store
		}
		atts = append(atts, a)
		views = append(views, ds.View.(*imageView).view)
	}
	rp.natt = len(atts)

	const (
		stages = vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
		access = vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit)
	)
	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(atts)),
		PAttachments:    atts,
		SubpassCount:    1,
		PSubpasses: []vk.SubpassDescription{{
			PipelineBindPoint:       vk.PipelineBindPointGraphics,
			ColorAttachmentCount:    uint32(len(colors)),
			PColorAttachments:       colors,
			PResolveAttachments:     resolve,
			PDepthStencilAttachment: dsRef,
		}},
		DependencyCount: 2,
		PDependencies: []vk.SubpassDependency{
			{
				SrcSubpass:    vk.SubpassExternal,
				DstSubpass:    0,
				SrcStageMask:  stages,
				DstStageMask:  stages,
				SrcAccessMask: access,
				DstAccessMask: access,
			},
			{
				SrcSubpass:    0,
				DstSubpass:    vk.SubpassExternal,
				SrcStageMask:  stages,
				DstStageMask:  stages,
				SrcAccessMask: access,
				DstAccessMask: access,
			},
		},
	}
	var pass vk.RenderPass
	if err := checkResult(vk.CreateRenderPass(g.dev, &info, nil, &pass)); err != nil {
		return nil, err
	}
	rp.pass = pass

	fbInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           uint32(desc.Width),
		Height:          uint32(desc.Height),
		Layers:          1,
	}
	var fb vk.Framebuffer
	if err := checkResult(vk.CreateFramebuffer(g.dev, &fbInfo, nil, &fb)); err != nil {
		vk.DestroyRenderPass(g.dev, pass, nil)
		return nil, err
	}
	return &passEntry{rp, &framebuf{fb, desc.Width, desc.Height}}, nil
}

// PassStats returns render pass cache statistics.
func (g *GPU) PassStats() driver.CacheStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	hits, misses, inval := g.passes.Stats()
	return driver.CacheStats{
		Len:           g.passes.Len(),
		Hits:          hits,
		Misses:        misses,
		Invalidations: inval,
	}
}

// evictView destroys the cached passes that use iv.
func (g *GPU) evictView(iv *imageView) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n := g.passes.Evict(func(k driver.PassKey) bool { return k.Uses(iv) }, func(e *passEntry) { e.destroy(g) }); n > 0 {
		driver.Logger().Debug("vk: render passes evicted", "count", n)
	}
}

// invalidatePasses destroys every cached pass.
func (g *GPU) invalidatePasses() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.passes.Invalidate(func(e *passEntry) { e.destroy(g) })
}
