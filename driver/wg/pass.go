// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wg

import (
	"github.com/gviegas/rhi/driver"
)

// renderPass implements driver.RenderPass.
// WebGPU has no render pass objects, so it only records
// what pipelines need to know about the attachments.
type renderPass struct {
	colors  []driver.PixelFmt
	ds      driver.PixelFmt
	samples int
}

// Samples returns the attachments' sample count.
func (p *renderPass) Samples() int { return p.samples }

// ColorFormats returns the color attachment formats.
func (p *renderPass) ColorFormats() []driver.PixelFmt { return p.colors }

// DSFormat returns the depth/stencil attachment format.
func (p *renderPass) DSFormat() driver.PixelFmt { return p.ds }

// framebuf implements driver.Framebuf.
type framebuf struct {
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
	e, built, err := g.passes.Get(k, func() (*passEntry, error) {
		rp := &renderPass{ds: driver.FInvalid, samples: 1}
		for _, c := range desc.Color {
			d := c.View.Image().Desc()
			rp.colors = append(rp.colors, d.Format)
			rp.samples = max(d.Samples, 1)
		}
		if desc.DS != nil {
			d := desc.DS.View.Image().Desc()
			rp.ds = d.Format
			rp.samples = max(d.Samples, 1)
		}
		return &passEntry{rp, &framebuf{desc.Width, desc.Height}}, nil
	})
	if built {
		driver.Logger().Debug("wg: render pass created", "colors", len(desc.Color), "ds", desc.DS != nil, "cached", g.passes.Len())
	}
	return e, err
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

// evictView removes the cached passes that use iv.
func (g *GPU) evictView(iv *imageView) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n := g.passes.Evict(func(k driver.PassKey) bool { return k.Uses(iv) }, nil); n > 0 {
		driver.Logger().Debug("wg: render passes evicted", "count", n)
	}
}

// invalidatePasses discards every cached pass.
func (g *GPU) invalidatePasses() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.passes.Invalidate(nil)
}
