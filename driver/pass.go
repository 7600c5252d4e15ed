// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

// LoadOp is the type of an attachment's load operation.
type LoadOp int

// Load operations.
const (
	LDontCare LoadOp = iota
	LClear
	LLoad
)

// StoreOp is the type of an attachment's store operation.
type StoreOp int

// Store operations.
const (
	SDontCare StoreOp = iota
	SStore
)

// LoadOpOf returns the load operation of an attachment
// that enters the render pass in the given state.
// Contents in the Undefined state need not be loaded.
func LoadOpOf(before ResourceState, clear bool) LoadOp {
	switch {
	case clear:
		return LClear
	case before == Undefined:
		return LDontCare
	}
	return LLoad
}

// StoreOpOf returns the store operation of an attachment
// that leaves the render pass in the given state.
// Leaving in the Undefined state discards the contents.
func StoreOpOf(after ResourceState) StoreOp {
	if after == Undefined {
		return SDontCare
	}
	return SStore
}

// ColorAttach describes a color attachment of a render
// pass.
// Before and After are the states that the attachment is
// in when the pass begins and after it ends; they select
// the attachment's load/store operations and layouts.
// Resolve, if not nil, is a single-sample view that
// receives the resolved contents of View.
type ColorAttach struct {
	View    ImageView
	Resolve ImageView
	Before  ResourceState
	After   ResourceState
	Clear   bool
	Value   ClearValue
}

// DSAttach describes the depth/stencil attachment of a
// render pass.
type DSAttach struct {
	View   ImageView
	Before ResourceState
	After  ResourceState
	Clear  bool
	Value  ClearValue
}

// PassDesc describes a render pass and the framebuffer it
// renders into.
type PassDesc struct {
	Width  int
	Height int
	Color  []ColorAttach
	DS     *DSAttach
}

type attachKey struct {
	view    ImageView
	resolve ImageView
	format  PixelFmt
	before  ResourceState
	after   ResourceState
	clear   bool
}

// PassKey is the fingerprint of a PassDesc.
// Two descriptions with equal keys render with the same
// render pass and framebuffer.
// Clear values are not part of the key.
type PassKey struct {
	n      int
	width  int
	height int
	hasDS  bool
	att    [MaxColorAttach + 1]attachKey
}

// PassKeyOf computes the fingerprint of desc.
// It panics if desc has more than MaxColorAttach color
// attachments, no attachments at all, a non-positive
// size, or attachments whose sample counts differ.
func PassKeyOf(desc *PassDesc) PassKey {
	checkLimit("color attachments", len(desc.Color), MaxColorAttach)
	if len(desc.Color) == 0 && desc.DS == nil {
		panic("driver: render pass with no attachments")
	}
	if desc.Width <= 0 || desc.Height <= 0 {
		panic("driver: render pass with invalid size")
	}
	k := PassKey{
		n:      len(desc.Color),
		width:  desc.Width,
		height: desc.Height,
		hasDS:  desc.DS != nil,
	}
	samples := -1
	sampleCheck := func(iv ImageView) PixelFmt {
		d := iv.Image().Desc()
		n := max(d.Samples, 1)
		if samples == -1 {
			samples = n
		} else if samples != n {
			panic("driver: render pass attachments with different sample counts")
		}
		return d.Format
	}
	for i, c := range desc.Color {
		if c.View == nil {
			panic("driver: nil color attachment view")
		}
		f := sampleCheck(c.View)
		if f.IsDS() {
			panic("driver: depth/stencil format in color attachment")
		}
		k.att[i] = attachKey{c.View, c.Resolve, f, c.Before, c.After, c.Clear}
	}
	if ds := desc.DS; ds != nil {
		if ds.View == nil {
			panic("driver: nil depth/stencil attachment view")
		}
		f := sampleCheck(ds.View)
		if !f.IsDS() {
			panic("driver: color format in depth/stencil attachment")
		}
		k.att[MaxColorAttach] = attachKey{ds.View, nil, f, ds.Before, ds.After, ds.Clear}
	}
	return k
}

// Width returns the framebuffer width in k.
func (k *PassKey) Width() int { return k.width }

// Height returns the framebuffer height in k.
func (k *PassKey) Height() int { return k.height }

// Uses returns whether iv is an attachment (or resolve
// target) in k.
// Backends use it to evict cache entries when a view is
// destroyed.
func (k *PassKey) Uses(iv ImageView) bool {
	for i := range k.att {
		if k.att[i].view == iv || (k.att[i].resolve != nil && k.att[i].resolve == iv) {
			return true
		}
	}
	return false
}

// RenderPass is the interface that defines a render pass
// into which draw commands operate.
// Render passes are owned by the GPU's cache and must not
// be destroyed by callers.
type RenderPass interface {
	// Samples returns the sample count of the pass'
	// attachments.
	Samples() int

	// ColorFormats returns the formats of the color
	// attachments, in order.
	ColorFormats() []PixelFmt

	// DSFormat returns the format of the depth/stencil
	// attachment, or FInvalid if there is none.
	DSFormat() PixelFmt
}

// Framebuf is the interface that defines the render targets
// of a render pass.
// Framebuffers are owned by the GPU's cache.
type Framebuf interface {
	// Size returns the framebuffer's width and height.
	Size() (width, height int)
}

// CacheStats holds render pass cache statistics.
type CacheStats struct {
	Len    int
	Hits   int
	Misses int
	// Invalidations counts how many times the whole
	// cache was discarded.
	Invalidations int
}
