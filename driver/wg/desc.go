// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wg

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gviegas/rhi/driver"
)

// setLayout implements driver.DescSetLayout.
// It is shared by the pipeline that creates it and the
// descriptor sets allocated from it, and is destroyed
// when the last of them is.
type setLayout struct {
	desc driver.SetDesc
	bgl  hal.BindGroupLayout
	refs int
}

// newSetLayout creates the bind group layout of sd.
// sd must not be empty.
func (g *GPU) newSetLayout(sd *driver.SetDesc) (*setLayout, error) {
	ents := make([]gputypes.BindGroupLayoutEntry, 0, len(sd.Bindings))
	for _, b := range sd.Bindings {
		e, err := layoutEntry(&b)
		if err != nil {
			return nil, fmt.Errorf("%w at set %d, binding %d", err, sd.Set, b.Nr)
		}
		ents = append(ents, e)
	}
	bgl, err := g.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Entries: ents})
	if err != nil {
		return nil, err
	}
	return &setLayout{desc: *sd, bgl: bgl, refs: 1}, nil
}

// layoutEntry converts a binding into a bind group layout
// entry.
// Texture and storage image entries take their view
// dimension from b.Image.
func layoutEntry(b *driver.SetBinding) (gputypes.BindGroupLayoutEntry, error) {
	e := gputypes.BindGroupLayoutEntry{
		Binding:    uint32(b.Nr),
		Visibility: convStage(b.Stages),
	}
	if b.Count > 1 {
		return e, fmt.Errorf("%w: descriptor array", driver.ErrUnsupported)
	}
	switch b.Type {
	case driver.DBuffer:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
	case driver.DConstant:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
	case driver.DImage:
		if b.Image.Format == driver.FInvalid {
			return e, fmt.Errorf("%w: storage image of unknown format", driver.ErrUnsupported)
		}
		e.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessReadWrite,
			Format:        convPixelFmt(b.Image.Format),
			ViewDimension: convViewType(b.Image.ViewType()),
		}
	case driver.DTexture:
		e.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: convViewType(b.Image.ViewType()),
			Multisampled:  b.Image.MS,
		}
		if b.Image.Depth {
			e.Texture.SampleType = gputypes.TextureSampleTypeDepth
		}
	case driver.DSampler:
		e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	case driver.DTextureSampler:
		return e, fmt.Errorf("%w: combined image sampler", driver.ErrUnsupported)
	default:
		panic("wg: unknown descriptor type")
	}
	return e, nil
}

// Desc returns the description of the layout.
func (l *setLayout) Desc() *driver.SetDesc { return &l.desc }

// unref drops a reference to l.
// The caller must hold g.mu.
func (l *setLayout) unref(g *GPU) {
	if l == nil {
		return
	}
	if l.refs--; l.refs == 0 {
		g.dev.DestroyBindGroupLayout(l.bgl)
		l.bgl = nil
	}
}

// compatible returns whether sets allocated from l can be
// bound where other is expected.
func (l *setLayout) compatible(other *setLayout) bool {
	return l == other || slices.Equal(l.desc.Bindings, other.desc.Bindings)
}

// descSet implements driver.DescSet.
// The bind group is created lazily, when the set is bound
// after being written.
type descSet struct {
	g      *GPU
	layout *setLayout
	ents   []gputypes.BindGroupEntry
	wrote  []bool
	group  hal.BindGroup
}

// NewDescSet allocates a new descriptor set.
func (g *GPU) NewDescSet(layout driver.DescSetLayout) (driver.DescSet, error) {
	l, ok := layout.(*setLayout)
	if !ok || l == nil {
		panic("wg: NewDescSet: layout not created by this driver")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.nsets >= driver.MaxDescSets {
		return nil, fmt.Errorf("%w: descriptor pool exhausted", driver.ErrNoDeviceMemory)
	}
	g.nsets++
	l.refs++
	n := len(l.desc.Bindings)
	return &descSet{
		g:      g,
		layout: l,
		ents:   make([]gputypes.BindGroupEntry, n),
		wrote:  make([]bool, n),
	}, nil
}

// Layout returns the set's layout.
func (s *descSet) Layout() driver.DescSetLayout { return s.layout }

// UpdateDescSets applies a batch of descriptor writes.
func (g *GPU) UpdateDescSets(w []driver.DescWrite) {
	for i := range w {
		b := driver.CheckWrite(&w[i])
		s := w[i].Set.(*descSet)
		var res gputypes.BindingResource
		switch b.Type {
		case driver.DBuffer, driver.DConstant:
			buf := w[i].Buf.(*buffer)
			size := w[i].Size
			if w[i].Off < 0 || w[i].Off >= buf.size || size < 0 || w[i].Off+size > buf.size {
				panic("wg: descriptor write out of buffer bounds")
			}
			if size == 0 {
				size = buf.size - w[i].Off
			}
			res = gputypes.BufferBinding{
				Buffer: buf.buf.NativeHandle(),
				Offset: uint64(w[i].Off),
				Size:   uint64(size),
			}
		case driver.DImage, driver.DTexture:
			v := w[i].View.(*imageView)
			if v.img.sc != nil {
				panic("wg: swapchain view in descriptor set")
			}
			res = gputypes.TextureViewBinding{TextureView: v.view.NativeHandle()}
		case driver.DSampler:
			res = gputypes.SamplerBinding{Sampler: w[i].Splr.(*sampler).splr.NativeHandle()}
		}
		j := s.index(b.Nr)
		s.ents[j] = gputypes.BindGroupEntry{Binding: uint32(b.Nr), Resource: res}
		s.wrote[j] = true
		// Work that used the old group is complete at
		// this point.
		s.release()
	}
}

// index returns the position of binding nr in s.ents.
func (s *descSet) index(nr int) int {
	i, _ := slices.BinarySearchFunc(s.layout.desc.Bindings, nr, func(b driver.SetBinding, nr int) int { return b.Nr - nr })
	return i
}

// bindGroup returns the bind group of s, creating it if
// needed.
// It panics if some binding was never written.
func (s *descSet) bindGroup() hal.BindGroup {
	if s.group != nil {
		return s.group
	}
	for i, ok := range s.wrote {
		if !ok {
			panic(fmt.Sprintf("wg: descriptor set bound with unwritten binding %d", s.layout.desc.Bindings[i].Nr))
		}
	}
	grp, err := s.g.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Layout:  s.layout.bgl,
		Entries: s.ents,
	})
	if err != nil {
		panic("wg: bind group creation failed: " + err.Error())
	}
	s.group = grp
	return grp
}

func (s *descSet) release() {
	if s.group != nil {
		s.g.dev.DestroyBindGroup(s.group)
		s.group = nil
	}
}

// Destroy destroys the descriptor set.
func (s *descSet) Destroy() {
	if s == nil {
		return
	}
	if s.g != nil {
		s.release()
		s.g.mu.Lock()
		s.g.nsets--
		s.layout.unref(s.g)
		s.g.mu.Unlock()
	}
	*s = descSet{}
}
