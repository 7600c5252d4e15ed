// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"fmt"
	"slices"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

// setLayout implements driver.DescSetLayout.
// It is shared by the pipeline that creates it and the
// descriptor sets allocated from it, and is destroyed
// when the last of them is.
type setLayout struct {
	desc   driver.SetDesc
	handle vk.DescriptorSetLayout
	refs   int
}

// createSetLayout creates a descriptor set layout with the
// given bindings.
func (g *GPU) createSetLayout(bindings []driver.SetBinding) (vk.DescriptorSetLayout, error) {
	binds := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	flags := make([]vk.DescriptorBindingFlags, len(bindings))
	partial := false
	for i, b := range bindings {
		binds[i] = vk.DescriptorSetLayoutBinding{
			Binding:         uint32(b.Nr),
			DescriptorType:  convDescType(b.Type),
			DescriptorCount: uint32(max(b.Count, 1)),
			StageFlags:      convStage(b.Stages),
		}
		if b.PartiallyBound {
			if !g.partial {
				return vk.NullDescriptorSetLayout, fmt.Errorf("%w: partially bound binding %d", driver.ErrUnsupported, b.Nr)
			}
			flags[i] = vk.DescriptorBindingFlags(vk.DescriptorBindingPartiallyBoundBit)
			partial = true
		}
	}
	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(binds)),
		PBindings:    binds,
	}
	if partial {
		fi := vk.DescriptorSetLayoutBindingFlagsCreateInfo{
			SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
			BindingCount:  uint32(len(flags)),
			PBindingFlags: flags,
		}
		fi.PassRef()
		defer fi.Free()
		info.PNext = unsafe.Pointer(fi.Ref())
	}
	var dsl vk.DescriptorSetLayout
	if err := checkResult(vk.CreateDescriptorSetLayout(g.dev, &info, nil, &dsl)); err != nil {
		return vk.NullDescriptorSetLayout, err
	}
	return dsl, nil
}

// newSetLayout creates the layout of sd.
// sd must not be empty.
func (g *GPU) newSetLayout(sd *driver.SetDesc) (*setLayout, error) {
	dsl, err := g.createSetLayout(sd.Bindings)
	if err != nil {
		return nil, err
	}
	return &setLayout{desc: *sd, handle: dsl, refs: 1}, nil
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
		vk.DestroyDescriptorSetLayout(g.dev, l.handle, nil)
		l.handle = vk.NullDescriptorSetLayout
	}
}

// compatible returns whether sets allocated from l can be
// bound where other is expected.
func (l *setLayout) compatible(other *setLayout) bool {
	return l == other || slices.Equal(l.desc.Bindings, other.desc.Bindings)
}

// descSet implements driver.DescSet.
type descSet struct {
	g      *GPU
	layout *setLayout
	set    vk.DescriptorSet
	slot   int
	wrote  []bool
}

// NewDescSet allocates a new descriptor set.
func (g *GPU) NewDescSet(layout driver.DescSetLayout) (driver.DescSet, error) {
	l, ok := layout.(*setLayout)
	if !ok || l == nil {
		panic("vk: NewDescSet: layout not created by this driver")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	slot, ok := g.slots.Alloc(1)
	if !ok {
		return nil, fmt.Errorf("%w: descriptor pool exhausted", driver.ErrNoDeviceMemory)
	}
	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     g.dpool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{l.handle},
	}
	var set vk.DescriptorSet
	if err := checkResult(vk.AllocateDescriptorSets(g.dev, &info, &set)); err != nil {
		g.slots.Free(slot, 1)
		return nil, err
	}
	l.refs++
	return &descSet{
		g:      g,
		layout: l,
		set:    set,
		slot:   slot,
		wrote:  make([]bool, len(l.desc.Bindings)),
	}, nil
}

// Layout returns the set's layout.
func (s *descSet) Layout() driver.DescSetLayout { return s.layout }

// imageLayout returns the layout that a view written to a
// binding of type t is expected to be in.
func imageLayout(t driver.DescType, state driver.ResourceState) vk.ImageLayout {
	if l := driver.LayoutOf(state); l != driver.LUndefined {
		return convLayout(l)
	}
	if t == driver.DImage {
		return vk.ImageLayoutGeneral
	}
	return vk.ImageLayoutShaderReadOnlyOptimal
}

// UpdateDescSets applies a batch of descriptor writes.
func (g *GPU) UpdateDescSets(w []driver.DescWrite) {
	if len(w) == 0 {
		return
	}
	writes := make([]vk.WriteDescriptorSet, len(w))
	for i := range w {
		b := driver.CheckWrite(&w[i])
		s := w[i].Set.(*descSet)
		wr := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          s.set,
			DstBinding:      uint32(b.Nr),
			DstArrayElement: uint32(w[i].Elem),
			DescriptorCount: 1,
			DescriptorType:  convDescType(b.Type),
		}
		switch b.Type {
		case driver.DBuffer, driver.DConstant:
			buf := w[i].Buf.(*buffer)
			size := w[i].Size
			if w[i].Off < 0 || w[i].Off >= buf.size || size < 0 || w[i].Off+size > buf.size {
				panic("vk: descriptor write out of buffer bounds")
			}
			if size == 0 {
				size = buf.size - w[i].Off
			}
			wr.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buf.buf,
				Offset: vk.DeviceSize(w[i].Off),
				Range:  vk.DeviceSize(size),
			}}
		case driver.DImage, driver.DTexture, driver.DTextureSampler:
			v := w[i].View.(*imageView)
			if v.img.sc != nil {
				panic("vk: swapchain view in descriptor set")
			}
			ii := vk.DescriptorImageInfo{
				ImageView:   v.view,
				ImageLayout: imageLayout(b.Type, w[i].State),
			}
			if b.Type == driver.DTextureSampler {
				ii.Sampler = w[i].Splr.(*sampler).splr
			}
			wr.PImageInfo = []vk.DescriptorImageInfo{ii}
		case driver.DSampler:
			wr.PImageInfo = []vk.DescriptorImageInfo{{Sampler: w[i].Splr.(*sampler).splr}}
		}
		writes[i] = wr
		s.wrote[s.index(b.Nr)] = true
	}
	vk.UpdateDescriptorSets(g.dev, uint32(len(writes)), writes, 0, nil)
}

// index returns the position of binding nr in the layout.
func (s *descSet) index(nr int) int {
	i, _ := slices.BinarySearchFunc(s.layout.desc.Bindings, nr, func(b driver.SetBinding, nr int) int { return b.Nr - nr })
	return i
}

// check panics if some binding that is not partially
// bound was never written.
func (s *descSet) check() {
	for i, ok := range s.wrote {
		if b := &s.layout.desc.Bindings[i]; !ok && !b.PartiallyBound {
			panic(fmt.Sprintf("vk: descriptor set bound with unwritten binding %d", b.Nr))
		}
	}
}

// Destroy destroys the descriptor set.
func (s *descSet) Destroy() {
	if s == nil {
		return
	}
	if s.g != nil {
		g := s.g
		g.mu.Lock()
		if err := checkResult(vk.FreeDescriptorSets(g.dev, g.dpool, 1, &s.set)); err != nil {
			driver.Logger().Warn("vk: FreeDescriptorSets failed", "err", err)
		}
		g.slots.Free(s.slot, 1)
		s.layout.unref(g)
		g.mu.Unlock()
	}
	*s = descSet{}
}
