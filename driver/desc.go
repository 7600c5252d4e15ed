// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"slices"
)

// Stage is a mask of programmable stages.
type Stage int

// Stages.
const (
	SVertex Stage = 1 << iota
	SFragment
	SCompute
	// Stages that see the push constant range.
	SPushConstant = SVertex | SFragment | SCompute
)

// DescType is the type of a descriptor.
type DescType int

// Descriptor types.
const (
	// Read/write buffer.
	DBuffer DescType = iota
	// Read/write image.
	DImage
	// Constant buffer.
	DConstant
	// Sampled texture.
	DTexture
	// Texture sampler.
	DSampler
	// Sampled texture with a sampler.
	DTextureSampler
	nDescType
)

// Valid returns whether t is a known descriptor type.
func (t DescType) Valid() bool { return t >= 0 && t < nDescType }

// Binding is a descriptor binding as reflected from
// shader code: the (Set, Nr) coordinate, its type and
// its array length.
type Binding struct {
	Set   int
	Nr    int
	Type  DescType
	Count int
	// Image is only meaningful for DTexture, DImage and
	// DTextureSampler bindings.
	Image ImageInfo
}

// ImageInfo describes the image views that a binding
// accepts.
// The zero value describes a 2D view of color data in
// any format.
type ImageInfo struct {
	// Dim is 1, 2 or 3. Zero means 2.
	Dim   int
	Cube  bool
	Array bool
	MS    bool
	// Depth is set for depth textures, which are
	// sampled with comparison.
	Depth bool
	// Format is the format of storage images.
	// It is FInvalid if the code does not state it.
	Format PixelFmt
}

// ViewType returns the view type that i describes.
func (i ImageInfo) ViewType() ViewType {
	switch {
	case i.Cube && i.Array:
		return IViewCubeArray
	case i.Cube:
		return IViewCube
	case i.Dim == 1 && i.Array:
		return IView1DArray
	case i.Dim == 1:
		return IView1D
	case i.Dim == 3:
		return IView3D
	case i.MS && i.Array:
		return IView2DMSArray
	case i.MS:
		return IView2DMS
	case i.Array:
		return IView2DArray
	}
	return IView2D
}

// ShaderBindings pairs the bindings of a shader with the
// stage that uses them.
type ShaderBindings struct {
	Stage    Stage
	Bindings []Binding
}

// SetBinding is a binding in a descriptor set layout.
type SetBinding struct {
	Nr     int
	Type   DescType
	Count  int
	Stages Stage
	Image  ImageInfo
	// PartiallyBound is set for arrays (Count > 1):
	// not every element needs a valid descriptor at
	// draw time.
	PartiallyBound bool
}

// SetDesc describes the layout of one descriptor set.
// Bindings are sorted by Nr.
type SetDesc struct {
	Set        int
	Bindings   []SetBinding
	MaxBinding int
}

// Empty returns whether d has no bindings.
// No layout object exists for empty sets.
func (d *SetDesc) Empty() bool { return len(d.Bindings) == 0 }

// Binding returns the binding numbered nr, if any.
func (d *SetDesc) Binding(nr int) (SetBinding, bool) {
	i, ok := slices.BinarySearchFunc(d.Bindings, nr, func(b SetBinding, nr int) int { return b.Nr - nr })
	if !ok {
		return SetBinding{}, false
	}
	return d.Bindings[i], true
}

// MergeBindings merges the bindings of every shader stage
// into per-set layouts.
// The result has one SetDesc per set index, up to the
// highest set used; unused indices produce empty SetDescs.
// Bindings referenced by more than one stage accumulate
// the stage masks, so the order of sb does not affect
// the result.
//
// It panics if a binding has an unknown type, if two
// stages declare the same (set, binding) with different
// types, counts or image descriptions, or if a capacity
// constant is exceeded.
func MergeBindings(sb []ShaderBindings) []SetDesc {
	var tab [MaxSets][MaxBindings]*SetBinding
	nset := 0
	for _, s := range sb {
		for _, b := range s.Bindings {
			if !b.Type.Valid() {
				panic("driver: unknown descriptor type in reflection data")
			}
			if b.Set < 0 || b.Nr < 0 {
				panic("driver: negative descriptor set or binding")
			}
			checkLimit("descriptor sets", b.Set+1, MaxSets)
			checkLimit("bindings in a descriptor set", b.Nr+1, MaxBindings)
			checkLimit("descriptors in a binding", b.Count, MaxDescCount)
			n := max(b.Count, 1)
			e := tab[b.Set][b.Nr]
			if e == nil {
				tab[b.Set][b.Nr] = &SetBinding{
					Nr:             b.Nr,
					Type:           b.Type,
					Count:          n,
					Stages:         s.Stage,
					Image:          b.Image,
					PartiallyBound: n > 1,
				}
				nset = max(nset, b.Set+1)
				continue
			}
			if e.Type != b.Type || e.Count != n || e.Image != b.Image {
				panic("driver: conflicting declarations of a descriptor binding")
			}
			e.Stages |= s.Stage
		}
	}
	sd := make([]SetDesc, nset)
	for i := range sd {
		sd[i].Set = i
		for _, e := range tab[i] {
			if e != nil {
				sd[i].Bindings = append(sd[i].Bindings, *e)
				sd[i].MaxBinding = e.Nr
			}
		}
	}
	return sd
}

// Shader is the interface that defines shader code for a
// single programmable stage, along with its reflected
// descriptor bindings.
type Shader interface {
	Destroyer

	// Stage returns the stage of the shader.
	Stage() Stage

	// Bindings returns the reflected descriptor bindings.
	Bindings() []Binding
}

// ShaderFunc specifies a function within a shader.
type ShaderFunc struct {
	Code Shader
	Name string
}

// Bindings returns the shader bindings of every function
// in fn.
func Bindings(fn ...ShaderFunc) []ShaderBindings {
	sb := make([]ShaderBindings, 0, len(fn))
	for _, f := range fn {
		sb = append(sb, ShaderBindings{f.Code.Stage(), f.Code.Bindings()})
	}
	return sb
}

// DescSetLayout is the interface that defines the layout
// of a descriptor set.
// Layouts are owned by the pipeline that created them.
type DescSetLayout interface {
	// Desc returns the description of the layout.
	Desc() *SetDesc
}

// DescSet is the interface that defines a descriptor set
// allocated from a GPU's descriptor pool.
type DescSet interface {
	Destroyer

	// Layout returns the set's layout.
	Layout() DescSetLayout
}

// DescWrite describes an update to a descriptor set.
// Exactly one of Buf, View and Splr must be set, except
// for DTextureSampler bindings, which take View and Splr.
// Size of zero means the whole buffer past Off.
// State is the state that View will be in when used.
type DescWrite struct {
	Set   DescSet
	Nr    int
	Elem  int
	Buf   Buffer
	Off   int64
	Size  int64
	View  ImageView
	State ResourceState
	Splr  Sampler
}

// CheckWrite validates w against the layout of w.Set and
// returns the binding it targets.
// It panics on invalid writes.
func CheckWrite(w *DescWrite) SetBinding {
	b, ok := w.Set.Layout().Desc().Binding(w.Nr)
	if !ok {
		panic("driver: descriptor write to undeclared binding")
	}
	if w.Elem < 0 || w.Elem >= b.Count {
		panic("driver: descriptor write out of array bounds")
	}
	var ok2 bool
	switch b.Type {
	case DBuffer, DConstant:
		ok2 = w.Buf != nil && w.View == nil && w.Splr == nil
	case DImage, DTexture:
		ok2 = w.View != nil && w.Buf == nil && w.Splr == nil
	case DSampler:
		ok2 = w.Splr != nil && w.Buf == nil && w.View == nil
	case DTextureSampler:
		ok2 = w.View != nil && w.Splr != nil && w.Buf == nil
	}
	if !ok2 {
		panic("driver: descriptor write does not match binding type")
	}
	return b
}
