// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package spirv

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/gviegas/rhi/driver"
)

// module assembles a SPIR-V module from instructions.
type module struct{ w []uint32 }

func newModule() *module {
	return &module{w: []uint32{Magic, 0x00010300, 0, 100, 0}}
}

func (m *module) op(op uint32, args ...uint32) *module {
	m.w = append(m.w, uint32(len(args)+1)<<16|op)
	m.w = append(m.w, args...)
	return m
}

func str(s string) []uint32 {
	b := append([]byte(s), 0)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	w := make([]uint32, len(b)/4)
	for i := range w {
		w[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return w
}

func (m *module) entry(model, id uint32, name string) *module {
	return m.op(opEntryPoint, append([]uint32{model, id}, str(name)...)...)
}

func (m *module) bytes(order binary.ByteOrder) []byte {
	b := make([]byte, len(m.w)*4)
	for i, x := range m.w {
		order.PutUint32(b[i*4:], x)
	}
	return b
}

func (m *module) binding(id, set, nr uint32) *module {
	return m.op(opDecorate, id, decDescriptorSet, set).op(opDecorate, id, decBinding, nr)
}

// sample declares, for both vertex and fragment stages:
//
//	set 0, binding 0: uniform block
//	set 0, binding 1: sampler
//	set 1, binding 0: texture array of 4
//	set 1, binding 2: storage buffer
//	set 2, binding 3: storage image
//	set 2, binding 4: combined image/sampler
//	push constant block
func sample() *module {
	return newModule().
		entry(execVertex, 1, "vs_main").
		entry(execFragment, 2, "fs_main").
		binding(10, 0, 0).
		binding(11, 0, 1).
		binding(12, 1, 0).
		binding(13, 1, 2).
		binding(14, 2, 3).
		binding(15, 2, 4).
		op(opDecorate, 20, decBlock).
		op(opDecorate, 21, decBlock).
		op(opTypeStruct, 20).
		op(opTypeStruct, 21).
		op(opTypeSampler, 22).
		op(opTypeImage, 23, 99, 1, 0, 0, 0, 1, 0).
		op(opTypeImage, 24, 99, 1, 0, 0, 0, 2, 1).
		op(opTypeSampledImage, 25, 23).
		op(opConstant, 98, 26, 4).
		op(opTypeArray, 27, 23, 26).
		op(opTypePointer, 30, scUniform, 20).
		op(opTypePointer, 31, scUniformConstant, 22).
		op(opTypePointer, 32, scUniformConstant, 27).
		op(opTypePointer, 33, scStorageBuffer, 21).
		op(opTypePointer, 34, scUniformConstant, 24).
		op(opTypePointer, 35, scUniformConstant, 25).
		op(opTypePointer, 36, scPushConstant, 20).
		op(opVariable, 30, 10, scUniform).
		op(opVariable, 31, 11, scUniformConstant).
		op(opVariable, 32, 12, scUniformConstant).
		op(opVariable, 33, 13, scStorageBuffer).
		op(opVariable, 34, 14, scUniformConstant).
		op(opVariable, 35, 15, scUniformConstant).
		op(opVariable, 36, 16, scPushConstant)
}

func TestReflect(t *testing.T) {
	want := []driver.Binding{
		{Set: 0, Nr: 0, Type: driver.DConstant, Count: 1},
		{Set: 0, Nr: 1, Type: driver.DSampler, Count: 1},
		{Set: 1, Nr: 0, Type: driver.DTexture, Count: 4},
		{Set: 1, Nr: 2, Type: driver.DBuffer, Count: 1},
		{Set: 2, Nr: 3, Type: driver.DImage, Count: 1, Image: driver.ImageInfo{Format: driver.RGBA32f}},
		{Set: 2, Nr: 4, Type: driver.DTextureSampler, Count: 1},
	}
	for _, order := range [...]binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		m, err := Reflect(sample().bytes(order))
		if err != nil {
			t.Fatalf("Reflect (%v):\nhave %v\nwant nil", order, err)
		}
		if len(m.Bindings) != len(want) {
			t.Fatalf("Reflect (%v): Bindings:\nhave %v\nwant %v", order, m.Bindings, want)
		}
		for i := range want {
			if m.Bindings[i] != want[i] {
				t.Fatalf("Reflect (%v): Bindings[%d]:\nhave %v\nwant %v", order, i, m.Bindings[i], want[i])
			}
		}
		if !m.PushConstants {
			t.Fatalf("Reflect (%v): PushConstants:\nhave false\nwant true", order)
		}
		if s := m.Stage(); s != driver.SVertex|driver.SFragment {
			t.Fatalf("Reflect (%v): Stage:\nhave %v\nwant %v", order, s, driver.SVertex|driver.SFragment)
		}
		if e, ok := m.Entry("fs_main"); !ok || e.Stage != driver.SFragment {
			t.Fatalf("Reflect (%v): Entry(fs_main):\nhave %v, %t\nwant {fs_main SFragment}, true", order, e, ok)
		}
		if _, ok := m.Entry("main"); ok {
			t.Fatalf("Reflect (%v): Entry(main):\nhave true\nwant false", order)
		}
	}
}

func TestReflectBufferBlock(t *testing.T) {
	m, err := Reflect(newModule().
		entry(execCompute, 1, "main").
		binding(10, 0, 0).
		binding(11, 0, 1).
		op(opDecorate, 20, decBufferBlock).
		op(opTypeStruct, 20).
		op(opTypeRuntimeArray, 21, 20).
		op(opTypePointer, 30, scUniform, 20).
		op(opTypePointer, 31, scStorageBuffer, 21).
		op(opVariable, 30, 10, scUniform).
		op(opVariable, 31, 11, scStorageBuffer).
		bytes(binary.LittleEndian))
	if err != nil {
		t.Fatalf("Reflect:\nhave %v\nwant nil", err)
	}
	want := []driver.Binding{
		{Set: 0, Nr: 0, Type: driver.DBuffer, Count: 1},
		{Set: 0, Nr: 1, Type: driver.DBuffer, Count: driver.MaxDescCount},
	}
	if len(m.Bindings) != 2 || m.Bindings[0] != want[0] || m.Bindings[1] != want[1] {
		t.Fatalf("Reflect: Bindings:\nhave %v\nwant %v", m.Bindings, want)
	}
	if s := m.Stage(); s != driver.SCompute {
		t.Fatalf("Reflect: Stage:\nhave %v\nwant %v", s, driver.SCompute)
	}
	if m.PushConstants {
		t.Fatal("Reflect: PushConstants:\nhave true\nwant false")
	}
}

func TestReflectImages(t *testing.T) {
	m, err := Reflect(newModule().
		entry(execFragment, 1, "fs_main").
		binding(10, 0, 0).
		binding(11, 0, 1).
		binding(12, 0, 2).
		binding(13, 0, 3).
		binding(14, 0, 4).
		binding(15, 0, 5).
		// depth 2D, cube, 2D array, multisampled, 1D storage,
		// 3D storage of unknown format.
		op(opTypeImage, 20, 99, 1, 1, 0, 0, 1, 0).
		op(opTypeImage, 21, 99, dimCube, 0, 0, 0, 1, 0).
		op(opTypeImage, 22, 99, 1, 0, 1, 0, 1, 0).
		op(opTypeImage, 23, 99, 1, 0, 0, 1, 1, 0).
		op(opTypeImage, 24, 99, dim1D, 0, 0, 0, 2, 2).
		op(opTypeImage, 25, 99, dim3D, 0, 0, 0, 2, 0).
		op(opTypeSampledImage, 26, 21).
		op(opTypePointer, 30, scUniformConstant, 20).
		op(opTypePointer, 31, scUniformConstant, 26).
		op(opTypePointer, 32, scUniformConstant, 22).
		op(opTypePointer, 33, scUniformConstant, 23).
		op(opTypePointer, 34, scUniformConstant, 24).
		op(opTypePointer, 35, scUniformConstant, 25).
		op(opVariable, 30, 10, scUniformConstant).
		op(opVariable, 31, 11, scUniformConstant).
		op(opVariable, 32, 12, scUniformConstant).
		op(opVariable, 33, 13, scUniformConstant).
		op(opVariable, 34, 14, scUniformConstant).
		op(opVariable, 35, 15, scUniformConstant).
		bytes(binary.LittleEndian))
	if err != nil {
		t.Fatalf("Reflect:\nhave %v\nwant nil", err)
	}
	want := [...]struct {
		typ  driver.DescType
		info driver.ImageInfo
		view driver.ViewType
	}{
		{driver.DTexture, driver.ImageInfo{Depth: true}, driver.IView2D},
		{driver.DTextureSampler, driver.ImageInfo{Cube: true}, driver.IViewCube},
		{driver.DTexture, driver.ImageInfo{Array: true}, driver.IView2DArray},
		{driver.DTexture, driver.ImageInfo{MS: true}, driver.IView2DMS},
		{driver.DImage, driver.ImageInfo{Dim: 1, Format: driver.RGBA16f}, driver.IView1D},
		{driver.DImage, driver.ImageInfo{Dim: 3}, driver.IView3D},
	}
	if len(m.Bindings) != len(want) {
		t.Fatalf("Reflect: Bindings:\nhave %v\nwant %d bindings", m.Bindings, len(want))
	}
	for i, x := range want {
		b := m.Bindings[i]
		if b.Type != x.typ || b.Image != x.info {
			t.Fatalf("Reflect: Bindings[%d]:\nhave %v, %+v\nwant %v, %+v", i, b.Type, b.Image, x.typ, x.info)
		}
		if v := b.Image.ViewType(); v != x.view {
			t.Fatalf("Reflect: Bindings[%d].Image.ViewType:\nhave %v\nwant %v", i, v, x.view)
		}
	}
}

func TestReflectMerge(t *testing.T) {
	m, err := Reflect(sample().bytes(binary.LittleEndian))
	if err != nil {
		t.Fatal(err)
	}
	sets := driver.MergeBindings([]driver.ShaderBindings{{Stage: m.Stage(), Bindings: m.Bindings}})
	if len(sets) != 3 {
		t.Fatalf("MergeBindings: len:\nhave %d\nwant 3", len(sets))
	}
	b, ok := sets[1].Binding(0)
	if !ok || !b.PartiallyBound || b.Count != 4 {
		t.Fatalf("sets[1].Binding(0):\nhave %v, %t\nwant partially bound array of 4", b, ok)
	}
}

func TestReflectInvalid(t *testing.T) {
	valid := sample().bytes(binary.LittleEndian)
	truncated := newModule().op(opTypePointer, 30, scUniform)
	truncated.w[len(truncated.w)-3] = 5<<16 | opTypePointer
	for _, x := range [...]struct {
		name string
		code []byte
	}{
		{"empty", nil},
		{"short", valid[:16]},
		{"unaligned", valid[:len(valid)-1]},
		{"bad magic", append([]byte{1, 2, 3, 4}, valid[4:]...)},
		{"truncated", truncated.bytes(binary.LittleEndian)},
		{"zero word count", append(newModule().bytes(binary.LittleEndian), 0, 0, 0, 0)},
		{"array length not constant", newModule().
			binding(10, 0, 0).
			op(opTypeSampler, 22).
			op(opTypeArray, 27, 22, 77).
			op(opTypePointer, 32, scUniformConstant, 27).
			op(opVariable, 32, 10, scUniformConstant).
			bytes(binary.LittleEndian)},
	} {
		if _, err := Reflect(x.code); !errors.Is(err, ErrInvalid) {
			t.Fatalf("Reflect (%s):\nhave %v\nwant %v", x.name, err, ErrInvalid)
		}
	}
}

func TestReflectUnsupported(t *testing.T) {
	code := newModule().
		binding(10, 0, 0).
		op(opTypeAccelerationStruct, 22).
		op(opTypePointer, 32, scUniformConstant, 22).
		op(opVariable, 32, 10, scUniformConstant).
		bytes(binary.LittleEndian)
	defer func() {
		x := recover()
		if s, ok := x.(string); !ok || !strings.HasPrefix(s, "spirv: unsupported descriptor kind") {
			t.Fatalf("Reflect: panic:\nhave %v\nwant unsupported descriptor kind", x)
		}
	}()
	Reflect(code)
}
