// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"testing"
)

func gbuffer(colors int, samples int) *PassDesc {
	d := &PassDesc{Width: 1920, Height: 1080}
	for range colors {
		d.Color = append(d.Color, ColorAttach{
			View:   newView(RGBA16f, samples),
			Before: Undefined,
			After:  ShaderReadOnly,
			Clear:  true,
		})
	}
	d.DS = &DSAttach{
		View:   newView(D32f, samples),
		Before: Undefined,
		After:  DepthStencilReadOnly,
		Clear:  true,
		Value:  ClearValue{Depth: 1},
	}
	return d
}

func TestPassKeyEqual(t *testing.T) {
	d := gbuffer(4, 1)
	k1 := PassKeyOf(d)
	k2 := PassKeyOf(d)
	if k1 != k2 {
		t.Fatal("PassKeyOf: same description yields different keys")
	}
	// Clear values are not part of the key.
	d2 := *d
	d2.Color = append([]ColorAttach(nil), d.Color...)
	d2.Color[0].Value = ClearValue{Color: [4]float32{1, 0, 0, 1}}
	if PassKeyOf(&d2) != k1 {
		t.Fatal("PassKeyOf: clear value changed the key")
	}
	if w, h := k1.Width(), k1.Height(); w != 1920 || h != 1080 {
		t.Fatalf("PassKey.Width/Height:\nhave %d, %d\nwant 1920, 1080", w, h)
	}
}

func TestPassKeyDiffers(t *testing.T) {
	base := gbuffer(2, 1)
	k := PassKeyOf(base)
	for _, x := range [...]struct {
		name   string
		modify func(*PassDesc)
	}{
		{"size", func(d *PassDesc) { d.Width = 1280 }},
		{"view", func(d *PassDesc) { d.Color[1].View = newView(RGBA16f, 1) }},
		{"format", func(d *PassDesc) { d.Color[0].View = newView(RGBA8un, 1) }},
		{"before", func(d *PassDesc) { d.Color[0].Before = ShaderReadOnly }},
		{"after", func(d *PassDesc) { d.DS.After = Undefined }},
		{"clear", func(d *PassDesc) { d.Color[1].Clear = false }},
		{"no depth", func(d *PassDesc) { d.DS = nil }},
		{"fewer colors", func(d *PassDesc) { d.Color = d.Color[:1] }},
		{"resolve", func(d *PassDesc) { d.Color[0].Resolve = newView(RGBA16f, 1) }},
	} {
		d := *base
		d.Color = append([]ColorAttach(nil), base.Color...)
		ds := *base.DS
		d.DS = &ds
		x.modify(&d)
		if PassKeyOf(&d) == k {
			t.Fatalf("PassKeyOf (%s): key did not change", x.name)
		}
	}
}

func TestPassKeyInvalid(t *testing.T) {
	mustPanic(t, "no attachments", func() { PassKeyOf(&PassDesc{Width: 1, Height: 1}) })
	mustPanic(t, "invalid size", func() {
		d := gbuffer(1, 1)
		d.Height = 0
		PassKeyOf(d)
	})
	mustPanic(t, "too many color attachments", func() { PassKeyOf(gbuffer(MaxColorAttach+1, 1)) })
	mustPanic(t, "different sample counts", func() {
		d := gbuffer(1, 4)
		d.DS.View = newView(D32f, 1)
		PassKeyOf(d)
	})
	mustPanic(t, "depth/stencil format in color attachment", func() {
		d := gbuffer(1, 1)
		d.Color[0].View = newView(D16un, 1)
		PassKeyOf(d)
	})
	mustPanic(t, "color format in depth/stencil attachment", func() {
		d := gbuffer(1, 1)
		d.DS.View = newView(RGBA8un, 1)
		PassKeyOf(d)
	})
	mustPanic(t, "nil color attachment view", func() {
		d := gbuffer(1, 1)
		d.Color[0].View = nil
		PassKeyOf(d)
	})
}

func TestLoadStoreOps(t *testing.T) {
	for _, x := range [...]struct {
		before ResourceState
		clear  bool
		want   LoadOp
	}{
		{Undefined, true, LClear},
		{ShaderReadOnly, true, LClear},
		{Undefined, false, LDontCare},
		{ColorAttachment, false, LLoad},
		{Present, false, LLoad},
	} {
		if op := LoadOpOf(x.before, x.clear); op != x.want {
			t.Fatalf("LoadOpOf(%v, %t):\nhave %v\nwant %v", x.before, x.clear, op, x.want)
		}
	}
	if op := StoreOpOf(Undefined); op != SDontCare {
		t.Fatalf("StoreOpOf(Undefined):\nhave %v\nwant %v", op, SDontCare)
	}
	if op := StoreOpOf(Present); op != SStore {
		t.Fatalf("StoreOpOf(Present):\nhave %v\nwant %v", op, SStore)
	}
}

func TestPassKeyUses(t *testing.T) {
	d := gbuffer(2, 4)
	d.Color[1].Resolve = newView(RGBA16f, 1)
	k := PassKeyOf(d)
	for i, iv := range []ImageView{d.Color[0].View, d.Color[1].View, d.Color[1].Resolve, d.DS.View} {
		if !k.Uses(iv) {
			t.Fatalf("PassKey.Uses (%d):\nhave false\nwant true", i)
		}
	}
	if k.Uses(newView(RGBA16f, 4)) {
		t.Fatal("PassKey.Uses (unrelated view):\nhave true\nwant false")
	}
}
