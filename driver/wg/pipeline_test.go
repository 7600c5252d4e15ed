// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wg

import (
	"slices"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gviegas/rhi/driver"
)

// gbuffer creates the attachments of a G-buffer pass:
// four RGBA16f color targets and a D32f depth target.
type gbuffer struct {
	imgs  [5]driver.Image
	views [5]driver.ImageView
}

func newGBuffer(t *testing.T, w, h int) *gbuffer {
	t.Helper()
	var gb gbuffer
	for i := range 4 {
		gb.imgs[i], gb.views[i] = newTarget(t, driver.RGBA16f, w, h, 1)
	}
	gb.imgs[4], gb.views[4] = newTarget(t, driver.D32f, w, h, 1)
	return &gb
}

func (gb *gbuffer) desc(w, h int) *driver.PassDesc {
	d := &driver.PassDesc{
		Width:  w,
		Height: h,
		Color:  make([]driver.ColorAttach, 4),
		DS: &driver.DSAttach{
			View:   gb.views[4],
			Before: driver.Undefined,
			After:  driver.DepthStencilWrite,
			Clear:  true,
			Value:  driver.ClearValue{Depth: 1},
		},
	}
	for i := range d.Color {
		d.Color[i] = driver.ColorAttach{
			View:   gb.views[i],
			Before: driver.Undefined,
			After:  driver.ShaderReadOnly,
			Clear:  true,
		}
	}
	return d
}

func (gb *gbuffer) destroy() {
	for i := range gb.views {
		gb.views[i].Destroy()
		gb.imgs[i].Destroy()
	}
}

func TestPass(t *testing.T) {
	const w, h = 1920, 1080
	gb := newGBuffer(t, w, h)
	defer gb.destroy()
	desc := gb.desc(w, h)

	s0 := tGPU.PassStats()
	rp, fb, err := tGPU.Pass(desc)
	if err != nil {
		t.Fatalf("GPU.Pass:\nhave %v\nwant nil", err)
	}
	if x := rp.Samples(); x != 1 {
		t.Fatalf("RenderPass.Samples:\nhave %d\nwant 1", x)
	}
	want := []driver.PixelFmt{driver.RGBA16f, driver.RGBA16f, driver.RGBA16f, driver.RGBA16f}
	if x := rp.ColorFormats(); !slices.Equal(x, want) {
		t.Fatalf("RenderPass.ColorFormats:\nhave %v\nwant %v", x, want)
	}
	if x := rp.DSFormat(); x != driver.D32f {
		t.Fatalf("RenderPass.DSFormat:\nhave %v\nwant %v", x, driver.D32f)
	}
	if x, y := fb.Size(); x != w || y != h {
		t.Fatalf("Framebuf.Size:\nhave %d, %d\nwant %d, %d", x, y, w, h)
	}
	s1 := tGPU.PassStats()
	if s1.Misses != s0.Misses+1 || s1.Hits != s0.Hits || s1.Len != s0.Len+1 {
		t.Fatalf("GPU.PassStats:\nhave %+v\nwant one more miss than %+v", s1, s0)
	}

	// Clear values are not part of the key.
	desc.Color[2].Value.Color = [4]float32{1, 0, 1, 1}
	rp2, fb2, err := tGPU.Pass(desc)
	if err != nil {
		t.Fatalf("GPU.Pass:\nhave %v\nwant nil", err)
	}
	if rp2 != rp || fb2 != fb {
		t.Fatalf("GPU.Pass: cached\nhave %p, %p\nwant %p, %p", rp2, fb2, rp, fb)
	}
	s2 := tGPU.PassStats()
	if s2.Hits != s1.Hits+1 || s2.Misses != s1.Misses || s2.Len != s1.Len {
		t.Fatalf("GPU.PassStats:\nhave %+v\nwant one more hit than %+v", s2, s1)
	}

	// Different state transitions produce a new entry.
	desc.Color[0].After = driver.TransferSrc
	if _, _, err := tGPU.Pass(desc); err != nil {
		t.Fatalf("GPU.Pass:\nhave %v\nwant nil", err)
	}
	s3 := tGPU.PassStats()
	if s3.Misses != s2.Misses+1 || s3.Len != s2.Len+1 {
		t.Fatalf("GPU.PassStats:\nhave %+v\nwant one more miss than %+v", s3, s2)
	}

	// Destroying a view evicts every entry that uses it.
	gb.views[4].Destroy()
	gb.views[4], _ = gb.imgs[4].NewView(driver.IView2D, 0, 1, 0, 1)
	if s4 := tGPU.PassStats(); s4.Len != s0.Len {
		t.Fatalf("GPU.PassStats: Len after view destruction\nhave %d\nwant %d", s4.Len, s0.Len)
	}
}

func TestPassMS(t *testing.T) {
	const w, h = 640, 480
	ms, msv := newTarget(t, driver.RGBA8un, w, h, 4)
	defer ms.Destroy()
	defer msv.Destroy()
	rs, rsv := newTarget(t, driver.RGBA8un, w, h, 1)
	defer rs.Destroy()
	ds, dsv := newTarget(t, driver.D24unS8ui, w, h, 4)
	defer ds.Destroy()
	defer dsv.Destroy()

	desc := &driver.PassDesc{
		Width:  w,
		Height: h,
		Color: []driver.ColorAttach{{
			View:    msv,
			Resolve: rsv,
			Before:  driver.Undefined,
			After:   driver.Undefined,
			Clear:   true,
		}},
		DS: &driver.DSAttach{View: dsv, Clear: true},
	}
	rp, _, err := tGPU.Pass(desc)
	if err != nil {
		t.Fatalf("GPU.Pass:\nhave %v\nwant nil", err)
	}
	if x := rp.Samples(); x != 4 {
		t.Fatalf("RenderPass.Samples:\nhave %d\nwant 4", x)
	}
	n := tGPU.PassStats().Len
	// The resolve target also evicts.
	rsv.Destroy()
	if x := tGPU.PassStats().Len; x != n-1 {
		t.Fatalf("GPU.PassStats: Len after resolve view destruction\nhave %d\nwant %d", x, n-1)
	}
}

// newGBufPipeline creates a pipeline for the G-buffer
// pass described by desc.
func newGBufPipeline(t *testing.T, desc *driver.PassDesc) (driver.Pipeline, func()) {
	t.Helper()
	rp, _, err := tGPU.Pass(desc)
	if err != nil {
		t.Fatalf("GPU.Pass:\nhave %v\nwant nil", err)
	}
	vs := newShader(t, driver.SVertex, gbufVS)
	fs := newShader(t, driver.SFragment, gbufFS)
	pl, err := tGPU.NewGraphPipeline(&driver.GraphState{
		Stages: []driver.ShaderFunc{
			{Code: vs, Name: "vs_main"},
			{Code: fs, Name: "fs_main"},
		},
		Bindings: []driver.VertexBinding{{Nr: 0, Stride: 12}},
		Attrs:    []driver.VertexAttr{{Loc: 0, Binding: 0, Format: driver.Float32x3}},
		Topology: driver.TTriangle,
		Raster:   driver.RasterState{Cull: driver.CBack},
		DS:       driver.DSState{DepthTest: true, DepthWrite: true, DepthCmp: driver.CLess},
		Pass:     rp,
	})
	if err != nil {
		t.Fatalf("GPU.NewGraphPipeline:\nhave %v\nwant nil", err)
	}
	return pl, func() {
		pl.Destroy()
		vs.Destroy()
		fs.Destroy()
	}
}

func TestGraphPipeline(t *testing.T) {
	const w, h = 256, 256
	gb := newGBuffer(t, w, h)
	defer gb.destroy()
	pl, free := newGBufPipeline(t, gb.desc(w, h))
	defer free()

	if pl.Compute() {
		t.Fatal("Pipeline.Compute:\nhave true\nwant false")
	}
	if x := pl.Sets(); x != 1 {
		t.Fatalf("Pipeline.Sets:\nhave %d\nwant 1", x)
	}
	l := pl.SetLayout(0)
	if l == nil {
		t.Fatal("Pipeline.SetLayout(0):\nhave nil\nwant non-nil")
	}
	want := []driver.SetBinding{{Nr: 0, Type: driver.DConstant, Count: 1, Stages: driver.SVertex}}
	if x := l.Desc().Bindings; !slices.Equal(x, want) {
		t.Fatalf("DescSetLayout.Desc: Bindings\nhave %v\nwant %v", x, want)
	}

	rp, _, _ := tGPU.Pass(gb.desc(w, h))
	vs := newShader(t, driver.SVertex, gbufVS)
	defer vs.Destroy()
	gs := driver.GraphState{
		Stages: []driver.ShaderFunc{{Code: vs, Name: "vs_main"}},
		Raster: driver.RasterState{Fill: driver.FLines},
		Pass:   rp,
	}
	if _, err := tGPU.NewGraphPipeline(&gs); !isError(err, driver.ErrUnsupported) {
		t.Fatalf("GPU.NewGraphPipeline (FLines):\nhave %v\nwant %v", err, driver.ErrUnsupported)
	}
	// A pipeline with no fragment stage is valid
	// (e.g., depth-only rendering).
	gs.Raster.Fill = driver.FFill
	p, err := tGPU.NewGraphPipeline(&gs)
	if err != nil {
		t.Fatalf("GPU.NewGraphPipeline (vertex only):\nhave %v\nwant nil", err)
	}
	p.Destroy()
	if !panics(func() { tGPU.NewGraphPipeline(&driver.GraphState{Pass: rp}) }) {
		t.Fatal("GPU.NewGraphPipeline (no stages): did not panic")
	}
}

func TestCompPipeline(t *testing.T) {
	cs := newShader(t, driver.SCompute, doubleCS)
	defer cs.Destroy()
	pl, err := tGPU.NewCompPipeline(&driver.CompState{Func: driver.ShaderFunc{Code: cs, Name: "cs_main"}})
	if err != nil {
		t.Fatalf("GPU.NewCompPipeline:\nhave %v\nwant nil", err)
	}
	defer pl.Destroy()
	if !pl.Compute() {
		t.Fatal("Pipeline.Compute:\nhave false\nwant true")
	}
	if x := pl.Sets(); x != 2 {
		t.Fatalf("Pipeline.Sets:\nhave %d\nwant 2", x)
	}
	if x := pl.SetLayout(0); x != nil {
		t.Fatalf("Pipeline.SetLayout(0):\nhave %v\nwant nil", x)
	}
	want := []driver.SetBinding{{Nr: 2, Type: driver.DBuffer, Count: 1, Stages: driver.SCompute}}
	if x := pl.SetLayout(1).Desc().Bindings; !slices.Equal(x, want) {
		t.Fatalf("DescSetLayout.Desc: Bindings\nhave %v\nwant %v", x, want)
	}
	vs := newShader(t, driver.SVertex, gbufVS)
	defer vs.Destroy()
	if !panics(func() { tGPU.NewCompPipeline(&driver.CompState{Func: driver.ShaderFunc{Code: vs, Name: "vs_main"}}) }) {
		t.Fatal("GPU.NewCompPipeline (vertex shader): did not panic")
	}
}

func TestSetLayout(t *testing.T) {
	for _, x := range [...]struct {
		sd  driver.SetDesc
		err error
	}{
		{driver.SetDesc{Bindings: []driver.SetBinding{
			{Nr: 0, Type: driver.DConstant, Count: 1, Stages: driver.SVertex | driver.SFragment},
			{Nr: 1, Type: driver.DTexture, Count: 1, Stages: driver.SFragment},
			{Nr: 2, Type: driver.DSampler, Count: 1, Stages: driver.SFragment},
			{Nr: 3, Type: driver.DImage, Count: 1, Stages: driver.SCompute, Image: driver.ImageInfo{Format: driver.RGBA8un}},
			{Nr: 4, Type: driver.DBuffer, Count: 1, Stages: driver.SCompute},
		}, MaxBinding: 4}, nil},
		{driver.SetDesc{Bindings: []driver.SetBinding{
			{Nr: 0, Type: driver.DTexture, Count: 4, Stages: driver.SFragment, PartiallyBound: true},
		}}, driver.ErrUnsupported},
		{driver.SetDesc{Bindings: []driver.SetBinding{
			{Nr: 0, Type: driver.DImage, Count: 1, Stages: driver.SCompute},
		}}, driver.ErrUnsupported},
		{driver.SetDesc{Bindings: []driver.SetBinding{
			{Nr: 0, Type: driver.DTextureSampler, Count: 1, Stages: driver.SFragment},
		}}, driver.ErrUnsupported},
	} {
		l, err := tGPU.newSetLayout(&x.sd)
		if x.err != nil {
			if !isError(err, x.err) {
				t.Fatalf("GPU.newSetLayout(%v):\nhave %v\nwant %v", x.sd, err, x.err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("GPU.newSetLayout(%v):\nhave %v\nwant nil", x.sd, err)
		}
		if l.refs != 1 || l.bgl == nil {
			t.Fatalf("GPU.newSetLayout(%v):\nhave %+v\nwant one reference", x.sd, *l)
		}
		if !l.compatible(l) {
			t.Fatal("setLayout.compatible(self):\nhave false\nwant true")
		}
		tGPU.mu.Lock()
		l.unref(tGPU)
		tGPU.mu.Unlock()
		if l.bgl != nil {
			t.Fatalf("setLayout.unref: bgl\nhave %v\nwant nil", l.bgl)
		}
	}
}

func TestLayoutEntry(t *testing.T) {
	depth := driver.SetBinding{Nr: 1, Type: driver.DTexture, Count: 1, Stages: driver.SFragment,
		Image: driver.ImageInfo{Depth: true}}
	e, err := layoutEntry(&depth)
	if err != nil {
		t.Fatalf("layoutEntry (depth):\nhave %v\nwant nil", err)
	}
	if e.Texture == nil || e.Texture.SampleType != gputypes.TextureSampleTypeDepth ||
		e.Texture.ViewDimension != gputypes.TextureViewDimension2D {
		t.Fatalf("layoutEntry (depth): Texture\nhave %+v\nwant depth 2D", e.Texture)
	}

	cube := driver.SetBinding{Nr: 2, Type: driver.DTexture, Count: 1, Stages: driver.SFragment,
		Image: driver.ImageInfo{Cube: true}}
	if e, _ = layoutEntry(&cube); e.Texture == nil || e.Texture.SampleType != gputypes.TextureSampleTypeFloat ||
		e.Texture.ViewDimension != gputypes.TextureViewDimensionCube {
		t.Fatalf("layoutEntry (cube): Texture\nhave %+v\nwant float cube", e.Texture)
	}

	ms := driver.SetBinding{Nr: 3, Type: driver.DTexture, Count: 1, Stages: driver.SFragment,
		Image: driver.ImageInfo{MS: true}}
	if e, _ = layoutEntry(&ms); e.Texture == nil || !e.Texture.Multisampled {
		t.Fatalf("layoutEntry (multisampled): Texture\nhave %+v\nwant multisampled", e.Texture)
	}

	img := driver.SetBinding{Nr: 4, Type: driver.DImage, Count: 1, Stages: driver.SCompute,
		Image: driver.ImageInfo{Array: true, Format: driver.R32f}}
	e, err = layoutEntry(&img)
	if err != nil {
		t.Fatalf("layoutEntry (storage):\nhave %v\nwant nil", err)
	}
	if e.StorageTexture == nil || e.StorageTexture.Format != gputypes.TextureFormatR32Float ||
		e.StorageTexture.ViewDimension != gputypes.TextureViewDimension2DArray {
		t.Fatalf("layoutEntry (storage): StorageTexture\nhave %+v\nwant R32Float 2DArray", e.StorageTexture)
	}
	if e.Binding != 4 || e.Visibility != gputypes.ShaderStageCompute {
		t.Fatalf("layoutEntry (storage):\nhave binding %d, visibility %v\nwant 4, %v", e.Binding, e.Visibility, gputypes.ShaderStageCompute)
	}

	// Layouts holding such bindings can be created.
	sd := driver.SetDesc{Bindings: []driver.SetBinding{depth, cube}, MaxBinding: 2}
	l, err := tGPU.newSetLayout(&sd)
	if err != nil {
		t.Fatalf("GPU.newSetLayout:\nhave %v\nwant nil", err)
	}
	tGPU.mu.Lock()
	l.unref(tGPU)
	tGPU.mu.Unlock()
}

func TestDescSet(t *testing.T) {
	cs := newShader(t, driver.SCompute, doubleCS)
	defer cs.Destroy()
	pl, err := tGPU.NewCompPipeline(&driver.CompState{Func: driver.ShaderFunc{Code: cs, Name: "cs_main"}})
	if err != nil {
		t.Fatalf("GPU.NewCompPipeline:\nhave %v\nwant nil", err)
	}
	layout := pl.SetLayout(1)
	n := tGPU.nsets
	ds, err := tGPU.NewDescSet(layout)
	if err != nil {
		t.Fatalf("GPU.NewDescSet:\nhave %v\nwant nil", err)
	}
	if x := ds.Layout(); x != layout {
		t.Fatalf("DescSet.Layout:\nhave %p\nwant %p", x, layout)
	}
	if tGPU.nsets != n+1 {
		t.Fatalf("GPU.nsets:\nhave %d\nwant %d", tGPU.nsets, n+1)
	}
	s := ds.(*descSet)
	if !panics(func() { s.bindGroup() }) {
		t.Fatal("descSet.bindGroup (unwritten): did not panic")
	}

	buf, err := tGPU.NewBuffer(256, driver.UShaderRead|driver.UShaderWrite, driver.MemGPUOnly)
	if err != nil {
		t.Fatalf("GPU.NewBuffer:\nhave %v\nwant nil", err)
	}
	defer buf.Destroy()
	tGPU.UpdateDescSets([]driver.DescWrite{{Set: ds, Nr: 2, Buf: buf}})
	if !s.wrote[0] {
		t.Fatal("GPU.UpdateDescSets: wrote[0]\nhave false\nwant true")
	}
	if x := s.ents[0].Binding; x != 2 {
		t.Fatalf("GPU.UpdateDescSets: ents[0].Binding\nhave %d\nwant 2", x)
	}
	grp := s.bindGroup()
	if grp == nil || s.bindGroup() != grp {
		t.Fatal("descSet.bindGroup: group not created once")
	}
	// Rewriting drops the bind group.
	tGPU.UpdateDescSets([]driver.DescWrite{{Set: ds, Nr: 2, Buf: buf, Off: 128, Size: 128}})
	if s.group != nil {
		t.Fatalf("GPU.UpdateDescSets: group\nhave %v\nwant nil", s.group)
	}

	for _, w := range [...]driver.DescWrite{
		{Set: ds, Nr: 0, Buf: buf},
		{Set: ds, Nr: 2, Elem: 1, Buf: buf},
		{Set: ds, Nr: 2},
		{Set: ds, Nr: 2, Buf: buf, Off: 256},
		{Set: ds, Nr: 2, Buf: buf, Off: 128, Size: 256},
	} {
		if !panics(func() { tGPU.UpdateDescSets([]driver.DescWrite{w}) }) {
			t.Fatalf("GPU.UpdateDescSets(%+v): did not panic", w)
		}
	}

	// The layout outlives the pipeline while sets use it.
	l := s.layout
	pl.Destroy()
	if l.bgl == nil || l.refs != 1 {
		t.Fatalf("pipeline.Destroy: layout\nhave %+v\nwant one reference", *l)
	}
	ds.Destroy()
	if l.bgl != nil || l.refs != 0 {
		t.Fatalf("descSet.Destroy: layout\nhave %+v\nwant no references", *l)
	}
	if tGPU.nsets != n {
		t.Fatalf("GPU.nsets:\nhave %d\nwant %d", tGPU.nsets, n)
	}
}
