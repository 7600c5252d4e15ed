// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gogpu/naga"

	"github.com/gviegas/rhi/driver"
)

const vertWGSL = `
struct Frame {
	mvp: mat4x4<f32>,
}

@group(0) @binding(0) var<uniform> frame: Frame;

@vertex
fn vs_main(@location(0) pos: vec3<f32>) -> @builtin(position) vec4<f32> {
	return frame.mvp * vec4<f32>(pos, 1.0);
}
`

const fragWGSL = `
struct GBuffer {
	@location(0) albedo: vec4<f32>,
	@location(1) normal: vec4<f32>,
	@location(2) material: vec4<f32>,
	@location(3) emissive: vec4<f32>,
}

@fragment
fn fs_main() -> GBuffer {
	var g: GBuffer;
	g.albedo = vec4<f32>(1.0, 1.0, 1.0, 1.0);
	g.normal = vec4<f32>(0.0, 0.0, 1.0, 0.0);
	g.material = vec4<f32>(0.5, 0.5, 0.0, 1.0);
	g.emissive = vec4<f32>(0.0, 0.0, 0.0, 1.0);
	return g;
}
`

// Half-precision 1.0.
const f16One = 0x3c00

// gbuffer holds everything needed to render a triangle
// into four RGBA16f color targets and a D32f depth target.
type gbuffer struct {
	gpu    driver.GPU
	w, h   int
	imgs   [5]driver.Image
	views  [5]driver.ImageView
	desc   driver.PassDesc
	vs, fs driver.Shader
	pl     driver.Pipeline
	ubuf   driver.Buffer
	vbuf   driver.Buffer
	ds     driver.DescSet
	pool   driver.CmdPool
	cb     driver.CmdBuffer
	fence  driver.Fence
}

// newShader compiles src and creates a shader for stg.
func newShader(gpu driver.GPU, stg driver.Stage, src string) (driver.Shader, error) {
	code, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile %v shader: %w", stg, err)
	}
	return gpu.NewShader(stg, code)
}

func newGBuffer(gpu driver.GPU, w, h int) (gb *gbuffer, err error) {
	gb = &gbuffer{gpu: gpu, w: w, h: h}
	defer func() {
		if err != nil {
			gb.destroy()
			gb = nil
		}
	}()

	for i := range gb.imgs {
		f := driver.RGBA16f
		if i == 4 {
			f = driver.D32f
		}
		if gb.imgs[i], err = gpu.NewImage(&driver.ImageDesc{
			Format:  f,
			Size:    driver.Dim3D{Width: w, Height: h, Depth: 1},
			Layers:  1,
			Levels:  1,
			Samples: 1,
			Usage:   driver.URenderTarget | driver.UShaderSample | driver.UCopySrc,
		}); err != nil {
			return
		}
		if gb.views[i], err = gb.imgs[i].NewView(driver.IView2D, 0, 1, 0, 1); err != nil {
			return
		}
	}
	gb.desc = driver.PassDesc{
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
	for i := range gb.desc.Color {
		gb.desc.Color[i] = driver.ColorAttach{
			View:   gb.views[i],
			Before: driver.Undefined,
			After:  driver.ShaderReadOnly,
			Clear:  true,
		}
	}

	if gb.vs, err = newShader(gpu, driver.SVertex, vertWGSL); err != nil {
		return
	}
	if gb.fs, err = newShader(gpu, driver.SFragment, fragWGSL); err != nil {
		return
	}
	rp, _, err := gpu.Pass(&gb.desc)
	if err != nil {
		return
	}
	if gb.pl, err = gpu.NewGraphPipeline(&driver.GraphState{
		Stages: []driver.ShaderFunc{
			{Code: gb.vs, Name: "vs_main"},
			{Code: gb.fs, Name: "fs_main"},
		},
		Bindings: []driver.VertexBinding{{Nr: 0, Stride: 12}},
		Attrs:    []driver.VertexAttr{{Loc: 0, Binding: 0, Format: driver.Float32x3}},
		Topology: driver.TTriangle,
		Raster:   driver.RasterState{Cull: driver.CNone},
		DS:       driver.DSState{DepthTest: true, DepthWrite: true, DepthCmp: driver.CLess},
		Pass:     rp,
	}); err != nil {
		return
	}

	if gb.ubuf, err = gpu.NewBuffer(64, driver.UShaderConst, driver.MemCPUToGPU); err != nil {
		return
	}
	p, err := gb.ubuf.Map()
	if err != nil {
		return
	}
	// Identity.
	for i := range 4 {
		binary.LittleEndian.PutUint32(p[i*20:], math.Float32bits(1))
	}
	gb.ubuf.Unmap()
	if gb.vbuf, err = gpu.NewBuffer(36, driver.UVertexData, driver.MemCPUToGPU); err != nil {
		return
	}
	if p, err = gb.vbuf.Map(); err != nil {
		return
	}
	for i, f := range [...]float32{-1, -1, 0, 1, -1, 0, 0, 1, 0} {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(f))
	}
	gb.vbuf.Unmap()

	if gb.ds, err = gpu.NewDescSet(gb.pl.SetLayout(0)); err != nil {
		return
	}
	gpu.UpdateDescSets([]driver.DescWrite{{Set: gb.ds, Nr: 0, Buf: gb.ubuf, Size: 64}})

	if gb.pool, err = gpu.NewCmdPool(gpu.Queue(driver.QGraphics)); err != nil {
		return
	}
	if gb.cb, err = gb.pool.NewCmdBuffer(); err != nil {
		return
	}
	gb.fence, err = gpu.NewFence(false)
	return
}

// frame records and submits one frame, then waits for it
// to complete.
func (gb *gbuffer) frame() error {
	cb := gb.cb
	if err := cb.Begin(); err != nil {
		return err
	}
	cb.BeginPass(&gb.desc)
	cb.SetPipeline(gb.pl)
	cb.SetViewport(driver.Viewport{Width: float32(gb.w), Height: float32(gb.h), Zfar: 1})
	cb.SetScissor(driver.Scissor{Width: gb.w, Height: gb.h})
	cb.SetVertexBuf(0, []driver.Buffer{gb.vbuf}, []int64{0})
	cb.SetDescSet(gb.pl, 0, []driver.DescSet{gb.ds})
	cb.Draw(3, 1, 0, 0)
	cb.EndPass()
	if err := cb.End(); err != nil {
		return err
	}
	err := gb.gpu.Queue(driver.QGraphics).Submit(&driver.Submit{
		Cmds:  []driver.CmdBuffer{cb},
		Fence: gb.fence,
	})
	if err != nil {
		return err
	}
	f := []driver.Fence{gb.fence}
	if err := gb.gpu.WaitFences(f, true, 5*time.Second); err != nil {
		return err
	}
	if err := gb.gpu.ResetFences(f); err != nil {
		return err
	}
	return cb.Reset()
}

// verify reads back the center texel of the albedo target
// and checks that the triangle covered it.
func (gb *gbuffer) verify() error {
	buf, err := gb.gpu.NewBuffer(8, driver.UCopyDst, driver.MemGPUToCPU)
	if err != nil {
		return err
	}
	defer buf.Destroy()
	cb := gb.cb
	if err := cb.Begin(); err != nil {
		return err
	}
	cb.Barrier([]driver.Barrier{{Img: gb.imgs[0], Old: driver.ShaderReadOnly, New: driver.TransferSrc}})
	cb.CopyImgToBuf(&driver.BufImgCopy{
		Buf:    buf,
		Img:    gb.imgs[0],
		ImgOff: driver.Off3D{X: gb.w / 2, Y: gb.h / 2},
		Size:   driver.Dim3D{Width: 1, Height: 1, Depth: 1},
	})
	cb.Barrier([]driver.Barrier{{Buf: buf, Old: driver.TransferDst, New: driver.HostRead}})
	if err := cb.End(); err != nil {
		return err
	}
	if err := gb.gpu.Queue(driver.QGraphics).ImmediateSubmit([]driver.CmdBuffer{cb}); err != nil {
		return err
	}
	defer cb.Reset()
	p, err := buf.Map()
	if err != nil {
		return err
	}
	defer buf.Unmap()
	for i := range 4 {
		if x := binary.LittleEndian.Uint16(p[i*2:]); x != f16One {
			return errors.New("albedo: center texel was not rendered")
		}
	}
	return nil
}

func (gb *gbuffer) destroy() {
	if gb.fence != nil {
		gb.fence.Destroy()
	}
	if gb.pool != nil {
		gb.pool.Destroy()
	}
	if gb.ds != nil {
		gb.ds.Destroy()
	}
	for _, b := range [...]driver.Buffer{gb.ubuf, gb.vbuf} {
		if b != nil {
			b.Destroy()
		}
	}
	if gb.pl != nil {
		gb.pl.Destroy()
	}
	for _, s := range [...]driver.Shader{gb.vs, gb.fs} {
		if s != nil {
			s.Destroy()
		}
	}
	for i := range gb.views {
		if gb.views[i] != nil {
			gb.views[i].Destroy()
		}
		if gb.imgs[i] != nil {
			gb.imgs[i].Destroy()
		}
	}
}
