// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wg

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gviegas/rhi/driver"
)

// pipeline implements driver.Pipeline.
type pipeline struct {
	g      *GPU
	layout hal.PipelineLayout
	// One element per set index; empty sets are nil.
	sets   []*setLayout
	render hal.RenderPipeline
	comp   hal.ComputePipeline
}

// newLayout creates the set layouts and the pipeline
// layout described by sd.
// Empty sets use the GPU's empty bind group layout.
func (g *GPU) newLayout(sd []driver.SetDesc, stages []driver.ShaderFunc) (*pipeline, error) {
	for _, f := range stages {
		if f.Code.(*shader).ref.PushConstants {
			return nil, fmt.Errorf("%w: push constants", driver.ErrUnsupported)
		}
	}
	p := &pipeline{g: g, sets: make([]*setLayout, len(sd))}
	bgls := make([]hal.BindGroupLayout, len(sd))
	for i := range sd {
		if sd[i].Empty() {
			bgls[i] = g.emptyBGL
			continue
		}
		l, err := g.newSetLayout(&sd[i])
		if err != nil {
			p.Destroy()
			return nil, err
		}
		p.sets[i] = l
		bgls[i] = l.bgl
	}
	var err error
	p.layout, err = g.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{BindGroupLayouts: bgls})
	if err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

// NewGraphPipeline creates a new graphics pipeline.
// It panics if gs.Stages is empty.
func (g *GPU) NewGraphPipeline(gs *driver.GraphState) (driver.Pipeline, error) {
	sd := driver.CheckGraph(gs)
	rp, ok := gs.Pass.(*renderPass)
	if !ok {
		panic("wg: NewGraphPipeline: render pass not created by this driver")
	}
	if gs.Raster.Fill != driver.FFill {
		return nil, fmt.Errorf("%w: line fill mode", driver.ErrUnsupported)
	}

	desc := hal.RenderPipelineDescriptor{
		Primitive: gputypes.PrimitiveState{
			Topology:  convTopology(gs.Topology),
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  convCullMode(gs.Raster.Cull),
		},
		Multisample: gputypes.MultisampleState{
			Count: uint32(rp.samples),
			Mask:  ^uint64(0),
		},
	}
	if gs.Raster.Clockwise {
		desc.Primitive.FrontFace = gputypes.FrontFaceCW
	}

	var vs, fs *driver.ShaderFunc
	for i := range gs.Stages {
		switch gs.Stages[i].Code.Stage() {
		case driver.SVertex:
			vs = &gs.Stages[i]
		case driver.SFragment:
			fs = &gs.Stages[i]
		}
	}
	if vs == nil {
		return nil, fmt.Errorf("wg: graphics pipeline requires a vertex shader")
	}
	desc.Vertex = hal.VertexState{
		Module:     vs.Code.(*shader).mod,
		EntryPoint: vs.Name,
		Buffers:    vertexLayouts(gs),
	}
	if fs != nil {
		tgts := make([]gputypes.ColorTargetState, len(rp.colors))
		for i, f := range rp.colors {
			tgts[i] = colorTarget(f, gs.Blend.For(i))
		}
		desc.Fragment = &hal.FragmentState{
			Module:     fs.Code.(*shader).mod,
			EntryPoint: fs.Name,
			Targets:    tgts,
		}
	}
	if rp.ds != driver.FInvalid {
		desc.DepthStencil = depthStencil(rp.ds, &gs.DS, &gs.Raster)
	}

	p, err := g.newLayout(sd, gs.Stages)
	if err != nil {
		return nil, err
	}
	desc.Layout = p.layout
	if p.render, err = g.dev.CreateRenderPipeline(&desc); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

// vertexLayouts converts the vertex input state of gs.
// The slice is indexed by binding number.
func vertexLayouts(gs *driver.GraphState) []gputypes.VertexBufferLayout {
	n := 0
	for _, b := range gs.Bindings {
		n = max(n, b.Nr+1)
	}
	vbl := make([]gputypes.VertexBufferLayout, n)
	for _, b := range gs.Bindings {
		vbl[b.Nr].ArrayStride = uint64(b.Stride)
		vbl[b.Nr].StepMode = gputypes.VertexStepModeVertex
		if b.Instance {
			vbl[b.Nr].StepMode = gputypes.VertexStepModeInstance
		}
	}
	for _, a := range gs.Attrs {
		vbl[a.Binding].Attributes = append(vbl[a.Binding].Attributes, gputypes.VertexAttribute{
			Format:         convVertexFmt(a.Format),
			Offset:         uint64(a.Off),
			ShaderLocation: uint32(a.Loc),
		})
	}
	return vbl
}

// colorTarget converts the blend state of a color
// attachment.
func colorTarget(f driver.PixelFmt, cb driver.ColorBlend) gputypes.ColorTargetState {
	cts := gputypes.ColorTargetState{
		Format:    convPixelFmt(f),
		WriteMask: convColorMask(cb.WriteMask),
	}
	if cb.Blend {
		cts.Blend = &gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: convBlendFac(cb.SrcFac[0]),
				DstFactor: convBlendFac(cb.DstFac[0]),
				Operation: convBlendOp(cb.Op[0]),
			},
			Alpha: gputypes.BlendComponent{
				SrcFactor: convBlendFac(cb.SrcFac[1]),
				DstFactor: convBlendFac(cb.DstFac[1]),
				Operation: convBlendOp(cb.Op[1]),
			},
		}
	}
	return cts
}

// depthStencil converts the depth/stencil state.
func depthStencil(f driver.PixelFmt, ds *driver.DSState, rs *driver.RasterState) *hal.DepthStencilState {
	s := &hal.DepthStencilState{
		Format:       convPixelFmt(f),
		DepthCompare: gputypes.CompareFunctionAlways,
		StencilFront: hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways},
		StencilBack:  hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways},
	}
	if ds.DepthTest {
		s.DepthWriteEnabled = ds.DepthWrite
		s.DepthCompare = convCmpFunc(ds.DepthCmp)
	}
	if ds.StencilTest {
		face := func(st *driver.StencilT) hal.StencilFaceState {
			return hal.StencilFaceState{
				Compare:     convCmpFunc(st.Cmp),
				FailOp:      convStencilOp(st.DSFail[0]),
				DepthFailOp: convStencilOp(st.DSFail[1]),
				PassOp:      convStencilOp(st.Pass),
			}
		}
		s.StencilFront = face(&ds.Front)
		s.StencilBack = face(&ds.Back)
		// WebGPU has a single pair of masks.
		s.StencilReadMask = ds.Front.ReadMask
		s.StencilWriteMask = ds.Front.WriteMask
	}
	if rs.DepthBias {
		s.DepthBias = int32(rs.BiasValue)
		s.DepthBiasSlopeScale = rs.BiasSlope
		s.DepthBiasClamp = rs.BiasClamp
	}
	return s
}

// NewCompPipeline creates a new compute pipeline.
func (g *GPU) NewCompPipeline(cs *driver.CompState) (driver.Pipeline, error) {
	sd := driver.CheckComp(cs)
	p, err := g.newLayout(sd, []driver.ShaderFunc{cs.Func})
	if err != nil {
		return nil, err
	}
	p.comp, err = g.dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Layout: p.layout,
		Compute: hal.ComputeState{
			Module:     cs.Func.Code.(*shader).mod,
			EntryPoint: cs.Func.Name,
		},
	})
	if err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

// Compute returns whether p is a compute pipeline.
func (p *pipeline) Compute() bool { return p.comp != nil }

// Sets returns the number of set indices p uses.
func (p *pipeline) Sets() int { return len(p.sets) }

// SetLayout returns the layout of set, or nil if the set
// is empty.
func (p *pipeline) SetLayout(set int) driver.DescSetLayout {
	if p.sets[set] == nil {
		return nil
	}
	return p.sets[set]
}

// Destroy destroys the pipeline.
// Set layouts still referenced by descriptor sets are
// kept until those are destroyed.
func (p *pipeline) Destroy() {
	if p == nil {
		return
	}
	if p.g != nil {
		g := p.g
		if p.render != nil {
			g.dev.DestroyRenderPipeline(p.render)
		}
		if p.comp != nil {
			g.dev.DestroyComputePipeline(p.comp)
		}
		if p.layout != nil {
			g.dev.DestroyPipelineLayout(p.layout)
		}
		g.mu.Lock()
		for _, l := range p.sets {
			l.unref(g)
		}
		g.mu.Unlock()
	}
	*p = pipeline{}
}
