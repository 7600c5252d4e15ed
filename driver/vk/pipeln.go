// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

// pipeline implements driver.Pipeline.
type pipeline struct {
	g      *GPU
	layout vk.PipelineLayout
	// One element per set index; empty sets are nil.
	sets []*setLayout
	pl   vk.Pipeline
	bp   vk.PipelineBindPoint
	// Stages and size of the push constant range.
	pcStages vk.ShaderStageFlags
	pcSize   int
}

// newLayout creates the set layouts and the pipeline
// layout described by sd.
// Every pipeline reserves the same push constant range,
// visible to all stages, so layouts remain compatible
// across pipelines.
func (g *GPU) newLayout(sd []driver.SetDesc) (*pipeline, error) {
	p := &pipeline{
		g:        g,
		sets:     make([]*setLayout, len(sd)),
		pcStages: convStage(driver.SPushConstant),
		pcSize:   min(int(g.limits.MaxPushConstantsSize), driver.MaxPushConstant),
	}
	dsls := make([]vk.DescriptorSetLayout, len(sd))
	for i := range sd {
		if sd[i].Empty() {
			dsls[i] = g.emptyDSL
			continue
		}
		l, err := g.newSetLayout(&sd[i])
		if err != nil {
			p.Destroy()
			return nil, err
		}
		p.sets[i] = l
		dsls[i] = l.handle
	}
	info := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(dsls)),
		PSetLayouts:    dsls,
	}
	if p.pcSize > 0 {
		info.PushConstantRangeCount = 1
		info.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: p.pcStages,
			Size:       uint32(p.pcSize),
		}}
	}
	if err := checkResult(vk.CreatePipelineLayout(g.dev, &info, nil, &p.layout)); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

// stageInfo converts a shader function.
func stageInfo(f *driver.ShaderFunc) vk.PipelineShaderStageCreateInfo {
	s := f.Code.(*shader)
	var bit vk.ShaderStageFlagBits
	switch s.stg {
	case driver.SVertex:
		bit = vk.ShaderStageVertexBit
	case driver.SFragment:
		bit = vk.ShaderStageFragmentBit
	case driver.SCompute:
		bit = vk.ShaderStageComputeBit
	default:
		panic("vk: invalid shader stage")
	}
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  bit,
		Module: s.mod,
		PName:  f.Name + "\x00",
	}
}

// NewGraphPipeline creates a new graphics pipeline.
// It panics if gs.Stages is empty.
func (g *GPU) NewGraphPipeline(gs *driver.GraphState) (driver.Pipeline, error) {
	sd := driver.CheckGraph(gs)
	rp, ok := gs.Pass.(*renderPass)
	if !ok {
		panic("vk: NewGraphPipeline: render pass not created by this driver")
	}
	if gs.Raster.Fill == driver.FLines && g.feat.FillModeNonSolid != vk.True {
		return nil, fmt.Errorf("%w: line fill mode", driver.ErrUnsupported)
	}
	if gs.Blend.IndependentBlend && g.feat.IndependentBlend != vk.True {
		return nil, fmt.Errorf("%w: independent blend", driver.ErrUnsupported)
	}

	var stages []vk.PipelineShaderStageCreateInfo
	hasVS := false
	for i := range gs.Stages {
		stages = append(stages, stageInfo(&gs.Stages[i]))
		stg := gs.Stages[i].Code.Stage()
		hasVS = hasVS || stg == driver.SVertex
	}
	if !hasVS {
		return nil, fmt.Errorf("vk: graphics pipeline requires a vertex shader")
	}

	binds := make([]vk.VertexInputBindingDescription, len(gs.Bindings))
	for i, b := range gs.Bindings {
		binds[i] = vk.VertexInputBindingDescription{
			Binding:   uint32(b.Nr),
			Stride:    uint32(b.Stride),
			InputRate: vk.VertexInputRateVertex,
		}
		if b.Instance {
			binds[i].InputRate = vk.VertexInputRateInstance
		}
	}
	attrs := make([]vk.VertexInputAttributeDescription, len(gs.Attrs))
	for i, a := range gs.Attrs {
		attrs[i] = vk.VertexInputAttributeDescription{
			Location: uint32(a.Loc),
			Binding:  uint32(a.Binding),
			Format:   convVertexFmt(a.Format),
			Offset:   uint32(a.Off),
		}
	}
	vertex := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(binds)),
		PVertexBindingDescriptions:      binds,
		VertexAttributeDescriptionCount: uint32(len(attrs)),
		PVertexAttributeDescriptions:    attrs,
	}
	assembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: convTopology(gs.Topology),
	}
	viewport := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	raster := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: convFillMode(gs.Raster.Fill),
		CullMode:    convCullMode(gs.Raster.Cull),
		FrontFace:   vk.FrontFaceCounterClockwise,
		LineWidth:   1,
	}
	if gs.Raster.Clockwise {
		raster.FrontFace = vk.FrontFaceClockwise
	}
	if gs.Raster.DepthBias {
		raster.DepthBiasEnable = vk.True
		raster.DepthBiasConstantFactor = gs.Raster.BiasValue
		raster.DepthBiasSlopeFactor = gs.Raster.BiasSlope
		if g.feat.DepthBiasClamp == vk.True {
			raster.DepthBiasClamp = gs.Raster.BiasClamp
		}
	}
	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: convSamples(rp.samples),
	}
	ds := depthStencil(&gs.DS)
	blends := make([]vk.PipelineColorBlendAttachmentState, len(rp.colors))
	for i := range blends {
		blends[i] = colorBlend(gs.Blend.For(i))
	}
	blend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blends)),
		PAttachments:    blends,
	}
	dyn := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
		vk.DynamicStateBlendConstants,
		vk.DynamicStateStencilReference,
	}
	dynamic := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dyn)),
		PDynamicStates:    dyn,
	}

	p, err := g.newLayout(sd)
	if err != nil {
		return nil, err
	}
	p.bp = vk.PipelineBindPointGraphics
	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertex,
		PInputAssemblyState: &assembly,
		PViewportState:      &viewport,
		PRasterizationState: &raster,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &ds,
		PColorBlendState:    &blend,
		PDynamicState:       &dynamic,
		Layout:              p.layout,
		RenderPass:          rp.pass,
		BasePipelineHandle:  vk.Pipeline(vk.NullHandle),
		BasePipelineIndex:   -1,
	}
	pls := make([]vk.Pipeline, 1)
	if err := checkResult(vk.CreateGraphicsPipelines(g.dev, vk.PipelineCache(vk.NullHandle), 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pls)); err != nil {
		p.Destroy()
		return nil, err
	}
	p.pl = pls[0]
	return p, nil
}

// depthStencil converts the depth/stencil state.
func depthStencil(ds *driver.DSState) vk.PipelineDepthStencilStateCreateInfo {
	s := vk.PipelineDepthStencilStateCreateInfo{
		SType:          vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthCompareOp: vk.CompareOpAlways,
	}
	if ds.DepthTest {
		s.DepthTestEnable = vk.True
		s.DepthCompareOp = convCmpFunc(ds.DepthCmp)
		if ds.DepthWrite {
			s.DepthWriteEnable = vk.True
		}
	}
	if ds.StencilTest {
		face := func(st *driver.StencilT) vk.StencilOpState {
			return vk.StencilOpState{
				FailOp:      convStencilOp(st.DSFail[0]),
				DepthFailOp: convStencilOp(st.DSFail[1]),
				PassOp:      convStencilOp(st.Pass),
				CompareOp:   convCmpFunc(st.Cmp),
				CompareMask: st.ReadMask,
				WriteMask:   st.WriteMask,
			}
		}
		s.StencilTestEnable = vk.True
		s.Front = face(&ds.Front)
		s.Back = face(&ds.Back)
	}
	return s
}

// colorBlend converts the blend state of a color
// attachment.
func colorBlend(cb driver.ColorBlend) vk.PipelineColorBlendAttachmentState {
	s := vk.PipelineColorBlendAttachmentState{ColorWriteMask: convColorMask(cb.WriteMask)}
	if cb.Blend {
		s.BlendEnable = vk.True
		s.SrcColorBlendFactor = convBlendFac(cb.SrcFac[0])
		s.DstColorBlendFactor = convBlendFac(cb.DstFac[0])
		s.ColorBlendOp = convBlendOp(cb.Op[0])
		s.SrcAlphaBlendFactor = convBlendFac(cb.SrcFac[1])
		s.DstAlphaBlendFactor = convBlendFac(cb.DstFac[1])
		s.AlphaBlendOp = convBlendOp(cb.Op[1])
	}
	return s
}

// NewCompPipeline creates a new compute pipeline.
func (g *GPU) NewCompPipeline(cs *driver.CompState) (driver.Pipeline, error) {
	sd := driver.CheckComp(cs)
	p, err := g.newLayout(sd)
	if err != nil {
		return nil, err
	}
	p.bp = vk.PipelineBindPointCompute
	info := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              stageInfo(&cs.Func),
		Layout:             p.layout,
		BasePipelineHandle: vk.Pipeline(vk.NullHandle),
		BasePipelineIndex:  -1,
	}
	pls := make([]vk.Pipeline, 1)
	if err := checkResult(vk.CreateComputePipelines(g.dev, vk.PipelineCache(vk.NullHandle), 1, []vk.ComputePipelineCreateInfo{info}, nil, pls)); err != nil {
		p.Destroy()
		return nil, err
	}
	p.pl = pls[0]
	return p, nil
}

// Compute returns whether p is a compute pipeline.
func (p *pipeline) Compute() bool { return p.bp == vk.PipelineBindPointCompute }

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
		if p.pl != vk.Pipeline(vk.NullHandle) {
			vk.DestroyPipeline(g.dev, p.pl, nil)
		}
		if p.layout != vk.PipelineLayout(vk.NullHandle) {
			vk.DestroyPipelineLayout(g.dev, p.layout, nil)
		}
		g.mu.Lock()
		for _, l := range p.sets {
			l.unref(g)
		}
		g.mu.Unlock()
	}
	*p = pipeline{}
}
