// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

// VertexFmt describes the format of a vertex attribute.
type VertexFmt int

// Vertex formats.
const (
	// Signed 8-bit integer, 2/4 components.
	Int8x2 VertexFmt = iota
	Int8x4
	// Signed 16-bit integer, 2/4 components.
	Int16x2
	Int16x4
	// Signed 32-bit integer, 1-4 components.
	Int32
	Int32x2
	Int32x3
	Int32x4
	// Unsigned 8-bit integer, 2/4 components.
	UInt8x2
	UInt8x4
	// Unsigned 16-bit integer, 2/4 components.
	UInt16x2
	UInt16x4
	// Unsigned 32-bit integer, 1-4 components.
	UInt32
	UInt32x2
	UInt32x3
	UInt32x4
	// Single precision floating-point, 1-4 components.
	Float32
	Float32x2
	Float32x3
	Float32x4
)

// Size returns the size of f in bytes.
func (f VertexFmt) Size() int {
	switch f {
	case Int8x2, UInt8x2:
		return 2
	case Int8x4, UInt8x4, Int16x2, UInt16x2, Int32, UInt32, Float32:
		return 4
	case Int16x4, UInt16x4, Int32x2, UInt32x2, Float32x2:
		return 8
	case Int32x3, UInt32x3, Float32x3:
		return 12
	case Int32x4, UInt32x4, Float32x4:
		return 16
	}
	panic("driver: invalid VertexFmt")
}

// VertexBinding describes a vertex buffer binding.
// Consecutive elements are fetched Stride bytes apart,
// once per vertex or, if Instance is set, once per
// instance.
type VertexBinding struct {
	Nr       int
	Stride   int
	Instance bool
}

// VertexAttr describes a vertex attribute sourced from a
// vertex buffer binding.
type VertexAttr struct {
	Loc     int
	Binding int
	Format  VertexFmt
	Off     int
}

// Topology is the type of primitive topologies,
// which determines how vertex data is assembled.
type Topology int

// Primitive topologies.
const (
	TTriangle Topology = iota
	TPoint
	TLine
	TLnStrip
	TTriStrip
)

// IndexFmt describes the format of index buffer data.
type IndexFmt int

// Index formats.
const (
	Index16 IndexFmt = 2
	Index32 IndexFmt = 4
)

// CullMode is the type of cull modes, which
// determines primitive culling based on triangle
// facing direction.
type CullMode int

// Cull modes.
const (
	CNone CullMode = iota
	CFront
	CBack
)

// FillMode is the type of triangle fill modes, which
// determines the final rasterization of triangles.
type FillMode int

// Triangle fill modes.
const (
	FFill FillMode = iota
	FLines
)

// RasterState defines the rasterization state of a
// graphics pipeline.
type RasterState struct {
	// Winding order is either clockwise or counter-clockwise.
	Clockwise bool
	Cull      CullMode
	Fill      FillMode
	// DepthBias enables depth bias computation.
	DepthBias bool
	BiasValue float32
	BiasSlope float32
	BiasClamp float32
}

// CmpFunc is the type of comparison functions.
type CmpFunc int

// Comparison functions.
const (
	CNever CmpFunc = iota
	CLess
	CEqual
	CLessEqual
	CGreater
	CNotEqual
	CGreaterEqual
	CAlways
)

// StencilOp is the type of stencil operations.
type StencilOp int

// Stencil operations.
const (
	SKeep StencilOp = iota
	SZero
	SReplace
	SIncClamp
	SDecClamp
	SInvert
	SIncWrap
	SDecWrap
)

// StencilT defines stencil test parameters for the
// depth/stencil state of a graphics pipeline.
// DSFail is indexed by [depth pass, depth fail] when the
// stencil test fails and passes, respectively.
type StencilT struct {
	DSFail    [2]StencilOp
	Pass      StencilOp
	ReadMask  uint32
	WriteMask uint32
	Cmp       CmpFunc
}

// DSState defines the depth/stencil state of a
// graphics pipeline.
type DSState struct {
	DepthTest   bool
	DepthWrite  bool
	DepthCmp    CmpFunc
	StencilTest bool
	Front       StencilT
	Back        StencilT
}

// BlendOp is the type of blend operations.
type BlendOp int

// Blend operations.
const (
	BAdd BlendOp = iota
	BSubtract
	BRevSubtract
	BMin
	BMax
)

// BlendFac is the type of blend factors.
type BlendFac int

// Blend factors.
const (
	BZero BlendFac = iota
	BOne
	BSrcColor
	BInvSrcColor
	BSrcAlpha
	BInvSrcAlpha
	BDstColor
	BInvDstColor
	BDstAlpha
	BInvDstAlpha
	BSrcAlphaSaturated
	BBlendColor
	BInvBlendColor
)

// ColorMask is the type of a color write mask.
type ColorMask int

// Color write masks.
const (
	CRed ColorMask = 1 << iota
	CGreen
	CBlue
	CAlpha
	CAll ColorMask = 1<<iota - 1
)

// ColorBlend defines a render target's blend parameters.
// In the arrays, [0] is for color and [1] is for alpha.
type ColorBlend struct {
	Blend     bool
	WriteMask ColorMask
	Op        [2]BlendOp
	SrcFac    [2]BlendFac
	DstFac    [2]BlendFac
}

// BlendState defines the color blend state of a
// graphics pipeline.
// If IndependentBlend is false, Color[0] applies to every
// color attachment. A nil Color writes every channel of
// every attachment without blending.
type BlendState struct {
	IndependentBlend bool
	Color            []ColorBlend
}

// For returns the blend parameters of attachment i.
func (s *BlendState) For(i int) ColorBlend {
	switch {
	case len(s.Color) == 0:
		return ColorBlend{WriteMask: CAll}
	case !s.IndependentBlend:
		return s.Color[0]
	case i < len(s.Color):
		return s.Color[i]
	}
	panic("driver: missing blend state for color attachment")
}

// GraphState defines the combination of programmable and
// fixed stages of a graphics pipeline.
// The sample count is that of Pass, and the pipeline must
// only be used in render passes compatible with Pass
// (same attachment formats and sample count).
// Viewport and scissor are dynamic state.
type GraphState struct {
	Stages   []ShaderFunc
	Bindings []VertexBinding
	Attrs    []VertexAttr
	Topology Topology
	Raster   RasterState
	DS       DSState
	Blend    BlendState
	Pass     RenderPass
}

// CheckGraph validates gs.
// It panics if gs has no stages, no render pass or
// exceeds a capacity constant, and returns the merged
// descriptor set layouts of its stages.
func CheckGraph(gs *GraphState) []SetDesc {
	if len(gs.Stages) == 0 {
		panic("driver: graphics pipeline with no shader stages")
	}
	if gs.Pass == nil {
		panic("driver: graphics pipeline with no render pass")
	}
	checkLimit("vertex bindings", len(gs.Bindings), MaxVertexBindings)
	checkLimit("vertex attributes", len(gs.Attrs), MaxVertexAttrs)
	for _, a := range gs.Attrs {
		found := false
		for _, b := range gs.Bindings {
			if b.Nr == a.Binding {
				found = true
				break
			}
		}
		if !found {
			panic("driver: vertex attribute refers to undeclared binding")
		}
	}
	var seen Stage
	for _, f := range gs.Stages {
		if f.Code == nil {
			panic("driver: nil shader in pipeline stage")
		}
		stg := f.Code.Stage()
		if stg == SCompute || seen&stg != 0 {
			panic("driver: invalid graphics pipeline stages")
		}
		seen |= stg
	}
	return MergeBindings(Bindings(gs.Stages...))
}

// CompState defines the state of a compute pipeline.
// It has a single compute shader and none of the fixed
// function state of graphics pipelines.
type CompState struct {
	Func ShaderFunc
}

// CheckComp validates cs and returns the descriptor set
// layouts of its shader.
func CheckComp(cs *CompState) []SetDesc {
	if cs.Func.Code == nil || cs.Func.Code.Stage() != SCompute {
		panic("driver: compute pipeline requires a compute shader")
	}
	return MergeBindings(Bindings(cs.Func))
}

// Pipeline is the interface that defines a GPU pipeline.
type Pipeline interface {
	Destroyer

	// Compute returns whether the pipeline is a compute
	// pipeline.
	Compute() bool

	// Sets returns the number of descriptor set indices
	// the pipeline uses, including empty ones.
	Sets() int

	// SetLayout returns the layout of the given set, or
	// nil if the set is empty.
	SetLayout(set int) DescSetLayout
}
