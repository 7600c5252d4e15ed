// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wg

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gviegas/rhi/driver"
)

// convPixelFmt converts a driver.PixelFmt to a
// gputypes.TextureFormat.
func convPixelFmt(f driver.PixelFmt) gputypes.TextureFormat {
	switch f {
	case driver.RGBA8un:
		return gputypes.TextureFormatRGBA8Unorm
	case driver.RGBA8n:
		return gputypes.TextureFormatRGBA8Snorm
	case driver.RGBA8sRGB:
		return gputypes.TextureFormatRGBA8UnormSrgb
	case driver.BGRA8un:
		return gputypes.TextureFormatBGRA8Unorm
	case driver.BGRA8sRGB:
		return gputypes.TextureFormatBGRA8UnormSrgb
	case driver.RG8un:
		return gputypes.TextureFormatRG8Unorm
	case driver.RG8n:
		return gputypes.TextureFormatRG8Snorm
	case driver.R8un:
		return gputypes.TextureFormatR8Unorm
	case driver.R8n:
		return gputypes.TextureFormatR8Snorm
	case driver.RGBA16f:
		return gputypes.TextureFormatRGBA16Float
	case driver.RG16f:
		return gputypes.TextureFormatRG16Float
	case driver.R16f:
		return gputypes.TextureFormatR16Float
	case driver.RGBA32f:
		return gputypes.TextureFormatRGBA32Float
	case driver.RG32f:
		return gputypes.TextureFormatRG32Float
	case driver.R32f:
		return gputypes.TextureFormatR32Float
	case driver.D16un:
		return gputypes.TextureFormatDepth16Unorm
	case driver.D32f:
		return gputypes.TextureFormatDepth32Float
	case driver.S8ui:
		return gputypes.TextureFormatStencil8
	case driver.D24unS8ui:
		return gputypes.TextureFormatDepth24PlusStencil8
	case driver.D32fS8ui:
		return gputypes.TextureFormatDepth32FloatStencil8
	}
	return gputypes.TextureFormatUndefined
}

// convBufUsage converts buffer usage flags.
func convBufUsage(u driver.Usage, mem driver.MemUsage) (usg gputypes.BufferUsage) {
	if u&(driver.UShaderRead|driver.UShaderWrite) != 0 {
		usg |= gputypes.BufferUsageStorage
	}
	if u&driver.UShaderConst != 0 {
		usg |= gputypes.BufferUsageUniform
	}
	if u&driver.UVertexData != 0 {
		usg |= gputypes.BufferUsageVertex
	}
	if u&driver.UIndexData != 0 {
		usg |= gputypes.BufferUsageIndex
	}
	if u&driver.UIndirect != 0 {
		usg |= gputypes.BufferUsageIndirect
	}
	if u&driver.UCopySrc != 0 {
		usg |= gputypes.BufferUsageCopySrc
	}
	if u&driver.UCopyDst != 0 {
		usg |= gputypes.BufferUsageCopyDst
	}
	switch mem {
	case driver.MemCPUToGPU:
		usg |= gputypes.BufferUsageMapWrite
	case driver.MemGPUToCPU:
		usg |= gputypes.BufferUsageMapRead
	}
	return
}

// convImgUsage converts image usage flags.
func convImgUsage(u driver.Usage) (usg gputypes.TextureUsage) {
	if u&(driver.UShaderRead|driver.UShaderSample) != 0 {
		usg |= gputypes.TextureUsageTextureBinding
	}
	if u&driver.UShaderWrite != 0 {
		usg |= gputypes.TextureUsageStorageBinding
	}
	if u&driver.URenderTarget != 0 {
		usg |= gputypes.TextureUsageRenderAttachment
	}
	if u&driver.UCopySrc != 0 {
		usg |= gputypes.TextureUsageCopySrc
	}
	if u&driver.UCopyDst != 0 {
		usg |= gputypes.TextureUsageCopyDst
	}
	return
}

// bufStateUsage returns the buffer usage that corresponds
// to a resource state.
func bufStateUsage(s driver.ResourceState) gputypes.BufferUsage {
	switch s {
	case driver.VertexBuffer:
		return gputypes.BufferUsageVertex
	case driver.IndexBuffer:
		return gputypes.BufferUsageIndex
	case driver.UniformBuffer:
		return gputypes.BufferUsageUniform
	case driver.IndirectArg:
		return gputypes.BufferUsageIndirect
	case driver.General, driver.ShaderReadOnly, driver.ShaderWrite:
		return gputypes.BufferUsageStorage
	case driver.TransferSrc:
		return gputypes.BufferUsageCopySrc
	case driver.TransferDst:
		return gputypes.BufferUsageCopyDst
	case driver.HostRead:
		return gputypes.BufferUsageMapRead
	}
	return gputypes.BufferUsageNone
}

// imgStateUsage returns the texture usage that corresponds
// to a resource state.
// Present maps to RenderAttachment since the HAL moves
// surface textures to the presentation layout itself.
func imgStateUsage(s driver.ResourceState) gputypes.TextureUsage {
	switch s {
	case driver.ColorAttachment, driver.DepthStencilWrite, driver.Present:
		return gputypes.TextureUsageRenderAttachment
	case driver.DepthStencilReadOnly:
		return gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding
	case driver.ShaderReadOnly:
		return gputypes.TextureUsageTextureBinding
	case driver.General, driver.ShaderWrite:
		return gputypes.TextureUsageStorageBinding
	case driver.TransferSrc:
		return gputypes.TextureUsageCopySrc
	case driver.TransferDst:
		return gputypes.TextureUsageCopyDst
	}
	return gputypes.TextureUsageNone
}

// convAspect converts a driver.Aspect.
func convAspect(a driver.Aspect) gputypes.TextureAspect {
	switch a {
	case driver.AspDepth:
		return gputypes.TextureAspectDepthOnly
	case driver.AspStencil:
		return gputypes.TextureAspectStencilOnly
	}
	return gputypes.TextureAspectAll
}

// convStage converts a driver.Stage mask.
func convStage(s driver.Stage) (stg gputypes.ShaderStages) {
	if s&driver.SVertex != 0 {
		stg |= gputypes.ShaderStageVertex
	}
	if s&driver.SFragment != 0 {
		stg |= gputypes.ShaderStageFragment
	}
	if s&driver.SCompute != 0 {
		stg |= gputypes.ShaderStageCompute
	}
	return
}

// convViewType converts a driver.ViewType.
// Multisample views are 2D views of multisample textures.
func convViewType(t driver.ViewType) gputypes.TextureViewDimension {
	switch t {
	case driver.IView1D, driver.IView1DArray:
		return gputypes.TextureViewDimension1D
	case driver.IView2D, driver.IView2DMS:
		return gputypes.TextureViewDimension2D
	case driver.IView2DArray, driver.IView2DMSArray:
		return gputypes.TextureViewDimension2DArray
	case driver.IView3D:
		return gputypes.TextureViewDimension3D
	case driver.IViewCube:
		return gputypes.TextureViewDimensionCube
	case driver.IViewCubeArray:
		return gputypes.TextureViewDimensionCubeArray
	}
	return gputypes.TextureViewDimensionUndefined
}

// convFilter converts a driver.Filter.
func convFilter(f driver.Filter) gputypes.FilterMode {
	if f == driver.FLinear {
		return gputypes.FilterModeLinear
	}
	return gputypes.FilterModeNearest
}

// convAddrMode converts a driver.AddrMode.
func convAddrMode(m driver.AddrMode) gputypes.AddressMode {
	switch m {
	case driver.AMirror:
		return gputypes.AddressModeMirrorRepeat
	case driver.AClamp:
		return gputypes.AddressModeClampToEdge
	}
	return gputypes.AddressModeRepeat
}

// convCmpFunc converts a driver.CmpFunc.
func convCmpFunc(f driver.CmpFunc) gputypes.CompareFunction {
	switch f {
	case driver.CNever:
		return gputypes.CompareFunctionNever
	case driver.CLess:
		return gputypes.CompareFunctionLess
	case driver.CEqual:
		return gputypes.CompareFunctionEqual
	case driver.CLessEqual:
		return gputypes.CompareFunctionLessEqual
	case driver.CGreater:
		return gputypes.CompareFunctionGreater
	case driver.CNotEqual:
		return gputypes.CompareFunctionNotEqual
	case driver.CGreaterEqual:
		return gputypes.CompareFunctionGreaterEqual
	}
	return gputypes.CompareFunctionAlways
}

// convStencilOp converts a driver.StencilOp.
func convStencilOp(op driver.StencilOp) hal.StencilOperation {
	switch op {
	case driver.SZero:
		return hal.StencilOperationZero
	case driver.SReplace:
		return hal.StencilOperationReplace
	case driver.SIncClamp:
		return hal.StencilOperationIncrementClamp
	case driver.SDecClamp:
		return hal.StencilOperationDecrementClamp
	case driver.SInvert:
		return hal.StencilOperationInvert
	case driver.SIncWrap:
		return hal.StencilOperationIncrementWrap
	case driver.SDecWrap:
		return hal.StencilOperationDecrementWrap
	}
	return hal.StencilOperationKeep
}

// convBlendOp converts a driver.BlendOp.
func convBlendOp(op driver.BlendOp) gputypes.BlendOperation {
	switch op {
	case driver.BSubtract:
		return gputypes.BlendOperationSubtract
	case driver.BRevSubtract:
		return gputypes.BlendOperationReverseSubtract
	case driver.BMin:
		return gputypes.BlendOperationMin
	case driver.BMax:
		return gputypes.BlendOperationMax
	}
	return gputypes.BlendOperationAdd
}

// convBlendFac converts a driver.BlendFac.
func convBlendFac(f driver.BlendFac) gputypes.BlendFactor {
	switch f {
	case driver.BZero:
		return gputypes.BlendFactorZero
	case driver.BOne:
		return gputypes.BlendFactorOne
	case driver.BSrcColor:
		return gputypes.BlendFactorSrc
	case driver.BInvSrcColor:
		return gputypes.BlendFactorOneMinusSrc
	case driver.BSrcAlpha:
		return gputypes.BlendFactorSrcAlpha
	case driver.BInvSrcAlpha:
		return gputypes.BlendFactorOneMinusSrcAlpha
	case driver.BDstColor:
		return gputypes.BlendFactorDst
	case driver.BInvDstColor:
		return gputypes.BlendFactorOneMinusDst
	case driver.BDstAlpha:
		return gputypes.BlendFactorDstAlpha
	case driver.BInvDstAlpha:
		return gputypes.BlendFactorOneMinusDstAlpha
	case driver.BSrcAlphaSaturated:
		return gputypes.BlendFactorSrcAlphaSaturated
	case driver.BBlendColor:
		return gputypes.BlendFactorConstant
	case driver.BInvBlendColor:
		return gputypes.BlendFactorOneMinusConstant
	}
	return gputypes.BlendFactorOne
}

// convColorMask converts a driver.ColorMask.
func convColorMask(m driver.ColorMask) (cm gputypes.ColorWriteMask) {
	if m&driver.CRed != 0 {
		cm |= gputypes.ColorWriteMaskRed
	}
	if m&driver.CGreen != 0 {
		cm |= gputypes.ColorWriteMaskGreen
	}
	if m&driver.CBlue != 0 {
		cm |= gputypes.ColorWriteMaskBlue
	}
	if m&driver.CAlpha != 0 {
		cm |= gputypes.ColorWriteMaskAlpha
	}
	return
}

// convTopology converts a driver.Topology.
func convTopology(t driver.Topology) gputypes.PrimitiveTopology {
	switch t {
	case driver.TPoint:
		return gputypes.PrimitiveTopologyPointList
	case driver.TLine:
		return gputypes.PrimitiveTopologyLineList
	case driver.TLnStrip:
		return gputypes.PrimitiveTopologyLineStrip
	case driver.TTriStrip:
		return gputypes.PrimitiveTopologyTriangleStrip
	}
	return gputypes.PrimitiveTopologyTriangleList
}

// convCullMode converts a driver.CullMode.
func convCullMode(m driver.CullMode) gputypes.CullMode {
	switch m {
	case driver.CFront:
		return gputypes.CullModeFront
	case driver.CBack:
		return gputypes.CullModeBack
	}
	return gputypes.CullModeNone
}

// convVertexFmt converts a driver.VertexFmt.
func convVertexFmt(f driver.VertexFmt) gputypes.VertexFormat {
	switch f {
	case driver.Int8x2:
		return gputypes.VertexFormatSint8x2
	case driver.Int8x4:
		return gputypes.VertexFormatSint8x4
	case driver.Int16x2:
		return gputypes.VertexFormatSint16x2
	case driver.Int16x4:
		return gputypes.VertexFormatSint16x4
	case driver.Int32:
		return gputypes.VertexFormatSint32
	case driver.Int32x2:
		return gputypes.VertexFormatSint32x2
	case driver.Int32x3:
		return gputypes.VertexFormatSint32x3
	case driver.Int32x4:
		return gputypes.VertexFormatSint32x4
	case driver.UInt8x2:
		return gputypes.VertexFormatUint8x2
	case driver.UInt8x4:
		return gputypes.VertexFormatUint8x4
	case driver.UInt16x2:
		return gputypes.VertexFormatUint16x2
	case driver.UInt16x4:
		return gputypes.VertexFormatUint16x4
	case driver.UInt32:
		return gputypes.VertexFormatUint32
	case driver.UInt32x2:
		return gputypes.VertexFormatUint32x2
	case driver.UInt32x3:
		return gputypes.VertexFormatUint32x3
	case driver.UInt32x4:
		return gputypes.VertexFormatUint32x4
	case driver.Float32:
		return gputypes.VertexFormatFloat32
	case driver.Float32x2:
		return gputypes.VertexFormatFloat32x2
	case driver.Float32x3:
		return gputypes.VertexFormatFloat32x3
	case driver.Float32x4:
		return gputypes.VertexFormatFloat32x4
	}
	return gputypes.VertexFormatUndefined
}

// convIndexFmt converts a driver.IndexFmt.
func convIndexFmt(f driver.IndexFmt) gputypes.IndexFormat {
	if f == driver.Index16 {
		return gputypes.IndexFormatUint16
	}
	return gputypes.IndexFormatUint32
}

// convPresentMode converts a driver.PresentMode.
func convPresentMode(m driver.PresentMode) gputypes.PresentMode {
	switch m {
	case driver.PMailbox:
		return gputypes.PresentModeMailbox
	case driver.PImmediate:
		return gputypes.PresentModeImmediate
	}
	return gputypes.PresentModeFifo
}

// loadOp converts the load policy derived from an
// attachment's entry state.
func loadOp(before driver.ResourceState, clear bool) gputypes.LoadOp {
	if driver.LoadOpOf(before, clear) == driver.LClear {
		return gputypes.LoadOpClear
	}
	// WebGPU has no "don't care" load operation.
	return gputypes.LoadOpLoad
}

// storeOp converts the store policy derived from an
// attachment's exit state.
func storeOp(after driver.ResourceState) gputypes.StoreOp {
	if driver.StoreOpOf(after) == driver.SDontCare {
		return gputypes.StoreOpDiscard
	}
	return gputypes.StoreOpStore
}
