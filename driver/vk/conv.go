// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vk "github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

// convPixelFmt converts a driver.PixelFmt to a vk.Format.
func convPixelFmt(f driver.PixelFmt) vk.Format {
	switch f {
	case driver.RGBA8un:
		return vk.FormatR8g8b8a8Unorm
	case driver.RGBA8n:
		return vk.FormatR8g8b8a8Snorm
	case driver.RGBA8sRGB:
		return vk.FormatR8g8b8a8Srgb
	case driver.BGRA8un:
		return vk.FormatB8g8r8a8Unorm
	case driver.BGRA8sRGB:
		return vk.FormatB8g8r8a8Srgb
	case driver.RG8un:
		return vk.FormatR8g8Unorm
	case driver.RG8n:
		return vk.FormatR8g8Snorm
	case driver.R8un:
		return vk.FormatR8Unorm
	case driver.R8n:
		return vk.FormatR8Snorm
	case driver.RGBA16f:
		return vk.FormatR16g16b16a16Sfloat
	case driver.RG16f:
		return vk.FormatR16g16Sfloat
	case driver.R16f:
		return vk.FormatR16Sfloat
	case driver.RGBA32f:
		return vk.FormatR32g32b32a32Sfloat
	case driver.RG32f:
		return vk.FormatR32g32Sfloat
	case driver.R32f:
		return vk.FormatR32Sfloat
	case driver.D16un:
		return vk.FormatD16Unorm
	case driver.D32f:
		return vk.FormatD32Sfloat
	case driver.S8ui:
		return vk.FormatS8Uint
	case driver.D24unS8ui:
		return vk.FormatD24UnormS8Uint
	case driver.D32fS8ui:
		return vk.FormatD32SfloatS8Uint
	}
	return vk.FormatUndefined
}

// convBufUsage converts buffer usage flags.
func convBufUsage(u driver.Usage) vk.BufferUsageFlags {
	var f vk.BufferUsageFlagBits
	if u&(driver.UShaderRead|driver.UShaderWrite) != 0 {
		f |= vk.BufferUsageStorageBufferBit
	}
	if u&driver.UShaderConst != 0 {
		f |= vk.BufferUsageUniformBufferBit
	}
	if u&driver.UVertexData != 0 {
		f |= vk.BufferUsageVertexBufferBit
	}
	if u&driver.UIndexData != 0 {
		f |= vk.BufferUsageIndexBufferBit
	}
	if u&driver.UIndirect != 0 {
		f |= vk.BufferUsageIndirectBufferBit
	}
	if u&driver.UCopySrc != 0 {
		f |= vk.BufferUsageTransferSrcBit
	}
	if u&driver.UCopyDst != 0 {
		f |= vk.BufferUsageTransferDstBit
	}
	return vk.BufferUsageFlags(f)
}

// convImgUsage converts image usage flags.
// f is the format of the image.
func convImgUsage(u driver.Usage, f driver.PixelFmt) vk.ImageUsageFlags {
	var fl vk.ImageUsageFlagBits
	if u&(driver.UShaderRead|driver.UShaderWrite) != 0 {
		fl |= vk.ImageUsageStorageBit
	}
	if u&driver.UShaderSample != 0 {
		fl |= vk.ImageUsageSampledBit
	}
	if u&driver.URenderTarget != 0 {
		if f.IsDS() {
			fl |= vk.ImageUsageDepthStencilAttachmentBit
		} else {
			fl |= vk.ImageUsageColorAttachmentBit
		}
	}
	if u&driver.UCopySrc != 0 {
		fl |= vk.ImageUsageTransferSrcBit
	}
	if u&driver.UCopyDst != 0 {
		fl |= vk.ImageUsageTransferDstBit
	}
	return vk.ImageUsageFlags(fl)
}

// convSamples converts a sample count.
func convSamples(n int) vk.SampleCountFlagBits {
	switch n {
	case 2:
		return vk.SampleCount2Bit
	case 4:
		return vk.SampleCount4Bit
	case 8:
		return vk.SampleCount8Bit
	case 16:
		return vk.SampleCount16Bit
	case 32:
		return vk.SampleCount32Bit
	case 64:
		return vk.SampleCount64Bit
	}
	return vk.SampleCount1Bit
}

// convAspect converts image aspect flags.
func convAspect(a driver.Aspect) vk.ImageAspectFlags {
	var f vk.ImageAspectFlagBits
	if a&driver.AspColor != 0 {
		f |= vk.ImageAspectColorBit
	}
	if a&driver.AspDepth != 0 {
		f |= vk.ImageAspectDepthBit
	}
	if a&driver.AspStencil != 0 {
		f |= vk.ImageAspectStencilBit
	}
	return vk.ImageAspectFlags(f)
}

// fullAspect returns every aspect of format f.
func fullAspect(f driver.PixelFmt) vk.ImageAspectFlags {
	var a driver.Aspect
	if f.HasDepth() {
		a |= driver.AspDepth
	}
	if f.HasStencil() {
		a |= driver.AspStencil
	}
	if a == 0 {
		a = driver.AspColor
	}
	return convAspect(a)
}

// convViewType converts an image view type.
func convViewType(t driver.ViewType) vk.ImageViewType {
	switch t {
	case driver.IView1D:
		return vk.ImageViewType1d
	case driver.IView2D, driver.IView2DMS:
		return vk.ImageViewType2d
	case driver.IView3D:
		return vk.ImageViewType3d
	case driver.IViewCube:
		return vk.ImageViewTypeCube
	case driver.IView1DArray:
		return vk.ImageViewType1dArray
	case driver.IView2DArray, driver.IView2DMSArray:
		return vk.ImageViewType2dArray
	case driver.IViewCubeArray:
		return vk.ImageViewTypeCubeArray
	}
	panic("vk: invalid view type")
}

// convLayout converts an image layout.
func convLayout(l driver.Layout) vk.ImageLayout {
	switch l {
	case driver.LUndefined:
		return vk.ImageLayoutUndefined
	case driver.LCommon:
		return vk.ImageLayoutGeneral
	case driver.LColorTarget:
		return vk.ImageLayoutColorAttachmentOptimal
	case driver.LDSTarget:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case driver.LDSRead:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case driver.LShaderRead:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case driver.LCopySrc:
		return vk.ImageLayoutTransferSrcOptimal
	case driver.LCopyDst:
		return vk.ImageLayoutTransferDstOptimal
	case driver.LPresent:
		return vk.ImageLayoutPresentSrc
	}
	panic("vk: invalid layout")
}

// convAccess converts access flags.
func convAccess(a driver.Access) vk.AccessFlags {
	var f vk.AccessFlagBits
	for _, x := range [...]struct {
		a driver.Access
		f vk.AccessFlagBits
	}{
		{driver.AIndirectRead, vk.AccessIndirectCommandReadBit},
		{driver.AIndexRead, vk.AccessIndexReadBit},
		{driver.AVertexRead, vk.AccessVertexAttributeReadBit},
		{driver.AUniformRead, vk.AccessUniformReadBit},
		{driver.AShaderRead, vk.AccessShaderReadBit},
		{driver.AShaderWrite, vk.AccessShaderWriteBit},
		{driver.AColorRead, vk.AccessColorAttachmentReadBit},
		{driver.AColorWrite, vk.AccessColorAttachmentWriteBit},
		{driver.ADSRead, vk.AccessDepthStencilAttachmentReadBit},
		{driver.ADSWrite, vk.AccessDepthStencilAttachmentWriteBit},
		{driver.ACopyRead, vk.AccessTransferReadBit},
		{driver.ACopyWrite, vk.AccessTransferWriteBit},
		{driver.AHostRead, vk.AccessHostReadBit},
		{driver.AHostWrite, vk.AccessHostWriteBit},
		{driver.AAnyRead, vk.AccessMemoryReadBit},
		{driver.AAnyWrite, vk.AccessMemoryWriteBit},
	} {
		if a&x.a != 0 {
			f |= x.f
		}
	}
	return vk.AccessFlags(f)
}

// convSync converts synchronization scopes.
// An empty scope is converted to the top (src) or bottom
// (!src) of the pipe, since Vulkan does not accept empty
// stage masks.
func convSync(s driver.Sync, src bool) vk.PipelineStageFlags {
	var f vk.PipelineStageFlagBits
	for _, x := range [...]struct {
		s driver.Sync
		f vk.PipelineStageFlagBits
	}{
		{driver.STopOfPipe, vk.PipelineStageTopOfPipeBit},
		{driver.SDrawIndirect, vk.PipelineStageDrawIndirectBit},
		{driver.SVertexInput, vk.PipelineStageVertexInputBit},
		{driver.SVertexShading, vk.PipelineStageVertexShaderBit},
		{driver.SFragmentShading, vk.PipelineStageFragmentShaderBit},
		{driver.SEarlyDS, vk.PipelineStageEarlyFragmentTestsBit},
		{driver.SLateDS, vk.PipelineStageLateFragmentTestsBit},
		{driver.SColorOutput, vk.PipelineStageColorAttachmentOutputBit},
		{driver.SComputeShading, vk.PipelineStageComputeShaderBit},
		{driver.SCopy, vk.PipelineStageTransferBit},
		{driver.SBottomOfPipe, vk.PipelineStageBottomOfPipeBit},
		{driver.SHost, vk.PipelineStageHostBit},
		{driver.SAllGraphics, vk.PipelineStageAllGraphicsBit},
		{driver.SAll, vk.PipelineStageAllCommandsBit},
	} {
		if s&x.s != 0 {
			f |= x.f
		}
	}
	if f == 0 {
		if src {
			f = vk.PipelineStageTopOfPipeBit
		} else {
			f = vk.PipelineStageBottomOfPipeBit
		}
	}
	return vk.PipelineStageFlags(f)
}

// convFamily converts a queue family index.
func convFamily(fam int) uint32 {
	if fam == driver.QueueIgnored {
		return vk.QueueFamilyIgnored
	}
	return uint32(fam)
}

// convStage converts shader stage flags.
func convStage(s driver.Stage) vk.ShaderStageFlags {
	var f vk.ShaderStageFlagBits
	if s&driver.SVertex != 0 {
		f |= vk.ShaderStageVertexBit
	}
	if s&driver.SFragment != 0 {
		f |= vk.ShaderStageFragmentBit
	}
	if s&driver.SCompute != 0 {
		f |= vk.ShaderStageComputeBit
	}
	return vk.ShaderStageFlags(f)
}

// convDescType converts a descriptor type.
func convDescType(t driver.DescType) vk.DescriptorType {
	switch t {
	case driver.DBuffer:
		return vk.DescriptorTypeStorageBuffer
	case driver.DImage:
		return vk.DescriptorTypeStorageImage
	case driver.DConstant:
		return vk.DescriptorTypeUniformBuffer
	case driver.DTexture:
		return vk.DescriptorTypeSampledImage
	case driver.DSampler:
		return vk.DescriptorTypeSampler
	case driver.DTextureSampler:
		return vk.DescriptorTypeCombinedImageSampler
	}
	panic("vk: unknown descriptor type")
}

// convFilter converts a filter.
func convFilter(f driver.Filter) vk.Filter {
	if f == driver.FLinear {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

// convMipmap converts a mipmap filter.
func convMipmap(f driver.Filter) vk.SamplerMipmapMode {
	if f == driver.FLinear {
		return vk.SamplerMipmapModeLinear
	}
	return vk.SamplerMipmapModeNearest
}

// convAddrMode converts an addressing mode.
func convAddrMode(m driver.AddrMode) vk.SamplerAddressMode {
	switch m {
	case driver.AMirror:
		return vk.SamplerAddressModeMirroredRepeat
	case driver.AClamp:
		return vk.SamplerAddressModeClampToEdge
	}
	return vk.SamplerAddressModeRepeat
}

// convCmpFunc converts a comparison function.
func convCmpFunc(f driver.CmpFunc) vk.CompareOp {
	switch f {
	case driver.CNever:
		return vk.CompareOpNever
	case driver.CLess:
		return vk.CompareOpLess
	case driver.CEqual:
		return vk.CompareOpEqual
	case driver.CLessEqual:
		return vk.CompareOpLessOrEqual
	case driver.CGreater:
		return vk.CompareOpGreater
	case driver.CNotEqual:
		return vk.CompareOpNotEqual
	case driver.CGreaterEqual:
		return vk.CompareOpGreaterOrEqual
	}
	return vk.CompareOpAlways
}

// convStencilOp converts a stencil operation.
func convStencilOp(op driver.StencilOp) vk.StencilOp {
	switch op {
	case driver.SZero:
		return vk.StencilOpZero
	case driver.SReplace:
		return vk.StencilOpReplace
	case driver.SIncClamp:
		return vk.StencilOpIncrementAndClamp
	case driver.SDecClamp:
		return vk.StencilOpDecrementAndClamp
	case driver.SInvert:
		return vk.StencilOpInvert
	case driver.SIncWrap:
		return vk.StencilOpIncrementAndWrap
	case driver.SDecWrap:
		return vk.StencilOpDecrementAndWrap
	}
	return vk.StencilOpKeep
}

// convBlendOp converts a blend operation.
func convBlendOp(op driver.BlendOp) vk.BlendOp {
	switch op {
	case driver.BSubtract:
		return vk.BlendOpSubtract
	case driver.BRevSubtract:
		return vk.BlendOpReverseSubtract
	case driver.BMin:
		return vk.BlendOpMin
	case driver.BMax:
		return vk.BlendOpMax
	}
	return vk.BlendOpAdd
}

// convBlendFac converts a blend factor.
func convBlendFac(f driver.BlendFac) vk.BlendFactor {
	switch f {
	case driver.BZero:
		return vk.BlendFactorZero
	case driver.BOne:
		return vk.BlendFactorOne
	case driver.BSrcColor:
		return vk.BlendFactorSrcColor
	case driver.BInvSrcColor:
		return vk.BlendFactorOneMinusSrcColor
	case driver.BSrcAlpha:
		return vk.BlendFactorSrcAlpha
	case driver.BInvSrcAlpha:
		return vk.BlendFactorOneMinusSrcAlpha
	case driver.BDstColor:
		return vk.BlendFactorDstColor
	case driver.BInvDstColor:
		return vk.BlendFactorOneMinusDstColor
	case driver.BDstAlpha:
		return vk.BlendFactorDstAlpha
	case driver.BInvDstAlpha:
		return vk.BlendFactorOneMinusDstAlpha
	case driver.BSrcAlphaSaturated:
		return vk.BlendFactorSrcAlphaSaturate
	case driver.BBlendColor:
		return vk.BlendFactorConstantColor
	case driver.BInvBlendColor:
		return vk.BlendFactorOneMinusConstantColor
	}
	panic("vk: invalid blend factor")
}

// convColorMask converts a color write mask.
func convColorMask(m driver.ColorMask) vk.ColorComponentFlags {
	var f vk.ColorComponentFlagBits
	if m&driver.CRed != 0 {
		f |= vk.ColorComponentRBit
	}
	if m&driver.CGreen != 0 {
		f |= vk.ColorComponentGBit
	}
	if m&driver.CBlue != 0 {
		f |= vk.ColorComponentBBit
	}
	if m&driver.CAlpha != 0 {
		f |= vk.ColorComponentABit
	}
	return vk.ColorComponentFlags(f)
}

// convTopology converts a primitive topology.
func convTopology(t driver.Topology) vk.PrimitiveTopology {
	switch t {
	case driver.TPoint:
		return vk.PrimitiveTopologyPointList
	case driver.TLine:
		return vk.PrimitiveTopologyLineList
	case driver.TLnStrip:
		return vk.PrimitiveTopologyLineStrip
	case driver.TTriStrip:
		return vk.PrimitiveTopologyTriangleStrip
	}
	return vk.PrimitiveTopologyTriangleList
}

// convCullMode converts a cull mode.
func convCullMode(m driver.CullMode) vk.CullModeFlags {
	switch m {
	case driver.CFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case driver.CBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

// convFillMode converts a fill mode.
func convFillMode(m driver.FillMode) vk.PolygonMode {
	if m == driver.FLines {
		return vk.PolygonModeLine
	}
	return vk.PolygonModeFill
}

// convVertexFmt converts a vertex format.
func convVertexFmt(f driver.VertexFmt) vk.Format {
	switch f {
	case driver.Int8x2:
		return vk.FormatR8g8Sint
	case driver.Int8x4:
		return vk.FormatR8g8b8a8Sint
	case driver.Int16x2:
		return vk.FormatR16g16Sint
	case driver.Int16x4:
		return vk.FormatR16g16b16a16Sint
	case driver.Int32:
		return vk.FormatR32Sint
	case driver.Int32x2:
		return vk.FormatR32g32Sint
	case driver.Int32x3:
		return vk.FormatR32g32b32Sint
	case driver.Int32x4:
		return vk.FormatR32g32b32a32Sint
	case driver.UInt8x2:
		return vk.FormatR8g8Uint
	case driver.UInt8x4:
		return vk.FormatR8g8b8a8Uint
	case driver.UInt16x2:
		return vk.FormatR16g16Uint
	case driver.UInt16x4:
		return vk.FormatR16g16b16a16Uint
	case driver.UInt32:
		return vk.FormatR32Uint
	case driver.UInt32x2:
		return vk.FormatR32g32Uint
	case driver.UInt32x3:
		return vk.FormatR32g32b32Uint
	case driver.UInt32x4:
		return vk.FormatR32g32b32a32Uint
	case driver.Float32:
		return vk.FormatR32Sfloat
	case driver.Float32x2:
		return vk.FormatR32g32Sfloat
	case driver.Float32x3:
		return vk.FormatR32g32b32Sfloat
	case driver.Float32x4:
		return vk.FormatR32g32b32a32Sfloat
	}
	panic("vk: invalid vertex format")
}

// convIndexFmt converts an index format.
func convIndexFmt(f driver.IndexFmt) vk.IndexType {
	if f == driver.Index32 {
		return vk.IndexTypeUint32
	}
	return vk.IndexTypeUint16
}

// convLoadOp converts a load operation.
func convLoadOp(op driver.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case driver.LClear:
		return vk.AttachmentLoadOpClear
	case driver.LLoad:
		return vk.AttachmentLoadOpLoad
	}
	return vk.AttachmentLoadOpDontCare
}

// convStoreOp converts a store operation.
func convStoreOp(op driver.StoreOp) vk.AttachmentStoreOp {
	if op == driver.SStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

// convPresentMode converts a presentation mode.
func convPresentMode(m driver.PresentMode) vk.PresentMode {
	switch m {
	case driver.PMailbox:
		return vk.PresentModeMailbox
	case driver.PImmediate:
		return vk.PresentModeImmediate
	}
	return vk.PresentModeFifo
}
