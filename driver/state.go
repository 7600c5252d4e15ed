// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

// ResourceState is the abstract state of a resource.
// The driver does not remember the state of resources:
// callers track it and describe every change with a
// Barrier.
type ResourceState int

// Resource states.
const (
	Undefined ResourceState = iota
	General
	VertexBuffer
	IndexBuffer
	UniformBuffer
	IndirectArg
	ColorAttachment
	DepthStencilWrite
	DepthStencilReadOnly
	ShaderReadOnly
	ShaderWrite
	TransferSrc
	TransferDst
	HostRead
	Present
	nState
)

func (s ResourceState) String() string {
	if s < 0 || s >= nState {
		return "ResourceState(?)"
	}
	return stateNames[s]
}

var stateNames = [nState]string{
	Undefined:            "Undefined",
	General:              "General",
	VertexBuffer:         "VertexBuffer",
	IndexBuffer:          "IndexBuffer",
	UniformBuffer:        "UniformBuffer",
	IndirectArg:          "IndirectArg",
	ColorAttachment:      "ColorAttachment",
	DepthStencilWrite:    "DepthStencilWrite",
	DepthStencilReadOnly: "DepthStencilReadOnly",
	ShaderReadOnly:       "ShaderReadOnly",
	ShaderWrite:          "ShaderWrite",
	TransferSrc:          "TransferSrc",
	TransferDst:          "TransferDst",
	HostRead:             "HostRead",
	Present:              "Present",
}

// Access is the type of a memory access scope.
type Access int

// Memory access scopes.
const (
	AIndirectRead Access = 1 << iota
	AIndexRead
	AVertexRead
	AUniformRead
	AShaderRead
	AShaderWrite
	AColorRead
	AColorWrite
	ADSRead
	ADSWrite
	ACopyRead
	ACopyWrite
	AHostRead
	AHostWrite
	AAnyRead
	AAnyWrite
	ANone Access = 0
)

// Sync is the type of a synchronization scope (i.e., a
// mask of pipeline stages).
type Sync int

// Synchronization scopes.
const (
	STopOfPipe Sync = 1 << iota
	SDrawIndirect
	SVertexInput
	SVertexShading
	SFragmentShading
	SEarlyDS
	SLateDS
	SColorOutput
	SComputeShading
	SCopy
	SBottomOfPipe
	SHost
	SAllGraphics
	SAll
	SNone Sync = 0
)

// Layout is the type of an image layout.
type Layout int

// Image layouts.
const (
	LUndefined Layout = iota
	LCommon
	LColorTarget
	LDSTarget
	LDSRead
	LShaderRead
	LCopySrc
	LCopyDst
	LPresent
)

var stateAccess = [nState]Access{
	Undefined:            ANone,
	General:              AAnyRead | AAnyWrite,
	VertexBuffer:         AVertexRead,
	IndexBuffer:          AIndexRead,
	UniformBuffer:        AUniformRead,
	IndirectArg:          AIndirectRead,
	ColorAttachment:      AColorRead | AColorWrite,
	DepthStencilWrite:    ADSRead | ADSWrite,
	DepthStencilReadOnly: ADSRead | AShaderRead,
	ShaderReadOnly:       AShaderRead,
	ShaderWrite:          AShaderRead | AShaderWrite,
	TransferSrc:          ACopyRead,
	TransferDst:          ACopyWrite,
	HostRead:             AHostRead,
	Present:              ANone,
}

var stateLayout = [nState]Layout{
	Undefined:            LUndefined,
	General:              LCommon,
	VertexBuffer:         LCommon,
	IndexBuffer:          LCommon,
	UniformBuffer:        LCommon,
	IndirectArg:          LCommon,
	ColorAttachment:      LColorTarget,
	DepthStencilWrite:    LDSTarget,
	DepthStencilReadOnly: LDSRead,
	ShaderReadOnly:       LShaderRead,
	ShaderWrite:          LCommon,
	TransferSrc:          LCopySrc,
	TransferDst:          LCopyDst,
	HostRead:             LCommon,
	Present:              LPresent,
}

func checkState(s ResourceState) {
	if s < 0 || s >= nState {
		panic("driver: invalid ResourceState")
	}
}

// AccessOf returns the memory access scope of s.
func AccessOf(s ResourceState) Access {
	checkState(s)
	return stateAccess[s]
}

// LayoutOf returns the image layout of s.
func LayoutOf(s ResourceState) Layout {
	checkState(s)
	return stateLayout[s]
}

// graphSync maps access bits to graphics pipeline stages.
var graphSync = [...]struct {
	acc  Access
	sync Sync
}{
	{AIndirectRead, SDrawIndirect},
	{AIndexRead | AVertexRead, SVertexInput},
	{AUniformRead | AShaderRead | AShaderWrite, SVertexShading | SFragmentShading | SComputeShading},
	{AColorRead | AColorWrite, SColorOutput},
	{ADSRead | ADSWrite, SEarlyDS | SLateDS},
	{ACopyRead | ACopyWrite, SCopy},
	{AHostRead | AHostWrite, SHost},
	{AAnyRead | AAnyWrite, SAll},
}

// StagesOf returns the pipeline stages that perform the
// accesses in acc on a queue of type typ.
// The result is never SNone: if no access matches, it is
// STopOfPipe.
//
// Compute queues map every access other than indirect
// reads to SAll, and transfer queues map every access to
// SAll. This is conservative but correct.
func StagesOf(acc Access, typ QueueType) Sync {
	var sync Sync
	switch typ {
	case QGraphics:
		for _, x := range graphSync {
			if acc&x.acc != 0 {
				sync |= x.sync
			}
		}
	case QCompute:
		if acc&AIndirectRead != 0 {
			sync |= SDrawIndirect
		}
		if acc&^AIndirectRead != 0 {
			sync |= SAll
		}
	case QTransfer:
		if acc != ANone {
			sync = SAll
		}
	default:
		panic("driver: invalid QueueType")
	}
	if sync == SNone {
		sync = STopOfPipe
	}
	return sync
}

// Barrier describes a state change of a single resource.
// Exactly one of Buf and Img must be set.
// SrcQueue and DstQueue describe a queue ownership
// transfer. If they are nil or have the same family, no
// transfer takes place.
type Barrier struct {
	Buf      Buffer
	Img      Image
	Old      ResourceState
	New      ResourceState
	SrcQueue Queue
	DstQueue Queue
}

// QueueIgnored is the queue family used by records of a
// Batch that do not transfer ownership.
const QueueIgnored = -1

// BufBarrier is a resolved buffer barrier.
type BufBarrier struct {
	Buf       Buffer
	SrcAccess Access
	DstAccess Access
	SrcFamily int
	DstFamily int
}

// ImgBarrier is a resolved image barrier.
// It covers every level and layer of Img.
type ImgBarrier struct {
	Img       Image
	SrcAccess Access
	DstAccess Access
	OldLayout Layout
	NewLayout Layout
	Aspect    Aspect
	Levels    int
	Layers    int
	SrcFamily int
	DstFamily int
}

// Batch is the result of resolving a list of barriers.
// Backends issue a Batch as one native barrier command,
// using the aggregated stage masks.
type Batch struct {
	SrcSync Sync
	DstSync Sync
	Bufs    []BufBarrier
	Imgs    []ImgBarrier
}

// Resolve derives access masks, stages, layouts and
// subresource ranges for every barrier in b, on a queue
// of type typ.
// It panics if a barrier sets both or neither of Buf and
// Img.
func Resolve(b []Barrier, typ QueueType) Batch {
	var bt Batch
	for i := range b {
		src, dst := AccessOf(b[i].Old), AccessOf(b[i].New)
		bt.SrcSync |= StagesOf(src, typ)
		bt.DstSync |= StagesOf(dst, typ)
		sfam, dfam := families(b[i].SrcQueue, b[i].DstQueue)
		switch {
		case b[i].Buf != nil && b[i].Img == nil:
			bt.Bufs = append(bt.Bufs, BufBarrier{
				Buf:       b[i].Buf,
				SrcAccess: src,
				DstAccess: dst,
				SrcFamily: sfam,
				DstFamily: dfam,
			})
		case b[i].Img != nil && b[i].Buf == nil:
			d := b[i].Img.Desc()
			bt.Imgs = append(bt.Imgs, ImgBarrier{
				Img:       b[i].Img,
				SrcAccess: src,
				DstAccess: dst,
				OldLayout: LayoutOf(b[i].Old),
				NewLayout: LayoutOf(b[i].New),
				Aspect:    AspectOf(d.Format),
				Levels:    max(d.Levels, 1),
				Layers:    max(d.Layers, 1),
				SrcFamily: sfam,
				DstFamily: dfam,
			})
		default:
			panic("driver: Barrier must refer to either a Buffer or an Image")
		}
	}
	if bt.SrcSync == SNone {
		bt.SrcSync = STopOfPipe
	}
	if bt.DstSync == SNone {
		bt.DstSync = STopOfPipe
	}
	return bt
}

func families(src, dst Queue) (int, int) {
	if src == nil || dst == nil || src.Family() == dst.Family() {
		return QueueIgnored, QueueIgnored
	}
	return src.Family(), dst.Family()
}
