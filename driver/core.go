// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"time"

	"github.com/gogpu/gpucontext"
)

// GPU is the main interface to an underlying driver
// implementation.
// It is used to create other types and to execute commands.
// A GPU is obtained from a call to Driver.Open.
//
// Every resource-mutating or resource-destroying call is
// only valid once all GPU work referencing the resource has
// completed. The GPU does not track in-flight usage; callers
// wait on fences (or call WaitIdle) before destroying.
// Creation and destruction are not synchronized internally.
type GPU interface {
	// Driver returns the driver that owns the GPU.
	Driver() Driver

	// Info describes the physical adapter.
	Info() gpucontext.AdapterInfo

	// Queues returns every queue the GPU exposes.
	// There is at least one QGraphics queue.
	Queues() []Queue

	// Queue returns the first queue of the given type,
	// or nil if there is none.
	Queue(typ QueueType) Queue

	// NewCmdPool creates a new command pool whose command
	// buffers can only be submitted to q.
	NewCmdPool(q Queue) (CmdPool, error)

	// NewBuffer creates a new buffer.
	// mem selects the memory the buffer is allocated from.
	NewBuffer(size int64, usg Usage, mem MemUsage) (Buffer, error)

	// NewImage creates a new image.
	NewImage(desc *ImageDesc) (Image, error)

	// NewSampler creates a new sampler.
	NewSampler(spln *Sampling) (Sampler, error)

	// NewShader creates a shader from SPIR-V code.
	// The code is reflected to discover its descriptor
	// bindings.
	NewShader(stg Stage, code []byte) (Shader, error)

	// NewGraphPipeline creates a graphics pipeline.
	// It panics if gs.Stages is empty.
	NewGraphPipeline(gs *GraphState) (Pipeline, error)

	// NewCompPipeline creates a compute pipeline.
	NewCompPipeline(cs *CompState) (Pipeline, error)

	// NewDescSet allocates a descriptor set from the
	// GPU's descriptor pool.
	NewDescSet(layout DescSetLayout) (DescSet, error)

	// UpdateDescSets applies a batch of descriptor writes.
	UpdateDescSets(w []DescWrite)

	// Pass returns the render pass and framebuffer that
	// match desc, creating them on first use.
	Pass(desc *PassDesc) (RenderPass, Framebuf, error)

	// PassStats returns render pass cache statistics.
	PassStats() CacheStats

	// NewSemaphore creates a binary semaphore.
	NewSemaphore() (Semaphore, error)

	// NewFence creates a fence, signaled or not.
	NewFence(signaled bool) (Fence, error)

	// WaitFences blocks until all (or any, if all is
	// false) fences are signaled or timeout expires,
	// in which case it returns ErrTimeout.
	WaitFences(f []Fence, all bool, timeout time.Duration) error

	// ResetFences sets fences to the unsignaled state.
	// A fence must be reset before it is used in another
	// submission.
	ResetFences(f []Fence) error

	// WaitIdle blocks until the GPU is idle.
	WaitIdle() error

	// Limits returns the implementation limits.
	Limits() Limits
}

// Destroyer is the interface that wraps the Destroy method.
// Types that implement this interface may allocate external
// resources that are not managed by the Go runtime, so
// Destroy must be called to release them.
type Destroyer interface {
	Destroy()
}

// QueueType is the type of a queue.
type QueueType int

// Queue types.
const (
	QGraphics QueueType = iota
	QCompute
	QTransfer
)

func (t QueueType) String() string {
	switch t {
	case QGraphics:
		return "graphics"
	case QCompute:
		return "compute"
	case QTransfer:
		return "transfer"
	}
	return "invalid"
}

// Queue is the interface that defines a GPU execution port.
type Queue interface {
	// Type returns the queue type.
	Type() QueueType

	// Family returns the queue family, which identifies
	// the queue in ownership transfers.
	Family() int

	// Submit submits command buffers for execution.
	// The command buffers must be Executable, and become
	// Pending.
	Submit(s *Submit) error

	// Present presents the swapchain image identified by
	// index once every semaphore in wait is signaled.
	// The image must be in the Present state.
	Present(sc Swapchain, index int, wait []Semaphore) error

	// ImmediateSubmit submits cb and blocks until the
	// queue is idle.
	// It is meant for one-off setup work.
	ImmediateSubmit(cb []CmdBuffer) error

	// WaitIdle blocks until the queue is idle.
	WaitIdle() error
}

// WaitSem is a semaphore wait at a given pipeline stage.
type WaitSem struct {
	Sem   Semaphore
	Stage Sync
}

// Submit describes a queue submission.
// Command buffers execute in order. Execution waits on
// Wait before the stages given; Signal is signaled and
// Fence (if not nil) becomes signaled on completion.
type Submit struct {
	Cmds   []CmdBuffer
	Wait   []WaitSem
	Signal []Semaphore
	Fence  Fence
}

// Semaphore is the interface that defines a binary
// GPU-GPU synchronization primitive.
// A signaled semaphore is unsignaled by the operation
// that waits on it.
type Semaphore interface {
	Destroyer
}

// Fence is the interface that defines a GPU-CPU
// synchronization primitive.
type Fence interface {
	Destroyer

	// Signaled returns whether the fence is signaled,
	// without blocking.
	Signaled() (bool, error)
}

// CmdPool is the interface that defines a command pool.
// A pool must be used by a single recording thread at
// a time.
type CmdPool interface {
	Destroyer

	// Queue returns the queue that the pool targets.
	Queue() Queue

	// NewCmdBuffer allocates a command buffer in the
	// Initial state.
	NewCmdBuffer() (CmdBuffer, error)

	// Reset resets every command buffer allocated from
	// the pool to the Initial state.
	// None of them can be Pending.
	Reset() error
}

// CmdState is the state of a command buffer.
type CmdState int

// Command buffer states.
const (
	CmdInitial CmdState = iota
	CmdRecording
	CmdExecutable
	CmdPending
)

func (s CmdState) String() string {
	switch s {
	case CmdInitial:
		return "initial"
	case CmdRecording:
		return "recording"
	case CmdExecutable:
		return "executable"
	case CmdPending:
		return "pending"
	}
	return "invalid"
}

// CmdBuffer is the interface that defines a command buffer.
// Commands are recorded into command buffers and later
// submitted to a queue.
//
// To record commands:
//
//	1. call Begin
//	2. record commands (BeginPass/EndPass delimit draws)
//	3. call End
//
// Every method that records a command panics if the
// command buffer is not in the Recording state. Begin
// panics if the command buffer is not in the Initial
// state.
type CmdBuffer interface {
	Destroyer

	// State returns the current state.
	State() CmdState

	// Begin prepares the command buffer for recording.
	Begin() error

	// End ends command recording.
	End() error

	// Reset returns the command buffer to the Initial
	// state. It must not be Pending.
	Reset() error

	// BeginPass begins a render pass.
	// The render pass and framebuffer are obtained from
	// the GPU's cache.
	BeginPass(desc *PassDesc)

	// EndPass ends the current render pass.
	EndPass()

	// SetPipeline sets the pipeline.
	SetPipeline(pl Pipeline)

	// SetViewport sets the viewport.
	SetViewport(vp Viewport)

	// SetScissor sets the scissor rectangle.
	SetScissor(sciss Scissor)

	// SetBlendColor sets the constant blend color.
	SetBlendColor(r, g, b, a float32)

	// SetStencilRef sets the stencil reference value.
	SetStencilRef(value uint32)

	// SetVertexBuf sets one or more vertex buffers.
	SetVertexBuf(start int, buf []Buffer, off []int64)

	// SetIndexBuf sets the index buffer.
	SetIndexBuf(format IndexFmt, buf Buffer, off int64)

	// SetDescSet binds descriptor sets to the pipeline
	// layout of pl, starting at set index start.
	SetDescSet(pl Pipeline, start int, set []DescSet)

	// PushConstants updates the push constant range.
	// off+len(data) must not exceed MaxPushConstant.
	PushConstants(pl Pipeline, off int, data []byte)

	// Draw draws primitives.
	Draw(vertCount, instCount, baseVert, baseInst int)

	// DrawIndexed draws indexed primitives.
	DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int)

	// Dispatch dispatches compute thread groups.
	Dispatch(grpCountX, grpCountY, grpCountZ int)

	// CopyBuffer copies data between buffers.
	CopyBuffer(param *BufferCopy)

	// CopyImage copies data between images.
	CopyImage(param *ImageCopy)

	// CopyBufToImg copies data from a buffer to an image.
	CopyBufToImg(param *BufImgCopy)

	// CopyImgToBuf copies data from an image to a buffer.
	CopyImgToBuf(param *BufImgCopy)

	// Blit copies a region between images, scaling and
	// filtering as needed.
	Blit(param *ImageBlit)

	// Fill fills a buffer range with a byte value.
	Fill(buf Buffer, off int64, value byte, size int64)

	// ClearImage clears every subresource of img, which
	// must be in the given state.
	ClearImage(img Image, state ResourceState, value ClearValue)

	// Barrier records a batch of barriers as a single
	// synchronization command.
	Barrier(b []Barrier)
}

// BufferCopy describes the parameters of a copy command
// between buffers.
type BufferCopy struct {
	From    Buffer
	FromOff int64
	To      Buffer
	ToOff   int64
	Size    int64
}

// ImageCopy describes the parameters of a copy command
// between images.
type ImageCopy struct {
	From      Image
	FromOff   Off3D
	FromLayer int
	FromLevel int
	To        Image
	ToOff     Off3D
	ToLayer   int
	ToLevel   int
	Size      Dim3D
	Layers    int
}

// BufImgCopy describes the parameters of a copy command
// between a buffer and an image.
// Stride is given in pixels and must be zero or at least
// Size.Width. Slice is given in rows.
type BufImgCopy struct {
	Buf    Buffer
	BufOff int64
	Stride [2]int
	Img    Image
	ImgOff Off3D
	Layer  int
	Level  int
	Size   Dim3D
	Layers int
}

// ImageBlit describes the parameters of a blit command.
// The image regions are given as two corners each.
type ImageBlit struct {
	From      Image
	FromRect  [2]Off3D
	FromLayer int
	FromLevel int
	To        Image
	ToRect    [2]Off3D
	ToLayer   int
	ToLevel   int
	Filter    Filter
}

// Viewport defines the bounds of a viewport.
type Viewport struct {
	X, Y, Width, Height, Znear, Zfar float32
}

// Scissor defines a scissor rectangle.
type Scissor struct {
	X, Y, Width, Height int
}

// ClearValue defines clear values for color or depth/stencil
// aspects of a render target.
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// Usage is a mask indicating valid uses for a resource.
type Usage int

// Usage flags for Buffer and Image.
const (
	// The resource can be read in shaders.
	UShaderRead Usage = 1 << iota
	// The resource can be written in shaders.
	UShaderWrite
	// The resource can provide constant data for shaders.
	// Valid only for Buffer.
	UShaderConst
	// The resource can be sampled in shaders.
	// Valid only for Image.
	UShaderSample
	// The resource can provide vertex data for draw calls.
	// Valid only for Buffer.
	UVertexData
	// The resource can provide index data for draw calls.
	// Valid only for Buffer.
	UIndexData
	// The resource can provide indirect draw arguments.
	// Valid only for Buffer.
	UIndirect
	// The resource can be used as render target.
	// Valid only for Image.
	URenderTarget
	// The resource can be the source of copies.
	UCopySrc
	// The resource can be the destination of copies.
	UCopyDst
	// The resource can be used for any purpose.
	UGeneric Usage = 1<<iota - 1
)

// MemUsage selects the memory that backs a resource.
type MemUsage int

// Memory usages.
const (
	// Device-local memory, not accessible by the CPU.
	MemGPUOnly MemUsage = iota
	// Host-visible memory written by the CPU and read by
	// the GPU (e.g., staging and per-frame constants).
	MemCPUToGPU
	// Host-visible, cached memory written by the GPU and
	// read back by the CPU.
	MemGPUToCPU
)

// Buffer is the interface that defines a GPU buffer.
// The size of the buffer is fixed. When a larger buffer
// is necessary, a new one must be created and the data
// must be copied explicitly.
type Buffer interface {
	Destroyer

	// Size returns the size of the buffer in bytes.
	Size() int64

	// Usage returns the buffer's Usage.
	Usage() Usage

	// MemUsage returns the buffer's MemUsage.
	MemUsage() MemUsage

	// Map maps the buffer and returns a slice of length
	// Size referring to its memory.
	// It fails for MemGPUOnly buffers.
	// The slice is valid until Unmap is called.
	Map() ([]byte, error)

	// Unmap unmaps the buffer.
	Unmap()
}

// Dim3D is a three-dimensional size.
type Dim3D struct {
	Width, Height, Depth int
}

// Off3D is a three-dimensional offset.
type Off3D struct {
	X, Y, Z int
}

// ImageDesc describes an image.
type ImageDesc struct {
	Format  PixelFmt
	Size    Dim3D
	Layers  int
	Levels  int
	Samples int
	Usage   Usage
}

// Image is the interface that defines a GPU image.
// Direct access to image memory is not provided, so copying
// data from the CPU to an image resource requires the use
// of a staging buffer.
type Image interface {
	Destroyer

	// Desc returns the description used to create the
	// image.
	Desc() ImageDesc

	// NewView creates a new image view.
	// All views created from a given image must be
	// destroyed before the image itself is destroyed.
	NewView(typ ViewType, layer, layers, level, levels int) (ImageView, error)
}

// ViewType is the type of a resource view.
type ViewType int

// View types.
const (
	IView1D ViewType = iota
	IView2D
	IView3D
	IViewCube
	IView1DArray
	IView2DArray
	IViewCubeArray
	IView2DMS
	IView2DMSArray
)

// ImageView is the interface that defines a typed view of
// an Image resource.
type ImageView interface {
	Destroyer

	// Image returns the viewed image.
	Image() Image
}

// Filter is the type of sampler filters.
type Filter int

// Filters.
const (
	FNearest Filter = iota
	FLinear
	// FNoMipmap forces mip level 0 to be used.
	// It is only valid as the mip filter of a sampler.
	FNoMipmap
)

// AddrMode is the type of sampler address modes.
type AddrMode int

// Address modes.
const (
	AWrap AddrMode = iota
	AMirror
	AClamp
)

// Sampler is the interface that defines an image sampler.
// Its state is immutable.
type Sampler interface {
	Destroyer
}

// Sampling describes image sampler state.
// Cmp is ignored unless Compare is set.
type Sampling struct {
	Min      Filter
	Mag      Filter
	Mipmap   Filter
	AddrU    AddrMode
	AddrV    AddrMode
	AddrW    AddrMode
	MaxAniso int
	Compare  bool
	Cmp      CmpFunc
	MinLOD   float32
	MaxLOD   float32
}

// Window is the interface that a windowing system
// implements to allow presentation.
type Window interface {
	gpucontext.WindowProvider

	// Handles returns the native display and window
	// handles (e.g., a Display* and a Window XID, or
	// zero and an HWND).
	Handles() (display, window uintptr)
}

// Limits describes implementation limits.
// These may vary across drivers and devices, but never
// exceed the package's capacity constants.
type Limits struct {
	// Maximum width and height of 2D images.
	MaxImage2D int
	// Maximum width, height and depth of 3D images.
	MaxImage3D int
	// Maximum number of layers in an image.
	MaxLayers int
	// Maximum number of descriptor sets in a pipeline.
	MaxSets int
	// Maximum number of bindings in a descriptor set.
	MaxBindings int
	// Maximum number of color attachments in a pass.
	MaxColorAttach int
	// Maximum number of vertex buffer bindings.
	MaxVertexBindings int
	// Maximum number of vertex attributes.
	MaxVertexAttrs int
	// Maximum size of push constants in bytes.
	MaxPushConstant int
	// Maximum dipatch count.
	MaxDispatch [3]int
	// Whether descriptor arrays (Count > 1) are supported.
	DescArrays bool
	// Whether combined image samplers are supported.
	CombinedSampler bool
	// Whether Blit can scale.
	ScaledBlit bool
}
