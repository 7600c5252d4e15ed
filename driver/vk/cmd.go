// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"
	"fmt"
	"slices"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
	"github.com/gviegas/rhi/driver/internal/cmdstate"
)

// cmdPool implements driver.CmdPool.
type cmdPool struct {
	g    *GPU
	q    *queue
	pool vk.CommandPool
	cbs  []*cmdBuffer
}

// NewCmdPool creates a new command pool.
func (g *GPU) NewCmdPool(q driver.Queue) (driver.CmdPool, error) {
	vq, ok := q.(*queue)
	if !ok || !slices.Contains(g.queues, vq) {
		return nil, errors.New("vk: NewCmdPool: queue not owned by this GPU")
	}
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: uint32(vq.fam),
	}
	var pool vk.CommandPool
	if err := checkResult(vk.CreateCommandPool(g.dev, &info, nil, &pool)); err != nil {
		return nil, err
	}
	return &cmdPool{g: g, q: vq, pool: pool}, nil
}

// Queue returns the pool's queue.
func (p *cmdPool) Queue() driver.Queue { return p.q }

// NewCmdBuffer allocates a new command buffer.
func (p *cmdPool) NewCmdBuffer() (driver.CmdBuffer, error) {
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cbs := make([]vk.CommandBuffer, 1)
	if err := checkResult(vk.AllocateCommandBuffers(p.g.dev, &info, cbs)); err != nil {
		return nil, err
	}
	cb := &cmdBuffer{pool: p, m: cmdstate.Machine{Prefix: "vk"}, cb: cbs[0]}
	p.cbs = append(p.cbs, cb)
	return cb, nil
}

// Reset resets every command buffer of the pool.
func (p *cmdPool) Reset() error {
	for _, cb := range p.cbs {
		if err := cb.Reset(); err != nil {
			return err
		}
	}
	return nil
}

// Destroy destroys the pool and its command buffers.
func (p *cmdPool) Destroy() {
	if p == nil {
		return
	}
	if p.g != nil {
		for _, cb := range slices.Clone(p.cbs) {
			cb.Destroy()
		}
		vk.DestroyCommandPool(p.g.dev, p.pool, nil)
	}
	*p = cmdPool{}
}

// cmdBuffer implements driver.CmdBuffer.
type cmdBuffer struct {
	pool *cmdPool
	m    cmdstate.Machine
	cb   vk.CommandBuffer
	sub  *submission

	graph *pipeline
	comp  *pipeline
	ibuf  bool
	// Dynamic state set since Begin.
	vport   bool
	sciss   bool
	blend   bool
	stencil bool

	// Buffers created while recording and destroyed on
	// Reset.
	tmp []driver.Buffer
}

// State returns the current state.
func (cb *cmdBuffer) State() driver.CmdState { return cb.m.State() }

// Begin prepares the command buffer for recording.
func (cb *cmdBuffer) Begin() error {
	cb.m.Begin()
	info := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if err := checkResult(vk.BeginCommandBuffer(cb.cb, &info)); err != nil {
		cb.m.Reset()
		return err
	}
	return nil
}

// End ends command recording.
func (cb *cmdBuffer) End() error {
	cb.m.End()
	if err := checkResult(vk.EndCommandBuffer(cb.cb)); err != nil {
		cb.Reset()
		return err
	}
	return nil
}

// Reset returns the command buffer to the Initial state.
func (cb *cmdBuffer) Reset() error {
	if cb.m.State() == driver.CmdPending && !cb.pool.q.completed(cb.sub) {
		return errors.New("vk: cannot reset pending command buffer")
	}
	if err := checkResult(vk.ResetCommandBuffer(cb.cb, 0)); err != nil {
		return err
	}
	for _, b := range cb.tmp {
		b.Destroy()
	}
	*cb = cmdBuffer{
		pool: cb.pool,
		m:    cb.m,
		cb:   cb.cb,
		tmp:  cb.tmp[:0],
	}
	cb.m.Reset()
	return nil
}

// Destroy destroys the command buffer.
func (cb *cmdBuffer) Destroy() {
	if cb == nil || cb.pool == nil {
		return
	}
	if err := cb.Reset(); err != nil {
		driver.Logger().Warn("vk: destroying pending command buffer", "err", err)
	}
	p := cb.pool
	vk.FreeCommandBuffers(p.g.dev, p.pool, 1, []vk.CommandBuffer{cb.cb})
	if i := slices.Index(p.cbs, cb); i >= 0 {
		p.cbs = slices.Delete(p.cbs, i, i+1)
	}
	*cb = cmdBuffer{}
}

// BeginPass begins a render pass.
// Dynamic state not yet set in the command buffer is
// given defaults that cover the whole framebuffer.
func (cb *cmdBuffer) BeginPass(desc *driver.PassDesc) {
	cb.m.BeginPass()
	e, err := cb.pool.g.pass(desc)
	if err != nil {
		panic("vk: BeginPass: " + err.Error())
	}
	clear := make([]vk.ClearValue, 0, e.rp.natt)
	for _, c := range desc.Color {
		v := c.Value.Color
		clear = append(clear, vk.NewClearValue(v[:]))
		if c.Resolve != nil {
			clear = append(clear, vk.ClearValue{})
		}
	}
	if ds := desc.DS; ds != nil {
		clear = append(clear, vk.NewClearDepthStencil(ds.Value.Depth, ds.Value.Stencil))
	}
	info := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  e.rp.pass,
		Framebuffer: e.fb.fb,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: uint32(desc.Width), Height: uint32(desc.Height)},
		},
		ClearValueCount: uint32(len(clear)),
		PClearValues:    clear,
	}
	vk.CmdBeginRenderPass(cb.cb, &info, vk.SubpassContentsInline)
	if !cb.vport {
		cb.SetViewport(driver.Viewport{Width: float32(desc.Width), Height: float32(desc.Height), Zfar: 1})
	}
	if !cb.sciss {
		cb.SetScissor(driver.Scissor{Width: desc.Width, Height: desc.Height})
	}
	if !cb.blend {
		cb.SetBlendColor(0, 0, 0, 0)
	}
	if !cb.stencil {
		cb.SetStencilRef(0)
	}
}

// EndPass ends the current render pass.
func (cb *cmdBuffer) EndPass() {
	cb.m.EndPass()
	vk.CmdEndRenderPass(cb.cb)
}

// SetPipeline sets the pipeline.
func (cb *cmdBuffer) SetPipeline(pl driver.Pipeline) {
	cb.m.Bind()
	p := pl.(*pipeline)
	if p.Compute() {
		cb.comp = p
	} else {
		cb.graph = p
	}
	vk.CmdBindPipeline(cb.cb, p.bp, p.pl)
}

// SetViewport sets the viewport.
func (cb *cmdBuffer) SetViewport(vp driver.Viewport) {
	cb.m.Record("SetViewport")
	vk.CmdSetViewport(cb.cb, 0, 1, []vk.Viewport{{
		X:        vp.X,
		Y:        vp.Y,
		Width:    vp.Width,
		Height:   vp.Height,
		MinDepth: vp.Znear,
		MaxDepth: vp.Zfar,
	}})
	cb.vport = true
}

// SetScissor sets the scissor rectangle.
func (cb *cmdBuffer) SetScissor(sciss driver.Scissor) {
	cb.m.Record("SetScissor")
	if sciss.X < 0 || sciss.Y < 0 || sciss.Width < 0 || sciss.Height < 0 {
		panic("vk: negative scissor rectangle")
	}
	vk.CmdSetScissor(cb.cb, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: int32(sciss.X), Y: int32(sciss.Y)},
		Extent: vk.Extent2D{Width: uint32(sciss.Width), Height: uint32(sciss.Height)},
	}})
	cb.sciss = true
}

// SetBlendColor sets the constant blend color.
func (cb *cmdBuffer) SetBlendColor(r, g, b, a float32) {
	cb.m.Record("SetBlendColor")
	vk.CmdSetBlendConstants(cb.cb, &[4]float32{r, g, b, a})
	cb.blend = true
}

// SetStencilRef sets the stencil reference value.
func (cb *cmdBuffer) SetStencilRef(value uint32) {
	cb.m.Record("SetStencilRef")
	vk.CmdSetStencilReference(cb.cb, vk.StencilFaceFlags(vk.StencilFaceFrontBit|vk.StencilFaceBackBit), value)
	cb.stencil = true
}

// SetVertexBuf sets one or more vertex buffers.
func (cb *cmdBuffer) SetVertexBuf(start int, buf []driver.Buffer, off []int64) {
	cb.m.Record("SetVertexBuf")
	if len(buf) != len(off) {
		panic("vk: SetVertexBuf: len(buf) != len(off)")
	}
	driver.CheckLimit("vertex bindings", start+len(buf), driver.MaxVertexBindings)
	if len(buf) == 0 {
		return
	}
	bufs := make([]vk.Buffer, len(buf))
	offs := make([]vk.DeviceSize, len(off))
	for i := range buf {
		bufs[i] = buf[i].(*buffer).buf
		offs[i] = vk.DeviceSize(off[i])
	}
	vk.CmdBindVertexBuffers(cb.cb, uint32(start), uint32(len(bufs)), bufs, offs)
}

// SetIndexBuf sets the index buffer.
func (cb *cmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	cb.m.Record("SetIndexBuf")
	vk.CmdBindIndexBuffer(cb.cb, buf.(*buffer).buf, vk.DeviceSize(off), convIndexFmt(format))
	cb.ibuf = true
}

// SetDescSet binds descriptor sets.
func (cb *cmdBuffer) SetDescSet(pl driver.Pipeline, start int, set []driver.DescSet) {
	cb.m.Record("SetDescSet")
	p := pl.(*pipeline)
	if start < 0 || start+len(set) > p.Sets() {
		panic("vk: SetDescSet: set index out of range")
	}
	if len(set) == 0 {
		return
	}
	sets := make([]vk.DescriptorSet, len(set))
	for i, s := range set {
		ds := s.(*descSet)
		want := p.sets[start+i]
		if want == nil || !ds.layout.compatible(want) {
			panic(fmt.Sprintf("vk: SetDescSet: incompatible layout for set %d", start+i))
		}
		ds.check()
		sets[i] = ds.set
	}
	vk.CmdBindDescriptorSets(cb.cb, p.bp, p.layout, uint32(start), uint32(len(sets)), sets, 0, nil)
}

// PushConstants updates push constant values.
func (cb *cmdBuffer) PushConstants(pl driver.Pipeline, off int, data []byte) {
	cb.m.Record("PushConstants")
	p := pl.(*pipeline)
	if off < 0 || off+len(data) > p.pcSize || off%4 != 0 || len(data)%4 != 0 {
		panic("vk: PushConstants: invalid range")
	}
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(cb.cb, p.layout, p.pcStages, uint32(off), uint32(len(data)), unsafe.Pointer(&data[0]))
}

// checkDraw checks that a graphics pipeline is bound.
func (cb *cmdBuffer) checkDraw(op string) {
	cb.m.Inside(op)
	cb.m.Bound(op)
	if cb.graph == nil {
		panic("vk: " + op + ": no graphics pipeline set")
	}
}

// Draw draws primitives.
func (cb *cmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	cb.checkDraw("Draw")
	vk.CmdDraw(cb.cb, uint32(vertCount), uint32(instCount), uint32(baseVert), uint32(baseInst))
}

// DrawIndexed draws indexed primitives.
func (cb *cmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	cb.checkDraw("DrawIndexed")
	if !cb.ibuf {
		panic("vk: DrawIndexed: no index buffer set")
	}
	vk.CmdDrawIndexed(cb.cb, uint32(idxCount), uint32(instCount), uint32(baseIdx), int32(vertOff), uint32(baseInst))
}

// Dispatch dispatches compute thread groups.
func (cb *cmdBuffer) Dispatch(grpCountX, grpCountY, grpCountZ int) {
	cb.m.Outside("Dispatch")
	cb.m.Bound("Dispatch")
	if cb.comp == nil {
		panic("vk: Dispatch: no compute pipeline set")
	}
	vk.CmdDispatch(cb.cb, uint32(grpCountX), uint32(grpCountY), uint32(grpCountZ))
}

// CopyBuffer copies data between buffers.
func (cb *cmdBuffer) CopyBuffer(param *driver.BufferCopy) {
	cb.m.Outside("CopyBuffer")
	from, to := param.From.(*buffer), param.To.(*buffer)
	if param.FromOff+param.Size > from.size || param.ToOff+param.Size > to.size {
		panic("vk: CopyBuffer: range out of bounds")
	}
	vk.CmdCopyBuffer(cb.cb, from.buf, to.buf, 1, []vk.BufferCopy{{
		SrcOffset: vk.DeviceSize(param.FromOff),
		DstOffset: vk.DeviceSize(param.ToOff),
		Size:      vk.DeviceSize(param.Size),
	}})
}

// subresource returns the subresource layers of img that
// copies address.
// 3D images have a single layer.
func subresource(img driver.Image, layer, layers, level int) vk.ImageSubresourceLayers {
	m := img.(*image)
	if m.typ == vk.ImageType3d {
		layer, layers = 0, 1
	}
	return vk.ImageSubresourceLayers{
		AspectMask:     convAspect(driver.AspectOf(m.desc.Format)),
		MipLevel:       uint32(level),
		BaseArrayLayer: uint32(layer),
		LayerCount:     uint32(max(layers, 1)),
	}
}

// offset converts off for copies on img.
func offset(img driver.Image, off driver.Off3D) vk.Offset3D {
	z := int32(0)
	if img.(*image).typ == vk.ImageType3d {
		z = int32(off.Z)
	}
	return vk.Offset3D{X: int32(off.X), Y: int32(off.Y), Z: z}
}

// extent converts size for copies on img.
func extent(img driver.Image, size driver.Dim3D) vk.Extent3D {
	d := uint32(1)
	if img.(*image).typ == vk.ImageType3d {
		d = uint32(max(size.Depth, 1))
	}
	return vk.Extent3D{Width: uint32(size.Width), Height: uint32(size.Height), Depth: d}
}

// CopyImage copies data between images.
// The images must be in the CopySrc and CopyDst states.
func (cb *cmdBuffer) CopyImage(param *driver.ImageCopy) {
	cb.m.Outside("CopyImage")
	vk.CmdCopyImage(cb.cb,
		param.From.(*image).img, vk.ImageLayoutTransferSrcOptimal,
		param.To.(*image).img, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageCopy{{
			SrcSubresource: subresource(param.From, param.FromLayer, param.Layers, param.FromLevel),
			SrcOffset:      offset(param.From, param.FromOff),
			DstSubresource: subresource(param.To, param.ToLayer, param.Layers, param.ToLevel),
			DstOffset:      offset(param.To, param.ToOff),
			Extent:         extent(param.From, param.Size),
		}})
}

// bufImgCopy converts param.
func bufImgCopy(param *driver.BufImgCopy) []vk.BufferImageCopy {
	stride, rows := param.Stride[0], param.Stride[1]
	if stride == 0 {
		stride = param.Size.Width
	}
	if rows == 0 {
		rows = param.Size.Height
	}
	if stride < param.Size.Width || rows < param.Size.Height {
		panic("vk: buffer/image copy with invalid stride")
	}
	return []vk.BufferImageCopy{{
		BufferOffset:      vk.DeviceSize(param.BufOff),
		BufferRowLength:   uint32(stride),
		BufferImageHeight: uint32(rows),
		ImageSubresource:  subresource(param.Img, param.Layer, param.Layers, param.Level),
		ImageOffset:       offset(param.Img, param.ImgOff),
		ImageExtent:       extent(param.Img, param.Size),
	}}
}

// CopyBufToImg copies data from a buffer to an image.
// The image must be in the CopyDst state.
func (cb *cmdBuffer) CopyBufToImg(param *driver.BufImgCopy) {
	cb.m.Outside("CopyBufToImg")
	vk.CmdCopyBufferToImage(cb.cb, param.Buf.(*buffer).buf, param.Img.(*image).img, vk.ImageLayoutTransferDstOptimal, 1, bufImgCopy(param))
}

// CopyImgToBuf copies data from an image to a buffer.
// The image must be in the CopySrc state.
func (cb *cmdBuffer) CopyImgToBuf(param *driver.BufImgCopy) {
	cb.m.Outside("CopyImgToBuf")
	vk.CmdCopyImageToBuffer(cb.cb, param.Img.(*image).img, vk.ImageLayoutTransferSrcOptimal, param.Buf.(*buffer).buf, 1, bufImgCopy(param))
}

// Blit copies a region between images, scaling and
// converting formats as needed.
func (cb *cmdBuffer) Blit(param *driver.ImageBlit) {
	cb.m.Outside("Blit")
	rect := func(img driver.Image, r [2]driver.Off3D) [2]vk.Offset3D {
		o := [2]vk.Offset3D{offset(img, r[0]), offset(img, r[1])}
		if img.(*image).typ != vk.ImageType3d {
			o[1].Z = 1
		}
		return o
	}
	vk.CmdBlitImage(cb.cb,
		param.From.(*image).img, vk.ImageLayoutTransferSrcOptimal,
		param.To.(*image).img, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{{
			SrcSubresource: subresource(param.From, param.FromLayer, 1, param.FromLevel),
			SrcOffsets:     rect(param.From, param.FromRect),
			DstSubresource: subresource(param.To, param.ToLayer, 1, param.ToLevel),
			DstOffsets:     rect(param.To, param.ToRect),
		}}, convFilter(param.Filter))
}

// Fill fills a buffer range with a byte value.
// Ranges that are not 4-byte aligned are copied from a
// staging buffer that lives until the command buffer is
// reset.
func (cb *cmdBuffer) Fill(buf driver.Buffer, off int64, value byte, size int64) {
	cb.m.Outside("Fill")
	b := buf.(*buffer)
	if off < 0 || size <= 0 || off+size > b.size {
		panic("vk: Fill: range out of bounds")
	}
	if off%4 == 0 && size%4 == 0 {
		vk.CmdFillBuffer(cb.cb, b.buf, vk.DeviceSize(off), vk.DeviceSize(size), uint32(value)*0x01010101)
		return
	}
	stg, err := cb.pool.g.NewBuffer(size, driver.UCopySrc, driver.MemCPUToGPU)
	if err != nil {
		panic("vk: Fill: staging buffer: " + err.Error())
	}
	cb.tmp = append(cb.tmp, stg)
	p, err := stg.Map()
	if err != nil {
		panic("vk: Fill: staging buffer: " + err.Error())
	}
	for i := range p {
		p[i] = value
	}
	stg.Unmap()
	cb.CopyBuffer(&driver.BufferCopy{From: stg, To: buf, ToOff: off, Size: size})
}

// transition records a layout transition of every
// subresource of m.
func (cb *cmdBuffer) transition(m *image, from, to vk.ImageLayout) {
	const (
		stages = vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
		access = vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit)
	)
	vk.CmdPipelineBarrier(cb.cb, stages, stages, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       access,
		DstAccessMask:       access,
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               m.img,
		SubresourceRange:    m.subresources(),
	}})
}

// ClearImage clears every subresource of img, which is
// in the given state before and after the command.
func (cb *cmdBuffer) ClearImage(img driver.Image, state driver.ResourceState, value driver.ClearValue) {
	cb.m.Outside("ClearImage")
	m := img.(*image)
	layout := convLayout(driver.LayoutOf(state))
	cb.transition(m, layout, vk.ImageLayoutTransferDstOptimal)
	rng := []vk.ImageSubresourceRange{m.subresources()}
	if m.desc.Format.IsDS() {
		vk.CmdClearDepthStencilImage(cb.cb, m.img, vk.ImageLayoutTransferDstOptimal, &vk.ClearDepthStencilValue{
			Depth:   value.Depth,
			Stencil: value.Stencil,
		}, 1, rng)
	} else {
		var color vk.ClearColorValue
		*(*[4]float32)(unsafe.Pointer(&color)) = value.Color
		vk.CmdClearColorImage(cb.cb, m.img, vk.ImageLayoutTransferDstOptimal, &color, 1, rng)
	}
	if layout == vk.ImageLayoutUndefined {
		layout = vk.ImageLayoutGeneral
	}
	cb.transition(m, vk.ImageLayoutTransferDstOptimal, layout)
}

// Barrier records a batch of barriers as a single
// pipeline barrier.
func (cb *cmdBuffer) Barrier(b []driver.Barrier) {
	cb.m.Outside("Barrier")
	if len(b) == 0 {
		return
	}
	bt := driver.Resolve(b, cb.pool.q.Type())
	bufs := make([]vk.BufferMemoryBarrier, len(bt.Bufs))
	for i, x := range bt.Bufs {
		bufs[i] = vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       convAccess(x.SrcAccess),
			DstAccessMask:       convAccess(x.DstAccess),
			SrcQueueFamilyIndex: convFamily(x.SrcFamily),
			DstQueueFamilyIndex: convFamily(x.DstFamily),
			Buffer:              x.Buf.(*buffer).buf,
			Size:                vk.DeviceSize(vk.WholeSize),
		}
	}
	imgs := make([]vk.ImageMemoryBarrier, len(bt.Imgs))
	for i, x := range bt.Imgs {
		m := x.Img.(*image)
		imgs[i] = vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       convAccess(x.SrcAccess),
			DstAccessMask:       convAccess(x.DstAccess),
			OldLayout:           convLayout(x.OldLayout),
			NewLayout:           convLayout(x.NewLayout),
			SrcQueueFamilyIndex: convFamily(x.SrcFamily),
			DstQueueFamilyIndex: convFamily(x.DstFamily),
			Image:               m.img,
			// Depth and stencil change layouts together.
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: fullAspect(m.desc.Format),
				LevelCount: uint32(x.Levels),
				LayerCount: uint32(x.Layers),
			},
		}
	}
	vk.CmdPipelineBarrier(cb.cb, convSync(bt.SrcSync, true), convSync(bt.DstSync, false), 0,
		0, nil,
		uint32(len(bufs)), bufs,
		uint32(len(imgs)), imgs)
}
