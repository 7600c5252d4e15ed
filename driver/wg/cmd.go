// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wg

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gviegas/rhi/driver"
	"github.com/gviegas/rhi/driver/internal/cmdstate"
)

// cmdPool implements driver.CmdPool.
type cmdPool struct {
	g   *GPU
	q   *queue
	cbs []*cmdBuffer
}

// NewCmdPool creates a new command pool.
func (g *GPU) NewCmdPool(q driver.Queue) (driver.CmdPool, error) {
	wq, ok := q.(*queue)
	if !ok || wq != g.q {
		return nil, errors.New("wg: NewCmdPool: queue not owned by this GPU")
	}
	return &cmdPool{g: g, q: wq}, nil
}

// Queue returns the pool's queue.
func (p *cmdPool) Queue() driver.Queue { return p.q }

// NewCmdBuffer allocates a new command buffer.
func (p *cmdPool) NewCmdBuffer() (driver.CmdBuffer, error) {
	cb := &cmdBuffer{pool: p, m: cmdstate.Machine{Prefix: "wg"}}
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
	for _, cb := range slices.Clone(p.cbs) {
		cb.Destroy()
	}
	*p = cmdPool{}
}

// vertexBuf is a bound vertex buffer.
type vertexBuf struct {
	buf hal.Buffer
	off uint64
}

// bindPoint holds the state bound for one kind of
// pipeline.
type bindPoint struct {
	pl   *pipeline
	sets [driver.MaxSets]hal.BindGroup
}

// cmdBuffer implements driver.CmdBuffer.
// WebGPU resets the state of every render pass, so bound
// state is recorded here and replayed when a pass begins.
// Compute dispatches are recorded in compute passes of
// their own.
type cmdBuffer struct {
	pool *cmdPool
	m    cmdstate.Machine
	enc  hal.CommandEncoder
	cb   hal.CommandBuffer
	sub  uint64
	rp   hal.RenderPassEncoder

	graph   bindPoint
	comp    bindPoint
	vbufs   [driver.MaxVertexBindings]vertexBuf
	nvbuf   int
	ibuf    hal.Buffer
	ifmt    gputypes.IndexFormat
	ioff    uint64
	vport   *driver.Viewport
	sciss   *driver.Scissor
	blend   *gputypes.Color
	stencil *uint32

	// Resources created while recording and destroyed on
	// Reset.
	tmpBufs  []hal.Buffer
	tmpViews []hal.TextureView
}

// State returns the current state.
func (cb *cmdBuffer) State() driver.CmdState { return cb.m.State() }

// Begin prepares the command buffer for recording.
func (cb *cmdBuffer) Begin() error {
	cb.m.Begin()
	g := cb.pool.g
	if cb.enc == nil {
		enc, err := g.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{})
		if err != nil {
			cb.m.Reset()
			return convErr(err)
		}
		cb.enc = enc
	}
	if err := cb.enc.BeginEncoding(""); err != nil {
		cb.m.Reset()
		return convErr(err)
	}
	return nil
}

// End ends command recording.
func (cb *cmdBuffer) End() error {
	cb.m.End()
	c, err := cb.enc.EndEncoding()
	if err != nil {
		cb.m.Reset()
		return convErr(err)
	}
	cb.cb = c
	return nil
}

// Reset returns the command buffer to the Initial state.
func (cb *cmdBuffer) Reset() error {
	g := cb.pool.g
	switch cb.m.State() {
	case driver.CmdPending:
		if !cb.pool.q.completed(cb.sub) {
			return errors.New("wg: cannot reset pending command buffer")
		}
	case driver.CmdRecording:
		if cb.rp != nil {
			cb.rp.End()
			cb.rp = nil
		}
		cb.enc.DiscardEncoding()
	}
	if cb.cb != nil {
		g.dev.FreeCommandBuffer(cb.cb)
		cb.cb = nil
	}
	for _, b := range cb.tmpBufs {
		g.dev.DestroyBuffer(b)
	}
	for _, v := range cb.tmpViews {
		g.dev.DestroyTextureView(v)
	}
	*cb = cmdBuffer{
		pool:     cb.pool,
		m:        cb.m,
		enc:      cb.enc,
		tmpBufs:  cb.tmpBufs[:0],
		tmpViews: cb.tmpViews[:0],
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
		driver.Logger().Warn("wg: destroying pending command buffer", "err", err)
	}
	if cb.enc != nil {
		cb.enc.Destroy()
	}
	p := cb.pool
	if i := slices.Index(p.cbs, cb); i >= 0 {
		p.cbs = slices.Delete(p.cbs, i, i+1)
	}
	*cb = cmdBuffer{}
}

// halView returns the HAL view of iv.
func halView(iv driver.ImageView) hal.TextureView {
	v := iv.(*imageView)
	if v.view == nil {
		panic("wg: swapchain view used before Next")
	}
	return v.view
}

// halTexture returns the HAL texture of img.
func halTexture(img driver.Image) hal.Texture {
	m := img.(*image)
	if m.tex == nil {
		panic("wg: swapchain image used before Next")
	}
	return m.tex
}

// BeginPass begins a render pass.
func (cb *cmdBuffer) BeginPass(desc *driver.PassDesc) {
	cb.m.BeginPass()
	if _, err := cb.pool.g.pass(desc); err != nil {
		panic("wg: BeginPass: " + err.Error())
	}
	rpd := hal.RenderPassDescriptor{
		ColorAttachments: make([]hal.RenderPassColorAttachment, len(desc.Color)),
	}
	for i, c := range desc.Color {
		ca := &rpd.ColorAttachments[i]
		ca.View = halView(c.View)
		if c.Resolve != nil {
			ca.ResolveTarget = halView(c.Resolve)
		}
		ca.LoadOp = loadOp(c.Before, c.Clear)
		ca.StoreOp = storeOp(c.After)
		ca.ClearValue = gputypes.Color{
			R: float64(c.Value.Color[0]),
			G: float64(c.Value.Color[1]),
			B: float64(c.Value.Color[2]),
			A: float64(c.Value.Color[3]),
		}
	}
	if ds := desc.DS; ds != nil {
		dsa := &hal.RenderPassDepthStencilAttachment{View: halView(ds.View)}
		f := ds.View.Image().Desc().Format
		if f.HasDepth() {
			dsa.DepthLoadOp = loadOp(ds.Before, ds.Clear)
			dsa.DepthStoreOp = storeOp(ds.After)
			dsa.DepthClearValue = ds.Value.Depth
		}
		if f.HasStencil() {
			dsa.StencilLoadOp = loadOp(ds.Before, ds.Clear)
			dsa.StencilStoreOp = storeOp(ds.After)
			dsa.StencilClearValue = ds.Value.Stencil
		}
		rpd.DepthStencilAttachment = dsa
	}
	cb.rp = cb.enc.BeginRenderPass(&rpd)
	cb.replay()
}

// replay applies the bound state to the current render
// pass.
func (cb *cmdBuffer) replay() {
	if cb.graph.pl != nil {
		cb.applyPipeline()
	}
	for i := range cb.nvbuf {
		if vb := cb.vbufs[i]; vb.buf != nil {
			cb.rp.SetVertexBuffer(uint32(i), vb.buf, vb.off)
		}
	}
	if cb.ibuf != nil {
		cb.rp.SetIndexBuffer(cb.ibuf, cb.ifmt, cb.ioff)
	}
	if vp := cb.vport; vp != nil {
		cb.rp.SetViewport(vp.X, vp.Y, vp.Width, vp.Height, vp.Znear, vp.Zfar)
	}
	if s := cb.sciss; s != nil {
		cb.rp.SetScissorRect(uint32(s.X), uint32(s.Y), uint32(s.Width), uint32(s.Height))
	}
	if cb.blend != nil {
		cb.rp.SetBlendConstant(cb.blend)
	}
	if cb.stencil != nil {
		cb.rp.SetStencilReference(*cb.stencil)
	}
}

// applyPipeline sets the graphics pipeline and its bind
// groups in the current render pass.
func (cb *cmdBuffer) applyPipeline() {
	cb.rp.SetPipeline(cb.graph.pl.render)
	cb.bindGroups(&cb.graph, cb.rp.SetBindGroup)
}

// bindGroups sets the bind groups of bp using set.
// Empty set indices get the GPU's empty bind group.
func (cb *cmdBuffer) bindGroups(bp *bindPoint, set func(uint32, hal.BindGroup, []uint32)) {
	for i, l := range bp.pl.sets {
		switch {
		case l == nil:
			set(uint32(i), cb.pool.g.emptyBG, nil)
		case bp.sets[i] != nil:
			set(uint32(i), bp.sets[i], nil)
		}
	}
}

// EndPass ends the current render pass.
func (cb *cmdBuffer) EndPass() {
	cb.m.EndPass()
	cb.rp.End()
	cb.rp = nil
}

// SetPipeline sets the pipeline.
func (cb *cmdBuffer) SetPipeline(pl driver.Pipeline) {
	cb.m.Bind()
	p := pl.(*pipeline)
	if p.Compute() {
		cb.comp.pl = p
		return
	}
	cb.graph.pl = p
	if cb.rp != nil {
		cb.applyPipeline()
	}
}

// SetViewport sets the viewport.
func (cb *cmdBuffer) SetViewport(vp driver.Viewport) {
	cb.m.Record("SetViewport")
	cb.vport = &vp
	if cb.rp != nil {
		cb.rp.SetViewport(vp.X, vp.Y, vp.Width, vp.Height, vp.Znear, vp.Zfar)
	}
}

// SetScissor sets the scissor rectangle.
func (cb *cmdBuffer) SetScissor(sciss driver.Scissor) {
	cb.m.Record("SetScissor")
	if sciss.X < 0 || sciss.Y < 0 || sciss.Width < 0 || sciss.Height < 0 {
		panic("wg: negative scissor rectangle")
	}
	cb.sciss = &sciss
	if cb.rp != nil {
		cb.rp.SetScissorRect(uint32(sciss.X), uint32(sciss.Y), uint32(sciss.Width), uint32(sciss.Height))
	}
}

// SetBlendColor sets the constant blend color.
func (cb *cmdBuffer) SetBlendColor(r, g, b, a float32) {
	cb.m.Record("SetBlendColor")
	cb.blend = &gputypes.Color{R: float64(r), G: float64(g), B: float64(b), A: float64(a)}
	if cb.rp != nil {
		cb.rp.SetBlendConstant(cb.blend)
	}
}

// SetStencilRef sets the stencil reference value.
func (cb *cmdBuffer) SetStencilRef(value uint32) {
	cb.m.Record("SetStencilRef")
	cb.stencil = &value
	if cb.rp != nil {
		cb.rp.SetStencilReference(value)
	}
}

// SetVertexBuf sets one or more vertex buffers.
func (cb *cmdBuffer) SetVertexBuf(start int, buf []driver.Buffer, off []int64) {
	cb.m.Record("SetVertexBuf")
	if len(buf) != len(off) {
		panic("wg: SetVertexBuf: len(buf) != len(off)")
	}
	driver.CheckLimit("vertex bindings", start+len(buf), driver.MaxVertexBindings)
	for i := range buf {
		vb := vertexBuf{buf[i].(*buffer).buf, uint64(off[i])}
		cb.vbufs[start+i] = vb
		if cb.rp != nil {
			cb.rp.SetVertexBuffer(uint32(start+i), vb.buf, vb.off)
		}
	}
	cb.nvbuf = max(cb.nvbuf, start+len(buf))
}

// SetIndexBuf sets the index buffer.
func (cb *cmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	cb.m.Record("SetIndexBuf")
	cb.ibuf = buf.(*buffer).buf
	cb.ifmt = convIndexFmt(format)
	cb.ioff = uint64(off)
	if cb.rp != nil {
		cb.rp.SetIndexBuffer(cb.ibuf, cb.ifmt, cb.ioff)
	}
}

// SetDescSet binds descriptor sets.
func (cb *cmdBuffer) SetDescSet(pl driver.Pipeline, start int, set []driver.DescSet) {
	cb.m.Record("SetDescSet")
	p := pl.(*pipeline)
	if start < 0 || start+len(set) > p.Sets() {
		panic("wg: SetDescSet: set index out of range")
	}
	bp := &cb.graph
	if p.Compute() {
		bp = &cb.comp
	}
	for i, s := range set {
		ds := s.(*descSet)
		want := p.sets[start+i]
		if want == nil || !ds.layout.compatible(want) {
			panic(fmt.Sprintf("wg: SetDescSet: incompatible layout for set %d", start+i))
		}
		bp.sets[start+i] = ds.bindGroup()
		if cb.rp != nil && !p.Compute() {
			cb.rp.SetBindGroup(uint32(start+i), bp.sets[start+i], nil)
		}
	}
}

// PushConstants panics, since the HAL has no means to
// update push constants.
func (cb *cmdBuffer) PushConstants(pl driver.Pipeline, off int, data []byte) {
	cb.m.Record("PushConstants")
	panic("wg: PushConstants: " + driver.ErrUnsupported.Error())
}

// checkDraw checks that a graphics pipeline is bound.
func (cb *cmdBuffer) checkDraw(op string) {
	cb.m.Inside(op)
	cb.m.Bound(op)
	if cb.graph.pl == nil {
		panic("wg: " + op + ": no graphics pipeline set")
	}
}

// Draw draws primitives.
func (cb *cmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	cb.checkDraw("Draw")
	cb.rp.Draw(uint32(vertCount), uint32(instCount), uint32(baseVert), uint32(baseInst))
}

// DrawIndexed draws indexed primitives.
func (cb *cmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	cb.checkDraw("DrawIndexed")
	if cb.ibuf == nil {
		panic("wg: DrawIndexed: no index buffer set")
	}
	cb.rp.DrawIndexed(uint32(idxCount), uint32(instCount), uint32(baseIdx), int32(vertOff), uint32(baseInst))
}

// Dispatch dispatches compute thread groups.
func (cb *cmdBuffer) Dispatch(grpCountX, grpCountY, grpCountZ int) {
	cb.m.Outside("Dispatch")
	cb.m.Bound("Dispatch")
	if cb.comp.pl == nil {
		panic("wg: Dispatch: no compute pipeline set")
	}
	cp := cb.enc.BeginComputePass(&hal.ComputePassDescriptor{})
	cp.SetPipeline(cb.comp.pl.comp)
	cb.bindGroups(&cb.comp, cp.SetBindGroup)
	cp.Dispatch(uint32(grpCountX), uint32(grpCountY), uint32(grpCountZ))
	cp.End()
}

// CopyBuffer copies data between buffers.
func (cb *cmdBuffer) CopyBuffer(param *driver.BufferCopy) {
	cb.m.Outside("CopyBuffer")
	from, to := param.From.(*buffer), param.To.(*buffer)
	if param.FromOff+param.Size > from.size || param.ToOff+param.Size > to.size {
		panic("wg: CopyBuffer: range out of bounds")
	}
	cb.enc.CopyBufferToBuffer(from.buf, to.buf, []hal.BufferCopy{{
		SrcOffset: uint64(param.FromOff),
		DstOffset: uint64(param.ToOff),
		Size:      uint64(param.Size),
	}})
}

// copyTexture returns the HAL description of a texture
// subresource for copies.
func copyTexture(img driver.Image, off driver.Off3D, layer, level int) hal.ImageCopyTexture {
	m := img.(*image)
	z := uint32(layer)
	if m.is3D() {
		z = uint32(off.Z)
	}
	return hal.ImageCopyTexture{
		Texture:  halTexture(img),
		MipLevel: uint32(level),
		Origin:   hal.Origin3D{X: uint32(off.X), Y: uint32(off.Y), Z: z},
		Aspect:   convAspect(driver.AspectOf(m.desc.Format)),
	}
}

// copyExtent returns the HAL extent of a copy.
func copyExtent(img driver.Image, size driver.Dim3D, layers int) hal.Extent3D {
	d := uint32(max(layers, 1))
	if img.(*image).is3D() {
		d = uint32(max(size.Depth, 1))
	}
	return hal.Extent3D{
		Width:              uint32(size.Width),
		Height:             uint32(size.Height),
		DepthOrArrayLayers: d,
	}
}

// CopyImage copies data between images.
func (cb *cmdBuffer) CopyImage(param *driver.ImageCopy) {
	cb.m.Outside("CopyImage")
	cb.enc.CopyTextureToTexture(halTexture(param.From), halTexture(param.To), []hal.TextureCopy{{
		SrcBase: copyTexture(param.From, param.FromOff, param.FromLayer, param.FromLevel),
		DstBase: copyTexture(param.To, param.ToOff, param.ToLayer, param.ToLevel),
		Size:    copyExtent(param.From, param.Size, param.Layers),
	}})
}

// bufImgCopy converts param.
func bufImgCopy(param *driver.BufImgCopy) []hal.BufferTextureCopy {
	m := param.Img.(*image)
	stride, rows := param.Stride[0], param.Stride[1]
	if stride == 0 {
		stride = param.Size.Width
	}
	if rows == 0 {
		rows = param.Size.Height
	}
	if stride < param.Size.Width || rows < param.Size.Height {
		panic("wg: buffer/image copy with invalid stride")
	}
	return []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{
			Offset:       uint64(param.BufOff),
			BytesPerRow:  uint32(stride * m.desc.Format.Size()),
			RowsPerImage: uint32(rows),
		},
		TextureBase: copyTexture(param.Img, param.ImgOff, param.Layer, param.Level),
		Size:        copyExtent(param.Img, param.Size, param.Layers),
	}}
}

// CopyBufToImg copies data from a buffer to an image.
func (cb *cmdBuffer) CopyBufToImg(param *driver.BufImgCopy) {
	cb.m.Outside("CopyBufToImg")
	cb.enc.CopyBufferToTexture(param.Buf.(*buffer).buf, halTexture(param.Img), bufImgCopy(param))
}

// CopyImgToBuf copies data from an image to a buffer.
func (cb *cmdBuffer) CopyImgToBuf(param *driver.BufImgCopy) {
	cb.m.Outside("CopyImgToBuf")
	cb.enc.CopyTextureToBuffer(halTexture(param.Img), param.Buf.(*buffer).buf, bufImgCopy(param))
}

// Blit copies a region between images.
// The regions must have the same size and the images the
// same format.
func (cb *cmdBuffer) Blit(param *driver.ImageBlit) {
	cb.m.Outside("Blit")
	ext := func(r [2]driver.Off3D) driver.Dim3D {
		return driver.Dim3D{
			Width:  r[1].X - r[0].X,
			Height: r[1].Y - r[0].Y,
			Depth:  max(r[1].Z-r[0].Z, 1),
		}
	}
	from, to := ext(param.FromRect), ext(param.ToRect)
	if from != to || from.Width <= 0 || from.Height <= 0 {
		panic("wg: Blit: " + driver.ErrUnsupported.Error() + " (scaling or flipping)")
	}
	if param.From.Desc().Format != param.To.Desc().Format {
		panic("wg: Blit: " + driver.ErrUnsupported.Error() + " (format conversion)")
	}
	cb.enc.CopyTextureToTexture(halTexture(param.From), halTexture(param.To), []hal.TextureCopy{{
		SrcBase: copyTexture(param.From, param.FromRect[0], param.FromLayer, param.FromLevel),
		DstBase: copyTexture(param.To, param.ToRect[0], param.ToLayer, param.ToLevel),
		Size:    copyExtent(param.From, from, 1),
	}})
}

// Fill fills a buffer range with a byte value.
// Non-zero values are copied from a staging buffer that
// lives until the command buffer is reset.
func (cb *cmdBuffer) Fill(buf driver.Buffer, off int64, value byte, size int64) {
	cb.m.Outside("Fill")
	b := buf.(*buffer)
	if off < 0 || size <= 0 || off+size > b.size {
		panic("wg: Fill: range out of bounds")
	}
	if value == 0 {
		cb.enc.ClearBuffer(b.buf, uint64(off), uint64(size))
		return
	}
	g := cb.pool.g
	stg, err := g.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: "fill",
		Size:  uint64(size),
		Usage: gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		panic("wg: Fill: staging buffer: " + err.Error())
	}
	cb.tmpBufs = append(cb.tmpBufs, stg)
	bm, err := g.dev.MapBuffer(stg, 0, uint64(size))
	if err != nil {
		panic("wg: Fill: staging buffer: " + err.Error())
	}
	p := unsafeBytes(bm, size)
	for i := range p {
		p[i] = value
	}
	g.dev.UnmapBuffer(stg)
	cb.enc.CopyBufferToBuffer(stg, b.buf, []hal.BufferCopy{{DstOffset: uint64(off), Size: uint64(size)}})
}

// ClearImage clears every subresource of img.
// img must be a 2D image created with URenderTarget
// usage.
func (cb *cmdBuffer) ClearImage(img driver.Image, state driver.ResourceState, value driver.ClearValue) {
	cb.m.Outside("ClearImage")
	m := img.(*image)
	if m.desc.Usage&driver.URenderTarget == 0 {
		panic("wg: ClearImage: image not usable as render target")
	}
	if m.is3D() {
		panic("wg: ClearImage: " + driver.ErrUnsupported.Error() + " (3D image)")
	}
	tex := halTexture(img)
	rng := hal.TextureRange{
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   uint32(m.desc.Levels),
		ArrayLayerCount: uint32(m.desc.Layers),
	}
	cb.enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: tex,
		Range:   rng,
		Usage: hal.TextureUsageTransition{
			OldUsage: imgStateUsage(state),
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})
	g := cb.pool.g
	f := m.desc.Format
	for level := range m.desc.Levels {
		for layer := range m.desc.Layers {
			v, err := g.dev.CreateTextureView(tex, &hal.TextureViewDescriptor{
				Format:          convPixelFmt(f),
				Dimension:       gputypes.TextureViewDimension2D,
				Aspect:          gputypes.TextureAspectAll,
				BaseMipLevel:    uint32(level),
				MipLevelCount:   1,
				BaseArrayLayer:  uint32(layer),
				ArrayLayerCount: 1,
			})
			if err != nil {
				panic("wg: ClearImage: " + err.Error())
			}
			cb.tmpViews = append(cb.tmpViews, v)
			var rpd hal.RenderPassDescriptor
			if f.IsDS() {
				dsa := &hal.RenderPassDepthStencilAttachment{View: v}
				if f.HasDepth() {
					dsa.DepthLoadOp = gputypes.LoadOpClear
					dsa.DepthStoreOp = gputypes.StoreOpStore
					dsa.DepthClearValue = value.Depth
				}
				if f.HasStencil() {
					dsa.StencilLoadOp = gputypes.LoadOpClear
					dsa.StencilStoreOp = gputypes.StoreOpStore
					dsa.StencilClearValue = value.Stencil
				}
				rpd.DepthStencilAttachment = dsa
			} else {
				rpd.ColorAttachments = []hal.RenderPassColorAttachment{{
					View:    v,
					LoadOp:  gputypes.LoadOpClear,
					StoreOp: gputypes.StoreOpStore,
					ClearValue: gputypes.Color{
						R: float64(value.Color[0]),
						G: float64(value.Color[1]),
						B: float64(value.Color[2]),
						A: float64(value.Color[3]),
					},
				}}
			}
			cb.enc.BeginRenderPass(&rpd).End()
		}
	}
	cb.enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: tex,
		Range:   rng,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: imgStateUsage(state),
		},
	}})
}

// Barrier records a batch of barriers.
// WebGPU derives stages and accesses from usages, so only
// the usage transitions are recorded.
func (cb *cmdBuffer) Barrier(b []driver.Barrier) {
	cb.m.Outside("Barrier")
	bt := driver.Resolve(b, cb.pool.q.Type())
	var bufs []hal.BufferBarrier
	var texs []hal.TextureBarrier
	nimg := 0
	for i := range b {
		if b[i].Buf != nil {
			bufs = append(bufs, hal.BufferBarrier{
				Buffer: b[i].Buf.(*buffer).buf,
				Usage: hal.BufferUsageTransition{
					OldUsage: bufStateUsage(b[i].Old),
					NewUsage: bufStateUsage(b[i].New),
				},
			})
			continue
		}
		ib := &bt.Imgs[nimg]
		nimg++
		texs = append(texs, hal.TextureBarrier{
			Texture: halTexture(b[i].Img),
			Range: hal.TextureRange{
				Aspect:          convAspect(ib.Aspect),
				MipLevelCount:   uint32(ib.Levels),
				ArrayLayerCount: uint32(ib.Layers),
			},
			Usage: hal.TextureUsageTransition{
				OldUsage: imgStateUsage(b[i].Old),
				NewUsage: imgStateUsage(b[i].New),
			},
		})
	}
	if len(bufs) > 0 {
		cb.enc.TransitionBuffers(bufs)
	}
	if len(texs) > 0 {
		cb.enc.TransitionTextures(texs)
	}
}
